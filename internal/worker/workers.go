// Package worker runs the periodic background jobs: the scheduled-send
// sweep, delivery reconciliation and classifier retraining.
package worker

import (
	"context"
	"time"

	"comms-hub/internal/chatbot"
	"comms-hub/internal/dispatch"
	"comms-hub/internal/store"

	log "github.com/sirupsen/logrus"
)

// run executes job on every tick until ctx is cancelled, recovering from
// panics so one bad pass never kills the loop.
func run(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	logger := log.WithField("worker", name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Info("worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.WithField("panic", r).Error("worker pass panicked")
					}
				}()
				job(ctx)
			}()
		}
	}
}

// ScheduleSweep promotes due pending messages into the dispatch queue.
// Scheduled messages stay pending until their scheduled time; the sweep
// also recovers messages whose enqueue was lost.
type ScheduleSweep struct {
	messages   *store.MessageStore
	dispatcher *dispatch.Dispatcher
	interval   time.Duration
	batchSize  int
}

func NewScheduleSweep(messages *store.MessageStore, dispatcher *dispatch.Dispatcher, interval time.Duration, batchSize int) *ScheduleSweep {
	if batchSize < 1 {
		batchSize = 100
	}
	return &ScheduleSweep{messages: messages, dispatcher: dispatcher, interval: interval, batchSize: batchSize}
}

func (w *ScheduleSweep) Start(ctx context.Context) {
	run(ctx, "schedule_sweep", w.interval, func(ctx context.Context) {
		due, err := w.messages.DuePending(ctx, time.Now(), w.batchSize)
		if err != nil {
			log.WithError(err).Error("schedule sweep query failed")
			return
		}
		for _, msg := range due {
			w.dispatcher.Enqueue(msg.ID)
		}
	})
}

// Reconciler runs the delivery tracker on a fixed cadence.
type Reconciler struct {
	tracker  *dispatch.Tracker
	interval time.Duration
}

func NewReconciler(tracker *dispatch.Tracker, interval time.Duration) *Reconciler {
	return &Reconciler{tracker: tracker, interval: interval}
}

func (w *Reconciler) Start(ctx context.Context) {
	run(ctx, "reconciler", w.interval, func(ctx context.Context) {
		if err := w.tracker.Reconcile(ctx); err != nil {
			log.WithError(err).Error("reconciliation pass failed")
		}
	})
}

// Retrainer rebuilds the intent classifier so edits to training phrases
// take effect without a restart.
type Retrainer struct {
	classifier *chatbot.TFIDFClassifier
	interval   time.Duration
}

func NewRetrainer(classifier *chatbot.TFIDFClassifier, interval time.Duration) *Retrainer {
	return &Retrainer{classifier: classifier, interval: interval}
}

func (w *Retrainer) Start(ctx context.Context) {
	run(ctx, "retrainer", w.interval, func(ctx context.Context) {
		if err := w.classifier.Retrain(ctx); err != nil {
			log.WithError(err).Error("scheduled retrain failed")
		}
	})
}
