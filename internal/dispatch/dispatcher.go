// Package dispatch moves pending messages out through their channel
// adapters and reconciles provider delivery status back into the store.
package dispatch

import (
	"context"
	"sync"
	"time"

	"comms-hub/internal/channels"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	log "github.com/sirupsen/logrus"
)

// Dispatcher executes outbound sends asynchronously: the enqueueing turn
// never blocks on transport I/O. A dispatch failure marks the message
// failed with the error recorded in its metadata; nothing here retries.
type Dispatcher struct {
	messages *store.MessageStore
	registry *channels.Registry
	queue    chan string
	workers  int
	timeout  time.Duration
	logger   *log.Entry
	wg       sync.WaitGroup
	inflight sync.Map
}

func NewDispatcher(messages *store.MessageStore, registry *channels.Registry, workers int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		messages: messages,
		registry: registry,
		queue:    make(chan string, 256),
		workers:  workers,
		timeout:  timeout,
		logger:   log.WithField("component", "dispatcher"),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-d.queue:
					d.dispatch(ctx, id)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue queues a message id for dispatch. When the queue is full the
// message simply stays pending; the schedule sweep re-enqueues it.
func (d *Dispatcher) Enqueue(messageID string) {
	select {
	case d.queue <- messageID:
	default:
		d.logger.WithField("message_id", messageID).Warn("dispatch queue full, leaving message pending")
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, messageID string) {
	// A message can sit in the queue twice: once from its creating
	// request and once from the schedule sweep. The inflight set keeps a
	// second worker off a message until its send has fully resolved, at
	// which point the status check below rejects the duplicate.
	if _, busy := d.inflight.LoadOrStore(messageID, struct{}{}); busy {
		return
	}
	defer d.inflight.Delete(messageID)

	msg, err := d.messages.Get(ctx, messageID)
	if err != nil {
		d.logger.WithError(err).WithField("message_id", messageID).Error("loading message for dispatch")
		return
	}
	if msg.Status != models.StatusPending {
		return
	}

	adapter, ch, err := d.registry.AdapterFor(ctx, msg.ChannelID)
	if err != nil {
		d.fail(ctx, messageID, err.Error())
		return
	}

	if ch.Type == models.ChannelEmail {
		score := channels.SpamScore(msg.Content)
		if err := d.messages.SetSpamScore(ctx, messageID, score); err != nil {
			d.logger.WithError(err).WithField("message_id", messageID).Warn("recording spam score")
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := adapter.Dispatch(sendCtx, msg)
	if err != nil {
		reason := err.Error()
		if sendCtx.Err() == context.DeadlineExceeded {
			reason = "dispatch timed out: " + reason
		}
		d.fail(ctx, messageID, reason)
		return
	}

	if result.ProviderRef != "" {
		if err := d.messages.SetProviderRef(ctx, messageID, result.ProviderRef); err != nil {
			d.logger.WithError(err).WithField("message_id", messageID).Warn("recording provider ref")
		}
	}
	if err := d.messages.MarkSent(ctx, messageID); err != nil {
		d.logger.WithError(err).WithField("message_id", messageID).Error("marking message sent")
		return
	}
	d.logger.WithFields(log.Fields{
		"message_id": messageID,
		"channel":    ch.Type,
	}).Info("message dispatched")
}

func (d *Dispatcher) fail(ctx context.Context, messageID, reason string) {
	if err := d.messages.MarkFailed(ctx, messageID, reason); err != nil {
		d.logger.WithError(err).WithField("message_id", messageID).Error("marking message failed")
		return
	}
	d.logger.WithFields(log.Fields{
		"message_id": messageID,
		"reason":     reason,
	}).Warn("dispatch failed")
}
