package dispatch

import (
	"context"

	"comms-hub/internal/channels"
	"comms-hub/internal/store"

	log "github.com/sirupsen/logrus"
)

// Tracker reconciles provider-reported delivery state into message
// status. Upgrades are monotonic; unknown or unchanged provider status
// leaves a message untouched.
type Tracker struct {
	messages  *store.MessageStore
	registry  *channels.Registry
	batchSize int
	logger    *log.Entry
}

func NewTracker(messages *store.MessageStore, registry *channels.Registry, batchSize int) *Tracker {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Tracker{
		messages:  messages,
		registry:  registry,
		batchSize: batchSize,
		logger:    log.WithField("component", "tracker"),
	}
}

// Reconcile runs one bounded pass over unconfirmed messages, polling each
// message's provider for its current state.
func (t *Tracker) Reconcile(ctx context.Context) error {
	msgs, err := t.messages.Unconfirmed(ctx, t.batchSize)
	if err != nil {
		return err
	}

	for i := range msgs {
		msg := &msgs[i]
		adapter, _, err := t.registry.AdapterFor(ctx, msg.ChannelID)
		if err != nil {
			t.logger.WithError(err).WithField("message_id", msg.ID).Warn("no adapter for reconciliation")
			continue
		}

		ref := t.messages.ProviderRef(ctx, msg)
		if ref == "" {
			continue
		}

		state, err := adapter.FetchStatus(ctx, ref)
		if err != nil {
			t.logger.WithError(err).WithField("message_id", msg.ID).Warn("status fetch failed")
			continue
		}
		if err := t.Apply(ctx, msg.ID, state); err != nil {
			t.logger.WithError(err).WithField("message_id", msg.ID).Error("applying provider state")
		}
	}
	return nil
}

// Apply folds one provider-reported state into a message's status. Also
// used by webhook status callbacks, which deliver the same states pushed
// rather than polled.
func (t *Tracker) Apply(ctx context.Context, messageID string, state channels.DeliveryState) error {
	switch state {
	case channels.StateDelivered:
		return t.messages.MarkDelivered(ctx, messageID)
	case channels.StateRead:
		return t.messages.MarkRead(ctx, messageID)
	case channels.StateFailed:
		return t.messages.MarkFailed(ctx, messageID, "provider reported failure")
	default:
		// sent/unknown: nothing to upgrade
		return nil
	}
}
