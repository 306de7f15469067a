package dispatch

import (
	"context"
	"testing"

	"comms-hub/internal/channels"
	"comms-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpgradesStatus(t *testing.T) {
	f := newDispatchFixture(t)
	tracker := NewTracker(f.messages, f.registry, 10)
	ctx := context.Background()

	msg := f.createMessage(t)
	require.NoError(t, f.messages.MarkSent(ctx, msg.ID))

	require.NoError(t, tracker.Apply(ctx, msg.ID, channels.StateDelivered))
	got, err := f.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)

	require.NoError(t, tracker.Apply(ctx, msg.ID, channels.StateRead))
	got, err = f.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)

	// Provider replays of earlier states never roll status back.
	require.NoError(t, tracker.Apply(ctx, msg.ID, channels.StateDelivered))
	got, err = f.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, got.Status)
}

func TestApplyUnknownIsNoop(t *testing.T) {
	f := newDispatchFixture(t)
	tracker := NewTracker(f.messages, f.registry, 10)
	ctx := context.Background()

	msg := f.createMessage(t)
	require.NoError(t, f.messages.MarkSent(ctx, msg.ID))

	require.NoError(t, tracker.Apply(ctx, msg.ID, channels.StateUnknown))
	require.NoError(t, tracker.Apply(ctx, msg.ID, channels.StateSent))

	got, err := f.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
}

func TestApplyFailed(t *testing.T) {
	f := newDispatchFixture(t)
	tracker := NewTracker(f.messages, f.registry, 10)
	ctx := context.Background()

	msg := f.createMessage(t)
	require.NoError(t, f.messages.MarkSent(ctx, msg.ID))

	require.NoError(t, tracker.Apply(ctx, msg.ID, channels.StateFailed))
	got, err := f.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestReconcilePollsProvider(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.status = channels.StateDelivered
	tracker := NewTracker(f.messages, f.registry, 10)
	ctx := context.Background()

	confirmed := f.createMessage(t)
	require.NoError(t, f.messages.MarkSent(ctx, confirmed.ID))
	require.NoError(t, f.messages.SetProviderRef(ctx, confirmed.ID, "wamid.1"))

	// No provider ref yet, so the pass has nothing to ask about.
	unrefd := f.createMessage(t)
	require.NoError(t, f.messages.MarkSent(ctx, unrefd.ID))

	require.NoError(t, tracker.Reconcile(ctx))

	got, err := f.messages.Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)

	got, err = f.messages.Get(ctx, unrefd.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
}
