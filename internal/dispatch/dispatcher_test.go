package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"comms-hub/internal/channels"
	"comms-hub/internal/database"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeAdapter struct {
	ref       string
	err       error
	block     bool
	gate      chan struct{}
	calls     atomic.Int32
	status    channels.DeliveryState
	statusErr error
}

func (f *fakeAdapter) Dispatch(ctx context.Context, msg *models.Message) (*channels.DispatchResult, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &channels.DispatchResult{ProviderRef: f.ref}, nil
}

func (f *fakeAdapter) FetchStatus(ctx context.Context, providerRef string) (channels.DeliveryState, error) {
	if f.statusErr != nil {
		return channels.StateUnknown, f.statusErr
	}
	return f.status, nil
}

type dispatchFixture struct {
	db       *gorm.DB
	messages *store.MessageStore
	registry *channels.Registry
	channel  *models.Channel
	adapter  *fakeAdapter
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	ch := models.Channel{Name: "test wa", Type: models.ChannelWhatsApp, Configuration: []byte("{}"), IsActive: true}
	require.NoError(t, db.Create(&ch).Error)

	adapter := &fakeAdapter{}
	registry := channels.NewRegistry(db)
	registry.Register(models.ChannelWhatsApp, adapter)

	return &dispatchFixture{
		db:       db,
		messages: store.NewMessageStore(db),
		registry: registry,
		channel:  &ch,
		adapter:  adapter,
	}
}

func (f *dispatchFixture) createMessage(t *testing.T) *models.Message {
	t.Helper()
	msg := &models.Message{ChannelID: f.channel.ID, Recipient: "15550100", Content: "hi"}
	require.NoError(t, f.messages.Create(context.Background(), msg))
	require.NoError(t, f.messages.CreateWhatsAppDetails(context.Background(), &models.WhatsAppDetails{MessageID: msg.ID}))
	return msg
}

func (f *dispatchFixture) waitForStatus(t *testing.T, id, want string) *models.Message {
	t.Helper()
	var got *models.Message
	require.Eventually(t, func() bool {
		msg, err := f.messages.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = msg
		return msg.Status == want
	}, 3*time.Second, 10*time.Millisecond)
	return got
}

func TestDispatchSuccess(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.ref = "wamid.42"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(f.messages, f.registry, 2, time.Second)
	d.Start(ctx)
	defer func() { cancel(); d.Wait() }()

	msg := f.createMessage(t)
	d.Enqueue(msg.ID)

	got := f.waitForStatus(t, msg.ID, models.StatusSent)
	assert.NotNil(t, got.SentAt)
	assert.Equal(t, "wamid.42", f.messages.ProviderRef(context.Background(), got))
}

func TestDispatchTransportFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.err = &channels.TransportError{Channel: "whatsapp", Reason: "recipient rejected"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(f.messages, f.registry, 1, time.Second)
	d.Start(ctx)
	defer func() { cancel(); d.Wait() }()

	msg := f.createMessage(t)
	d.Enqueue(msg.ID)

	got := f.waitForStatus(t, msg.ID, models.StatusFailed)
	meta := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	assert.Contains(t, meta["error"], "recipient rejected")
}

func TestDispatchTimeout(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.block = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(f.messages, f.registry, 1, 50*time.Millisecond)
	d.Start(ctx)
	defer func() { cancel(); d.Wait() }()

	msg := f.createMessage(t)
	d.Enqueue(msg.ID)

	got := f.waitForStatus(t, msg.ID, models.StatusFailed)
	meta := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	assert.Contains(t, meta["error"], "dispatch timed out")
}

func TestDispatchInactiveChannel(t *testing.T) {
	f := newDispatchFixture(t)
	msg := f.createMessage(t)

	require.NoError(t, f.db.Model(&models.Channel{}).
		Where("id = ?", f.channel.ID).
		Update("is_active", false).Error)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(f.messages, f.registry, 1, time.Second)
	d.Start(ctx)
	defer func() { cancel(); d.Wait() }()

	d.Enqueue(msg.ID)
	f.waitForStatus(t, msg.ID, models.StatusFailed)
}

func TestDispatchQueuedTwiceSendsOnce(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.ref = "wamid.7"
	f.adapter.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(f.messages, f.registry, 2, time.Second)
	d.Start(ctx)
	defer func() { cancel(); d.Wait() }()

	msg := f.createMessage(t)
	d.Enqueue(msg.ID)

	// Wait until a worker holds the message inside the adapter, then
	// re-enqueue it the way the schedule sweep would.
	require.Eventually(t, func() bool {
		return f.adapter.calls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)
	d.Enqueue(msg.ID)
	time.Sleep(100 * time.Millisecond)

	close(f.adapter.gate)
	f.waitForStatus(t, msg.ID, models.StatusSent)
	assert.EqualValues(t, 1, f.adapter.calls.Load())
}

func TestDispatchSkipsNonPending(t *testing.T) {
	f := newDispatchFixture(t)
	f.adapter.err = errors.New("should never be called")

	msg := f.createMessage(t)
	require.NoError(t, f.messages.MarkSent(context.Background(), msg.ID))

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(f.messages, f.registry, 1, time.Second)
	d.Start(ctx)

	d.Enqueue(msg.ID)
	time.Sleep(100 * time.Millisecond)
	cancel()
	d.Wait()

	got, err := f.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
}
