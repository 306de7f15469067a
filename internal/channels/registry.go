// Package channels defines the transport adapter contract and the
// registry mapping channels to their adapters.
package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"comms-hub/internal/models"

	"gorm.io/gorm"
)

// DeliveryState is a provider-reported delivery status.
type DeliveryState string

const (
	StateUnknown   DeliveryState = "unknown"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
	StateFailed    DeliveryState = "failed"
)

// TransportError is an adapter dispatch failure: recipient rejected,
// network failure, auth failure.
type TransportError struct {
	Channel string
	Reason  string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transport: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s transport: %s", e.Channel, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DispatchResult reports a successful handover to the provider.
type DispatchResult struct {
	ProviderRef string
}

// Adapter is the per-channel-type transport. Dispatch hands a message to
// the provider; FetchStatus polls the provider for its delivery state.
type Adapter interface {
	Dispatch(ctx context.Context, msg *models.Message) (*DispatchResult, error)
	FetchStatus(ctx context.Context, providerRef string) (DeliveryState, error)
}

// ErrNoAdapter is returned when no adapter is registered for a channel's
// type or the channel is inactive.
var ErrNoAdapter = errors.New("no adapter for channel")

// Registry resolves a channel to its transport adapter. Adapters are
// registered per channel type; channel rows carry the configuration.
type Registry struct {
	db       *gorm.DB
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db:       db,
		adapters: make(map[string]Adapter),
	}
}

// Register installs the adapter for a channel type, replacing any
// previous one.
func (r *Registry) Register(channelType string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[channelType] = adapter
}

// Channel loads a channel row by id.
func (r *Registry) Channel(ctx context.Context, id uint) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).First(&ch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("channel %d: %w", id, ErrNoAdapter)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ChannelByType returns the first active channel of the given type.
func (r *Registry) ChannelByType(ctx context.Context, channelType string) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.WithContext(ctx).
		Where("type = ? AND is_active = ?", channelType, true).
		Order("id ASC").
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no active %s channel: %w", channelType, ErrNoAdapter)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// AdapterFor resolves the transport adapter for a channel. Inactive
// channels and unregistered types report ErrNoAdapter.
func (r *Registry) AdapterFor(ctx context.Context, channelID uint) (Adapter, *models.Channel, error) {
	ch, err := r.Channel(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	if !ch.IsActive {
		return nil, nil, fmt.Errorf("channel %d inactive: %w", channelID, ErrNoAdapter)
	}

	r.mu.RLock()
	adapter, ok := r.adapters[ch.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("channel type %q: %w", ch.Type, ErrNoAdapter)
	}
	return adapter, ch, nil
}
