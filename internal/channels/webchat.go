package channels

import (
	"context"

	"comms-hub/internal/models"
	"comms-hub/internal/ws"
)

// WebchatAdapter delivers messages to connected browser sessions through
// the websocket hub. The recipient address is the session id.
type WebchatAdapter struct {
	hub *ws.Hub
}

func NewWebchatAdapter(hub *ws.Hub) *WebchatAdapter {
	return &WebchatAdapter{hub: hub}
}

func (a *WebchatAdapter) Dispatch(ctx context.Context, msg *models.Message) (*DispatchResult, error) {
	delivered := a.hub.SendToSession(msg.Recipient, "new_message", map[string]interface{}{
		"id":      msg.ID,
		"content": msg.Content,
	})
	if !delivered {
		return nil, &TransportError{Channel: models.ChannelWebchat, Reason: "session not connected"}
	}
	return &DispatchResult{ProviderRef: msg.Recipient}, nil
}

// FetchStatus treats a still-connected session as confirmation of
// delivery; a closed session yields unknown, never a failure.
func (a *WebchatAdapter) FetchStatus(ctx context.Context, providerRef string) (DeliveryState, error) {
	if a.hub.IsConnected(providerRef) {
		return StateDelivered, nil
	}
	return StateUnknown, nil
}
