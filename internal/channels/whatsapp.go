package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"comms-hub/internal/config"
	"comms-hub/internal/models"
)

const graphAPIBase = "https://graph.facebook.com/v19.0"

// WhatsAppAdapter dispatches messages through the WhatsApp Cloud API.
type WhatsAppAdapter struct {
	cfg     *config.Config
	client  *http.Client
	baseURL string
}

func NewWhatsAppAdapter(cfg *config.Config) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		cfg:     cfg,
		client:  &http.Client{},
		baseURL: graphAPIBase,
	}
}

type waTextMessage struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             waTextBody `json:"text"`
}

type waTextBody struct {
	Body string `json:"body"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type waStatusResponse struct {
	Status string `json:"status"`
}

// Dispatch sends a text message and returns the provider's message id.
func (a *WhatsAppAdapter) Dispatch(ctx context.Context, msg *models.Message) (*DispatchResult, error) {
	payload := waTextMessage{
		MessagingProduct: "whatsapp",
		To:               msg.Recipient,
		Type:             "text",
		Text:             waTextBody{Body: msg.Content},
	}

	url := fmt.Sprintf("%s/%s/messages", a.baseURL, a.cfg.PhoneNumberID)
	body, err := a.request(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, &TransportError{Channel: models.ChannelWhatsApp, Reason: "send rejected", Err: err}
	}

	var resp waSendResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Messages) == 0 {
		return nil, &TransportError{Channel: models.ChannelWhatsApp, Reason: "malformed provider response", Err: err}
	}
	return &DispatchResult{ProviderRef: resp.Messages[0].ID}, nil
}

// FetchStatus polls the provider for a message's delivery state. Statuses
// the provider does not report map to StateUnknown so the tracker leaves
// the record untouched.
func (a *WhatsAppAdapter) FetchStatus(ctx context.Context, providerRef string) (DeliveryState, error) {
	if providerRef == "" {
		return StateUnknown, nil
	}

	url := fmt.Sprintf("%s/%s?fields=status", a.baseURL, providerRef)
	body, err := a.request(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StateUnknown, &TransportError{Channel: models.ChannelWhatsApp, Reason: "status fetch failed", Err: err}
	}

	var resp waStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StateUnknown, nil
	}
	switch resp.Status {
	case "sent", "accepted":
		return StateSent, nil
	case "delivered":
		return StateDelivered, nil
	case "read":
		return StateRead, nil
	case "failed", "undelivered":
		return StateFailed, nil
	default:
		return StateUnknown, nil
	}
}

func (a *WhatsAppAdapter) request(ctx context.Context, method, url string, payload interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.WhatsAppToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return body, nil
}
