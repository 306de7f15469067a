package channels

import (
	"context"
	"fmt"
	"strings"

	"comms-hub/internal/config"
	"comms-hub/internal/models"

	"gopkg.in/gomail.v2"
)

// spamKeywords feed the naive spam heuristic applied before dispatch.
var spamKeywords = []string{"free", "discount", "offer", "limited time", "act now", "click here"}

// SpamScoreThreshold is the score above which an email is refused.
const SpamScoreThreshold = 0.7

// SpamScore rates email content between 0 and 1 by keyword density.
func SpamScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
		}
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailAdapter dispatches messages over SMTP. Email providers report no
// per-message status, so FetchStatus always answers unknown; opens are
// observed through the tracking callback instead.
type EmailAdapter struct {
	cfg    *config.Config
	sender mailSender
}

func NewEmailAdapter(cfg *config.Config) *EmailAdapter {
	return &EmailAdapter{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

func (a *EmailAdapter) Dispatch(ctx context.Context, msg *models.Message) (*DispatchResult, error) {
	if SpamScore(msg.Content) > SpamScoreThreshold {
		return nil, &TransportError{Channel: models.ChannelEmail, Reason: "spam score above threshold"}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", a.cfg.FromName, a.cfg.FromEmail))
	m.SetHeader("To", msg.Recipient)
	if msg.Subject != "" {
		m.SetHeader("Subject", msg.Subject)
	}
	m.SetBody("text/html", msg.Content)

	done := make(chan error, 1)
	go func() {
		done <- a.sender.DialAndSend(m)
	}()
	select {
	case err := <-done:
		if err != nil {
			return nil, &TransportError{Channel: models.ChannelEmail, Reason: "smtp send failed", Err: err}
		}
	case <-ctx.Done():
		return nil, &TransportError{Channel: models.ChannelEmail, Reason: "send timed out", Err: ctx.Err()}
	}

	// SMTP gives no queryable reference; the message id doubles as one.
	return &DispatchResult{ProviderRef: msg.ID}, nil
}

func (a *EmailAdapter) FetchStatus(ctx context.Context, providerRef string) (DeliveryState, error) {
	return StateUnknown, nil
}
