package channels

import (
	"context"
	"errors"
	"testing"

	"comms-hub/internal/config"
	"comms-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func TestSpamScore(t *testing.T) {
	assert.Zero(t, SpamScore("Your invoice for May is attached."))
	assert.InDelta(t, 0.2, SpamScore("FREE discount inside"), 1e-9)

	spam := "free discount offer limited time act now click here"
	assert.Greater(t, SpamScore(spam), SpamScoreThreshold)
}

type fakeSender struct {
	err  error
	sent []*gomail.Message
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func testEmailAdapter(sender mailSender) *EmailAdapter {
	return &EmailAdapter{
		cfg:    &config.Config{FromEmail: "noreply@example.com", FromName: "Comms"},
		sender: sender,
	}
}

func TestEmailDispatch(t *testing.T) {
	sender := &fakeSender{}
	a := testEmailAdapter(sender)

	msg := &models.Message{ID: "m-1", Recipient: "user@example.com", Subject: "Hi", Content: "Hello"}
	result, err := a.Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "m-1", result.ProviderRef)
	assert.Len(t, sender.sent, 1)
}

func TestEmailDispatchRefusesSpam(t *testing.T) {
	sender := &fakeSender{}
	a := testEmailAdapter(sender)

	msg := &models.Message{
		ID:        "m-2",
		Recipient: "user@example.com",
		Content:   "free discount offer limited time act now click here",
	}
	_, err := a.Dispatch(context.Background(), msg)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, models.ChannelEmail, transportErr.Channel)
	assert.Empty(t, sender.sent)
}

func TestEmailDispatchSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	a := testEmailAdapter(sender)

	msg := &models.Message{ID: "m-3", Recipient: "user@example.com", Content: "Hello"}
	_, err := a.Dispatch(context.Background(), msg)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorContains(t, err, "connection refused")
}

func TestEmailFetchStatusAlwaysUnknown(t *testing.T) {
	a := testEmailAdapter(&fakeSender{})

	state, err := a.FetchStatus(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, state)
}
