// Package batch bulk-creates pending messages from a stream of
// (recipient, variable bindings) pairs.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"time"

	"comms-hub/internal/models"
	"comms-hub/internal/store"
	"comms-hub/internal/template"

	log "github.com/sirupsen/logrus"
)

// Recipient is one row of a batch: where to send and the bindings to
// render the template with.
type Recipient struct {
	Address  string
	Bindings map[string]string
}

// RecipientSource streams batch rows. Next returns io.EOF when the
// stream is exhausted.
type RecipientSource interface {
	Next() (*Recipient, error)
}

// CSVSource reads recipients from CSV with a header row. The column named
// by addressColumn supplies the recipient address; every column becomes a
// binding.
type CSVSource struct {
	reader        *csv.Reader
	header        []string
	addressColumn string
}

func NewCSVSource(r io.Reader, addressColumn string) (*CSVSource, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	return &CSVSource{reader: cr, header: header, addressColumn: addressColumn}, nil
}

func (s *CSVSource) Next() (*Recipient, error) {
	record, err := s.reader.Read()
	if err != nil {
		return nil, err
	}

	bindings := map[string]string{}
	address := ""
	for i, col := range s.header {
		if i >= len(record) {
			break
		}
		bindings[col] = record[i]
		if col == s.addressColumn {
			address = record[i]
		}
	}
	return &Recipient{Address: address, Bindings: bindings}, nil
}

// Result summarizes one batch run.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Service turns batch rows into pending messages.
type Service struct {
	messages *store.MessageStore
	batches  *store.BatchStore
	logger   *log.Entry
}

func NewService(messages *store.MessageStore, batches *store.BatchStore) *Service {
	return &Service{
		messages: messages,
		batches:  batches,
		logger:   log.WithField("component", "batch"),
	}
}

// Process renders tmpl for every row of src and creates a pending message
// per recipient, linked to the batch. Rows with no recipient address or a
// failing render are skipped and counted, never aborting the batch.
// Messages stay pending until scheduleAt (nil means due immediately);
// the schedule sweep promotes them into the dispatch queue.
func (s *Service) Process(ctx context.Context, batchID uint, ch *models.Channel, tmpl *models.Template, src RecipientSource, scheduleAt *time.Time) (*Result, error) {
	if _, err := s.batches.Get(ctx, batchID); err != nil {
		return nil, err
	}

	result := &Result{}
	for {
		recipient, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if recipient.Address == "" {
			result.Skipped++
			continue
		}

		content, err := template.Render(tmpl.Name, tmpl.Content, recipient.Bindings)
		if err != nil {
			s.logger.WithError(err).WithField("recipient", recipient.Address).Warn("skipping row, render failed")
			result.Skipped++
			continue
		}
		subject := tmpl.Subject
		if subject != "" {
			subject, err = template.Render(tmpl.Name+":subject", tmpl.Subject, recipient.Bindings)
			if err != nil {
				s.logger.WithError(err).WithField("recipient", recipient.Address).Warn("skipping row, subject render failed")
				result.Skipped++
				continue
			}
		}

		msg := models.Message{
			ChannelID:   ch.ID,
			TemplateID:  &tmpl.ID,
			Recipient:   recipient.Address,
			Subject:     subject,
			Content:     content,
			ScheduledAt: scheduleAt,
		}
		if err := s.messages.Create(ctx, &msg); err != nil {
			return result, err
		}
		if ch.Type == models.ChannelEmail {
			details := models.EmailDetails{MessageID: msg.ID, BatchID: &batchID}
			if err := s.messages.CreateEmailDetails(ctx, &details); err != nil {
				return result, err
			}
		}
		result.Created++
	}

	if err := s.batches.MarkProcessed(ctx, batchID); err != nil {
		return result, err
	}
	s.logger.WithFields(log.Fields{
		"batch_id": batchID,
		"created":  result.Created,
		"skipped":  result.Skipped,
	}).Info("batch processed")
	return result, nil
}
