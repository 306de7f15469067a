package batch

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"comms-hub/internal/database"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type batchFixture struct {
	db       *gorm.DB
	messages *store.MessageStore
	batches  *store.BatchStore
	service  *Service
	channel  *models.Channel
	template *models.Template
	batch    *models.EmailBatch
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	f := &batchFixture{
		db:       db,
		messages: store.NewMessageStore(db),
		batches:  store.NewBatchStore(db),
	}
	f.service = NewService(f.messages, f.batches)

	ch := models.Channel{Name: "newsletter", Type: models.ChannelEmail, Configuration: []byte("{}"), IsActive: true}
	require.NoError(t, db.Create(&ch).Error)
	f.channel = &ch

	tmpl := models.Template{
		Name:      "welcome",
		ChannelID: ch.ID,
		Subject:   "Welcome, {{.name}}",
		Content:   "Hi {{.name}}, thanks for signing up.",
		Variables: []byte(`["name"]`),
	}
	require.NoError(t, db.Create(&tmpl).Error)
	f.template = &tmpl

	b := models.EmailBatch{Name: "june send"}
	require.NoError(t, f.batches.Create(context.Background(), &b))
	f.batch = &b
	return f
}

func TestCSVSource(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("email,name\na@example.com,Ada\nb@example.com,Bob\n"), "email")
	require.NoError(t, err)

	first, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", first.Address)
	assert.Equal(t, "Ada", first.Bindings["name"])
	assert.Equal(t, "a@example.com", first.Bindings["email"])

	second, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", second.Address)

	_, err = src.Next()
	assert.Error(t, err)
}

func TestProcessCreatesPendingMessages(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	src, err := NewCSVSource(strings.NewReader("email,name\na@example.com,Ada\n,Nameless\nb@example.com,Bob\n"), "email")
	require.NoError(t, err)

	result, err := f.service.Process(ctx, f.batch.ID, f.channel, f.template, src, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)

	var msgs []models.Message
	require.NoError(t, f.db.Order("created_at ASC").Find(&msgs).Error)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.StatusPending, msgs[0].Status)
	assert.Equal(t, "Hi Ada, thanks for signing up.", msgs[0].Content)
	assert.Equal(t, "Welcome, Ada", msgs[0].Subject)

	details, err := f.messages.GetEmailDetails(ctx, msgs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, details.BatchID)
	assert.Equal(t, f.batch.ID, *details.BatchID)

	processed, err := f.batches.Get(ctx, f.batch.ID)
	require.NoError(t, err)
	assert.True(t, processed.Processed)
}

func TestProcessSkipsUnrenderableRows(t *testing.T) {
	f := newBatchFixture(t)

	// The CSV lacks the column the template needs, so every row skips.
	src, err := NewCSVSource(strings.NewReader("email\na@example.com\n"), "email")
	require.NoError(t, err)

	result, err := f.service.Process(context.Background(), f.batch.ID, f.channel, f.template, src, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestProcessUnknownBatch(t *testing.T) {
	f := newBatchFixture(t)

	src, err := NewCSVSource(strings.NewReader("email\na@example.com\n"), "email")
	require.NoError(t, err)

	_, err = f.service.Process(context.Background(), 9999, f.channel, f.template, src, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
