package store

import (
	"context"
	"errors"

	"comms-hub/internal/models"

	"gorm.io/gorm"
)

// BatchStore manages email batch bookkeeping.
type BatchStore struct {
	db *gorm.DB
}

func NewBatchStore(db *gorm.DB) *BatchStore {
	return &BatchStore{db: db}
}

func (s *BatchStore) Create(ctx context.Context, batch *models.EmailBatch) error {
	return s.db.WithContext(ctx).Create(batch).Error
}

func (s *BatchStore) Get(ctx context.Context, id uint) (*models.EmailBatch, error) {
	var batch models.EmailBatch
	err := s.db.WithContext(ctx).First(&batch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *BatchStore) MarkProcessed(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.EmailBatch{}).
		Where("id = ?", id).
		Update("processed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
