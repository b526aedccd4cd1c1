package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CaptchaStorage implements the CaptchaStorage interface for Badger
type CaptchaStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCaptchaStorage creates a new CaptchaStorage instance
func NewCaptchaStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CaptchaStorage {
	return &CaptchaStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CaptchaStorage) SaveCaptcha(ctx context.Context, record *models.CaptchaRecord) error {
	if record.ID == "" {
		return fmt.Errorf("captcha record ID is required")
	}
	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save captcha record: %w", err)
	}
	return nil
}

func (s *CaptchaStorage) SaveCaptchaImage(ctx context.Context, image *models.CaptchaImage) error {
	if image.ID == "" {
		return fmt.Errorf("captcha image ID is required")
	}
	if err := s.db.Store().Insert(image.ID, image); err != nil {
		return fmt.Errorf("failed to save captcha image: %w", err)
	}
	return nil
}

func (s *CaptchaStorage) GetCaptchaImage(ctx context.Context, imageID string) (*models.CaptchaImage, error) {
	var image models.CaptchaImage
	if err := s.db.Store().Get(imageID, &image); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("captcha image not found: %s", imageID)
		}
		return nil, fmt.Errorf("failed to get captcha image: %w", err)
	}
	return &image, nil
}

func (s *CaptchaStorage) UpdateCaptchaOutcome(ctx context.Context, recordID string, outcome models.CaptchaOutcome) error {
	var record models.CaptchaRecord
	if err := s.db.Store().Get(recordID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("captcha record not found: %s", recordID)
		}
		return fmt.Errorf("failed to get captcha record: %w", err)
	}

	record.Outcome = outcome
	if err := s.db.Store().Upsert(recordID, &record); err != nil {
		return fmt.Errorf("failed to update captcha outcome: %w", err)
	}
	return nil
}
