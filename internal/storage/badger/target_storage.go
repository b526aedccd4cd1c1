package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TargetStorage implements the TargetStorage interface for Badger
type TargetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTargetStorage creates a new TargetStorage instance
func NewTargetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TargetStorage {
	return &TargetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TargetStorage) SaveTarget(ctx context.Context, target *models.Target) error {
	if target.ID == "" {
		return fmt.Errorf("target ID is required")
	}
	if err := s.db.Store().Upsert(target.ID, target); err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}
	return nil
}

func (s *TargetStorage) GetTarget(ctx context.Context, targetID string) (*models.Target, error) {
	var target models.Target
	if err := s.db.Store().Get(targetID, &target); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("target not found: %s", targetID)
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &target, nil
}

func (s *TargetStorage) ListTargets(ctx context.Context, tenantID string) ([]*models.Target, error) {
	var targets []models.Target
	if err := s.db.Store().Find(&targets, badgerhold.Where("TenantID").Eq(tenantID).SortBy("Name")); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	result := make([]*models.Target, len(targets))
	for i := range targets {
		result[i] = &targets[i]
	}
	return result, nil
}
