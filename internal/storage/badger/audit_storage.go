package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/common"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AuditStorage implements the AuditStorage interface for Badger
type AuditStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAuditStorage creates a new AuditStorage instance
func NewAuditStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AuditStorage {
	return &AuditStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AuditStorage) SaveAudit(ctx context.Context, record *models.AuditRecord) error {
	if record.ID == "" {
		record.ID = common.NewAuditID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

func (s *AuditStorage) ListAudits(ctx context.Context, tenantID, targetID string, limit int) ([]*models.AuditRecord, error) {
	query := badgerhold.Where("TenantID").Eq(tenantID)
	if targetID != "" {
		query = query.And("TargetID").Eq(targetID)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.AuditRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	result := make([]*models.AuditRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
