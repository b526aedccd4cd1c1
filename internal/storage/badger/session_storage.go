package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/interfaces"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) SaveSession(ctx context.Context, session *models.PersistedSession) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetActiveSession returns the current session for (userID, credentialID):
// the most recent active row by CreatedAt. Rows whose expiry is missing or in
// the past are flipped inactive on the way through (lazy expiry), so a stale
// session is invalidated the first time anyone asks for it.
func (s *SessionStorage) GetActiveSession(ctx context.Context, userID, credentialID string) (*models.PersistedSession, error) {
	var sessions []models.PersistedSession
	query := badgerhold.Where("UserID").Eq(userID).
		And("CredentialID").Eq(credentialID).
		And("IsActive").Eq(true).
		SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	now := time.Now()
	for i := range sessions {
		session := &sessions[i]
		if session.Expired(now) {
			session.IsActive = false
			if err := s.db.Store().Upsert(session.ID, session); err != nil {
				s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to flag expired session inactive")
			}
			continue
		}
		return session, nil
	}

	return nil, nil
}

func (s *SessionStorage) DeactivateSessions(ctx context.Context, userID, credentialID string) error {
	var sessions []models.PersistedSession
	query := badgerhold.Where("UserID").Eq(userID).
		And("CredentialID").Eq(credentialID).
		And("IsActive").Eq(true)
	if err := s.db.Store().Find(&sessions, query); err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}

	for i := range sessions {
		sessions[i].IsActive = false
		if err := s.db.Store().Upsert(sessions[i].ID, &sessions[i]); err != nil {
			return fmt.Errorf("failed to deactivate session %s: %w", sessions[i].ID, err)
		}
	}
	return nil
}

// SweepExpired flips every active-but-expired session inactive and returns the
// number of rows touched. Run on a cron schedule; the lazy read path makes the
// sweep a tidy-up rather than a correctness requirement.
func (s *SessionStorage) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var sessions []models.PersistedSession
	if err := s.db.Store().Find(&sessions, badgerhold.Where("IsActive").Eq(true)); err != nil {
		return 0, fmt.Errorf("failed to query active sessions: %w", err)
	}

	swept := 0
	for i := range sessions {
		session := &sessions[i]
		if !session.Expired(now) {
			continue
		}
		session.IsActive = false
		if err := s.db.Store().Upsert(session.ID, session); err != nil {
			return swept, fmt.Errorf("failed to sweep session %s: %w", session.ID, err)
		}
		swept++
	}

	if swept > 0 {
		s.logger.Debug().Int("swept", swept).Msg("Expired sessions flagged inactive")
	}
	return swept, nil
}
