package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/panelops/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func futureTime(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}

func TestGetActiveSessionNewestWins(t *testing.T) {
	db := newTestDB(t)
	storage := NewSessionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	older := &models.PersistedSession{
		ID:           "sess-old",
		UserID:       "user-1",
		CredentialID: "cred-1",
		IsActive:     true,
		ExpiresAt:    futureTime(time.Hour),
		CreatedAt:    time.Now().Add(-time.Hour),
	}
	newer := &models.PersistedSession{
		ID:           "sess-new",
		UserID:       "user-1",
		CredentialID: "cred-1",
		IsActive:     true,
		ExpiresAt:    futureTime(time.Hour),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, storage.SaveSession(ctx, older))
	require.NoError(t, storage.SaveSession(ctx, newer))

	got, err := storage.GetActiveSession(ctx, "user-1", "cred-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sess-new", got.ID)
}

func TestGetActiveSessionLazyExpiry(t *testing.T) {
	db := newTestDB(t)
	storage := NewSessionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	expired := &models.PersistedSession{
		ID:           "sess-expired",
		UserID:       "user-1",
		CredentialID: "cred-1",
		IsActive:     true,
		ExpiresAt:    futureTime(-time.Minute),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, storage.SaveSession(ctx, expired))

	got, err := storage.GetActiveSession(ctx, "user-1", "cred-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The expired row must have been flipped inactive, not just skipped
	var stored models.PersistedSession
	require.NoError(t, db.Store().Get("sess-expired", &stored))
	assert.False(t, stored.IsActive)
}

func TestGetActiveSessionNilExpiryTreatedInactive(t *testing.T) {
	db := newTestDB(t)
	storage := NewSessionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	noExpiry := &models.PersistedSession{
		ID:           "sess-noexp",
		UserID:       "user-1",
		CredentialID: "cred-1",
		IsActive:     true,
		ExpiresAt:    nil,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, storage.SaveSession(ctx, noExpiry))

	got, err := storage.GetActiveSession(ctx, "user-1", "cred-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeactivateSessions(t *testing.T) {
	db := newTestDB(t)
	storage := NewSessionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, storage.SaveSession(ctx, &models.PersistedSession{
			ID:           id,
			UserID:       "user-1",
			CredentialID: "cred-1",
			IsActive:     true,
			ExpiresAt:    futureTime(time.Hour),
			CreatedAt:    time.Now(),
		}))
	}

	require.NoError(t, storage.DeactivateSessions(ctx, "user-1", "cred-1"))

	got, err := storage.GetActiveSession(ctx, "user-1", "cred-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSweepExpired(t *testing.T) {
	db := newTestDB(t)
	storage := NewSessionStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveSession(ctx, &models.PersistedSession{
		ID: "live", UserID: "u", CredentialID: "c",
		IsActive: true, ExpiresAt: futureTime(time.Hour), CreatedAt: time.Now(),
	}))
	require.NoError(t, storage.SaveSession(ctx, &models.PersistedSession{
		ID: "stale", UserID: "u", CredentialID: "c",
		IsActive: true, ExpiresAt: futureTime(-time.Hour), CreatedAt: time.Now(),
	}))

	swept, err := storage.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := storage.GetActiveSession(ctx, "u", "c")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "live", got.ID)
}
