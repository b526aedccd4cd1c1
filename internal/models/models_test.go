package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobValidate(t *testing.T) {
	valid := Job{
		TenantID:      "tenant-1",
		TargetID:      "target-1",
		ActionName:    "login",
		RequesterID:   "user-1",
		CredentialRef: "cred-1",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing tenant", func(j *Job) { j.TenantID = "" }},
		{"missing target", func(j *Job) { j.TargetID = "" }},
		{"missing action", func(j *Job) { j.ActionName = "" }},
		{"missing requester", func(j *Job) { j.RequesterID = "" }},
		{"missing credential ref", func(j *Job) { j.CredentialRef = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := valid
			tt.mutate(&job)
			assert.Error(t, job.Validate())
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusWaiting.IsTerminal())
	assert.False(t, JobStatusActive.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
}

func TestMatchesDashboard(t *testing.T) {
	target := &Target{
		DashboardURL: "https://panel.example.com/dashboard",
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"exact match", "https://panel.example.com/dashboard", true},
		{"deeper path", "https://panel.example.com/dashboard/accounts", true},
		{"with query", "https://panel.example.com/dashboard?tab=1", true},
		{"host case insensitive", "https://PANEL.EXAMPLE.COM/dashboard", true},
		{"login page", "https://panel.example.com/login", false},
		{"different host", "https://other.example.com/dashboard", false},
		{"unparseable", "://bad-url", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, target.MatchesDashboard(tt.url))
		})
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()

	future := now.Add(time.Hour)
	active := PersistedSession{ExpiresAt: &future}
	assert.False(t, active.Expired(now))

	past := now.Add(-time.Hour)
	stale := PersistedSession{ExpiresAt: &past}
	assert.True(t, stale.Expired(now))

	// No expiry recorded means the session cannot be trusted
	unknown := PersistedSession{}
	assert.True(t, unknown.Expired(now))
}

func TestEarliestCookieExpiry(t *testing.T) {
	now := time.Now().Unix()

	t.Run("earliest wins", func(t *testing.T) {
		cookies := []SessionCookie{
			{Name: "a", Expires: float64(now + 3600)},
			{Name: "b", Expires: float64(now + 60)},
			{Name: "c", Expires: float64(now + 7200)},
		}
		got := EarliestCookieExpiry(cookies)
		require.NotNil(t, got)
		assert.Equal(t, time.Unix(now+60, 0), *got)
	})

	t.Run("session cookies skipped", func(t *testing.T) {
		cookies := []SessionCookie{
			{Name: "a", Expires: -1},
			{Name: "b", Expires: float64(now + 60)},
		}
		got := EarliestCookieExpiry(cookies)
		require.NotNil(t, got)
		assert.Equal(t, time.Unix(now+60, 0), *got)
	})

	t.Run("no expiring cookies", func(t *testing.T) {
		cookies := []SessionCookie{
			{Name: "a", Expires: 0},
			{Name: "b", Expires: -1},
		}
		assert.Nil(t, EarliestCookieExpiry(cookies))
	})
}
