package models

import "time"

// Credential holds the stored login for one operator console account.
// Looked up by Ref when a job needs re-authentication.
type Credential struct {
	Ref       string    `json:"ref" badgerhold:"key"` // Referenced by Job.CredentialRef
	TenantID  string    `json:"tenant_id"`
	TargetID  string    `json:"target_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether the credential is unusable for a login attempt
func (c *Credential) Empty() bool {
	return c == nil || c.Username == "" || c.Password == ""
}
