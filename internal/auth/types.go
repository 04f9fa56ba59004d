package auth

import "time"

// Identity is a user account with its credential and lock state.
type Identity struct {
	ID             string
	Email          string
	PasswordHash   string
	FullName       string
	RoleID         string
	RoleName       string
	Active         bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Role names a coarse access level (admin, manager, user).
type Role struct {
	ID          string
	Name        string
	DisplayName string
	CreatedAt   time.Time
}

// NewIdentity carries the fields required to register an account.
type NewIdentity struct {
	Email    string
	Password string
	FullName string
	RoleID   string
}

// Session correlates an issued token pair with a user and client metadata.
// Revocation is deletion: a session row exists exactly as long as its
// refresh token is honored.
type Session struct {
	ID           string
	IdentityID   string
	AccessToken  string
	RefreshToken string
	IP           string
	UserAgent    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// AuthAttempt is one row of the append-only login attempt trail.
type AuthAttempt struct {
	ID            string
	IdentityID    string // empty when the submitted email is unknown
	Email         string
	Success       bool
	IP            string
	UserAgent     string
	FailureReason string
	AttemptedAt   time.Time
}

// Attempt failure reasons recorded in the audit trail.
const (
	ReasonUserNotFound          = "user not found"
	ReasonAccountDisabled       = "account disabled"
	ReasonAccountLocked         = "account locked"
	ReasonInvalidPassword       = "invalid password"
	ReasonInvalidPasswordLocked = "invalid password - account locked"
)

// PasswordReset is a single-use, time-bound reset credential.
type PasswordReset struct {
	ID         string
	IdentityID string
	Token      string
	Used       bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UsedAt     *time.Time
}
