package auth

import (
	"context"
	"time"
)

// Store describes persistence for the credential lifecycle. Implementations
// must make the composite operations atomic: concurrent logins for the same
// identity may not lose counter updates, and a cancelled call may not leave
// partial state.
type Store interface {
	// Identities.
	CreateIdentity(ctx context.Context, id *Identity) error
	FindIdentity(ctx context.Context, id string) (*Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	FindRole(ctx context.Context, id string) (*Role, error)

	// RecordAttempt appends a single attempt row. Used for failures that do
	// not mutate the identity (unknown email, disabled, already locked).
	RecordAttempt(ctx context.Context, attempt *AuthAttempt) error

	// RecordFailedLogin locks the identity row, applies the lockout policy
	// to the failure counter, appends the attempt row and commits as one
	// unit. The attempt's failure reason is set according to whether the
	// account transitioned into the locked state. Returns the new counter
	// value and the lock expiry, if one was set.
	RecordFailedLogin(ctx context.Context, identityID string, attempt *AuthAttempt, policy LockoutPolicy) (int, *time.Time, error)

	// RecordLogin clears the failure counter and lock, inserts the session
	// and the success attempt, and commits as one unit.
	RecordLogin(ctx context.Context, identityID string, session *Session, attempt *AuthAttempt) error

	// Sessions.
	FindSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	UpdateSessionAccessToken(ctx context.Context, sessionID, accessToken string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteSessionByAccessToken(ctx context.Context, accessToken string) error

	// Password resets.
	CreatePasswordReset(ctx context.Context, reset *PasswordReset) error
	FindPasswordResetByToken(ctx context.Context, token string) (*PasswordReset, error)

	// ConsumeReset sets the identity's password hash, clears its lockout
	// state, marks the reset token used and commits as one unit.
	ConsumeReset(ctx context.Context, resetID, identityID, passwordHash string, usedAt time.Time) error
}
