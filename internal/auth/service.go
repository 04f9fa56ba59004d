package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carevault.org/internal/ids"
	"carevault.org/internal/obs"
)

const resetTokenTTL = time.Hour

// Service composes the credential store, hasher, token issuer and lockout
// policy into the login, refresh, logout and password-reset flows. Every
// failure it returns is a value from the errors.go taxonomy; the attempt
// trail is written before any failure is surfaced.
type Service struct {
	store  Store
	hasher Hasher
	tokens *TokenIssuer
	policy LockoutPolicy
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLockoutPolicy overrides the default failure threshold and duration.
func WithLockoutPolicy(policy LockoutPolicy) ServiceOption {
	return func(s *Service) {
		if policy.Threshold > 0 && policy.Duration > 0 {
			s.policy = policy
		}
	}
}

// WithHasher overrides the password hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) { s.hasher = h }
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, tokens *TokenIssuer, opts ...ServiceOption) *Service {
	svc := &Service{
		store:  store,
		hasher: NewHasher(0),
		tokens: tokens,
		policy: DefaultLockoutPolicy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// TokenPair is the result of a successful authentication.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Register creates a new identity with a hashed password.
func (s *Service) Register(ctx context.Context, in NewIdentity) (*Identity, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.store.FindIdentityByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	role, err := s.store.FindRole(ctx, in.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownRole
		}
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	ident := &Identity{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		RoleID:       role.ID,
		RoleName:     role.Name,
		Active:       true,
	}
	if err := s.store.CreateIdentity(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

// Login runs the authentication state machine: identity lookup, active
// check, lock check, password verification, then the single durable commit
// of counter reset + session + attempt.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*Identity, TokenPair, error) {
	email = normalizeEmail(email)
	now := s.now().UTC()
	attempt := &AuthAttempt{
		Email:       email,
		IP:          ip,
		UserAgent:   userAgent,
		AttemptedAt: now,
	}

	ident, err := s.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			attempt.FailureReason = ReasonUserNotFound
			if err := s.store.RecordAttempt(ctx, attempt); err != nil {
				return nil, TokenPair{}, err
			}
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	attempt.IdentityID = ident.ID

	if !ident.Active {
		attempt.FailureReason = ReasonAccountDisabled
		if err := s.store.RecordAttempt(ctx, attempt); err != nil {
			return nil, TokenPair{}, err
		}
		return nil, TokenPair{}, ErrAccountDisabled
	}

	if s.policy.Locked(ident.LockedUntil, now) {
		attempt.FailureReason = ReasonAccountLocked
		if err := s.store.RecordAttempt(ctx, attempt); err != nil {
			return nil, TokenPair{}, err
		}
		remaining := s.policy.Remaining(ident.LockedUntil, now)
		minutes := int(remaining.Round(time.Minute) / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		return nil, TokenPair{}, fmt.Errorf("%w; try again in %d minutes", ErrAccountLocked, minutes)
	}

	if !s.hasher.Verify(ident.PasswordHash, password) {
		_, lockedUntil, err := s.store.RecordFailedLogin(ctx, ident.ID, attempt, s.policy)
		if err != nil {
			return nil, TokenPair{}, err
		}
		if lockedUntil != nil {
			obs.CountLockout()
		}
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.mintPair(ident, now)
	if err != nil {
		return nil, TokenPair{}, err
	}
	session := &Session{
		IdentityID:   ident.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IP:           ip,
		UserAgent:    userAgent,
		ExpiresAt:    pair.RefreshExpiresAt,
	}
	attempt.Success = true
	if err := s.store.RecordLogin(ctx, ident.ID, session, attempt); err != nil {
		return nil, TokenPair{}, err
	}
	ident.FailedAttempts = 0
	ident.LockedUntil = nil
	return ident, pair, nil
}

func (s *Service) mintPair(ident *Identity, now time.Time) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(ident.ID, ident.Email, ident.RoleName)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefresh(ident.ID, ident.Email, ident.RoleName)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.tokens.AccessTTL()),
		RefreshExpiresAt: now.Add(s.tokens.RefreshTTL()),
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; its session persists until expiry
// or logout.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Decode(refreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return "", ErrInvalidRefreshToken
	}
	sess, err := s.store.FindSessionByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}
	if s.now().UTC().After(sess.ExpiresAt) {
		if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
			return "", err
		}
		return "", ErrRefreshTokenExpired
	}
	access, err := s.tokens.IssueAccess(claims.Subject, claims.Email, claims.Role)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateSessionAccessToken(ctx, sess.ID, access); err != nil {
		return "", err
	}
	return access, nil
}

// Logout deletes the session owning the access token. Absence is not an
// error.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	return s.store.DeleteSessionByAccessToken(ctx, accessToken)
}

// RequestPasswordReset issues a one-hour reset token. An unknown email
// yields an empty token and no error so the caller can report a generic
// success message without leaking which emails are registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	ident, err := s.store.FindIdentityByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	token, err := ids.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	reset := &PasswordReset{
		IdentityID: ident.ID,
		Token:      token,
		ExpiresAt:  s.now().UTC().Add(resetTokenTTL),
	}
	if err := s.store.CreatePasswordReset(ctx, reset); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a reset token: new hash, lockout cleared, token
// marked used, one commit.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" || newPassword == "" {
		return ErrInvalidResetToken
	}
	reset, err := s.store.FindPasswordResetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if s.now().UTC().After(reset.ExpiresAt) {
		return ErrResetTokenExpired
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.store.ConsumeReset(ctx, reset.ID, reset.IdentityID, hash, s.now().UTC())
}

// Authenticate validates a bearer access token and loads its identity.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.tokens.Decode(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	ident, err := s.store.FindIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !ident.Active {
		return nil, ErrAccountDisabled
	}
	return ident, nil
}
