package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"carevault.org/internal/ids"
)

// memStore is an in-memory Store used by service tests. Mutations that the
// contract requires to be atomic are applied under one lock acquisition.
type memStore struct {
	mu         sync.Mutex
	identities map[string]*Identity
	roles      map[string]*Role
	sessions   map[string]*Session
	attempts   []*AuthAttempt
	resets     map[string]*PasswordReset
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		identities: make(map[string]*Identity),
		roles:      make(map[string]*Role),
		sessions:   make(map[string]*Session),
		resets:     make(map[string]*PasswordReset),
	}
}

func (m *memStore) addRole(role *Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	m.roles[role.ID] = role
}

func (m *memStore) CreateIdentity(_ context.Context, ident *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ident.ID == "" {
		ident.ID = ids.New()
	}
	ident.Email = strings.ToLower(ident.Email)
	cp := *ident
	m.identities[ident.ID] = &cp
	return nil
}

func (m *memStore) FindIdentity(_ context.Context, id string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (m *memStore) FindIdentityByEmail(_ context.Context, email string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.identities {
		if ident.Email == strings.ToLower(email) {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindRole(_ context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (m *memStore) RecordAttempt(_ context.Context, attempt *AuthAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAttemptLocked(attempt)
	return nil
}

func (m *memStore) appendAttemptLocked(attempt *AuthAttempt) {
	if attempt.ID == "" {
		attempt.ID = ids.New()
	}
	cp := *attempt
	m.attempts = append(m.attempts, &cp)
}

func (m *memStore) RecordFailedLogin(_ context.Context, identityID string, attempt *AuthAttempt, policy LockoutPolicy) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[identityID]
	if !ok {
		return 0, nil, ErrNotFound
	}
	count, lockedUntil := policy.ApplyFailure(ident.FailedAttempts, time.Now().UTC())
	ident.FailedAttempts = count
	ident.LockedUntil = lockedUntil
	if lockedUntil != nil {
		attempt.FailureReason = ReasonInvalidPasswordLocked
	} else {
		attempt.FailureReason = ReasonInvalidPassword
	}
	m.appendAttemptLocked(attempt)
	return count, lockedUntil, nil
}

func (m *memStore) RecordLogin(_ context.Context, identityID string, session *Session, attempt *AuthAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[identityID]
	if !ok {
		return ErrNotFound
	}
	ident.FailedAttempts = 0
	ident.LockedUntil = nil
	if session.ID == "" {
		session.ID = ids.New()
	}
	cp := *session
	m.sessions[session.ID] = &cp
	m.appendAttemptLocked(attempt)
	return nil
}

func (m *memStore) FindSessionByRefreshToken(_ context.Context, refreshToken string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if sess.RefreshToken == refreshToken {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UpdateSessionAccessToken(_ context.Context, sessionID, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.AccessToken = accessToken
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *memStore) DeleteSessionByAccessToken(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.AccessToken == accessToken {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, reset *PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset.ID == "" {
		reset.ID = ids.New()
	}
	cp := *reset
	m.resets[reset.ID] = &cp
	return nil
}

func (m *memStore) FindPasswordResetByToken(_ context.Context, token string) (*PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reset := range m.resets {
		if reset.Token == token && !reset.Used {
			cp := *reset
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ConsumeReset(_ context.Context, resetID, identityID, passwordHash string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reset, ok := m.resets[resetID]
	if !ok || reset.Used {
		return ErrInvalidResetToken
	}
	reset.Used = true
	t := usedAt
	reset.UsedAt = &t
	ident, ok := m.identities[identityID]
	if !ok {
		return ErrNotFound
	}
	ident.PasswordHash = passwordHash
	ident.FailedAttempts = 0
	ident.LockedUntil = nil
	return nil
}

func (m *memStore) attemptRows() []*AuthAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuthAttempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
