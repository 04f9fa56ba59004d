package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carevault.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func scanIdentity(row interface{ Scan(...any) error }) (*Identity, error) {
	var (
		ident  Identity
		locked sql.NullTime
	)
	err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.FullName,
		&ident.RoleID, &ident.RoleName, &ident.Active, &ident.FailedAttempts,
		&locked, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if locked.Valid {
		t := locked.Time
		ident.LockedUntil = &t
	}
	return &ident, nil
}

func (s *PGStore) CreateIdentity(ctx context.Context, ident *Identity) error {
	if ident.ID == "" {
		ident.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, email, password_hash, full_name, role_id, active)
		 values($1, lower($2), $3, $4, $5, $6)`,
		ident.ID, ident.Email, ident.PasswordHash, ident.FullName, ident.RoleID, ident.Active,
	)
	return err
}

func (s *PGStore) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select i.id, i.email, i.password_hash, i.full_name, i.role_id, r.name, i.active,
		        i.failed_attempts, i.locked_until, i.created_at, i.updated_at
		 from identities i join roles r on r.id = i.role_id
		 where i.id = $1`, id)
	return scanIdentity(row)
}

func (s *PGStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select i.id, i.email, i.password_hash, i.full_name, i.role_id, r.name, i.active,
		        i.failed_attempts, i.locked_until, i.created_at, i.updated_at
		 from identities i join roles r on r.id = i.role_id
		 where i.email = lower($1)`, email)
	return scanIdentity(row)
}

func (s *PGStore) FindRole(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, display_name, created_at from roles where id = $1`, id)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func insertAttempt(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, attempt *AuthAttempt) error {
	if attempt.ID == "" {
		attempt.ID = ids.New()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	identityID := sql.NullString{String: attempt.IdentityID, Valid: attempt.IdentityID != ""}
	reason := sql.NullString{String: attempt.FailureReason, Valid: attempt.FailureReason != ""}
	_, err := q.ExecContext(ctx,
		`insert into auth_attempts(id, identity_id, email, success, ip, user_agent, failure_reason, attempted_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		attempt.ID, identityID, attempt.Email, attempt.Success,
		attempt.IP, attempt.UserAgent, reason, attempt.AttemptedAt,
	)
	return err
}

func (s *PGStore) RecordAttempt(ctx context.Context, attempt *AuthAttempt) error {
	return insertAttempt(ctx, s.db, attempt)
}

func (s *PGStore) RecordFailedLogin(ctx context.Context, identityID string, attempt *AuthAttempt, policy LockoutPolicy) (int, *time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Row lock serializes concurrent failures for the same identity so the
	// counter cannot lose updates.
	var failed int
	err = tx.QueryRowContext(ctx,
		`select failed_attempts from identities where id = $1 for update`, identityID,
	).Scan(&failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}

	count, lockedUntil := policy.ApplyFailure(failed, time.Now().UTC())
	var until sql.NullTime
	if lockedUntil != nil {
		until = sql.NullTime{Time: *lockedUntil, Valid: true}
		attempt.FailureReason = ReasonInvalidPasswordLocked
	} else {
		attempt.FailureReason = ReasonInvalidPassword
	}
	if _, err := tx.ExecContext(ctx,
		`update identities set failed_attempts = $2, locked_until = $3, updated_at = now() where id = $1`,
		identityID, count, until,
	); err != nil {
		return 0, nil, err
	}
	if err := insertAttempt(ctx, tx, attempt); err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	return count, lockedUntil, nil
}

func (s *PGStore) RecordLogin(ctx context.Context, identityID string, session *Session, attempt *AuthAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update identities set failed_attempts = 0, locked_until = null, updated_at = now() where id = $1`,
		identityID,
	); err != nil {
		return err
	}
	if session.ID == "" {
		session.ID = ids.New()
	}
	if _, err := tx.ExecContext(ctx,
		`insert into sessions(id, identity_id, access_token, refresh_token, ip, user_agent, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		session.ID, session.IdentityID, session.AccessToken, session.RefreshToken,
		session.IP, session.UserAgent, session.ExpiresAt,
	); err != nil {
		return err
	}
	if err := insertAttempt(ctx, tx, attempt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) FindSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identity_id, access_token, refresh_token, ip, user_agent, expires_at, created_at
		 from sessions where refresh_token = $1`, refreshToken)
	var sess Session
	err := row.Scan(&sess.ID, &sess.IdentityID, &sess.AccessToken, &sess.RefreshToken,
		&sess.IP, &sess.UserAgent, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) UpdateSessionAccessToken(ctx context.Context, sessionID, accessToken string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set access_token = $2 where id = $1`, sessionID, accessToken)
	return err
}

func (s *PGStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, sessionID)
	return err
}

func (s *PGStore) DeleteSessionByAccessToken(ctx context.Context, accessToken string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where access_token = $1`, accessToken)
	return err
}

func (s *PGStore) CreatePasswordReset(ctx context.Context, reset *PasswordReset) error {
	if reset.ID == "" {
		reset.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into password_resets(id, identity_id, token, expires_at) values($1,$2,$3,$4)`,
		reset.ID, reset.IdentityID, reset.Token, reset.ExpiresAt,
	)
	return err
}

func (s *PGStore) FindPasswordResetByToken(ctx context.Context, token string) (*PasswordReset, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, identity_id, token, used, expires_at, created_at, used_at
		 from password_resets where token = $1 and used = false`, token)
	var (
		reset  PasswordReset
		usedAt sql.NullTime
	)
	err := row.Scan(&reset.ID, &reset.IdentityID, &reset.Token, &reset.Used,
		&reset.ExpiresAt, &reset.CreatedAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		reset.UsedAt = &t
	}
	return &reset, nil
}

func (s *PGStore) ConsumeReset(ctx context.Context, resetID, identityID, passwordHash string, usedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update password_resets set used = true, used_at = $2 where id = $1 and used = false`,
		resetID, usedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidResetToken
	}
	if _, err := tx.ExecContext(ctx,
		`update identities set password_hash = $2, failed_attempts = 0, locked_until = null, updated_at = now()
		 where id = $1`,
		identityID, passwordHash,
	); err != nil {
		return err
	}
	return tx.Commit()
}
