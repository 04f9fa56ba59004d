package vault

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

func insertAuditEntry(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	recordID := sql.NullString{String: entry.RecordID, Valid: entry.RecordID != ""}
	_, err := q.ExecContext(ctx,
		`insert into record_audit_log(id, action, actor_id, record_id, details, ip, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.Action, entry.ActorID, recordID, entry.Details, entry.IP, entry.CreatedAt,
	)
	return err
}

func (s *PGStore) CreateBatch(ctx context.Context, records []*Record, audit *AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = ids.New()
		}
		if _, err := tx.ExecContext(ctx,
			`insert into patient_records(id, patient_id, first_name, last_name, date_of_birth, gender, owner_id)
			 values($1,$2,$3,$4,$5,$6,$7)`,
			rec.ID, rec.PatientID, rec.FirstName, rec.LastName, rec.DateOfBirth, rec.Gender, rec.OwnerID,
		); err != nil {
			return err
		}
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID string, page, limit int, search string) ([]*Record, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	where := `owner_id = $1`
	args := []any{ownerID}
	if search != "" {
		where += ` and patient_id ilike '%' || $2 || '%'`
		args = append(args, search)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from patient_records where `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `select id, patient_id, first_name, last_name, date_of_birth, gender, owner_id, created_at, updated_at
		 from patient_records where ` + where + ` order by created_at desc`
	if search != "" {
		query += ` offset $3 limit $4`
	} else {
		query += ` offset $2 limit $3`
	}
	args = append(args, (page-1)*limit, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.FirstName, &rec.LastName,
			&rec.DateOfBirth, &rec.Gender, &rec.OwnerID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}

func (s *PGStore) FindForOwner(ctx context.Context, recordID, ownerID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, patient_id, first_name, last_name, date_of_birth, gender, owner_id, created_at, updated_at
		 from patient_records where id = $1 and owner_id = $2`, recordID, ownerID)
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.FirstName, &rec.LastName,
		&rec.DateOfBirth, &rec.Gender, &rec.OwnerID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *PGStore) UpdateRecord(ctx context.Context, record *Record, audit *AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update patient_records
		 set first_name = $3, last_name = $4, date_of_birth = $5, gender = $6, updated_at = now()
		 where id = $1 and owner_id = $2`,
		record.ID, record.OwnerID, record.FirstName, record.LastName, record.DateOfBirth, record.Gender,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	if err := insertAuditEntry(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	return insertAuditEntry(ctx, s.db, entry)
}

func (s *PGStore) ListAudit(ctx context.Context, actorID string, page, limit int) ([]*AuditEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from record_audit_log where actor_id = $1`, actorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select id, action, actor_id, record_id, details, ip, created_at
		 from record_audit_log where actor_id = $1
		 order by created_at desc offset $2 limit $3`,
		actorID, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			entry    AuditEntry
			recordID sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.ActorID, &recordID,
			&entry.Details, &entry.IP, &entry.CreatedAt); err != nil {
			return nil, 0, err
		}
		entry.RecordID = recordID.String
		entries = append(entries, &entry)
	}
	return entries, total, rows.Err()
}
