// Package migrate applies versioned SQL migrations and idempotent seed
// files to the carevault database. Applied versions are recorded in a
// schema_migrations table so reruns are safe.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Runner walks a migrations directory and applies every .sql file that has
// not been recorded yet, in lexical order. Seed files live in a seeds/
// subdirectory and are re-applied on every run; they must be idempotent.
type Runner struct {
	db  *sql.DB
	dir string
}

func New(db *sql.DB, dir string) *Runner {
	return &Runner{db: db, dir: dir}
}

const bootstrapSQL = `
create table if not exists schema_migrations (
    version    text primary key,
    checksum   text not null,
    applied_at timestamptz not null default now()
);`

// Up applies pending migrations, then all seed files.
func (r *Runner) Up(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, bootstrapSQL); err != nil {
		return fmt.Errorf("migrate: bootstrap: %w", err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return err
	}

	files, err := sqlFiles(r.dir)
	if err != nil {
		return err
	}

	for _, f := range files {
		version := strings.TrimSuffix(filepath.Base(f), ".sql")
		body, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("migrate: read %s: %w", f, err)
		}
		sum := checksum(body)
		if prev, ok := applied[version]; ok {
			if prev != sum {
				return fmt.Errorf("migrate: %s changed after being applied", version)
			}
			continue
		}
		if err := r.apply(ctx, version, sum, string(body)); err != nil {
			return err
		}
	}

	return r.seed(ctx)
}

func (r *Runner) apply(ctx context.Context, version, sum, body string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("migrate: apply %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`insert into schema_migrations (version, checksum, applied_at) values ($1, $2, $3)`,
		version, sum, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("migrate: record %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", version, err)
	}
	return nil
}

// seed runs every seeds/*.sql file inside a single transaction. Seeds are
// not versioned; they rely on "on conflict do nothing" to stay idempotent.
func (r *Runner) seed(ctx context.Context) error {
	seedDir := filepath.Join(r.dir, "seeds")
	files, err := sqlFiles(seedDir)
	if err != nil || len(files) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin seeds: %w", err)
	}
	defer tx.Rollback()

	for _, f := range files {
		body, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("migrate: read seed %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate: seed %s: %w", filepath.Base(f), err)
		}
	}
	return tx.Commit()
}

func (r *Runner) appliedVersions(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `select version, checksum from schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var version, sum string
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, fmt.Errorf("migrate: scan applied: %w", err)
		}
		out[version] = sum
	}
	return out, rows.Err()
}

func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("migrate: read dir %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
