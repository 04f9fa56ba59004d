package vault

import "context"

// Store describes persistence for protected records and their audit trail.
// CreateBatch and UpdateRecord commit the record mutation and its audit
// entry as one unit.
type Store interface {
	// CreateBatch inserts every staged record plus the batch audit entry,
	// all-or-nothing.
	CreateBatch(ctx context.Context, records []*Record, audit *AuditEntry) error

	// ListByOwner returns one page of the owner's records, newest first,
	// with the total count before pagination. A non-empty search term is a
	// case-insensitive substring match on the plaintext patient id.
	ListByOwner(ctx context.Context, ownerID string, page, limit int, search string) ([]*Record, int, error)

	// FindForOwner returns the record only when it exists and is owned by
	// ownerID; both misses surface as ErrRecordNotFound.
	FindForOwner(ctx context.Context, recordID, ownerID string) (*Record, error)

	// UpdateRecord persists the changed ciphertext fields and the EDIT
	// audit entry as one unit.
	UpdateRecord(ctx context.Context, record *Record, audit *AuditEntry) error

	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// ListAudit returns one page of the actor's audit entries, most recent
	// first, with the total count.
	ListAudit(ctx context.Context, actorID string, page, limit int) ([]*AuditEntry, int, error)
}
