package vault

import "time"

// Record is a protected patient record. The business identifier stays in
// plaintext and is the only searchable field; every other attribute is
// persisted as ciphertext and exists in plaintext only transiently in
// memory while a request is handled.
type Record struct {
	ID          string
	PatientID   string
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordRow is one raw row of a bulk upload, before validation and
// encryption.
type RecordRow struct {
	PatientID   string `json:"patient_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
}

// RecordPatch carries the field changes of an update; nil fields are left
// untouched.
type RecordPatch struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *string `json:"date_of_birth"`
	Gender      *string `json:"gender"`
}

// Audit actions recorded in the append-only trail.
const (
	ActionUpload = "UPLOAD"
	ActionAccess = "ACCESS"
	ActionEdit   = "EDIT"
)

// AuditEntry is one row of the append-only record access trail. Entries
// outlive the records they reference, so RecordID is a weak link.
type AuditEntry struct {
	ID        string
	Action    string
	ActorID   string
	RecordID  string // empty when the entry covers a batch or a listing
	Details   string
	IP        string
	CreatedAt time.Time
}
