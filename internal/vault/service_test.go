package vault

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newVaultFixture(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewService(store, testCipher(t)), store
}

func sampleRows() []RecordRow {
	return []RecordRow{
		{PatientID: "P-001", FirstName: "Jane", LastName: "Doe", DateOfBirth: "1985-03-14", Gender: "F"},
		{PatientID: "", FirstName: "NoID", LastName: "Smith"},
		{PatientID: "P-003", FirstName: "John", LastName: "Roe", DateOfBirth: "1990-07-01", Gender: "M"},
	}
}

func TestBulkCreateSkipsInvalidRows(t *testing.T) {
	svc, store := newVaultFixture(t)

	accepted, skipped, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows(), "10.0.0.1")
	if err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if accepted != 2 {
		t.Fatalf("expected 2 accepted rows, got %d", accepted)
	}
	if len(skipped) != 1 || !strings.Contains(skipped[0], "row 2") {
		t.Fatalf("unexpected skip notes: %v", skipped)
	}

	audit := store.auditRows()
	if len(audit) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit))
	}
	if audit[0].Action != ActionUpload || !strings.Contains(audit[0].Details, "2 patients") {
		t.Fatalf("unexpected audit entry: %+v", audit[0])
	}
}

func TestBulkCreateStoresCiphertextOnly(t *testing.T) {
	svc, store := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows()[:1], ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	for _, rec := range store.records {
		if rec.FirstName == "Jane" || rec.LastName == "Doe" || rec.DateOfBirth == "1985-03-14" {
			t.Fatalf("protected attribute persisted in plaintext: %+v", rec)
		}
		if rec.PatientID != "P-001" {
			t.Fatalf("business identifier must stay plaintext: %q", rec.PatientID)
		}
	}
}

func TestListDecryptsAndAudits(t *testing.T) {
	svc, store := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows(), ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	records, total, err := svc.List(context.Background(), "owner-a", 1, 20, "", "10.0.0.9")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("expected 2 records, got %d (total %d)", len(records), total)
	}
	names := map[string]bool{}
	for _, rec := range records {
		names[rec.FirstName] = true
	}
	if !names["Jane"] || !names["John"] {
		t.Fatalf("records not decrypted: %v", names)
	}

	audit := store.auditRows()
	last := audit[len(audit)-1]
	if last.Action != ActionAccess || !strings.Contains(last.Details, "page=1") {
		t.Fatalf("unexpected access audit: %+v", last)
	}
}

func TestListFiltersBySearchTerm(t *testing.T) {
	svc, _ := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows(), ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	records, total, err := svc.List(context.Background(), "owner-a", 1, 20, "p-003", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].PatientID != "P-003" {
		t.Fatalf("search did not filter: total=%d records=%+v", total, records)
	}
}

func TestListIsolatesOwners(t *testing.T) {
	svc, _ := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows(), ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if _, _, err := svc.BulkCreate(context.Background(), "owner-b",
		[]RecordRow{{PatientID: "B-1", FirstName: "Someone"}}, ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	records, total, err := svc.List(context.Background(), "owner-b", 1, 20, "", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].PatientID != "B-1" {
		t.Fatalf("owner isolation violated: total=%d records=%+v", total, records)
	}
}

func TestUpdateReencryptsAndAudits(t *testing.T) {
	svc, store := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows()[:1], ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	var recordID string
	for id := range store.records {
		recordID = id
	}

	newName := "Janet"
	updated, err := svc.Update(context.Background(), recordID, "owner-a", RecordPatch{FirstName: &newName}, "10.0.0.2")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.FirstName != "Janet" {
		t.Fatalf("expected decrypted result, got %q", updated.FirstName)
	}
	if updated.LastName != "Doe" {
		t.Fatalf("untouched field changed: %q", updated.LastName)
	}

	stored := store.storedRecord(recordID)
	if stored.FirstName == "Janet" {
		t.Fatal("stored field must be ciphertext")
	}

	audit := store.auditRows()
	last := audit[len(audit)-1]
	if last.Action != ActionEdit || last.RecordID != recordID {
		t.Fatalf("unexpected edit audit: %+v", last)
	}
}

func TestUpdateForeignRecordWritesNothing(t *testing.T) {
	svc, store := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows()[:1], ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	var recordID string
	for id := range store.records {
		recordID = id
	}
	before := store.storedRecord(recordID)
	auditBefore := len(store.auditRows())

	name := "Mallory"
	_, err := svc.Update(context.Background(), recordID, "owner-b", RecordPatch{FirstName: &name}, "")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if len(store.auditRows()) != auditBefore {
		t.Fatal("no audit entry may be written on a miss")
	}
	if after := store.storedRecord(recordID); after.FirstName != before.FirstName {
		t.Fatal("record must not be mutated on a miss")
	}
}

func TestUpdateUnknownRecord(t *testing.T) {
	svc, _ := newVaultFixture(t)
	name := "n"
	_, err := svc.Update(context.Background(), "missing", "owner-a", RecordPatch{FirstName: &name}, "")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestListSubstitutesSentinelForCorruptField(t *testing.T) {
	svc, store := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows()[:1], ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	for _, rec := range store.records {
		rec.FirstName = "corrupted-blob"
	}

	records, _, err := svc.List(context.Background(), "owner-a", 1, 20, "", "")
	if err != nil {
		t.Fatalf("List must not fail on a corrupt field: %v", err)
	}
	if records[0].FirstName != DecryptionSentinel {
		t.Fatalf("expected sentinel, got %q", records[0].FirstName)
	}
	if records[0].LastName != "Doe" {
		t.Fatalf("healthy fields must still decrypt: %q", records[0].LastName)
	}
}

func TestListAuditScopedToActor(t *testing.T) {
	svc, _ := newVaultFixture(t)
	if _, _, err := svc.BulkCreate(context.Background(), "owner-a", sampleRows(), ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if _, _, err := svc.BulkCreate(context.Background(), "owner-b",
		[]RecordRow{{PatientID: "B-1", FirstName: "Someone"}}, ""); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if _, _, err := svc.List(context.Background(), "owner-a", 1, 20, "", ""); err != nil {
		t.Fatalf("List: %v", err)
	}

	entries, total, err := svc.ListAudit(context.Background(), "owner-a", 1, 50)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("expected upload+access entries, got %d (total %d)", len(entries), total)
	}
	// Most recent first.
	if entries[0].Action != ActionAccess || entries[1].Action != ActionUpload {
		t.Fatalf("unexpected order: %s, %s", entries[0].Action, entries[1].Action)
	}
	for _, entry := range entries {
		if entry.ActorID != "owner-a" {
			t.Fatalf("foreign audit entry returned: %+v", entry)
		}
	}
}
