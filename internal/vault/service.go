package vault

import (
	"context"
	"fmt"
	"strings"

	"carevault.org/internal/obs"
)

// Service applies the field cipher to protected attributes on every write
// and read, and keeps the per-access audit trail. Authorization is
// ownership-based: every operation is scoped to the requesting owner.
type Service struct {
	store  Store
	cipher *Cipher
}

func NewService(store Store, cipher *Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// BulkCreate validates, encrypts and stages a batch of raw rows. Rows
// missing a patient id or first name are skipped rather than failing the
// batch; the accepted rows and one UPLOAD audit entry commit together,
// all-or-nothing. Returns the accepted count and a note per skipped row.
func (s *Service) BulkCreate(ctx context.Context, ownerID string, rows []RecordRow, ip string) (int, []string, error) {
	if ownerID == "" {
		return 0, nil, ErrInvalidInput
	}

	var (
		records []*Record
		skipped []string
	)
	for i, row := range rows {
		patientID := strings.TrimSpace(row.PatientID)
		firstName := strings.TrimSpace(row.FirstName)
		if patientID == "" || firstName == "" {
			skipped = append(skipped, fmt.Sprintf("row %d: missing patient id or first name", i+1))
			continue
		}
		rec := &Record{PatientID: patientID, OwnerID: ownerID}
		var err error
		if rec.FirstName, err = s.cipher.Encrypt(firstName); err != nil {
			return 0, nil, err
		}
		if rec.LastName, err = s.cipher.Encrypt(strings.TrimSpace(row.LastName)); err != nil {
			return 0, nil, err
		}
		if rec.DateOfBirth, err = s.cipher.Encrypt(strings.TrimSpace(row.DateOfBirth)); err != nil {
			return 0, nil, err
		}
		if rec.Gender, err = s.cipher.Encrypt(strings.TrimSpace(row.Gender)); err != nil {
			return 0, nil, err
		}
		records = append(records, rec)
	}

	audit := &AuditEntry{
		Action:  ActionUpload,
		ActorID: ownerID,
		Details: fmt.Sprintf("Uploaded %d patients", len(records)),
		IP:      ip,
	}
	if err := s.store.CreateBatch(ctx, records, audit); err != nil {
		return 0, nil, err
	}
	return len(records), skipped, nil
}

// List returns one decrypted page of the owner's records, newest first,
// and writes an ACCESS audit entry recording the query parameters.
func (s *Service) List(ctx context.Context, ownerID string, page, limit int, search, ip string) ([]*Record, int, error) {
	records, total, err := s.store.ListByOwner(ctx, ownerID, page, limit, search)
	if err != nil {
		return nil, 0, err
	}
	audit := &AuditEntry{
		Action:  ActionAccess,
		ActorID: ownerID,
		Details: fmt.Sprintf("Accessed patient list (page=%d, search='%s')", page, search),
		IP:      ip,
	}
	if err := s.store.AppendAudit(ctx, audit); err != nil {
		return nil, 0, err
	}
	for _, rec := range records {
		s.decryptRecord(rec)
	}
	return records, total, nil
}

// Update re-encrypts the patched fields of an owned record and writes an
// EDIT audit entry referencing it. A record that does not exist or belongs
// to someone else fails with ErrRecordNotFound; nothing is written then.
func (s *Service) Update(ctx context.Context, recordID, ownerID string, patch RecordPatch, ip string) (*Record, error) {
	rec, err := s.store.FindForOwner(ctx, recordID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.applyPatch(rec, patch); err != nil {
		return nil, err
	}
	audit := &AuditEntry{
		Action:   ActionEdit,
		ActorID:  ownerID,
		RecordID: rec.ID,
		Details:  "Updated patient record",
		IP:       ip,
	}
	if err := s.store.UpdateRecord(ctx, rec, audit); err != nil {
		return nil, err
	}
	s.decryptRecord(rec)
	return rec, nil
}

// ListAudit returns one page of the owner's own audit entries, most recent
// first.
func (s *Service) ListAudit(ctx context.Context, ownerID string, page, limit int) ([]*AuditEntry, int, error) {
	return s.store.ListAudit(ctx, ownerID, page, limit)
}

func (s *Service) applyPatch(rec *Record, patch RecordPatch) error {
	var err error
	if patch.FirstName != nil {
		if rec.FirstName, err = s.cipher.Encrypt(*patch.FirstName); err != nil {
			return err
		}
	}
	if patch.LastName != nil {
		if rec.LastName, err = s.cipher.Encrypt(*patch.LastName); err != nil {
			return err
		}
	}
	if patch.DateOfBirth != nil {
		if rec.DateOfBirth, err = s.cipher.Encrypt(*patch.DateOfBirth); err != nil {
			return err
		}
	}
	if patch.Gender != nil {
		if rec.Gender, err = s.cipher.Encrypt(*patch.Gender); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) decryptRecord(rec *Record) {
	rec.FirstName = s.decryptField(rec.FirstName)
	rec.LastName = s.decryptField(rec.LastName)
	rec.DateOfBirth = s.decryptField(rec.DateOfBirth)
	rec.Gender = s.decryptField(rec.Gender)
}

// decryptField maps a corrupt blob to the visible sentinel instead of
// failing the whole listing; the failure is still counted for alerting.
func (s *Service) decryptField(blob string) string {
	plaintext, err := s.cipher.Decrypt(blob)
	if err != nil {
		obs.CountDecryptFailure()
		return DecryptionSentinel
	}
	return plaintext
}
