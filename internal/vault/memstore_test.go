package vault

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"carevault.org/internal/ids"
)

// memStore is an in-memory Store used by service tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
	audit   []*AuditEntry
	seq     int
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (m *memStore) stamp() time.Time {
	m.seq++
	return time.Unix(int64(m.seq), 0).UTC()
}

func (m *memStore) appendAuditLocked(entry *AuditEntry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.stamp()
	}
	cp := *entry
	m.audit = append(m.audit, &cp)
}

func (m *memStore) CreateBatch(_ context.Context, records []*Record, audit *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = ids.New()
		}
		rec.CreatedAt = m.stamp()
		rec.UpdatedAt = rec.CreatedAt
		cp := *rec
		m.records[rec.ID] = &cp
	}
	m.appendAuditLocked(audit)
	return nil
}

func (m *memStore) ListByOwner(_ context.Context, ownerID string, page, limit int, search string) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	var matched []*Record
	for _, rec := range m.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.PatientID), strings.ToLower(search)) {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) FindForOwner(_ context.Context, recordID, ownerID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok || rec.OwnerID != ownerID {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) UpdateRecord(_ context.Context, record *Record, audit *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[record.ID]
	if !ok || existing.OwnerID != record.OwnerID {
		return ErrRecordNotFound
	}
	record.UpdatedAt = m.stamp()
	cp := *record
	cp.CreatedAt = existing.CreatedAt
	m.records[record.ID] = &cp
	m.appendAuditLocked(audit)
	return nil
}

func (m *memStore) AppendAudit(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAuditLocked(entry)
	return nil
}

func (m *memStore) ListAudit(_ context.Context, actorID string, page, limit int) ([]*AuditEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var matched []*AuditEntry
	for _, entry := range m.audit {
		if entry.ActorID == actorID {
			cp := *entry
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) auditRows() []*AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

func (m *memStore) storedRecord(id string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}
