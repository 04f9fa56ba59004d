package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carevault.org/internal/auth"
	"carevault.org/internal/vault"
)

type bulkUploadRequest struct {
	Patients []vault.RecordRow `json:"patients"`
}

type bulkUploadResponse struct {
	Accepted int      `json:"accepted"`
	Skipped  []string `json:"skipped,omitempty"`
}

type recordResponse struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth"`
	Gender      string    `json:"gender"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type recordListResponse struct {
	Items []recordResponse `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type auditEntryResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	RecordID  string    `json:"record_id,omitempty"`
	Details   string    `json:"details"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type auditListResponse struct {
	Items []auditEntryResponse `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

func recordPayload(rec *vault.Record) recordResponse {
	return recordResponse{
		ID:          rec.ID,
		PatientID:   rec.PatientID,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		DateOfBirth: rec.DateOfBirth,
		Gender:      rec.Gender,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (a *API) handlePatients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleBulkUpload(w, r)
	case http.MethodGet:
		a.handleListPatients(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}

	var req bulkUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Patients) == 0 {
		writeError(w, r, http.StatusBadRequest, "patients are required")
		return
	}

	accepted, skipped, err := a.vault.BulkCreate(r.Context(), ident.ID, req.Patients, clientIP(r))
	if err != nil {
		a.handleVaultError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, bulkUploadResponse{
		Accepted: accepted,
		Skipped:  skipped,
	})
}

func (a *API) handleListPatients(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}

	page, limit, err := parsePaging(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	records, total, err := a.vault.List(r.Context(), ident.ID, page, limit, search, clientIP(r))
	if err != nil {
		a.handleVaultError(w, r, err)
		return
	}

	items := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, recordPayload(rec))
	}
	writeJSON(w, http.StatusOK, recordListResponse{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (a *API) handlePatientByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}

	recordID := strings.TrimPrefix(r.URL.Path, "/v1/patients/")
	if recordID == "" || strings.Contains(recordID, "/") {
		writeError(w, r, http.StatusNotFound, "record not found")
		return
	}

	var patch vault.RecordPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.vault.Update(r.Context(), recordID, ident.ID, patch, clientIP(r))
	if err != nil {
		a.handleVaultError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recordPayload(rec))
}

func (a *API) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing identity")
		return
	}

	page, limit, err := parsePaging(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entries, total, err := a.vault.ListAudit(r.Context(), ident.ID, page, limit)
	if err != nil {
		a.handleVaultError(w, r, err)
		return
	}

	items := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, auditEntryResponse{
			ID:        e.ID,
			Action:    e.Action,
			RecordID:  e.RecordID,
			Details:   e.Details,
			IP:        e.IP,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, auditListResponse{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (a *API) handleVaultError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, vault.ErrRecordNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, vault.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func parsePaging(r *http.Request) (page, limit int, err error) {
	page, err = parsePositiveInt(r.URL.Query().Get("page"), 1, 1, 1_000_000)
	if err != nil {
		return 0, 0, errors.New("page must be a positive integer")
	}
	limit, err = parsePositiveInt(r.URL.Query().Get("limit"), 20, 1, 100)
	if err != nil {
		return 0, 0, errors.New("limit must be between 1 and 100")
	}
	return page, limit, nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < min || val > max {
		return 0, errors.New("out of range")
	}
	return val, nil
}
