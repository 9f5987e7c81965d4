package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/auth"
	"github.com/sells-group/crm-import/internal/importer"
	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/store"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

func (s *server) importContacts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := auth.FromContext(r.Context())
	if !ok || tenant.CompanyID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no company on token")
		return
	}

	var req model.ImportRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Contacts) == 0 {
		writeError(w, http.StatusBadRequest, "no contacts to import", "contactsData must be a non-empty list")
		return
	}

	summary, err := s.cfg.Importer.Run(r.Context(), importer.Job{
		ID:        req.ImportID,
		CompanyID: tenant.CompanyID,
		Request:   req,
	})
	if err != nil {
		if importer.IsInputError(err) {
			writeError(w, http.StatusBadRequest, "invalid import", err.Error())
			return
		}
		zap.L().Error("api: import failed",
			zap.String("company_id", tenant.CompanyID),
			zap.String("error", eris.ToString(err, false)),
		)
		writeError(w, http.StatusInternalServerError, "import failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("import completed: %d created, %d updated, %d failed",
			summary.Successful, summary.Updated, summary.Failed),
		Data: summary,
	})
}

func (s *server) getImport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := auth.FromContext(r.Context())
	if !ok || tenant.CompanyID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no company on token")
		return
	}

	id := chi.URLParam(r, "id")
	job, err := s.cfg.Jobs.GetJob(r.Context(), tenant.CompanyID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "import not found", id)
		return
	}
	if err != nil {
		zap.L().Error("api: get import", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load import", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: job})
}
