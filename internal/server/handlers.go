package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/auditforge/auditforge/api/schemas"
	"github.com/auditforge/auditforge/internal/audit"
	"github.com/auditforge/auditforge/internal/publish"
	"github.com/auditforge/auditforge/internal/store"
)

// Handlers maps HTTP requests onto the audit pipeline. The repository is
// optional; without one, POST /audits still works but records are not
// retrievable later.
type Handlers struct {
	log          *zap.Logger
	orchestrator *audit.Orchestrator
	publisher    *publish.Publisher
	repo         schemas.Repository
}

// NewHandlers creates a Handlers instance.
func NewHandlers(logger *zap.Logger, orchestrator *audit.Orchestrator, publisher *publish.Publisher, repo schemas.Repository) *Handlers {
	return &Handlers{
		log:          logger.Named("handlers"),
		orchestrator: orchestrator,
		publisher:    publisher,
		repo:         repo,
	}
}

// RegisterRoutes sets up the routing tree.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/audits", h.HandleSubmitAudit)
		r.Get("/audits/{sourceHash}", h.HandleGetAudit)
		r.Post("/audits/{sourceHash}/publish", h.HandlePublishAudit)
	})
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// auditRequest is the POST /audits body.
type auditRequest struct {
	ContractName string `json:"contract_name"`
	Language     string `json:"language"`
	Source       string `json:"source"`
}

// HandleSubmitAudit runs the full pipeline on the submitted source and
// returns the assembled record.
func (h *Handlers) HandleSubmitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	meta := schemas.ContractMetadata{
		Name:     req.ContractName,
		Language: schemas.Language(req.Language),
	}

	record, err := h.orchestrator.Run(r.Context(), req.Source, meta)
	if err != nil {
		switch {
		case errors.Is(err, schemas.ErrInvalidInput):
			h.respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, schemas.ErrAnalysisTimeout):
			h.respondWithError(w, http.StatusGatewayTimeout, err.Error())
		case errors.Is(err, schemas.ErrCancelled):
			// The client went away; chi's Recoverer won't see this response
			// anyway, but log it for the audit trail.
			h.log.Info("Audit cancelled by client", zap.Error(err))
			h.respondWithError(w, statusClientClosedRequest, err.Error())
		default:
			h.log.Error("Audit run failed", zap.Error(err))
			h.respondWithError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRecord(r.Context(), record); err != nil {
			// The record is already assembled; persistence failure should not
			// hide it from the caller.
			h.log.Error("Failed to persist audit record", zap.Error(err),
				zap.String("run_id", record.RunID))
		}
	}

	h.respondWithJSON(w, http.StatusCreated, record)
}

// HandleGetAudit fetches the latest stored record for a source hash.
func (h *Handlers) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "audit store is not configured")
		return
	}

	sourceHash := chi.URLParam(r, "sourceHash")
	record, err := h.repo.GetRecord(r.Context(), sourceHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("Failed to fetch audit record", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "failed to fetch audit record")
		return
	}

	h.respondWithJSON(w, http.StatusOK, record)
}

// HandlePublishAudit publishes the latest stored record for a source hash.
// Publishing is independent of assembly: a record can be published any number
// of times, and a failed publish leaves it untouched.
func (h *Handlers) HandlePublishAudit(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "audit store is not configured")
		return
	}

	sourceHash := chi.URLParam(r, "sourceHash")
	record, err := h.repo.GetRecord(r.Context(), sourceHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("Failed to fetch audit record", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "failed to fetch audit record")
		return
	}

	artifact, _, err := h.publisher.Publish(r.Context(), record)
	if err != nil {
		h.log.Error("Publish failed", zap.Error(err), zap.String("run_id", record.RunID))
		h.respondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := h.repo.SaveArtifact(r.Context(), artifact); err != nil {
		h.log.Error("Failed to persist published artifact", zap.Error(err))
	}

	h.respondWithJSON(w, http.StatusOK, artifact)
}

// statusClientClosedRequest is nginx's non-standard 499.
const statusClientClosedRequest = 499

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}

func (h *Handlers) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
