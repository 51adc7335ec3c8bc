package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-health/kestrel/internal/assess"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/redflag"
	"github.com/opensource-health/kestrel/internal/repository"
	"github.com/opensource-health/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store   domain.Store
	cache   domain.Cache
	bus     domain.EventBus
	engine  *assess.Engine
	rules   *redflag.Engine
	scorer  domain.Scorer
	version string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.Store, cache domain.Cache, bus domain.EventBus, engine *assess.Engine, rules *redflag.Engine, scorer domain.Scorer, version string) *Handler {
	return &Handler{
		store:   store,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		rules:   rules,
		scorer:  scorer,
		version: version,
	}
}

// AssessRequest is the request body for POST /api/v1/assess.
// An empty claimIds list assesses every claim in the store; limit
// caps a full-store run at the first N claim ids.
type AssessRequest struct {
	ClaimIDs []string `json:"claimIds,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// Assess handles POST /api/v1/assess: runs a synchronous batch
// assessment and persists the resulting verdicts.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssessRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	claimIDs := req.ClaimIDs
	if len(claimIDs) == 0 && req.Limit > 0 {
		ids, err := h.store.ListClaimIDs(ctx)
		if err != nil {
			slog.Error("failed to list claims", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to list claims",
			})
			return
		}
		if len(ids) > req.Limit {
			ids = ids[:req.Limit]
		}
		claimIDs = ids
	}

	result, err := h.engine.Assess(ctx, claimIDs)
	if err != nil {
		slog.Error("batch assessment failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrModelUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	// Persist the verdicts; a storage failure is logged but the
	// assessment result is still returned to the caller.
	if h.store != nil {
		for _, a := range result.Assessments {
			if err := h.store.SaveAssessment(ctx, a); err != nil {
				slog.Error("failed to save assessment", "claim_id", a.ClaimID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// AssessAsync handles POST /api/v1/assess/async: enqueues the request
// on the event bus for a worker to pick up.
func (h *Handler) AssessAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req AssessRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	requestID := GetTraceID(ctx)
	payload, err := json.Marshal(worker.AssessRequest{
		RequestID: requestID,
		ClaimIDs:  req.ClaimIDs,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode request",
		})
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicAssessRequest, payload); err != nil {
		slog.Error("failed to publish assessment request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": requestID,
		"status":    "queued",
	})
}

// GetAssessment retrieves an assessment by ID or by claim ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	a, err := h.store.GetAssessment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		// Fall back to claim-id lookup for convenience.
		a, err = h.store.GetAssessmentByClaim(ctx, id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "assessment not found",
			})
			return
		}
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// IngestClaims handles POST /api/v1/claims: stores a batch of claims.
func (h *Handler) IngestClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var claims []*domain.Claim
	if err := json.NewDecoder(r.Body).Decode(&claims); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for _, c := range claims {
		if c.ID == "" || c.PatientID == "" || c.ProviderID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "id, patientId, and providerId are required on every claim",
			})
			return
		}
		if c.Amount <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "amount must be positive",
			})
			return
		}
		if c.Status == "" {
			c.Status = domain.ClaimStatusSubmitted
		}
		if c.SubmissionDate.IsZero() {
			c.SubmissionDate = time.Now().UTC()
		}
	}

	for _, c := range claims {
		if err := h.store.SaveClaim(ctx, c); err != nil {
			slog.Error("failed to save claim", "claim_id", c.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save claim " + c.ID,
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ingested": len(claims),
	})
}

// GetClaim retrieves a claim by ID.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claim id is required",
		})
		return
	}

	c, err := h.store.GetClaim(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// IngestPatients handles POST /api/v1/patients.
func (h *Handler) IngestPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var patients []*domain.Patient
	if err := json.NewDecoder(r.Body).Decode(&patients); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for _, p := range patients {
		if p.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "id is required on every patient",
			})
			return
		}
	}

	for _, p := range patients {
		if err := h.store.SavePatient(ctx, p); err != nil {
			slog.Error("failed to save patient", "patient_id", p.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save patient " + p.ID,
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ingested": len(patients),
	})
}

// IngestProviders handles POST /api/v1/providers.
func (h *Handler) IngestProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var providers []*domain.Provider
	if err := json.NewDecoder(r.Body).Decode(&providers); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	for _, p := range providers {
		if p.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "id is required on every provider",
			})
			return
		}
	}

	for _, p := range providers {
		if err := h.store.SaveProvider(ctx, p); err != nil {
			slog.Error("failed to save provider", "provider_id", p.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save provider " + p.ID,
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ingested": len(providers),
	})
}

// ListRules returns all loaded red-flag rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.rules.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.rules.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRule validates and hot-loads a new red-flag rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule redflag.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and expression are required",
		})
		return
	}

	if err := h.rules.LoadRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "category", rule.Category)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": rule,
	})
}

// GetModel returns metadata about the loaded classifier artifact.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model not loaded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":      h.scorer.Version(),
		"featureNames": h.scorer.FeatureNames(),
		"featureCount": len(h.scorer.FeatureNames()),
	})
}

// GetStats returns assessment counts by risk level plus engine metadata.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.store.CountAssessmentsByRiskLevel(ctx)
	if err != nil {
		slog.Error("failed to count assessments", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to count assessments",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assessmentsByRiskLevel": counts,
		"rulesLoaded":            h.rules.RulesCount(),
		"version":                h.version,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
