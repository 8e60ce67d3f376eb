package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/worker"
)

// maxUploadBytes caps CSV uploads at 64 MiB.
const maxUploadBytes = 64 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	analyzer *engine.Analyzer
	policies *rules.Engine
	analysis domain.AnalysisConfig
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *engine.Analyzer, policies *rules.Engine, analysisCfg domain.AnalysisConfig, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		analyzer: analyzer,
		policies: policies,
		analysis: analysisCfg,
		version:  version,
	}
}

// AcceptedResponse is returned for async submissions.
type AcceptedResponse struct {
	AnalysisID string `json:"analysis_id"`
	BatchID    string `json:"batch_id"`
	Status     string `json:"status"`
}

// Analyze handles POST /analyze. The transaction batch is read either
// from a multipart form field named "file" or from a raw CSV body.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	payload, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "empty upload",
		})
		return
	}

	// Identical batches produce identical reports, so a digest hit
	// skips the whole pipeline.
	digest := batchDigest(payload)
	if h.cache != nil && h.analysis.ReportCacheTTL > 0 {
		if cached, err := h.cache.GetReport(ctx, tenantID, digest); err == nil && cached != nil {
			slog.Debug("serving cached report", "tenant_id", tenantID, "digest", digest)
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.analysis.AsyncEnabled {
		h.analyzeAsync(w, r, tenantID, payload)
		return
	}

	txs, stats, err := ingest.ReadCSV(bytes.NewReader(payload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	rpt, err := h.analyzer.Analyze(ctx, txs)
	if errors.Is(err, domain.ErrEmptyBatch) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": domain.ErrEmptyBatch.Error(),
		})
		return
	}
	if err != nil {
		slog.Error("analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	rpt.AnalysisID = uuid.New().String()

	if h.policies != nil && h.policies.Count() > 0 {
		rpt.Alerts = h.policies.Evaluate(rpt)
	}

	if h.repo != nil {
		analysis := &domain.Analysis{
			ID:               rpt.AnalysisID,
			TenantID:         tenantID,
			CreatedAt:        time.Now().UTC(),
			TransactionCount: stats.RowsAccepted,
			AccountCount:     rpt.Summary.TotalAccountsAnalyzed,
			RingCount:        rpt.Summary.FraudRingsDetected,
			SuspiciousCount:  rpt.Summary.SuspiciousAccountsFlagged,
			Report:           rpt,
		}
		if err := h.repo.SaveAnalysis(ctx, tenantID, analysis); err != nil {
			slog.Error("failed to save analysis", "analysis_id", rpt.AnalysisID, "error", err)
		}
	}

	if h.cache != nil && h.analysis.ReportCacheTTL > 0 {
		if err := h.cache.SetReport(ctx, tenantID, digest, rpt, h.analysis.ReportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "digest", digest, "error", err)
		}
	}

	h.publishResults(ctx, tenantID, rpt)

	writeJSON(w, http.StatusOK, rpt)
}

// publishResults announces a finished analysis and its alerts on the bus.
func (h *Handler) publishResults(ctx context.Context, tenantID string, rpt *domain.Report) {
	if h.bus == nil {
		return
	}

	completed, _ := json.Marshal(worker.CompletedMessage{
		AnalysisID:      rpt.AnalysisID,
		SuspiciousCount: rpt.Summary.SuspiciousAccountsFlagged,
		RingCount:       rpt.Summary.FraudRingsDetected,
	})
	if err := h.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, completed); err != nil {
		slog.Warn("failed to publish completion", "analysis_id", rpt.AnalysisID, "error", err)
	}

	for _, alert := range rpt.Alerts {
		payload, _ := json.Marshal(alert)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert",
				"analysis_id", rpt.AnalysisID,
				"policy_id", alert.PolicyID,
				"error", err,
			)
		}
	}
}

// analyzeAsync stores the raw batch and hands it to the worker over the bus.
func (h *Handler) analyzeAsync(w http.ResponseWriter, r *http.Request, tenantID string, payload []byte) {
	ctx := r.Context()

	if h.repo == nil || h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "async analysis not available",
		})
		return
	}

	batch := &domain.Batch{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveBatch(ctx, tenantID, batch); err != nil {
		slog.Error("failed to save batch", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to store batch",
		})
		return
	}

	analysisID := uuid.New().String()
	msg, _ := json.Marshal(worker.BatchMessage{
		BatchID:    batch.ID,
		TenantID:   tenantID,
		AnalysisID: analysisID,
	})
	if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchIngested, msg); err != nil {
		slog.Error("failed to publish batch", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue batch",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		AnalysisID: analysisID,
		BatchID:    batch.ID,
		Status:     "queued",
	})
}

// GetAnalysis retrieves a persisted analysis by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	analysis, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		slog.Error("failed to get analysis", "id", analysisID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "analysis not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// ListAnalyses returns recent analyses for the tenant, newest first.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	summaries, err := h.repo.ListAnalyses(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list analyses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": summaries,
		"count":    len(summaries),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
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

// ListPolicies returns all alert policies for the tenant.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	policies, err := h.repo.ListAlertPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
	})
}

// GetPolicy retrieves an alert policy by ID.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	policy, err := h.repo.GetAlertPolicy(ctx, tenantID, policyID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "policy not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, policy)
}

// PolicyRequest is the request body for creating or updating a policy.
type PolicyRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
}

// CreatePolicy creates an alert policy and saves it to the database.
// After saving, call POST /policies/reload to hot-reload into the engine.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	h.savePolicy(w, r, "")
}

// UpdatePolicy updates an existing alert policy.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")
	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}
	h.savePolicy(w, r, policyID)
}

func (h *Handler) savePolicy(w http.ResponseWriter, r *http.Request, policyID string) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if policyID != "" {
		req.ID = policyID
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}
	switch severity {
	case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityCritical:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be info, warning, or critical",
		})
		return
	}

	policy := &domain.AlertPolicy{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if h.policies != nil {
		if err := h.policies.Validate(policy); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveAlertPolicy(ctx, tenantID, policy); err != nil {
			slog.Error("failed to save policy", "id", policy.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	status := http.StatusCreated
	if policyID != "" {
		status = http.StatusOK
	}

	slog.Info("policy saved", "id", policy.ID, "name", policy.Name)
	writeJSON(w, status, map[string]interface{}{
		"policy":  policy,
		"message": "Policy saved. Call POST /policies/reload to apply changes.",
	})
}

// DeletePolicy removes an alert policy and auto-reloads the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteAlertPolicy(ctx, tenantID, policyID); err != nil {
			slog.Error("failed to delete policy", "id", policyID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}

		// Auto-reload so the deleted policy stops firing immediately
		if h.policies != nil {
			remaining, err := h.repo.ListAlertPolicies(ctx, tenantID)
			if err != nil {
				slog.Error("failed to reload policies after delete", "error", err)
			} else if err := h.policies.Reload(remaining); err != nil {
				slog.Error("failed to reload policy engine after delete", "error", err)
			}
		}
	}

	slog.Info("policy deleted", "id", policyID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Policy deleted and engine reloaded.",
	})
}

// ReloadPolicies reloads all alert policies from the database into the engine.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	policies, err := h.repo.ListAlertPolicies(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policies.Reload(policies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "count", len(policies))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   h.policies.Count(),
	})
}

// readUpload extracts the CSV payload from a multipart form field named
// "file", or falls back to the raw request body.
func readUpload(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, errors.New("invalid multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("multipart form must include a 'file' field")
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, maxUploadBytes))
	}

	return io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
}

// batchDigest returns the cache key for a raw batch payload.
func batchDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
