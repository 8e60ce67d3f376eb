package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	policies, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	return NewServer(
		domain.ServerConfig{Host: "127.0.0.1", Port: 0},
		repo,
		cache.NewLRUCache(100),
		bus.NewChannelBus(16),
		engine.NewAnalyzer(domain.DefaultDetectionConfig()),
		policies,
		domain.AnalysisConfig{ReportCacheTTL: time.Minute},
		"test",
	)
}

func doRequest(t *testing.T, srv *Server, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Tenant-ID", "tenant-001")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
}

const cycleCSV = "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
	"T001,ACC_A,ACC_B,5000,2025-01-15T10:00:00Z\n" +
	"T002,ACC_B,ACC_C,4800,2025-01-15T11:00:00Z\n" +
	"T003,ACC_C,ACC_A,4600,2025-01-15T12:00:00Z\n"

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]string
	decodeBody(t, rec, &health)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", health["status"])
	}
	if health["version"] != "test" {
		t.Errorf("expected version test, got %s", health["version"])
	}

	rec = doRequest(t, srv, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /ready, got %d", rec.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("RawCSVBody", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var rpt domain.Report
		decodeBody(t, rec, &rpt)
		if rpt.AnalysisID == "" {
			t.Error("expected analysis_id assigned")
		}
		if rpt.Summary.FraudRingsDetected != 1 {
			t.Errorf("expected 1 ring, got %d", rpt.Summary.FraudRingsDetected)
		}
		if len(rpt.SuspiciousAccounts) != 3 {
			t.Errorf("expected 3 suspicious accounts, got %d", len(rpt.SuspiciousAccounts))
		}
	})

	t.Run("MultipartUpload", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "batch.csv")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(cycleCSV)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
		mw.Close()

		rec := doRequest(t, srv, http.MethodPost, "/analyze", mw.FormDataContentType(), buf.Bytes())
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("MultipartWrongField", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("upload", "batch.csv")
		fw.Write([]byte(cycleCSV))
		mw.Close()

		rec := doRequest(t, srv, http.MethodPost, "/analyze", mw.FormDataContentType(), buf.Bytes())
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for missing 'file' field, got %d", rec.Code)
		}
	})

	t.Run("EmptyBody", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for empty upload, got %d", rec.Code)
		}
	})

	t.Run("HeaderOnlyBatch", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv",
			[]byte("transaction_id,sender_id,receiver_id,amount,timestamp\n"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty batch, got %d", rec.Code)
		}
		var resp map[string]string
		decodeBody(t, rec, &resp)
		if !strings.Contains(resp["error"], "no valid transactions") {
			t.Errorf("unexpected error message: %s", resp["error"])
		}
	})

	t.Run("MissingColumns", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv",
			[]byte("foo,bar\n1,2\n"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad header, got %d", rec.Code)
		}
	})

	t.Run("CachedResubmit", func(t *testing.T) {
		first := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
		second := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
		if second.Code != http.StatusOK {
			t.Fatalf("expected 200 on resubmit, got %d", second.Code)
		}

		var a, b domain.Report
		decodeBody(t, first, &a)
		decodeBody(t, second, &b)
		if a.AnalysisID != b.AnalysisID {
			t.Errorf("expected cached report, got ids %s and %s", a.AnalysisID, b.AnalysisID)
		}
	})
}

func TestAnalysisEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d %s", rec.Code, rec.Body.String())
	}
	var rpt domain.Report
	decodeBody(t, rec, &rpt)

	t.Run("GetByID", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/analyses/"+rpt.AnalysisID, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var analysis domain.Analysis
		decodeBody(t, rec, &analysis)
		if analysis.ID != rpt.AnalysisID {
			t.Errorf("expected id %s, got %s", rpt.AnalysisID, analysis.ID)
		}
		if analysis.Report == nil || analysis.Report.Summary.FraudRingsDetected != 1 {
			t.Errorf("expected stored report, got %+v", analysis.Report)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/analyses/nope", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/analyses", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var listing struct {
			Analyses []domain.AnalysisSummary `json:"analyses"`
			Count    int                      `json:"count"`
		}
		decodeBody(t, rec, &listing)
		if listing.Count != 1 || len(listing.Analyses) != 1 {
			t.Fatalf("expected 1 analysis, got %+v", listing)
		}
		if listing.Analyses[0].RingCount != 1 {
			t.Errorf("expected ring count 1, got %d", listing.Analyses[0].RingCount)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/analyses/"+rpt.AnalysisID, nil)
		req.Header.Set("X-Tenant-ID", "other-tenant")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 across tenants, got %d", rec.Code)
		}
	})
}

func TestPolicyEndpoints(t *testing.T) {
	srv := newTestServer(t)

	createBody := func(id, expression string) []byte {
		raw, _ := json.Marshal(map[string]any{
			"id":         id,
			"name":       id,
			"expression": expression,
			"severity":   "warning",
			"enabled":    true,
		})
		return raw
	}

	t.Run("Create", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/policies", "application/json",
			createBody("score-floor", "score >= 30.0"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("InvalidExpressionRejected", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/policies", "application/json",
			createBody("broken", "score >="))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("InvalidSeverityRejected", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{
			"id":         "odd",
			"name":       "odd",
			"expression": "score >= 1.0",
			"severity":   "urgent",
		})
		rec := doRequest(t, srv, http.MethodPost, "/policies", "application/json", raw)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown severity, got %d", rec.Code)
		}
	})

	t.Run("ReloadActivates", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/policies/reload", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		// A cycle batch scores members at 46 after the ring multiplier
		// is applied to the ring, 40 per account; the 30-point floor
		// fires for all three.
		rec = doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
		if rec.Code != http.StatusOK {
			t.Fatalf("analyze failed: %d", rec.Code)
		}
		var rpt domain.Report
		decodeBody(t, rec, &rpt)
		if len(rpt.Alerts) != 3 {
			t.Errorf("expected 3 alerts from score-floor, got %+v", rpt.Alerts)
		}
	})

	t.Run("GetAndList", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/policies/score-floor", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var policy domain.AlertPolicy
		decodeBody(t, rec, &policy)
		if policy.Expression != "score >= 30.0" {
			t.Errorf("unexpected policy: %+v", policy)
		}

		rec = doRequest(t, srv, http.MethodGet, "/policies", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 from list, got %d", rec.Code)
		}
	})

	t.Run("Update", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{
			"name":       "score floor",
			"expression": "score >= 90.0",
			"enabled":    true,
		})
		rec := doRequest(t, srv, http.MethodPut, "/policies/score-floor", "application/json", raw)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodGet, "/policies/score-floor", "", nil)
		var policy domain.AlertPolicy
		decodeBody(t, rec, &policy)
		if policy.Expression != "score >= 90.0" {
			t.Errorf("update did not apply: %+v", policy)
		}
	})

	t.Run("DeleteStopsAlerts", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodDelete, "/policies/score-floor", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = doRequest(t, srv, http.MethodGet, "/policies/score-floor", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", rec.Code)
		}

		// A fresh batch after the auto-reload raises nothing.
		fresh := strings.Replace(cycleCSV, "ACC_", "NEW_", -1)
		rec = doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(fresh))
		if rec.Code != http.StatusOK {
			t.Fatalf("analyze failed: %d", rec.Code)
		}
		var rpt domain.Report
		decodeBody(t, rec, &rpt)
		if len(rpt.Alerts) != 0 {
			t.Errorf("expected no alerts after delete, got %+v", rpt.Alerts)
		}
	})
}

func TestRateLimit(t *testing.T) {
	policies, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	srv := NewServer(
		domain.ServerConfig{},
		nil,
		cache.NewLRUCache(100),
		nil,
		engine.NewAnalyzer(domain.DefaultDetectionConfig()),
		policies,
		domain.AnalysisConfig{RateLimitPerMinute: 1},
		"test",
	)

	first := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request accepted, got %d", first.Code)
	}
	second := doRequest(t, srv, http.MethodPost, "/analyze", "text/csv", []byte(cycleCSV))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 over the limit, got %d", second.Code)
	}
}

func TestTenantDefaulting(t *testing.T) {
	srv := newTestServer(t)

	// No X-Tenant-ID header falls back to the default tenant instead of
	// rejecting the request.
	req := httptest.NewRequest(http.MethodGet, "/analyses", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without tenant header, got %d", rec.Code)
	}
}
