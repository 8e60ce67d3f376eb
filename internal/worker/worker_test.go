package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

func newTestWorker(t *testing.T) (*Worker, domain.EventBus, domain.Repository) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(16)
	t.Cleanup(func() { eventBus.Close() })

	policies, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	w := NewWorker(eventBus, repo, engine.NewAnalyzer(domain.DefaultDetectionConfig()), policies)
	t.Cleanup(func() { w.Stop() })

	return w, eventBus, repo
}

func TestWorkerProcessesBatch(t *testing.T) {
	w, eventBus, repo := newTestWorker(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	completed := make(chan *domain.Message, 1)
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	payload := []byte("transaction_id,sender_id,receiver_id,amount,timestamp\n" +
		"T001,A,B,5000,2025-01-15T10:00:00Z\n" +
		"T002,B,C,4800,2025-01-15T11:00:00Z\n" +
		"T003,C,A,4600,2025-01-15T12:00:00Z\n")
	batch := &domain.Batch{
		ID:        "batch-001",
		TenantID:  tenantID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveBatch(ctx, tenantID, batch); err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}

	msg, _ := json.Marshal(BatchMessage{
		BatchID:    batch.ID,
		TenantID:   tenantID,
		AnalysisID: "an-001",
	})
	if err := eventBus.Publish(ctx, tenantID, domain.TopicBatchIngested, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case raw := <-completed:
		var done CompletedMessage
		if err := json.Unmarshal(raw.Payload, &done); err != nil {
			t.Fatalf("decode completion: %v", err)
		}
		if done.AnalysisID != "an-001" || done.BatchID != "batch-001" {
			t.Errorf("unexpected completion: %+v", done)
		}
		if done.RingCount != 1 || done.SuspiciousCount != 3 {
			t.Errorf("expected 1 ring and 3 flagged, got %+v", done)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	analysis, err := repo.GetAnalysis(ctx, tenantID, "an-001")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if analysis.Report == nil || analysis.Report.Summary.FraudRingsDetected != 1 {
		t.Errorf("expected persisted report with 1 ring, got %+v", analysis.Report)
	}
	if analysis.Report.AnalysisID != "an-001" {
		t.Errorf("expected report analysis id an-001, got %s", analysis.Report.AnalysisID)
	}
}

func TestWorkerPublishesFailure(t *testing.T) {
	w, eventBus, _ := newTestWorker(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	failed := make(chan *domain.Message, 1)
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicAnalysisFailed, func(ctx context.Context, msg *domain.Message) error {
		failed <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// No stored batch under this id.
	msg, _ := json.Marshal(BatchMessage{
		BatchID:    "ghost",
		TenantID:   tenantID,
		AnalysisID: "an-002",
	})
	if err := eventBus.Publish(ctx, tenantID, domain.TopicBatchIngested, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case raw := <-failed:
		var failure FailedMessage
		if err := json.Unmarshal(raw.Payload, &failure); err != nil {
			t.Fatalf("decode failure: %v", err)
		}
		if failure.BatchID != "ghost" || failure.Error == "" {
			t.Errorf("unexpected failure message: %+v", failure)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failure message")
	}
}

func TestWorkerStats(t *testing.T) {
	w, _, _ := newTestWorker(t)

	if err := w.Start(Config{TenantIDs: []string{"t1", "t2"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Errorf("expected no subscriptions after stop, got %d", w.GetStats().SubscriptionCount)
	}
}
