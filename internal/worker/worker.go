// Package worker provides async batch processing for the Pro tier.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Worker processes uploaded batches asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	analyzer *engine.Analyzer
	policies *rules.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via a
	// global subscription)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, analyzer *engine.Analyzer, policies *rules.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		analyzer: analyzer,
		policies: policies,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing batch messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicBatchIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBatchIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processBatch(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBatchIngested,
	)

	return nil
}

// handleMessage handles messages from a global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processBatch(ctx, msg.TenantID, msg)
}

// BatchMessage is the message payload announcing an ingested batch.
type BatchMessage struct {
	BatchID    string `json:"batchId"`
	TenantID   string `json:"tenantId"`
	AnalysisID string `json:"analysisId"`
}

// CompletedMessage is published when an analysis finishes.
type CompletedMessage struct {
	AnalysisID      string `json:"analysisId"`
	BatchID         string `json:"batchId"`
	SuspiciousCount int    `json:"suspiciousCount"`
	RingCount       int    `json:"ringCount"`
}

// FailedMessage is published when an analysis cannot complete.
type FailedMessage struct {
	AnalysisID string `json:"analysisId"`
	BatchID    string `json:"batchId"`
	Error      string `json:"error"`
}

// processBatch loads the stored batch, runs the detection pipeline, and
// persists the resulting analysis.
func (w *Worker) processBatch(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var batchMsg BatchMessage
	if err := json.Unmarshal(msg.Payload, &batchMsg); err != nil {
		slog.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if batchMsg.TenantID != "" {
		tenantID = batchMsg.TenantID
	}

	slog.Debug("processing batch",
		"batch_id", batchMsg.BatchID,
		"tenant_id", tenantID,
	)

	batch, err := w.repo.GetBatch(ctx, tenantID, batchMsg.BatchID)
	if err != nil {
		slog.Error("failed to load batch",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
		w.publishFailed(ctx, tenantID, &batchMsg, err)
		return err
	}

	txs, _, err := ingest.ReadCSV(bytes.NewReader(batch.Payload))
	if err != nil {
		slog.Error("failed to parse batch csv",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
		w.publishFailed(ctx, tenantID, &batchMsg, err)
		return err
	}

	rpt, err := w.analyzer.Analyze(ctx, txs)
	if err != nil {
		slog.Error("analysis failed",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
		w.publishFailed(ctx, tenantID, &batchMsg, err)
		return err
	}
	rpt.AnalysisID = batchMsg.AnalysisID

	if w.policies != nil && w.policies.Count() > 0 {
		rpt.Alerts = w.policies.Evaluate(rpt)
	}

	analysis := &domain.Analysis{
		ID:               batchMsg.AnalysisID,
		TenantID:         tenantID,
		CreatedAt:        time.Now().UTC(),
		TransactionCount: len(txs),
		AccountCount:     rpt.Summary.TotalAccountsAnalyzed,
		RingCount:        rpt.Summary.FraudRingsDetected,
		SuspiciousCount:  rpt.Summary.SuspiciousAccountsFlagged,
		Report:           rpt,
	}

	if err := w.repo.SaveAnalysis(ctx, tenantID, analysis); err != nil {
		slog.Error("failed to save analysis",
			"analysis_id", analysis.ID,
			"error", err,
		)
	}

	completed, _ := json.Marshal(CompletedMessage{
		AnalysisID:      analysis.ID,
		BatchID:         batchMsg.BatchID,
		SuspiciousCount: analysis.SuspiciousCount,
		RingCount:       analysis.RingCount,
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, completed); err != nil {
		slog.Error("failed to publish completion",
			"analysis_id", analysis.ID,
			"error", err,
		)
	}

	for _, alert := range rpt.Alerts {
		payload, _ := json.Marshal(alert)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"analysis_id", analysis.ID,
				"policy_id", alert.PolicyID,
				"error", err,
			)
		}
	}

	slog.Info("batch processed",
		"batch_id", batchMsg.BatchID,
		"tenant_id", tenantID,
		"suspicious", analysis.SuspiciousCount,
		"rings", analysis.RingCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func (w *Worker) publishFailed(ctx context.Context, tenantID string, batchMsg *BatchMessage, cause error) {
	payload, _ := json.Marshal(FailedMessage{
		AnalysisID: batchMsg.AnalysisID,
		BatchID:    batchMsg.BatchID,
		Error:      cause.Error(),
	})
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAnalysisFailed, payload); err != nil {
		slog.Error("failed to publish failure",
			"batch_id", batchMsg.BatchID,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
