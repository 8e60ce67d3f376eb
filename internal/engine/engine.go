// Package engine orchestrates the fraud ring detection pipeline: build the
// transaction graph, run the detectors, score the accounts, and assemble
// the final report.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/report"
	"github.com/opensource-finance/harrier/internal/scoring"
)

var tracer = otel.Tracer("harrier-engine")

// Analyzer runs the full detection pipeline over a transaction batch.
// An Analyzer is stateless between runs and safe for concurrent use.
type Analyzer struct {
	cycles    *detect.CycleDetector
	shells    *detect.ShellDetector
	smurfing  *detect.SmurfingDetector
	scorer    *scoring.Engine
	assembler *report.Assembler
}

// NewAnalyzer creates an analyzer with detectors configured from cfg.
func NewAnalyzer(cfg domain.DetectionConfig) *Analyzer {
	return &Analyzer{
		cycles:    detect.NewCycleDetector(cfg),
		shells:    detect.NewShellDetector(cfg),
		smurfing:  detect.NewSmurfingDetector(cfg),
		scorer:    scoring.NewEngine(cfg),
		assembler: report.NewAssembler(),
	}
}

// Analyze runs the pipeline over txs and returns the assembled report.
// It returns domain.ErrEmptyBatch when no transaction yields a graph node.
// Detector failures do not abort the run; they surface as diagnostics on
// the report and the remaining detectors' results are still scored.
func (a *Analyzer) Analyze(ctx context.Context, txs []domain.Transaction) (*domain.Report, error) {
	start := time.Now()

	_, span := tracer.Start(ctx, "engine.Analyze",
		trace.WithAttributes(
			attribute.Int("transaction.count", len(txs)),
		),
	)
	defer span.End()

	g := graph.Build(txs)
	if g.NodeCount() == 0 {
		return nil, domain.ErrEmptyBatch
	}

	stageStart := time.Now()
	cycleRings, cycleDiag := a.cycles.Detect(g)
	slog.Debug("cycle detection complete",
		"rings", len(cycleRings),
		"duration_ms", time.Since(stageStart).Milliseconds(),
	)

	// Shell tracing skips accounts already explained by a cycle, so the
	// exclusion set is fixed before the remaining detectors run.
	cycleMembers := detect.Members(cycleRings)

	var (
		shellRings []domain.Ring
		shellDiag  domain.Diagnostic
		smurfRings []domain.Ring
		smurfDiag  domain.Diagnostic
	)

	stageStart = time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		shellRings, shellDiag = a.shells.Detect(g, cycleMembers)
	}()
	go func() {
		defer wg.Done()
		smurfRings, smurfDiag = a.smurfing.Detect(g, txs)
	}()
	wg.Wait()
	slog.Debug("structural detection complete",
		"shell_rings", len(shellRings),
		"smurf_rings", len(smurfRings),
		"duration_ms", time.Since(stageStart).Milliseconds(),
	)

	scores := a.scorer.Score(g, txs, cycleRings, smurfRings, shellRings)

	rpt := a.assembler.Assemble(g, scores, cycleRings, smurfRings, shellRings, time.Since(start))

	for _, diag := range []domain.Diagnostic{cycleDiag, shellDiag, smurfDiag} {
		if diag.Failed {
			slog.Error("detector failed",
				"detector", diag.Detector,
				"detail", diag.Detail,
			)
			rpt.Diagnostics = append(rpt.Diagnostics, diag)
		}
	}

	slog.Info("analysis complete",
		"accounts", rpt.Summary.TotalAccountsAnalyzed,
		"suspicious", rpt.Summary.SuspiciousAccountsFlagged,
		"rings", rpt.Summary.FraudRingsDetected,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return rpt, nil
}
