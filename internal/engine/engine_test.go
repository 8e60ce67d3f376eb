package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer(domain.DefaultDetectionConfig())
	ctx := context.Background()
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	tx := func(sender, receiver string, amount float64, offset time.Duration) domain.Transaction {
		ts := base.Add(offset)
		return domain.Transaction{
			SenderID:   sender,
			ReceiverID: receiver,
			Amount:     amount,
			Timestamp:  &ts,
		}
	}

	t.Run("EmptyBatch", func(t *testing.T) {
		_, err := a.Analyze(ctx, nil)
		if !errors.Is(err, domain.ErrEmptyBatch) {
			t.Fatalf("expected ErrEmptyBatch, got %v", err)
		}

		// A batch whose rows all fail graph validation is also empty.
		_, err = a.Analyze(ctx, []domain.Transaction{
			{SenderID: "", ReceiverID: "B", Amount: 100},
		})
		if !errors.Is(err, domain.ErrEmptyBatch) {
			t.Fatalf("expected ErrEmptyBatch for all-invalid rows, got %v", err)
		}
	})

	t.Run("CyclePipeline", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("A", "B", 5000, 0),
			tx("B", "C", 4800, time.Hour),
			tx("C", "A", 4600, 2*time.Hour),
			tx("X", "Y", 120, 0),
		}
		rpt, err := a.Analyze(ctx, txs)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		if rpt.Summary.TotalAccountsAnalyzed != 5 {
			t.Errorf("expected 5 accounts, got %d", rpt.Summary.TotalAccountsAnalyzed)
		}
		if rpt.Summary.FraudRingsDetected != 1 {
			t.Fatalf("expected 1 ring, got %d", rpt.Summary.FraudRingsDetected)
		}
		ring := rpt.FraudRings[0]
		if ring.PatternType != domain.PatternCycle || ring.RingID != "RING_001" {
			t.Errorf("unexpected ring: %+v", ring)
		}
		if len(rpt.SuspiciousAccounts) != 3 {
			t.Errorf("expected the 3 loop members flagged, got %d",
				len(rpt.SuspiciousAccounts))
		}
		if len(rpt.Diagnostics) != 0 {
			t.Errorf("expected no diagnostics, got %+v", rpt.Diagnostics)
		}
	})

	t.Run("CycleExcludesShellOverlap", func(t *testing.T) {
		// The loop members look like pass-through shells too (in 1,
		// out 1), but the cycle claim suppresses the shell chain.
		txs := []domain.Transaction{
			tx("A", "B", 5000, 0),
			tx("B", "C", 4800, time.Hour),
			tx("C", "A", 4600, 2*time.Hour),
		}
		rpt, err := a.Analyze(ctx, txs)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		for _, ring := range rpt.FraudRings {
			if ring.PatternType == domain.PatternShellChain {
				t.Errorf("cycle members must not also form a shell chain: %+v", ring)
			}
		}
	})

	t.Run("CombinedPatterns", func(t *testing.T) {
		var txs []domain.Transaction
		// Cycle.
		txs = append(txs,
			tx("C_A", "C_B", 9000, 0),
			tx("C_B", "C_C", 8800, time.Hour),
			tx("C_C", "C_A", 8600, 2*time.Hour),
		)
		// Fan-in burst: 12 senders in two hours.
		for i := 0; i < 12; i++ {
			txs = append(txs, tx(fmt.Sprintf("S%02d", i), "HUB", 950,
				time.Duration(i)*10*time.Minute))
		}
		// Shell chain through disjoint accounts.
		txs = append(txs,
			tx("SRC", "P1", 4000, 24*time.Hour),
			tx("P1", "P2", 3950, 26*time.Hour),
			tx("P2", "P3", 3900, 28*time.Hour),
			tx("P3", "DST", 3850, 30*time.Hour),
		)

		rpt, err := a.Analyze(ctx, txs)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		patterns := make(map[string]int)
		for _, ring := range rpt.FraudRings {
			patterns[ring.PatternType]++
		}
		if patterns[domain.PatternCycle] != 1 {
			t.Errorf("expected 1 cycle ring, got %d", patterns[domain.PatternCycle])
		}
		if patterns[domain.PatternFanIn] != 1 {
			t.Errorf("expected 1 fan_in ring, got %d", patterns[domain.PatternFanIn])
		}
		if patterns[domain.PatternShellChain] != 1 {
			t.Errorf("expected 1 shell ring, got %d", patterns[domain.PatternShellChain])
		}

		// Ring ids follow priority order regardless of detector timing.
		if rpt.FraudRings[0].PatternType != domain.PatternCycle {
			t.Errorf("cycle ring must come first, got %s", rpt.FraudRings[0].PatternType)
		}

		var hubScore, memberScore float64
		for _, acct := range rpt.SuspiciousAccounts {
			switch acct.AccountID {
			case "HUB":
				hubScore = acct.SuspicionScore
			case "C_A":
				memberScore = acct.SuspicionScore
			}
		}
		// Hub: 35 points plus the 15-point burst bonus.
		if hubScore != 50 {
			t.Errorf("expected hub score 50, got %v", hubScore)
		}
		if memberScore != 40 {
			t.Errorf("expected cycle member score 40, got %v", memberScore)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		txs := []domain.Transaction{
			tx("A", "B", 100, 0),
			tx("B", "C", 100, time.Hour),
			tx("C", "A", 100, 2*time.Hour),
			tx("C", "D", 100, 3*time.Hour),
			tx("D", "B", 100, 4*time.Hour),
		}
		first, err := a.Analyze(ctx, txs)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		second, err := a.Analyze(ctx, txs)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}

		if len(first.FraudRings) != len(second.FraudRings) {
			t.Fatalf("ring counts differ: %d vs %d",
				len(first.FraudRings), len(second.FraudRings))
		}
		for i := range first.FraudRings {
			if first.FraudRings[i].RingID != second.FraudRings[i].RingID {
				t.Errorf("ring ids differ at %d", i)
			}
		}
		for i := range first.SuspiciousAccounts {
			if first.SuspiciousAccounts[i].AccountID != second.SuspiciousAccounts[i].AccountID {
				t.Errorf("ranking differs at %d", i)
			}
		}
	})
}
