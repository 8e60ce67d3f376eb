// Package report assembles detector and scoring output into the final
// ranked analysis report.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Per-pattern risk multipliers. Unknown patterns deliberately fall back to
// 1.0 instead of erroring, so a future detector slots in without touching
// the assembler.
var riskMultipliers = map[string]float64{
	domain.PatternCycle:      1.15,
	domain.PatternFanOut:     1.10,
	domain.PatternFanIn:      1.10,
	domain.PatternShellChain: 1.05,
}

// Assembler merges the detectors' rings into a single ranked report.
type Assembler struct{}

// NewAssembler creates a report assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble processes rings in fixed priority order (cycles, then smurfing,
// then shell chains, preserving each detector's internal order), assigns
// sequential ring ids, claims accounts first-writer-wins, and builds the
// ranked suspicious account list plus the pass-through node and edge views.
func (a *Assembler) Assemble(g *graph.Graph, scores *scoring.Scores, cycleRings, smurfRings, shellRings []domain.Ring, elapsed time.Duration) *domain.Report {
	rpt := &domain.Report{
		SuspiciousAccounts: []domain.SuspiciousAccount{},
		FraudRings:         []domain.FraudRing{},
		AccountRings:       make(map[string]string),
	}

	ringCounter := 1
	for _, rings := range [][]domain.Ring{cycleRings, smurfRings, shellRings} {
		for _, ring := range rings {
			members := dedupe(ring.Members)
			if len(members) == 0 {
				continue
			}

			// A ring id is consumed and its members claimed even if
			// the ring ends up dropped for lacking scored members;
			// id sequence and claims stay stable either way.
			ringID := fmt.Sprintf("RING_%03d", ringCounter)
			ringCounter++

			for _, id := range members {
				if _, claimed := rpt.AccountRings[id]; !claimed {
					rpt.AccountRings[id] = ringID
				}
			}

			sum := 0.0
			scored := 0
			for _, id := range members {
				if acc := scores.Get(id); acc != nil {
					sum += acc.Score
					scored++
				}
			}
			if scored == 0 {
				continue
			}

			mult, ok := riskMultipliers[ring.Pattern]
			if !ok {
				mult = 1.0
			}
			risk := round1(math.Min(100.0, sum/float64(scored)*mult))

			rpt.FraudRings = append(rpt.FraudRings, domain.FraudRing{
				RingID:         ringID,
				MemberAccounts: members,
				PatternType:    ring.Pattern,
				RiskScore:      risk,
			})
		}
	}

	for _, id := range scores.Accounts() {
		acc := scores.Get(id)
		if acc.Score <= 0 {
			continue
		}
		ringID, claimed := rpt.AccountRings[id]
		if !claimed {
			ringID = domain.RingUnassigned
		}
		rpt.SuspiciousAccounts = append(rpt.SuspiciousAccounts, domain.SuspiciousAccount{
			AccountID:        id,
			SuspicionScore:   acc.Score,
			DetectedPatterns: tags(acc.Patterns),
			RingID:           ringID,
		})
	}
	// Stable sort so equally scored accounts keep graph insertion order.
	sort.SliceStable(rpt.SuspiciousAccounts, func(i, j int) bool {
		return rpt.SuspiciousAccounts[i].SuspicionScore > rpt.SuspiciousAccounts[j].SuspicionScore
	})

	rpt.Nodes = make([]domain.ReportNode, 0, g.NodeCount())
	for _, id := range g.Nodes() {
		node := domain.ReportNode{ID: id, Flags: []string{}}
		if acc := scores.Get(id); acc != nil {
			node.SuspicionScore = acc.Score
			node.Flags = tags(acc.Patterns)
		}
		rpt.Nodes = append(rpt.Nodes, node)
	}

	edges := g.Edges()
	rpt.Edges = make([]domain.ReportEdge, 0, len(edges))
	for _, e := range edges {
		rpt.Edges = append(rpt.Edges, domain.ReportEdge{
			Source: e.Source,
			Target: e.Target,
			Amount: round2(e.Amount),
		})
	}

	rpt.Summary = domain.Summary{
		TotalAccountsAnalyzed:     g.NodeCount(),
		SuspiciousAccountsFlagged: len(rpt.SuspiciousAccounts),
		FraudRingsDetected:        len(rpt.FraudRings),
		ProcessingTimeSeconds:     round2(elapsed.Seconds()),
	}

	return rpt
}

// dedupe removes duplicate members while preserving first-occurrence order.
func dedupe(members []string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, id := range members {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// tags returns a non-nil copy of a pattern list so the report marshals
// empty lists as [] rather than null.
func tags(patterns []string) []string {
	if len(patterns) == 0 {
		return []string{}
	}
	out := make([]string, len(patterns))
	copy(out, patterns)
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
