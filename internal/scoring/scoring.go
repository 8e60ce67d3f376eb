// Package scoring converts detector output into per-account suspicion
// scores. Scoring is a fixed additive rule set, not a model: every ring
// contributes a known number of points, a volume penalty compensates for
// legitimate high-traffic merchants, and the result is clamped to [0, 100].
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// Point values of the additive rule set.
const (
	pointsCycleMember = 40
	pointsSmurfHub    = 35
	pointsSmurfMember = 20
	pointsBurstBonus  = 15
	pointsShellMember = 20
)

// Scores holds one run's per-account accumulators, keyed by account id and
// iterable in graph node insertion order so downstream sorting is stable
// across identical runs.
type Scores struct {
	order []string
	byID  map[string]*domain.AccountScore
}

// Get returns the accumulator for an account, or nil if the account is not
// a graph node.
func (s *Scores) Get(id string) *domain.AccountScore {
	return s.byID[id]
}

// Accounts returns all scored account ids in graph insertion order.
func (s *Scores) Accounts() []string {
	return s.order
}

// Len returns the number of scored accounts.
func (s *Scores) Len() int {
	return len(s.order)
}

// Engine applies the additive scoring rules.
type Engine struct {
	merchantThreshold  int
	merchantMaxPenalty float64
}

// NewEngine creates a scoring engine with the configured merchant penalty
// thresholds.
func NewEngine(cfg domain.DetectionConfig) *Engine {
	return &Engine{
		merchantThreshold:  cfg.MerchantTxThreshold,
		merchantMaxPenalty: cfg.MerchantMaxPenalty,
	}
}

// Score runs the full rule set. Ring members that are not graph nodes are
// ignored; every graph node ends up with a clamped score, zero if nothing
// touched it. The input rings and transactions are not mutated.
func (e *Engine) Score(g *graph.Graph, txs []domain.Transaction, cycleRings, smurfRings, shellRings []domain.Ring) *Scores {
	scores := &Scores{
		order: g.Nodes(),
		byID:  make(map[string]*domain.AccountScore, g.NodeCount()),
	}
	for _, id := range scores.order {
		scores.byID[id] = &domain.AccountScore{}
	}

	for _, ring := range cycleRings {
		tag := fmt.Sprintf("cycle_length_%d", len(ring.Members))
		for _, id := range ring.Members {
			if acc := scores.byID[id]; acc != nil {
				acc.Score += pointsCycleMember
				acc.AddPattern(tag)
			}
		}
	}

	for _, ring := range smurfRings {
		hub := ring.Hub()
		for _, id := range ring.Members {
			acc := scores.byID[id]
			if acc == nil {
				continue
			}
			if id == hub {
				acc.Score += pointsSmurfHub
			} else {
				acc.Score += pointsSmurfMember
			}
			acc.AddPattern(ring.Pattern)

			if ring.InWindow {
				acc.Score += pointsBurstBonus
				acc.AddPattern(domain.TagHighVelocity)
			}
		}
	}

	for _, ring := range shellRings {
		for _, id := range ring.Members {
			if acc := scores.byID[id]; acc != nil {
				acc.Score += pointsShellMember
				acc.AddPattern(domain.TagShellAccount)
			}
		}
	}

	e.applyMerchantPenalty(scores, txs)

	for _, acc := range scores.byID {
		acc.Score = clamp(acc.Score)
	}

	return scores
}

// applyMerchantPenalty subtracts points from accounts whose raw transaction
// volume marks them as probable legitimate merchants. The penalty scales
// with volume up to a cap.
func (e *Engine) applyMerchantPenalty(scores *Scores, txs []domain.Transaction) {
	counts := make(map[string]int)
	for i := range txs {
		tx := &txs[i]
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}
		sender := strings.TrimSpace(tx.SenderID)
		receiver := strings.TrimSpace(tx.ReceiverID)
		if sender == "" || receiver == "" {
			continue
		}
		counts[sender]++
		counts[receiver]++
	}

	for id, count := range counts {
		if count < e.merchantThreshold {
			continue
		}
		acc := scores.byID[id]
		if acc == nil {
			continue
		}
		penalty := math.Min(e.merchantMaxPenalty, float64(count))
		acc.Score -= penalty
		acc.AddPattern(domain.TagHighVolumeMerchant)
	}
}

// clamp bounds a score to [0, 100] and rounds to one decimal place.
func clamp(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return math.Round(v*10) / 10
}
