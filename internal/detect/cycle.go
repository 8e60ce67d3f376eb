package detect

import (
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// CycleDetector flags circular money flows: A→B→C→A and friends. Only
// cycles of length 3 to 5 are kept by default. Two-cycles are reciprocal
// payments, common and low-signal; cycles longer than five hops are common
// in normal settlement networks and mostly produce false positives.
type CycleDetector struct {
	minLen int
	maxLen int
}

// NewCycleDetector creates a cycle detector with the configured length
// bounds.
func NewCycleDetector(cfg domain.DetectionConfig) *CycleDetector {
	return &CycleDetector{
		minLen: cfg.MinCycleLength,
		maxLen: cfg.MaxCycleLength,
	}
}

// Detect enumerates elementary circuits and returns one ring per distinct
// member set within the length bounds. Member order is the cyclic traversal
// order starting from whichever node the enumeration reached first.
func (d *CycleDetector) Detect(g *graph.Graph) (rings []domain.Ring, diag domain.Diagnostic) {
	diag = domain.Diagnostic{Detector: NameCycle}
	defer recoverDiag(NameCycle, &rings, &diag)

	seen := make(map[string]struct{})
	elementaryCircuits(g, func(cycle []string) {
		if len(cycle) < d.minLen || len(cycle) > d.maxLen {
			return
		}
		key := memberKey(cycle)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		members := make([]string, len(cycle))
		copy(members, cycle)
		rings = append(rings, domain.Ring{
			Members: members,
			Pattern: domain.PatternCycle,
		})
	})

	diag.Rings = len(rings)
	return rings, diag
}
