package detect

import (
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// ShellDetector flags layering chains built from shell accounts: low
// connectivity pass-through accounts that exist only to relay funds. An
// account already claimed by a cycle ring is never considered a shell, so a
// single account is not double-flagged under two patterns.
type ShellDetector struct {
	maxDegree int
	maxHops   int
	minChain  int
}

// NewShellDetector creates a shell-chain detector with the configured
// thresholds.
func NewShellDetector(cfg domain.DetectionConfig) *ShellDetector {
	return &ShellDetector{
		maxDegree: cfg.ShellMaxDegree,
		maxHops:   cfg.ShellMaxHops,
		minChain:  cfg.ShellMinChain,
	}
}

// Detect finds pass-through chains. exclude is the set of accounts claimed
// by the cycle detector in the same run.
func (d *ShellDetector) Detect(g *graph.Graph, exclude map[string]struct{}) (rings []domain.Ring, diag domain.Diagnostic) {
	diag = domain.Diagnostic{Detector: NameShell}
	defer recoverDiag(NameShell, &rings, &diag)

	seen := make(map[string]struct{})
	for _, id := range g.Nodes() {
		if !d.isShell(g, id, exclude) {
			continue
		}

		chain := d.traceChain(g, id)
		if len(chain) < d.minChain {
			continue
		}

		key := memberKey(chain)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rings = append(rings, domain.Ring{
			Members: chain,
			Pattern: domain.PatternShellChain,
		})
	}

	diag.Rings = len(rings)
	return rings, diag
}

// isShell reports whether the account qualifies as a shell candidate: it
// passes money through (in≥1, out≥1) with total degree at or below the
// threshold.
func (d *ShellDetector) isShell(g *graph.Graph, id string, exclude map[string]struct{}) bool {
	if _, excluded := exclude[id]; excluded {
		return false
	}
	in := g.InDegree(id)
	out := g.OutDegree(id)
	return in >= 1 && out >= 1 && in+out <= d.maxDegree
}

// traceChain walks forward and backward from the candidate, following only
// unambiguous links: a step is taken while the current node has exactly one
// successor (or predecessor) not already in the chain. Either direction
// stops at a branch point, a revisit, or the hop cap. The result is
// backward hops + candidate + forward hops in positional order.
func (d *ShellDetector) traceChain(g *graph.Graph, start string) []string {
	chain := []string{start}
	inChain := map[string]struct{}{start: {}}

	current := start
	for hop := 0; hop < d.maxHops; hop++ {
		succ := g.Successors(current)
		if len(succ) != 1 {
			break
		}
		next := succ[0]
		if _, visited := inChain[next]; visited {
			break
		}
		chain = append(chain, next)
		inChain[next] = struct{}{}
		current = next
	}

	current = start
	for hop := 0; hop < d.maxHops; hop++ {
		pred := g.Predecessors(current)
		if len(pred) != 1 {
			break
		}
		prev := pred[0]
		if _, visited := inChain[prev]; visited {
			break
		}
		chain = append([]string{prev}, chain...)
		inChain[prev] = struct{}{}
		current = prev
	}

	return chain
}
