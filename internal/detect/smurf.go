package detect

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// SmurfingDetector flags structuring hubs. A fan-out hub disperses funds to
// many receivers; a fan-in hub collects from many senders. Each flagged
// direction additionally gets a temporal-clustering check: a burst of
// transactions inside a short window is far more suspicious than the same
// fan spread over months.
type SmurfingDetector struct {
	fanThreshold int
	window       time.Duration
	burstSize    int
}

// NewSmurfingDetector creates a smurfing detector with the configured
// thresholds.
func NewSmurfingDetector(cfg domain.DetectionConfig) *SmurfingDetector {
	return &SmurfingDetector{
		fanThreshold: cfg.FanThreshold,
		window:       cfg.BurstWindow,
		burstSize:    cfg.BurstSize,
	}
}

// Detect scans every node for fan-out and fan-in. A node can contribute one
// ring per direction. The raw transactions are needed because the temporal
// check filters timestamps by direction, which the aggregated edges do not
// distinguish once hub and neighbor are fixed.
func (d *SmurfingDetector) Detect(g *graph.Graph, txs []domain.Transaction) (rings []domain.Ring, diag domain.Diagnostic) {
	diag = domain.Diagnostic{Detector: NameSmurfing}
	defer recoverDiag(NameSmurfing, &rings, &diag)

	type hubKey struct {
		pattern string
		hub     string
	}
	seen := make(map[hubKey]struct{})

	for _, id := range g.Nodes() {
		if out := g.Successors(id); len(out) >= d.fanThreshold {
			key := hubKey{domain.PatternFanOut, id}
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				members := make([]string, 0, len(out)+1)
				members = append(members, id)
				members = append(members, out...)
				rings = append(rings, domain.Ring{
					Members:  members,
					Pattern:  domain.PatternFanOut,
					InWindow: d.clustered(txs, id, out, true),
				})
			}
		}

		if in := g.Predecessors(id); len(in) >= d.fanThreshold {
			key := hubKey{domain.PatternFanIn, id}
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				members := make([]string, 0, len(in)+1)
				members = append(members, in...)
				members = append(members, id)
				rings = append(rings, domain.Ring{
					Members:  members,
					Pattern:  domain.PatternFanIn,
					InWindow: d.clustered(txs, id, in, false),
				})
			}
		}
	}

	diag.Rings = len(rings)
	return rings, diag
}

// clustered reports whether the transactions between the hub and its
// flagged neighbors contain a burst: at least burstSize timestamps inside
// any window anchored at one of them. Unparseable timestamps are discarded
// first; fewer than two usable timestamps can never cluster.
func (d *SmurfingDetector) clustered(txs []domain.Transaction, hub string, neighbors []string, outbound bool) bool {
	neighborSet := make(map[string]struct{}, len(neighbors))
	for _, n := range neighbors {
		neighborSet[n] = struct{}{}
	}

	var stamps []time.Time
	for i := range txs {
		tx := &txs[i]
		if tx.Timestamp == nil {
			continue
		}
		if outbound {
			if tx.SenderID != hub {
				continue
			}
			if _, ok := neighborSet[tx.ReceiverID]; !ok {
				continue
			}
		} else {
			if tx.ReceiverID != hub {
				continue
			}
			if _, ok := neighborSet[tx.SenderID]; !ok {
				continue
			}
		}
		stamps = append(stamps, *tx.Timestamp)
	}

	if len(stamps) < 2 {
		return false
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// Quadratic scan is fine: per-hub transaction counts are bounded in
	// practice by the fan itself.
	for i := range stamps {
		count := 0
		for _, t := range stamps[i:] {
			if t.Sub(stamps[i]) <= d.window {
				count++
			}
		}
		if count >= d.burstSize {
			return true
		}
	}
	return false
}
