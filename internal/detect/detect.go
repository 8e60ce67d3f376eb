// Package detect implements the three ring detectors: cyclic flows, shell
// pass-through chains, and fan-in/fan-out smurfing. Detectors are mutually
// read-only over the shared account graph and safe to run concurrently.
//
// A detector never aborts an analysis: internal failures are recovered and
// reported through the returned Diagnostic while the ring list comes back
// empty. Callers that care about the difference between "none found" and
// "detector failed" must inspect the diagnostic.
package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector names used in diagnostics and logs.
const (
	NameCycle    = "cycle"
	NameShell    = "shell"
	NameSmurfing = "smurfing"
)

// memberKey builds an order-insensitive dedup key for a ring's members.
// Two rings covering the same account set are the same ring.
func memberKey(members []string) string {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

// recoverDiag converts a detector panic into a failed diagnostic. Rings
// appended before the panic are discarded so a failed detector never
// leaks a partial result.
func recoverDiag(name string, rings *[]domain.Ring, diag *domain.Diagnostic) {
	if r := recover(); r != nil {
		*rings = nil
		diag.Detector = name
		diag.Failed = true
		diag.Detail = fmt.Sprint(r)
		diag.Rings = 0
	}
}

// Members returns the set of all accounts appearing in any of the rings.
func Members(rings []domain.Ring) map[string]struct{} {
	members := make(map[string]struct{})
	for _, ring := range rings {
		for _, id := range ring.Members {
			members[id] = struct{}{}
		}
	}
	return members
}
