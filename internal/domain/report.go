package domain

// Pattern tags attached to rings by the detectors.
const (
	PatternCycle      = "cycle"
	PatternFanOut     = "fan_out"
	PatternFanIn      = "fan_in"
	PatternShellChain = "shell_chain"
)

// Extra tags attached to accounts by the scoring engine.
const (
	TagHighVelocity       = "high_velocity"
	TagShellAccount       = "shell_account"
	TagHighVolumeMerchant = "high_volume_merchant"
)

// RingUnassigned marks a suspicious account claimed by no ring.
const RingUnassigned = "UNASSIGNED"

// Ring is one detected group of accounts sharing a pattern. Member order is
// meaningful: cyclic traversal order for cycles, chain position for shell
// chains, hub-first (fan_out) or hub-last (fan_in) for smurfing. InWindow is
// only meaningful for smurfing rings and is false otherwise.
type Ring struct {
	Members  []string `json:"members"`
	Pattern  string   `json:"pattern"`
	InWindow bool     `json:"in_window"`
}

// Hub returns the anchoring account of a smurfing ring, or "" for other
// patterns.
func (r *Ring) Hub() string {
	if len(r.Members) == 0 {
		return ""
	}
	switch r.Pattern {
	case PatternFanOut:
		return r.Members[0]
	case PatternFanIn:
		return r.Members[len(r.Members)-1]
	}
	return ""
}

// AccountScore accumulates suspicion evidence for a single account during
// one analysis run. Patterns is insertion-ordered and duplicate-free.
type AccountScore struct {
	Score    float64  `json:"score"`
	Patterns []string `json:"patterns"`
}

// AddPattern appends tag unless the account already carries it.
func (s *AccountScore) AddPattern(tag string) {
	for _, p := range s.Patterns {
		if p == tag {
			return
		}
	}
	s.Patterns = append(s.Patterns, tag)
}

// SuspiciousAccount is one entry of the final ranked account list.
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
	RingID           string   `json:"ring_id"`
}

// FraudRing is one assembled ring of the final report.
type FraudRing struct {
	RingID         string   `json:"ring_id"`
	MemberAccounts []string `json:"member_accounts"`
	PatternType    string   `json:"pattern_type"`
	RiskScore      float64  `json:"risk_score"`
}

// Summary aggregates run-level counters for the report header.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// ReportNode is the pass-through view of one graph account for downstream
// visualization.
type ReportNode struct {
	ID             string   `json:"id"`
	SuspicionScore float64  `json:"suspicion_score"`
	Flags          []string `json:"flags"`
}

// ReportEdge is the pass-through view of one aggregated graph edge.
type ReportEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

// Diagnostic records how a detector run ended. A failed detector contributes
// an empty ring list to the report instead of aborting the analysis; the
// diagnostic is the only place that distinguishes "found nothing" from
// "fell over and was suppressed".
type Diagnostic struct {
	Detector string `json:"detector"`
	Failed   bool   `json:"failed"`
	Detail   string `json:"detail,omitempty"`
	Rings    int    `json:"rings"`
}

// Report is the complete output of one analysis run. Field names follow the
// published wire contract, which predates this engine, hence snake_case.
type Report struct {
	AnalysisID string `json:"analysis_id,omitempty"`

	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []FraudRing         `json:"fraud_rings"`
	Summary            Summary             `json:"summary"`
	Nodes              []ReportNode        `json:"nodes"`
	Edges              []ReportEdge        `json:"edges"`

	// AccountRings maps each claimed account to the ring that claimed it
	// first. Exposed for collaborators; not part of the judge contract.
	AccountRings map[string]string `json:"account_rings,omitempty"`

	Alerts      []Alert      `json:"alerts,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}
