package domain

import "time"

// AlertPolicy selects which scored accounts page a human. Policies are CEL
// expressions evaluated over the finished report, not part of the fixed
// scoring rule set: they cannot change a score, only decide what to alert on.
type AlertPolicy struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression returning bool. Variables: account_id, score,
	// patterns, ring_id, ring_pattern, ring_risk.
	Expression string `json:"expression"`

	Severity string `json:"severity"`
	Enabled  bool   `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one policy match for one account.
type Alert struct {
	PolicyID  string  `json:"policy_id"`
	Severity  string  `json:"severity"`
	AccountID string  `json:"account_id"`
	Score     float64 `json:"score"`
	RingID    string  `json:"ring_id"`
	Reason    string  `json:"reason,omitempty"`
}
