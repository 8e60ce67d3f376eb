package rules

import "github.com/opensource-finance/harrier/internal/domain"

// BuiltinPolicies returns the default alert policies seeded for new
// tenants. They are stored like user policies and can be edited or
// disabled through the API.
func BuiltinPolicies(tenantID string) []*domain.AlertPolicy {
	return []*domain.AlertPolicy{
		{
			ID:          "builtin-critical-score",
			TenantID:    tenantID,
			Name:        "critical suspicion score",
			Description: "Account score at or above 80",
			Expression:  `score >= 80.0`,
			Severity:    domain.SeverityCritical,
			Enabled:     true,
		},
		{
			ID:          "builtin-cycle-ring",
			TenantID:    tenantID,
			Name:        "cycle ring member",
			Description: "Account assigned to a cycle ring",
			Expression:  `ring_pattern == "cycle"`,
			Severity:    domain.SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "builtin-velocity-hub",
			TenantID:    tenantID,
			Name:        "high velocity smurfing hub",
			Description: "Burst activity combined with a fan pattern",
			Expression:  `"high_velocity" in patterns && (ring_pattern == "fan_out" || ring_pattern == "fan_in")`,
			Severity:    domain.SeverityCritical,
			Enabled:     true,
		},
		{
			ID:          "builtin-shell-chain",
			TenantID:    tenantID,
			Name:        "shell chain participant",
			Description: "Account flagged as a pass-through shell",
			Expression:  `"shell_account" in patterns`,
			Severity:    domain.SeverityInfo,
			Enabled:     true,
		},
	}
}
