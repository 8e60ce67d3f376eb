// Package rules provides the CEL-Go based alert policy engine. Policies
// run over a finished analysis report and select which suspicious
// accounts raise alerts; they never change detection scores.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine compiles and evaluates alert policies.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	policies map[string]*CompiledPolicy
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.AlertPolicy
	Program cel.Program
}

// NewEngine creates an alert policy engine.
func NewEngine() (*Engine, error) {
	// One variable set per suspicious account; ring variables are zero
	// values when the account is unassigned.
	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
		cel.Variable("ring_id", cel.StringType),
		cel.Variable("ring_pattern", cel.StringType),
		cel.Variable("ring_risk", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		policies: make(map[string]*CompiledPolicy),
	}, nil
}

// Validate compiles a policy without mutating the loaded set.
func (e *Engine) Validate(cfg *domain.AlertPolicy) error {
	if cfg == nil {
		return fmt.Errorf("alert policy is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(cfg)
	return err
}

// Load compiles and loads a policy into the engine.
func (e *Engine) Load(cfg *domain.AlertPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.policies[cfg.ID] = compiled

	return nil
}

// LoadPolicies compiles and loads all enabled policies.
func (e *Engine) LoadPolicies(configs []*domain.AlertPolicy) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.Load(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload replaces the loaded policy set atomically. A compile error
// leaves the previous set in place.
func (e *Engine) Reload(configs []*domain.AlertPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledPolicy)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.policies = next

	return nil
}

// Evaluate runs every loaded policy against each suspicious account in
// the report and returns the alerts raised. Evaluation errors on a
// single account are skipped so one bad expression does not silence the
// remaining policies.
func (e *Engine) Evaluate(rpt *domain.Report) []domain.Alert {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 || rpt == nil {
		return nil
	}

	ringsByID := make(map[string]*domain.FraudRing, len(rpt.FraudRings))
	for i := range rpt.FraudRings {
		ringsByID[rpt.FraudRings[i].RingID] = &rpt.FraudRings[i]
	}

	var alerts []domain.Alert
	for _, acct := range rpt.SuspiciousAccounts {
		activation := map[string]any{
			"account_id":   acct.AccountID,
			"score":        acct.SuspicionScore,
			"patterns":     acct.DetectedPatterns,
			"ring_id":      "",
			"ring_pattern": "",
			"ring_risk":    0.0,
		}
		if acct.RingID != domain.RingUnassigned {
			activation["ring_id"] = acct.RingID
			if ring, ok := ringsByID[acct.RingID]; ok {
				activation["ring_pattern"] = ring.PatternType
				activation["ring_risk"] = ring.RiskScore
			}
		}

		for _, p := range policies {
			out, _, err := p.Program.Eval(activation)
			if err != nil {
				continue
			}
			if !truthy(out) {
				continue
			}
			alerts = append(alerts, domain.Alert{
				PolicyID:  p.Config.ID,
				Severity:  p.Config.Severity,
				AccountID: acct.AccountID,
				Score:     acct.SuspicionScore,
				RingID:    acct.RingID,
				Reason:    p.Config.Name,
			})
		}
	}

	return alerts
}

// Count returns the number of loaded policies.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// GetLoaded returns the currently loaded policy configurations.
func (e *Engine) GetLoaded() []*domain.AlertPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.AlertPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p.Config)
	}
	return out
}

// Close clears the loaded policy set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compile(cfg *domain.AlertPolicy) (*CompiledPolicy, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}

func truthy(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}
