package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/rs/zerolog"
)

// Engine implements engine.PolicyEngine using Rego-compiled policies
// evaluated against a plan or a single operation.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine pre-loaded with the built-in
// guardrails.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	store := inmem.New()

	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           store,
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// EvaluatePlan evaluates every enabled policy against plan as a whole, then
// against each of its operations individually.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.ExecutionPlan) (*engine.PolicyResult, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	var allViolations []engine.PolicyViolation
	var warnings []string

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		planInput := &PolicyInput{
			Plan: plan,
			Context: &PolicyContext{
				Timestamp: time.Now(),
				Operation: "plan",
			},
		}
		violations, err := e.evaluatePolicy(ctx, cp, planInput)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", cp.policy.Name).Str("plan", plan.ID).
				Msg("plan policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		allViolations = append(allViolations, violations...)

		for i := range plan.Operations {
			opInput := &PolicyInput{
				Operation: &plan.Operations[i],
				Context: &PolicyContext{
					Timestamp: time.Now(),
					Operation: "operation",
				},
			}
			opViolations, err := e.evaluatePolicy(ctx, cp, opInput)
			if err != nil {
				e.logger.Error().Err(err).Str("policy", cp.policy.Name).Str("operation", plan.Operations[i].ID).
					Msg("operation policy evaluation failed")
				warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed for %s: %v", cp.policy.Name, plan.Operations[i].ID, err))
				continue
			}
			allViolations = append(allViolations, opViolations...)
		}
	}

	allowed := true
	for i := range allViolations {
		if allViolations[i].Severity == string(SeverityError) || allViolations[i].Severity == string(SeverityCritical) {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("plan_id", plan.ID).
		Int("violations", len(allViolations)).
		Dur("duration", time.Since(startTime)).
		Msg("plan policy evaluation completed")

	return &engine.PolicyResult{
		Allowed:     allowed,
		Violations:  allViolations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// LoadPolicies loads Rego policy bundles from disk, in addition to the
// built-in policies.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).Str("policy", policies[i].Name).Msg("failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("policies loaded")
	return nil
}

// evaluatePolicy evaluates a single compiled policy against input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *PolicyInput) ([]engine.PolicyViolation, error) {
	packageName := extractPackageName(cp.policy.Rego)
	query := fmt.Sprintf("data.%s.deny", packageName)

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []engine.PolicyViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.createViolation(cp.policy, d, input))
		}
	}

	return violations, nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(regoSrc string) string {
	lines := strings.Split(regoSrc, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "odoodrift.policies"
}

// createViolation builds an engine.PolicyViolation from a policy's deny result.
func (e *Engine) createViolation(policy *Policy, result interface{}, input *PolicyInput) engine.PolicyViolation {
	violation := engine.PolicyViolation{
		Policy:   policy.Name,
		Severity: string(policy.Severity),
	}

	if input.Operation != nil {
		violation.OperationID = input.Operation.ID
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
		if opID, ok := v["operation_id"].(string); ok {
			violation.OperationID = opID
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles a policy and stores it for evaluation.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query("data"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("policy compiled")
	return nil
}

// loadBuiltinPolicies compiles and stores every built-in policy.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		if err := e.compileAndStorePolicy(ctx, &e.builtinPolicies[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtinPolicies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(e.builtinPolicies)).Msg("built-in policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// ReloadPolicies clears and reloads the built-in policy set.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	return e.loadBuiltinPolicies(ctx)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = true
	e.logger.Info().Str("policy", name).Msg("policy enabled")
	return nil
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = false
	e.logger.Info().Str("policy", name).Msg("policy disabled")
	return nil
}

var _ engine.PolicyEngine = (*Engine)(nil)
