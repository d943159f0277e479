package policy

import (
	"time"

	"github.com/odoodrift/odoodrift/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyInput represents the input data fed to a Rego module for evaluation.
type PolicyInput struct {
	// Operation is the single operation being evaluated, when evaluating at
	// operation granularity.
	Operation *engine.Operation `json:"operation,omitempty"`

	// Plan is the execution plan being evaluated, when evaluating at plan
	// granularity.
	Plan *engine.ExecutionPlan `json:"plan,omitempty"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// User is the user performing the operation.
	User string `json:"user,omitempty"`

	// Environment is the environment (e.g., "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the kind of evaluation being performed ("plan" or
	// "operation").
	Operation string `json:"operation,omitempty"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}

// ValidationError represents a policy validation error.
type ValidationError struct {
	// Field is the field that failed validation.
	Field string `json:"field"`

	// Message describes the validation error.
	Message string `json:"message"`

	// Value is the invalid value.
	Value interface{} `json:"value,omitempty"`
}

// PolicyReport represents a comprehensive policy evaluation report.
type PolicyReport struct {
	// ID is the unique identifier for this report.
	ID string `json:"id"`

	// GeneratedAt is when the report was generated.
	GeneratedAt time.Time `json:"generated_at"`

	// Results are the policy evaluation results.
	Results []*engine.PolicyResult `json:"results"`

	// Summary provides aggregate statistics.
	Summary *PolicySummary `json:"summary"`

	// Recommendations lists recommended actions.
	Recommendations []string `json:"recommendations,omitempty"`
}

// PolicySummary provides aggregate statistics for policy evaluation.
type PolicySummary struct {
	// TotalPolicies is the total number of policies evaluated.
	TotalPolicies int `json:"total_policies"`

	// TotalViolations is the total number of violations.
	TotalViolations int `json:"total_violations"`

	// ViolationsBySeverity breaks down violations by severity.
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`

	// TotalWarnings is the total number of warnings.
	TotalWarnings int `json:"total_warnings"`

	// AllowedOperations is the number of allowed operations.
	AllowedOperations int `json:"allowed_operations"`

	// BlockedOperations is the number of blocked operations.
	BlockedOperations int `json:"blocked_operations"`

	// EvaluationDuration is the total evaluation time.
	EvaluationDuration time.Duration `json:"evaluation_duration"`
}
