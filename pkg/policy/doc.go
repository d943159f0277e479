// Package policy provides Open Policy Agent (OPA) integration for odoodrift.
//
// This package implements policy enforcement for execution plans and the
// individual operations within them using the Rego policy language. It
// includes built-in policies for common governance requirements and
// supports custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a plan before it is applied:
//
//	result, err := engine.EvaluatePlan(ctx, plan)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/odoodrift/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. protected-models - Denies delete operations against res.company and res.users
//  2. bulk-delete-threshold - Warns when a plan deletes more than 25 records
//  3. create-requires-fields - Denies create operations with no field values
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files. A policy can
// evaluate at operation granularity (input.operation, run once per operation
// in the plan) or at plan granularity (input.plan, run once for the plan as
// a whole):
//
//	package custom.policies.backup_label
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.operation
//	    op := input.operation
//	    op.op in {"create", "update"}
//	    op.model == "res.partner"
//	    not op.fields.x_backup_owner
//
//	    violation := {
//	        "message": sprintf("res.partner record %s is missing x_backup_owner", [op.id]),
//	        "severity": "error",
//	        "operation_id": op.id,
//	    }
//	}
//
// # Policy Evaluation Points
//
// Policies are evaluated at one point in the odoodrift workflow: `apply`
// calls Engine.EvaluatePlan against the freshly built plan before executing
// any operation, so a denial blocks the run before a single record is
// touched. `plan` and `drift` do not evaluate policy, since neither writes
// to the server.
//
// # Severity Levels
//
// Violations have four severity levels:
//
//  - info: Informational messages
//  - warning: Issues that should be reviewed but don't block operations
//  - error: Issues that block operations
//  - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Each policy is parsed and prepared when it is loaded, so a syntax error
// surfaces at load time. Evaluation does not reuse that prepared query: every
// evaluation builds a fresh rego query from the policy source. The loader
// caches parsed policy files by path.
//
// # Context Injection
//
// Each evaluation's input carries a context object (PolicyContext) with
// these fields:
//
//  - User: Who initiated the operation
//  - Environment: Target environment (production, staging, etc.)
//  - Operation: The kind of evaluation, "plan" or "operation"
//  - Timestamp: When the evaluation occurred
//  - Dry run: Whether this is a dry-run evaluation
//
// EvaluatePlan fills in only Timestamp and Operation; User, Environment and
// Dry run are left empty.
package policy
