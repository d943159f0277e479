package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedModelPolicy(),
		bulkDeletePolicy(),
		requiredFieldsPolicy(),
	}
}

// protectedModelPolicy denies delete operations against models that are
// never safe to remove via a drift-reconciliation plan.
func protectedModelPolicy() Policy {
	return Policy{
		Name:        "protected-models",
		Description: "Denies delete operations against res.company and res.users",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "delete"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package odoodrift.policies.protected

import rego.v1

protected_models := {"res.company", "res.users"}

deny contains violation if {
	input.operation
	op := input.operation
	op.op == "delete"
	op.model in protected_models

	violation := {
		"message": sprintf("refusing to delete a %s record (%s)", [op.model, op.id]),
		"severity": "critical",
		"operation_id": op.id,
	}
}`,
	}
}

// bulkDeletePolicy warns when a plan deletes an unusually large number of
// records in a single apply, a common signal of a mis-scoped desired state.
func bulkDeletePolicy() Policy {
	return Policy{
		Name:        "bulk-delete-threshold",
		Description: "Warns when a plan deletes more than 25 records",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety", "delete"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package odoodrift.policies.bulk_delete

import rego.v1

max_deletes := 25

deny contains violation if {
	input.plan
	plan := input.plan

	delete_count := count([op |
		some op in plan.operations
		op.op == "delete"
	])
	delete_count > max_deletes

	violation := {
		"message": sprintf("plan deletes %d records, which exceeds the %d-record review threshold", [delete_count, max_deletes]),
		"severity": "warning",
	}
}`,
	}
}

// requiredFieldsPolicy denies create operations that carry no field values
// at all, which almost always indicates a malformed desired-state record
// rather than an intentional empty create.
func requiredFieldsPolicy() Policy {
	return Policy{
		Name:        "create-requires-fields",
		Description: "Denies create operations with no field values",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"validation", "create"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package odoodrift.policies.required_fields

import rego.v1

deny contains violation if {
	input.operation
	op := input.operation
	op.op == "create"
	count(object.get(op, "fields", {})) == 0

	violation := {
		"message": sprintf("create operation %s has no field values", [op.id]),
		"severity": "error",
		"operation_id": op.id,
	}
}`,
	}
}
