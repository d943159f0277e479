package engine

import (
	"encoding/json"
	"fmt"
)

// DomainOp is a comparison operator usable in a Domain triple, restricted to
// the operators Odoo's expression evaluator understands.
type DomainOp string

const (
	DomainOpEqual        DomainOp = "="
	DomainOpNotEqual      DomainOp = "!="
	DomainOpGreater       DomainOp = ">"
	DomainOpGreaterEqual  DomainOp = ">="
	DomainOpLess          DomainOp = "<"
	DomainOpLessEqual     DomainOp = "<="
	DomainOpLike          DomainOp = "like"
	DomainOpNotLike       DomainOp = "not like"
	DomainOpILike         DomainOp = "ilike"
	DomainOpNotILike      DomainOp = "not ilike"
	DomainOpEqualLike     DomainOp = "=like"
	DomainOpEqualILike    DomainOp = "=ilike"
	DomainOpIn            DomainOp = "in"
	DomainOpNotIn         DomainOp = "not in"
	DomainOpChildOf       DomainOp = "child_of"
	DomainOpParentOf      DomainOp = "parent_of"
	DomainOpSetEqual      DomainOp = "=?"
)

var validDomainOps = map[DomainOp]bool{
	DomainOpEqual: true, DomainOpNotEqual: true, DomainOpGreater: true, DomainOpGreaterEqual: true,
	DomainOpLess: true, DomainOpLessEqual: true, DomainOpLike: true, DomainOpNotLike: true,
	DomainOpILike: true, DomainOpNotILike: true, DomainOpEqualLike: true, DomainOpEqualILike: true,
	DomainOpIn: true, DomainOpNotIn: true, DomainOpChildOf: true, DomainOpParentOf: true, DomainOpSetEqual: true,
}

// DomainConnective is one of Odoo's prefix (Polish-notation) logical
// operators: "&" (and), "|" (or), "!" (not).
type DomainConnective string

const (
	DomainAnd DomainConnective = "&"
	DomainOr  DomainConnective = "|"
	DomainNot DomainConnective = "!"
)

// DomainTerm is one leaf condition of a Domain: (field, operator, value).
type DomainTerm struct {
	Field    string
	Operator DomainOp
	Value    FieldValue
}

// MarshalJSON renders the term as the 3-element array Odoo expects on the wire.
func (t DomainTerm) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{t.Field, t.Operator, t.Value})
}

func (t DomainTerm) validate() error {
	if t.Field == "" {
		return NewValidationError("rpc: domain triple has an empty field name", nil).WithCode(ErrCodeValidation)
	}
	if !validDomainOps[t.Operator] {
		return NewValidationError(
			fmt.Sprintf("rpc: domain triple on %q uses unsupported operator %q", t.Field, t.Operator), nil,
		).WithCode(ErrCodeValidation).WithResource(t.Field)
	}
	return nil
}

// Domain is an Odoo domain expression: a flat, prefix-notation sequence of
// DomainTerm leaves and DomainConnective operators, e.g.
//
//	Domain{DomainAnd, DomainTerm{"state", DomainOpEqual, "done"}, DomainTerm{"amount", DomainOpGreater, 0}}
//
// for ("state" = "done") and ("amount" > 0). An empty Domain matches every record.
type Domain []interface{}

// MarshalJSON renders the domain as the flat array Odoo's search/search_read
// methods expect, defaulting a nil/empty Domain to "[]" rather than "null".
func (d Domain) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]interface{}(d))
}

// Validate checks that every element is a DomainTerm with a supported
// operator or a known DomainConnective, and that the prefix-notation
// connectives have enough operands to fully reduce to one expression — the
// same shape check Odoo's own expression evaluator performs before issuing a
// query.
func (d Domain) Validate() error {
	if len(d) == 0 {
		return nil
	}
	count := 0
	for i := len(d) - 1; i >= 0; i-- {
		switch v := d[i].(type) {
		case DomainTerm:
			if err := v.validate(); err != nil {
				return err
			}
			count++
		case DomainConnective:
			switch v {
			case DomainNot:
				if count < 1 {
					return NewValidationError(`rpc: domain "!" has no operand to negate`, nil).WithCode(ErrCodeValidation)
				}
			case DomainAnd, DomainOr:
				if count < 2 {
					return NewValidationError(
						fmt.Sprintf("rpc: domain %q has fewer than two operands", string(v)), nil,
					).WithCode(ErrCodeValidation)
				}
				count--
			default:
				return NewValidationError(fmt.Sprintf("rpc: unknown domain connective %q", string(v)), nil).WithCode(ErrCodeValidation)
			}
		default:
			return NewValidationError(fmt.Sprintf("rpc: domain element %d has unsupported type %T", i, d[i]), nil).WithCode(ErrCodeValidation)
		}
	}
	if count != 1 {
		return NewValidationError(
			fmt.Sprintf("rpc: domain reduces to %d top-level expressions, want exactly 1", count), nil,
		).WithCode(ErrCodeValidation)
	}
	return nil
}
