// Package comparator computes the difference between a desired-state record
// and the corresponding record's actual state on the Odoo server, field by
// field, accounting for the different comparison semantics relational and
// property-bag fields require versus plain scalars.
package comparator
