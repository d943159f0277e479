// Package planner turns comparator output into a dependency-ordered
// ExecutionPlan: one Operation per changed record, wired together so a
// record that references another not-yet-created record waits for that
// record's create operation to run first.
package planner
