package reconcile

import (
	"fmt"
	"strings"

	"tabload/internal/columns"
)

// SchemaConflictError is returned when input and destination disagree on
// column types (without AlterTypes) or when each side has columns the other
// lacks (without both expand flags).
type SchemaConflictError struct {
	Table     string
	Types     []columns.TypeConflict
	Missing   []string // destination columns absent from the input
	Extra     []string // input columns absent from the destination
	NeedFlags []string
}

func (e *SchemaConflictError) Error() string {
	var parts []string
	for _, c := range e.Types {
		parts = append(parts, fmt.Sprintf("%s: input %s vs destination %s", c.Name, c.Type, c.OtherType))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing from input: "+strings.Join(e.Missing, ","))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "missing from destination: "+strings.Join(e.Extra, ","))
	}
	return fmt.Sprintf("schema conflict on table %q (%s); requires %s",
		e.Table, strings.Join(parts, "; "), strings.Join(e.NeedFlags, " and "))
}

// SchemaOrderError is returned when the input has the destination's columns
// in a different order and Reorder is not set.
type SchemaOrderError struct {
	Table       string
	Input       []string
	Destination []string
}

func (e *SchemaOrderError) Error() string {
	return fmt.Sprintf("table %q: input columns %v are in a different order than destination %v; requires reorder",
		e.Table, e.Input, e.Destination)
}

// SchemaSubsetError is returned when the input lacks destination columns and
// ExpandInput is not set.
type SchemaSubsetError struct {
	Table   string
	Missing []string
}

func (e *SchemaSubsetError) Error() string {
	return fmt.Sprintf("table %q: input lacks destination columns %v; requires expand_input",
		e.Table, e.Missing)
}

// SchemaSupersetError is returned when the input has columns the destination
// lacks and ExpandDestination is not set.
type SchemaSupersetError struct {
	Table string
	Extra []string
}

func (e *SchemaSupersetError) Error() string {
	return fmt.Sprintf("table %q: input has columns %v the destination lacks; requires expand_destination",
		e.Table, e.Extra)
}

// InvalidConflictPolicyError reports a malformed upsert policy.
type InvalidConflictPolicyError struct {
	Policy string
	Reason string
}

func (e *InvalidConflictPolicyError) Error() string {
	return fmt.Sprintf("invalid conflict policy %q: %s", e.Policy, e.Reason)
}
