// Package reconcile decides how an inferred input schema is brought in line
// with a live destination schema.
//
// Planning is pure: NewPlan compares two column lists under a set of policy
// flags and returns either a typed schema error or a Plan describing the DDL
// to run and how to reshape input rows. Nothing touches the database until
// Apply is called with a plan.
package reconcile

import (
	"context"

	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/schema"
	"tabload/internal/table"
)

// Flags are the permissive policy switches. Each one unlocks exactly one
// kind of schema change; the zero value only accepts identical schemas.
type Flags struct {
	ExpandInput       bool `json:"expand_input"`
	ExpandDestination bool `json:"expand_destination"`
	Reorder           bool `json:"reorder"`
	AlterTypes        bool `json:"alter_types"`
}

// Action is the branch of the decision table a plan took.
type Action uint8

const (
	ActionNone Action = iota + 1
	ActionCreate
	ActionReorder
	ActionExpandInput
	ActionExpandDestination
	ActionExpandBoth
)

var actionNames = enumnames.NewMap(map[Action]string{
	ActionNone:              "none",
	ActionCreate:            "create",
	ActionReorder:           "reorder",
	ActionExpandInput:       "expand_input",
	ActionExpandDestination: "expand_destination",
	ActionExpandBoth:        "expand_both",
})

func (a Action) String() string {
	return actionNames.GetNameOrFallback(a, "invalid_action")
}

func (a Action) MarshalJSON() ([]byte, error) {
	return actionNames.MarshalToNameJSON(a)
}

// TypeChange is one ALTER COLUMN ... TYPE statement.
type TypeChange struct {
	Column string
	From   schema.TypeTag
	To     schema.TypeTag
}

// Plan is the outcome of reconciliation for one table.
type Plan struct {
	Table  string
	Action Action

	// AlterTypes runs before AddColumns.
	AlterTypes []TypeChange
	AddColumns []columns.Column

	// Final is the destination schema after the plan's DDL. Input rows are
	// shaped to exactly these columns, in this order.
	Final columns.List
}

// HasDDL reports whether Apply will execute any statement.
func (p *Plan) HasDDL() bool {
	return p.Action == ActionCreate || len(p.AlterTypes) > 0 || len(p.AddColumns) > 0
}

// PlanCreate is the plan for a destination table that does not exist: the
// input schema is used verbatim, with unobserved (Null) columns as Text.
func PlanCreate(name string, input columns.List) *Plan {
	final := input.Clone()
	for i, typ := range schema.ResolveNull(final.Types()) {
		final.SetType(i, typ)
	}
	return &Plan{Table: name, Action: ActionCreate, Final: final}
}

// NewPlan reconciles input against the existing destination schema.
//
// Type conflicts are checked first: a shared column conflicts when the input
// type does not promote into the destination type. With AlterTypes each
// conflict becomes an ALTER to the promoted type; without it the plan fails
// with *SchemaConflictError. Input columns typed Null never conflict.
//
// Name sets are compared next:
//
//	identical, same order   -> ActionNone
//	identical, other order  -> ActionReorder          (Reorder)
//	input ⊂ destination     -> ActionExpandInput      (ExpandInput)
//	destination ⊂ input     -> ActionExpandDestination (ExpandDestination)
//	neither                 -> ActionExpandBoth       (ExpandInput and ExpandDestination)
//
// A missing flag yields *SchemaOrderError, *SchemaSubsetError,
// *SchemaSupersetError or *SchemaConflictError respectively. The
// destination's primary key is carried into Final.
func NewPlan(d schema.Dialect, name string, input, dest columns.List, flags Flags) (*Plan, error) {
	p := &Plan{Table: name, Final: dest.Clone()}

	if err := p.planTypes(d, input, dest, flags); err != nil {
		return nil, err
	}

	missing := dest.Difference(input)
	extra := input.Difference(dest)

	switch {
	case input.Compare(dest) == columns.MatchExact:
		p.Action = ActionNone
	case input.Compare(dest) == columns.MatchReordered:
		if !flags.Reorder {
			return nil, &SchemaOrderError{Table: name, Input: input.Names(), Destination: dest.Names()}
		}
		p.Action = ActionReorder
	case input.IsSubsetOf(dest):
		if !flags.ExpandInput {
			return nil, &SchemaSubsetError{Table: name, Missing: missing.Names()}
		}
		p.Action = ActionExpandInput
	case input.IsSupersetOf(dest):
		if !flags.ExpandDestination {
			return nil, &SchemaSupersetError{Table: name, Extra: extra.Names()}
		}
		p.Action = ActionExpandDestination
		p.addColumns(extra)
	default:
		if !flags.ExpandInput || !flags.ExpandDestination {
			return nil, &SchemaConflictError{
				Table:     name,
				Missing:   missing.Names(),
				Extra:     extra.Names(),
				NeedFlags: []string{"expand_input", "expand_destination"},
			}
		}
		p.Action = ActionExpandBoth
		p.addColumns(extra)
	}
	return p, nil
}

func (p *Plan) planTypes(d schema.Dialect, input, dest columns.List, flags Flags) error {
	var conflicts []columns.TypeConflict
	for _, c := range input.Columns() {
		dc, ok := dest.Lookup(c.Name)
		if !ok || c.Type == schema.Null {
			continue
		}
		promoted, err := d.Promote(dc.Type, c.Type)
		if err != nil {
			return wrap.Errorf(err, "column %q", c.Name)
		}
		if promoted == d.Normalize(dc.Type) {
			continue
		}
		conflicts = append(conflicts, columns.TypeConflict{Name: dc.Name, Type: c.Type, OtherType: dc.Type})
		p.AlterTypes = append(p.AlterTypes, TypeChange{Column: dc.Name, From: dc.Type, To: promoted})
	}

	if len(conflicts) > 0 && !flags.AlterTypes {
		p.AlterTypes = nil
		return &SchemaConflictError{Table: p.Table, Types: conflicts, NeedFlags: []string{"alter_types"}}
	}
	for _, tc := range p.AlterTypes {
		p.Final.SetType(p.Final.Index(tc.Column), tc.To)
	}
	return nil
}

func (p *Plan) addColumns(extra columns.List) {
	for _, c := range extra.Columns() {
		if c.Type == schema.Null {
			c.Type = schema.Text
		}
		p.AddColumns = append(p.AddColumns, c)
		_ = p.Final.Add(c.Name, c.Type)
	}
}

// Shape returns t reshaped to Final: columns in Final's order with Final's
// types and primary key, absent columns filled with nil. t is not modified.
// Every chunk of a load goes through the same Shape.
func (p *Plan) Shape(t *table.Table) (*table.Table, error) {
	src := make([]int, p.Final.Len())
	for i, name := range p.Final.Names() {
		src[i] = t.Columns.Index(name)
	}
	for _, name := range t.Columns.Names() {
		if !p.Final.Contains(name) {
			return nil, &SchemaSupersetError{Table: p.Table, Extra: []string{name}}
		}
	}

	out := table.New(t.Name, t.Dialect, p.Final.Clone())
	out.Rows = make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		nr := make([]any, len(src))
		for i, j := range src {
			if j >= 0 {
				nr[i] = row[j]
			}
		}
		out.Rows[r] = nr
	}
	return out, nil
}

// Executor runs one DDL statement.
type Executor interface {
	ExecDDL(ctx context.Context, stmt string) error
}

// Builder renders DDL for one dialect. An empty string means the dialect
// needs no statement for that change.
type Builder interface {
	CreateTable(name string, cols columns.List, ifNotExists bool) string
	AddColumn(table string, col columns.Column) string
	AlterColumnType(table, column string, to schema.TypeTag) string
}

// Statements renders the plan's DDL in execution order: CREATE TABLE, or
// type changes followed by added columns.
func (p *Plan) Statements(b Builder) []string {
	if p.Action == ActionCreate {
		return []string{b.CreateTable(p.Table, p.Final, false)}
	}
	var out []string
	for _, tc := range p.AlterTypes {
		if s := b.AlterColumnType(p.Table, tc.Column, tc.To); s != "" {
			out = append(out, s)
		}
	}
	for _, c := range p.AddColumns {
		out = append(out, b.AddColumn(p.Table, c))
	}
	return out
}

// Apply executes the plan's DDL and then shapes t. The destination is always
// widened before the input, so a failed statement leaves t untouched.
func Apply(ctx context.Context, p *Plan, exec Executor, b Builder, t *table.Table) (*table.Table, error) {
	for _, stmt := range p.Statements(b) {
		if err := exec.ExecDDL(ctx, stmt); err != nil {
			return nil, wrap.Errorf(err, "failed to apply %s plan to table %q", p.Action, p.Table)
		}
	}
	return p.Shape(t)
}
