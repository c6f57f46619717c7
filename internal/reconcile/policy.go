package reconcile

import (
	"fmt"
	"strings"

	"hermannm.dev/enumnames"

	"tabload/internal/columns"
)

// PolicyKind selects what an upsert does with a row whose key already exists.
type PolicyKind uint8

const (
	DoNothing PolicyKind = iota + 1
	Replace
	UpdateColumns
)

var policyKindNames = enumnames.NewMap(map[PolicyKind]string{
	DoNothing:     "do-nothing",
	Replace:       "replace",
	UpdateColumns: "update",
})

func (k PolicyKind) String() string {
	return policyKindNames.GetNameOrFallback(k, "invalid_policy")
}

// ConflictPolicy is the upsert behavior on primary key conflicts.
// The zero value is invalid; use ParseConflictPolicy or the constructors.
type ConflictPolicy struct {
	Kind    PolicyKind
	Columns []string // only for UpdateColumns
}

func DoNothingPolicy() ConflictPolicy { return ConflictPolicy{Kind: DoNothing} }
func ReplacePolicy() ConflictPolicy   { return ConflictPolicy{Kind: Replace} }

func UpdateColumnsPolicy(cols ...string) ConflictPolicy {
	return ConflictPolicy{Kind: UpdateColumns, Columns: cols}
}

// ParseConflictPolicy accepts:
//
//	""  | "do-nothing" | "nothing"  -> DoNothing
//	"replace"                       -> Replace
//	"update:a,b"                    -> UpdateColumns(a, b)
//
// Anything else is an *InvalidConflictPolicyError.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case "", "do-nothing", "nothing":
		return DoNothingPolicy(), nil
	case "replace":
		return ReplacePolicy(), nil
	}

	const prefix = "update:"
	if !strings.HasPrefix(strings.ToLower(v), prefix) {
		return ConflictPolicy{}, &InvalidConflictPolicyError{
			Policy: s,
			Reason: "expected do-nothing, replace or update:<columns>",
		}
	}
	var cols []string
	for _, c := range strings.Split(v[len(prefix):], ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return ConflictPolicy{}, &InvalidConflictPolicyError{Policy: s, Reason: "empty column list"}
	}
	return UpdateColumnsPolicy(cols...), nil
}

// Validate checks the policy against the table it will be applied to.
func (p ConflictPolicy) Validate(cols columns.List) error {
	switch p.Kind {
	case DoNothing, Replace:
		return nil
	case UpdateColumns:
		if len(p.Columns) == 0 {
			return &InvalidConflictPolicyError{Policy: p.String(), Reason: "empty column list"}
		}
		for _, c := range p.Columns {
			if !cols.Contains(c) {
				return &InvalidConflictPolicyError{Policy: p.String(), Reason: fmt.Sprintf("unknown column %q", c)}
			}
		}
		return nil
	default:
		return &InvalidConflictPolicyError{Policy: p.String(), Reason: "unknown action"}
	}
}

// UpdateSet returns the columns overwritten on conflict: none for
// DoNothing, every column for Replace, the listed ones (with the table's
// spelling) for UpdateColumns.
func (p ConflictPolicy) UpdateSet(cols columns.List) []string {
	switch p.Kind {
	case Replace:
		return cols.Names()
	case UpdateColumns:
		out := make([]string, 0, len(p.Columns))
		for _, c := range p.Columns {
			if i := cols.Index(c); i >= 0 {
				out = append(out, cols.At(i).Name)
			}
		}
		return out
	default:
		return nil
	}
}

func (p ConflictPolicy) String() string {
	if p.Kind == UpdateColumns {
		return "update:" + strings.Join(p.Columns, ",")
	}
	return p.Kind.String()
}
