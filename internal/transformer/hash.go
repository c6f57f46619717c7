package transformer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HashSpec derives a deterministic key column from other columns of the
// row. A table without a natural key can use the target column as its
// primary key so that reloading the same file upserts instead of
// duplicating rows.
//
//	"row_hash": {
//	  "fields": ["capital", "country"],
//	  "target_field": "row_hash",
//	  "include_field_names": true,
//	  "trim_space": true
//	}
//
// Fields are concatenated in order using Separator (default 0x1f). NULL is
// encoded as a single NUL byte so it differs from the empty string. The
// output is lowercase hex SHA-256.
type HashSpec struct {
	Fields            []string `json:"fields"`
	TargetField       string   `json:"target_field"`
	IncludeFieldNames bool     `json:"include_field_names"`
	TrimSpace         bool     `json:"trim_space"`
	Separator         string   `json:"separator"`
}

// Hasher is a HashSpec with its field positions resolved against a header.
type Hasher struct {
	spec      HashSpec
	fieldIdx  []int
	targetIdx int
	sep       string
}

// Compile resolves the spec's fields (case-insensitively) against columns.
func (s HashSpec) Compile(columns []string) (*Hasher, error) {
	if s.TargetField == "" {
		return nil, fmt.Errorf("row_hash: target_field is required")
	}
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("row_hash: fields must not be empty")
	}

	c := &Hasher{spec: s, targetIdx: indexOf(columns, s.TargetField), sep: s.Separator}
	if c.targetIdx < 0 {
		return nil, fmt.Errorf("row_hash: target column %q not found", s.TargetField)
	}
	if c.sep == "" {
		c.sep = "\x1f"
	}
	for _, f := range s.Fields {
		i := indexOf(columns, f)
		if i < 0 {
			return nil, fmt.Errorf("row_hash: field %q not found", f)
		}
		if i == c.targetIdx {
			return nil, fmt.Errorf("row_hash: field %q is the target column", f)
		}
		c.fieldIdx = append(c.fieldIdx, i)
	}
	return c, nil
}

// Apply writes the hash of v's fields into the target position.
func (c *Hasher) Apply(v []any, b *strings.Builder) {
	b.Reset()
	for i, idx := range c.fieldIdx {
		if i > 0 {
			b.WriteString(c.sep)
		}
		if c.spec.IncludeFieldNames {
			b.WriteString(c.spec.Fields[i])
			b.WriteByte('=')
		}
		appendCanonicalValue(b, v[idx], c.spec.TrimSpace)
	}
	sum := sha256.Sum256([]byte(b.String()))
	v[c.targetIdx] = hex.EncodeToString(sum[:])
}

// HashLoopRows fills the target column of every row from in and forwards it
// to out. It returns when in is closed or ctx is done; rows received after
// cancellation are dropped.
func HashLoopRows(ctx context.Context, h *Hasher, in <-chan *Row, out chan<- *Row) error {
	var b strings.Builder
	for r := range in {
		if err := ctx.Err(); err != nil {
			r.Drop()
			for r := range in {
				r.Drop()
			}
			return err
		}
		h.Apply(r.V, &b)

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
			for r := range in {
				r.Drop()
			}
			return ctx.Err()
		}
	}
	return nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// appendCanonicalValue appends a stable representation of v without going
// through fmt for the common types.
func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')
	case string:
		if trimSpace && hasEdgeSpace(t) {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))
	case fmt.Stringer:
		b.WriteString(t.String())
	default:
		fmt.Fprint(b, t)
	}
}

func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t'
}
