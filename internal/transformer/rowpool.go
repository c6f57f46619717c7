// Package transformer holds the pooled row type that carries records from a
// source reader to the loader, and the row-level stages that run between
// them.
package transformer

import "sync"

// Row is a pooled container holding one positional record.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer calls Free once nothing references r or r.V.
//
// On ctx cancellation downstream stages may still be reading rows while the
// producer unwinds, so cancellation paths call Drop instead of Free and the
// row is never reused.
type Row struct {
	V    []any
	Line int // 1-based record number in the source
}

var rowPool sync.Pool

// GetRow returns a pooled Row with len(V) == colCount and every value nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		clear(r.V)
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without returning it to the pool.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}

// Detach copies the values out of the row so the row can be freed while the
// copy lives on.
func (r *Row) Detach() []any {
	return append([]any(nil), r.V...)
}
