package source

import (
	"context"
	"errors"
	"io"

	"tabload/internal/transformer"
)

// Stream reads r to the end and sends each row to out as a pooled
// *transformer.Row of the given width (at least the header width; extra
// positions are nil). onErr receives row errors, which do not stop the
// stream. Stream does not close out.
func Stream(ctx context.Context, r Reader, width int, out chan<- *transformer.Row, onErr func(*RowError)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		vals, line, err := r.Read()
		if err == io.EOF {
			return nil
		}
		var re *RowError
		if errors.As(err, &re) {
			if onErr != nil {
				onErr(re)
			}
			continue
		}
		if err != nil {
			return err
		}

		row := transformer.GetRow(max(width, len(vals)))
		copy(row.V, vals)
		row.Line = line

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}
