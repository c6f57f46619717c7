package load

import (
	"context"

	"tabload/internal/source"
	"tabload/internal/transformer"
)

// streamBuffer is the number of pooled rows in flight between the reader
// and the chunk loop.
const streamBuffer = 1024

// rowStream reads the source on its own goroutine (plus one for the row hash
// stage when configured) so parsing overlaps with writing. Rows arrive in
// source order.
type rowStream struct {
	rows      chan *transformer.Row
	errc      chan error
	cancel    context.CancelFunc
	producers int
}

func startStream(
	ctx context.Context,
	src source.Reader,
	width int,
	h *transformer.Hasher,
	onErr func(*source.RowError),
) *rowStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &rowStream{
		rows:      make(chan *transformer.Row, streamBuffer),
		errc:      make(chan error, 2),
		cancel:    cancel,
		producers: 1,
	}

	raw := s.rows
	if h != nil {
		raw = make(chan *transformer.Row, streamBuffer)
		s.producers = 2
		go func() {
			err := transformer.HashLoopRows(ctx, h, raw, s.rows)
			close(s.rows)
			s.errc <- err
		}()
	}

	go func() {
		err := source.Stream(ctx, src, width, raw, onErr)
		close(raw)
		s.errc <- err
	}()
	return s
}

// next reads up to n rows. done is true once the input is exhausted; the
// returned rows are still valid then.
func (s *rowStream) next(ctx context.Context, n int) (rows [][]any, done bool, err error) {
	rows = make([][]any, 0, n)
	for len(rows) < n {
		select {
		case r, ok := <-s.rows:
			if !ok {
				return rows, true, s.wait()
			}
			rows = append(rows, r.Detach())
			r.Free()
		case <-ctx.Done():
			return rows, false, ctx.Err()
		}
	}
	return rows, false, nil
}

// wait collects the producer errors. Call only after rows is closed.
func (s *rowStream) wait() error {
	var first error
	for ; s.producers > 0; s.producers-- {
		if err := <-s.errc; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// stop cancels the producers, drops undelivered rows and waits for the
// goroutines to exit. Safe after the stream has been fully read.
func (s *rowStream) stop() {
	s.cancel()
	for r := range s.rows {
		r.Drop()
	}
	_ = s.wait()
}
