package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// compensation undoes one completed step.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga tracks completed steps of one operation. When the transaction manager
// cannot roll back (memory backend) the recorded compensations are replayed in
// reverse order on failure. On an atomic backend the list is only kept for
// logging and never replayed.
type saga struct {
	enabled bool
	timeout time.Duration
	done    []compensation
}

func newSaga(enabled bool, timeout time.Duration) *saga {
	return &saga{enabled: enabled, timeout: timeout}
}

// run executes action and, on success, records undo. A nil undo marks a step
// with nothing to revert.
func (s *saga) run(ctx context.Context, name string, action, undo func(ctx context.Context) error) error {
	if err := action(ctx); err != nil {
		return err
	}
	if undo != nil {
		s.done = append(s.done, compensation{name: name, undo: undo})
	}
	return nil
}

// compensate replays recorded undos newest first. It runs detached from the
// caller's cancellation with its own deadline and keeps going past failures.
func (s *saga) compensate(ctx context.Context) error {
	if !s.enabled || len(s.done) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var errs []error
	for i := len(s.done) - 1; i >= 0; i-- {
		c := s.done[i]
		if err := c.undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", c.name, err))
		}
	}
	s.done = nil
	return errors.Join(errs...)
}
