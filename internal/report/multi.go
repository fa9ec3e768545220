package report

import (
	"context"
	"errors"
	"io"

	"github.com/livesync/backend/internal/session"
)

// Multi fans every event out to all of its reporters. Each reporter
// receives its own copy of the properties.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, event string, props session.Properties) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, event, props.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every reporter that is an io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
