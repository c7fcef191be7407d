// Package transport defines the outbound messaging port and an in-memory
// recorder used by tests and dry runs.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Messenger delivers messages to one recipient address.
//
// SendSession sends free-form text with at most one media URL and is only
// accepted by the provider inside an open session. SendTemplate sends the
// pre-approved template with positional variables "1".."3".
// Both return the provider message id.
type Messenger interface {
	SendSession(ctx context.Context, to, body, mediaURL string) (string, error)
	SendTemplate(ctx context.Context, to string, vars map[string]string) (string, error)
}

// permanentError marks a rejection that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// SendError carries the provider's error code for logging.
type SendError struct {
	Code   int
	Status int
	Msg    string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("provider rejected message: status=%d code=%d: %s", e.Status, e.Code, e.Msg)
}
