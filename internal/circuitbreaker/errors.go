package circuitbreaker

import (
	"fmt"
	"time"
)

// ErrOpen describes a circuit that is blocking requests: its identifier
// and how long until it may be retried. The circuits' CheckAndAllow
// methods do not return it (they report a blocking circuit as false
// with a nil error), and no caller maps it to an HTTP status.
type ErrOpen struct {
	Identifier string
	RetryAfter time.Duration
}

func (e *ErrOpen) Error() string {
	return fmt.Sprintf("circuitbreaker: %s is open, retry after %s", e.Identifier, e.RetryAfter)
}
