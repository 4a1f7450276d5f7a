package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned once the channel has been closed and every
	// buffered message has been consumed.
	ErrClosed = errors.New("broadcast: channel closed")

	// ErrLagged matches any *LaggedError.
	ErrLagged = errors.New("broadcast: subscriber lagged")

	// ErrEmpty is returned by TryRecv when no message is ready.
	ErrEmpty = errors.New("broadcast: no message available")
)

// LaggedError reports how many messages a subscription missed because the
// producers overwrote them before they were read. The subscription has
// already been moved to the oldest retained message, so the caller can
// simply receive again.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged behind by %d messages", e.Skipped)
}

// Is reports true for ErrLagged so callers can use errors.Is.
func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}
