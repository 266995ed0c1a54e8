package capture

import (
	"errors"
	"net"
)

// IsTransient reports whether a receive error should be retried. Interrupted
// and would-block calls and timeouts are transient; everything else,
// including a closed handle, is fatal.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrHandleClosed) || errors.Is(err, net.ErrClosed) {
		return false
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return isTransientErrno(err)
}
