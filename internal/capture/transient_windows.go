//go:build windows

package capture

import (
	"errors"

	"golang.org/x/sys/windows"
)

// WSAEINTR is not listed: closesocket on a blocked recvfrom reports it.
const wsaEWouldBlock windows.Errno = 10035

func isTransientErrno(err error) bool {
	return errors.Is(err, wsaEWouldBlock)
}
