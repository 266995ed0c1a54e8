//go:build !unix && !windows

package capture

func isTransientErrno(error) bool { return false }
