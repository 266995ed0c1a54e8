// Package core defines sentinel errors.
package core

import "errors"

var (
	// Startup errors
	ErrResolution = errors.New("ipsniff: no usable local address")

	// Capture handle errors
	ErrPermissionDenied       = errors.New("ipsniff: permission denied")
	ErrUnsupportedPlatform    = errors.New("ipsniff: unsupported platform")
	ErrPromiscuousUnsupported = errors.New("ipsniff: promiscuous mode unavailable")
	ErrInterfaceNotFound      = errors.New("ipsniff: no interface owns bind address")

	// Packet decoding errors
	ErrTruncated  = errors.New("ipsniff: truncated ipv4 header")
	ErrBadVersion = errors.New("ipsniff: not an ipv4 datagram")

	// Configuration errors
	ErrConfigInvalid = errors.New("ipsniff: invalid configuration")
)

// DecodeReason returns a short label for a per-frame decode error, used as a
// metric label and in sink output.
func DecodeReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTruncated):
		return "truncated"
	case errors.Is(err, ErrBadVersion):
		return "bad_version"
	default:
		return "other"
	}
}
