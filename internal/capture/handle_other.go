//go:build !linux && !windows && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package capture

import (
	"fmt"
	"net/netip"
	"runtime"

	"firestige.xyz/ipsniff/internal/core"
)

func openPlatform(bind netip.Addr, opts Options) (rawConn, string, error) {
	return nil, "", fmt.Errorf("%w: no raw capture on %s", core.ErrUnsupportedPlatform, runtime.GOOS)
}
