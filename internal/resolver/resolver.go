// Package resolver discovers the local address the OS would use for outbound
// traffic. No packets are sent.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
)

// DefaultProbe is a well-known, always-routable rendezvous. It is only used to
// make the kernel pick a route; nothing is written to it.
const DefaultProbe = "8.8.8.8:80"

// LocalAddress returns the IPv4 address of the interface the OS routes probe
// through. Errors wrap core.ErrResolution.
func LocalAddress(ctx context.Context, probe string) (netip.Addr, error) {
	if probe == "" {
		probe = DefaultProbe
	}

	var d net.Dialer
	// A UDP "connect" only selects a route and local endpoint.
	conn, err := d.DialContext(ctx, "udp4", probe)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: probe %s: %v", core.ErrResolution, probe, err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: unexpected local address %v", core.ErrResolution, conn.LocalAddr())
	}

	addr, ok := netip.AddrFromSlice(local.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: invalid local address %v", core.ErrResolution, local.IP)
	}
	addr = addr.Unmap()
	if !addr.Is4() || addr.IsUnspecified() {
		return netip.Addr{}, fmt.Errorf("%w: no ipv4 route via %s (got %s)", core.ErrResolution, probe, addr)
	}

	log.GetLogger().WithField("probe", probe).Debugf("resolved local address %s", addr)
	return addr, nil
}
