//go:build linux

package capture

import (
	"net/netip"

	"github.com/mdlayher/packet"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// openPlatform opens an AF_PACKET datagram socket for ETH_P_IP on the
// interface owning bind. The kernel strips the link header, so every frame
// starts at the IPv4 header. Promiscuous mode is a PACKET_MR_PROMISC
// membership on that interface.
func openPlatform(bind netip.Addr, opts Options) (rawConn, string, error) {
	ifi, err := interfaceByAddr(bind, opts.Interface)
	if err != nil {
		return nil, "", err
	}

	conn, err := packet.Listen(ifi, packet.Datagram, unix.ETH_P_IP, nil)
	if err != nil {
		return nil, "", errors.WithStack(err)
	}
	return conn, ifi.Name, nil
}
