//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package capture

import (
	"fmt"
	"net"
	"net/netip"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
)

// ipConn is the restricted capture available on BSD kernels: a raw ICMP
// socket, read with recvfrom so the IP header is kept.
type ipConn struct {
	pc  *net.IPConn
	raw syscall.RawConn
}

func openPlatform(bind netip.Addr, opts Options) (rawConn, string, error) {
	pc, err := net.ListenPacket("ip4:icmp", bind.String())
	if err != nil {
		return nil, "", errors.WithStack(err)
	}
	ip := pc.(*net.IPConn)
	raw, err := ip.SyscallConn()
	if err != nil {
		ip.Close()
		return nil, "", errors.WithStack(err)
	}
	log.GetLogger().WithField("os", runtime.GOOS).Warn("restricted capture: only ICMP addressed to this host is visible")
	return &ipConn{pc: ip, raw: raw}, opts.Interface, nil
}

func (c *ipConn) ReadFrom(b []byte) (int, net.Addr, error) {
	var (
		n    int
		from unix.Sockaddr
		rerr error
	)
	err := c.raw.Read(func(fd uintptr) bool {
		n, from, rerr = unix.Recvfrom(int(fd), b, 0)
		return rerr != unix.EAGAIN
	})
	if err == nil {
		err = rerr
	}
	if err != nil {
		return 0, nil, errors.WithStack(err)
	}
	var addr net.Addr
	if sa, ok := from.(*unix.SockaddrInet4); ok {
		addr = &net.IPAddr{IP: net.IP(sa.Addr[:])}
	}
	return n, addr, nil
}

func (c *ipConn) SetPromiscuous(on bool) error {
	if !on {
		return nil
	}
	return fmt.Errorf("%w: raw IP sockets on %s cannot receive all traffic", core.ErrUnsupportedPlatform, runtime.GOOS)
}

func (c *ipConn) Close() error {
	return c.pc.Close()
}
