//go:build windows

package capture

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const (
	ipHdrIncl = 2          // IP_HDRINCL
	sioRcvAll = 0x98000001 // SIO_RCVALL
	rcvAllOff = 0
	rcvAllOn  = 1
)

type winsockConn struct {
	fd windows.Handle
}

// openPlatform opens an AF_INET raw socket bound to bind with IP headers
// included. Promiscuous mode is SIO_RCVALL.
func openPlatform(bind netip.Addr, opts Options) (rawConn, string, error) {
	fd, err := windows.Socket(windows.AF_INET, windows.SOCK_RAW, windows.IPPROTO_IP)
	if err != nil {
		return nil, "", winsockError(err)
	}
	if err := windows.Bind(fd, &windows.SockaddrInet4{Addr: bind.As4()}); err != nil {
		windows.Closesocket(fd)
		return nil, "", winsockError(err)
	}
	if err := windows.SetsockoptInt(fd, windows.IPPROTO_IP, ipHdrIncl, 1); err != nil {
		windows.Closesocket(fd)
		return nil, "", winsockError(err)
	}
	return &winsockConn{fd: fd}, opts.Interface, nil
}

func winsockError(err error) error {
	if errors.Is(err, windows.WSAEACCES) {
		return errors.WithStack(fmt.Errorf("%w: %w", os.ErrPermission, err))
	}
	return errors.WithStack(err)
}

func (c *winsockConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, from, err := windows.Recvfrom(c.fd, b, 0)
	if err != nil {
		return 0, nil, errors.WithStack(err)
	}
	var addr net.Addr
	if sa, ok := from.(*windows.SockaddrInet4); ok {
		addr = &net.IPAddr{IP: net.IP(sa.Addr[:])}
	}
	return n, addr, nil
}

func (c *winsockConn) SetPromiscuous(on bool) error {
	in := uint32(rcvAllOff)
	if on {
		in = rcvAllOn
	}
	var returned uint32
	err := windows.WSAIoctl(c.fd, sioRcvAll, (*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)), nil, 0, &returned, nil, 0)
	return errors.WithStack(err)
}

func (c *winsockConn) Close() error {
	return errors.WithStack(windows.Closesocket(c.fd))
}
