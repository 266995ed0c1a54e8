// Package capture owns the raw capture endpoint and the receive loop that
// drives it.
package capture

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
	"firestige.xyz/ipsniff/internal/metrics"
)

// MaxSnapLen is the largest IPv4 datagram.
const MaxSnapLen = 65535

// ErrHandleClosed is returned by Receive once the handle has been closed.
var ErrHandleClosed = errors.New("capture: handle closed")

// OpenErrorKind classifies why a handle could not be opened.
type OpenErrorKind int

const (
	OpenOther OpenErrorKind = iota
	OpenPermissionDenied
	OpenUnsupportedPlatform
)

func (k OpenErrorKind) String() string {
	switch k {
	case OpenPermissionDenied:
		return "permission denied"
	case OpenUnsupportedPlatform:
		return "unsupported platform"
	default:
		return "other"
	}
}

// OpenError is returned by Open.
type OpenError struct {
	Kind OpenErrorKind
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open capture handle (%s): %v", e.Kind, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Is(target error) bool {
	switch e.Kind {
	case OpenPermissionDenied:
		return target == core.ErrPermissionDenied
	case OpenUnsupportedPlatform:
		return target == core.ErrUnsupportedPlatform
	}
	return false
}

// CapabilityError reports that promiscuous delivery could not be enabled.
// The handle stays usable and captures traffic addressed to the host.
type CapabilityError struct {
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%v: %v", core.ErrPromiscuousUnsupported, e.Err)
}

func (e *CapabilityError) Unwrap() []error {
	return []error{core.ErrPromiscuousUnsupported, e.Err}
}

// Options tunes Open.
type Options struct {
	// Interface overrides the interface derived from the bind address.
	Interface string
	// SnapLen caps the bytes kept per frame. Zero means MaxSnapLen.
	SnapLen int
}

// rawConn is the platform endpoint behind a Handle.
type rawConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	SetPromiscuous(on bool) error
	Close() error
}

// openConn creates the platform endpoint and returns it with the name of the
// interface it listens on. It must release everything it created on failure.
var openConn = openPlatform

// Handle is an open raw capture endpoint. Receive must only be called from
// one goroutine; Close may be called from any.
type Handle struct {
	conn    rawConn
	iface   string
	bind    netip.Addr
	buf     []byte
	state   atomic.Int32
	closed  atomic.Bool
	promisc atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Open creates a raw endpoint bound to bind. On failure the returned handle
// is nil and err is an *OpenError.
func Open(bind netip.Addr, opts Options) (*Handle, error) {
	if !bind.Is4() {
		return nil, &OpenError{Kind: OpenOther, Err: fmt.Errorf("bind address %s is not IPv4", bind)}
	}
	snapLen := opts.SnapLen
	if snapLen <= 0 || snapLen > MaxSnapLen {
		snapLen = MaxSnapLen
	}

	conn, iface, err := openConn(bind, opts)
	if err != nil {
		return nil, classifyOpenError(err)
	}

	h := &Handle{
		conn:  conn,
		iface: iface,
		bind:  bind,
		buf:   make([]byte, snapLen),
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"bind":      bind.String(),
		"interface": iface,
		"snap_len":  snapLen,
	}).Info("capture handle opened")
	return h, nil
}

func classifyOpenError(err error) *OpenError {
	var oe *OpenError
	switch {
	case errors.As(err, &oe):
		return oe
	case errors.Is(err, core.ErrUnsupportedPlatform):
		return &OpenError{Kind: OpenUnsupportedPlatform, Err: err}
	case errors.Is(err, os.ErrPermission):
		return &OpenError{Kind: OpenPermissionDenied, Err: err}
	default:
		return &OpenError{Kind: OpenOther, Err: err}
	}
}

// Activate makes the handle ready to receive without touching promiscuous
// mode.
func (h *Handle) Activate() error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	h.state.Store(int32(core.StateActive))
	metrics.CaptureActive.Set(1)
	return nil
}

// EnablePromiscuous asks the platform for all-traffic delivery and activates
// the handle. A *CapabilityError means the handle is active but only sees
// traffic addressed to the host.
func (h *Handle) EnablePromiscuous() error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	err := h.conn.SetPromiscuous(true)
	if aerr := h.Activate(); aerr != nil {
		return aerr
	}
	if err != nil {
		log.GetLogger().WithError(err).Warn("promiscuous mode unavailable, capturing host traffic only")
		return &CapabilityError{Err: err}
	}
	h.promisc.Store(true)
	metrics.PromiscuousEnabled.Set(1)
	log.GetLogger().WithField("interface", h.iface).Info("promiscuous mode enabled")
	return nil
}

// Receive blocks until a frame arrives. The returned bytes are a copy owned
// by the caller. It panics if the handle was never activated.
func (h *Handle) Receive() (core.RawFrame, error) {
	if core.CaptureState(h.state.Load()) != core.StateActive {
		if h.closed.Load() {
			return core.RawFrame{}, ErrHandleClosed
		}
		panic("capture: Receive called on a handle that was not activated")
	}

	n, from, err := h.conn.ReadFrom(h.buf)
	if err != nil {
		if h.closed.Load() {
			return core.RawFrame{}, ErrHandleClosed
		}
		return core.RawFrame{}, err
	}

	data := make([]byte, n)
	copy(data, h.buf[:n])
	return core.RawFrame{
		Data:      data,
		Sender:    from,
		Timestamp: time.Now(),
		Interface: h.iface,
	}, nil
}

// Close disables promiscuous mode, ignoring errors, and releases the
// endpoint. Only the first call has an effect.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		if h.promisc.Swap(false) {
			if err := h.conn.SetPromiscuous(false); err != nil {
				log.GetLogger().WithError(err).Debug("disable promiscuous mode failed")
			}
			metrics.PromiscuousEnabled.Set(0)
		}
		h.closeErr = h.conn.Close()
		h.state.Store(int32(core.StateInactive))
		metrics.CaptureActive.Set(0)
		log.GetLogger().WithField("interface", h.iface).Info("capture handle closed")
	})
	return h.closeErr
}

// State reports whether the handle is active.
func (h *Handle) State() core.CaptureState {
	return core.CaptureState(h.state.Load())
}

// Promiscuous reports whether all-traffic delivery is on.
func (h *Handle) Promiscuous() bool {
	return h.promisc.Load()
}

// Interface returns the name of the interface the handle listens on. It may
// be empty on platforms that bind by address only.
func (h *Handle) Interface() string {
	return h.iface
}

// Bind returns the address the handle was opened with.
func (h *Handle) Bind() netip.Addr {
	return h.bind
}

// interfaceByAddr returns the interface named name, or the one carrying bind
// when name is empty.
func interfaceByAddr(bind netip.Addr, name string) (*net.Interface, error) {
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceNotFound, name, err)
		}
		return ifi, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip, ok := netip.AddrFromSlice(ipnet.IP); ok && ip.Unmap() == bind {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, bind)
}
