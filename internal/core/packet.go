// Package core defines core data structures with zero external dependencies.
package core

import (
	"net"
	"net/netip"
	"time"
)

// RawFrame is one datagram as delivered by the capture endpoint.
type RawFrame struct {
	Data      []byte    // owned copy, 0..65535 bytes
	Sender    net.Addr  // platform-dependent, may be nil
	Timestamp time.Time // receive time
	Interface string
}

// DecodedPacket is the summary emitted for every frame that decodes.
type DecodedPacket struct {
	Timestamp time.Time
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Kind      ProtocolKind
	Length    int // captured frame length
	TotalLen  uint16
	TTL       uint8
	Fragment  bool
	Transport TransportHeader
	Interface string
}

// DecodeFailure is emitted in place of a DecodedPacket when a frame is malformed.
type DecodeFailure struct {
	Timestamp time.Time
	Length    int
	Reason    error
	Interface string
}

// CaptureState is the lifecycle state of a capture handle.
type CaptureState int32

const (
	StateInactive CaptureState = iota
	StateActive
)

func (s CaptureState) String() string {
	if s == StateActive {
		return "active"
	}
	return "inactive"
}
