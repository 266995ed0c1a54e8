// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
)

// IPv4Header is the decoded fixed part of an IPv4 header plus its options.
type IPv4Header struct {
	Version    uint8 // always 4
	IHL        uint8 // header length in 32-bit words, 5..15
	TOS        uint8
	TotalLen   uint16
	ID         uint16
	Flags      uint8  // upper 3 bits of offset 6
	FragOffset uint16 // in 8-byte units
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	SrcIP      netip.Addr
	DstIP      netip.Addr
	Options    []byte // view into the frame, empty when IHL == 5
}

// HeaderLen returns the header length in bytes.
func (h IPv4Header) HeaderLen() int {
	return int(h.IHL) * 4
}

// IsFragment reports whether the datagram is part of a fragmented packet.
func (h IPv4Header) IsFragment() bool {
	return h.Flags&0x1 != 0 || h.FragOffset != 0
}

// ProtocolClass is the coarse classification of an IPv4 protocol number.
type ProtocolClass uint8

const (
	ClassOther ProtocolClass = iota
	ClassICMP
	ClassTCP
	ClassUDP
)

// IANA protocol numbers recognised by the classifier.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// ProtocolKind is the classification of a protocol number. Number is kept for
// every class so Other(n) can be rendered.
type ProtocolKind struct {
	Class  ProtocolClass
	Number uint8
}

func (k ProtocolKind) String() string {
	switch k.Class {
	case ClassICMP:
		return "ICMP"
	case ClassTCP:
		return "TCP"
	case ClassUDP:
		return "UDP"
	default:
		return fmt.Sprintf("Other(%d)", k.Number)
	}
}

// TransportHeader represents L4 transport layer header fields (TCP/UDP/ICMP).
type TransportHeader struct {
	Valid   bool
	SrcPort uint16
	DstPort uint16
	// TCP-specific fields (only populated for TCP)
	TCPFlags uint8
	// ICMP-specific fields
	ICMPType uint8
	ICMPCode uint8
}
