// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/ipsniff/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv4Version      = 4
)

// DecodeIPv4 decodes the IPv4 header at the start of buf.
// The returned Options slice aliases buf.
func DecodeIPv4(buf []byte) (core.IPv4Header, error) {
	if len(buf) < ipv4HeaderMinLen {
		return core.IPv4Header{}, core.ErrTruncated
	}

	// Version (upper 4 bits of first byte); nothing else is read until it checks out
	if buf[0]>>4 != ipv4Version {
		return core.IPv4Header{}, core.ErrBadVersion
	}

	// IHL (Internet Header Length) - lower 4 bits of first byte
	ihl := buf[0] & 0x0F
	headerLen := int(ihl) * 4 // IHL is in 32-bit words

	if headerLen < ipv4HeaderMinLen || len(buf) < headerLen {
		return core.IPv4Header{}, core.ErrTruncated
	}

	h := core.IPv4Header{
		Version: ipv4Version,
		IHL:     ihl,
		TOS:     buf[1],
	}

	// Total Length (2 bytes at offset 2)
	h.TotalLen = binary.BigEndian.Uint16(buf[2:4])

	// Identification (2 bytes at offset 4)
	h.ID = binary.BigEndian.Uint16(buf[4:6])

	// Flags (3 bits) and Fragment Offset (13 bits) at offset 6
	flagsOffset := binary.BigEndian.Uint16(buf[6:8])
	h.Flags = uint8(flagsOffset >> 13)
	h.FragOffset = flagsOffset & 0x1FFF

	// TTL (1 byte at offset 8)
	h.TTL = buf[8]

	// Protocol (1 byte at offset 9)
	h.Protocol = buf[9]

	// Header checksum (2 bytes at offset 10), not verified
	h.Checksum = binary.BigEndian.Uint16(buf[10:12])

	// Source and destination (4 bytes each at offsets 12 and 16)
	h.SrcIP = netip.AddrFrom4([4]byte(buf[12:16]))
	h.DstIP = netip.AddrFrom4([4]byte(buf[16:20]))

	// Options occupy the rest of the header
	h.Options = buf[ipv4HeaderMinLen:headerLen]

	return h, nil
}

// Classify maps an IPv4 protocol number to its kind. It is total over 0..255.
func Classify(protocol uint8) core.ProtocolKind {
	switch protocol {
	case core.ProtoICMP:
		return core.ProtocolKind{Class: core.ClassICMP, Number: protocol}
	case core.ProtoTCP:
		return core.ProtocolKind{Class: core.ClassTCP, Number: protocol}
	case core.ProtoUDP:
		return core.ProtocolKind{Class: core.ClassUDP, Number: protocol}
	default:
		return core.ProtocolKind{Class: core.ClassOther, Number: protocol}
	}
}
