// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/ipsniff/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	icmpHeaderLen   = 4
)

// decodeTransport extracts the transport header fields that follow the IPv4
// header. A short or unknown transport leaves Valid unset; it never fails the frame.
func decodeTransport(data []byte, protocol uint8) core.TransportHeader {
	switch protocol {
	case core.ProtoTCP:
		return decodeTCP(data)
	case core.ProtoUDP:
		return decodeUDP(data)
	case core.ProtoICMP:
		return decodeICMP(data)
	default:
		return core.TransportHeader{}
	}
}

// decodeUDP decodes UDP header.
func decodeUDP(data []byte) core.TransportHeader {
	if len(data) < udpHeaderLen {
		return core.TransportHeader{}
	}

	return core.TransportHeader{
		Valid:   true,
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
	}
}

// decodeTCP decodes TCP header.
func decodeTCP(data []byte) core.TransportHeader {
	if len(data) < tcpHeaderMinLen {
		return core.TransportHeader{}
	}

	// Data Offset (upper 4 bits at offset 12), in 32-bit words
	headerLen := int(data[12]>>4) * 4
	if headerLen < tcpHeaderMinLen {
		return core.TransportHeader{}
	}

	return core.TransportHeader{
		Valid:   true,
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		// Flags: CWR, ECE, URG, ACK, PSH, RST, SYN, FIN
		TCPFlags: data[13],
	}
}

func decodeICMP(data []byte) core.TransportHeader {
	if len(data) < icmpHeaderLen {
		return core.TransportHeader{}
	}

	return core.TransportHeader{
		Valid:    true,
		ICMPType: data[0],
		ICMPCode: data[1],
	}
}
