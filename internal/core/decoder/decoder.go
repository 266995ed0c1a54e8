// Package decoder implements IPv4 header decoding and transport demultiplexing.
package decoder

import "firestige.xyz/ipsniff/internal/core"

// Decoder turns captured frames into decoded packet summaries.
type Decoder struct {
	transport bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithoutTransport disables port and ICMP type extraction.
func WithoutTransport() Option {
	return func(d *Decoder) { d.transport = false }
}

// New creates a Decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{transport: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes frame. The error is core.ErrTruncated or core.ErrBadVersion.
func (d *Decoder) Decode(frame core.RawFrame) (core.DecodedPacket, error) {
	h, err := DecodeIPv4(frame.Data)
	if err != nil {
		return core.DecodedPacket{}, err
	}

	pkt := core.DecodedPacket{
		Timestamp: frame.Timestamp,
		SrcIP:     h.SrcIP,
		DstIP:     h.DstIP,
		Kind:      Classify(h.Protocol),
		Length:    len(frame.Data),
		TotalLen:  h.TotalLen,
		TTL:       h.TTL,
		Fragment:  h.IsFragment(),
		Interface: frame.Interface,
	}

	// Only the first fragment carries the transport header
	if d.transport && h.FragOffset == 0 {
		pkt.Transport = decodeTransport(frame.Data[h.HeaderLen():], h.Protocol)
	}

	return pkt, nil
}
