// Package console prints capture records to a terminal or pipe.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
	"firestige.xyz/ipsniff/internal/metrics"
)

const Name = "console"

const (
	FormatText = "text"
	FormatJSON = "json"
)

const timeLayout = "2006-01-02 15:04:05"

// Sink writes one line per record, either as an aligned table row or as a
// JSON object.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	enc    *json.Encoder
}

func NewSink(w io.Writer, format string) *Sink {
	s := &Sink{w: w, format: format}
	if format == FormatJSON {
		s.enc = json.NewEncoder(w)
	}
	return s
}

// Header writes the column header for the text format. It writes nothing in
// JSON mode.
func (s *Sink) Header() {
	if s.format == FormatJSON {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, "Timestamp            Source IP        Destination IP   Protocol  Size")
	fmt.Fprintln(s.w, strings.Repeat("-", 80))
}

func (s *Sink) EmitPacket(pkt core.DecodedPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.enc != nil {
		err = s.enc.Encode(packetRecord(pkt))
	} else {
		_, err = fmt.Fprintf(s.w, "%s  %-15s  %-15s  %-8s  %d bytes%s\n",
			pkt.Timestamp.Format(timeLayout), pkt.SrcIP, pkt.DstIP, pkt.Kind, pkt.Length, portSuffix(pkt))
	}
	s.fail(err)
}

func (s *Sink) EmitFailure(f core.DecodeFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.enc != nil {
		err = s.enc.Encode(failureRecord(f))
	} else {
		_, err = fmt.Fprintf(s.w, "%s  %-15s  %-15s  %-8s  %d bytes (%s)\n",
			f.Timestamp.Format(timeLayout), "-", "-", "Malformed", f.Length, core.DecodeReason(f.Reason))
	}
	s.fail(err)
}

func (s *Sink) fail(err error) {
	if err == nil {
		return
	}
	metrics.SinkErrorsTotal.WithLabelValues(Name).Inc()
	log.GetLogger().WithError(err).Warn("console sink write failed")
}

func portSuffix(pkt core.DecodedPacket) string {
	t := pkt.Transport
	if !t.Valid {
		return ""
	}
	switch pkt.Kind.Class {
	case core.ClassTCP, core.ClassUDP:
		return fmt.Sprintf("  %d -> %d", t.SrcPort, t.DstPort)
	case core.ClassICMP:
		return fmt.Sprintf("  type=%d code=%d", t.ICMPType, t.ICMPCode)
	}
	return ""
}

type record struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Interface string    `json:"interface,omitempty"`
	Length    int       `json:"length"`
	SrcIP     string    `json:"src_ip,omitempty"`
	DstIP     string    `json:"dst_ip,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	ProtoNum  *uint8    `json:"protocol_number,omitempty"`
	TTL       uint8     `json:"ttl,omitempty"`
	TotalLen  uint16    `json:"total_length,omitempty"`
	Fragment  bool      `json:"fragment,omitempty"`
	SrcPort   uint16    `json:"src_port,omitempty"`
	DstPort   uint16    `json:"dst_port,omitempty"`
	TCPFlags  uint8     `json:"tcp_flags,omitempty"`
	ICMPType  *uint8    `json:"icmp_type,omitempty"`
	ICMPCode  *uint8    `json:"icmp_code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func packetRecord(pkt core.DecodedPacket) record {
	num := pkt.Kind.Number
	r := record{
		Type:      "packet",
		Timestamp: pkt.Timestamp,
		Interface: pkt.Interface,
		Length:    pkt.Length,
		SrcIP:     pkt.SrcIP.String(),
		DstIP:     pkt.DstIP.String(),
		Protocol:  pkt.Kind.String(),
		ProtoNum:  &num,
		TTL:       pkt.TTL,
		TotalLen:  pkt.TotalLen,
		Fragment:  pkt.Fragment,
	}
	if t := pkt.Transport; t.Valid {
		switch pkt.Kind.Class {
		case core.ClassTCP:
			r.SrcPort, r.DstPort, r.TCPFlags = t.SrcPort, t.DstPort, t.TCPFlags
		case core.ClassUDP:
			r.SrcPort, r.DstPort = t.SrcPort, t.DstPort
		case core.ClassICMP:
			typ, code := t.ICMPType, t.ICMPCode
			r.ICMPType, r.ICMPCode = &typ, &code
		}
	}
	return r
}

func failureRecord(f core.DecodeFailure) record {
	return record{
		Type:      "failure",
		Timestamp: f.Timestamp,
		Interface: f.Interface,
		Length:    f.Length,
		Reason:    core.DecodeReason(f.Reason),
	}
}
