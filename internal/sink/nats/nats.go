// Package nats publishes capture records to a NATS subject as protobuf
// encoded google.protobuf.Struct messages.
package nats

import (
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
	"firestige.xyz/ipsniff/internal/metrics"
)

const Name = "nats"

type publisher interface {
	Publish(subject string, data []byte) error
}

// Sink publishes decoded packets to <subject>.packet and failures to
// <subject>.failure.
type Sink struct {
	pub     publisher
	conn    *natsgo.Conn
	subject string
	once    sync.Once
}

// Connect dials url and returns a sink publishing under subject.
func Connect(url, subject string) (*Sink, error) {
	nc, err := natsgo.Connect(url, natsgo.Name("ipsniff"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	log.GetLogger().WithField("url", url).Info("connected to NATS server")
	s := newSink(nc, subject)
	s.conn = nc
	return s, nil
}

func newSink(pub publisher, subject string) *Sink {
	return &Sink{pub: pub, subject: subject}
}

func (s *Sink) EmitPacket(pkt core.DecodedPacket) {
	fields := map[string]any{
		"timestamp":       pkt.Timestamp.Format(time.RFC3339Nano),
		"interface":       pkt.Interface,
		"src_ip":          pkt.SrcIP.String(),
		"dst_ip":          pkt.DstIP.String(),
		"protocol":        pkt.Kind.String(),
		"protocol_number": uint32(pkt.Kind.Number),
		"length":          pkt.Length,
		"total_length":    uint32(pkt.TotalLen),
		"ttl":             uint32(pkt.TTL),
		"fragment":        pkt.Fragment,
	}
	if t := pkt.Transport; t.Valid {
		switch pkt.Kind.Class {
		case core.ClassTCP:
			fields["tcp_flags"] = uint32(t.TCPFlags)
			fallthrough
		case core.ClassUDP:
			fields["src_port"] = uint32(t.SrcPort)
			fields["dst_port"] = uint32(t.DstPort)
		case core.ClassICMP:
			fields["icmp_type"] = uint32(t.ICMPType)
			fields["icmp_code"] = uint32(t.ICMPCode)
		}
	}
	s.publish(s.subject+".packet", fields)
}

func (s *Sink) EmitFailure(f core.DecodeFailure) {
	s.publish(s.subject+".failure", map[string]any{
		"timestamp": f.Timestamp.Format(time.RFC3339Nano),
		"interface": f.Interface,
		"length":    f.Length,
		"reason":    core.DecodeReason(f.Reason),
	})
}

func (s *Sink) publish(subject string, fields map[string]any) {
	data, err := encode(fields)
	if err == nil {
		err = s.pub.Publish(subject, data)
	}
	if err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(Name).Inc()
		log.GetLogger().WithError(err).WithField("subject", subject).Warn("nats publish failed")
	}
}

func encode(fields map[string]any) ([]byte, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// Close drains the connection so buffered records are delivered.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		if s.conn != nil {
			err = s.conn.Drain()
			log.GetLogger().Info("NATS connection drained")
		}
	})
	return err
}
