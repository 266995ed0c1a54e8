// Package pcapfile records raw capture frames into a pcap savefile.
package pcapfile

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
	"firestige.xyz/ipsniff/internal/metrics"
)

const Name = "pcap"

// Sink writes every received frame as a LINKTYPE_IPV4 record. Frames start
// at the IP header, so no link layer is synthesised.
type Sink struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	w      *pcapgo.Writer
	closed bool
}

// Create truncates or creates path and writes the pcap file header.
func Create(path string, snapLen int) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	buf := bufio.NewWriter(f)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(uint32(snapLen), layers.LinkTypeIPv4); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	log.GetLogger().WithField("path", path).Info("pcap export enabled")
	return &Sink{file: f, buf: buf, w: w}, nil
}

func (s *Sink) EmitFrame(frame core.RawFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     frame.Timestamp,
		CaptureLength: len(frame.Data),
		Length:        len(frame.Data),
	}
	if err := s.w.WritePacket(ci, frame.Data); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(Name).Inc()
		log.GetLogger().WithError(err).Warn("pcap write failed")
	}
}

func (s *Sink) EmitPacket(core.DecodedPacket)  {}
func (s *Sink) EmitFailure(core.DecodeFailure) {}

// Close flushes buffered records and closes the file. Safe to call twice.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush pcap file: %w", flushErr)
	}
	return closeErr
}
