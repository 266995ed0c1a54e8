// Package sink defines where capture records go.
package sink

import (
	"errors"
	"io"

	"firestige.xyz/ipsniff/internal/core"
)

// Sink consumes the record stream of a capture loop. Methods must not block
// for long: a slow sink stalls capture.
type Sink interface {
	EmitPacket(pkt core.DecodedPacket)
	EmitFailure(f core.DecodeFailure)
}

// FrameSink is implemented by sinks that also want every raw frame, before
// decoding.
type FrameSink interface {
	EmitFrame(frame core.RawFrame)
}

// Multi fans records out to several sinks in order.
type Multi []Sink

func (m Multi) EmitPacket(pkt core.DecodedPacket) {
	for _, s := range m {
		s.EmitPacket(pkt)
	}
}

func (m Multi) EmitFailure(f core.DecodeFailure) {
	for _, s := range m {
		s.EmitFailure(f)
	}
}

func (m Multi) EmitFrame(frame core.RawFrame) {
	for _, s := range m {
		if fs, ok := s.(FrameSink); ok {
			fs.EmitFrame(frame)
		}
	}
}

// Close closes every member that implements io.Closer and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Func adapts plain functions to a Sink. Nil functions drop the record.
type Func struct {
	Packet  func(core.DecodedPacket)
	Failure func(core.DecodeFailure)
}

func (f Func) EmitPacket(pkt core.DecodedPacket) {
	if f.Packet != nil {
		f.Packet(pkt)
	}
}

func (f Func) EmitFailure(fl core.DecodeFailure) {
	if f.Failure != nil {
		f.Failure(fl)
	}
}
