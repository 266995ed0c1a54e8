package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/log"
	"firestige.xyz/ipsniff/internal/metrics"
	"firestige.xyz/ipsniff/internal/sink"
)

// Source yields raw frames. *Handle implements it.
type Source interface {
	Receive() (core.RawFrame, error)
	Close() error
}

// FrameDecoder turns a raw frame into a packet summary.
type FrameDecoder interface {
	Decode(frame core.RawFrame) (core.DecodedPacket, error)
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Frames   uint64
	Packets  uint64
	Failures uint64
	Retries  uint64
}

// Loop receives frames from a Source, decodes them and emits the results to
// a Sink until its context is cancelled or the source fails.
type Loop struct {
	src       Source
	dec       FrameDecoder
	snk       sink.Sink
	frameSink sink.FrameSink
	transient func(error) bool
	warnings  *warnLimiter

	frames   atomic.Uint64
	packets  atomic.Uint64
	failures atomic.Uint64
	retries  atomic.Uint64

	releaseOnce sync.Once
	releaseErr  error
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTransientClassifier replaces IsTransient.
func WithTransientClassifier(fn func(error) bool) LoopOption {
	return func(l *Loop) { l.transient = fn }
}

// WithFailureWarnings logs at most limit malformed-frame warnings per decode
// reason in each window. limit <= 0 logs every failure.
func WithFailureWarnings(limit int, window time.Duration) LoopOption {
	return func(l *Loop) { l.warnings = newWarnLimiter(limit, window) }
}

func NewLoop(src Source, dec FrameDecoder, snk sink.Sink, opts ...LoopOption) *Loop {
	l := &Loop{
		src:       src,
		dec:       dec,
		snk:       snk,
		transient: IsTransient,
		warnings:  newWarnLimiter(10, 10*time.Second),
	}
	if fs, ok := snk.(sink.FrameSink); ok {
		l.frameSink = fs
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the loop. It returns nil when ctx is cancelled and a wrapped
// error when the source fails fatally. The source is closed exactly once
// before Run returns, including when the body panics.
func (l *Loop) Run(ctx context.Context) error {
	defer l.release()

	if ctx.Err() != nil {
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.release()
		case <-done:
		}
	}()

	logger := log.GetLogger()
	for {
		frame, err := l.src.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if l.transient(err) {
				l.retries.Add(1)
				metrics.ReceiveRetriesTotal.Inc()
				logger.WithError(err).Debug("transient receive error, retrying")
				continue
			}
			logger.WithError(err).Error("capture receive failed")
			return fmt.Errorf("receive frame: %w", err)
		}
		l.process(frame)

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (l *Loop) process(frame core.RawFrame) {
	l.frames.Add(1)
	metrics.FramesReceivedTotal.WithLabelValues(frame.Interface).Inc()
	metrics.BytesReceivedTotal.WithLabelValues(frame.Interface).Add(float64(len(frame.Data)))

	if l.frameSink != nil {
		l.frameSink.EmitFrame(frame)
	}

	pkt, err := l.dec.Decode(frame)
	if err != nil {
		l.failures.Add(1)
		reason := core.DecodeReason(err)
		metrics.DecodeFailuresTotal.WithLabelValues(reason).Inc()
		if ok, dropped := l.warnings.Allow(reason, frame.Timestamp); ok {
			logger := log.GetLogger().WithField("reason", reason).WithField("length", len(frame.Data))
			if dropped > 0 {
				logger = logger.WithField("suppressed", dropped)
			}
			logger.Warn("malformed frame")
		}
		l.snk.EmitFailure(core.DecodeFailure{
			Timestamp: frame.Timestamp,
			Length:    len(frame.Data),
			Reason:    err,
			Interface: frame.Interface,
		})
		return
	}

	l.packets.Add(1)
	metrics.PacketsDecodedTotal.WithLabelValues(protocolLabel(pkt.Kind)).Inc()
	l.snk.EmitPacket(pkt)
}

func (l *Loop) release() {
	l.releaseOnce.Do(func() {
		l.releaseErr = l.src.Close()
		if l.releaseErr != nil {
			log.GetLogger().WithError(l.releaseErr).Warn("close capture source failed")
		}
	})
}

// Stats returns the current counters. Safe to call while Run is in progress.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:   l.frames.Load(),
		Packets:  l.packets.Load(),
		Failures: l.failures.Load(),
		Retries:  l.retries.Load(),
	}
}

func protocolLabel(k core.ProtocolKind) string {
	switch k.Class {
	case core.ClassICMP:
		return "icmp"
	case core.ClassTCP:
		return "tcp"
	case core.ClassUDP:
		return "udp"
	default:
		return "other"
	}
}
