package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ipsniff/internal/core"
	"firestige.xyz/ipsniff/internal/core/decoder"
	"firestige.xyz/ipsniff/internal/sink"
)

// validFrame returns a 20-byte IPv4 header carrying protocol proto.
func validFrame(proto uint8) core.RawFrame {
	data := []byte{
		0x45, 0x00, 0x00, 0x14, 0x00, 0x01, 0x00, 0x00,
		0x40, proto, 0x00, 0x00,
		10, 0, 0, 1,
		10, 0, 0, 2,
	}
	return core.RawFrame{Data: data, Timestamp: time.Now(), Interface: "test0"}
}

func malformedFrame() core.RawFrame {
	return core.RawFrame{Data: []byte{0x45, 0x00, 0x00}, Timestamp: time.Now(), Interface: "test0"}
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Receive() (core.RawFrame, error) {
	args := m.Called()
	return args.Get(0).(core.RawFrame), args.Error(1)
}

func (m *mockSource) Close() error {
	args := m.Called()
	return args.Error(0)
}

// scriptSource replays frames and then blocks until closed.
type scriptSource struct {
	frames     []core.RawFrame
	next       int
	done       chan struct{}
	once       sync.Once
	closeCalls atomic.Int32
}

func newScriptSource(frames []core.RawFrame) *scriptSource {
	return &scriptSource{frames: frames, done: make(chan struct{})}
}

func (s *scriptSource) Receive() (core.RawFrame, error) {
	if s.next < len(s.frames) {
		f := s.frames[s.next]
		s.next++
		return f, nil
	}
	<-s.done
	return core.RawFrame{}, ErrHandleClosed
}

func (s *scriptSource) Close() error {
	s.closeCalls.Add(1)
	s.once.Do(func() { close(s.done) })
	return nil
}

type countingSink struct {
	mu       sync.Mutex
	packets  []core.DecodedPacket
	failures []core.DecodeFailure
	frames   int
	onRecord func(total int)
}

func (s *countingSink) EmitPacket(pkt core.DecodedPacket) {
	s.mu.Lock()
	s.packets = append(s.packets, pkt)
	total := len(s.packets) + len(s.failures)
	s.mu.Unlock()
	if s.onRecord != nil {
		s.onRecord(total)
	}
}

func (s *countingSink) EmitFailure(f core.DecodeFailure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	total := len(s.packets) + len(s.failures)
	s.mu.Unlock()
	if s.onRecord != nil {
		s.onRecord(total)
	}
}

func (s *countingSink) EmitFrame(core.RawFrame) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func TestLoopHundredFramesOneMalformed(t *testing.T) {
	frames := make([]core.RawFrame, 0, 100)
	for i := 1; i <= 100; i++ {
		if i == 50 {
			frames = append(frames, malformedFrame())
			continue
		}
		frames = append(frames, validFrame(core.ProtoTCP))
	}
	src := newScriptSource(frames)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snk := &countingSink{onRecord: func(total int) {
		if total == 100 {
			cancel()
		}
	}}

	loop := NewLoop(src, decoder.New(), snk)
	require.NoError(t, loop.Run(ctx))

	assert.Len(t, snk.packets, 99)
	require.Len(t, snk.failures, 1)
	assert.ErrorIs(t, snk.failures[0].Reason, core.ErrTruncated)
	assert.Equal(t, 3, snk.failures[0].Length)
	assert.Equal(t, 100, snk.frames)
	assert.EqualValues(t, 1, src.closeCalls.Load())

	stats := loop.Stats()
	assert.Equal(t, Stats{Frames: 100, Packets: 99, Failures: 1}, stats)
}

func TestLoopFatalErrorClosesOnce(t *testing.T) {
	boom := errors.New("network is down")
	src := &mockSource{}
	src.On("Receive").Return(validFrame(core.ProtoUDP), nil).Times(9)
	src.On("Receive").Return(core.RawFrame{}, boom).Once()
	src.On("Close").Return(nil).Once()

	snk := &countingSink{}
	err := NewLoop(src, decoder.New(), snk).Run(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, snk.packets, 9)
	src.AssertExpectations(t)
	src.AssertNumberOfCalls(t, "Close", 1)
}

func TestLoopCancelledBeforeFirstFrame(t *testing.T) {
	src := &mockSource{}
	src.On("Close").Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snk := &countingSink{}
	require.NoError(t, NewLoop(src, decoder.New(), snk).Run(ctx))

	src.AssertNumberOfCalls(t, "Close", 1)
	src.AssertNotCalled(t, "Receive")
	assert.Empty(t, snk.packets)
	assert.Empty(t, snk.failures)
}

func TestLoopCancelWhileBlocked(t *testing.T) {
	src := newScriptSource(nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- NewLoop(src, decoder.New(), &countingSink{}).Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	assert.EqualValues(t, 1, src.closeCalls.Load())
}

func TestLoopRetriesTransientErrors(t *testing.T) {
	boom := errors.New("socket gone")
	src := &mockSource{}
	src.On("Receive").Return(core.RawFrame{}, timeoutError{}).Twice()
	src.On("Receive").Return(validFrame(core.ProtoICMP), nil).Once()
	src.On("Receive").Return(core.RawFrame{}, boom).Once()
	src.On("Close").Return(nil).Once()

	snk := &countingSink{}
	loop := NewLoop(src, decoder.New(), snk)
	err := loop.Run(context.Background())

	assert.ErrorIs(t, err, boom)
	require.Len(t, snk.packets, 1)
	assert.Equal(t, core.ClassICMP, snk.packets[0].Kind.Class)
	assert.Equal(t, Stats{Frames: 1, Packets: 1, Retries: 2}, loop.Stats())
	src.AssertNumberOfCalls(t, "Close", 1)
}

func TestLoopCustomClassifier(t *testing.T) {
	flaky := errors.New("flaky")
	src := &mockSource{}
	src.On("Receive").Return(core.RawFrame{}, flaky).Once()
	src.On("Receive").Return(core.RawFrame{}, ErrHandleClosed).Once()
	src.On("Close").Return(nil).Once()

	loop := NewLoop(src, decoder.New(), &countingSink{},
		WithTransientClassifier(func(err error) bool { return errors.Is(err, flaky) }))
	err := loop.Run(context.Background())

	assert.ErrorIs(t, err, ErrHandleClosed)
	assert.EqualValues(t, 1, loop.Stats().Retries)
}

func TestLoopPanicStillCloses(t *testing.T) {
	src := &mockSource{}
	src.On("Receive").Return(validFrame(core.ProtoTCP), nil)
	src.On("Close").Return(nil).Once()

	snk := sink.Func{Packet: func(core.DecodedPacket) { panic("sink exploded") }}
	assert.PanicsWithValue(t, "sink exploded", func() {
		_ = NewLoop(src, decoder.New(), snk).Run(context.Background())
	})
	src.AssertNumberOfCalls(t, "Close", 1)
}

func TestLoopCloseErrorDoesNotMaskStop(t *testing.T) {
	src := &mockSource{}
	src.On("Close").Return(errors.New("already closed")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewLoop(src, decoder.New(), &countingSink{}).Run(ctx))
}

func TestLoopWithHandle(t *testing.T) {
	conn := newFakeConn()
	withFakeOpen(t, conn, nil)
	h, err := Open(testBind, Options{})
	require.NoError(t, err)
	require.NoError(t, h.EnablePromiscuous())

	for i := 0; i < 3; i++ {
		conn.frames <- validFrame(core.ProtoUDP).Data
	}
	conn.frames <- []byte{0x60, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snk := &countingSink{onRecord: func(total int) {
		if total == 4 {
			cancel()
		}
	}}
	require.NoError(t, NewLoop(h, decoder.New(), snk).Run(ctx))

	assert.Len(t, snk.packets, 3)
	require.Len(t, snk.failures, 1)
	assert.ErrorIs(t, snk.failures[0].Reason, core.ErrBadVersion)
	assert.Equal(t, "test0", snk.packets[0].Interface)
	assert.EqualValues(t, 1, conn.closeCalls.Load())
	assert.Equal(t, []bool{true, false}, conn.promiscCalls())
	assert.Equal(t, core.StateInactive, h.State())
}
