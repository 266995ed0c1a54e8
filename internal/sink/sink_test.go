package sink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/ipsniff/internal/core"
)

type recorder struct {
	packets  int
	failures int
	frames   int
	closed   int
	closeErr error
}

func (r *recorder) EmitPacket(core.DecodedPacket)  { r.packets++ }
func (r *recorder) EmitFailure(core.DecodeFailure) { r.failures++ }
func (r *recorder) EmitFrame(core.RawFrame)        { r.frames++ }
func (r *recorder) Close() error                   { r.closed++; return r.closeErr }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var funcPackets int
	m := Multi{a, b, Func{Packet: func(core.DecodedPacket) { funcPackets++ }}}

	m.EmitPacket(core.DecodedPacket{})
	m.EmitPacket(core.DecodedPacket{})
	m.EmitFailure(core.DecodeFailure{Reason: core.ErrTruncated})
	m.EmitFrame(core.RawFrame{})

	for _, r := range []*recorder{a, b} {
		assert.Equal(t, 2, r.packets)
		assert.Equal(t, 1, r.failures)
		assert.Equal(t, 1, r.frames)
	}
	assert.Equal(t, 2, funcPackets)
}

func TestMultiCloseJoinsErrors(t *testing.T) {
	boom := errors.New("flush failed")
	a, b := &recorder{closeErr: boom}, &recorder{}
	m := Multi{a, Func{}, b}

	err := m.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestFuncNilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Func{}.EmitPacket(core.DecodedPacket{})
		Func{}.EmitFailure(core.DecodeFailure{})
	})
}
