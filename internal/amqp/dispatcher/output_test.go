package dispatcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/amqp-engine/internal/amqp/performative"
)

func queueTransfer(t *testing.T, d *Dispatcher[int]) error {
	t.Helper()
	d.BeginFrame()
	require.NoError(t, d.SetField(0, uint32(1)))
	require.NoError(t, d.SetField(1, uint32(5)))
	d.AppendPayload([]byte("hello"))
	return d.Finalize(2, 0x14)
}

func TestDrain_ChunksPreserveOrder(t *testing.T) {
	d := New(performative.FrameTypeAMQP, 0)
	require.NoError(t, queueTransfer(t, d))
	require.NoError(t, d.Heartbeat(0))
	require.NoError(t, queueTransfer(t, d))

	want := append(append(append([]byte(nil), transferFrame...), 0, 0, 0, 8, 2, 0, 0, 0), transferFrame...)
	require.Equal(t, len(want), d.Pending())

	var got []byte
	chunk := make([]byte, 5)
	for d.Pending() > 0 {
		n := d.Drain(chunk)
		require.Greater(t, n, 0)
		got = append(got, chunk[:n]...)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 0, d.Drain(chunk))
}

func TestDrain_EmptyDestination(t *testing.T) {
	d := New(performative.FrameTypeAMQP, 0)
	require.NoError(t, queueTransfer(t, d))

	assert.Equal(t, 0, d.Drain(nil))
	assert.Equal(t, len(transferFrame), d.Pending())
}

func TestFinalize_CapacityIsAtomic(t *testing.T) {
	d := New(performative.FrameTypeAMQP, 0, WithOutputCapacity(30))
	require.NoError(t, queueTransfer(t, d))
	require.Equal(t, 23, d.Pending())

	err := queueTransfer(t, d)
	require.ErrorIs(t, err, ErrOutputFull)
	var ce *CapacityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 23, ce.Need)
	assert.Equal(t, 23, ce.Pending)
	assert.Equal(t, 30, ce.Capacity)
	assert.Equal(t, 23, d.Pending(), "失败时不得写入部分字节")

	// 部分 Drain 仍放不下
	buf := make([]byte, 10)
	assert.Equal(t, 10, d.Drain(buf))
	assert.ErrorIs(t, d.Finalize(2, 0x14), ErrOutputFull)
	assert.Equal(t, 13, d.Pending())

	// 全部 Drain 后直接重试，出站帧内容仍保留
	rest := make([]byte, 13)
	assert.Equal(t, 13, d.Drain(rest))
	require.NoError(t, d.Finalize(2, 0x14))
	assert.Equal(t, transferFrame, drainAll(d))
	assert.Equal(t, transferFrame, append(buf, rest...))
}

func TestFinalize_ExactCapacity(t *testing.T) {
	d := New(performative.FrameTypeAMQP, 0, WithOutputCapacity(23))
	require.NoError(t, queueTransfer(t, d))
	assert.Equal(t, d.Capacity(), d.Pending())
}

func TestSetCapacity(t *testing.T) {
	d := New(performative.FrameTypeAMQP, 0)
	assert.Equal(t, DefaultOutputCapacity, d.Capacity())

	require.NoError(t, queueTransfer(t, d))
	assert.ErrorIs(t, d.SetCapacity(10), ErrCapacityBelowPending)
	assert.Equal(t, DefaultOutputCapacity, d.Capacity())

	require.NoError(t, d.SetCapacity(23))
	assert.ErrorIs(t, d.Heartbeat(0), ErrOutputFull)

	require.NoError(t, d.SetCapacity(1<<20))
	assert.NoError(t, d.Heartbeat(0))
}

func TestClose(t *testing.T) {
	d := New(performative.FrameTypeAMQP, 0)
	d.RegisterAll(func(*Dispatcher[int]) error { return nil })
	require.NoError(t, queueTransfer(t, d))

	d.Close()
	d.Close()
	assert.True(t, d.Closed())

	_, err := d.Feed(transferFrame)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.Input(transferFrame)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.Finalize(0, 0x10), ErrClosed)
	assert.ErrorIs(t, d.Heartbeat(0), ErrClosed)
	assert.Equal(t, 0, d.Drain(make([]byte, 64)))
	assert.Equal(t, 0, d.Pending())
	_, _, ok := d.Actions().Lookup(0x14)
	assert.False(t, ok)
}
