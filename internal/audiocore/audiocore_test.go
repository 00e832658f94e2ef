package audiocore

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestFrameQueueOfferDropsWhenFull(t *testing.T) {
	q := NewFrameQueue(2)

	assert.True(t, q.Offer(Frame{Seq: 0}))
	assert.True(t, q.Offer(Frame{Seq: 1}))
	assert.False(t, q.Offer(Frame{Seq: 2}))
	assert.False(t, q.Offer(Frame{Seq: 3}))

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 2, q.Len())

	// Oldest frames are kept, newest dropped
	assert.Equal(t, uint64(0), (<-q.Frames()).Seq)
	assert.Equal(t, uint64(1), (<-q.Frames()).Seq)
}

func TestFrameQueueClose(t *testing.T) {
	q := NewFrameQueue(1)
	q.Close()
	q.Close()

	_, ok := <-q.Frames()
	assert.False(t, ok)
	assert.False(t, q.Offer(Frame{}))
	assert.ErrorIs(t, q.Send(t.Context(), Frame{}), ErrSourceNotRunning)
}

func TestFrameQueueSendHonoursContext(t *testing.T) {
	q := NewFrameQueue(1)
	require.NoError(t, q.Send(t.Context(), Frame{}))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Send(ctx, Frame{}), context.DeadlineExceeded)
	assert.Zero(t, q.Dropped())
}

func TestFrameAssemblerSplitsArbitraryWrites(t *testing.T) {
	base := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	var frames []Frame
	a := NewFrameAssembler(MonoPCM16(8000), 4, 1.0, func(f Frame) { frames = append(frames, f) })
	a.now = func() time.Time { return base }

	// 10 samples in uneven writes gives 2 frames and 2 pending samples
	require.NoError(t, a.Write(pcmBytes(1, 2, 3)))
	require.NoError(t, a.Write(pcmBytes(4, 5)))
	require.NoError(t, a.Write(pcmBytes(6, 7, 8, 9, 10)))

	require.Len(t, frames, 2)
	assert.Equal(t, []int16{1, 2, 3, 4}, frames[0].Samples)
	assert.Equal(t, []int16{5, 6, 7, 8}, frames[1].Samples)
	assert.Equal(t, 4, a.Pending())

	// Timestamps follow the sample clock: 4 samples at 8 kHz is 500µs
	assert.Equal(t, base, frames[0].Timestamp)
	assert.Equal(t, base.Add(500*time.Microsecond), frames[1].Timestamp)
	assert.Equal(t, uint64(1), frames[1].Seq)
}

func TestFrameAssemblerLargeWrite(t *testing.T) {
	var count int
	a := NewFrameAssembler(MonoPCM16(16000), 160, 1.0, func(Frame) { count++ })

	// Larger than the ring capacity
	require.NoError(t, a.Write(make([]byte, 160*2*10+6)))
	assert.Equal(t, 10, count)
	assert.Equal(t, 6, a.Pending())

	a.Reset()
	assert.Zero(t, a.Pending())
}

func TestApplyGainClamps(t *testing.T) {
	samples := []int16{1000, -1000, 20000, -20000}
	ApplyGain(samples, 2.0)
	assert.Equal(t, []int16{2000, -2000, math.MaxInt16, math.MinInt16}, samples)
}

func TestFrameDuration(t *testing.T) {
	f := MonoPCM16(16000)
	assert.Equal(t, 100*time.Millisecond, f.FrameDuration(1600))
	assert.Zero(t, AudioFormat{}.FrameDuration(100))
}

func TestSamplesDurationLongCapture(t *testing.T) {
	f := MonoPCM16(192000)
	n := int64(192000) * int64((14 * time.Hour).Seconds())
	assert.Equal(t, 14*time.Hour, f.SamplesDuration(n))
	assert.Equal(t, 14*time.Hour+500*time.Millisecond, f.SamplesDuration(n+96000))
}

func TestFrameAssemblerTimestampsAfterLongCapture(t *testing.T) {
	format := MonoPCM16(192000)
	frameSize := 19200 // 100ms
	base := time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)

	var frames []Frame
	a := NewFrameAssembler(format, frameSize, 1.0, func(f Frame) { frames = append(frames, f) })
	a.now = func() time.Time { return base }
	require.NoError(t, a.Write(pcmBytes(make([]int16, frameSize)...)))

	// resume as if 14 hours of frames had already been emitted
	a.seq = uint64(14 * time.Hour / (100 * time.Millisecond))
	require.NoError(t, a.Write(pcmBytes(make([]int16, frameSize)...)))

	require.Len(t, frames, 2)
	assert.Equal(t, base, frames[0].Timestamp)
	assert.Equal(t, base.Add(14*time.Hour), frames[1].Timestamp)
	assert.True(t, frames[1].Timestamp.After(frames[0].Timestamp))
}
