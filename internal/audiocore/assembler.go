package audiocore

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/smallnest/ringbuffer"
)

// framesBuffered is the assembler ring capacity in frames.
const framesBuffered = 4

// FrameAssembler turns an arbitrary stream of little-endian PCM16 mono
// bytes, as delivered by device callbacks, into fixed-size frames.
// Timestamps follow the sample clock: the first frame is stamped with the
// time of the first write and each later frame adds one frame duration, so
// callback jitter never shows up in event timing.
//
// FrameAssembler is not safe for concurrent use.
type FrameAssembler struct {
	format     AudioFormat
	frameSize  int
	frameBytes int
	gain       float64
	ring       *ringbuffer.RingBuffer
	scratch    []byte
	seq        uint64
	base       time.Time
	started    bool
	now        func() time.Time
	emit       func(Frame)
}

// NewFrameAssembler creates an assembler producing frames of frameSize
// samples. emit receives every completed frame.
func NewFrameAssembler(format AudioFormat, frameSize int, gain float64, emit func(Frame)) *FrameAssembler {
	if gain <= 0 {
		gain = 1.0
	}
	frameBytes := frameSize * 2
	return &FrameAssembler{
		format:     format,
		frameSize:  frameSize,
		frameBytes: frameBytes,
		gain:       gain,
		ring:       ringbuffer.New(frameBytes * framesBuffered),
		scratch:    make([]byte, frameBytes),
		now:        time.Now,
		emit:       emit,
	}
}

// Write appends raw PCM bytes and emits every frame that becomes complete.
func (a *FrameAssembler) Write(p []byte) error {
	if !a.started && len(p) > 0 {
		a.base = a.now()
		a.started = true
	}
	for len(p) > 0 {
		n := min(len(p), a.ring.Free())
		if n > 0 {
			written, err := a.ring.Write(p[:n])
			if err != nil {
				return err
			}
			p = p[written:]
		}
		if err := a.drain(); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (a *FrameAssembler) Pending() int {
	return a.ring.Length()
}

// Reset drops buffered bytes and restarts the sample clock.
func (a *FrameAssembler) Reset() {
	a.ring.Reset()
	a.seq = 0
	a.started = false
}

func (a *FrameAssembler) drain() error {
	for a.ring.Length() >= a.frameBytes {
		if _, err := a.ring.Read(a.scratch); err != nil {
			return err
		}
		samples := make([]int16, a.frameSize)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(a.scratch[i*2:]))
		}
		if a.gain != 1.0 {
			ApplyGain(samples, a.gain)
		}
		a.emit(Frame{
			Samples:   samples,
			Timestamp: a.base.Add(a.format.SamplesDuration(int64(a.frameSize) * int64(a.seq))),
			Seq:       a.seq,
		})
		a.seq++
	}
	return nil
}

// ApplyGain scales samples in place, clamping to the int16 range.
func ApplyGain(samples []int16, gain float64) {
	for i, s := range samples {
		v := math.Round(float64(s) * gain)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		samples[i] = int16(v)
	}
}
