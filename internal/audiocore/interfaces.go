// Package audiocore defines the capture side of NightSound: fixed-size PCM16
// mono frames, the Source interface that produces them, and the bounded
// queue between a source and the detection pipeline.
//
// Data flow:
//
//	Source -> FrameQueue -> recorder pipeline (analyzer, gate, writer)
//
// Sources never block on a slow consumer. When the queue is full the frame
// is dropped and counted.
package audiocore

import (
	"context"
	"time"
)

// AudioFormat represents the format of audio data
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 16000)
	Channels   int    // Number of channels, always 1 for frames
	BitDepth   int    // Bits per sample, always 16 for frames
	Encoding   string // "pcm_s16le"
}

// FrameDuration returns the duration covered by n samples.
func (f AudioFormat) FrameDuration(n int) time.Duration {
	return f.SamplesDuration(int64(n))
}

// SamplesDuration returns the duration covered by n samples. Whole seconds
// are split off first so n*time.Second cannot overflow on long captures.
func (f AudioFormat) SamplesDuration(n int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	rate := int64(f.SampleRate)
	return time.Duration(n/rate)*time.Second + time.Duration(n%rate)*time.Second/time.Duration(rate)
}

// MonoPCM16 returns the frame format for sampleRate.
func MonoPCM16(sampleRate int) AudioFormat {
	return AudioFormat{
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
		Encoding:   "pcm_s16le",
	}
}

// Frame is a fixed-size block of mono PCM16 samples. Timestamp is the
// capture time of the first sample, derived from the source's sample clock.
type Frame struct {
	Samples   []int16
	Timestamp time.Time
	Seq       uint64
}

// Source produces frames. Frames() is closed once the source has stopped
// or run out of input.
type Source interface {
	// ID returns a unique identifier for this source
	ID() string

	// Name returns a human-readable name for this source
	Name() string

	// Start begins capture. Cancelling ctx stops the source.
	Start(ctx context.Context) error

	// Stop halts capture and closes Frames()
	Stop() error

	Frames() <-chan Frame
	Errors() <-chan error

	// Dropped returns how many frames were discarded because the consumer
	// fell behind.
	Dropped() uint64

	Format() AudioFormat
}
