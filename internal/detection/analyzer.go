// Package detection turns PCM frames into an RMS energy signal and decides
// where loud events begin and end.
package detection

import (
	"math"

	"github.com/nightsound/nightsound-go/internal/errors"
)

const (
	// FullScale is the magnitude of the most negative int16 sample. RMS
	// values are divided by it so a full-scale square wave reads 1.0.
	FullScale = 32768.0

	// MinDB is the decibel floor reported for silence.
	MinDB = -96.0
)

// Analyzer computes the normalized RMS of fixed-size frames. It keeps no
// state between frames.
type Analyzer struct {
	frameSize int
}

// NewAnalyzer creates an analyzer for frames of frameSize samples.
func NewAnalyzer(frameSize int) (*Analyzer, error) {
	if frameSize <= 0 {
		return nil, errors.New(ErrInvalidConfig).
			Component(ComponentDetection).
			Context("frame_size", frameSize).
			Build()
	}
	return &Analyzer{frameSize: frameSize}, nil
}

// FrameSize returns the expected number of samples per frame.
func (a *Analyzer) FrameSize() int {
	return a.frameSize
}

// Analyze returns the RMS of samples in [0, 1]. Frames of any other length
// than FrameSize are rejected with ErrInvalidFrame.
func (a *Analyzer) Analyze(samples []int16) (float64, error) {
	if len(samples) != a.frameSize {
		return 0, errors.New(ErrInvalidFrame).
			Component(ComponentDetection).
			Category(errors.CategoryDetection).
			Context("samples", len(samples)).
			Context("frame_size", a.frameSize).
			Build()
	}
	return RMS(samples), nil
}

// RMS returns sqrt(sum(s^2)/n) / FullScale. An empty frame yields 0.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / FullScale
}

// RMSFloat32 is RMS for float samples already in [-1, 1].
func RMSFloat32(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ToDecibels converts a normalized RMS to dBFS, floored at MinDB.
func ToDecibels(rms float64) float64 {
	if rms <= 0 {
		return MinDB
	}
	return max(20*math.Log10(rms), MinDB)
}
