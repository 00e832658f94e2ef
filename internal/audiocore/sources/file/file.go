// Package file replays a WAV recording as a frame source. It lets the
// detection pipeline run offline against recorded nights.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// Config configures a WAV replay source.
type Config struct {
	Path      string
	FrameSize int       // samples per frame
	QueueSize int       // frames buffered towards the pipeline
	Gain      float64   // linear gain
	StartTime time.Time // timestamp of the first sample, zero means time.Now at Start
	Realtime  bool      // pace frames at capture speed instead of as fast as consumed
}

// Source replays a WAV file as mono PCM16 frames.
type Source struct {
	id     string
	config Config

	file    *os.File
	decoder *wav.Decoder
	format  audiocore.AudioFormat
	chans   int
	shift   int

	queue     *audiocore.FrameQueue
	errorChan chan error

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// GetLogger returns the file source logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audiocore").Module("file")
}

// NewSource opens path and validates it as a PCM WAV file.
func NewSource(id string, config Config) (*Source, error) {
	if config.FrameSize <= 0 {
		return nil, errors.New(audiocore.ErrInvalidAudioFormat).
			Component(audiocore.ComponentAudioCore).
			Context("frame_size", config.FrameSize).
			Build()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	f, err := os.Open(config.Path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, errors.FileError(err, config.Path, 0)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, errors.New(audiocore.ErrInvalidAudioFormat).
			Component(audiocore.ComponentAudioCore).
			Context("path", filepath.Base(config.Path)).
			Context("reason", "not a valid wav file").
			Build()
	}
	dec.ReadInfo()

	bitDepth := int(dec.BitDepth)
	if dec.WavAudioFormat != 1 || bitDepth < 8 || bitDepth > 32 || dec.NumChans == 0 {
		f.Close()
		return nil, errors.New(audiocore.ErrInvalidAudioFormat).
			Component(audiocore.ComponentAudioCore).
			Context("path", filepath.Base(config.Path)).
			Context("bit_depth", bitDepth).
			Context("audio_format", int(dec.WavAudioFormat)).
			Build()
	}

	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			Context("path", filepath.Base(config.Path)).
			Context("operation", "seek_pcm").
			Build()
	}

	return &Source{
		id:        id,
		config:    config,
		file:      f,
		decoder:   dec,
		format:    audiocore.MonoPCM16(int(dec.SampleRate)),
		chans:     int(dec.NumChans),
		shift:     bitDepth - 16,
		queue:     audiocore.NewFrameQueue(config.QueueSize),
		errorChan: make(chan error, 4),
		done:      make(chan struct{}),
	}, nil
}

// ID returns a unique identifier for this source
func (s *Source) ID() string { return s.id }

// Name returns the replayed file name.
func (s *Source) Name() string { return filepath.Base(s.config.Path) }

// Format returns the frame format. The sample rate is the file's.
func (s *Source) Format() audiocore.AudioFormat { return s.format }

// Frames returns the frame channel. It is closed at end of file.
func (s *Source) Frames() <-chan audiocore.Frame { return s.queue.Frames() }

// Errors returns a channel for error reporting
func (s *Source) Errors() <-chan error { return s.errorChan }

// Dropped is always zero for replay since frames are never discarded.
func (s *Source) Dropped() uint64 { return s.queue.Dropped() }

// Start begins replay in a background goroutine.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() || s.cancel != nil {
		return audiocore.ErrSourceRunning
	}
	replayCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running.Store(true)

	start := s.config.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	go s.replay(replayCtx, start)
	return nil
}

// Stop cancels replay and waits for it to finish.
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return audiocore.ErrSourceNotRunning
	}
	s.cancel()
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *Source) replay(ctx context.Context, start time.Time) {
	defer close(s.done)
	defer s.running.Store(false)
	defer s.queue.Close()
	defer s.file.Close()

	frameDur := s.format.FrameDuration(s.config.FrameSize)
	var ticker *time.Ticker
	if s.config.Realtime {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, s.config.FrameSize*s.chans),
		Format: &audio.Format{NumChannels: s.chans, SampleRate: s.format.SampleRate},
	}

	var seq uint64
	for {
		n, err := s.decoder.PCMBuffer(buf)
		if err != nil {
			audiocore.ReportError(s.errorChan, errors.New(err).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryFileIO).
				Context("path", s.Name()).
				Context("operation", "decode_pcm").
				Build())
			return
		}
		if n == 0 {
			GetLogger().Info("replay finished",
				logger.String("file", s.Name()),
				logger.Uint64("frames", seq))
			return
		}

		frame := audiocore.Frame{
			Samples:   s.toMono(buf.Data[:n]),
			Timestamp: start.Add(time.Duration(seq) * frameDur),
			Seq:       seq,
		}
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
		if err := s.queue.Send(ctx, frame); err != nil {
			return
		}
		seq++
	}
}

// toMono averages interleaved channels down to one, scales the sample width
// to 16 bits and pads a short final block with silence.
func (s *Source) toMono(data []int) []int16 {
	samples := make([]int16, s.config.FrameSize)
	frames := len(data) / s.chans
	for i := range frames {
		sum := 0
		for c := range s.chans {
			sum += data[i*s.chans+c]
		}
		v := sum / s.chans
		switch {
		case s.shift > 0:
			v >>= s.shift
		case s.shift < 0:
			// 8-bit WAV is unsigned
			v = (v - 128) << -s.shift
		}
		samples[i] = int16(v)
	}
	if s.config.Gain > 0 && s.config.Gain != 1.0 {
		audiocore.ApplyGain(samples, s.config.Gain)
	}
	return samples
}

// Close releases the file of a source that was never started.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	return s.file.Close()
}

// String implements fmt.Stringer for logs.
func (s *Source) String() string {
	return fmt.Sprintf("file:%s@%dHz", s.Name(), s.format.SampleRate)
}
