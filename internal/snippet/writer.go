// Package snippet streams gated audio events to a blob sink and describes
// the result.
package snippet

import (
	"encoding/binary"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// RMSMode selects which level is stored as a snippet's RMS value.
type RMSMode string

const (
	RMSPeak    RMSMode = "peak"
	RMSAverage RMSMode = "average"
)

// Descriptor describes a committed snippet.
type Descriptor struct {
	FileName  string
	Timestamp time.Time // event start including pre-roll
	EndTime   time.Time
	RMSValue  float64
	PeakRMS   float64
	AvgRMS    float64
}

// Duration returns the snippet length.
func (d *Descriptor) Duration() time.Duration {
	return d.EndTime.Sub(d.Timestamp)
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	SampleRate int
	PreRoll    time.Duration
	RMSValue   RMSMode
}

// Writer follows gate events and streams the matching audio to a sink. It
// is owned by the capture goroutine and is not safe for concurrent use.
type Writer struct {
	sink   BlobSink
	config WriterConfig

	preRoll *ringbuffer.RingBuffer
	scratch []byte
	samples []int16

	handle BlobHandle
	// skipping is set after a failed write until the event ends
	skipping bool
	log      logger.Logger
}

// NewWriter creates a Writer. A zero PreRoll disables the pre-roll ring.
func NewWriter(sink BlobSink, config WriterConfig) (*Writer, error) {
	if sink == nil || config.SampleRate <= 0 || config.PreRoll < 0 {
		return nil, errors.Newf("invalid snippet writer config").
			Component(ComponentSnippet).
			Category(errors.CategoryConfiguration).
			Context("sample_rate", config.SampleRate).
			Context("pre_roll", config.PreRoll.String()).
			Build()
	}
	switch config.RMSValue {
	case RMSPeak, RMSAverage:
	case "":
		config.RMSValue = RMSPeak
	default:
		return nil, errors.Newf("unknown rms mode %q", config.RMSValue).
			Component(ComponentSnippet).
			Category(errors.CategoryConfiguration).
			Build()
	}

	w := &Writer{sink: sink, config: config, log: GetLogger()}
	if n := preRollBytes(config.SampleRate, config.PreRoll); n > 0 {
		w.preRoll = ringbuffer.New(n)
	}
	return w, nil
}

func preRollBytes(sampleRate int, d time.Duration) int {
	samples := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return samples * 2
}

// Handle processes one frame together with the gate event it produced. A
// descriptor is returned only when an event is committed. Errors wrap
// ErrWriteFailed; the writer stays usable afterwards.
func (w *Writer) Handle(frame audiocore.Frame, ev detection.Event) (*Descriptor, error) {
	switch ev.Type {
	case detection.EventStarted:
		return nil, w.start(frame, ev)

	case detection.EventClosed:
		desc, err := w.commit(ev)
		w.remember(frame.Samples)
		return desc, err

	case detection.EventDiscarded:
		err := w.abort()
		w.skipping = false
		w.remember(frame.Samples)
		return nil, err

	default:
		switch {
		case w.handle != nil:
			if err := w.handle.Write(frame.Samples); err != nil {
				w.fail()
				return nil, wrapWriteFailed(err)
			}
		case !w.skipping:
			w.remember(frame.Samples)
		}
		return nil, nil
	}
}

// Capturing reports whether a blob is open.
func (w *Writer) Capturing() bool {
	return w.handle != nil
}

// Close aborts any open blob. Audio of an unfinished event is discarded.
func (w *Writer) Close() error {
	w.skipping = false
	if w.preRoll != nil {
		w.preRoll.Reset()
	}
	return w.abort()
}

func (w *Writer) start(frame audiocore.Frame, ev detection.Event) error {
	if w.handle != nil {
		// A started event without a close means the gate was reset
		_ = w.abort()
	}
	w.skipping = false

	h, err := w.sink.Create(ev.StartTs)
	if err != nil {
		w.skipping = true
		if w.preRoll != nil {
			w.preRoll.Reset()
		}
		return wrapWriteFailed(err)
	}
	w.handle = h

	if pre := w.drainPreRoll(); len(pre) > 0 {
		if err := h.Write(pre); err != nil {
			w.fail()
			return wrapWriteFailed(err)
		}
	}
	if err := h.Write(frame.Samples); err != nil {
		w.fail()
		return wrapWriteFailed(err)
	}
	return nil
}

func (w *Writer) commit(ev detection.Event) (*Descriptor, error) {
	if w.handle == nil {
		// Event already failed and was ignored
		w.skipping = false
		return nil, nil
	}
	h := w.handle
	w.handle = nil
	if err := h.Commit(); err != nil {
		_ = h.Abort()
		return nil, wrapWriteFailed(err)
	}

	desc := &Descriptor{
		FileName:  h.Name(),
		Timestamp: ev.StartTs,
		EndTime:   ev.EndTs,
		PeakRMS:   ev.PeakRMS,
		AvgRMS:    ev.AvgRMS,
		RMSValue:  ev.PeakRMS,
	}
	if w.config.RMSValue == RMSAverage {
		desc.RMSValue = ev.AvgRMS
	}
	w.log.Debug("snippet committed",
		logger.String("file", desc.FileName),
		logger.Time("start", desc.Timestamp),
		logger.Duration("duration", desc.Duration()),
		logger.Float64("rms", desc.RMSValue),
		logger.Float64("rms_db", detection.ToDecibels(desc.RMSValue)))
	return desc, nil
}

func (w *Writer) abort() error {
	if w.handle == nil {
		return nil
	}
	h := w.handle
	w.handle = nil
	if err := h.Abort(); err != nil {
		return wrapWriteFailed(err)
	}
	return nil
}

// fail drops the current blob and ignores frames until the event ends.
func (w *Writer) fail() {
	if w.handle != nil {
		_ = w.handle.Abort()
		w.handle = nil
	}
	w.skipping = true
}

// remember keeps the most recent PreRoll worth of audio, overwriting the
// oldest samples.
func (w *Writer) remember(samples []int16) {
	if w.preRoll == nil || len(samples) == 0 {
		return
	}
	capacity := w.preRoll.Capacity()
	need := len(samples) * 2
	if need > capacity {
		samples = samples[len(samples)-capacity/2:]
		need = len(samples) * 2
	}
	if over := need - w.preRoll.Free(); over > 0 {
		w.discard(over)
	}

	buf := w.byteScratch(need)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	_, _ = w.preRoll.Write(buf)
}

func (w *Writer) discard(n int) {
	buf := w.byteScratch(n)
	_, _ = w.preRoll.Read(buf)
}

func (w *Writer) drainPreRoll() []int16 {
	if w.preRoll == nil || w.preRoll.IsEmpty() {
		return nil
	}
	buf := w.byteScratch(w.preRoll.Length())
	n, _ := w.preRoll.Read(buf)
	n -= n % 2

	if cap(w.samples) < n/2 {
		w.samples = make([]int16, n/2)
	}
	out := w.samples[:n/2]
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

func (w *Writer) byteScratch(n int) []byte {
	if cap(w.scratch) < n {
		w.scratch = make([]byte, n)
	}
	return w.scratch[:n]
}

func wrapWriteFailed(err error) error {
	if errors.Is(err, ErrWriteFailed) {
		return err
	}
	return writeFailed("sink", err)
}
