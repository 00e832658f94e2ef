package snippet

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/errors"
)

var t0 = time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)

// memSink keeps blobs in memory and can be told to fail.
type memSink struct {
	committed map[string][]int16
	aborted   []string
	open      map[string]*memHandle
	seq       int

	failCreate bool
	failWrite  int // fail the nth write across handles, 0 disables
	failCommit bool
	writes     int
}

func newMemSink() *memSink {
	return &memSink{committed: map[string][]int16{}, open: map[string]*memHandle{}}
}

func (s *memSink) Create(time.Time) (BlobHandle, error) {
	if s.failCreate {
		return nil, fmt.Errorf("disk full")
	}
	s.seq++
	h := &memHandle{sink: s, name: fmt.Sprintf("snip-%d.wav", s.seq)}
	s.open[h.name] = h
	return h, nil
}

func (s *memSink) Remove(name string) error {
	delete(s.committed, name)
	return nil
}

func (s *memSink) Path(name string) (string, error) {
	return name, nil
}

type memHandle struct {
	sink *memSink
	name string
	data []int16
}

func (h *memHandle) Name() string { return h.name }

func (h *memHandle) Write(samples []int16) error {
	h.sink.writes++
	if h.sink.failWrite > 0 && h.sink.writes == h.sink.failWrite {
		return writeFailed("write", fmt.Errorf("io error"))
	}
	h.data = append(h.data, samples...)
	return nil
}

func (h *memHandle) Commit() error {
	delete(h.sink.open, h.name)
	if h.sink.failCommit {
		return fmt.Errorf("rename failed")
	}
	h.sink.committed[h.name] = h.data
	return nil
}

func (h *memHandle) Abort() error {
	delete(h.sink.open, h.name)
	h.sink.aborted = append(h.sink.aborted, h.name)
	return nil
}

func frame(i int, v int16) audiocore.Frame {
	return audiocore.Frame{
		Samples:   []int16{v, v},
		Timestamp: t0.Add(time.Duration(i) * time.Millisecond),
		Seq:       uint64(i),
	}
}

// 1 kHz with 2-sample frames: each frame is 2ms, a 4ms pre-roll holds two
func newTestWriter(t *testing.T, sink BlobSink, mode RMSMode) *Writer {
	t.Helper()
	w, err := NewWriter(sink, WriterConfig{SampleRate: 1000, PreRoll: 4 * time.Millisecond, RMSValue: mode})
	require.NoError(t, err)
	return w
}

var (
	none      = detection.Event{Type: detection.EventNone}
	started   = detection.Event{Type: detection.EventStarted, StartTs: t0}
	closed    = detection.Event{Type: detection.EventClosed, StartTs: t0, EndTs: t0.Add(time.Second), PeakRMS: 0.8, AvgRMS: 0.3}
	discarded = detection.Event{Type: detection.EventDiscarded}
)

func TestWriterCommitsEventWithPreRoll(t *testing.T) {
	sink := newMemSink()
	w := newTestWriter(t, sink, RMSPeak)

	// Three idle frames, only the last two fit in the pre-roll
	for i := 1; i <= 3; i++ {
		desc, err := w.Handle(frame(i, int16(i)), none)
		require.NoError(t, err)
		assert.Nil(t, desc)
	}
	_, err := w.Handle(frame(4, 40), started)
	require.NoError(t, err)
	assert.True(t, w.Capturing())
	_, err = w.Handle(frame(5, 50), none)
	require.NoError(t, err)

	desc, err := w.Handle(frame(6, 60), closed)
	require.NoError(t, err)
	require.NotNil(t, desc)

	assert.Equal(t, "snip-1.wav", desc.FileName)
	assert.Equal(t, t0, desc.Timestamp)
	assert.Equal(t, time.Second, desc.Duration())
	assert.InDelta(t, 0.8, desc.RMSValue, 1e-9)
	assert.InDelta(t, 0.3, desc.AvgRMS, 1e-9)
	assert.Equal(t, []int16{2, 2, 3, 3, 40, 40, 50, 50}, sink.committed["snip-1.wav"])
	assert.False(t, w.Capturing())
}

func TestWriterAverageMode(t *testing.T) {
	sink := newMemSink()
	w := newTestWriter(t, sink, RMSAverage)

	_, err := w.Handle(frame(0, 1), started)
	require.NoError(t, err)
	desc, err := w.Handle(frame(1, 1), closed)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, desc.RMSValue, 1e-9)
}

func TestWriterDiscardAborts(t *testing.T) {
	sink := newMemSink()
	w := newTestWriter(t, sink, RMSPeak)

	_, err := w.Handle(frame(0, 1), started)
	require.NoError(t, err)
	desc, err := w.Handle(frame(1, 2), discarded)
	require.NoError(t, err)
	assert.Nil(t, desc)
	assert.Empty(t, sink.committed)
	assert.Equal(t, []string{"snip-1.wav"}, sink.aborted)

	// The closing frame seeds the next pre-roll
	_, err = w.Handle(frame(2, 7), started)
	require.NoError(t, err)
	desc, err = w.Handle(frame(3, 0), closed)
	require.NoError(t, err)
	assert.Equal(t, []int16{2, 2, 7, 7}, sink.committed[desc.FileName])
}

func TestWriterCreateFailureSkipsEvent(t *testing.T) {
	sink := newMemSink()
	sink.failCreate = true
	w := newTestWriter(t, sink, RMSPeak)

	_, err := w.Handle(frame(0, 1), started)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))

	// Rest of the event is ignored and nothing is committed
	_, err = w.Handle(frame(1, 1), none)
	require.NoError(t, err)
	desc, err := w.Handle(frame(2, 1), closed)
	require.NoError(t, err)
	assert.Nil(t, desc)

	// The pipeline recovers for the next event
	sink.failCreate = false
	_, err = w.Handle(frame(3, 3), started)
	require.NoError(t, err)
	desc, err = w.Handle(frame(4, 0), closed)
	require.NoError(t, err)
	require.NotNil(t, desc)
	assert.Equal(t, []int16{1, 1, 3, 3}, sink.committed[desc.FileName])
}

func TestWriterWriteFailureAbortsPartialBlob(t *testing.T) {
	sink := newMemSink()
	sink.failWrite = 2
	w := newWriterNoPreRoll(t, sink)

	_, err := w.Handle(frame(0, 1), started)
	require.NoError(t, err)
	_, err = w.Handle(frame(1, 1), none)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.Equal(t, []string{"snip-1.wav"}, sink.aborted)
	assert.Empty(t, sink.open)

	_, err = w.Handle(frame(2, 1), none)
	require.NoError(t, err)
	desc, err := w.Handle(frame(3, 1), closed)
	require.NoError(t, err)
	assert.Nil(t, desc)
	assert.Empty(t, sink.committed)
}

func TestWriterCommitFailure(t *testing.T) {
	sink := newMemSink()
	sink.failCommit = true
	w := newTestWriter(t, sink, RMSPeak)

	_, err := w.Handle(frame(0, 1), started)
	require.NoError(t, err)
	desc, err := w.Handle(frame(1, 1), closed)
	assert.Nil(t, desc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.Empty(t, sink.committed)
}

func TestWriterCloseAbortsOpenBlob(t *testing.T) {
	sink := newMemSink()
	w := newTestWriter(t, sink, RMSPeak)

	_, err := w.Handle(frame(0, 1), started)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Empty(t, sink.open)
	assert.Empty(t, sink.committed)
	require.NoError(t, w.Close())
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(nil, WriterConfig{SampleRate: 1000})
	require.Error(t, err)
	_, err = NewWriter(newMemSink(), WriterConfig{SampleRate: 1000, RMSValue: "median"})
	require.Error(t, err)

	w, err := NewWriter(newMemSink(), WriterConfig{SampleRate: 1000})
	require.NoError(t, err)
	assert.Equal(t, RMSPeak, w.config.RMSValue)
	assert.Nil(t, w.preRoll)
}

func newWriterNoPreRoll(t *testing.T, sink BlobSink) *Writer {
	t.Helper()
	w, err := NewWriter(sink, WriterConfig{SampleRate: 1000})
	require.NoError(t, err)
	return w
}

func TestFileSinkCommit(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 8000)
	require.NoError(t, err)

	h, err := sink.Create(t0)
	require.NoError(t, err)
	assert.Contains(t, h.Name(), "20260601T230000Z_")
	require.NoError(t, h.Write([]int16{100, -100, 200}))
	require.NoError(t, h.Write([]int16{300}))
	require.NoError(t, h.Commit())

	path, err := sink.Path(h.Name())
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 8000, int(dec.SampleRate))
	assert.Equal(t, 1, int(dec.NumChans))
	assert.Equal(t, []int{100, -100, 200, 300}, buf.Data)

	// No temp files remain
	matches, _ := filepath.Glob(filepath.Join(dir, tempPattern))
	assert.Empty(t, matches)
}

func TestFileSinkAbortAndRemove(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, 8000)
	require.NoError(t, err)

	h, err := sink.Create(t0)
	require.NoError(t, err)
	require.NoError(t, h.Write([]int16{1}))
	require.NoError(t, h.Abort())
	require.NoError(t, h.Abort())
	assert.Error(t, h.Write([]int16{1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	h, err = sink.Create(t0)
	require.NoError(t, err)
	require.NoError(t, h.Write([]int16{1}))
	require.NoError(t, h.Commit())
	require.NoError(t, sink.Remove(h.Name()))
	require.NoError(t, sink.Remove(h.Name()))
	_, err = os.Stat(filepath.Join(dir, h.Name()))
	assert.True(t, os.IsNotExist(err))
}

func TestFileSinkRejectsEscapingNames(t *testing.T) {
	sink, err := NewFileSink(t.TempDir(), 8000)
	require.NoError(t, err)

	for _, name := range []string{"", "../x.wav", "a/b.wav", ".snippet-1.tmp", ".."} {
		_, err := sink.Path(name)
		assert.True(t, errors.Is(err, ErrInvalidName), name)
	}
}

func TestFileSinkRemovesStaleTemps(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".snippet-123.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))

	sink, err := NewFileSink(dir, 8000)
	require.NoError(t, err)
	_, err = os.Stat(stale)
	require.NoError(t, err, "opening a sink leaves temps alone")

	lock, err := sink.LockRecording()
	require.NoError(t, err)
	defer lock.Release()
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	_, err = NewFileSink("", 8000)
	assert.Error(t, err)
}

func TestSecondSinkKeepsLiveTemps(t *testing.T) {
	dir := t.TempDir()
	recording, err := NewFileSink(dir, 8000)
	require.NoError(t, err)
	lock, err := recording.LockRecording()
	require.NoError(t, err)

	h, err := recording.Create(time.Now())
	require.NoError(t, err)
	require.NoError(t, h.Write(make([]int16, 800)))

	// a second process opening the same directory
	reader, err := NewFileSink(dir, 8000)
	require.NoError(t, err)
	active, err := reader.RecordingActive()
	require.NoError(t, err)
	assert.True(t, active)

	_, err = reader.LockRecording()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecordingActive))

	require.NoError(t, h.Commit())
	_, err = os.Stat(filepath.Join(dir, h.Name()))
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	active, err = reader.RecordingActive()
	require.NoError(t, err)
	assert.False(t, active)

	again, err := reader.LockRecording()
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
