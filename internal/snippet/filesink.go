package snippet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

const (
	bitDepth    = 16
	numChannels = 1
	wavFormat   = 1 // PCM
	tempPattern = ".snippet-*.tmp"
	fileExt     = ".wav"
)

// BlobSink stores snippet audio.
type BlobSink interface {
	// Create opens a new blob for an event starting at start.
	Create(start time.Time) (BlobHandle, error)
	// Remove deletes a committed blob. Removing a missing blob is not an
	// error.
	Remove(name string) error
	// Path resolves a blob name to a filesystem path for playback.
	Path(name string) (string, error)
}

// BlobHandle is an open, uncommitted blob.
type BlobHandle interface {
	Name() string
	Write(samples []int16) error
	// Commit makes the blob durable and visible under Name.
	Commit() error
	// Abort discards everything written so far.
	Abort() error
}

// FileSink writes snippets as 16-bit mono WAV files in one directory.
type FileSink struct {
	dir        string
	sampleRate int
	newName    func(start time.Time) string
}

// NewFileSink creates dir if needed. Temp files of an interrupted run are
// swept by LockRecording, never here, since another process may be
// writing into dir.
func NewFileSink(dir string, sampleRate int) (*FileSink, error) {
	if dir == "" || sampleRate <= 0 {
		return nil, errors.Newf("snippet sink needs a directory and a sample rate").
			Component(ComponentSnippet).
			Category(errors.CategoryConfiguration).
			Context("dir", dir).
			Context("sample_rate", sampleRate).
			Build()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component(ComponentSnippet).
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	return &FileSink{dir: dir, sampleRate: sampleRate, newName: defaultName}, nil
}

// defaultName builds a sortable, collision-free file name such as
// 20260601T231502Z_3f0c9a6e-....wav.
func defaultName(start time.Time) string {
	return start.UTC().Format("20060102T150405Z") + "_" + uuid.NewString() + fileExt
}

// Dir returns the snippet directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Create implements BlobSink.
func (s *FileSink) Create(start time.Time) (BlobHandle, error) {
	f, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return nil, writeFailed("create", err)
	}
	return &fileHandle{
		sink: s,
		name: s.newName(start),
		file: f,
		enc:  wav.NewEncoder(f, s.sampleRate, bitDepth, numChannels, wavFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: s.sampleRate, NumChannels: numChannels},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Path implements BlobSink.
func (s *FileSink) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errors.New(ErrInvalidName).
			Component(ComponentSnippet).
			Context("name", name).
			Build()
	}
	return filepath.Join(s.dir, name), nil
}

// Remove implements BlobSink.
func (s *FileSink) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.FileError(err, path, 0)
	}
	return nil
}

func (s *FileSink) removeStaleTemps() {
	matches, err := filepath.Glob(filepath.Join(s.dir, tempPattern))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			GetLogger().Info("removed stale snippet temp file", logger.String("path", m))
		}
	}
}

type fileHandle struct {
	sink *FileSink
	name string
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer

	mu     sync.Mutex
	closed bool
}

func (h *fileHandle) Name() string {
	return h.name
}

func (h *fileHandle) Write(samples []int16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return writeFailed("write", fmt.Errorf("handle %s already closed", h.name))
	}
	if len(samples) == 0 {
		return nil
	}

	if cap(h.buf.Data) < len(samples) {
		h.buf.Data = make([]int, len(samples))
	}
	h.buf.Data = h.buf.Data[:len(samples)]
	for i, s := range samples {
		h.buf.Data[i] = int(s)
	}
	if err := h.enc.Write(h.buf); err != nil {
		return writeFailed("write", err)
	}
	return nil
}

func (h *fileHandle) Commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return writeFailed("commit", fmt.Errorf("handle %s already closed", h.name))
	}
	h.closed = true

	tmp := h.file.Name()
	fail := func(err error) error {
		_ = h.file.Close()
		_ = os.Remove(tmp)
		return writeFailed("commit", err)
	}

	// Close finalizes the RIFF header sizes
	if err := h.enc.Close(); err != nil {
		return fail(err)
	}
	if err := h.file.Sync(); err != nil {
		return fail(err)
	}
	if err := h.file.Close(); err != nil {
		_ = os.Remove(tmp)
		return writeFailed("commit", err)
	}
	if err := os.Rename(tmp, filepath.Join(h.sink.dir, h.name)); err != nil {
		_ = os.Remove(tmp)
		return writeFailed("commit", err)
	}
	return nil
}

func (h *fileHandle) Abort() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	tmp := h.file.Name()
	_ = h.file.Close()
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return errors.FileError(err, tmp, 0)
	}
	return nil
}
