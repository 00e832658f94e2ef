// Package malgo provides a malgo-based soundcard audio source
package malgo

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/logger"
)

// MalgoConfig contains configuration for the malgo audio source
type MalgoConfig struct {
	DeviceName string  // name, decoded ID or substring; empty selects the default
	SampleRate uint32  // capture rate in Hz
	FrameSize  int     // samples per emitted frame
	QueueSize  int     // frames buffered towards the pipeline
	Gain       float64 // linear gain
}

// MalgoSource captures mono PCM16 from a sound card.
type MalgoSource struct {
	id     string
	config MalgoConfig
	format audiocore.AudioFormat

	ctx    *malgo.AllocatedContext
	device *malgo.Device
	name   string

	queue     *audiocore.FrameQueue
	errorChan chan error

	// assembler is only touched from the device callback
	assembler *audiocore.FrameAssembler

	mu      sync.Mutex
	running atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMalgoSource creates a new malgo-based audio source
func NewMalgoSource(id string, config MalgoConfig) (*MalgoSource, error) {
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.FrameSize <= 0 {
		config.FrameSize = int(config.SampleRate / 10)
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Gain == 0 {
		config.Gain = 1.0
	}

	s := &MalgoSource{
		id:        id,
		config:    config,
		format:    audiocore.MonoPCM16(int(config.SampleRate)),
		name:      config.DeviceName,
		queue:     audiocore.NewFrameQueue(config.QueueSize),
		errorChan: make(chan error, 10),
		done:      make(chan struct{}),
	}
	s.assembler = audiocore.NewFrameAssembler(s.format, config.FrameSize, config.Gain, func(f audiocore.Frame) {
		s.queue.Offer(f)
	})
	return s, nil
}

// ID returns a unique identifier for this source
func (s *MalgoSource) ID() string {
	return s.id
}

// Name returns the resolved device name once started.
func (s *MalgoSource) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Start opens the capture device and begins delivering frames.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() || s.stopped.Load() {
		return audiocore.ErrSourceRunning
	}

	backend, err := getBackendForPlatform()
	if err != nil {
		return err
	}
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.id).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}
	s.ctx = malgoCtx

	devices, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.id).
			Context("operation", "enumerate_devices").
			Build()
	}
	deviceInfo, err := SelectDevice(devices, s.config.DeviceName)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return err
	}
	s.name = deviceInfo.Name()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.id).
			Context("device_name", s.name).
			Context("operation", "init_device").
			Build()
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.id).
			Context("operation", "start_device").
			Build()
	}

	s.running.Store(true)
	GetLogger().Info("capture device started",
		logger.String("source_id", s.id),
		logger.String("device", s.name),
		logger.Int("sample_rate", int(device.SampleRate())))

	captureCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.monitor(captureCtx)

	return nil
}

// Stop halts audio capture and closes Frames().
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return audiocore.ErrSourceNotRunning
	}
	s.running.Store(false)
	s.stopped.Store(true)

	if s.cancel != nil {
		s.cancel()
	}
	if s.device != nil {
		// Stop returns after the last data callback has finished
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}

	s.queue.Close()
	close(s.done)

	GetLogger().Info("capture device stopped",
		logger.String("source_id", s.id),
		logger.Uint64("dropped_frames", s.queue.Dropped()))
	return nil
}

// Frames returns the frame channel.
func (s *MalgoSource) Frames() <-chan audiocore.Frame {
	return s.queue.Frames()
}

// Errors returns a channel for error reporting
func (s *MalgoSource) Errors() <-chan error {
	return s.errorChan
}

// Dropped returns the number of frames discarded on a full queue.
func (s *MalgoSource) Dropped() uint64 {
	return s.queue.Dropped()
}

// Format returns the frame format.
func (s *MalgoSource) Format() audiocore.AudioFormat {
	return s.format
}

// onAudioData runs on the audio driver thread and must not block.
func (s *MalgoSource) onAudioData(_, pInputSamples []byte, _ uint32) {
	if !s.running.Load() {
		return
	}
	if err := s.assembler.Write(pInputSamples); err != nil {
		audiocore.ReportError(s.errorChan, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.id).
			Context("operation", "assemble_frame").
			Build())
	}
}

// onDeviceStop is called by malgo when the device stops, including after Stop.
func (s *MalgoSource) onDeviceStop() {
	if !s.running.Load() {
		return
	}
	audiocore.ReportError(s.errorChan, errors.Newf("audio device %s stopped unexpectedly", s.name).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryAudioSource).
		Context("source_id", s.id).
		Build())
}

// monitor stops the device when the capture context is cancelled.
func (s *MalgoSource) monitor(ctx context.Context) {
	select {
	case <-ctx.Done():
		if err := s.Stop(); err != nil && !errors.Is(err, audiocore.ErrSourceNotRunning) {
			GetLogger().Warn("failed to stop capture device", logger.Error(err))
		}
	case <-s.done:
	}
}
