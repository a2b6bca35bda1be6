// Package capture owns acquisition and release of the local microphone
// and camera. Each device is acquired independently so a missing camera
// never blocks audio, and release is safe to run on every exit path.
package capture

import (
	"context"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

// AudioSource is an acquired local microphone
type AudioSource interface {
	// ID is the source identifier
	ID() string

	// Track is the publishable local track handle
	Track() webrtc.TrackLocal

	// SetEnabled toggles whether the source produces media
	SetEnabled(enabled bool)

	// Close releases the underlying device handle
	Close()
}

// VideoSource is an acquired local camera. ReadRTP exposes the raw
// media flow so a transform stage can interpose without touching the
// device handle.
type VideoSource interface {
	// ID is the source identifier
	ID() string

	// Track is the publishable local track handle
	Track() webrtc.TrackLocal

	// SetEnabled toggles whether the source produces media
	SetEnabled(enabled bool)

	// ReadRTP reads the next media packet from the source
	ReadRTP() (*rtp.Packet, error)

	// Close releases the underlying device handle
	Close()
}

// DeviceProvider opens local capture devices. Hardware integrations
// implement this port; StaticProvider serves headless wiring and tests.
type DeviceProvider interface {
	OpenMicrophone(ctx context.Context) (AudioSource, error)
	OpenCamera(ctx context.Context) (VideoSource, error)
}

// Manager owns the local capture devices of one session. At most one
// audio and one video source are held at a time; the active session has
// exclusive ownership of the manager.
type Manager struct {
	provider DeviceProvider
	logger   logger.Logger

	// mu protects concurrent access
	mu        sync.Mutex
	audio     AudioSource
	video     VideoSource
	muted     bool
	cameraOff bool
	released  bool
}

// NewManager creates a capture manager backed by the given provider
func NewManager(provider DeviceProvider, log logger.Logger) *Manager {
	return &Manager{
		provider: provider,
		logger:   log,
	}
}

// AcquireAudio attempts to open the microphone. Failure is reported as
// a device error and leaves the manager usable; the session continues
// without audio.
func (m *Manager) AcquireAudio(ctx context.Context) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeDeviceReleased, "capture manager already released")
	}
	if m.audio != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	src, err := m.provider.OpenMicrophone(ctx)
	if err != nil {
		m.logger.Warn("Microphone unavailable", logger.Err(err))
		return errors.NewMicUnavailableError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		src.Close()
		return errors.New(errors.ErrCodeDeviceReleased, "capture manager released during acquire")
	}
	m.audio = src

	m.logger.Info("Microphone acquired",
		logger.String("source_id", src.ID()),
	)

	return nil
}

// AcquireVideo attempts to open the camera. Failure is reported as a
// device error and leaves the manager usable; the session continues
// audio-only.
func (m *Manager) AcquireVideo(ctx context.Context) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeDeviceReleased, "capture manager already released")
	}
	if m.video != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	src, err := m.provider.OpenCamera(ctx)
	if err != nil {
		m.logger.Warn("Camera unavailable", logger.Err(err))
		return errors.NewCameraUnavailableError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		src.Close()
		return errors.New(errors.ErrCodeDeviceReleased, "capture manager released during acquire")
	}
	m.video = src

	m.logger.Info("Camera acquired",
		logger.String("source_id", src.ID()),
	)

	return nil
}

// SetMuted toggles the microphone. No-op when the microphone was never
// acquired; callers check MicAvailable first.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.audio == nil {
		return
	}

	m.muted = muted
	m.audio.SetEnabled(!muted)
}

// SetCameraEnabled toggles the camera. No-op when the camera was never
// acquired; callers check CameraAvailable first.
func (m *Manager) SetCameraEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.video == nil {
		return
	}

	m.cameraOff = !enabled
	m.video.SetEnabled(enabled)
}

// MicAvailable reports whether a microphone was acquired
func (m *Manager) MicAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio != nil
}

// CameraAvailable reports whether a camera was acquired
func (m *Manager) CameraAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video != nil
}

// IsMuted reports the local mute state
func (m *Manager) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// IsCameraOff reports the local camera state
func (m *Manager) IsCameraOff() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cameraOff
}

// Audio returns the acquired audio source, or nil
func (m *Manager) Audio() AudioSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio
}

// Video returns the acquired video source, or nil
func (m *Manager) Video() VideoSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.video
}

// Release closes both devices. Idempotent; runs on every exit path of
// a session (normal leave, setup failure, teardown).
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return
	}
	m.released = true

	if m.audio != nil {
		m.audio.Close()
		m.audio = nil
	}
	if m.video != nil {
		m.video.Close()
		m.video = nil
	}

	m.logger.Info("Capture devices released")
}
