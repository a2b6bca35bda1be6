package capture

import (
	"context"
	"fmt"
	"testing"

	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

// flakyProvider fails the devices it is told to fail
type flakyProvider struct {
	inner      DeviceProvider
	failMic    bool
	failCamera bool
}

func (p *flakyProvider) OpenMicrophone(ctx context.Context) (AudioSource, error) {
	if p.failMic {
		return nil, fmt.Errorf("microphone busy")
	}
	return p.inner.OpenMicrophone(ctx)
}

func (p *flakyProvider) OpenCamera(ctx context.Context) (VideoSource, error) {
	if p.failCamera {
		return nil, fmt.Errorf("camera busy")
	}
	return p.inner.OpenCamera(ctx)
}

func newTestManager(failMic, failCamera bool) *Manager {
	log := logger.NewNopLogger()
	provider := &flakyProvider{
		inner:      NewStaticProvider(),
		failMic:    failMic,
		failCamera: failCamera,
	}
	return NewManager(provider, log)
}

func TestAcquireBothDevices(t *testing.T) {
	m := newTestManager(false, false)
	ctx := context.Background()

	if err := m.AcquireAudio(ctx); err != nil {
		t.Fatalf("AcquireAudio failed: %v", err)
	}
	if err := m.AcquireVideo(ctx); err != nil {
		t.Fatalf("AcquireVideo failed: %v", err)
	}

	if !m.MicAvailable() {
		t.Error("Expected microphone to be available")
	}
	if !m.CameraAvailable() {
		t.Error("Expected camera to be available")
	}
	if m.Audio() == nil || m.Video() == nil {
		t.Error("Expected both sources to be set")
	}
}

func TestCameraFailureDoesNotBlockAudio(t *testing.T) {
	m := newTestManager(false, true)
	ctx := context.Background()

	if err := m.AcquireAudio(ctx); err != nil {
		t.Fatalf("AcquireAudio failed: %v", err)
	}

	err := m.AcquireVideo(ctx)
	if err == nil {
		t.Fatal("Expected camera acquisition to fail")
	}
	if !errors.IsDeviceError(err) {
		t.Errorf("Expected a device error, got %v", err)
	}
	if !errors.IsErrorCode(err, errors.ErrCodeCameraUnavailable) {
		t.Errorf("Expected camera unavailable code, got %v", err)
	}

	if !m.MicAvailable() {
		t.Error("Microphone should stay available after camera failure")
	}
	if m.CameraAvailable() {
		t.Error("Camera should not be available")
	}
}

func TestMicFailureDoesNotBlockVideo(t *testing.T) {
	m := newTestManager(true, false)
	ctx := context.Background()

	err := m.AcquireAudio(ctx)
	if !errors.IsErrorCode(err, errors.ErrCodeMicUnavailable) {
		t.Errorf("Expected mic unavailable code, got %v", err)
	}

	if err := m.AcquireVideo(ctx); err != nil {
		t.Fatalf("AcquireVideo failed: %v", err)
	}
	if !m.CameraAvailable() {
		t.Error("Camera should be available after mic failure")
	}
}

func TestTogglesAreNoOpsWithoutDevices(t *testing.T) {
	m := newTestManager(true, true)
	ctx := context.Background()

	_ = m.AcquireAudio(ctx)
	_ = m.AcquireVideo(ctx)

	m.SetMuted(true)
	m.SetCameraEnabled(false)

	if m.IsMuted() {
		t.Error("Mute state should not change without a microphone")
	}
	if m.IsCameraOff() {
		t.Error("Camera state should not change without a camera")
	}
}

func TestToggleStates(t *testing.T) {
	m := newTestManager(false, false)
	ctx := context.Background()

	if err := m.AcquireAudio(ctx); err != nil {
		t.Fatalf("AcquireAudio failed: %v", err)
	}
	if err := m.AcquireVideo(ctx); err != nil {
		t.Fatalf("AcquireVideo failed: %v", err)
	}

	m.SetMuted(true)
	if !m.IsMuted() {
		t.Error("Expected muted after SetMuted(true)")
	}

	m.SetCameraEnabled(false)
	if !m.IsCameraOff() {
		t.Error("Expected camera off after SetCameraEnabled(false)")
	}

	m.SetMuted(false)
	m.SetCameraEnabled(true)
	if m.IsMuted() || m.IsCameraOff() {
		t.Error("Expected both toggles back on")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(false, false)
	ctx := context.Background()

	if err := m.AcquireAudio(ctx); err != nil {
		t.Fatalf("AcquireAudio failed: %v", err)
	}
	if err := m.AcquireVideo(ctx); err != nil {
		t.Fatalf("AcquireVideo failed: %v", err)
	}

	m.Release()
	m.Release()
	m.Release()

	if m.MicAvailable() || m.CameraAvailable() {
		t.Error("No device should be available after release")
	}
}

func TestAcquireAfterReleaseFails(t *testing.T) {
	m := newTestManager(false, false)
	ctx := context.Background()

	m.Release()

	err := m.AcquireAudio(ctx)
	if !errors.IsErrorCode(err, errors.ErrCodeDeviceReleased) {
		t.Errorf("Expected device released code, got %v", err)
	}

	err = m.AcquireVideo(ctx)
	if !errors.IsErrorCode(err, errors.ErrCodeDeviceReleased) {
		t.Errorf("Expected device released code, got %v", err)
	}
}
