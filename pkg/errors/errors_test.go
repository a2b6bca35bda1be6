package errors

import (
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeJoinFailed, "join failed")
	if err.Error() != "[4000] join failed" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	wrapped := Wrap(ErrCodeJoinFailed, "join failed", fmt.Errorf("timeout"))
	if wrapped.Error() != "[4000] join failed: timeout" {
		t.Errorf("Unexpected message: %s", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("timeout")
	err := Wrap(ErrCodePublishFailed, "publish failed", cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
}

func TestIsErrorCode(t *testing.T) {
	err := NewMicUnavailableError(fmt.Errorf("busy"))

	if !IsErrorCode(err, ErrCodeMicUnavailable) {
		t.Error("Expected mic unavailable code to match")
	}
	if IsErrorCode(err, ErrCodeCameraUnavailable) {
		t.Error("Did not expect camera code to match")
	}
	if IsErrorCode(nil, ErrCodeMicUnavailable) {
		t.Error("nil error matches no code")
	}
	if IsErrorCode(fmt.Errorf("plain"), ErrCodeMicUnavailable) {
		t.Error("Plain errors match no code")
	}
}

func TestDeviceErrorsDegrade(t *testing.T) {
	device := []error{
		NewMicUnavailableError(nil),
		NewCameraUnavailableError(nil),
		New(ErrCodeDeviceDenied, "denied"),
	}
	for _, err := range device {
		if !IsDeviceError(err) {
			t.Errorf("Expected device error: %v", err)
		}
		if IsFatalSetupError(err) {
			t.Errorf("Device errors must not abort setup: %v", err)
		}
	}
}

func TestFatalSetupErrors(t *testing.T) {
	fatal := []error{
		NewTokenFetchError(nil),
		New(ErrCodeMissingSecret, "no secret"),
		NewJoinError("room-1", nil),
		NewPublishError(nil),
	}
	for _, err := range fatal {
		if !IsFatalSetupError(err) {
			t.Errorf("Expected fatal setup error: %v", err)
		}
	}

	nonFatal := []error{
		NewTransformInitError(nil),
		NewSubscribeError(7, nil),
		New(ErrCodeInvalidState, "wrong state"),
	}
	for _, err := range nonFatal {
		if IsFatalSetupError(err) {
			t.Errorf("Expected non-fatal error: %v", err)
		}
	}
}
