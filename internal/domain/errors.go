package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobInFlight is returned when a start arrives while the previous job still owns the station
	ErrJobInFlight = errors.New("inspection job already in flight")

	// ErrNoFrame is returned when a device opened but never delivered a decodable frame
	ErrNoFrame = errors.New("no frame produced")

	// ErrUnusableFrames is the cause of a terminal acquisition failure
	ErrUnusableFrames = errors.New("frames unusable after recovery ladder")
)

// AcquisitionError reports a failed device open or read. Terminal is set once
// the recovery ladder has been exhausted.
type AcquisitionError struct {
	Role     CameraRole
	Device   string
	Terminal bool
	Err      error
}

func (e *AcquisitionError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("acquisition failed: %v", e.Err)
	}
	return fmt.Sprintf("acquisition failed for %s camera (%s): %v", e.Role, e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// HardwareRecoveryError reports a failed power-cycle, driver reload or exposure command
type HardwareRecoveryError struct {
	Step string
	Err  error
}

func (e *HardwareRecoveryError) Error() string {
	return fmt.Sprintf("hardware recovery step %q failed: %v", e.Step, e.Err)
}

func (e *HardwareRecoveryError) Unwrap() error {
	return e.Err
}

// InferenceError reports a vision stage that raised instead of returning a verdict
type InferenceError struct {
	Stage Stage
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a malformed client request
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// NewProtocolError creates a protocol error with a formatted reason
func NewProtocolError(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
