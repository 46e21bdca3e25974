package domain

import (
	"image"
	"time"
)

// CameraRole is the logical position a camera occupies on the station
type CameraRole string

const (
	RoleMeter CameraRole = "meter"
	RoleNIC   CameraRole = "nic"
)

// PixelFormat selects the capture strategy of the frame acquirer
type PixelFormat string

const (
	// PixelFormatMJPEG is the fast, compressed mode
	PixelFormatMJPEG PixelFormat = "MJPG"
	// PixelFormatYUYV is the uncompressed high-fidelity mode
	PixelFormatYUYV PixelFormat = "YUYV"
)

// CameraBinding pins a logical role to the device node it currently enumerates as.
// It is resolved fresh for every acquisition attempt.
type CameraBinding struct {
	Role        CameraRole
	PhysicalID  string
	DevicePath  string
	Rotation    int
	PixelFormat PixelFormat
	Width       int
	Height      int
}

// Frame is one decoded, rotation-normalized camera image
type Frame struct {
	Image      image.Image
	Role       CameraRole
	DevicePath string
	CapturedAt time.Time
}

// RecoveryTier records which rung of the recovery ladder produced the frames
type RecoveryTier int

const (
	TierPowerCycle RecoveryTier = iota + 1
	TierDriverReload
)

func (t RecoveryTier) String() string {
	switch t {
	case TierPowerCycle:
		return "power_cycle"
	case TierDriverReload:
		return "driver_reload"
	default:
		return "unknown"
	}
}

// FramePair holds the two frames of one acquisition phase
type FramePair struct {
	Meter *Frame
	NIC   *Frame
	Tier  RecoveryTier
}

// Request is the client context of a start command
type Request struct {
	CmdCode          int
	IdealArtworkPath string
	Data             map[string]any
}
