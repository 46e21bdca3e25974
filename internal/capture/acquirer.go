package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/device"
	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// DefaultCaptureTimeout bounds one parallel capture of both cameras
const DefaultCaptureTimeout = 15 * time.Second

// Timing describes one capture strategy
type Timing struct {
	SettleDelay  time.Duration // pause between set-format and open
	WarmupFrames int           // frames discarded while the sensor settles
	WarmupDelay  time.Duration // pause after each discarded frame
	ReadAttempts int           // reads tried before giving up
	RetryDelay   time.Duration // pause between failed reads
}

// FastTiming is the compressed-mode strategy: short warm-up, one read
func FastTiming() Timing {
	return Timing{
		WarmupFrames: 10,
		WarmupDelay:  20 * time.Millisecond,
		ReadAttempts: 1,
	}
}

// HighFidelityTiming is the uncompressed-mode strategy. The sensor runs at
// about 2 fps in this mode so every delay is long.
func HighFidelityTiming() Timing {
	return Timing{
		SettleDelay:  100 * time.Millisecond,
		WarmupFrames: 5,
		WarmupDelay:  750 * time.Millisecond,
		ReadAttempts: 3,
		RetryDelay:   750 * time.Millisecond,
	}
}

// FormatSetter configures a device before it is opened
type FormatSetter interface {
	SetFormat(ctx context.Context, device string, width, height int, format domain.PixelFormat) error
}

// AcquirerConfig holds frame acquirer configuration
type AcquirerConfig struct {
	Logger       *slog.Logger
	Source       Source
	Formats      FormatSetter
	Fast         Timing
	HighFidelity Timing
	Timeout      time.Duration
}

// Acquirer captures single frames from the station cameras
type Acquirer struct {
	logger       *slog.Logger
	source       Source
	formats      FormatSetter
	fast         Timing
	highFidelity Timing
	timeout      time.Duration
	now          func() time.Time
}

// NewAcquirer creates a new Acquirer
func NewAcquirer(cfg *AcquirerConfig) *Acquirer {
	a := &Acquirer{
		logger:       cfg.Logger,
		source:       cfg.Source,
		formats:      cfg.Formats,
		fast:         cfg.Fast,
		highFidelity: cfg.HighFidelity,
		timeout:      cfg.Timeout,
		now:          time.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.timeout <= 0 {
		a.timeout = DefaultCaptureTimeout
	}
	if a.fast.ReadAttempts <= 0 {
		a.fast.ReadAttempts = 1
	}
	if a.highFidelity.ReadAttempts <= 0 {
		a.highFidelity.ReadAttempts = 1
	}
	return a
}

// Capture opens the binding's device, discards warm-up frames, reads one
// usable frame, rotates it and releases the device.
func (a *Acquirer) Capture(ctx context.Context, binding domain.CameraBinding) (*domain.Frame, error) {
	timing := a.fast
	if binding.PixelFormat == domain.PixelFormatYUYV {
		timing = a.highFidelity
	}

	logger := a.logger.With(
		slog.String("role", string(binding.Role)),
		slog.String("device", binding.DevicePath),
		slog.String("pixel_format", string(binding.PixelFormat)),
	)

	if a.formats != nil {
		if err := a.formats.SetFormat(ctx, binding.DevicePath, binding.Width, binding.Height, binding.PixelFormat); err != nil {
			// the open below reports whether the device is really unusable
			logger.Warn("Failed to set capture format", slog.String("error", err.Error()))
		}
	}

	if err := device.Wait(ctx, timing.SettleDelay); err != nil {
		return nil, a.fail(binding, err)
	}

	stream, err := a.source.Open(ctx, binding)
	if err != nil {
		return nil, a.fail(binding, err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warn("Failed to release capture device", slog.String("error", cerr.Error()))
		}
	}()

	for i := 0; i < timing.WarmupFrames; i++ {
		if _, err := stream.ReadFrame(ctx); err != nil {
			logger.Debug("Warm-up read failed", slog.Int("frame", i), slog.String("error", err.Error()))
		}
		if err := device.Wait(ctx, timing.WarmupDelay); err != nil {
			return nil, a.fail(binding, err)
		}
	}

	var (
		img     image.Image
		lastErr error
	)
	for attempt := 1; attempt <= timing.ReadAttempts; attempt++ {
		img, lastErr = stream.ReadFrame(ctx)
		if lastErr == nil && img != nil {
			break
		}
		if lastErr == nil {
			lastErr = domain.ErrNoFrame
		}
		img = nil
		logger.Warn("Frame read failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", timing.ReadAttempts),
			slog.String("error", lastErr.Error()),
		)
		if attempt < timing.ReadAttempts {
			if err := device.Wait(ctx, timing.RetryDelay); err != nil {
				return nil, a.fail(binding, err)
			}
		}
	}
	if img == nil {
		return nil, a.fail(binding, fmt.Errorf("%w after %d attempts: %v", domain.ErrNoFrame, timing.ReadAttempts, lastErr))
	}

	rotated, err := Rotate(img, binding.Rotation)
	if err != nil {
		return nil, a.fail(binding, err)
	}

	bounds := rotated.Bounds()
	logger.Info("Frame captured",
		slog.Int("width", bounds.Dx()),
		slog.Int("height", bounds.Dy()),
		slog.Int("rotation", binding.Rotation),
	)

	return &domain.Frame{
		Image:      rotated,
		Role:       binding.Role,
		DevicePath: binding.DevicePath,
		CapturedAt: a.now(),
	}, nil
}

// CaptureBoth captures the meter and NIC cameras concurrently under one
// ceiling timeout. A camera that fails or does not answer in time yields a
// nil frame; its sibling is never aborted because of it.
func (a *Acquirer) CaptureBoth(ctx context.Context, meter, nic domain.CameraBinding) *domain.FramePair {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make(chan roleFrame, 2)
	for _, b := range []domain.CameraBinding{meter, nic} {
		go func(binding domain.CameraBinding) {
			frame, err := a.Capture(ctx, binding)
			if err != nil {
				a.logger.Error("Camera capture failed",
					slog.String("role", string(binding.Role)),
					slog.String("device", binding.DevicePath),
					slog.String("error", err.Error()),
				)
			}
			results <- roleFrame{role: binding.Role, frame: frame}
		}(b)
	}

	return a.collect(ctx, results, 2)
}

// roleFrame is one camera's answer to a parallel capture
type roleFrame struct {
	role  domain.CameraRole
	frame *domain.Frame
}

// collect gathers up to want answers until ctx is done. Answers already
// queued when the deadline fires are still taken.
func (a *Acquirer) collect(ctx context.Context, results <-chan roleFrame, want int) *domain.FramePair {
	pair := &domain.FramePair{}
	take := func(r roleFrame) {
		switch r.role {
		case domain.RoleMeter:
			pair.Meter = r.frame
		case domain.RoleNIC:
			pair.NIC = r.frame
		}
	}

	for received := 0; received < want; received++ {
		select {
		case r := <-results:
			take(r)
			continue
		case <-ctx.Done():
		}

	drain:
		for ; received < want; received++ {
			select {
			case r := <-results:
				take(r)
			default:
				break drain
			}
		}
		if received < want {
			a.logger.Error("Parallel capture timed out",
				slog.Duration("timeout", a.timeout),
				slog.Bool("meter_received", pair.Meter != nil),
				slog.Bool("nic_received", pair.NIC != nil),
			)
		}
		return pair
	}

	return pair
}

func (a *Acquirer) fail(binding domain.CameraBinding, err error) error {
	return &domain.AcquisitionError{Role: binding.Role, Device: binding.DevicePath, Err: err}
}
