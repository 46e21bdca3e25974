package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/device"
	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// DefaultExposure is the absolute exposure applied after a driver reload in
// high-fidelity mode
const DefaultExposure = 500

// PowerCycler toggles power on the camera hub ports
type PowerCycler interface {
	PowerCycle(ctx context.Context) error
}

// DriverReloader unloads and reloads the camera kernel driver
type DriverReloader interface {
	Reload(ctx context.Context) error
}

// PortResolver maps the camera roles to their current device nodes
type PortResolver interface {
	Resolve(ctx context.Context) device.Ports
}

// ExposureConfigurer pins a device's exposure
type ExposureConfigurer interface {
	ConfigureExposure(ctx context.Context, device string, exposure int) error
}

// PairCapturer grabs one frame per camera concurrently
type PairCapturer interface {
	CaptureBoth(ctx context.Context, meter, nic domain.CameraBinding) *domain.FramePair
}

// FrameGate decides whether captured frames are fit for validation
type FrameGate interface {
	IsUsable(frame *domain.Frame) bool
}

// Camera is the static part of a camera binding
type Camera struct {
	PhysicalID string
	Rotation   int
}

// Config holds recovery controller configuration
type Config struct {
	Logger   *slog.Logger
	Hub      PowerCycler
	Driver   DriverReloader
	Resolver PortResolver
	Exposure ExposureConfigurer
	Capturer PairCapturer
	Gate     FrameGate

	Meter        Camera
	NIC          Camera
	Width        int
	Height       int
	HighFidelity bool

	// ExposureValue is only applied in high-fidelity mode
	ExposureValue int
}

// Controller runs one acquisition phase: power-cycle, capture, and a single
// driver-reload recapture when the first frames are unusable.
type Controller struct {
	logger       *slog.Logger
	hub          PowerCycler
	driver       DriverReloader
	resolver     PortResolver
	exposure     ExposureConfigurer
	capturer     PairCapturer
	gate         FrameGate
	meter        Camera
	nic          Camera
	width        int
	height       int
	format       domain.PixelFormat
	exposureVal  int
	highFidelity bool
}

// NewController creates a new Controller
func NewController(cfg *Config) *Controller {
	c := &Controller{
		logger:       cfg.Logger,
		hub:          cfg.Hub,
		driver:       cfg.Driver,
		resolver:     cfg.Resolver,
		exposure:     cfg.Exposure,
		capturer:     cfg.Capturer,
		gate:         cfg.Gate,
		meter:        cfg.Meter,
		nic:          cfg.NIC,
		width:        cfg.Width,
		height:       cfg.Height,
		format:       domain.PixelFormatMJPEG,
		exposureVal:  cfg.ExposureValue,
		highFidelity: cfg.HighFidelity,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if cfg.HighFidelity {
		c.format = domain.PixelFormatYUYV
	}
	if c.exposureVal <= 0 {
		c.exposureVal = DefaultExposure
	}
	return c
}

// Acquire returns a usable frame pair or a terminal *domain.AcquisitionError.
// Hardware command failures along the way are logged and never abort the ladder.
func (c *Controller) Acquire(ctx context.Context) (*domain.FramePair, error) {
	start := time.Now()

	if err := c.hub.PowerCycle(ctx); err != nil {
		c.logger.Warn("USB power-cycle failed, capturing anyway", slog.String("error", err.Error()))
	}

	pair := c.capture(ctx, domain.TierPowerCycle)
	if c.usable(pair) {
		return c.done(pair, domain.TierPowerCycle, start), nil
	}

	c.logger.Warn("Frames unusable after power-cycle, reloading camera driver",
		slog.Bool("meter_ok", c.gate.IsUsable(pair.Meter)),
		slog.Bool("nic_ok", c.gate.IsUsable(pair.NIC)),
	)

	if c.driver != nil {
		if err := c.driver.Reload(ctx); err != nil {
			c.logger.Warn("Driver reload failed, continuing", slog.String("error", err.Error()))
		}
	}

	pair = c.capture(ctx, domain.TierDriverReload)
	if c.usable(pair) {
		return c.done(pair, domain.TierDriverReload, start), nil
	}

	meterOK, nicOK := c.gate.IsUsable(pair.Meter), c.gate.IsUsable(pair.NIC)
	c.logger.Error("Frames still unusable after driver reload",
		slog.Bool("meter_ok", meterOK),
		slog.Bool("nic_ok", nicOK),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil, &domain.AcquisitionError{
		Terminal: true,
		Err:      fmt.Errorf("%w (meter usable=%t, nic usable=%t)", domain.ErrUnusableFrames, meterOK, nicOK),
	}
}

// capture resolves the ports afresh and grabs both cameras. After a driver
// reload in high-fidelity mode the exposure is pinned first.
func (c *Controller) capture(ctx context.Context, tier domain.RecoveryTier) *domain.FramePair {
	ports := c.resolver.Resolve(ctx)
	meter := c.binding(domain.RoleMeter, c.meter, ports.Meter)
	nic := c.binding(domain.RoleNIC, c.nic, ports.NIC)

	if tier == domain.TierDriverReload && c.highFidelity && c.exposure != nil {
		for _, b := range []domain.CameraBinding{meter, nic} {
			if err := c.exposure.ConfigureExposure(ctx, b.DevicePath, c.exposureVal); err != nil {
				c.logger.Warn("Failed to configure exposure",
					slog.String("role", string(b.Role)),
					slog.String("device", b.DevicePath),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	c.logger.Info("Capturing frame pair",
		slog.String("tier", tier.String()),
		slog.String("meter_device", meter.DevicePath),
		slog.String("nic_device", nic.DevicePath),
		slog.Bool("meter_fallback", ports.MeterFallback),
		slog.Bool("nic_fallback", ports.NICFallback),
	)

	pair := c.capturer.CaptureBoth(ctx, meter, nic)
	if pair == nil {
		pair = &domain.FramePair{}
	}
	return pair
}

func (c *Controller) binding(role domain.CameraRole, cam Camera, devicePath string) domain.CameraBinding {
	return domain.CameraBinding{
		Role:        role,
		PhysicalID:  cam.PhysicalID,
		DevicePath:  devicePath,
		Rotation:    cam.Rotation,
		PixelFormat: c.format,
		Width:       c.width,
		Height:      c.height,
	}
}

func (c *Controller) usable(pair *domain.FramePair) bool {
	return c.gate.IsUsable(pair.Meter) && c.gate.IsUsable(pair.NIC)
}

func (c *Controller) done(pair *domain.FramePair, tier domain.RecoveryTier, start time.Time) *domain.FramePair {
	pair.Tier = tier
	c.logger.Info("Acquisition succeeded",
		slog.String("tier", tier.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return pair
}
