package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// Controls applies V4L2 settings to a device node through v4l2-ctl
type Controls struct {
	runner Runner
}

// NewControls creates a new Controls
func NewControls(runner Runner) *Controls {
	return &Controls{runner: runner}
}

// SetFormat configures resolution and pixel format before the device is opened
func (c *Controls) SetFormat(ctx context.Context, device string, width, height int, format domain.PixelFormat) error {
	arg := fmt.Sprintf("--set-fmt-video=width=%d,height=%d,pixelformat=%s", width, height, format)
	if _, stderr, err := c.runner.Run(ctx, "v4l2-ctl", "-d", device, arg); err != nil {
		return fmt.Errorf("set format on %s: %w: %s", device, err, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// ConfigureExposure switches the device to manual exposure with an absolute value
func (c *Controls) ConfigureExposure(ctx context.Context, device string, exposure int) error {
	_, stderr, err := c.runner.Run(ctx, "v4l2-ctl", "-d", device,
		"--set-ctrl=auto_exposure=1",
		fmt.Sprintf("--set-ctrl=exposure_time_absolute=%d", exposure),
	)
	if err != nil {
		return &domain.HardwareRecoveryError{
			Step: "configure_exposure",
			Err:  fmt.Errorf("%s: %w: %s", device, err, strings.TrimSpace(string(stderr))),
		}
	}
	return nil
}
