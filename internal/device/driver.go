package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/domain"
)

const defaultDriverModule = "uvcvideo"

// DriverConfig holds kernel driver reload configuration
type DriverConfig struct {
	Logger      *slog.Logger
	Runner      Runner
	Module      string
	UnloadDelay time.Duration
	ReloadDelay time.Duration
}

// Driver reloads the camera kernel module
type Driver struct {
	logger      *slog.Logger
	runner      Runner
	module      string
	unloadDelay time.Duration
	reloadDelay time.Duration
}

// NewDriver creates a new Driver
func NewDriver(cfg *DriverConfig) *Driver {
	d := &Driver{
		logger:      cfg.Logger,
		runner:      cfg.Runner,
		module:      cfg.Module,
		unloadDelay: cfg.UnloadDelay,
		reloadDelay: cfg.ReloadDelay,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.module == "" {
		d.module = defaultDriverModule
	}
	return d
}

// Reload unloads the module, waits, loads it again and waits for the
// devices to come back.
func (d *Driver) Reload(ctx context.Context) error {
	d.logger.Warn("Reloading camera kernel driver", slog.String("module", d.module))

	if _, stderr, err := d.runner.Run(ctx, "modprobe", "-r", d.module); err != nil {
		return &domain.HardwareRecoveryError{
			Step: "driver_unload",
			Err:  fmt.Errorf("%w: %s", err, strings.TrimSpace(string(stderr))),
		}
	}
	if err := Wait(ctx, d.unloadDelay); err != nil {
		return &domain.HardwareRecoveryError{Step: "driver_unload", Err: err}
	}

	if _, stderr, err := d.runner.Run(ctx, "modprobe", d.module); err != nil {
		return &domain.HardwareRecoveryError{
			Step: "driver_load",
			Err:  fmt.Errorf("%w: %s", err, strings.TrimSpace(string(stderr))),
		}
	}
	if err := Wait(ctx, d.reloadDelay); err != nil {
		return &domain.HardwareRecoveryError{Step: "driver_load", Err: err}
	}

	d.logger.Info("Camera kernel driver reloaded", slog.String("module", d.module))
	return nil
}
