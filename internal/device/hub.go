package device

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// HubConfig holds USB hub power control configuration
type HubConfig struct {
	Logger        *slog.Logger
	Runner        Runner
	Location      string
	Ports         []int
	PowerOffDelay time.Duration
	SettleDelay   time.Duration
}

// Hub power-cycles the hub ports feeding the cameras through uhubctl
type Hub struct {
	logger        *slog.Logger
	runner        Runner
	location      string
	ports         string
	powerOffDelay time.Duration
	settleDelay   time.Duration
}

// NewHub creates a new Hub
func NewHub(cfg *HubConfig) *Hub {
	ports := make([]string, len(cfg.Ports))
	for i, p := range cfg.Ports {
		ports[i] = strconv.Itoa(p)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger:        logger,
		runner:        cfg.Runner,
		location:      cfg.Location,
		ports:         strings.Join(ports, ","),
		powerOffDelay: cfg.PowerOffDelay,
		settleDelay:   cfg.SettleDelay,
	}
}

// PowerCycle turns the camera ports off, waits, turns them back on and waits
// for the devices to enumerate again.
func (h *Hub) PowerCycle(ctx context.Context) error {
	h.logger.Info("Power-cycling USB hub ports",
		slog.String("location", h.location),
		slog.String("ports", h.ports),
	)

	if err := h.setPower(ctx, "off"); err != nil {
		return err
	}
	if err := Wait(ctx, h.powerOffDelay); err != nil {
		return &domain.HardwareRecoveryError{Step: "usb_power_cycle", Err: err}
	}
	if err := h.setPower(ctx, "on"); err != nil {
		return err
	}
	if err := Wait(ctx, h.settleDelay); err != nil {
		return &domain.HardwareRecoveryError{Step: "usb_power_cycle", Err: err}
	}

	h.logger.Info("USB hub ports powered on")
	return nil
}

func (h *Hub) setPower(ctx context.Context, action string) error {
	_, stderr, err := h.runner.Run(ctx, "uhubctl", "-l", h.location, "-p", h.ports, "-a", action)
	if err != nil {
		return &domain.HardwareRecoveryError{
			Step: "usb_power_" + action,
			Err:  fmt.Errorf("%w: %s", err, strings.TrimSpace(string(stderr))),
		}
	}
	return nil
}
