package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Station settings keys. The file is a flat KEY=VALUE list maintained by the
// line engineers next to each station.
const (
	KeyYUYMode            = "YUY_MODE"
	KeyWidth              = "WIDTH"
	KeyHeight             = "HEIGHT"
	KeyMeterRotation      = "METER_ROTATION"
	KeyNICRotation        = "NIC_ROTATION"
	KeyDarkPixelRatio     = "DARK_PIXEL_RATIO"
	KeyDarkPixelThreshold = "DARK_PIXEL_THRESHOLD"
	KeyUSBHubLocation     = "USB_HUB_LOCATION"
	KeyUSBHubPorts        = "USB_HUB_PORTS"
	KeyMeterPhysicalID    = "METER_PHYSICAL_ID"
	KeyNICPhysicalID      = "NIC_PHYSICAL_ID"
	KeyRequireMeterQRSize = "REQUIRE_METER_QR_SIZE"
	KeyExposureAbsolute   = "EXPOSURE_ABSOLUTE"
)

// LoadStationSettings reads a flat station settings file
func LoadStationSettings(path string) (map[string]string, error) {
	settings, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read station settings: %w", err)
	}
	return settings, nil
}

// ApplyStationSettings overlays station settings on the configuration.
// Unknown keys are returned sorted and otherwise ignored; a malformed value
// is an error.
func (c *Config) ApplyStationSettings(settings map[string]string) (unknown []string, err error) {
	var errs []error
	fail := func(key string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}

	for key, raw := range settings {
		value := strings.TrimSpace(raw)
		switch key {
		case KeyYUYMode:
			if v, err := strconv.ParseBool(value); err != nil {
				fail(key, err)
			} else {
				c.Camera.HighFidelity = v
			}
		case KeyWidth:
			setInt(&c.Camera.Width, key, value, fail)
		case KeyHeight:
			setInt(&c.Camera.Height, key, value, fail)
		case KeyMeterRotation:
			setInt(&c.Camera.Meter.Rotation, key, value, fail)
		case KeyNICRotation:
			setInt(&c.Camera.NIC.Rotation, key, value, fail)
		case KeyDarkPixelRatio:
			if v, err := strconv.ParseFloat(value, 64); err != nil {
				fail(key, err)
			} else {
				c.Gate.MaxDarkRatio = v
			}
		case KeyDarkPixelThreshold:
			setInt(&c.Gate.DarkThreshold, key, value, fail)
		case KeyUSBHubLocation:
			c.USB.HubLocation = value
		case KeyUSBHubPorts:
			ports, err := parseIntList(value)
			if err != nil {
				fail(key, err)
			} else {
				c.USB.Ports = ports
			}
		case KeyMeterPhysicalID:
			c.Camera.Meter.PhysicalID = value
		case KeyNICPhysicalID:
			c.Camera.NIC.PhysicalID = value
		case KeyRequireMeterQRSize:
			if v, err := strconv.ParseBool(value); err != nil {
				fail(key, err)
			} else {
				c.Validation.RequireMeterQRSize = v
			}
		case KeyExposureAbsolute:
			setInt(&c.Recovery.Exposure, key, value, fail)
		default:
			unknown = append(unknown, key)
		}
	}

	sort.Strings(unknown)
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return unknown, fmt.Errorf("invalid station settings: %w", errors.Join(errs...))
	}
	return unknown, nil
}

func setInt(dst *int, key, value string, fail func(string, error)) {
	v, err := strconv.Atoi(value)
	if err != nil {
		fail(key, err)
		return
	}
	*dst = v
}

func parseIntList(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}
