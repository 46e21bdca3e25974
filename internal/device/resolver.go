package device

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultMeterDevice is used when the meter camera's physical ID is not enumerated
	DefaultMeterDevice = "/dev/video0"
	// DefaultNICDevice is used when the NIC camera's physical ID is not enumerated
	DefaultNICDevice = "/dev/video2"

	defaultPattern = "/dev/video*"
	idPathKey      = "ID_PATH="
)

var deviceNumberRe = regexp.MustCompile(`video(\d+)$`)

// Ports is the outcome of one resolution pass
type Ports struct {
	Meter         string
	NIC           string
	MeterFallback bool
	NICFallback   bool
}

// ResolverConfig holds resolver configuration
type ResolverConfig struct {
	Logger          *slog.Logger
	Runner          Runner
	Pattern         string
	MeterPhysicalID string
	NICPhysicalID   string
	MeterFallback   string
	NICFallback     string

	// Glob enumerates device nodes; filepath.Glob when nil
	Glob func(pattern string) ([]string, error)
}

// Resolver maps stable USB topology identifiers to the current /dev/video node
type Resolver struct {
	logger          *slog.Logger
	runner          Runner
	pattern         string
	meterPhysicalID string
	nicPhysicalID   string
	meterFallback   string
	nicFallback     string
	glob            func(string) ([]string, error)
}

// NewResolver creates a new Resolver
func NewResolver(cfg *ResolverConfig) *Resolver {
	r := &Resolver{
		logger:          cfg.Logger,
		runner:          cfg.Runner,
		pattern:         cfg.Pattern,
		meterPhysicalID: cfg.MeterPhysicalID,
		nicPhysicalID:   cfg.NICPhysicalID,
		meterFallback:   cfg.MeterFallback,
		nicFallback:     cfg.NICFallback,
		glob:            cfg.Glob,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.pattern == "" {
		r.pattern = defaultPattern
	}
	if r.meterFallback == "" {
		r.meterFallback = DefaultMeterDevice
	}
	if r.nicFallback == "" {
		r.nicFallback = DefaultNICDevice
	}
	if r.glob == nil {
		r.glob = filepath.Glob
	}
	return r
}

// Resolve enumerates the video nodes and looks up both configured physical IDs.
// It never fails: an ID that cannot be found resolves to its fallback node.
// Nothing is cached because recovery can change enumeration order.
func (r *Resolver) Resolve(ctx context.Context) Ports {
	byPhysicalID := r.scan(ctx)

	ports := Ports{}
	if dev, ok := byPhysicalID[r.meterPhysicalID]; ok && r.meterPhysicalID != "" {
		ports.Meter = dev
	} else {
		ports.Meter = r.meterFallback
		ports.MeterFallback = true
	}

	if dev, ok := byPhysicalID[r.nicPhysicalID]; ok && r.nicPhysicalID != "" {
		ports.NIC = dev
	} else {
		ports.NIC = r.nicFallback
		ports.NICFallback = true
	}

	if ports.MeterFallback || ports.NICFallback {
		r.logger.Warn("Camera physical ID not found, using fallback device",
			slog.String("meter_device", ports.Meter),
			slog.Bool("meter_fallback", ports.MeterFallback),
			slog.String("nic_device", ports.NIC),
			slog.Bool("nic_fallback", ports.NICFallback),
		)
	} else {
		r.logger.Info("Camera ports resolved",
			slog.String("meter_device", ports.Meter),
			slog.String("nic_device", ports.NIC),
		)
	}

	return ports
}

// scan builds the reverse map physical ID -> lowest-numbered device node
func (r *Resolver) scan(ctx context.Context) map[string]string {
	result := make(map[string]string)

	nodes, err := r.glob(r.pattern)
	if err != nil {
		r.logger.Error("Failed to enumerate video devices",
			slog.String("pattern", r.pattern),
			slog.String("error", err.Error()),
		)
		return result
	}

	sort.Slice(nodes, func(i, j int) bool {
		return deviceNumber(nodes[i]) < deviceNumber(nodes[j])
	})

	for _, node := range nodes {
		if ctx.Err() != nil {
			return result
		}

		idPath, err := r.physicalID(ctx, node)
		if err != nil {
			r.logger.Debug("Skipping device without topology path",
				slog.String("device", node),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, seen := result[idPath]; !seen {
			result[idPath] = node
		}
	}

	return result
}

// physicalID queries udev for the node's ID_PATH property
func (r *Resolver) physicalID(ctx context.Context, node string) (string, error) {
	stdout, _, err := r.runner.Run(ctx, "udevadm", "info", "--query=property", "--name="+node)
	if err != nil {
		return "", err
	}

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, idPathKey) {
			if v := strings.TrimPrefix(line, idPathKey); v != "" {
				return v, nil
			}
		}
	}
	return "", errNoIDPath
}

// deviceNumber extracts N from /dev/videoN
func deviceNumber(device string) int {
	m := deviceNumberRe.FindStringSubmatch(device)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
