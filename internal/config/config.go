package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete station configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	App        AppConfig        `yaml:"app"`
	Worker     WorkerConfig     `yaml:"worker"`
	Camera     CameraConfig     `yaml:"camera"`
	USB        USBConfig        `yaml:"usb"`
	Gate       GateConfig       `yaml:"gate"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Validation ValidationConfig `yaml:"validation"`
	Inference  InferenceConfig  `yaml:"inference"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds validation worker pool configuration
type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	QueueSize   int           `yaml:"queue_size"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

// CameraConfig holds capture settings shared by both cameras
type CameraConfig struct {
	HighFidelity   bool          `yaml:"high_fidelity"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	DevicePattern  string        `yaml:"device_pattern"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	Meter          CameraRole    `yaml:"meter"`
	NIC            CameraRole    `yaml:"nic"`
}

// CameraRole holds the settings of one camera position
type CameraRole struct {
	PhysicalID     string `yaml:"physical_id"`
	Rotation       int    `yaml:"rotation"`
	FallbackDevice string `yaml:"fallback_device"`
}

// USBConfig holds hub power control settings
type USBConfig struct {
	HubLocation   string        `yaml:"hub_location"`
	Ports         []int         `yaml:"ports"`
	PowerOffDelay time.Duration `yaml:"power_off_delay"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
}

// GateConfig holds the blank-frame thresholds
type GateConfig struct {
	MaxDarkRatio  float64 `yaml:"max_dark_ratio"`
	DarkThreshold int     `yaml:"dark_threshold"`
}

// RecoveryConfig holds the driver reload settings
type RecoveryConfig struct {
	DriverModule string        `yaml:"driver_module"`
	UnloadDelay  time.Duration `yaml:"unload_delay"`
	ReloadDelay  time.Duration `yaml:"reload_delay"`
	Exposure     int           `yaml:"exposure"`
}

// ValidationConfig holds dispatcher settings
type ValidationConfig struct {
	Parallel           bool          `yaml:"parallel"`
	RequireMeterQRSize bool          `yaml:"require_meter_qr_size"`
	StageTimeout       time.Duration `yaml:"stage_timeout"`
}

// InferenceConfig holds the vision service endpoint
type InferenceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Paths   PathsConfig   `yaml:"paths"`
}

// PathsConfig maps every vision stage to its endpoint
type PathsConfig struct {
	Logos    string `yaml:"logos"`
	Position string `yaml:"position"`
	QR       string `yaml:"qr"`
	OCR      string `yaml:"ocr"`
}

// NotifyConfig holds result publishing settings
type NotifyConfig struct {
	Enabled        bool           `yaml:"enabled"`
	PublishTimeout time.Duration  `yaml:"publish_timeout"`
	RabbitMQ       RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds the optional result queue
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Default returns the configuration of a stock station. Values read from a
// file override it field by field.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5001,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "printcheck-station",
			Environment: "development",
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			JobTimeout:  2 * time.Minute,
		},
		Camera: CameraConfig{
			HighFidelity:   true,
			Width:          3264,
			Height:         2448,
			DevicePattern:  "/dev/video*",
			FFmpegPath:     "ffmpeg",
			CaptureTimeout: 15 * time.Second,
			Meter:          CameraRole{FallbackDevice: "/dev/video0"},
			NIC:            CameraRole{FallbackDevice: "/dev/video2"},
		},
		USB: USBConfig{
			HubLocation:   "1-1",
			Ports:         []int{1, 2},
			PowerOffDelay: 2 * time.Second,
			SettleDelay:   2 * time.Second,
		},
		Gate: GateConfig{
			MaxDarkRatio:  0.99,
			DarkThreshold: 10,
		},
		Recovery: RecoveryConfig{
			DriverModule: "uvcvideo",
			UnloadDelay:  time.Second,
			ReloadDelay:  2 * time.Second,
			Exposure:     500,
		},
		Validation: ValidationConfig{
			Parallel: true,
		},
		Inference: InferenceConfig{
			Timeout: 30 * time.Second,
		},
		Notify: NotifyConfig{
			PublishTimeout: 10 * time.Second,
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort))
	}

	if c.Worker.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("worker concurrency must be greater than 0"))
	}
	if c.Worker.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("worker job_timeout must be greater than 0"))
	}

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.CaptureTimeout <= 0 {
		errs = append(errs, fmt.Errorf("camera capture_timeout must be greater than 0"))
	}
	for role, cam := range map[string]CameraRole{"meter": c.Camera.Meter, "nic": c.Camera.NIC} {
		if !validRotation(cam.Rotation) {
			errs = append(errs, fmt.Errorf("invalid %s rotation: %d (must be 0, 90, 180 or 270)", role, cam.Rotation))
		}
		if cam.FallbackDevice == "" {
			errs = append(errs, fmt.Errorf("%s fallback_device is required", role))
		}
	}

	if c.USB.HubLocation == "" {
		errs = append(errs, fmt.Errorf("usb hub_location is required"))
	}
	if len(c.USB.Ports) == 0 {
		errs = append(errs, fmt.Errorf("usb ports must not be empty"))
	}
	for _, p := range c.USB.Ports {
		if p <= 0 {
			errs = append(errs, fmt.Errorf("invalid usb port: %d", p))
		}
	}

	if c.Gate.MaxDarkRatio <= 0 || c.Gate.MaxDarkRatio > 1 {
		errs = append(errs, fmt.Errorf("invalid gate max_dark_ratio: %g (must be in (0, 1])", c.Gate.MaxDarkRatio))
	}
	if c.Gate.DarkThreshold < 0 || c.Gate.DarkThreshold > 255 {
		errs = append(errs, fmt.Errorf("invalid gate dark_threshold: %d (must be between 0 and 255)", c.Gate.DarkThreshold))
	}

	if c.Recovery.DriverModule == "" {
		errs = append(errs, fmt.Errorf("recovery driver_module is required"))
	}
	if c.Recovery.Exposure <= 0 {
		errs = append(errs, fmt.Errorf("recovery exposure must be greater than 0"))
	}

	if c.Inference.BaseURL == "" {
		errs = append(errs, fmt.Errorf("inference base_url is required"))
	}

	if c.Notify.Enabled {
		mq := c.Notify.RabbitMQ
		if mq.Host == "" {
			errs = append(errs, fmt.Errorf("rabbitmq host is required"))
		}
		if mq.Port < MinPort || mq.Port > MaxPort {
			errs = append(errs, fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", mq.Port, MinPort, MaxPort))
		}
		if mq.Exchange.Name == "" {
			errs = append(errs, fmt.Errorf("rabbitmq exchange name is required"))
		}
	}

	return errors.Join(errs...)
}

func validRotation(deg int) bool {
	switch deg {
	case 0, 90, 180, 270:
		return true
	default:
		return false
	}
}
