package validation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultRequestTimeout bounds one inference call
const DefaultRequestTimeout = 30 * time.Second

// maxResponseBytes caps what is read back from the inference service
const maxResponseBytes = 1 << 20

var errNoImage = errors.New("no image to validate")

// Paths maps every stage to its endpoint below the base URL
type Paths struct {
	Logos    string `yaml:"logos"`
	Position string `yaml:"position"`
	QR       string `yaml:"qr"`
	OCR      string `yaml:"ocr"`
}

// DefaultPaths returns the standard inference endpoints
func DefaultPaths() Paths {
	return Paths{
		Logos:    "/v1/logos",
		Position: "/v1/position",
		QR:       "/v1/qr",
		OCR:      "/v1/ocr",
	}
}

// HTTPStagesConfig holds inference client configuration
type HTTPStagesConfig struct {
	Logger  *slog.Logger
	BaseURL string
	Paths   Paths
	Timeout time.Duration
	Client  *http.Client
}

// HTTPStages runs the vision stages on an inference service over HTTP.
// Frames are sent as base64 PNG inside a JSON body.
type HTTPStages struct {
	logger      *slog.Logger
	client      *http.Client
	baseURL     string
	paths       Paths
	checkSchema *jsonschema.Schema
	qrSchema    *jsonschema.Schema
}

type stageRequest struct {
	RequestID   string `json:"request_id"`
	Image       string `json:"image_png"`
	ArtworkPath string `json:"artwork_path,omitempty"`
	CheckLimits bool   `json:"check_limits,omitempty"`
}

// NewHTTPStages creates a new HTTPStages
func NewHTTPStages(cfg *HTTPStagesConfig) (*HTTPStages, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("inference base url is required")
	}

	checkSchema, err := compileSchema("check.json", checkSchemaJSON)
	if err != nil {
		return nil, err
	}
	qrSchema, err := compileSchema("qr.json", qrSchemaJSON)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	paths := cfg.Paths
	defaults := DefaultPaths()
	if paths.Logos == "" {
		paths.Logos = defaults.Logos
	}
	if paths.Position == "" {
		paths.Position = defaults.Position
	}
	if paths.QR == "" {
		paths.QR = defaults.QR
	}
	if paths.OCR == "" {
		paths.OCR = defaults.OCR
	}

	return &HTTPStages{
		logger:      logger,
		client:      client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		paths:       paths,
		checkSchema: checkSchema,
		qrSchema:    qrSchema,
	}, nil
}

// Logos checks logo presence and count against the ideal artwork
func (s *HTTPStages) Logos(ctx context.Context, img image.Image, artworkPath string) (CheckResult, error) {
	var res CheckResult
	err := s.call(ctx, s.paths.Logos, img, stageRequest{ArtworkPath: artworkPath}, s.checkSchema, &res)
	return res, err
}

// Position checks logo placement against the ideal artwork
func (s *HTTPStages) Position(ctx context.Context, img image.Image, artworkPath string) (CheckResult, error) {
	var res CheckResult
	err := s.call(ctx, s.paths.Position, img, stageRequest{ArtworkPath: artworkPath}, s.checkSchema, &res)
	return res, err
}

// QR decodes the QR codes of an image, optionally checking their bounds
func (s *HTTPStages) QR(ctx context.Context, img image.Image, checkLimits bool) (QRResult, error) {
	var res QRResult
	err := s.call(ctx, s.paths.QR, img, stageRequest{CheckLimits: checkLimits}, s.qrSchema, &res)
	return res, err
}

// OCR reads the meter label and checks its text boundaries
func (s *HTTPStages) OCR(ctx context.Context, img image.Image) (CheckResult, error) {
	var res CheckResult
	err := s.call(ctx, s.paths.OCR, img, stageRequest{}, s.checkSchema, &res)
	return res, err
}

func (s *HTTPStages) call(ctx context.Context, path string, img image.Image, body stageRequest, schema *jsonschema.Schema, out any) error {
	if img == nil {
		return errNoImage
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	body.RequestID = uuid.New().String()
	body.Image = base64.StdEncoding.EncodeToString(buf.Bytes())

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", body.RequestID)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("Inference request failed",
			slog.String("req_id", body.RequestID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("send request: %w", err)
	}
	defer func(b io.ReadCloser) {
		if err := b.Close(); err != nil {
			s.logger.Warn("Failed to close inference response body", slog.String("error", err.Error()))
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	s.logger.Debug("Inference response",
		slog.String("req_id", body.RequestID),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	return decodeValidated(schema, raw, out)
}
