package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/domain"
)

// ResultEvent is published once per finished job
type ResultEvent struct {
	JobID          string    `json:"job_id"`
	Success        bool      `json:"success"`
	Captured       bool      `json:"captured"`
	NICLogos       bool      `json:"niclogos"`
	NICPositions   bool      `json:"nic_positions"`
	NICQR          bool      `json:"nic_qr"`
	MeterQR        bool      `json:"meter_qr"`
	MeterOCR       bool      `json:"meter_ocr"`
	TemplatePassed bool      `json:"template_passed"`
	Reason         string    `json:"reason,omitempty"`
	NICQRCodes     []string  `json:"nic_qr_codes,omitempty"`
	MeterQRCodes   []string  `json:"meter_qr_codes,omitempty"`
	RetryUsed      bool      `json:"retry_used"`
	ArtworkPath    string    `json:"ideal_artwork_path,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// NewResultEvent flattens a verdict into an event
func NewResultEvent(jobID string, v domain.Verdict, retryUsed bool, artwork string, startedAt, finishedAt time.Time) ResultEvent {
	return ResultEvent{
		JobID:          jobID,
		Success:        v.Success,
		Captured:       v.Reason != domain.ReasonHardwareFailure,
		NICLogos:       v.Stages.Logos,
		NICPositions:   v.Stages.Position,
		NICQR:          v.Stages.NICQR,
		MeterQR:        v.Stages.MeterQR,
		MeterOCR:       v.Stages.OCR,
		TemplatePassed: v.TemplatePassed,
		Reason:         v.Reason,
		NICQRCodes:     v.NICQRCodes,
		MeterQRCodes:   v.MeterQRCodes,
		RetryUsed:      retryUsed,
		ArtworkPath:    artwork,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
	}
}

// Publisher delivers finished job results to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, event ResultEvent) error
	Close() error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ResultEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }

// Broker is the message client events are sent through
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
	Close() error
}

// AMQPPublisher publishes results as JSON through a broker client
type AMQPPublisher struct {
	logger *slog.Logger
	broker Broker
}

// NewAMQPPublisher creates a new AMQPPublisher
func NewAMQPPublisher(broker Broker, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{logger: logger, broker: broker}
}

// Publish marshals and sends one event
func (p *AMQPPublisher) Publish(ctx context.Context, event ResultEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}
	if err := p.broker.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("publish result event %s: %w", event.JobID, err)
	}
	p.logger.Info("Result event published",
		slog.String("job_id", event.JobID),
		slog.Bool("success", event.Success),
	)
	return nil
}

// Close releases the broker connection
func (p *AMQPPublisher) Close() error {
	return p.broker.Close()
}
