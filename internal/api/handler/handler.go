package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/cuongbtq/printcheck-station/internal/orchestrator"
)

// Request-scoped values the handler leaves for the access log
const (
	KeyCmdCode = "cmd_code"
	KeyJobID   = "job_id"
)

// Station is the job orchestrator as seen by the HTTP layer
type Station interface {
	Start(ctx context.Context, req domain.Request) (orchestrator.StartResult, error)
	Poll(ctx context.Context) orchestrator.PollResult
	State() domain.JobState
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Station     Station
	ServiceName string
}

// PrintcheckHandler handles the station command endpoint
type PrintcheckHandler struct {
	logger  *slog.Logger
	station Station
	service string
}

// NewPrintcheckHandler creates a new PrintcheckHandler instance
func NewPrintcheckHandler(deps *Dependencies) *PrintcheckHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := deps.ServiceName
	if service == "" {
		service = "printcheck-station"
	}
	return &PrintcheckHandler{
		logger:  logger,
		station: deps.Station,
		service: service,
	}
}
