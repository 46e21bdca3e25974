package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/cuongbtq/printcheck-station/internal/notify"
	"github.com/cuongbtq/printcheck-station/internal/worker"
	"github.com/google/uuid"
)

// DefaultPublishTimeout bounds delivery of one result event
const DefaultPublishTimeout = 10 * time.Second

// Acquirer runs one full acquisition phase including hardware recovery
type Acquirer interface {
	Acquire(ctx context.Context) (*domain.FramePair, error)
}

// Validator reduces a frame pair to a verdict
type Validator interface {
	Validate(ctx context.Context, meter, nic *domain.Frame, req domain.Request) domain.Verdict
}

// Submitter schedules background work
type Submitter interface {
	Submit(task worker.Task) error
}

// Config holds orchestrator configuration
type Config struct {
	Logger         *slog.Logger
	Acquirer       Acquirer
	Validator      Validator
	Pool           Submitter
	Publisher      notify.Publisher
	PublishTimeout time.Duration
}

// JobHandle is the station's single inspection job
type JobHandle struct {
	ID         string
	State      domain.JobState
	Request    domain.Request
	RetryUsed  bool
	Tier       domain.RecoveryTier
	StartedAt  time.Time
	FinishedAt time.Time

	// verdict is the outcome of the latest finished validation attempt and
	// nil while that attempt is still running
	verdict   *domain.Verdict
	published bool
}

// StartResult is the answer to a start command
type StartResult struct {
	Captured bool
	JobID    string
}

// PollResult is the answer to a poll command
type PollResult struct {
	Status   string
	JobID    string
	Retrying bool

	// Verdict is set only on terminal results
	Verdict *domain.Verdict
}

// Orchestrator drives start and poll through the job state machine. The
// state mutex guards the JobHandle; the hardware mutex serializes
// acquisitions and is never held together with the state mutex.
type Orchestrator struct {
	logger         *slog.Logger
	acquirer       Acquirer
	validator      Validator
	pool           Submitter
	publisher      notify.Publisher
	publishTimeout time.Duration
	now            func() time.Time
	newID          func() string

	mu       sync.Mutex
	hwMu     sync.Mutex
	handle   *JobHandle
	inflight sync.WaitGroup
}

// New creates a new Orchestrator
func New(cfg *Config) *Orchestrator {
	o := &Orchestrator{
		logger:         cfg.Logger,
		acquirer:       cfg.Acquirer,
		validator:      cfg.Validator,
		pool:           cfg.Pool,
		publisher:      cfg.Publisher,
		publishTimeout: cfg.PublishTimeout,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.publisher == nil {
		o.publisher = notify.NoopPublisher{}
	}
	if o.publishTimeout <= 0 {
		o.publishTimeout = DefaultPublishTimeout
	}
	return o
}

// Start acquires a fresh frame pair and hands it to a background validation.
// It blocks for the whole acquisition. A start while a job is in flight is
// rejected with domain.ErrJobInFlight; a finished job is discarded.
func (o *Orchestrator) Start(ctx context.Context, req domain.Request) (StartResult, error) {
	o.mu.Lock()
	if o.handle != nil && o.handle.State.InFlight() {
		state := o.handle.State
		o.mu.Unlock()
		o.logger.Warn("Start rejected, job in flight", slog.String("state", string(state)))
		return StartResult{}, domain.ErrJobInFlight
	}
	h := &JobHandle{
		ID:        o.newID(),
		State:     domain.JobStateCapturing,
		Request:   req,
		StartedAt: o.now(),
	}
	o.handle = h
	o.mu.Unlock()

	logger := o.logger.With(slog.String("job_id", h.ID))
	logger.Info("Job started", slog.String("ideal_artwork_path", req.IdealArtworkPath))

	pair, err := o.acquire(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		logger.Error("Acquisition failed, no job created", slog.String("error", err.Error()))
		o.handle = nil
		return StartResult{Captured: false}, nil
	}

	h.Tier = pair.Tier
	h.State = domain.JobStateValidating
	o.dispatch(h, pair, false)
	return StartResult{Captured: true, JobID: h.ID}, nil
}

// Poll reports the job's progress. The first time it finds a failed initial
// verdict it re-acquires fresh frames inline and schedules the single retry.
func (o *Orchestrator) Poll(ctx context.Context) PollResult {
	o.mu.Lock()
	h := o.handle
	if h == nil {
		o.mu.Unlock()
		return PollResult{Status: domain.PollStatusNoJob}
	}

	switch h.State {
	case domain.JobStateDone:
		res := terminal(h)
		o.mu.Unlock()
		return res

	case domain.JobStateValidating:
		if h.verdict == nil {
			o.mu.Unlock()
			return PollResult{Status: domain.PollStatusInProgress, JobID: h.ID}
		}
		// initial attempt failed; claim the retry before releasing the lock
		h.RetryUsed = true
		h.State = domain.JobStateRetryCapturing
		h.verdict = nil
		o.mu.Unlock()
		return o.retry(ctx, h)

	case domain.JobStateRetryCapturing, domain.JobStateRetryValidating:
		o.mu.Unlock()
		return PollResult{Status: domain.PollStatusInProgress, JobID: h.ID, Retrying: true}

	default:
		o.mu.Unlock()
		return PollResult{Status: domain.PollStatusInProgress, JobID: h.ID}
	}
}

// State returns the current job state, IDLE when there is no job
func (o *Orchestrator) State() domain.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle == nil {
		return domain.JobStateIdle
	}
	return o.handle.State
}

// Wait blocks until every pending result event has been handed to the publisher
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

func (o *Orchestrator) retry(ctx context.Context, h *JobHandle) PollResult {
	logger := o.logger.With(slog.String("job_id", h.ID))
	logger.Info("Initial validation failed, retrying with fresh frames")

	pair, err := o.acquire(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		logger.Error("Retry acquisition failed", slog.String("error", err.Error()))
		o.finish(h, domain.HardwareFailure())
		return terminal(h)
	}

	h.Tier = pair.Tier
	h.State = domain.JobStateRetryValidating
	o.dispatch(h, pair, true)

	if h.State == domain.JobStateDone {
		return terminal(h)
	}
	return PollResult{Status: domain.PollStatusInProgress, JobID: h.ID, Retrying: true}
}

// acquire runs the acquisition ladder detached from the caller's
// cancellation; only one acquisition touches the hardware at a time.
func (o *Orchestrator) acquire(ctx context.Context) (*domain.FramePair, error) {
	o.hwMu.Lock()
	defer o.hwMu.Unlock()
	return o.acquirer.Acquire(context.WithoutCancel(ctx))
}

// dispatch schedules validation of pair. Must be called with o.mu held.
func (o *Orchestrator) dispatch(h *JobHandle, pair *domain.FramePair, isRetry bool) {
	req := h.Request
	task := worker.Task{
		ID: h.ID,
		Run: func(ctx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("Validation panicked",
						slog.String("job_id", h.ID),
						slog.Any("panic", r),
					)
					o.complete(h, isRetry, domain.InferenceFailure(fmt.Errorf("panic: %v", r)))
				}
			}()
			v := o.validator.Validate(ctx, pair.Meter, pair.NIC, req)
			o.complete(h, isRetry, v)
		},
	}

	if err := o.pool.Submit(task); err != nil {
		o.logger.Error("Failed to schedule validation",
			slog.String("job_id", h.ID),
			slog.Bool("retry", isRetry),
			slog.String("error", err.Error()),
		)
		o.record(h, isRetry, domain.InferenceFailure(fmt.Errorf("schedule validation: %w", err)))
	}
}

// complete records a finished validation attempt
func (o *Orchestrator) complete(h *JobHandle, isRetry bool, v domain.Verdict) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handle != h {
		return
	}
	o.record(h, isRetry, v)
}

// record stores the verdict of an attempt. A failed initial attempt waits for
// the next poll to claim the retry. Must be called with o.mu held.
func (o *Orchestrator) record(h *JobHandle, isRetry bool, v domain.Verdict) {
	o.logger.Info("Validation attempt finished",
		slog.String("job_id", h.ID),
		slog.Bool("retry", isRetry),
		slog.Bool("success", v.Success),
		slog.String("reason", v.Reason),
	)

	if isRetry || v.Success {
		o.finish(h, v)
		return
	}
	h.verdict = &v
}

// finish makes v the job's terminal verdict. Must be called with o.mu held.
func (o *Orchestrator) finish(h *JobHandle, v domain.Verdict) {
	h.verdict = &v
	h.State = domain.JobStateDone
	h.FinishedAt = o.now()

	if h.published {
		return
	}
	h.published = true

	event := notify.NewResultEvent(h.ID, v, h.RetryUsed, h.Request.IdealArtworkPath, h.StartedAt, h.FinishedAt)
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.publishTimeout)
		defer cancel()
		if err := o.publisher.Publish(ctx, event); err != nil {
			o.logger.Warn("Failed to publish result event",
				slog.String("job_id", event.JobID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func terminal(h *JobHandle) PollResult {
	v := *h.verdict
	return PollResult{Status: domain.PollStatusTerminal, JobID: h.ID, Verdict: &v}
}
