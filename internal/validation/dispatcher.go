package validation

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig holds validation dispatcher configuration
type DispatcherConfig struct {
	Logger *slog.Logger
	Stages Stages

	// Parallel runs all five stages at once; otherwise they run in priority
	// order and stop at the first failure.
	Parallel bool

	// RequireMeterQRSize fails the meter QR stage unless the collaborator
	// reports size_ok=true.
	RequireMeterQRSize bool

	// StageTimeout bounds each stage call; zero leaves it to the collaborator
	StageTimeout time.Duration
}

// Dispatcher reduces the five vision stages to one Verdict
type Dispatcher struct {
	logger             *slog.Logger
	stages             Stages
	parallel           bool
	requireMeterQRSize bool
	stageTimeout       time.Duration
}

// outcome is the interpreted result of one stage
type outcome struct {
	ran    bool
	passed bool
	reason string
	codes  []string
	err    error
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:             logger,
		stages:             cfg.Stages,
		parallel:           cfg.Parallel,
		requireMeterQRSize: cfg.RequireMeterQRSize,
		stageTimeout:       cfg.StageTimeout,
	}
}

// Validate runs the stages on the frame pair and reduces them in the order
// logos, position, nic_qr, meter_qr, ocr. The first failing stage sets the
// reason and fails every later stage. An execution error at or before that
// point turns the whole verdict into an inference failure.
func (d *Dispatcher) Validate(ctx context.Context, meter, nic *domain.Frame, req domain.Request) domain.Verdict {
	start := time.Now()
	outcomes := make([]outcome, len(domain.Stages))

	if d.parallel {
		var g errgroup.Group
		for i, stage := range domain.Stages {
			i, stage := i, stage
			g.Go(func() error {
				outcomes[i] = d.run(ctx, stage, meter, nic, req)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, stage := range domain.Stages {
			outcomes[i] = d.run(ctx, stage, meter, nic, req)
			if outcomes[i].err != nil || !outcomes[i].passed {
				break
			}
		}
	}

	verdict := d.reduce(outcomes)

	d.logger.Info("Validation finished",
		slog.Bool("success", verdict.Success),
		slog.String("reason", verdict.Reason),
		slog.Bool("template_passed", verdict.TemplatePassed),
		slog.Bool("parallel", d.parallel),
		slog.Duration("elapsed", time.Since(start)),
	)
	return verdict
}

func (d *Dispatcher) reduce(outcomes []outcome) domain.Verdict {
	var nicCodes, meterCodes []string
	for i, stage := range domain.Stages {
		o := outcomes[i]
		if o.err != nil {
			d.logger.Error("Vision stage raised",
				slog.String("stage", stage.String()),
				slog.String("error", o.err.Error()),
			)
			return domain.InferenceFailure(&domain.InferenceError{Stage: stage, Err: o.err})
		}
		if !o.ran || !o.passed {
			return domain.FailedAt(stage, o.reason, nicCodes, meterCodes)
		}
		switch stage {
		case domain.StageNICQR:
			nicCodes = o.codes
		case domain.StageMeterQR:
			meterCodes = o.codes
		}
	}
	return domain.PassedVerdict(nicCodes, meterCodes)
}

// run executes one stage, turning a panic into an execution error
func (d *Dispatcher) run(ctx context.Context, stage domain.Stage, meter, nic *domain.Frame, req domain.Request) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o = outcome{ran: true, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if d.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.stageTimeout)
		defer cancel()
	}

	switch stage {
	case domain.StageLogos:
		o = d.check(ctx, nic, req.IdealArtworkPath, d.stages.Logos, domain.LogoFailure)
	case domain.StagePosition:
		o = d.check(ctx, nic, req.IdealArtworkPath, d.stages.Position, domain.PositionFailure)
	case domain.StageNICQR:
		o = d.nicQR(ctx, nic)
	case domain.StageMeterQR:
		o = d.meterQR(ctx, meter)
	case domain.StageOCR:
		o = d.ocr(ctx, meter)
	default:
		o = outcome{ran: true, err: fmt.Errorf("unknown stage %d", int(stage))}
	}
	return o
}

type artworkCheck func(ctx context.Context, img image.Image, artworkPath string) (CheckResult, error)

func (d *Dispatcher) check(ctx context.Context, frame *domain.Frame, artwork string, fn artworkCheck, reason func(string) string) outcome {
	if frame == nil || frame.Image == nil {
		return outcome{ran: true, err: domain.ErrNoFrame}
	}
	res, err := fn(ctx, frame.Image, artwork)
	if err != nil {
		return outcome{ran: true, err: err}
	}
	return outcome{ran: true, passed: res.Passed(), reason: reason(res.Error)}
}

func (d *Dispatcher) nicQR(ctx context.Context, nic *domain.Frame) outcome {
	if nic == nil || nic.Image == nil {
		return outcome{ran: true, err: domain.ErrNoFrame}
	}
	res, err := d.stages.QR(ctx, nic.Image, false)
	if err != nil {
		return outcome{ran: true, err: err}
	}
	return outcome{ran: true, passed: res.Readable(), reason: domain.ReasonNICQRUnreadable, codes: res.Codes}
}

func (d *Dispatcher) meterQR(ctx context.Context, meter *domain.Frame) outcome {
	if meter == nil || meter.Image == nil {
		return outcome{ran: true, err: domain.ErrNoFrame}
	}
	res, err := d.stages.QR(ctx, meter.Image, true)
	if err != nil {
		return outcome{ran: true, err: err}
	}
	if !res.Readable() {
		return outcome{ran: true, reason: domain.ReasonMeterQRUnreadable}
	}
	if !isTrue(res.PositionOK) || (d.requireMeterQRSize && !isTrue(res.SizeOK)) {
		return outcome{ran: true, reason: domain.ReasonMeterQRTolerance, codes: res.Codes}
	}
	return outcome{ran: true, passed: true, codes: res.Codes}
}

func (d *Dispatcher) ocr(ctx context.Context, meter *domain.Frame) outcome {
	if meter == nil || meter.Image == nil {
		return outcome{ran: true, err: domain.ErrNoFrame}
	}
	res, err := d.stages.OCR(ctx, meter.Image)
	if err != nil {
		return outcome{ran: true, err: err}
	}
	return outcome{ran: true, passed: res.Passed(), reason: domain.OCRFailure(res.Error)}
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
