package validation

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStages struct {
	mu sync.Mutex

	logos    CheckResult
	position CheckResult
	nicQR    QRResult
	meterQR  QRResult
	ocr      CheckResult

	errs   map[domain.Stage]error
	panics map[domain.Stage]bool
	called []domain.Stage
}

func passingStages() *fakeStages {
	yes := true
	return &fakeStages{
		logos:    CheckResult{Status: StatusPass},
		position: CheckResult{Status: StatusPass},
		nicQR:    QRResult{Codes: []string{"NIC-0042"}},
		meterQR:  QRResult{Codes: []string{"AIK123456"}, PositionOK: &yes, SizeOK: &yes},
		ocr:      CheckResult{Status: StatusPass},
		errs:     map[domain.Stage]error{},
		panics:   map[domain.Stage]bool{},
	}
}

func (f *fakeStages) enter(s domain.Stage) error {
	f.mu.Lock()
	f.called = append(f.called, s)
	f.mu.Unlock()
	if f.panics[s] {
		panic("model crashed")
	}
	return f.errs[s]
}

func (f *fakeStages) Logos(_ context.Context, _ image.Image, _ string) (CheckResult, error) {
	return f.logos, f.enter(domain.StageLogos)
}

func (f *fakeStages) Position(_ context.Context, _ image.Image, _ string) (CheckResult, error) {
	return f.position, f.enter(domain.StagePosition)
}

func (f *fakeStages) QR(_ context.Context, _ image.Image, checkLimits bool) (QRResult, error) {
	if checkLimits {
		return f.meterQR, f.enter(domain.StageMeterQR)
	}
	return f.nicQR, f.enter(domain.StageNICQR)
}

func (f *fakeStages) OCR(_ context.Context, _ image.Image) (CheckResult, error) {
	return f.ocr, f.enter(domain.StageOCR)
}

func testFrames() (*domain.Frame, *domain.Frame) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	return &domain.Frame{Role: domain.RoleMeter, Image: img}, &domain.Frame{Role: domain.RoleNIC, Image: img}
}

func validate(t *testing.T, stages Stages, parallel, requireSize bool) domain.Verdict {
	t.Helper()
	meter, nic := testFrames()
	d := NewDispatcher(&DispatcherConfig{Stages: stages, Parallel: parallel, RequireMeterQRSize: requireSize})
	return d.Validate(context.Background(), meter, nic, domain.Request{IdealArtworkPath: "/artwork/a1.png"})
}

func TestDispatcher_Reduction(t *testing.T) {
	no := false

	tests := []struct {
		name        string
		mutate      func(f *fakeStages)
		requireSize bool
		wantVerdict domain.Verdict
	}{
		{
			name:        "all pass",
			mutate:      func(*fakeStages) {},
			wantVerdict: domain.PassedVerdict([]string{"NIC-0042"}, []string{"AIK123456"}),
		},
		{
			name: "logo and qr fail together, only logo reported",
			mutate: func(f *fakeStages) {
				f.logos = CheckResult{Status: StatusFail, Error: "expected 3 logos, found 2"}
				f.nicQR = QRResult{Error: "Failed to detect QR"}
			},
			wantVerdict: domain.FailedAt(domain.StageLogos, "Logo Failure: expected 3 logos, found 2", nil, nil),
		},
		{
			name: "position failure",
			mutate: func(f *fakeStages) {
				f.position = CheckResult{Status: StatusFail, Error: "Position mismatch: bis"}
			},
			wantVerdict: domain.FailedAt(domain.StagePosition, "Position Failure: Position mismatch: bis", nil, nil),
		},
		{
			name:        "nic qr without codes",
			mutate:      func(f *fakeStages) { f.nicQR = QRResult{} },
			wantVerdict: domain.FailedAt(domain.StageNICQR, domain.ReasonNICQRUnreadable, nil, nil),
		},
		{
			name:        "meter qr unreadable",
			mutate:      func(f *fakeStages) { f.meterQR = QRResult{Error: "Failed to detect QR"} },
			wantVerdict: domain.FailedAt(domain.StageMeterQR, domain.ReasonMeterQRUnreadable, []string{"NIC-0042"}, nil),
		},
		{
			name:        "meter qr out of position",
			mutate:      func(f *fakeStages) { f.meterQR.PositionOK = &no },
			wantVerdict: domain.FailedAt(domain.StageMeterQR, domain.ReasonMeterQRTolerance, []string{"NIC-0042"}, nil),
		},
		{
			name:        "missing size ignored by default",
			mutate:      func(f *fakeStages) { f.meterQR.SizeOK = nil },
			wantVerdict: domain.PassedVerdict([]string{"NIC-0042"}, []string{"AIK123456"}),
		},
		{
			name:        "missing size fails when required",
			mutate:      func(f *fakeStages) { f.meterQR.SizeOK = nil },
			requireSize: true,
			wantVerdict: domain.FailedAt(domain.StageMeterQR, domain.ReasonMeterQRTolerance, []string{"NIC-0042"}, nil),
		},
		{
			name:        "ocr failure without detail",
			mutate:      func(f *fakeStages) { f.ocr = CheckResult{Status: StatusFail} },
			wantVerdict: domain.FailedAt(domain.StageOCR, "OCR Failure: Boundary check failed", []string{"NIC-0042"}, []string{"AIK123456"}),
		},
		{
			name: "stage error after an earlier failure is masked",
			mutate: func(f *fakeStages) {
				f.position = CheckResult{Status: StatusFail, Error: "Position mismatch: logo"}
				f.errs[domain.StageOCR] = errors.New("engine down")
			},
			wantVerdict: domain.FailedAt(domain.StagePosition, "Position Failure: Position mismatch: logo", nil, nil),
		},
		{
			name:        "stage error before any failure",
			mutate:      func(f *fakeStages) { f.errs[domain.StageNICQR] = errors.New("connection refused") },
			wantVerdict: domain.InferenceFailure(&domain.InferenceError{Stage: domain.StageNICQR, Err: errors.New("connection refused")}),
		},
		{
			name:        "stage panic",
			mutate:      func(f *fakeStages) { f.panics[domain.StageOCR] = true },
			wantVerdict: domain.InferenceFailure(&domain.InferenceError{Stage: domain.StageOCR, Err: errors.New("panic: model crashed")}),
		},
	}

	for _, tt := range tests {
		for _, parallel := range []bool{false, true} {
			name := tt.name + "/sequential"
			if parallel {
				name = tt.name + "/parallel"
			}
			t.Run(name, func(t *testing.T) {
				stages := passingStages()
				tt.mutate(stages)

				got := validate(t, stages, parallel, tt.requireSize)
				assert.Equal(t, tt.wantVerdict, got)
			})
		}
	}
}

func TestDispatcher_InferenceReason(t *testing.T) {
	stages := passingStages()
	stages.errs[domain.StageOCR] = errors.New("engine crashed")

	v := validate(t, stages, true, false)

	assert.False(t, v.Success)
	assert.Equal(t, "Inference Engine Error: ocr: engine crashed", v.Reason)
	assert.Equal(t, domain.StageResults{}, v.Stages)
	assert.False(t, v.TemplatePassed)
}

func TestDispatcher_QRFailureFailsLaterStages(t *testing.T) {
	stages := passingStages()
	stages.nicQR = QRResult{Error: "blurred"}

	v := validate(t, stages, true, false)

	assert.False(t, v.Success)
	assert.False(t, v.Stages.NICQR)
	assert.False(t, v.Stages.OCR)
	assert.False(t, v.TemplatePassed)
	assert.True(t, v.Stages.Logos)
	assert.True(t, v.Stages.Position)
}

func TestDispatcher_SequentialShortCircuits(t *testing.T) {
	stages := passingStages()
	stages.position = CheckResult{Status: StatusFail, Error: "shifted"}

	validate(t, stages, false, false)

	assert.Equal(t, []domain.Stage{domain.StageLogos, domain.StagePosition}, stages.called)
}

func TestDispatcher_ParallelRunsAllStages(t *testing.T) {
	stages := passingStages()
	stages.logos = CheckResult{Status: StatusFail}

	validate(t, stages, true, false)

	assert.ElementsMatch(t, domain.Stages, stages.called)
}

func TestDispatcher_MissingFrame(t *testing.T) {
	meter, _ := testFrames()
	d := NewDispatcher(&DispatcherConfig{Stages: passingStages()})

	v := d.Validate(context.Background(), meter, nil, domain.Request{})

	require.False(t, v.Success)
	assert.Contains(t, v.Reason, "Inference Engine Error: logos")
}
