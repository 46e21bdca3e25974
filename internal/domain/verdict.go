package domain

import "fmt"

// Stage identifies one external vision check. The numeric order is the
// reduction priority: a failure at a lower value masks everything after it.
type Stage int

const (
	StageLogos Stage = iota
	StagePosition
	StageNICQR
	StageMeterQR
	StageOCR
)

// Stages lists every stage in priority order
var Stages = []Stage{StageLogos, StagePosition, StageNICQR, StageMeterQR, StageOCR}

func (s Stage) String() string {
	switch s {
	case StageLogos:
		return "logos"
	case StagePosition:
		return "position"
	case StageNICQR:
		return "nic_qr"
	case StageMeterQR:
		return "meter_qr"
	case StageOCR:
		return "ocr"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Failure reasons surfaced to the client
const (
	ReasonNICQRUnreadable    = "NIC QR missing or unreadable"
	ReasonMeterQRUnreadable  = "Meter QR missing or unreadable"
	ReasonMeterQRTolerance   = "Meter QR position/size out of tolerance"
	ReasonOCRBoundary        = "Boundary check failed"
	ReasonHardwareFailure    = "Hardware Failure"
	reasonInferencePrefix    = "Inference Engine Error"
	reasonLogoFailurePrefix  = "Logo Failure"
	reasonPositionFailPrefix = "Position Failure"
	reasonOCRFailurePrefix   = "OCR Failure"
)

// LogoFailure formats the reason for a failed logo stage
func LogoFailure(detail string) string { return reasonLogoFailurePrefix + ": " + detail }

// PositionFailure formats the reason for a failed position stage
func PositionFailure(detail string) string { return reasonPositionFailPrefix + ": " + detail }

// OCRFailure formats the reason for a failed OCR stage
func OCRFailure(detail string) string {
	if detail == "" {
		detail = ReasonOCRBoundary
	}
	return reasonOCRFailurePrefix + ": " + detail
}

// StageResults holds the pass flag of every stage
type StageResults struct {
	Logos    bool
	Position bool
	NICQR    bool
	MeterQR  bool
	OCR      bool
}

// Passed reports the flag of a single stage
func (r StageResults) Passed(s Stage) bool {
	switch s {
	case StageLogos:
		return r.Logos
	case StagePosition:
		return r.Position
	case StageNICQR:
		return r.NICQR
	case StageMeterQR:
		return r.MeterQR
	case StageOCR:
		return r.OCR
	default:
		return false
	}
}

func (r *StageResults) set(s Stage, v bool) {
	switch s {
	case StageLogos:
		r.Logos = v
	case StagePosition:
		r.Position = v
	case StageNICQR:
		r.NICQR = v
	case StageMeterQR:
		r.MeterQR = v
	case StageOCR:
		r.OCR = v
	}
}

// Verdict is the reduced outcome of one validation attempt. Build it with the
// constructors below; the derived fields are computed there and never change.
type Verdict struct {
	Success        bool
	Stages         StageResults
	Reason         string
	TemplatePassed bool
	NICQRCodes     []string
	MeterQRCodes   []string
}

// NewVerdict derives Success and TemplatePassed from the stage flags.
// TemplatePassed ignores both QR stages.
func NewVerdict(stages StageResults, reason string, nicCodes, meterCodes []string) Verdict {
	return Verdict{
		Success:        stages.Logos && stages.Position && stages.NICQR && stages.MeterQR && stages.OCR,
		Stages:         stages,
		Reason:         reason,
		TemplatePassed: stages.Logos && stages.Position && stages.OCR,
		NICQRCodes:     nicCodes,
		MeterQRCodes:   meterCodes,
	}
}

// PassedVerdict is the verdict of an attempt in which every stage passed
func PassedVerdict(nicCodes, meterCodes []string) Verdict {
	all := StageResults{Logos: true, Position: true, NICQR: true, MeterQR: true, OCR: true}
	return NewVerdict(all, "", nicCodes, meterCodes)
}

// FailedAt marks every stage before failed as passed and failed plus every
// later stage as failed.
func FailedAt(failed Stage, reason string, nicCodes, meterCodes []string) Verdict {
	var stages StageResults
	for _, s := range Stages {
		stages.set(s, s < failed)
	}
	return NewVerdict(stages, reason, nicCodes, meterCodes)
}

// InferenceFailure is the verdict of an attempt whose stage raised instead of answering
func InferenceFailure(err error) Verdict {
	return NewVerdict(StageResults{}, fmt.Sprintf("%s: %v", reasonInferencePrefix, err), nil, nil)
}

// HardwareFailure is the verdict of an acquisition that exhausted the recovery ladder
func HardwareFailure() Verdict {
	return NewVerdict(StageResults{}, ReasonHardwareFailure, nil, nil)
}
