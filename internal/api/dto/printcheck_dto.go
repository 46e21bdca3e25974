package dto

// Header carries the command code of a printcheck request
type Header struct {
	CmdCode *int `json:"cmdCode"`
}

// PrintcheckRequest is the body of POST /printcheck
type PrintcheckRequest struct {
	Header *Header        `json:"header"`
	Data   map[string]any `json:"data"`
}

// ResponseHeader echoes the command code back to the client
type ResponseHeader struct {
	CmdCode int `json:"cmdCode"`
}

// PrintcheckResponse wraps every printcheck answer
type PrintcheckResponse struct {
	Header ResponseHeader `json:"header"`
	Data   any            `json:"data"`
}

type StartData struct {
	Captured bool   `json:"captured"`
	Success  bool   `json:"success"`
	JobID    string `json:"job_id,omitempty"`
}

type PollData struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	*VerdictDetail
}

// VerdictDetail is only present on terminal poll answers
type VerdictDetail struct {
	NICLogos       bool     `json:"niclogos"`
	NICPositions   bool     `json:"nic_positions"`
	NICQR          bool     `json:"nic_qr"`
	MeterQR        bool     `json:"meter_qr"`
	MeterOCR       bool     `json:"meter_ocr"`
	TemplatePassed bool     `json:"template_passed"`
	Reason         string   `json:"reason"`
	NICQRCodes     []string `json:"nic_qr_codes"`
	MeterQRCodes   []string `json:"meter_qr_codes"`
}

type ErrorResponse struct {
	Header *ResponseHeader `json:"header,omitempty"`
	Error  string          `json:"error"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	JobState string `json:"job_state"`
}
