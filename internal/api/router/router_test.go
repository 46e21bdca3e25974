package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuongbtq/printcheck-station/internal/api/handler"
	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/cuongbtq/printcheck-station/internal/orchestrator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStation struct {
	startRes orchestrator.StartResult
	startErr error
	pollRes  orchestrator.PollResult
	state    domain.JobState

	started []domain.Request
	polls   int
}

func (f *fakeStation) Start(_ context.Context, req domain.Request) (orchestrator.StartResult, error) {
	f.started = append(f.started, req)
	return f.startRes, f.startErr
}

func (f *fakeStation) Poll(context.Context) orchestrator.PollResult {
	f.polls++
	return f.pollRes
}

func (f *fakeStation) State() domain.JobState { return f.state }

func newTestRouter(station *fakeStation) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(&handler.Dependencies{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Station: station,
	})
}

func post(t *testing.T, r http.Handler, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/printcheck", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestPrintcheck_Start(t *testing.T) {
	station := &fakeStation{startRes: orchestrator.StartResult{Captured: true, JobID: "job-1"}}
	r := newTestRouter(station)

	code, out := post(t, r, `{"header":{"cmdCode":3},"data":{"idealArtworkPath":"/art/a1.png","lot":"L7"}}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"cmdCode": float64(3)}, out["header"])
	assert.Equal(t, map[string]any{"captured": true, "success": true, "job_id": "job-1"}, out["data"])

	require.Len(t, station.started, 1)
	assert.Equal(t, "/art/a1.png", station.started[0].IdealArtworkPath)
	assert.Equal(t, "L7", station.started[0].Data["lot"])
}

func TestPrintcheck_StartNotCaptured(t *testing.T) {
	r := newTestRouter(&fakeStation{startRes: orchestrator.StartResult{Captured: false}})

	code, out := post(t, r, `{"header":{"cmdCode":3},"data":{}}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"captured": false, "success": false}, out["data"])
}

func TestPrintcheck_StartInFlight(t *testing.T) {
	r := newTestRouter(&fakeStation{startErr: domain.ErrJobInFlight})

	code, out := post(t, r, `{"header":{"cmdCode":3},"data":{}}`)

	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.ErrJobInFlight.Error(), out["error"])
}

func TestPrintcheck_Poll(t *testing.T) {
	failed := domain.FailedAt(domain.StageMeterQR, domain.ReasonMeterQRTolerance, []string{"NIC-9"}, nil)

	tests := []struct {
		name     string
		result   orchestrator.PollResult
		wantData map[string]any
	}{
		{
			name:     "no job",
			result:   orchestrator.PollResult{Status: domain.PollStatusNoJob},
			wantData: map[string]any{"status": "-1", "success": false},
		},
		{
			name:     "in progress",
			result:   orchestrator.PollResult{Status: domain.PollStatusInProgress, JobID: "j"},
			wantData: map[string]any{"status": "0", "success": false, "job_id": "j"},
		},
		{
			name:     "retrying",
			result:   orchestrator.PollResult{Status: domain.PollStatusInProgress, JobID: "j", Retrying: true},
			wantData: map[string]any{"status": "0", "success": false, "job_id": "j", "message": "Retrying"},
		},
		{
			name:   "terminal failure",
			result: orchestrator.PollResult{Status: domain.PollStatusTerminal, JobID: "j", Verdict: &failed},
			wantData: map[string]any{
				"status":          "1",
				"success":         false,
				"job_id":          "j",
				"niclogos":        true,
				"nic_positions":   true,
				"nic_qr":          true,
				"meter_qr":        false,
				"meter_ocr":       false,
				"template_passed": false,
				"reason":          domain.ReasonMeterQRTolerance,
				"nic_qr_codes":    []any{"NIC-9"},
				"meter_qr_codes":  []any{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			station := &fakeStation{pollRes: tt.result}
			code, out := post(t, newTestRouter(station), `{"header":{"cmdCode":2},"data":{}}`)

			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.wantData, out["data"])
			assert.Equal(t, 1, station.polls)
		})
	}
}

func TestPrintcheck_TerminalSuccess(t *testing.T) {
	passed := domain.PassedVerdict([]string{"NIC-1"}, []string{"AIK1"})
	station := &fakeStation{pollRes: orchestrator.PollResult{Status: domain.PollStatusTerminal, Verdict: &passed}}

	_, out := post(t, newTestRouter(station), `{"header":{"cmdCode":2}}`)

	data := out["data"].(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, true, data["template_passed"])
	assert.Equal(t, "", data["reason"])
	assert.Equal(t, []any{"AIK1"}, data["meter_qr_codes"])
}

func TestPrintcheck_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "not json", body: `cmdCode=3`, wantErr: "invalid JSON body"},
		{name: "missing header", body: `{"data":{}}`, wantErr: "missing header.cmdCode"},
		{name: "missing cmdCode", body: `{"header":{}}`, wantErr: "missing header.cmdCode"},
		{name: "unknown cmdCode", body: `{"header":{"cmdCode":7}}`, wantErr: "unknown cmdCode 7"},
		{name: "artwork not a string", body: `{"header":{"cmdCode":3},"data":{"idealArtworkPath":5}}`, wantErr: "idealArtworkPath must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			station := &fakeStation{}
			code, out := post(t, newTestRouter(station), tt.body)

			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, out["error"], "protocol error")
			assert.Contains(t, out["error"], tt.wantErr)
			assert.Empty(t, station.started)
			assert.Zero(t, station.polls)
		})
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeStation{state: domain.JobStateValidating})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"printcheck-station","job_state":"VALIDATING"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(&fakeStation{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/printcheck", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderRequestID)
	assert.Equal(t, HeaderRequestID, w.Header().Get("Access-Control-Expose-Headers"))
}

func TestLoggerMiddleware_RequestID(t *testing.T) {
	r := newTestRouter(&fakeStation{state: domain.JobStateIdle})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "line3-0042")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "line3-0042", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestLoggerMiddleware_CommandAttributes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := SetupRouter(&handler.Dependencies{
		Logger: logger,
		Station: &fakeStation{
			pollRes: orchestrator.PollResult{Status: domain.PollStatusInProgress, JobID: "job-7"},
		},
	})

	status, _ := post(t, r, `{"header":{"cmdCode":2},"data":{}}`)
	require.Equal(t, http.StatusOK, status)

	var line map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &entry))
		if entry["msg"] == "Station command" {
			line = entry
		}
	}
	require.NotNil(t, line, buf.String())
	assert.Equal(t, float64(2), line["cmd_code"])
	assert.Equal(t, "job-7", line["job_id"])
	assert.Equal(t, float64(http.StatusOK), line["status"])
	assert.NotEmpty(t, line["request_id"])
}
