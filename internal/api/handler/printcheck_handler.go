package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/printcheck-station/internal/api/dto"
	"github.com/cuongbtq/printcheck-station/internal/domain"
	"github.com/cuongbtq/printcheck-station/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

// Printcheck handles POST /printcheck
// cmdCode 3 starts an inspection, cmdCode 2 polls it
func (h *PrintcheckHandler) Printcheck(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		h.logger.Warn("Rejected printcheck request", slog.String("error", err.Error()))
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.Set(KeyCmdCode, req.CmdCode)

	switch req.CmdCode {
	case domain.CmdStart:
		h.start(c, req)
	case domain.CmdPoll:
		h.poll(c, req)
	default:
		err := domain.NewProtocolError("unknown cmdCode %d", req.CmdCode)
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Header: &dto.ResponseHeader{CmdCode: req.CmdCode},
			Error:  err.Error(),
		})
	}
}

// Health handles GET /health
func (h *PrintcheckHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:   "healthy",
		Service:  h.service,
		JobState: string(h.station.State()),
	})
}

func (h *PrintcheckHandler) start(c *gin.Context, req domain.Request) {
	res, err := h.station.Start(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrJobInFlight) {
			status = http.StatusConflict
		}
		_ = c.Error(err)
		c.JSON(status, dto.ErrorResponse{
			Header: &dto.ResponseHeader{CmdCode: req.CmdCode},
			Error:  err.Error(),
		})
		return
	}

	if res.JobID != "" {
		c.Set(KeyJobID, res.JobID)
	}
	c.JSON(http.StatusOK, dto.PrintcheckResponse{
		Header: dto.ResponseHeader{CmdCode: req.CmdCode},
		Data: dto.StartData{
			Captured: res.Captured,
			Success:  res.Captured,
			JobID:    res.JobID,
		},
	})
}

func (h *PrintcheckHandler) poll(c *gin.Context, req domain.Request) {
	res := h.station.Poll(c.Request.Context())
	if res.JobID != "" {
		c.Set(KeyJobID, res.JobID)
	}
	c.JSON(http.StatusOK, dto.PrintcheckResponse{
		Header: dto.ResponseHeader{CmdCode: req.CmdCode},
		Data:   toPollData(res),
	})
}

func toPollData(res orchestrator.PollResult) dto.PollData {
	data := dto.PollData{
		Status: res.Status,
		JobID:  res.JobID,
	}
	if res.Retrying {
		data.Message = "Retrying"
	}
	if res.Status != domain.PollStatusTerminal || res.Verdict == nil {
		return data
	}

	v := res.Verdict
	data.Success = v.Success
	data.VerdictDetail = &dto.VerdictDetail{
		NICLogos:       v.Stages.Logos,
		NICPositions:   v.Stages.Position,
		NICQR:          v.Stages.NICQR,
		MeterQR:        v.Stages.MeterQR,
		MeterOCR:       v.Stages.OCR,
		TemplatePassed: v.TemplatePassed,
		Reason:         v.Reason,
		NICQRCodes:     nonNil(v.NICQRCodes),
		MeterQRCodes:   nonNil(v.MeterQRCodes),
	}
	return data
}

// parseRequest validates the envelope and extracts the client context
func parseRequest(c *gin.Context) (domain.Request, error) {
	var body dto.PrintcheckRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return domain.Request{}, domain.NewProtocolError("invalid JSON body: %v", err)
	}
	if body.Header == nil || body.Header.CmdCode == nil {
		return domain.Request{}, domain.NewProtocolError("missing header.cmdCode")
	}

	req := domain.Request{CmdCode: *body.Header.CmdCode, Data: body.Data}
	if raw, ok := body.Data["idealArtworkPath"]; ok && raw != nil {
		path, ok := raw.(string)
		if !ok {
			return domain.Request{}, domain.NewProtocolError("data.idealArtworkPath must be a string")
		}
		req.IdealArtworkPath = path
	}
	return req, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
