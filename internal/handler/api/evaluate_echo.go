package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	models "EntryGate/internal/domain/models"
	"EntryGate/internal/usecase"
	xhttp "EntryGate/pkg/http"
	xlogger "EntryGate/pkg/logger"
)

// EvaluateEchoHandler exposes dry-run evaluation and the latest live decision.
type EvaluateEchoHandler struct {
	logger *xlogger.Logger
	loop   *usecase.EvaluationLoop
}

func NewEvaluateEchoHandler(logger *xlogger.Logger, loop *usecase.EvaluationLoop) *EvaluateEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EvaluateEchoHandler{logger: logger.With("evaluate_api"), loop: loop}
}

func (h *EvaluateEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/evaluate", h.Evaluate)
	g.GET("/decisions/latest", h.Latest)
}

// Evaluate scores one snapshot against the active document. Live per-symbol
// state is not touched.
func (h *EvaluateEchoHandler) Evaluate(c echo.Context) error {
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ev := h.loop.DryRun(&req.Snapshot, req.LongStreak, req.ShortStreak)
	return xhttp.SuccessResponse(c, ev)
}

func (h *EvaluateEchoHandler) Latest(c echo.Context) error {
	req := &models.LatestDecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	ev, ok := h.loop.Latest(symbol)
	if !ok {
		return xhttp.ErrorResponse(c, xhttp.NotFound("no decision for %s", symbol))
	}
	return xhttp.SuccessResponse(c, ev)
}
