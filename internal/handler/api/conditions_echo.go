package api

import (
	"io"
	"strconv"

	"github.com/labstack/echo/v4"

	models "EntryGate/internal/domain/models"
	"EntryGate/internal/service/ratelimit"
	"EntryGate/internal/usecase"
	xhttp "EntryGate/pkg/http"
	xlogger "EntryGate/pkg/logger"
)

const (
	versionHeader = "X-Conditions-Version"
	maxBodyBytes  = 1 << 20
)

// ConditionsEchoHandler serves the conditions settings API.
type ConditionsEchoHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.ConditionService
	limiter *ratelimit.Limiter
}

// NewConditionsEchoHandler builds the handler. limiter may be nil.
func NewConditionsEchoHandler(logger *xlogger.Logger, svc *usecase.ConditionService, limiter *ratelimit.Limiter) *ConditionsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ConditionsEchoHandler{logger: logger.With("conditions_api"), svc: svc, limiter: limiter}
}

func (h *ConditionsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/conditions")
	if h.limiter != nil {
		g.Use(ratelimit.Writes(h.limiter))
	}
	g.GET("", h.Get)
	g.POST("", h.Save)
	g.PATCH("", h.Patch)
	g.GET("/defaults", h.Defaults)
	g.GET("/history", h.History)
	g.GET("/versions/:version", h.Version)
	g.POST("/versions/:version/rollback", h.Rollback)
	g.POST("/:side/core/toggle", h.ToggleCore)
	g.POST("/:side/pairs", h.AddPair)
	g.DELETE("/:side/pairs/:index", h.RemovePair)
}

func setVersion(c echo.Context, v *models.VersionedConditions) {
	c.Response().Header().Set(versionHeader, strconv.FormatInt(v.Version, 10))
}

// Get returns the active document, {} when none is set.
func (h *ConditionsEchoHandler) Get(c echo.Context) error {
	v := h.svc.Current()
	setVersion(c, v)
	return xhttp.SuccessResponse(c, v.Document)
}

// Save replaces the document. An empty object resets to the default rules.
func (h *ConditionsEchoHandler) Save(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.ValidationErrors(err))
	}
	v, err := h.svc.SaveRaw(c.Request().Context(), body)
	if err != nil {
		return errorResponse(c, h.logger, "save conditions", err)
	}
	setVersion(c, v)
	return xhttp.CreatedResponse(c, v)
}

// Patch changes only the fields named in the body. Unknown keys are rejected.
func (h *ConditionsEchoHandler) Patch(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.ValidationErrors(err))
	}
	req, err := models.DecodePatch(body)
	if err != nil {
		return errorResponse(c, h.logger, "patch conditions", err)
	}
	v, err := h.svc.Apply(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, h.logger, "patch conditions", err)
	}
	setVersion(c, v)
	return xhttp.SuccessResponse(c, v)
}

// Defaults returns an example document a client can start editing from.
func (h *ConditionsEchoHandler) Defaults(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.DefaultConditions())
}

func (h *ConditionsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.svc.History(c.Request().Context(), req.Limit)
	if err != nil {
		return errorResponse(c, h.logger, "conditions history", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *ConditionsEchoHandler) Version(c echo.Context) error {
	req := &models.VersionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.svc.Version(c.Request().Context(), req.Version)
	if err != nil {
		return errorResponse(c, h.logger, "conditions version", err)
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *ConditionsEchoHandler) Rollback(c echo.Context) error {
	req := &models.VersionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.svc.Rollback(c.Request().Context(), req.Version)
	if err != nil {
		return errorResponse(c, h.logger, "conditions rollback", err)
	}
	setVersion(c, v)
	return xhttp.CreatedResponse(c, v)
}

func (h *ConditionsEchoHandler) ToggleCore(c echo.Context) error {
	req := &models.ToggleCoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	side, err := models.ParseSide(req.Side)
	if err != nil {
		return errorResponse(c, h.logger, "toggle core", err)
	}
	v, on, err := h.svc.ToggleCore(c.Request().Context(), side, models.Cond(req.Indicator, req.State))
	if err != nil {
		return errorResponse(c, h.logger, "toggle core", err)
	}
	setVersion(c, v)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"version": v.Version,
		"enabled": on,
		"core":    v.Document.Set(side).Core,
	})
}

func (h *ConditionsEchoHandler) AddPair(c echo.Context) error {
	req := &models.AddPairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	side, err := models.ParseSide(req.Side)
	if err != nil {
		return errorResponse(c, h.logger, "add pair", err)
	}
	v, err := h.svc.AddPair(c.Request().Context(), side, req.Pair)
	if err != nil {
		return errorResponse(c, h.logger, "add pair", err)
	}
	setVersion(c, v)
	return xhttp.CreatedResponse(c, map[string]interface{}{
		"version": v.Version,
		"pairs":   v.Document.Set(side).Pairs,
	})
}

func (h *ConditionsEchoHandler) RemovePair(c echo.Context) error {
	req := &models.RemovePairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	side, err := models.ParseSide(req.Side)
	if err != nil {
		return errorResponse(c, h.logger, "remove pair", err)
	}
	v, err := h.svc.RemovePair(c.Request().Context(), side, req.Index)
	if err != nil {
		return errorResponse(c, h.logger, "remove pair", err)
	}
	setVersion(c, v)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"version": v.Version,
		"pairs":   v.Document.Set(side).Pairs,
	})
}
