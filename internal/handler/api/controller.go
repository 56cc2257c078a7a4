package api

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"StratTune/internal/domain/models"
	drepo "StratTune/internal/domain/repository"
	"StratTune/internal/service/metrics"
	"StratTune/internal/service/ratelimit"
	"StratTune/internal/services/stream"
	"StratTune/internal/usecase"
	pkgcache "StratTune/pkg/cache"
	xhttp "StratTune/pkg/http"
	xlogger "StratTune/pkg/logger"
	xutil "StratTune/pkg/util"
)

// ControllerHandler exposes the tuning controller over HTTP.
type ControllerHandler struct {
	ctl      *usecase.Controller
	store    drepo.Store
	hub      *stream.Hub
	cache    pkgcache.Service
	cacheTTL time.Duration
	rl       *ratelimit.Limiter
	logger   *xlogger.Logger
}

func NewControllerHandler(logger *xlogger.Logger, ctl *usecase.Controller, store drepo.Store) *ControllerHandler {
	metrics.Register()
	return &ControllerHandler{
		ctl:      ctl,
		store:    store,
		rl:       ratelimit.New(),
		logger:   logger,
		cacheTTL: 5 * time.Second,
	}
}

// SetCache enables response caching for read endpoints.
func (h *ControllerHandler) SetCache(c pkgcache.Service, ttl time.Duration) {
	h.cache = c
	if ttl > 0 {
		h.cacheTTL = ttl
	}
}

// SetStreamHub enables the /ws live push endpoint.
func (h *ControllerHandler) SetStreamHub(hub *stream.Hub) { h.hub = hub }

func (h *ControllerHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/diag", h.Diag)
	e.GET("/diags", h.Diags)
	e.POST("/trade_completed", h.TradeCompleted)
	e.POST("/entry_blocked", h.EntryBlocked)

	e.GET("/overrides", h.GetOverrides)
	e.POST("/apply", h.Apply)
	e.DELETE("/override/:name", h.DeleteOverride)

	e.GET("/autosuggest", h.Autosuggest)
	e.GET("/autoapplies", h.AutoApplies)
	e.POST("/autoapply/toggle", h.Toggle)

	e.GET("/trend", h.Trend)
	e.GET("/snapshot", h.SnapshotEphemeral)
	e.POST("/snapshot", h.SnapshotPersist)
	e.GET("/snapshot/latest", h.SnapshotLatest)

	e.POST("/ai/footprint", h.Footprint)
	e.GET("/ai/footprints", h.Footprints)

	e.GET("/healthz", h.Healthz)
	if h.hub != nil {
		e.GET("/ws", h.Stream)
	}
}

// Diag accepts one raw sample object or an array of them. Unknown keys are
// folded by the normalizer; malformed bodies are the only rejection.
func (h *ControllerHandler) Diag(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.IngestLatency.WithLabelValues("diag").Observe(time.Since(start).Seconds()) }()

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		metrics.IngestErrors.WithLabelValues("diag").Inc()
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code: "ERR_BODY", Message: err.Error(),
		}})
	}

	var batch []map[string]interface{}
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single map[string]interface{}
		if err := json.Unmarshal(raw, &single); err != nil {
			metrics.IngestErrors.WithLabelValues("diag").Inc()
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code: "ERR_BODY", Message: "expected a JSON object or array",
			}})
		}
		batch = []map[string]interface{}{single}
	}
	n := h.ctl.Ingest(c.Request().Context(), batch)
	return xhttp.SuccessResponse(c, map[string]interface{}{"accepted": n})
}

func (h *ControllerHandler) Diags(c echo.Context) error {
	req := &models.DiagsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Since == "" {
		samples := h.ctl.RecentSamples()
		if req.Limit > 0 && len(samples) > req.Limit {
			samples = samples[len(samples)-req.Limit:]
		}
		return xhttp.SuccessResponse(c, samples)
	}

	since := xutil.ParseTimeDefault(req.Since, time.Time{})
	cacheKey := pkgcache.GenerateKeyWithParams("diags", req.Since, req.Limit)
	if h.cache != nil {
		var cached []*models.DiagnosticSample
		if err := h.cache.Get(c.Request().Context(), cacheKey, &cached); err == nil {
			return xhttp.SuccessResponse(c, cached)
		}
	}

	samples, err := h.ctl.SamplesSince(c.Request().Context(), since, req.Limit)
	if err != nil {
		h.logger.Error("diags query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
	if h.cache != nil {
		_ = h.cache.Set(c.Request().Context(), cacheKey, samples, h.cacheTTL)
	}
	return xhttp.SuccessResponse(c, samples)
}

func (h *ControllerHandler) TradeCompleted(c echo.Context) error {
	req := &models.TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	t := &models.Trade{
		EntryBar:     req.EntryBar,
		ExitBar:      req.ExitBar,
		Direction:    req.Direction,
		EntryPrice:   req.EntryPrice,
		ExitPrice:    req.ExitPrice,
		BarsHeld:     req.BarsHeld,
		Profit:       req.Profit,
		MaxFavorable: req.MaxFavorable,
		MaxAdverse:   req.MaxAdverse,
		ExitReason:   req.ExitReason,
		At:           time.Now(),
	}
	h.ctl.TradeCompleted(c.Request().Context(), t)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"capture_ratio": t.CaptureRatio(),
		"streaks":       h.ctl.Streaks(),
	})
}

func (h *ControllerHandler) EntryBlocked(c echo.Context) error {
	req := &models.EntryBlockRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	b := &models.EntryBlock{
		Bar:           req.Bar,
		Side:          req.Side,
		Gradient:      req.Gradient,
		TrendStrength: req.TrendStrength,
		Volatility:    req.Volatility,
		Reasons:       req.Reasons,
		FavorableMove: req.FavorableMove,
		At:            time.Now(),
	}
	h.ctl.EntryBlocked(c.Request().Context(), b)
	return xhttp.SuccessResponse(c, map[string]interface{}{"streaks": h.ctl.Streaks()})
}

func (h *ControllerHandler) GetOverrides(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"effective": h.ctl.Effective(),
		"overrides": h.ctl.Overrides(),
		"defaults":  drepo.Defaults(),
	})
}

func (h *ControllerHandler) Apply(c echo.Context) error {
	req := &models.ApplyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	effective, err := h.ctl.Apply(c.Request().Context(), req.Property, req.Value, models.SourceManual)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownParam) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown parameter %q", req.Property))
		}
		h.logger.Error("apply error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("apply failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"effective": effective})
}

func (h *ControllerHandler) DeleteOverride(c echo.Context) error {
	name := c.Param("name")
	effective, err := h.ctl.Delete(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownParam) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown parameter %q", name))
		}
		if errors.Is(err, usecase.ErrNoOverride) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no override for %q", name))
		}
		h.logger.Error("delete override error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("delete failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"effective": effective})
}

func (h *ControllerHandler) Autosuggest(c echo.Context) error {
	recent, err := h.store.RecentAutoApplies(c.Request().Context(), 20)
	if err != nil {
		h.logger.Warn("recent auto applies unavailable", xlogger.Error(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"enabled":     h.ctl.AutoApplyEnabled(),
		"streaks":     h.ctl.Streaks(),
		"suggestions": h.ctl.Suggestions(),
		"recent":      recent,
	})
}

func (h *ControllerHandler) AutoApplies(c echo.Context) error {
	limit := xutil.ParseIntDefault(c.QueryParam("limit"), 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	events, err := h.store.RecentAutoApplies(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("auto applies query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, events)
}

func (h *ControllerHandler) Toggle(c echo.Context) error {
	req := &models.ToggleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	enabled := h.ctl.ToggleAutoApply(c.Request().Context(), req.Enabled)
	return xhttp.SuccessResponse(c, map[string]interface{}{"enabled": enabled})
}

func (h *ControllerHandler) Trend(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"trend":   h.ctl.TrendState(),
		"streaks": h.ctl.Streaks(),
	})
}

func (h *ControllerHandler) SnapshotEphemeral(c echo.Context) error {
	snap, err := h.ctl.Snapshot(c.Request().Context(), false)
	if err != nil {
		h.logger.Error("snapshot error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("snapshot failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *ControllerHandler) SnapshotPersist(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":snapshot", 2, 1) {
		h.logger.Warn("snapshot rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many snapshot requests", 429))
	}
	snap, err := h.ctl.Snapshot(c.Request().Context(), true)
	if err != nil {
		h.logger.Error("snapshot error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("snapshot failed").WithError(err))
	}
	return xhttp.CreatedResponse(c, snap)
}

func (h *ControllerHandler) SnapshotLatest(c echo.Context) error {
	snap, err := h.ctl.LatestSnapshot(c.Request().Context())
	if err != nil {
		h.logger.Error("latest snapshot error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *ControllerHandler) Footprint(c echo.Context) error {
	req := &models.FootprintRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	fp := h.ctl.RecordFootprint(c.Request().Context(), req.Kind, req.Note, req.Data)
	return xhttp.CreatedResponse(c, fp)
}

func (h *ControllerHandler) Footprints(c echo.Context) error {
	req := &models.FootprintsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	fps, err := h.ctl.Footprints(c.Request().Context(), req.Kind, req.Limit)
	if err != nil {
		h.logger.Error("footprints query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, fps)
}

func (h *ControllerHandler) Healthz(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_STORE_DOWN", "", "store unavailable", 503).WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"status": "ok"})
}

func (h *ControllerHandler) Stream(c echo.Context) error {
	if err := h.hub.Serve(c.Response(), c.Request()); err != nil {
		h.logger.Warn("ws upgrade failed", xlogger.Error(err))
		return err
	}
	return nil
}
