package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	models "PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	icache "PerpLens/internal/service/cache"
	"PerpLens/internal/service/metrics"
	"PerpLens/internal/service/ratelimit"
	"PerpLens/internal/usecase"
	xhttp "PerpLens/pkg/http"
	xlogger "PerpLens/pkg/logger"

	"github.com/labstack/echo/v4"
)

// classificationCacheTTL bounds staleness of cached live classifications.
// Historical (as-of) calls are deterministic and can live longer.
const (
	classificationCacheTTL = 15 * time.Second
	historicalCacheTTL     = 5 * time.Minute
)

// Handler exposes the regime classification and threshold analysis API.
type Handler struct {
	logger   *xlogger.Logger
	regime   *usecase.RegimeService
	analyzer *usecase.ThresholdAnalyzer
	configs  domrepo.ConfigStore
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
	health   func() error
}

func NewHandler(logger *xlogger.Logger, regime *usecase.RegimeService, analyzer *usecase.ThresholdAnalyzer, configs domrepo.ConfigStore) *Handler {
	metrics.Register()
	return &Handler{
		logger:   logger,
		regime:   regime,
		analyzer: analyzer,
		configs:  configs,
		rl:       ratelimit.New(),
	}
}

// SetCache enables response caching for classification reads.
func (h *Handler) SetCache(c icache.BytesCache) { h.cache = c }

// SetHealthCheck wires a backend liveness probe into /health.
func (h *Handler) SetHealthCheck(fn func() error) { h.health = fn }

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/market-regime/configs", h.ListConfigs)
	g.PUT("/market-regime/configs/:id", h.UpdateConfig)
	g.POST("/market-regime/batch", h.ClassifyBatch)
	g.GET("/market-regime/:symbol", h.Classify)
	g.GET("/signal-analysis/:symbol", h.Analyze)
}

func (h *Handler) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Classify(c echo.Context) error {
	start := time.Now()
	endpoint := "classify"
	defer func() { metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	params := usecase.ClassifyParams{
		Symbol:    strings.ToUpper(req.Symbol),
		Timeframe: req.Timeframe,
		ConfigID:  req.ConfigID,
	}
	ttl := classificationCacheTTL
	if req.AsOf != "" {
		t, ok := xhttp.ParseTime(req.AsOf)
		if !ok {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code: "ERR_INVALID", Field: "as_of", Message: "as_of must be RFC3339 or a unix timestamp",
			}})
		}
		params.AsOf = t
		ttl = historicalCacheTTL
	}

	cacheKey := classifyCacheKey(params)
	if b, ok := h.cacheGet(cacheKey); ok {
		return jsonBlob(c, b)
	}

	res, err := h.regime.Classify(c.Request().Context(), params)
	if err != nil {
		metrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("classify usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.cacheSet(cacheKey, res, ttl)
	return xhttp.SuccessResponse(c, res)
}

func (h *Handler) ClassifyBatch(c echo.Context) error {
	start := time.Now()
	endpoint := "classify_batch"
	defer func() { metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ClassifyBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	params := usecase.ClassifyParams{
		Timeframe: req.Timeframe,
		ConfigID:  req.ConfigID,
	}
	if req.AsOf != "" {
		t, ok := xhttp.ParseTime(req.AsOf)
		if !ok {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code: "ERR_INVALID", Field: "as_of", Message: "as_of must be RFC3339 or a unix timestamp",
			}})
		}
		params.AsOf = t
	}

	symbols := make([]string, 0, len(req.Symbols))
	for _, s := range req.Symbols {
		symbols = append(symbols, strings.ToUpper(s))
	}

	res, err := h.regime.ClassifyBatch(c.Request().Context(), symbols, params)
	if err != nil {
		metrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("classify batch usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *Handler) ListConfigs(c echo.Context) error {
	configs, err := h.configs.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list configs error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, configs, int64(len(configs)))
}

func (h *Handler) UpdateConfig(c echo.Context) error {
	req := &models.ConfigUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	updated, err := h.configs.Update(c.Request().Context(), req.ID, req.ThresholdPatch)
	if err != nil {
		if errors.Is(err, domrepo.ErrConfigNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("config %d not found", req.ID))
		}
		h.logger.Error("update config error", xlogger.Int64("id", req.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, updated)
}

// --- cache helpers ---

func classifyCacheKey(p usecase.ClassifyParams) string {
	cfg := "default"
	if p.ConfigID != nil {
		cfg = fmt.Sprintf("%d", *p.ConfigID)
	}
	asOf := "now"
	if !p.AsOf.IsZero() {
		asOf = fmt.Sprintf("%d", p.AsOf.UnixMilli())
	}
	return "regime:" + p.Symbol + ":" + p.Timeframe + ":" + cfg + ":" + asOf
}

func (h *Handler) cacheGet(key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.logger.Warn("cache get error", xlogger.String("key", key), xlogger.Error(err))
		return nil, false
	}
	return b, ok
}

func (h *Handler) cacheSet(key string, v interface{}, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	b, err := json.Marshal(xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    v,
	})
	if err != nil {
		return
	}
	if err := h.cache.SetBytes(key, b, ttl); err != nil {
		h.logger.Warn("cache set error", xlogger.String("key", key), xlogger.Error(err))
	}
}

func jsonBlob(c echo.Context, b []byte) error {
	return c.JSONBlob(http.StatusOK, b)
}
