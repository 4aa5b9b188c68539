package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	models "PerpLens/internal/domain/models"
	"PerpLens/internal/service/metrics"
	"PerpLens/internal/usecase"
	xhttp "PerpLens/pkg/http"
	xlogger "PerpLens/pkg/logger"

	"github.com/labstack/echo/v4"
)

const analysisCacheTTL = 30 * time.Second

// Analyze runs statistical threshold analysis for one symbol/metric pair.
// Results are cached briefly and the endpoint is rate limited per client
// because a single call scans up to 90 days of raw history.
func (h *Handler) Analyze(c echo.Context) error {
	start := time.Now()
	endpoint := "analysis"
	defer func() { metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if !h.rl.Allow(c.RealIP()+":"+endpoint, 5, 2) {
		metrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	params := usecase.AnalyzeParams{
		Symbol:    strings.ToUpper(req.Symbol),
		Metric:    req.Metric,
		Timeframe: req.Timeframe,
		Days:      req.Days,
	}

	cacheKey := analyzeCacheKey(params)
	if b, ok := h.cacheGet(cacheKey); ok {
		return jsonBlob(c, b)
	}

	res, err := h.analyzer.AnalyzeMetric(c.Request().Context(), params)
	if err != nil {
		if errors.Is(err, usecase.ErrUnsupportedMetric) || errors.Is(err, usecase.ErrUnsupportedPeriod) {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code: "ERR_INVALID", Field: "metric", Message: err.Error(),
			}})
		}
		metrics.AnalyticsErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("analysis usecase error",
			xlogger.String("symbol", params.Symbol),
			xlogger.String("metric", params.Metric),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	h.cacheSet(cacheKey, res, analysisCacheTTL)
	return xhttp.SuccessResponse(c, res)
}

func analyzeCacheKey(p usecase.AnalyzeParams) string {
	return "analysis:" + p.Symbol + ":" + p.Metric + ":" + p.Timeframe + ":" + strconv.Itoa(p.Days)
}
