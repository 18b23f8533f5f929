package query

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aevon-lab/healthquery/internal/core/aggregation"
	"github.com/aevon-lab/healthquery/internal/core/cursor"
	httperr "github.com/aevon-lab/healthquery/internal/core/errors"
	"github.com/aevon-lab/healthquery/internal/core/metric"
	"github.com/aevon-lab/healthquery/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all query API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/metrics", s.HandleCatalog)
	r.GET("/v1/metrics/:metric_type/aggregate", s.HandleAggregate)
	r.GET("/v1/metrics/:metric_type/records", s.HandleRecords)
}

// HandleCatalog handles GET /v1/metrics
func (s *Service) HandleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, s.Catalog())
}

// HandleAggregate handles GET /v1/metrics/:metric_type/aggregate
// Query parameters: start, end, granularity, tz, week_start
func (s *Service) HandleAggregate(c *gin.Context) {
	var query struct {
		Start       string `form:"start"`
		End         string `form:"end"`
		Granularity string `form:"granularity"`
		TimeZone    string `form:"tz"`
		WeekStart   string `form:"week_start"`
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	rng, err := parseRange(query.Start, query.End)
	if err != nil {
		writeError(c, "Invalid aggregate query", err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.Aggregate(ctx, AggregateRequest{
		MetricType:  c.Param("metric_type"),
		Range:       rng,
		Granularity: query.Granularity,
		TimeZone:    query.TimeZone,
		WeekStart:   query.WeekStart,
	})
	if err != nil {
		writeError(c, "Failed to aggregate records", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleRecords handles GET /v1/metrics/:metric_type/records
// Query parameters: start, end, limit, cursor, all
func (s *Service) HandleRecords(c *gin.Context) {
	var query struct {
		Start  string `form:"start"`
		End    string `form:"end"`
		Limit  string `form:"limit"`
		Cursor string `form:"cursor"`
		All    string `form:"all"`
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	rng, err := parseRange(query.Start, query.End)
	if err != nil {
		writeError(c, "Invalid records query", err)
		return
	}

	limit := 0
	if query.Limit != "" {
		limit, err = strconv.Atoi(query.Limit)
		if err != nil {
			writeError(c, "Invalid records query", invalidQueryf("limit %q is not an integer", query.Limit))
			return
		}
	}

	all := false
	if query.All != "" {
		all, err = strconv.ParseBool(query.All)
		if err != nil {
			writeError(c, "Invalid records query", invalidQueryf("all %q is not a boolean", query.All))
			return
		}
	}
	if all && (query.Cursor != "" || query.Limit != "") {
		writeError(c, "Invalid records query", invalidQueryf("all=true cannot be combined with limit or cursor"))
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	metricType := c.Param("metric_type")

	var resp *RecordsResponse
	if all {
		resp, err = s.QueryAll(ctx, metricType, rng)
	} else {
		resp, err = s.QueryPage(ctx, RecordsRequest{
			MetricType: metricType,
			Range:      rng,
			Limit:      limit,
			Cursor:     query.Cursor,
		})
	}
	if err != nil {
		writeError(c, "Failed to query records", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Service) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

// parseRange reads RFC 3339 instants. Missing or unparseable values are range errors.
func parseRange(start, end string) (aggregation.TimeRange, error) {
	if start == "" || end == "" {
		return aggregation.TimeRange{}, invalidQuery(fmt.Errorf("%w: start and end are required", aggregation.ErrInvalidRange))
	}

	from, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return aggregation.TimeRange{}, invalidQuery(fmt.Errorf("%w: start %q is not RFC 3339", aggregation.ErrInvalidRange, start))
	}
	to, err := time.Parse(time.RFC3339Nano, end)
	if err != nil {
		return aggregation.TimeRange{}, invalidQuery(fmt.Errorf("%w: end %q is not RFC 3339", aggregation.ErrInvalidRange, end))
	}

	return aggregation.TimeRange{Start: from, End: to}, nil
}

// writeError maps the error taxonomy onto HTTP statuses. Specific causes are
// checked before the ErrInvalidQuery umbrella.
func writeError(c *gin.Context, message string, err error) {
	status, errorType := http.StatusInternalServerError, httperr.HttpInternalError

	switch {
	case errors.Is(err, cursor.ErrInvalidCursor):
		status, errorType = http.StatusBadRequest, httperr.HttpInvalidCursorError
	case errors.Is(err, aggregation.ErrInvalidRange):
		status, errorType = http.StatusBadRequest, httperr.HttpInvalidRangeError
	case errors.Is(err, metric.ErrUnknownMetricType):
		status, errorType = http.StatusNotFound, httperr.HttpUnknownMetricTypeError
	case errors.Is(err, ErrInvalidQuery):
		status, errorType = http.StatusBadRequest, httperr.HttpInvalidRequestError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, errorType = http.StatusGatewayTimeout, httperr.HttpTimeoutError
	case errors.Is(err, storage.ErrSourceUnavailable):
		status, errorType = http.StatusServiceUnavailable, httperr.HttpSourceUnavailableError
	}

	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
		Details:   err.Error(),
	})
}
