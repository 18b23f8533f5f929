package errors

const (
	HttpInternalError          = "internal_error"
	HttpInvalidRequestError    = "invalid_request"
	HttpInvalidRangeError      = "invalid_range"
	HttpUnknownMetricTypeError = "unknown_metric_type"
	HttpInvalidCursorError     = "invalid_cursor"
	HttpSourceUnavailableError = "source_unavailable"
	HttpTimeoutError           = "timeout"
)

// ErrorResponse is the error response body for query errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
