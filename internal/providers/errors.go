package providers

import (
	"net/http"
	"strings"
)

// extractErrorMetadata pulls an HTTP status code and a Retry-After value out
// of an SDK error. The SDKs flatten transport failures into plain error
// strings, so this is substring matching over the message text; a zero status
// means nothing structured could be recovered.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	errStr := err.Error()
	var status int
	switch {
	case strings.Contains(errStr, "429"):
		status = http.StatusTooManyRequests
	case strings.Contains(errStr, "500"):
		status = http.StatusInternalServerError
	case strings.Contains(errStr, "502"):
		status = http.StatusBadGateway
	case strings.Contains(errStr, "503"):
		status = http.StatusServiceUnavailable
	case strings.Contains(errStr, "504"):
		status = http.StatusGatewayTimeout
	case strings.Contains(errStr, "529"):
		// Anthropic's overloaded_error.
		status = http.StatusServiceUnavailable
	case strings.Contains(errStr, "401"):
		status = http.StatusUnauthorized
	case strings.Contains(errStr, "403"):
		status = http.StatusForbidden
	case strings.Contains(errStr, "404"):
		status = http.StatusNotFound
	case strings.Contains(errStr, "400"):
		status = http.StatusBadRequest
	case strings.Contains(errStr, "402"):
		status = http.StatusPaymentRequired
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	if idx := strings.Index(lower, "retry-after"); idx != -1 {
		fields := strings.Fields(errStr[idx+len("retry-after"):])
		if len(fields) > 0 {
			retryAfter = strings.Trim(fields[0], ":,")
		}
	} else if idx := strings.Index(lower, "retry after"); idx != -1 {
		fields := strings.Fields(errStr[idx+len("retry after"):])
		if len(fields) > 0 {
			retryAfter = strings.Trim(fields[0], ":,")
		}
	}

	return status, retryAfter
}
