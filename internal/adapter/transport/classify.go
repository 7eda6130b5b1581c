package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

// rateLimitBodyMarkers are substrings that, when present in a 429 response
// body, indicate the upstream is signalling a per-key/quota exhaustion
// (RateLimited) as opposed to general capacity pressure (ServiceOverload).
var rateLimitBodyMarkers = []string{"quota", "api key", "rate limit", "per key"}

// Classify maps a completed HTTP round trip (or transport-level failure) to
// the typed error taxonomy every provider client and the pool dispatcher
// share. ok is true only for a successful, parseable 2xx JSON response.
func Classify(status int, header http.Header, body []byte, roundTripErr error) (ok bool, typed *domain.TypedError) {
	if roundTripErr != nil {
		if errors.Is(roundTripErr, context.DeadlineExceeded) {
			return false, domain.NewTypedError(domain.KindTimeout, "request deadline exceeded").WithCause(roundTripErr)
		}
		return false, domain.NewTypedError(domain.KindNetworkError, "transport failure").WithCause(roundTripErr)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, domain.NewTypedError(domain.KindAuthError, "upstream rejected credentials").WithStatus(status)

	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(header)
		if looksLikeKeyRateLimit(body) {
			return false, domain.NewTypedError(domain.KindRateLimited, "per-key rate limit hit").
				WithStatus(status).WithRetryAfter(retryAfter)
		}
		return false, domain.NewTypedError(domain.KindServiceOverload, "upstream capacity exhausted").WithStatus(status)

	case status == http.StatusServiceUnavailable:
		return false, domain.NewTypedError(domain.KindServiceOverload, "upstream unavailable").WithStatus(status)

	case status >= 500:
		return false, domain.NewTypedError(domain.KindServerError, "upstream server error").WithStatus(status)

	case status >= 400:
		return false, domain.NewTypedError(domain.KindValidationError, "request rejected by upstream").WithStatus(status)

	case status >= 200 && status < 300:
		if !json.Valid(body) {
			return false, domain.NewTypedError(domain.KindValidationError, "non-JSON success response").WithStatus(status)
		}
		return true, nil

	default:
		return false, domain.NewTypedError(domain.KindValidationError, "unexpected response status").WithStatus(status)
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func looksLikeKeyRateLimit(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range rateLimitBodyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
