package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

func TestClassify_AuthErrors(t *testing.T) {
	for _, status := range []int{401, 403} {
		ok, typed := Classify(status, http.Header{}, nil, nil)
		if ok || typed.Kind != domain.KindAuthError {
			t.Fatalf("status %d: expected AuthError, got ok=%v typed=%+v", status, ok, typed)
		}
	}
}

func TestClassify_429WithKeyMarker_IsRateLimited(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "5")
	ok, typed := Classify(429, h, []byte(`{"error":"Rate limit exceeded for this API key"}`), nil)
	if ok || typed.Kind != domain.KindRateLimited {
		t.Fatalf("expected RateLimited, got ok=%v typed=%+v", ok, typed)
	}
	if typed.RetryAfter != 5*time.Second {
		t.Fatalf("expected retryAfter=5s, got %v", typed.RetryAfter)
	}
}

func TestClassify_429WithQuotaMarker_IsRateLimited(t *testing.T) {
	ok, typed := Classify(429, http.Header{}, []byte(`{"error":"per key quota exceeded"}`), nil)
	if ok || typed.Kind != domain.KindRateLimited {
		t.Fatalf("expected RateLimited, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_429WithoutKeyMarker_IsServiceOverload(t *testing.T) {
	ok, typed := Classify(429, http.Header{}, []byte(`{"error":"too many requests"}`), nil)
	if ok || typed.Kind != domain.KindServiceOverload {
		t.Fatalf("expected ServiceOverload, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_503_IsServiceOverload(t *testing.T) {
	ok, typed := Classify(503, http.Header{}, nil, nil)
	if ok || typed.Kind != domain.KindServiceOverload {
		t.Fatalf("expected ServiceOverload, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_Other5xx_IsServerError(t *testing.T) {
	ok, typed := Classify(502, http.Header{}, nil, nil)
	if ok || typed.Kind != domain.KindServerError {
		t.Fatalf("expected ServerError, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_Other4xx_IsValidationError(t *testing.T) {
	ok, typed := Classify(400, http.Header{}, nil, nil)
	if ok || typed.Kind != domain.KindValidationError {
		t.Fatalf("expected ValidationError, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_2xx_IsOk(t *testing.T) {
	ok, typed := Classify(200, http.Header{}, []byte(`{}`), nil)
	if !ok || typed != nil {
		t.Fatalf("expected ok with no typed error, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_DeadlineExceeded_IsTimeout(t *testing.T) {
	ok, typed := Classify(0, http.Header{}, nil, context.DeadlineExceeded)
	if ok || typed.Kind != domain.KindTimeout {
		t.Fatalf("expected Timeout, got ok=%v typed=%+v", ok, typed)
	}
}

func TestClassify_TransportFailure_IsNetworkError(t *testing.T) {
	ok, typed := Classify(0, http.Header{}, nil, context.Canceled)
	if ok || typed.Kind != domain.KindNetworkError {
		t.Fatalf("expected NetworkError, got ok=%v typed=%+v", ok, typed)
	}
}
