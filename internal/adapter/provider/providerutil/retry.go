// Package providerutil holds the HTTP dispatch and local retry loop shared
// by every provider client (C5), so Gemini and OpenRouter don't each
// reimplement backoff and typed-error classification.
package providerutil

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/thushan-yassen/egressgw/internal/adapter/transport"
	"github.com/thushan-yassen/egressgw/internal/core/constants"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

// CallFunc performs a single HTTP attempt and returns its classified result.
type CallFunc func(ctx context.Context) (domain.Response, *domain.TypedError)

// CallWithRetry runs fn up to maxRetries times (at least once), sleeping according to the
// error kind between attempts: RateLimited waits the upstream's retryAfter
// (or 2^attempt seconds when absent), ServiceOverload waits a fixed 30s, and
// ServerError/Timeout back off exponentially. AuthError, ValidationError and
// NetworkError never retry.
func CallWithRetry(ctx context.Context, maxRetries int, fn CallFunc) (domain.Response, *domain.TypedError) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var last *domain.TypedError
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, typed := fn(ctx)
		if typed == nil {
			return resp, nil
		}
		last = typed

		if !typed.Retriable() || attempt == maxRetries-1 {
			break
		}

		wait := backoffFor(typed, attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Response{}, domain.NewTypedError(domain.KindTimeout, "context cancelled during retry backoff").WithCause(ctx.Err())
		case <-timer.C:
		}
	}
	return domain.Response{}, last
}

func backoffFor(typed *domain.TypedError, attempt int) time.Duration {
	switch typed.Kind {
	case domain.KindRateLimited:
		if typed.RetryAfter > 0 {
			return typed.RetryAfter
		}
		return exponential(attempt)
	case domain.KindServiceOverload:
		return constants.ServiceOverloadSleep
	default: // ServerError, Timeout
		return exponential(attempt)
	}
}

func exponential(attempt int) time.Duration {
	d := constants.RetryBackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do executes req, reads the body and classifies the outcome via
// transport.Classify, tagging the resulting TypedError with keySuffix.
func Do(client *http.Client, req *http.Request, keySuffix string) (domain.Response, *domain.TypedError) {
	resp, err := client.Do(req)
	if err != nil {
		_, typed := transport.Classify(0, nil, nil, err)
		return domain.Response{}, typed.WithKeySuffix(keySuffix)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		_, typed := transport.Classify(0, nil, nil, readErr)
		return domain.Response{}, typed.WithKeySuffix(keySuffix)
	}

	ok, typed := transport.Classify(resp.StatusCode, resp.Header, body, nil)
	if !ok {
		return domain.Response{}, typed.WithKeySuffix(keySuffix)
	}
	return domain.Response{Raw: body}, nil
}
