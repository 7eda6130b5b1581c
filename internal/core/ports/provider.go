package ports

import (
	"context"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

// ProviderClient speaks one upstream's wire format for a single (provider,
// key) pair. BuildText/BuildVision construct the request body; ParseResponse
// extracts the usable text plus raw bytes. Call does the round trip and
// classifies failures into a domain.TypedError.
type ProviderClient interface {
	Call(ctx context.Context, fp domain.RequestFingerprint) (domain.Response, *domain.TypedError)

	BuildText(fp domain.RequestFingerprint) ([]byte, error)
	BuildVision(fp domain.RequestFingerprint) ([]byte, error)
	ParseResponse(body []byte) (domain.Response, error)

	Provider() domain.Provider
	KeySuffix() string
}

// ProviderClientFactory builds a ProviderClient for a given key, so the key
// pool / pool client never needs provider-specific construction logic.
type ProviderClientFactory interface {
	NewClient(key domain.Key) (ProviderClient, error)
}
