// Package provider ties the per-provider wire clients (gemini, openrouter)
// together behind a single ports.ProviderClientFactory so the pool client
// (C6) never needs provider-specific construction logic.
package provider

import (
	"fmt"
	"net/http"

	"github.com/thushan-yassen/egressgw/internal/adapter/provider/gemini"
	"github.com/thushan-yassen/egressgw/internal/adapter/provider/openrouter"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/core/ports"
	"github.com/thushan-yassen/egressgw/internal/util"
)

// GeminiConfig carries the per-provider settings the factory threads into
// every gemini.Client it builds.
type GeminiConfig struct {
	BaseURL     string
	ModelText   string
	ModelVision string
	MaxRetries  int
}

// OpenRouterConfig carries the per-provider settings the factory threads
// into every openrouter.Client it builds.
type OpenRouterConfig struct {
	BaseURL     string
	ModelText   string
	ModelVision string
	MaxRetries  int
	Referer     string
	Title       string
}

// Factory builds a ports.ProviderClient for a key, dispatching on
// key.Provider. All clients it builds share one pooled *http.Client (C4).
type Factory struct {
	httpClient *http.Client
	gemini     GeminiConfig
	openrouter OpenRouterConfig
}

func NewFactory(httpClient *http.Client, geminiCfg GeminiConfig, openrouterCfg OpenRouterConfig) *Factory {
	geminiCfg.BaseURL = util.NormaliseBaseURL(geminiCfg.BaseURL)
	openrouterCfg.BaseURL = util.NormaliseBaseURL(openrouterCfg.BaseURL)
	return &Factory{httpClient: httpClient, gemini: geminiCfg, openrouter: openrouterCfg}
}

func (f *Factory) NewClient(key domain.Key) (ports.ProviderClient, error) {
	switch key.Provider {
	case domain.ProviderGeminiV1Beta:
		return gemini.New(gemini.Config{
			HTTPClient:  f.httpClient,
			BaseURL:     f.gemini.BaseURL,
			Key:         key,
			ModelText:   f.gemini.ModelText,
			ModelVision: f.gemini.ModelVision,
			MaxRetries:  f.gemini.MaxRetries,
		}), nil
	case domain.ProviderOpenRouterV1:
		return openrouter.New(openrouter.Config{
			HTTPClient:  f.httpClient,
			BaseURL:     f.openrouter.BaseURL,
			Key:         key,
			ModelText:   f.openrouter.ModelText,
			ModelVision: f.openrouter.ModelVision,
			MaxRetries:  f.openrouter.MaxRetries,
			Referer:     f.openrouter.Referer,
			Title:       f.openrouter.Title,
		}), nil
	default:
		return nil, fmt.Errorf("provider: unsupported provider %q", key.Provider)
	}
}
