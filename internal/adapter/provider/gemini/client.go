// Package gemini implements the ports.ProviderClient for the Gemini
// generateContent API (C5).
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/thushan-yassen/egressgw/internal/adapter/provider/providerutil"
	"github.com/thushan-yassen/egressgw/internal/core/constants"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

type Client struct {
	httpClient  *http.Client
	baseURL     string
	key         domain.Key
	modelText   string
	modelVision string
	maxRetries  int
}

type Config struct {
	HTTPClient  *http.Client
	BaseURL     string
	Key         domain.Key
	ModelText   string
	ModelVision string
	MaxRetries  int
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = constants.GeminiDefaultBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxRetries
	}
	return &Client{
		httpClient:  cfg.HTTPClient,
		baseURL:     baseURL,
		key:         cfg.Key,
		modelText:   cfg.ModelText,
		modelVision: cfg.ModelVision,
		maxRetries:  maxRetries,
	}
}

func (c *Client) Provider() domain.Provider { return domain.ProviderGeminiV1Beta }
func (c *Client) KeySuffix() string         { return c.key.Suffix() }

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateContentRequest struct {
	Contents          []content          `json:"contents"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig  `json:"generationConfig,omitempty"`
}

func (c *Client) BuildText(fp domain.RequestFingerprint) ([]byte, error) {
	return c.build(fp, nil)
}

func (c *Client) BuildVision(fp domain.RequestFingerprint) ([]byte, error) {
	if len(fp.Image) == 0 {
		return nil, fmt.Errorf("gemini: vision call requires an image")
	}
	img := &inlineData{MimeType: fp.ImageMime, Data: base64.StdEncoding.EncodeToString(fp.Image)}
	return c.build(fp, img)
}

func (c *Client) build(fp domain.RequestFingerprint, img *inlineData) ([]byte, error) {
	parts := []part{{Text: fp.Prompt}}
	if img != nil {
		parts = append(parts, part{InlineData: img})
	}

	req := generateContentRequest{
		Contents: []content{{Parts: parts}},
	}
	if fp.SystemInstructions != "" {
		req.SystemInstruction = &systemInstruction{Parts: []part{{Text: fp.SystemInstructions}}}
	}
	if fp.ResponseMime != "" {
		req.GenerationConfig = &generationConfig{ResponseMimeType: fp.ResponseMime}
	}

	return json.Marshal(req)
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) ParseResponse(body []byte) (domain.Response, error) {
	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Response{}, fmt.Errorf("gemini: decoding response: %w", err)
	}

	var text string
	if len(parsed.Candidates) > 0 {
		for _, p := range parsed.Candidates[0].Content.Parts {
			text += p.Text
		}
	}

	return domain.Response{Text: text, Raw: body}, nil
}

func (c *Client) endpoint(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.key.Secret)
}

func (c *Client) Call(ctx context.Context, fp domain.RequestFingerprint) (domain.Response, *domain.TypedError) {
	model := c.modelText
	var body []byte
	var err error
	if fp.Method == domain.MethodVision {
		model = c.modelVision
		body, err = c.BuildVision(fp)
	} else {
		body, err = c.BuildText(fp)
	}
	if err != nil {
		return domain.Response{}, domain.NewTypedError(domain.KindValidationError, err.Error())
	}

	resp, typed := providerutil.CallWithRetry(ctx, c.maxRetries, func(ctx context.Context) (domain.Response, *domain.TypedError) {
		return c.doOnce(ctx, model, body)
	})
	if typed != nil {
		return domain.Response{}, typed
	}

	parsed, parseErr := c.ParseResponse(resp.Raw)
	if parseErr != nil {
		return domain.Response{}, domain.NewTypedError(domain.KindValidationError, parseErr.Error()).WithKeySuffix(c.key.Suffix())
	}
	return parsed, nil
}

func (c *Client) doOnce(ctx context.Context, model string, body []byte) (domain.Response, *domain.TypedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return domain.Response{}, domain.NewTypedError(domain.KindValidationError, "building request").WithCause(err)
	}
	req.Header.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)

	return providerutil.Do(c.httpClient, req, c.key.Suffix())
}
