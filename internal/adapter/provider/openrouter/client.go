// Package openrouter implements the ports.ProviderClient for OpenRouter's
// OpenAI-compatible chat completions API (C5).
package openrouter

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
	"github.com/thushan-yassen/egressgw/internal/util"
)

type Client struct {
	httpClient  *http.Client
	baseURL     string
	key         domain.Key
	modelText   string
	modelVision string
	maxRetries  int
	referer     string
	title       string
}

type Config struct {
	HTTPClient  *http.Client
	BaseURL     string
	Key         domain.Key
	ModelText   string
	ModelVision string
	MaxRetries  int
	Referer     string
	Title       string
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = constants.OpenRouterDefaultBaseURL
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
		referer:     cfg.Referer,
		title:       cfg.Title,
	}
}

func (c *Client) Provider() domain.Provider { return domain.ProviderOpenRouterV1 }
func (c *Client) KeySuffix() string         { return c.key.Suffix() }

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

func (c *Client) BuildText(fp domain.RequestFingerprint) ([]byte, error) {
	return c.build(fp, c.modelText, nil)
}

func (c *Client) BuildVision(fp domain.RequestFingerprint) ([]byte, error) {
	if len(fp.Image) == 0 {
		return nil, fmt.Errorf("openrouter: vision call requires an image")
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", fp.ImageMime, base64.StdEncoding.EncodeToString(fp.Image))
	return c.build(fp, c.modelVision, &dataURL)
}

func (c *Client) build(fp domain.RequestFingerprint, model string, imageDataURL *string) ([]byte, error) {
	var messages []message
	if fp.SystemInstructions != "" {
		messages = append(messages, message{Role: "system", Content: fp.SystemInstructions})
	}

	if imageDataURL != nil {
		messages = append(messages, message{Role: "user", Content: []contentPart{
			{Type: "text", Text: fp.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: *imageDataURL}},
		}})
	} else {
		messages = append(messages, message{Role: "user", Content: fp.Prompt})
	}

	req := chatCompletionRequest{Model: model, Messages: messages}
	if fp.ResponseMime == "application/json" {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return json.Marshal(req)
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) ParseResponse(body []byte) (domain.Response, error) {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Response{}, fmt.Errorf("openrouter: decoding response: %w", err)
	}

	var text string
	if len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Message.Content
	}

	return domain.Response{Text: text, Raw: body}, nil
}

func (c *Client) endpoint() string {
	return util.JoinURLPath(c.baseURL, "/chat/completions")
}

func (c *Client) Call(ctx context.Context, fp domain.RequestFingerprint) (domain.Response, *domain.TypedError) {
	var body []byte
	var err error
	if fp.Method == domain.MethodVision {
		body, err = c.BuildVision(fp)
	} else {
		body, err = c.BuildText(fp)
	}
	if err != nil {
		return domain.Response{}, domain.NewTypedError(domain.KindValidationError, err.Error())
	}

	resp, typed := providerutil.CallWithRetry(ctx, c.maxRetries, func(ctx context.Context) (domain.Response, *domain.TypedError) {
		return c.doOnce(ctx, body)
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

func (c *Client) doOnce(ctx context.Context, body []byte) (domain.Response, *domain.TypedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return domain.Response{}, domain.NewTypedError(domain.KindValidationError, "building request").WithCause(err)
	}
	req.Header.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	req.Header.Set(constants.HeaderAuthorization, "Bearer "+c.key.Secret)
	if c.referer != "" {
		req.Header.Set(constants.OpenRouterRefererHeader, c.referer)
	}
	if c.title != "" {
		req.Header.Set(constants.OpenRouterTitleHeader, c.title)
	}

	return providerutil.Do(c.httpClient, req, c.key.Suffix())
}
