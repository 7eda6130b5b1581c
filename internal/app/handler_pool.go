package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

type poolCallRequest struct {
	Method             string `json:"method"`
	Prompt             string `json:"prompt"`
	SystemInstructions string `json:"systemInstructions,omitempty"`
	Image              []byte `json:"image,omitempty"`
	ImageMime          string `json:"imageMime,omitempty"`
	ResponseMime       string `json:"responseMime,omitempty"`
	TimeoutSeconds     int    `json:"timeoutSeconds,omitempty"`
}

type poolCallResponse struct {
	Text string `json:"text"`
}

type poolErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// poolCallHandler dispatches a single request through the provider pool
// (C6) and returns its extracted text.
func (a *Application) poolCallHandler(w http.ResponseWriter, r *http.Request) {
	var req poolCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	method := domain.MethodText
	if req.Method == "vision" {
		method = domain.MethodVision
	}

	fp := domain.RequestFingerprint{
		Method:             method,
		Prompt:             req.Prompt,
		SystemInstructions: req.SystemInstructions,
		Image:              req.Image,
		ImageMime:          req.ImageMime,
		ResponseMime:       req.ResponseMime,
	}
	if req.TimeoutSeconds > 0 {
		fp.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	resp, err := a.pool.Call(r.Context(), fp)
	if err != nil {
		a.writePoolError(w, err)
		return
	}

	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(poolCallResponse{Text: resp.Text})
}

func (a *Application) writePoolError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	kind := "unknown"

	var typed *domain.TypedError
	var exhausted *domain.AllKeysExhaustedError
	switch {
	case errors.As(err, &exhausted):
		kind = string(domain.KindAllKeysExhausted)
		if exhausted.Last != nil && exhausted.Last.Status != 0 {
			status = exhausted.Last.Status
		}
	case errors.As(err, &typed):
		kind = string(typed.Kind)
		if typed.Status != 0 {
			status = typed.Status
		}
	}

	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(poolErrorResponse{Kind: kind, Message: err.Error()})
}

// poolStatsHandler reports the per-key snapshot the pool accumulates, keyed
// by key suffix so secrets never leave the process.
func (a *Application) poolStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := a.pool.Stats()
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(stats)
}
