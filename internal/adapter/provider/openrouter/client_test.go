package openrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

func TestCall_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Bearer auth header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("HTTP-Referer") != "https://example.test" {
			t.Errorf("expected HTTP-Referer header, got %q", r.Header.Get("HTTP-Referer"))
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Key:        domain.Key{Secret: "test-key"},
		ModelText:  "openrouter/auto",
		MaxRetries: 1,
		Referer:    "https://example.test",
	})

	resp, typed := c.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	if typed != nil {
		t.Fatalf("unexpected error: %v", typed)
	}
	if resp.Text != "hi there" {
		t.Fatalf("expected text 'hi there', got %q", resp.Text)
	}
}

func TestBuildVision_RequiresImage(t *testing.T) {
	c := New(Config{Key: domain.Key{Secret: "k"}})
	if _, err := c.BuildVision(domain.RequestFingerprint{Prompt: "hi"}); err == nil {
		t.Fatal("expected an error when no image is attached to a vision request")
	}
}
