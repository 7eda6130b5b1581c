package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/thushan-yassen/egressgw/internal/core/domain"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(Config{
		HTTPClient:  srv.Client(),
		BaseURL:     srv.URL,
		Key:         domain.Key{Secret: "test-key-123"},
		ModelText:   "gemini-2.0-flash",
		ModelVision: "gemini-2.0-flash",
		MaxRetries:  1,
	})
}

func TestCall_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key-123" {
			t.Errorf("expected key query param, got %s", r.URL.Query().Get("key"))
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, typed := c.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	if typed != nil {
		t.Fatalf("unexpected error: %v", typed)
	}
	if resp.Text != "hello" {
		t.Fatalf("expected text 'hello', got %q", resp.Text)
	}
}

func TestCall_AuthErrorDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.maxRetries = 3
	_, typed := c.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	if typed == nil || typed.Kind != domain.KindAuthError {
		t.Fatalf("expected AuthError, got %+v", typed)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for AuthError, got %d", attempts)
	}
}

func TestCall_ServerErrorRetriesThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.maxRetries = 2

	start := time.Now()
	_, typed := c.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	elapsed := time.Since(start)

	if typed == nil || typed.Kind != domain.KindServerError {
		t.Fatalf("expected ServerError, got %+v", typed)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if elapsed < 900*time.Millisecond {
		t.Fatalf("expected the 1s exponential backoff between attempts, elapsed only %v", elapsed)
	}
}

func TestBuildVision_RequiresImage(t *testing.T) {
	c := New(Config{Key: domain.Key{Secret: "k"}})
	if _, err := c.BuildVision(domain.RequestFingerprint{Prompt: "hi"}); err == nil {
		t.Fatal("expected an error when no image is attached to a vision request")
	}
}
