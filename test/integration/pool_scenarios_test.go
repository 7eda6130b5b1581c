// Package integration exercises the pool client, transport classifier and
// route programmer together, wired the way the running gateway wires them,
// against the literal end-to-end scenarios in spec.md's testable properties.
package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thushan-yassen/egressgw/internal/adapter/breaker"
	"github.com/thushan-yassen/egressgw/internal/adapter/keypool"
	"github.com/thushan-yassen/egressgw/internal/adapter/keystate"
	"github.com/thushan-yassen/egressgw/internal/adapter/pool"
	"github.com/thushan-yassen/egressgw/internal/adapter/provider/openrouter"
	"github.com/thushan-yassen/egressgw/internal/adapter/ratelimit"
	"github.com/thushan-yassen/egressgw/internal/core/domain"
	"github.com/thushan-yassen/egressgw/internal/core/ports"
)

// scriptedHandler replays one stub response per call, holding the last one
// for any call beyond the scripted sequence.
type scriptedHandler struct {
	n         atomic.Int32
	responses []func(w http.ResponseWriter)
}

func (h *scriptedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i := int(h.n.Add(1)) - 1
	if i >= len(h.responses) {
		i = len(h.responses) - 1
	}
	h.responses[i](w)
}

func (h *scriptedHandler) calls() int { return int(h.n.Load()) }

func jsonResponse(status int, body string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

// keyedFactory builds an openrouter client per key, pointed at that key's own
// stub server, mirroring how the real factory builds one client per key but
// stubbed instead of hitting OpenRouter.
type keyedFactory struct {
	servers map[string]*httptest.Server
}

func (f *keyedFactory) NewClient(key domain.Key) (ports.ProviderClient, error) {
	srv := f.servers[key.Secret]
	return openrouter.New(openrouter.Config{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Key:        key,
		ModelText:  "test-model",
		MaxRetries: 1,
	}), nil
}

func wireUpPool(t *testing.T, servers map[string]*httptest.Server, failureThreshold int, perKeyMaxRetries int) (*pool.Client, *breaker.Breaker) {
	t.Helper()
	keys := make([]domain.Key, 0, len(servers))
	for secret := range servers {
		keys = append(keys, domain.Key{Secret: secret, Order: len(keys)})
	}
	// Order deterministically so round-robin is reproducible across test runs.
	orderOf := map[string]int{"key-a": 0, "key-b": 1, "key-c": 2}
	for i := range keys {
		if o, ok := orderOf[keys[i].Secret]; ok {
			keys[i].Order = o
		}
	}

	store := keystate.NewStore()
	kp := keypool.New(keys, ports.StrategyRoundRobin, store)
	b := breaker.New(store, failureThreshold, time.Minute)
	rl := ratelimit.New(store, 10, 10) // generous: qps/burst are not under test here

	client := pool.New(pool.Config{
		Selector:         kp,
		Pool:             kp,
		Limiter:          rl,
		Breaker:          b,
		Factory:          &keyedFactory{servers: servers},
		PerKeyMaxRetries: perKeyMaxRetries,
	})
	return client, b
}

// Scenario 1: three keys, one quota-exhausted. The exhausted key's 429 opens
// its breaker via the rate-limit fast-track, but the call still succeeds on
// the next key in the ring.
func TestScenario_ThreeKeysOneQuotaExhausted(t *testing.T) {
	a := httptest.NewServer(&scriptedHandler{responses: []func(http.ResponseWriter){
		jsonResponse(http.StatusTooManyRequests, `{"error":"quota exceeded"}`),
	}})
	defer a.Close()
	b := httptest.NewServer(&scriptedHandler{responses: []func(http.ResponseWriter){
		jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`),
	}})
	defer b.Close()
	c := httptest.NewServer(&scriptedHandler{responses: []func(http.ResponseWriter){
		jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"unused"}}]}`),
	}})
	defer c.Close()

	servers := map[string]*httptest.Server{"key-a": a, "key-b": b, "key-c": c}
	// failureThreshold=3 so a single RateLimited failure (weight 3) trips the
	// breaker immediately, matching the "three-hit fast-track" this module
	// implements by weighting the failure rather than recording it thrice.
	client, br := wireUpPool(t, servers, 3, 1)

	resp, err := client.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected response %q, got %q", "ok", resp.Text)
	}

	if br.State("key-a") != domain.BreakerOpen {
		t.Fatalf("expected key-a's breaker to be Open after the rate-limit fast-track, got %s", br.State("key-a"))
	}

	stats := client.Stats()
	keyA := domain.Key{Secret: "key-a"}.Suffix()
	keyB := domain.Key{Secret: "key-b"}.Suffix()
	if stats[keyA].TotalFailures < 1 {
		t.Fatalf("expected key-a to record at least one failure, got %+v", stats[keyA])
	}
	if stats[keyB].TotalSuccesses != 1 {
		t.Fatalf("expected key-b to record exactly one success, got %+v", stats[keyB])
	}
}

// Scenario 2: a single key returns a general-capacity 429 (no key marker),
// then succeeds. ServiceOverload never touches the breaker, and the pool
// sleeps the fixed ServiceOverloadSleep between the two rotations onto the
// same (and only) key.
func TestScenario_ServiceOverloadThenSuccessSameKey(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps the full 30s ServiceOverload backoff; skipped in short mode")
	}

	srv := httptest.NewServer(&scriptedHandler{responses: []func(http.ResponseWriter){
		jsonResponse(http.StatusTooManyRequests, `{"error":"The service is temporarily unavailable"}`),
		jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`),
	}})
	defer srv.Close()

	servers := map[string]*httptest.Server{"key-a": srv}
	client, br := wireUpPool(t, servers, 5, 2)

	start := time.Now()
	resp, err := client.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected response %q, got %q", "ok", resp.Text)
	}
	if elapsed < 28*time.Second {
		t.Fatalf("expected a ~30s sleep between attempts, only waited %v", elapsed)
	}
	if br.State("key-a") != domain.BreakerClosed {
		t.Fatalf("expected key-a's breaker to remain Closed (ServiceOverload isn't the key's fault), got %s", br.State("key-a"))
	}

	stats := client.Stats()
	keyA := domain.Key{Secret: "key-a"}.Suffix()
	if stats[keyA].TotalFailures != 1 {
		t.Fatalf("expected one recorded failure, got %+v", stats[keyA])
	}
}

// Scenario 3: an auth error is fatal. The pool must return AuthError
// immediately without ever dispatching to the second key.
func TestScenario_AuthErrorIsFatal(t *testing.T) {
	a := httptest.NewServer(&scriptedHandler{responses: []func(http.ResponseWriter){
		func(w http.ResponseWriter) { w.WriteHeader(http.StatusUnauthorized) },
	}})
	defer a.Close()
	bHandler := &scriptedHandler{responses: []func(http.ResponseWriter){
		jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"should never be seen"}}]}`),
	}}
	b := httptest.NewServer(bHandler)
	defer b.Close()

	servers := map[string]*httptest.Server{"key-a": a, "key-b": b}
	client, _ := wireUpPool(t, servers, 5, 1)

	_, err := client.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	typed, ok := err.(*domain.TypedError)
	if !ok || typed.Kind != domain.KindAuthError {
		t.Fatalf("expected a raw AuthError, got %T: %v", err, err)
	}
	if bHandler.calls() != 0 {
		t.Fatalf("expected key-b never to be dispatched to, got %d calls", bHandler.calls())
	}

	stats := client.Stats()
	keyB := domain.Key{Secret: "key-b"}.Suffix()
	if stats[keyB].TotalRequests != 0 {
		t.Fatalf("expected key-b to record zero requests, got %+v", stats[keyB])
	}
}

// Scenario 4: a single key times out three times, then succeeds. The
// provider-client-level retry loop backs off exponentially: 1s, 2s, 4s.
func TestScenario_TimeoutExponentialBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps the full 1s+2s+4s backoff ladder; skipped in short mode")
	}

	var n atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		i := n.Add(1)
		if i <= 3 {
			// Outlasts the client's own short timeout below, so the round
			// trip is classified as a deadline-exceeded timeout.
			time.Sleep(50 * time.Millisecond)
			return
		}
		jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)(w)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpClient := &http.Client{Timeout: 10 * time.Millisecond}
	key := domain.Key{Secret: "key-a"}
	client := openrouter.New(openrouter.Config{
		HTTPClient: httpClient,
		BaseURL:    srv.URL,
		Key:        key,
		ModelText:  "test-model",
		MaxRetries: 4,
	})

	start := time.Now()
	resp, typed := client.Call(context.Background(), domain.RequestFingerprint{Prompt: "hi"})
	elapsed := time.Since(start)
	if typed != nil {
		t.Fatalf("unexpected error: %v", typed)
	}
	if resp.Text != "ok" {
		t.Fatalf("expected response %q, got %q", "ok", resp.Text)
	}
	// 1s + 2s + 4s between the four attempts, minus the short per-attempt
	// client timeouts that precede each backoff.
	if elapsed < 6*time.Second {
		t.Fatalf("expected the 1s/2s/4s backoff ladder to elapse, only waited %v", elapsed)
	}
	if n.Load() != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", n.Load())
	}
}
