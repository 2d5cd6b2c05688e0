//go:build e2e

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/deadletter"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/marker"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/merchant"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/organization"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/progress"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/purchase"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/resource"
	"github.com/coursekit/coursekit-backend/internal/adapter/postgres/testhelper"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/convertkit"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/deepgram"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/slack"
	"github.com/coursekit/coursekit-backend/internal/adapter/provider/stripe"
	authpkg "github.com/coursekit/coursekit-backend/internal/auth"
	"github.com/coursekit/coursekit-backend/internal/engine"
	"github.com/coursekit/coursekit-backend/internal/event"
	"github.com/coursekit/coursekit-backend/internal/handler"
	"github.com/coursekit/coursekit-backend/internal/provider"
	"github.com/coursekit/coursekit-backend/internal/transport/middleware"
	"github.com/coursekit/coursekit-backend/internal/transport/rest"
)

const testJWTSecret = "e2e-secret-at-least-32-chars-long-for-security"

// vendorStub is a fake vendor HTTP API that counts requests per path.
type vendorStub struct {
	srv *httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

func newVendorStub(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *vendorStub {
	t.Helper()
	vs := &vendorStub{calls: make(map[string]int)}
	vs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vs.mu.Lock()
		vs.calls[r.URL.Path]++
		vs.mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(vs.srv.Close)
	return vs
}

func (vs *vendorStub) count(path string) int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.calls[path]
}

// stubChat is an in-process chat provider; selector "broken" fails
// permanently so tests can force dead letters.
type stubChat struct {
	mu    sync.Mutex
	calls int
}

func (c *stubChat) Complete(_ context.Context, messages []provider.Message, selector string) (provider.Completion, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if selector == "broken" {
		return provider.Completion{}, provider.Permanent("chat.complete", fmt.Errorf("unknown workflow %q", selector))
	}
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return provider.Completion{Text: "summary of: " + last, Model: "stub"}, nil
}

// memInflight is a process-local stand-in for the Redis in-flight store.
type memInflight struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memInflight) TryAcquire(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memInflight) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// testServer is a fully wired pipeline over a real database with stubbed
// vendors: HTTP ingress, engine worker pool and repositories all live.
type testServer struct {
	URL    string
	Client *http.Client
	Pool   *pgxpool.Pool

	Manager  *authpkg.JWTManager
	Deepgram *vendorStub
	Kit      *vendorStub
	Stripe   *vendorStub
	Slack    *vendorStub
	Chat     *stubChat
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	pool := testhelper.SetupTestDB(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	dg := newVendorStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"request_id": "dg-job-1"}) //nolint:errcheck
	})
	kit := newVendorStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/subscribers" {
			fmt.Fprint(w, `{"subscriber": {"id": 4711}}`)
			return
		}
		fmt.Fprint(w, `{}`)
	})
	st := newVendorStub(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "re_1", "status": "succeeded"}`)
	})
	sl := newVendorStub(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	chat := &stubChat{}

	registry := event.DefaultRegistry()
	queue := engine.NewMemoryQueue(64)
	sink := deadletter.New(pool)
	eng := engine.New(engine.Config{
		Workers:         2,
		MaxAttempts:     3,
		BaseBackoff:     5 * time.Millisecond,
		MaxBackoff:      50 * time.Millisecond,
		HandlerDeadline: 5 * time.Second,
	}, queue, sink, log)

	handlers := handler.New(
		handler.Config{
			TranscriptCallbackURL: "http://callback.test/webhooks/transcription",
			OpsChannel:            "#test-ops",
		},
		log,
		resource.New(pool),
		progress.New(pool),
		purchase.New(pool),
		merchant.New(pool),
		organization.New(pool),
		marker.New(pool),
		&memInflight{},
		deepgram.NewProviderWithURL(dg.srv.URL, "dg-key", log),
		convertkit.NewProviderWithURL(kit.srv.URL, "kit-key", log),
		chat,
		stripe.NewProviderWithURL(st.srv.URL, "sk-key", log),
		slack.NewProvider(sl.srv.URL, log),
		eng,
	)
	handlers.Register(eng)

	manager := authpkg.NewJWTManager(testJWTSecret, "coursekit-e2e")

	router := rest.NewRouter(rest.RouterDeps{
		Health:     rest.NewHealthHandler(pool, "e2e"),
		Events:     rest.NewEventHandler(registry, eng, log),
		Webhooks:   rest.NewWebhookHandler(registry, eng, log),
		DeadLetter: rest.NewDeadLetterHandler(sink, registry, eng, log),
		Resources:  rest.NewResourceHandler(resource.New(pool), log),
		Auth:       middleware.Auth(manager),
		Log:        log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testServer{
		URL:      srv.URL,
		Client:   srv.Client(),
		Pool:     pool,
		Manager:  manager,
		Deepgram: dg,
		Kit:      kit,
		Stripe:   st,
		Slack:    sl,
		Chat:     chat,
	}
}

func (ts *testServer) serviceToken(t *testing.T, role string) string {
	t.Helper()
	token, err := ts.Manager.Generate("e2e-suite", role, time.Minute)
	require.NoError(t, err)
	return token
}

// publish POSTs one event envelope to /events with a service token.
func (ts *testServer) publish(t *testing.T, name string, data any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{"name": name, "data": json.RawMessage(raw)})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/events", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ts.serviceToken(t, "service"))

	resp, err := ts.Client.Do(req)
	require.NoError(t, err)
	return resp
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
