package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"webchat/internal/domain"
	"webchat/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProvider answers with a scripted sequence of progress updates.
type stubProvider struct {
	mu       sync.Mutex
	progress []string
	resp     *domain.ChatResponse
	err      error
	got      []string
}

func (p *stubProvider) Name() string                      { return "stub" }
func (p *stubProvider) Healthy(ctx context.Context) error { return nil }

func (p *stubProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	p.got = append(p.got, req.Message)
	p.mu.Unlock()
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.ErrEmptyMessage
	}
	for _, text := range p.progress {
		if req.OnProgress != nil {
			req.OnProgress(text)
		}
	}
	return p.resp, p.err
}

func newTestRelay(t *testing.T, p domain.Provider, key string) (*httptest.Server, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	relay := NewRelay(RelayConfig{AccessKey: key, Metrics: reg, Logger: testLogger()})
	srv := httptest.NewServer(relay.Handler(p))
	t.Cleanup(srv.Close)
	return srv, reg
}

func post(t *testing.T, url, key, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url+"/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Access-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRelay_Health(t *testing.T) {
	srv, _ := newTestRelay(t, &stubProvider{}, "secret")
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Fatalf("unexpected health %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestRelay_RejectsWrongAccessKey(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: "never", Kind: domain.KindComplete}}
	srv, reg := newTestRelay(t, p, "secret")

	resp := post(t, srv.URL, "wrong", `{"message":"hi"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = post(t, srv.URL, "", `{"message":"hi"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a key, got %d", resp.StatusCode)
	}
	if len(p.got) != 0 {
		t.Fatal("provider must not be called without a valid key")
	}
	if reg.RequestCounter("/ask", http.StatusUnauthorized).Value() != 2 {
		t.Fatal("expected rejected requests to be counted")
	}
}

func TestRelay_StreamsAnswer(t *testing.T) {
	p := &stubProvider{
		progress: []string{"Go is", "Go is a compiled", "Go is a compiled language."},
		resp:     &domain.ChatResponse{Content: "Go is a compiled language.", Kind: domain.KindComplete},
	}
	srv, _ := newTestRelay(t, p, "secret")

	resp := post(t, srv.URL, "secret", `{"message":"What is Go?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %s", resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Go is a compiled language." {
		t.Fatalf("unexpected body %q", body)
	}
	if resp.Trailer.Get("X-Result-Kind") != "complete" {
		t.Fatalf("unexpected kind trailer %q", resp.Trailer.Get("X-Result-Kind"))
	}
	if p.got[0] != "What is Go?" {
		t.Fatalf("unexpected message %q", p.got[0])
	}
}

func TestRelay_RewrittenTextIsSentInFull(t *testing.T) {
	p := &stubProvider{
		progress: []string{"Thinking", "Answer: 42"},
		resp:     &domain.ChatResponse{Content: "Answer: 42", Kind: domain.KindComplete},
	}
	srv, _ := newTestRelay(t, p, "")

	resp := post(t, srv.URL, "", `{"message":"q"}`)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Thinking\nAnswer: 42" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestRelay_SentinelWithoutProgress(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: domain.TimeoutText, Kind: domain.KindTimeout}}
	srv, _ := newTestRelay(t, p, "")

	resp := post(t, srv.URL, "", `{"message":"q"}`)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != domain.TimeoutText {
		t.Fatalf("unexpected body %q", body)
	}
	if resp.Trailer.Get("X-Result-Kind") != "timeout" {
		t.Fatalf("unexpected kind trailer %q", resp.Trailer.Get("X-Result-Kind"))
	}
}

func TestRelay_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"busy", domain.ErrBusy, `{"message":"hi"}`, http.StatusConflict},
		{"empty", nil, `{"message":"  "}`, http.StatusBadRequest},
		{"bad json", nil, `{"message":`, http.StatusBadRequest},
		{"submit failed", errors.New("send button not found"), `{"message":"hi"}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		p := &stubProvider{err: tc.err, resp: &domain.ChatResponse{Content: "x"}}
		srv, _ := newTestRelay(t, p, "")
		resp := post(t, srv.URL, "", tc.body)
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestRelay_Metrics(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: "ok answer", Kind: domain.KindComplete}}
	srv, _ := newTestRelay(t, p, "")
	post(t, srv.URL, "", `{"message":"hi"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `webchat_relay_requests_total{route="/ask",code="200"} 1`) {
		t.Fatalf("unexpected metrics:\n%s", body)
	}
}

func TestRelayClient_AskStreamsToWriter(t *testing.T) {
	p := &stubProvider{
		progress: []string{"Hello", "Hello world"},
		resp:     &domain.ChatResponse{Content: "Hello world", Kind: domain.KindPartial},
	}
	srv, _ := newTestRelay(t, p, "secret")
	client := NewRelayClient(RelayClientConfig{BaseURL: srv.URL + "/", AccessKey: "secret", Logger: testLogger()})

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	var out bytes.Buffer
	kind, err := client.Ask(context.Background(), "hi", &out)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out.String() != "Hello world" || kind != "partial" {
		t.Fatalf("unexpected answer %q kind %q", out.String(), kind)
	}
}

func TestRelayClient_StatusError(t *testing.T) {
	srv, _ := newTestRelay(t, &stubProvider{err: domain.ErrBusy}, "")
	client := NewRelayClient(RelayClientConfig{BaseURL: srv.URL, Logger: testLogger()})

	_, err := client.Ask(context.Background(), "hi", io.Discard)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusConflict {
		t.Fatalf("expected a 409 StatusError, got %v", err)
	}
	if !strings.Contains(se.Message, "already being processed") {
		t.Fatalf("unexpected message %q", se.Message)
	}
}

func TestRelayClient_HealthFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewRelayClient(RelayClientConfig{BaseURL: srv.URL, Logger: testLogger()})
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestRelayClient_REPL(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: "Sure thing, here it is.", Kind: domain.KindDegraded}}
	srv, _ := newTestRelay(t, p, "")
	client := NewRelayClient(RelayClientConfig{BaseURL: srv.URL, Logger: testLogger()})

	var out bytes.Buffer
	in := strings.NewReader("hello\n\nQUIT\nignored\n")
	if err := client.RunREPL(context.Background(), "Gemini", in, &out); err != nil {
		t.Fatal(err)
	}
	if len(p.got) != 1 || p.got[0] != "hello" {
		t.Fatalf("unexpected messages %q", p.got)
	}
	if !strings.Contains(out.String(), "Gemini: Sure thing, here it is. [degraded]\n") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRelayClient_RetriesWhileBusy(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			writeJSON(w, http.StatusConflict, map[string]string{"error": domain.ErrBusy.Error()})
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	client := NewRelayClient(RelayClientConfig{
		BaseURL:      srv.URL,
		BusyRetries:  3,
		RetryBackoff: time.Millisecond,
		Logger:       testLogger(),
	})
	var out bytes.Buffer
	if _, err := client.Ask(context.Background(), "hi", &out); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out.String() != "finally" || calls != 3 {
		t.Fatalf("got %q after %d calls", out.String(), calls)
	}
}

func TestRelayClient_RetriesExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusConflict, map[string]string{"error": "busy"})
	}))
	defer srv.Close()

	client := NewRelayClient(RelayClientConfig{
		BaseURL:      srv.URL,
		BusyRetries:  2,
		RetryBackoff: time.Millisecond,
		Logger:       testLogger(),
	})
	_, err := client.Ask(context.Background(), "hi", io.Discard)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusConflict {
		t.Fatalf("expected a 409 StatusError, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRelayClient_AskLineTagsOutcome(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: "Half an answer", Kind: domain.KindPartial}}
	srv, _ := newTestRelay(t, p, "")
	client := NewRelayClient(RelayClientConfig{BaseURL: srv.URL, Logger: testLogger()})

	var out bytes.Buffer
	if err := client.AskLine(context.Background(), "hi", &out); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out.String() != "Half an answer [partial]\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	p.resp = &domain.ChatResponse{Content: "A whole answer", Kind: domain.KindComplete}
	out.Reset()
	if err := client.AskLine(context.Background(), "again", &out); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out.String() != "A whole answer\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
