package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"webchat/internal/domain"
	"webchat/internal/metrics"
)

const (
	relayMaxBodySize = 1 << 20 // 1MB
	accessKeyHeader  = "X-Access-Key"
	requestIDHeader  = "X-Request-ID"
)

var _ domain.Channel = (*Relay)(nil)

// Relay exposes the chat session over HTTP so another machine can use it.
// Answers stream back as plain text while the page is still rendering.
type Relay struct {
	addr      string
	accessKey string
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Registry
	server    *http.Server
	provider  domain.Provider
}

type RelayConfig struct {
	Addr string
	// AccessKey, when set, must be sent in the X-Access-Key header of /ask.
	AccessKey string
	// AnswerTimeout bounds one /ask call; it should exceed the detection timeout.
	AnswerTimeout time.Duration
	Metrics       *metrics.Registry
	Logger        *slog.Logger
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 2 * time.Minute
	}
	return &Relay{
		addr:      cfg.Addr,
		accessKey: cfg.AccessKey,
		timeout:   cfg.AnswerTimeout,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

func (g *Relay) Name() string { return "relay" }

// Handler builds the router serving p.
func (g *Relay) Handler(p domain.Provider) http.Handler {
	g.provider = p

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(g.requestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.instrument("/health", g.handleHealth))
	r.Get("/metrics", g.metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(g.requireAccessKey)
		r.Post("/ask", g.instrument("/ask", g.handleAsk))
	})
	return r
}

// Start serves until ctx is cancelled.
func (g *Relay) Start(ctx context.Context, p domain.Provider) error {
	g.server = &http.Server{
		Addr:              g.addr,
		Handler:           g.Handler(p),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      g.timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g.logger.Info("relay started", "addr", g.addr, "auth", g.accessKey != "")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.server.Shutdown(shutdownCtx)
	}()

	if err := g.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Relay) Stop() error {
	if g.server != nil {
		return g.server.Close()
	}
	return nil
}

type ctxKey struct{}

// requestID tags each request with a UUID, honouring one sent by the client.
func (g *Relay) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (g *Relay) requireAccessKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.accessKey != "" {
			got := r.Header.Get(accessKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(g.accessKey)) != 1 {
				g.metrics.RequestCounter("/ask", http.StatusUnauthorized).Inc()
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid access key"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (g *Relay) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		h(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		g.metrics.RequestCounter(route, rec.status).Inc()
		metrics.Since(g.metrics.RequestLatency(route), start)
	}
}

func (g *Relay) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Message string `json:"message"`
}

func (g *Relay) handleAsk(w http.ResponseWriter, r *http.Request) {
	logger := g.logger.With("request_id", requestIDFrom(r.Context()))

	body, err := io.ReadAll(io.LimitReader(r.Body, relayMaxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	var req askRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	stream := &answerStream{w: w, rc: http.NewResponseController(w)}
	resp, err := g.provider.Chat(ctx, domain.ChatRequest{
		Message:    req.Message,
		OnProgress: stream.progress,
	})
	if err != nil {
		logger.Warn("relay: ask failed", "err", err)
		if stream.started {
			stream.write("\nError: " + err.Error())
			return
		}
		switch {
		case errors.Is(err, domain.ErrEmptyMessage):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, domain.ErrBusy):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, context.DeadlineExceeded):
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
		default:
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
		return
	}

	stream.finish(resp)
	logger.Info("relay: answered", "kind", resp.Kind, "len", len(resp.Content), "latency_ms", resp.LatencyMs)
}

// answerStream writes a growing answer as it changes. Only text appended to
// what was already sent can be streamed; anything else is written in full
// once the cycle ends.
type answerStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	sent    string
	started bool
	broken  bool
}

// resultKindTrailer carries the outcome kind, known only after the body.
const resultKindTrailer = "X-Result-Kind"

func (s *answerStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-cache")
	h.Set("Trailer", resultKindTrailer)
	s.w.WriteHeader(http.StatusOK)
}

func (s *answerStream) write(chunk string) {
	if chunk == "" {
		return
	}
	io.WriteString(s.w, chunk)
	_ = s.rc.Flush()
}

func (s *answerStream) progress(text string) {
	if s.broken {
		return
	}
	if !strings.HasPrefix(text, s.sent) {
		// The page rewrote earlier text; wait for the final answer.
		s.broken = true
		return
	}
	s.start()
	s.write(text[len(s.sent):])
	s.sent = text
}

func (s *answerStream) finish(resp *domain.ChatResponse) {
	s.start()
	switch {
	case s.sent == "":
		s.write(resp.Content)
	case strings.HasPrefix(resp.Content, s.sent) && !s.broken:
		s.write(resp.Content[len(s.sent):])
	default:
		s.write("\n" + resp.Content)
	}
	s.w.Header().Set(resultKindTrailer, string(resp.Kind))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
