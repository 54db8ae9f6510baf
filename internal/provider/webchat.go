package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"webchat/internal/detect"
	"webchat/internal/domain"
	"webchat/internal/metrics"
	"webchat/internal/site"
	"webchat/internal/stats"
)

// Page is the live chat page a WebChat drives.
type Page interface {
	domain.PageAccessor
	domain.Submitter
}

// Recorder persists per-cycle telemetry.
type Recorder interface {
	Save(ctx context.Context, rec stats.Record) error
}

var _ domain.Provider = (*WebChat)(nil)

// WebChat implements domain.Provider on top of a browser-automated chat page.
// It runs one send/await cycle at a time.
type WebChat struct {
	page     Page
	profile  site.Profile
	detector *detect.Detector
	markdown *Markdown
	metrics  *metrics.ChatMetrics
	recorder Recorder
	logger   *slog.Logger

	mu sync.Mutex
}

type WebChatConfig struct {
	Page     Page
	Profile  site.Profile
	Detector *detect.Detector
	// Markdown converts the answer's HTML when set.
	Markdown *Markdown
	Metrics  *metrics.ChatMetrics
	Recorder Recorder
	Logger   *slog.Logger
}

func NewWebChat(cfg WebChatConfig) *WebChat {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Detector == nil {
		dc := detect.DefaultConfig()
		dc.Logger = cfg.Logger
		cfg.Detector = detect.New(dc)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewChatMetrics(metrics.NewRegistry())
	}
	return &WebChat{
		page:     cfg.Page,
		profile:  cfg.Profile,
		detector: cfg.Detector,
		markdown: cfg.Markdown,
		metrics:  cfg.Metrics,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With("site", cfg.Profile.Name),
	}
}

func (p *WebChat) Name() string { return p.profile.Name }

// Label is the name shown in front of answers.
func (p *WebChat) Label() string { return p.profile.DisplayName() }

func (p *WebChat) Healthy(ctx context.Context) error {
	if p.page == nil {
		return fmt.Errorf("%s: browser session not open", p.profile.Name)
	}
	if _, err := p.page.RawPageText(ctx); err != nil {
		return fmt.Errorf("%s: page not readable: %w", p.profile.Name, err)
	}
	return nil
}

// Chat sends one message and waits for the page to finish answering.
// A second call while a cycle is running fails with domain.ErrBusy.
func (p *WebChat) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.ErrEmptyMessage
	}

	if !p.mu.TryLock() {
		p.metrics.Rejected.Inc()
		return nil, domain.ErrBusy
	}
	defer p.mu.Unlock()

	p.metrics.InFlight.Inc()
	defer p.metrics.InFlight.Dec()

	// The baseline must be taken before submitting, otherwise a fast answer
	// would be counted as pre-existing.
	baseline := 0
	if snap, err := p.page.Snapshot(ctx); err != nil {
		p.logger.Warn("baseline snapshot failed, assuming empty page", "err", err)
	} else {
		baseline = len(snap)
	}

	p.logger.Info("sending message", "len", len(message), "baseline", baseline)
	start := time.Now()

	if err := p.page.Submit(ctx, message); err != nil {
		p.metrics.Errors("submit").Inc()
		return nil, fmt.Errorf("%s: submit: %w", p.profile.Name, err)
	}

	res, err := p.detector.Wait(ctx, p.page, baseline, detect.WaitOptions{OnProgress: req.OnProgress})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.metrics.Errors("cancelled").Inc()
		} else {
			p.metrics.Errors("detect").Inc()
		}
		return nil, fmt.Errorf("%s: await response: %w", p.profile.Name, err)
	}

	p.metrics.Observe(res)
	p.record(ctx, res)

	resp := &domain.ChatResponse{
		Content:   res.Text,
		Kind:      res.Kind,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if p.markdown != nil && res.Source != nil {
		if md, ok := p.markdown.FromElement(ctx, res.Source); ok {
			resp.Markdown = md
		}
	}

	p.logger.Info("received response",
		"kind", res.Kind, "len", len(res.Text), "polls", res.Polls, "elapsed", res.Elapsed)
	return resp, nil
}

func (p *WebChat) record(ctx context.Context, res domain.Result) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Save(context.WithoutCancel(ctx), stats.FromResult(p.profile.Name, res)); err != nil {
		p.logger.Warn("telemetry write failed", "err", err)
	}
}
