// Package detect decides when a streamed answer on a chat page has finished
// rendering. The page gives no end-of-stream signal, so the detector polls the
// newest response element and waits for its text to stop changing.
package detect

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"webchat/internal/domain"
)

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultStableTicks   = 3
	DefaultMinLength     = 10
	DefaultTimeout       = 45 * time.Second
	DefaultMinLineLength = 20
)

// Config holds the completion heuristic. The defaults were tuned against one
// page's rendering cadence and carry no deeper meaning.
//
// Zero PollInterval, StableTicks and Timeout select the defaults. The two
// length floors are different: zero is a valid floor and disables the check,
// and only a negative value selects the default. Start from DefaultConfig
// rather than a zero Config to get the stock heuristic.
type Config struct {
	PollInterval time.Duration
	// StableTicks is the number of consecutive unchanged polls that count as done.
	StableTicks int
	// MinLength is the rune count the text must exceed before it can complete.
	MinLength int
	Timeout   time.Duration
	// MinLineLength is used by the raw page fallback: shorter lines are UI chrome.
	MinLineLength int
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StableTicks <= 0 {
		c.StableTicks = DefaultStableTicks
	}
	if c.MinLength < 0 {
		c.MinLength = DefaultMinLength
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinLineLength < 0 {
		c.MinLineLength = DefaultMinLineLength
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// DefaultConfig returns the stock heuristic.
func DefaultConfig() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		StableTicks:   DefaultStableTicks,
		MinLength:     DefaultMinLength,
		Timeout:       DefaultTimeout,
		MinLineLength: DefaultMinLineLength,
	}
}

// Detector runs the polling loop. It holds no per-cycle state, so one value
// can serve every cycle of a session.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a detector for cfg with unset fields filled in as described on
// Config.
func New(cfg Config) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

// state is the transient DetectionState of one cycle.
type state struct {
	baselineCount int
	last          string
	stableTicks   int
	polls         int
	start         time.Time
}

// observe folds a freshly read text into the state and reports whether it changed.
func (s *state) observe(text string) bool {
	if text != s.last {
		s.last = text
		s.stableTicks = 0
		return true
	}
	s.stableTicks++
	return false
}

// WaitOptions tunes a single Wait call.
type WaitOptions struct {
	// OnProgress is called with the newest text each time it changes.
	OnProgress func(text string)
}

// Wait polls page until the newest response above baselineCount stops
// changing, the deadline passes, or the page cannot be read. It always yields
// a Result; the only error is ctx cancellation, which ends the whole session.
func (d *Detector) Wait(ctx context.Context, page domain.PageAccessor, baselineCount int, opts WaitOptions) (domain.Result, error) {
	st := &state{baselineCount: baselineCount, start: d.now()}
	deadline := st.start.Add(d.cfg.Timeout)

	for d.now().Before(deadline) {
		snap, err := page.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Result{}, ctx.Err()
			}
			d.logger.Warn("detect: snapshot failed, using page text", "err", err)
			return d.degraded(ctx, page, st), nil
		}
		st.polls++

		if len(snap) > st.baselineCount {
			raw, err := snap.Newest().Text(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return domain.Result{}, ctx.Err()
				}
				d.logger.Warn("detect: element read failed, using page text", "err", err)
				return d.degraded(ctx, page, st), nil
			}
			text := strings.TrimSpace(raw)

			if st.observe(text) {
				d.logger.Debug("detect: response changed", "len", len(text), "poll", st.polls)
				if opts.OnProgress != nil {
					opts.OnProgress(text)
				}
			}

			if st.stableTicks >= d.cfg.StableTicks && utf8.RuneCountInString(st.last) > d.cfg.MinLength {
				d.logger.Debug("detect: response complete", "polls", st.polls, "elapsed", d.now().Sub(st.start))
				return d.result(st, domain.KindComplete, st.last, snap.Newest()), nil
			}
		}

		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return domain.Result{}, err
		}
	}

	return d.timeout(ctx, page, st)
}

// timeout takes one last snapshot after the deadline and returns whatever the
// newest response says, or the timeout sentinel if none appeared.
func (d *Detector) timeout(ctx context.Context, page domain.PageAccessor, st *state) (domain.Result, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{}, ctx.Err()
		}
		return d.degraded(ctx, page, st), nil
	}
	if len(snap) <= st.baselineCount {
		d.logger.Info("detect: no response before deadline", "timeout", d.cfg.Timeout)
		return d.result(st, domain.KindTimeout, domain.TimeoutText, nil), nil
	}

	newest := snap.Newest()
	raw, err := newest.Text(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{}, ctx.Err()
		}
		return d.degraded(ctx, page, st), nil
	}
	d.logger.Info("detect: response did not settle before deadline", "timeout", d.cfg.Timeout)
	return d.result(st, domain.KindPartial, strings.TrimSpace(raw), newest), nil
}

func (d *Detector) degraded(ctx context.Context, page domain.PageAccessor, st *state) domain.Result {
	res := Extract(ctx, page, d.cfg.MinLineLength)
	res.Elapsed = d.now().Sub(st.start)
	res.Polls = st.polls
	res.StableTicks = st.stableTicks
	return res
}

func (d *Detector) result(st *state, kind domain.ResultKind, text string, src domain.Element) domain.Result {
	return domain.Result{
		Kind:        kind,
		Text:        text,
		Elapsed:     d.now().Sub(st.start),
		Polls:       st.polls,
		StableTicks: st.stableTicks,
		Source:      src,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
