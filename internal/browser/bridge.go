package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"webchat/internal/domain"
	"webchat/internal/site"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// ChromeSession drives a chat page through chromedp.
type ChromeSession struct {
	ctx     context.Context
	cancel  context.CancelFunc
	profile site.Profile
	cfg     Config
	logger  *slog.Logger

	closeOnce sync.Once
}

func openChrome(parent context.Context, cfg Config, prof site.Profile) (*ChromeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(cfg.ProfileDir),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	// The browser must outlive individual calls, so it hangs off a context
	// that is only cancelled by Close.
	base := context.WithoutCancel(parent)
	allocCtx, allocCancel := chromedp.NewExecAllocator(base, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		ctx: taskCtx,
		cancel: func() {
			taskCancel()
			allocCancel()
		},
		profile: prof,
		cfg:     cfg,
		logger:  cfg.Logger,
	}

	// The first Run allocates the browser and ties it to the context it is
	// given, so it must be the long-lived task context itself.
	if err := chromedp.Run(taskCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// run executes actions against the session tab, bounded by the caller's ctx.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (s *ChromeSession) WaitReady(ctx context.Context) error {
	if s.profile.Ready == "" {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	if err := s.run(waitCtx, chromedp.WaitVisible(s.profile.Ready, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("chat interface not ready: %w", err)
	}
	return nil
}

// Submit clears the input box, types message and clicks send.
func (s *ChromeSession) Submit(ctx context.Context, message string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	if err := s.run(waitCtx, chromedp.WaitVisible(s.profile.Input, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("find input: %w", err)
	}

	err := s.run(ctx,
		chromedp.Evaluate(clearInputJS(s.profile.Input), nil),
		chromedp.Click(s.profile.Input, chromedp.ByQuery),
		// InsertText keeps newlines as text; SendKeys would press Enter.
		input.InsertText(message),
	)
	if err != nil {
		return fmt.Errorf("type message: %w", err)
	}

	waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	err = s.run(waitCtx,
		chromedp.WaitVisible(s.profile.Submit, chromedp.ByQuery),
		chromedp.Click(s.profile.Submit, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	s.logger.Debug("message submitted", "len", len(message))
	return nil
}

func (s *ChromeSession) Rules(ctx context.Context) []RuleResult {
	return evaluateRules(ctx, s.profile.Rules, s.collect, s.logger)
}

func (s *ChromeSession) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return mergeResults(s.Rules(ctx))
}

func (s *ChromeSession) collect(ctx context.Context, selector string) ([]domain.Element, error) {
	var n int
	expr := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return nil, err
	}
	els := make([]domain.Element, n)
	for i := range els {
		els[i] = &chromeElement{s: s, selector: selector, index: i}
	}
	return els, nil
}

func (s *ChromeSession) RawPageText(ctx context.Context) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text))
	return text, err
}

func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Info("browser closed")
	})
	return nil
}

// chromeElement addresses a node by selector and position. Reading it after
// the node is gone fails, like a stale element reference.
type chromeElement struct {
	s        *ChromeSession
	selector string
	index    int
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	return e.read(ctx, "el.innerText || el.textContent || ''")
}

func (e *chromeElement) HTML(ctx context.Context) (string, error) {
	return e.read(ctx, "el.innerHTML")
}

func (e *chromeElement) read(ctx context.Context, valueExpr string) (string, error) {
	var out string
	expr := fmt.Sprintf(`(function() {
		var el = document.querySelectorAll(%s)[%d];
		if (!el) { throw new Error('stale element'); }
		return %s;
	})()`, jsString(e.selector), e.index, valueExpr)
	if err := e.s.run(ctx, chromedp.Evaluate(expr, &out)); err != nil {
		return "", err
	}
	return out, nil
}

func clearInputJS(selector string) string {
	return fmt.Sprintf(`(function() {
		var el = document.querySelector(%s);
		if (!el) { return; }
		if (el.isContentEditable) { el.innerText = ''; } else if ('value' in el) { el.value = ''; }
	})()`, jsString(selector))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
