package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"webchat/internal/browser"
	"webchat/internal/config"
	"webchat/internal/detect"
	"webchat/internal/metrics"
	"webchat/internal/provider"
	"webchat/internal/site"
	"webchat/internal/stats"
)

// resolveProfile loads the configured site profile with user profiles and
// selector overrides applied.
func resolveProfile(cfg *config.Config) (site.Profile, error) {
	reg, err := site.LoadRegistry(cfg.Site.ProfilesDir, logger)
	if err != nil {
		return site.Profile{}, err
	}
	prof, err := reg.Get(cfg.Site.Profile)
	if err != nil {
		return site.Profile{}, err
	}
	prof = prof.WithOverrides(cfg.Site.Selectors)
	if cfg.Display.Label != "" {
		prof.Label = cfg.Display.Label
	}
	if err := prof.Validate(); err != nil {
		return site.Profile{}, fmt.Errorf("site profile %s: %w", prof.Name, err)
	}
	return prof, nil
}

func browserConfig(cfg *config.Config) browser.Config {
	return browser.Config{
		Engine:       browser.Engine(cfg.Browser.Engine),
		ExecPath:     cfg.Browser.ExecPath,
		ProfileDir:   cfg.Browser.ProfileDir,
		Headless:     cfg.Browser.Headless,
		Stealth:      cfg.Browser.Stealth,
		ReadyTimeout: time.Duration(cfg.Browser.ReadyTimeoutSeconds) * time.Second,
		Logger:       logger,
	}
}

func detectConfig(cfg *config.Config) detect.Config {
	return detect.Config{
		PollInterval:  cfg.Detect.PollInterval(),
		StableTicks:   cfg.Detect.StableTicks,
		MinLength:     cfg.Detect.MinLength,
		Timeout:       cfg.Detect.Timeout(),
		MinLineLength: cfg.Detect.FallbackMinLine,
		Logger:        logger,
	}
}

// waitForEnter blocks until the user presses Enter or ctx ends.
func waitForEnter(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openSession launches the browser on the chat page and makes sure it is
// signed in and ready. The caller must Close the session.
func openSession(ctx context.Context, cfg *config.Config, prof site.Profile) (browser.Session, error) {
	sess, err := browser.Open(ctx, browserConfig(cfg), prof)
	if err != nil {
		return nil, err
	}

	needsLogin, err := browser.NeedsLogin(ctx, sess, prof)
	if err != nil {
		logger.Warn("cannot read page url", "err", err)
	}
	if needsLogin {
		if cfg.Browser.Headless {
			sess.Close()
			return nil, fmt.Errorf("%s requires sign-in; run 'webchat login' first", prof.DisplayName())
		}
		fmt.Printf("Please log in to %s in the browser window, then press Enter here to continue.\n", prof.DisplayName())
		if err := waitForEnter(ctx); err != nil {
			sess.Close()
			return nil, err
		}
		if err := sess.Navigate(ctx, prof.URL); err != nil {
			sess.Close()
			return nil, err
		}
	}

	if err := sess.WaitReady(ctx); err != nil {
		// Not fatal: Submit waits for the input box on its own.
		logger.Warn("chat interface did not report ready", "err", err)
	} else {
		logger.Info("chat interface ready", "site", prof.Name)
	}
	return sess, nil
}

// chatStack is everything a chat front-end needs, plus its cleanup.
type chatStack struct {
	chat     *provider.WebChat
	profile  site.Profile
	registry *metrics.Registry
	closers  []func()
}

func (s *chatStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildChat(ctx context.Context, cfg *config.Config) (*chatStack, error) {
	prof, err := resolveProfile(cfg)
	if err != nil {
		return nil, err
	}

	stack := &chatStack{profile: prof, registry: metrics.NewRegistry()}

	var recorder provider.Recorder
	if cfg.Stats.Enabled {
		store, err := stats.NewSQLiteStore(cfg.Stats.DBPath, logger)
		if err != nil {
			logger.Warn("telemetry disabled", "err", err)
		} else {
			recorder = store
			stack.closers = append(stack.closers, func() { store.Close() })
		}
	}

	sess, err := openSession(ctx, cfg, prof)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.closers = append(stack.closers, func() { sess.Close() })

	var md *provider.Markdown
	if cfg.Display.Markdown {
		md = provider.NewMarkdown(logger)
	}

	stack.chat = provider.NewWebChat(provider.WebChatConfig{
		Page:     sess,
		Profile:  prof,
		Detector: detect.New(detectConfig(cfg)),
		Markdown: md,
		Metrics:  metrics.NewChatMetrics(stack.registry),
		Recorder: recorder,
		Logger:   logger,
	})
	return stack, nil
}
