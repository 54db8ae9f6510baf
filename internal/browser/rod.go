package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"webchat/internal/domain"
	"webchat/internal/site"
)

// RodSession drives a chat page through go-rod.
type RodSession struct {
	lnch    *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	profile site.Profile
	cfg     Config
	logger  *slog.Logger

	closeOnce sync.Once
}

func openRod(ctx context.Context, cfg Config, prof site.Profile) (*RodSession, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		UserDataDir(cfg.ProfileDir).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	if cfg.ExecPath != "" {
		l = l.Bin(cfg.ExecPath)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		b.Close()
		l.Kill()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	cfg.Logger.Debug("browser: launched local chrome", "url", u, "stealth", cfg.Stealth)
	return &RodSession{
		lnch:    l,
		browser: b,
		page:    page,
		profile: prof,
		cfg:     cfg,
		logger:  cfg.Logger,
	}, nil
}

func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Warn("browser: wait load", "url", url, "err", err)
	}
	return nil
}

func (s *RodSession) CurrentURL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *RodSession) WaitReady(ctx context.Context) error {
	if s.profile.Ready == "" {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	if _, err := s.page.Context(waitCtx).Element(s.profile.Ready); err != nil {
		return fmt.Errorf("chat interface not ready: %w", err)
	}
	return nil
}

func (s *RodSession) Submit(ctx context.Context, message string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	input, err := s.page.Context(waitCtx).Element(s.profile.Input)
	if err != nil {
		return fmt.Errorf("find input: %w", err)
	}
	input = input.Context(ctx)
	if _, err := input.Eval(`() => { if (this.isContentEditable) { this.innerText = '' } else if ('value' in this) { this.value = '' } }`); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}
	if err := input.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus input: %w", err)
	}
	if err := input.Input(message); err != nil {
		return fmt.Errorf("type message: %w", err)
	}

	send, err := s.page.Context(waitCtx).Element(s.profile.Submit)
	if err != nil {
		return fmt.Errorf("find send button: %w", err)
	}
	if err := send.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	s.logger.Debug("message submitted", "len", len(message))
	return nil
}

func (s *RodSession) Rules(ctx context.Context) []RuleResult {
	return evaluateRules(ctx, s.profile.Rules, s.collect, s.logger)
}

func (s *RodSession) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return mergeResults(s.Rules(ctx))
}

// collect uses Elements, which does not wait for matches to appear.
func (s *RodSession) collect(ctx context.Context, selector string) ([]domain.Element, error) {
	found, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	els := make([]domain.Element, len(found))
	for i, el := range found {
		els[i] = rodElement{el: el}
	}
	return els, nil
}

func (s *RodSession) RawPageText(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (s *RodSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.browser != nil {
			err = s.browser.Close()
		}
		if s.lnch != nil {
			s.lnch.Kill()
		}
		s.logger.Info("browser closed")
	})
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e rodElement) HTML(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.innerHTML`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
