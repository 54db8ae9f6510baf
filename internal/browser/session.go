package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"webchat/internal/domain"
	"webchat/internal/site"
)

// Engine selects the browser automation library.
type Engine string

const (
	EngineChromedp Engine = "chromedp"
	EngineRod      Engine = "rod"
)

const defaultReadyTimeout = 15 * time.Second

// Config holds configuration for a browser session.
type Config struct {
	Engine       Engine
	ExecPath     string // browser binary; empty = auto-detect
	ProfileDir   string // user data directory (persists cookies/sessions)
	Headless     bool
	Stealth      bool // rod only: patch common automation fingerprints
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Engine == "" {
		c.Engine = EngineChromedp
	}
	if c.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		c.ProfileDir = filepath.Join(home, ".webchat", "browser-profile")
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one live chat page. It is the only handle the rest of the
// program needs: a page accessor, a submitter and a lifecycle.
type Session interface {
	domain.PageAccessor
	domain.Submitter

	// Rules evaluates every selector rule and reports each one separately.
	Rules(ctx context.Context) []RuleResult
	// CurrentURL returns the URL the page is showing.
	CurrentURL(ctx context.Context) (string, error)
	// Navigate loads url in the session page.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the site's ready selector is present.
	WaitReady(ctx context.Context) error
	// Close releases the page and the browser. Safe to call more than once.
	Close() error
}

// Open launches a browser with the given profile and loads the chat page.
// The caller must Close the session on every exit path.
func Open(ctx context.Context, cfg Config, prof site.Profile) (Session, error) {
	cfg.defaults()
	if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
		cfg.Logger.Error("failed to create profile dir", "dir", cfg.ProfileDir, "err", err)
	}
	if cfg.ExecPath == "" {
		if path, err := FindBrowser(); err == nil {
			cfg.ExecPath = path
			cfg.Logger.Debug("browser found", "path", path)
		} else {
			cfg.Logger.Debug("no browser found in known locations, using engine default", "err", err)
		}
	}

	var (
		s   Session
		err error
	)
	switch cfg.Engine {
	case EngineChromedp:
		s, err = openChrome(ctx, cfg, prof)
	case EngineRod:
		s, err = openRod(ctx, cfg, prof)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", cfg.Engine)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Navigate(ctx, prof.URL); err != nil {
		s.Close()
		return nil, fmt.Errorf("open %s: %w", prof.URL, err)
	}
	cfg.Logger.Info("chat page loaded", "site", prof.Name, "engine", cfg.Engine)
	return s, nil
}

// NeedsLogin reports whether the session landed on the site's sign-in page.
func NeedsLogin(ctx context.Context, s Session, prof site.Profile) (bool, error) {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	return prof.NeedsLogin(url), nil
}

// Login opens a visible browser on the site so the user can sign in by hand.
// wait blocks until the user is done; cookies stay in the profile directory.
func Login(ctx context.Context, cfg Config, prof site.Profile, wait func(ctx context.Context) error) error {
	cfg.Headless = false
	cfg.defaults()
	cfg.Logger.Info("opening browser for login", "url", prof.URL)

	s, err := Open(ctx, cfg, prof)
	if err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}
	defer s.Close()

	if err := wait(ctx); err != nil {
		return err
	}
	cfg.Logger.Info("login session saved", "profile", cfg.ProfileDir)
	return nil
}

// FindBrowser looks for a Chromium-family browser in the usual places.
func FindBrowser() (string, error) {
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		}
	default:
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
			"microsoft-edge",
		}
	}

	for _, p := range paths {
		if filepath.IsAbs(p) {
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
			continue
		}
		if found, err := exec.LookPath(p); err == nil {
			return found, nil
		}
	}
	return "", fmt.Errorf("no Chrome, Chromium or Edge browser found")
}
