package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"webchat/internal/config"
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Browser.ProfileDir = filepath.Join(dir, "profile")
	cfg.Site.ProfilesDir = filepath.Join(dir, "sites")
	cfg.Stats.DBPath = filepath.Join(dir, "stats.db")
	return cfg
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestResolveProfile_Overrides(t *testing.T) {
	cfg := testConfig(t)
	cfg.Site.Profile = "chatgpt"
	cfg.Site.Selectors = map[string]string{"input": "textarea#custom"}
	cfg.Display.Label = "GPT"

	prof, err := resolveProfile(cfg)
	if err != nil {
		t.Fatalf("resolveProfile: %v", err)
	}
	if prof.Input != "textarea#custom" {
		t.Errorf("input = %q, want override", prof.Input)
	}
	if prof.DisplayName() != "GPT" {
		t.Errorf("label = %q, want GPT", prof.DisplayName())
	}
}

func TestResolveProfile_UserProfile(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Site.ProfilesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `name: local
url: http://localhost:8080/
input: textarea
submit: button[type=submit]
ready: textarea
rules:
  - name: reply
    selector: .reply
`
	if err := os.WriteFile(filepath.Join(cfg.Site.ProfilesDir, "local.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Site.Profile = "local"

	prof, err := resolveProfile(cfg)
	if err != nil {
		t.Fatalf("resolveProfile: %v", err)
	}
	if len(prof.Rules) != 1 || prof.Rules[0].Selector != ".reply" {
		t.Errorf("rules = %+v", prof.Rules)
	}
}

func TestResolveProfile_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Site.Profile = "nope"
	if _, err := resolveProfile(cfg); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestCheckDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stats.db")
	if err := checkDatabase(path); err != nil {
		t.Fatalf("checkDatabase: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestSelectorsTest_SavedPage(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfgFile := filepath.Join(dir, "config.json")
	if err := config.Save(cfgFile, cfg); err != nil {
		t.Fatal(err)
	}
	page := filepath.Join(dir, "chat.html")
	html := `<html><body>
<div data-message-author-role="model"><p>The first answer from the model.</p></div>
<div data-message-author-role="model"><p>The second and newest answer from the model.</p></div>
</body></html>`
	if err := os.WriteFile(page, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}

	old := configPath
	configPath = cfgFile
	defer func() { configPath = old }()

	cmd := selectorsCmd()
	cmd.SetArgs([]string{"test", page})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("selectors test: %v", err)
	}
}

func TestSelectorsTest_MissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfgFile := filepath.Join(t.TempDir(), "config.json")
	if err := config.Save(cfgFile, cfg); err != nil {
		t.Fatal(err)
	}
	old := configPath
	configPath = cfgFile
	defer func() { configPath = old }()

	cmd := selectorsCmd()
	cmd.SetArgs([]string{"test", filepath.Join(t.TempDir(), "missing.html")})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
