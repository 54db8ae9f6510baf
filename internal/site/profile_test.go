package site

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGemini_DefaultRulesInOrder(t *testing.T) {
	p := Gemini()
	want := []string{
		"[data-message-author-role='model']",
		"[class*='model-response']",
		"[class*='assistant-message']",
		".message.model",
	}
	if len(p.Rules) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(p.Rules))
	}
	for i, sel := range want {
		if p.Rules[i].Selector != sel {
			t.Fatalf("rule %d = %q, want %q", i, p.Rules[i].Selector, sel)
		}
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("built-in profile invalid: %v", err)
	}
}

func TestNeedsLogin(t *testing.T) {
	p := Gemini()
	if !p.NeedsLogin("https://accounts.google.com/v3/signin/identifier?continue=x") {
		t.Fatal("expected login page to be detected")
	}
	if p.NeedsLogin("https://gemini.google.com/app") {
		t.Fatal("app page is not a login page")
	}
}

func TestWithOverrides(t *testing.T) {
	base := Gemini()
	p := base.WithOverrides(map[string]string{
		"url":      "https://example.test/chat",
		"response": ".answer",
		"submit":   "",
	})
	if p.URL != "https://example.test/chat" {
		t.Fatalf("url not overridden: %q", p.URL)
	}
	if p.Submit != base.Submit {
		t.Fatalf("empty override must keep the default, got %q", p.Submit)
	}
	if len(p.Rules) != 1 || p.Rules[0].Selector != ".answer" {
		t.Fatalf("response override should replace rules, got %+v", p.Rules)
	}
	if len(base.Rules) != 4 {
		t.Fatal("overrides must not mutate the base profile")
	}
}

func TestValidate_MissingFields(t *testing.T) {
	p := Profile{Name: "broken", Rules: []Rule{{Selector: " "}}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDisplayName(t *testing.T) {
	if got := (Profile{Name: "mistral"}).DisplayName(); got != "Mistral" {
		t.Fatalf("got %q", got)
	}
	if got := Gemini().DisplayName(); got != "Gemini" {
		t.Fatalf("got %q", got)
	}
	for name, want := range map[string]string{"ésprit": "Ésprit", "ёлка": "Ёлка", "知识": "知识"} {
		got := (Profile{Name: name}).DisplayName()
		if got != want || !utf8.ValidString(got) {
			t.Fatalf("DisplayName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestRegistry_UnknownProfile(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get("nope"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if _, err := reg.Get("chatgpt"); err != nil {
		t.Fatalf("chatgpt should be built in: %v", err)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	good := `
url: https://chat.example.test
label: Example
input: textarea
submit: button.send
ready: textarea
rules:
  - selector: .bot-message
  - name: fallback
    selector: "[data-role=bot]"
`
	if err := os.WriteFile(filepath.Join(dir, "example.yaml"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("rules: [::"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "incomplete.yaml"), []byte("url: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 valid profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.Name != "example" {
		t.Fatalf("name should default to file name, got %q", p.Name)
	}
	if p.Rules[0].Name != "rule-1" || p.Rules[1].Name != "fallback" {
		t.Fatalf("unexpected rule names: %+v", p.Rules)
	}
}

func TestLoadRegistry_UserProfileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	custom := `
name: gemini
url: https://gemini.google.com/app
input: div.ql-editor
submit: .send-button
rules:
  - selector: .response-content
`
	if err := os.WriteFile(filepath.Join(dir, "gemini.yaml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistry(dir, testLogger())
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	p, err := reg.Get("gemini")
	if err != nil {
		t.Fatal(err)
	}
	if p.Input != "div.ql-editor" || len(p.Rules) != 1 {
		t.Fatalf("user profile should replace built-in, got %+v", p)
	}
}

func TestLoadFromDirectory_MissingDir(t *testing.T) {
	profiles, err := LoadFromDirectory(filepath.Join(t.TempDir(), "absent"), testLogger())
	if err != nil || profiles != nil {
		t.Fatalf("missing dir should be ignored, got %v %v", profiles, err)
	}
}
