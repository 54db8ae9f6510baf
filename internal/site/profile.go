// Package site describes the chat pages webchat knows how to drive: where the
// input box and send button are, and which selector rules mark a response.
package site

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one way of finding response elements on a page. Rules are
// evaluated in order and each may fail on its own.
type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
}

// Profile contains CSS selectors and URLs for a specific chat website.
type Profile struct {
	Name         string   `yaml:"name" json:"name"`
	Label        string   `yaml:"label,omitempty" json:"label,omitempty"` // shown in front of answers
	URL          string   `yaml:"url" json:"url"`
	Input        string   `yaml:"input" json:"input"`   // editable message box
	Submit       string   `yaml:"submit" json:"submit"` // send button
	Ready        string   `yaml:"ready" json:"ready"`   // present once the UI is usable
	LoginMarkers []string `yaml:"loginMarkers,omitempty" json:"loginMarkers,omitempty"`
	Rules        []Rule   `yaml:"rules" json:"rules"`
}

// DisplayName returns the label used when printing answers.
func (p Profile) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	if p.Name == "" {
		return "Assistant"
	}
	r, size := utf8.DecodeRuneInString(p.Name)
	return string(unicode.ToUpper(r)) + p.Name[size:]
}

// NeedsLogin reports whether url looks like a sign-in page for this site.
func (p Profile) NeedsLogin(url string) bool {
	for _, m := range p.LoginMarkers {
		if m != "" && strings.Contains(url, m) {
			return true
		}
	}
	return false
}

// Validate checks that the profile can drive a page.
func (p Profile) Validate() error {
	var errs []string
	if p.URL == "" {
		errs = append(errs, "url is required")
	}
	if p.Input == "" {
		errs = append(errs, "input selector is required")
	}
	if p.Submit == "" {
		errs = append(errs, "submit selector is required")
	}
	if len(p.Rules) == 0 {
		errs = append(errs, "at least one response rule is required")
	}
	for i, r := range p.Rules {
		if strings.TrimSpace(r.Selector) == "" {
			errs = append(errs, fmt.Sprintf("rule %d has an empty selector", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("site %q: %s", p.Name, strings.Join(errs, "; "))
	}
	return nil
}

// WithOverrides returns a copy of p with selector overrides applied. Known
// keys: url, input, submit, ready, response. A response override replaces
// all rules with a single one.
func (p Profile) WithOverrides(overrides map[string]string) Profile {
	out := p
	out.Rules = append([]Rule(nil), p.Rules...)
	out.LoginMarkers = append([]string(nil), p.LoginMarkers...)
	if v, ok := overrides["url"]; ok && v != "" {
		out.URL = v
	}
	if v, ok := overrides["input"]; ok && v != "" {
		out.Input = v
	}
	if v, ok := overrides["submit"]; ok && v != "" {
		out.Submit = v
	}
	if v, ok := overrides["ready"]; ok && v != "" {
		out.Ready = v
	}
	if v, ok := overrides["response"]; ok && v != "" {
		out.Rules = []Rule{{Name: "override", Selector: v}}
	}
	return out
}

// Gemini returns the default profile for Google Gemini.
func Gemini() Profile {
	return Profile{
		Name:         "gemini",
		Label:        "Gemini",
		URL:          "https://gemini.google.com/",
		Input:        "[contenteditable='true']",
		Submit:       "button[aria-label*='Send']",
		Ready:        "[contenteditable='true'], textarea, input",
		LoginMarkers: []string{"accounts.google.com", "signin"},
		Rules: []Rule{
			{Name: "author-role", Selector: "[data-message-author-role='model']"},
			{Name: "model-response", Selector: "[class*='model-response']"},
			{Name: "assistant-message", Selector: "[class*='assistant-message']"},
			{Name: "message-model", Selector: ".message.model"},
		},
	}
}

// ChatGPT returns the default profile for ChatGPT.
func ChatGPT() Profile {
	return Profile{
		Name:         "chatgpt",
		Label:        "ChatGPT",
		URL:          "https://chatgpt.com",
		Input:        "#prompt-textarea",
		Submit:       "[data-testid='send-button']",
		Ready:        "#prompt-textarea",
		LoginMarkers: []string{"auth.openai.com", "/auth/login"},
		Rules: []Rule{
			{Name: "author-role", Selector: "[data-message-author-role='assistant']"},
			{Name: "markdown", Selector: ".markdown.prose"},
		},
	}
}

// Registry holds the known profiles by name.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry seeded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	r.Register(Gemini())
	r.Register(ChatGPT())
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.profiles[p.Name] = p
}

// Get returns the profile with the given name.
func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown site profile %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names returns the sorted profile names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
