package browser

import (
	"context"
	"strings"
	"testing"

	"webchat/internal/detect"
	"webchat/internal/domain"
	"webchat/internal/site"
)

const savedChat = `<!doctype html>
<html><head><title>Gemini</title><style>.x{}</style></head>
<body>
  <nav><a href="/">Gemini</a><span>New chat</span></nav>
  <main>
    <div class="conversation">
      <div class="user-query">What is Go?</div>
      <div data-message-author-role="model" class="model-response-text">
        <p>Go is a statically typed, compiled language.</p>
        <p>It was designed at <b>Google</b>.</p>
      </div>
      <div class="user-query">And channels?</div>
      <div data-message-author-role="model">
        <p>Channels connect concurrent goroutines.</p>
      </div>
    </div>
  </main>
  <script>var hidden = "not text";</script>
</body></html>`

func TestStaticPage_SnapshotAcrossRules(t *testing.T) {
	page, err := NewStaticPage(strings.NewReader(savedChat), site.Gemini().Rules, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := page.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// Two author-role matches plus the first div again via [class*='model-response'].
	if len(snap) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(snap))
	}
	text, err := snap.Newest().Text(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if text != "Go is a statically typed, compiled language.\nIt was designed at Google." {
		t.Fatalf("unexpected newest text %q", text)
	}
}

func TestStaticPage_InvalidSelectorIsIsolated(t *testing.T) {
	rules := []site.Rule{
		{Name: "broken", Selector: "div[[["},
		{Name: "author-role", Selector: "[data-message-author-role='model']"},
	}
	page, err := NewStaticPage(strings.NewReader(savedChat), rules, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	results := page.Rules(context.Background())
	if results[0].Err == nil {
		t.Fatal("expected the broken rule to report an error")
	}
	if len(results[1].Elements) != 2 {
		t.Fatalf("expected 2 matches for the valid rule, got %d", len(results[1].Elements))
	}
	snap, err := page.Snapshot(context.Background())
	if err != nil || len(snap) != 2 {
		t.Fatalf("expected 2 elements and no error, got %d %v", len(snap), err)
	}
}

func TestStaticPage_RawPageTextFeedsFallback(t *testing.T) {
	page, err := NewStaticPage(strings.NewReader(savedChat), nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	raw, err := page.RawPageText(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(raw, "hidden") {
		t.Fatalf("script content leaked into page text: %q", raw)
	}
	res := detect.Extract(context.Background(), page, detect.DefaultMinLineLength)
	if res.Kind != domain.KindDegraded || res.Text != "Channels connect concurrent goroutines." {
		t.Fatalf("unexpected fallback result %s %q", res.Kind, res.Text)
	}
}

func TestStaticPage_HTML(t *testing.T) {
	page, err := NewStaticPage(strings.NewReader(savedChat), []site.Rule{{Name: "r", Selector: "div[data-message-author-role]"}}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	snap, _ := page.Snapshot(context.Background())
	el, ok := snap[0].(domain.HTMLElement)
	if !ok {
		t.Fatal("static elements should expose HTML")
	}
	h, err := el.HTML(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h, "<b>Google</b>") {
		t.Fatalf("unexpected html %q", h)
	}
}

func TestInnerText_BreaksAndWhitespace(t *testing.T) {
	page, err := NewStaticPage(strings.NewReader(`<body><p>one
	   two</p>line<br>next<ul><li>a</li><li>b</li></ul></body>`), nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := page.RawPageText(context.Background())
	if raw != "one two\nline\nnext\na\nb" {
		t.Fatalf("unexpected text %q", raw)
	}
}
