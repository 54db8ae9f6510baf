package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"webchat/internal/domain"
)

func TestAnswerLabel(t *testing.T) {
	cases := []struct {
		kind domain.ResultKind
		want string
	}{
		{domain.KindComplete, "Gemini (1.2s)"},
		{domain.KindPartial, "Gemini [partial] (1.2s)"},
		{domain.KindTimeout, "Gemini [timeout] (1.2s)"},
		{domain.KindDegraded, "Gemini [degraded] (1.2s)"},
		{domain.KindDegradedEmpty, "Gemini [degraded] (1.2s)"},
		{domain.KindDegradedError, "Gemini [degraded] (1.2s)"},
	}
	for _, tc := range cases {
		if got := AnswerLabel("Gemini", tc.kind, 1200*time.Millisecond); got != tc.want {
			t.Fatalf("AnswerLabel(%s) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestWriter_PlainOutputWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{Markdown: true})
	if w.TTY() {
		t.Fatal("a buffer is not a terminal")
	}

	w.Answer("Gemini", &domain.ChatResponse{
		Content:  "Hello there.",
		Markdown: "**Hello** there.",
		Kind:     domain.KindComplete,
	}, 2*time.Second)

	if buf.String() != "\nGemini (2.0s): Hello there.\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriter_TaggedAnswer(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{})
	w.Answer("ChatGPT", &domain.ChatResponse{Content: domain.TimeoutText, Kind: domain.KindTimeout}, 45*time.Second)
	if !strings.Contains(buf.String(), "ChatGPT [timeout] (45.0s): "+domain.TimeoutText) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriter_ErrorAndDim(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{})
	w.Error("send failed: %s", "boom")
	w.Dim("hint")
	if buf.String() != "Error: send failed: boom\nhint\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestSpinner_NoopWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{})
	s := w.NewSpinner("Waiting")
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop()
	if buf.Len() != 0 {
		t.Fatalf("spinner wrote to a non-terminal: %q", buf.String())
	}
}

func TestSpinner_AnimatesAndClears(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{ForceTTY: true})
	s := w.NewSpinner("Waiting")
	s.Start()
	s.Start()
	time.Sleep(250 * time.Millisecond)
	s.Stop()
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "Waiting") {
		t.Fatalf("expected spinner frames, got %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Fatalf("expected the line to be cleared, got %q", out)
	}
}

