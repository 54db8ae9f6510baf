package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"webchat/internal/domain"
)

func TestIsQuit(t *testing.T) {
	for _, line := range []string{"quit", "exit", "q", "QUIT", " Exit ", "/quit", "/q"} {
		if !IsQuit(line) {
			t.Fatalf("%q should quit", line)
		}
	}
	for _, line := range []string{"quite", "question", "", "/help"} {
		if IsQuit(line) {
			t.Fatalf("%q should not quit", line)
		}
	}
}

func TestCLI_AnswersUntilQuit(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: "Go is a compiled language.", Kind: domain.KindComplete}}
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Label:  "Gemini",
		Logger: testLogger(),
		In:     strings.NewReader("What is Go?\n\n   \nq\nnever sent\n"),
		Out:    &out,
	})

	if err := cli.Start(context.Background(), p); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(p.got) != 1 || p.got[0] != "What is Go?" {
		t.Fatalf("unexpected messages %q", p.got)
	}
	text := out.String()
	if !strings.Contains(text, "\nGemini (") || !strings.Contains(text, "s): Go is a compiled language.\n") {
		t.Fatalf("unexpected output %q", text)
	}
	if strings.Count(text, "You: ") != 4 {
		t.Fatalf("expected a prompt per line read, got %q", text)
	}
	if !strings.HasSuffix(text, "Goodbye!\n") {
		t.Fatalf("expected a goodbye, got %q", text)
	}
}

func TestCLI_LabelCarriesOutcome(t *testing.T) {
	p := &stubProvider{resp: &domain.ChatResponse{Content: "half an answer", Kind: domain.KindPartial}}
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Label: "Gemini", Logger: testLogger(), In: strings.NewReader("hi\n"), Out: &out})

	if err := cli.Start(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Gemini [partial] (") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestCLI_ErrorsDoNotEndTheLoop(t *testing.T) {
	p := &stubProvider{err: errors.New("input box not found")}
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{Label: "Gemini", Logger: testLogger(), In: strings.NewReader("one\ntwo\n"), Out: &out})

	if err := cli.Start(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if len(p.got) != 2 {
		t.Fatalf("expected both messages to be tried, got %q", p.got)
	}
	if strings.Count(out.String(), "Error: input box not found") != 2 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestCLI_ContextCancelStops(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cli := NewCLI(CLIConfig{Logger: testLogger(), In: pr, Out: io.Discard})

	done := make(chan error, 1)
	go func() { done <- cli.Start(ctx, &stubProvider{}) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("REPL did not stop on cancel")
	}
}
