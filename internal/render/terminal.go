// Package render prints chat output to a terminal, styling labels and
// rendering markdown answers when the output is an interactive terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"webchat/internal/domain"
)

// Writer serialises output from the REPL, the spinner and log-free status
// lines onto one stream.
type Writer struct {
	out      io.Writer
	tty      bool
	renderer *glamour.TermRenderer
	mu       sync.Mutex

	labelStyle lipgloss.Style
	tagStyle   lipgloss.Style
	errorStyle lipgloss.Style
	dimStyle   lipgloss.Style
	okStyle    lipgloss.Style
}

type Options struct {
	// Markdown enables glamour rendering; it only applies on a terminal.
	Markdown bool
	// ForceTTY treats out as a terminal even when it is not a file.
	ForceTTY bool
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func NewWriter(out io.Writer, opts Options) *Writer {
	w := &Writer{
		out: out,
		tty: opts.ForceTTY || IsTerminal(out),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#5599FF"}).
			Bold(true),
		tagStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"}),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
	}
	if w.tty && opts.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			w.renderer = r
		}
	}
	return w
}

// TTY reports whether styled output is enabled.
func (w *Writer) TTY() bool { return w.tty }

func (w *Writer) style(s lipgloss.Style, text string) string {
	if !w.tty {
		return text
	}
	return s.Render(text)
}

// Tag returns the bracketed outcome marker shown for answers that did not
// complete normally, or "" for complete ones.
func Tag(kind domain.ResultKind) string {
	switch kind {
	case domain.KindComplete, "":
		return ""
	case domain.KindPartial:
		return "[partial]"
	case domain.KindTimeout:
		return "[timeout]"
	default:
		return "[degraded]"
	}
}

// AnswerLabel formats the prefix printed before an answer, e.g.
// "Gemini (1.2s)" or "Gemini [partial] (45.0s)".
func AnswerLabel(name string, kind domain.ResultKind, elapsed time.Duration) string {
	parts := []string{name}
	if tag := Tag(kind); tag != "" {
		parts = append(parts, tag)
	}
	parts = append(parts, fmt.Sprintf("(%.1fs)", elapsed.Seconds()))
	return strings.Join(parts, " ")
}

// Answer prints one answer. Markdown is preferred on a terminal when given.
func (w *Writer) Answer(name string, resp *domain.ChatResponse, elapsed time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	label := w.style(w.labelStyle, name)
	if tag := Tag(resp.Kind); tag != "" {
		label += " " + w.style(w.tagStyle, tag)
	}
	label += fmt.Sprintf(" (%.1fs):", elapsed.Seconds())

	if w.renderer != nil && resp.Markdown != "" {
		rendered, err := w.renderer.Render(resp.Markdown)
		if err == nil {
			fmt.Fprintf(w.out, "\n%s\n%s", label, rendered)
			return
		}
	}
	fmt.Fprintf(w.out, "\n%s %s\n", label, resp.Content)
}

func (w *Writer) Print(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

func (w *Writer) Println(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Error prints an error line.
func (w *Writer) Error(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.style(w.errorStyle, "Error: "+fmt.Sprintf(format, args...)))
}

// Dim prints secondary text.
func (w *Writer) Dim(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.style(w.dimStyle, fmt.Sprintf(format, args...)))
}

// Success prints a confirmation line.
func (w *Writer) Success(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, w.style(w.okStyle, "✓ "+fmt.Sprintf(format, args...)))
}
