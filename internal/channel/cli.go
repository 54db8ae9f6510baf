package channel

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"webchat/internal/domain"
	"webchat/internal/render"
)

var _ domain.Channel = (*CLI)(nil)

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	label  string
	logger *slog.Logger
	in     io.Reader
	w      *render.Writer
}

type CLIConfig struct {
	// Label is printed in front of answers.
	Label    string
	Markdown bool
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Label == "" {
		cfg.Label = "Assistant"
	}
	return &CLI{
		label:  cfg.Label,
		logger: cfg.Logger,
		in:     cfg.In,
		w:      render.NewWriter(cfg.Out, render.Options{Markdown: cfg.Markdown}),
	}
}

func (c *CLI) Name() string { return "cli" }

// IsQuit reports whether a REPL line asks to leave.
func IsQuit(line string) bool {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(line), "/")) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// Start runs the interactive REPL and blocks until EOF, a quit command or
// context cancellation.
func (c *CLI) Start(ctx context.Context, p domain.Provider) error {
	c.w.Println("%s terminal chat. Type 'quit' to exit.", c.label)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		c.w.Print("\nYou: ")

		var line string
		select {
		case <-ctx.Done():
			c.w.Println("")
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if IsQuit(line) {
			c.logger.Info("user requested quit")
			c.w.Println("Goodbye!")
			return nil
		}

		if err := c.ask(ctx, p, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.w.Error("%v", err)
		}
	}
}

func (c *CLI) ask(ctx context.Context, p domain.Provider, message string) error {
	spin := c.w.NewSpinner("Waiting for response...")
	spin.Start()
	start := time.Now()
	resp, err := p.Chat(ctx, domain.ChatRequest{Message: message})
	spin.Stop()
	if err != nil {
		if errors.Is(err, domain.ErrBusy) {
			return errors.New("still waiting for the previous answer")
		}
		return err
	}
	c.w.Answer(c.label, resp, time.Since(start))
	return nil
}

// Stop is a no-op; the REPL exits when Start returns.
func (c *CLI) Stop() error { return nil }
