package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"webchat/internal/domain"
	"webchat/internal/render"
)

// RelayClient talks to a remote Relay.
type RelayClient struct {
	baseURL     string
	accessKey   string
	busyRetries int
	retryBase   time.Duration
	http        *http.Client
	logger      *slog.Logger
}

type RelayClientConfig struct {
	BaseURL   string
	AccessKey string
	// Timeout bounds a whole /ask exchange, streaming included.
	Timeout time.Duration
	// BusyRetries is how many times an /ask rejected with 409 is resent.
	BusyRetries int
	// RetryBackoff scales the wait between busy retries (default 1s).
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

func NewRelayClient(cfg RelayClientConfig) *RelayClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &RelayClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessKey:   cfg.AccessKey,
		busyRetries: cfg.BusyRetries,
		retryBase:   cfg.RetryBackoff,
		http:        &http.Client{Timeout: cfg.Timeout},
		logger:      cfg.Logger,
	}
}

// Health checks that the relay is reachable.
func (c *RelayClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to relay: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}

// StatusError is returned for non-200 /ask responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.Code)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.Code, e.Message)
}

// Ask posts message and copies the streamed answer to out as it arrives.
// It returns the outcome kind reported by the relay, if any.
func (c *RelayClient) Ask(ctx context.Context, message string, out io.Writer) (string, error) {
	payload, err := json.Marshal(askRequest{Message: message})
	if err != nil {
		return "", err
	}
	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.accessKey != "" {
			req.Header.Set(accessKeyHeader, c.accessKey)
		}
		return req, nil
	}

	c.logger.Debug("relay: ask", "url", c.baseURL, "len", len(message))
	resp, err := doWithRetry(ctx, c.http, buildReq, c.busyRetries, c.retryBase, c.logger)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, relayMaxBodySize))
		if json.Unmarshal(data, &body) != nil {
			body.Error = strings.TrimSpace(string(data))
		}
		return "", &StatusError{Code: resp.StatusCode, Message: body.Error}
	}

	buf := make([]byte, 1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return "", werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return resp.Trailer.Get(resultKindTrailer), nil
}

// RunREPL reads messages from in until quit or EOF and prints each streamed
// answer after label.
func (c *RelayClient) RunREPL(ctx context.Context, label string, in io.Reader, out io.Writer) error {
	w := render.NewWriter(out, render.Options{})
	scanner := bufio.NewScanner(in)
	for {
		w.Print("You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if IsQuit(line) {
			return nil
		}

		w.Print("%s: ", label)
		if err := c.AskLine(ctx, line, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Println("")
			w.Error("%v", err)
		}
	}
}

// AskLine streams one answer to out and ends the line, tagging any answer
// that did not complete normally.
func (c *RelayClient) AskLine(ctx context.Context, message string, out io.Writer) error {
	kind, err := c.Ask(ctx, message, out)
	if err != nil {
		return err
	}
	w := render.NewWriter(out, render.Options{})
	if tag := render.Tag(domain.ResultKind(kind)); tag != "" {
		w.Print(" %s", tag)
	}
	w.Println("")
	return nil
}
