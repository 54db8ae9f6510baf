package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"
)

// doWithRetry executes a request, resending it with backoff while the relay
// answers 409. A busy rejection never reaches the page, so resending is safe.
// Other statuses and transport errors are returned as-is: an /ask that failed
// mid-flight may already have been typed into the page.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), retries int, base time.Duration, logger *slog.Logger) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			// Quadratic backoff with jitter so queued callers spread out.
			wait := time.Duration(attempt*attempt) * base
			wait += time.Duration(rand.Int64N(int64(wait/2 + 1)))
			logger.Warn("relay busy, retrying", "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusConflict || attempt >= retries {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, relayMaxBodySize))
		resp.Body.Close()
		logger.Debug("relay rejected request", "status", resp.StatusCode, "body", string(body))
	}
}
