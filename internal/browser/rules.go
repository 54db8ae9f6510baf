package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"webchat/internal/domain"
	"webchat/internal/site"
)

// RuleResult is what one selector rule matched during a snapshot.
type RuleResult struct {
	Rule     site.Rule
	Elements []domain.Element
	Err      error
}

// collectFunc returns the elements matching one CSS selector in document order.
type collectFunc func(ctx context.Context, selector string) ([]domain.Element, error)

// evaluateRules runs every rule in order. A failing rule is recorded and the
// remaining rules still run.
func evaluateRules(ctx context.Context, rules []site.Rule, collect collectFunc, logger *slog.Logger) []RuleResult {
	results := make([]RuleResult, 0, len(rules))
	for _, r := range rules {
		els, err := collect(ctx, r.Selector)
		if err != nil {
			logger.Debug("selector rule failed", "rule", r.Name, "selector", r.Selector, "err", err)
		}
		results = append(results, RuleResult{Rule: r, Elements: els, Err: err})
	}
	return results
}

// mergeResults concatenates rule matches into one snapshot. Elements matched
// by several rules appear once per rule. It fails only when every rule failed.
func mergeResults(results []RuleResult) (domain.Snapshot, error) {
	var (
		snap   domain.Snapshot
		errs   []error
		failed int
	)
	for _, r := range results {
		if r.Err != nil {
			failed++
			errs = append(errs, fmt.Errorf("rule %s: %w", r.Rule.Name, r.Err))
			continue
		}
		snap = append(snap, r.Elements...)
	}
	if len(results) > 0 && failed == len(results) {
		return nil, fmt.Errorf("all selector rules failed: %w", errors.Join(errs...))
	}
	return snap, nil
}
