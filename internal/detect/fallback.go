package detect

import (
	"context"
	"strings"
	"unicode/utf8"

	"webchat/internal/domain"
)

// Extract recovers a best-effort answer from the raw page text: the last line
// longer than minLineLength runes. It never fails; problems collapse into a
// sentinel result.
func Extract(ctx context.Context, page domain.PageAccessor, minLineLength int) (res domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Result{Kind: domain.KindDegradedError, Text: domain.ExtractFailedText}
		}
	}()

	text, err := page.RawPageText(ctx)
	if err != nil {
		return domain.Result{Kind: domain.KindDegradedError, Text: domain.ExtractFailedText}
	}
	return ExtractText(text, minLineLength)
}

// ExtractText applies the line filter to already captured page text.
func ExtractText(text string, minLineLength int) domain.Result {
	last := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > minLineLength {
			last = line
		}
	}
	if last == "" {
		return domain.Result{Kind: domain.KindDegradedEmpty, Text: domain.NoExtractText}
	}
	return domain.Result{Kind: domain.KindDegraded, Text: last}
}
