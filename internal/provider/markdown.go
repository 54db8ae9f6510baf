package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"webchat/internal/domain"
)

// Markdown converts answer HTML into markdown so code blocks, lists and
// tables survive for terminal rendering.
type Markdown struct {
	conv   *converter.Converter
	logger *slog.Logger
}

func NewMarkdown(logger *slog.Logger) *Markdown {
	if logger == nil {
		logger = slog.Default()
	}
	return &Markdown{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// Convert returns markdown for an HTML fragment.
func (m *Markdown) Convert(html string) (string, error) {
	md, err := m.conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

// FromElement converts el's inner HTML. It reports false when the element
// cannot expose HTML or the conversion fails; callers keep the plain text.
func (m *Markdown) FromElement(ctx context.Context, el domain.Element) (string, bool) {
	he, ok := el.(domain.HTMLElement)
	if !ok {
		return "", false
	}
	h, err := he.HTML(ctx)
	if err != nil {
		m.logger.Debug("markdown: read html", "err", err)
		return "", false
	}
	md, err := m.Convert(h)
	if err != nil || md == "" {
		m.logger.Debug("markdown: convert", "err", err)
		return "", false
	}
	return md, true
}
