package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"webchat/internal/domain"
	"webchat/internal/site"
)

// StaticPage is a read-only page accessor over a saved HTML document. It is
// used to check selector rules against a captured page without a browser.
type StaticPage struct {
	doc    *goquery.Document
	rules  []site.Rule
	logger *slog.Logger
}

// NewStaticPage parses an HTML document.
func NewStaticPage(r io.Reader, rules []site.Rule, logger *slog.Logger) (*StaticPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticPage{doc: doc, rules: rules, logger: logger}, nil
}

func (p *StaticPage) Rules(ctx context.Context) []RuleResult {
	return evaluateRules(ctx, p.rules, p.collect, p.logger)
}

func (p *StaticPage) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return mergeResults(p.Rules(ctx))
}

func (p *StaticPage) collect(ctx context.Context, selector string) ([]domain.Element, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	var els []domain.Element
	p.doc.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		els = append(els, staticElement{sel: s})
	})
	return els, nil
}

func (p *StaticPage) RawPageText(ctx context.Context) (string, error) {
	body := p.doc.Find("body")
	if body.Length() == 0 {
		return "", nil
	}
	return innerText(body.Nodes[0]), nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e staticElement) Text(ctx context.Context) (string, error) {
	if e.sel.Length() == 0 {
		return "", nil
	}
	return innerText(e.sel.Nodes[0]), nil
}

func (e staticElement) HTML(ctx context.Context) (string, error) {
	return e.sel.Html()
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true,
}

// innerText approximates the browser's innerText: block elements and <br>
// start new lines, scripts and styles are dropped, runs of blank lines
// collapse.
func innerText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			writeText(&sb, n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "br":
				sb.WriteByte('\n')
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	walk(n)

	lines := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// writeText appends collapsed text, keeping one space where the source had
// whitespace at either edge so inline neighbours neither merge nor split.
func writeText(sb *strings.Builder, data string) {
	fields := strings.Fields(data)
	if len(fields) == 0 {
		if data != "" {
			sb.WriteByte(' ')
		}
		return
	}
	if strings.TrimLeftFunc(data, unicode.IsSpace) != data {
		sb.WriteByte(' ')
	}
	sb.WriteString(strings.Join(fields, " "))
	if strings.TrimRightFunc(data, unicode.IsSpace) != data {
		sb.WriteByte(' ')
	}
}
