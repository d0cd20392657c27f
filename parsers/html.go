package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "title, h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th"

// HTMLParser extracts the visible text of block level elements.
type HTMLParser struct{}

func (HTMLParser) Parse(ctx context.Context, r io.Reader, report Progress) (*Document, error) {
	report = reporter(report)
	report(0, 1)

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript, template").Remove()

	var blocks []string

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are emitted by their innermost element
		if s.Find(blockSelector).Length() > 0 {
			return
		}

		if text := collapseSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		if text := collapseSpace(doc.Find("body").Text()); text != "" {
			blocks = append(blocks, text)
		}
	}

	report(1, 1)

	return &Document{Text: strings.Join(blocks, "\n"), Sections: len(blocks)}, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
