package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// TextParser passes plain text through. Paragraphs separated by blank lines
// count as sections.
type TextParser struct{}

func (TextParser) Parse(ctx context.Context, r io.Reader, report Progress) (*Document, error) {
	report = reporter(report)
	report(0, 1)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	report(1, 1)

	return &Document{Text: text, Sections: countParagraphs(text)}, nil
}

func countParagraphs(text string) int {
	n := 0
	inPara := false

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			inPara = false
			continue
		}

		if !inPara {
			n++
			inPara = true
		}
	}

	return n
}
