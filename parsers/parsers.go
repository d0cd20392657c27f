// Package parsers extracts plain text from uploaded documents.
package parsers

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
)

var ErrUnsupported = errors.New("unsupported file type")

// Progress is called by parsers as they advance. A total of zero means the
// amount of remaining work is not known.
type Progress func(current, total int)

// Document is the result of a parse.
type Document struct {
	Text     string
	Sections int
}

type Parser interface {
	Parse(ctx context.Context, r io.Reader, report Progress) (*Document, error)
}

// Registry maps lower-case file extensions (with the leading dot) to parsers.
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Default returns a registry with every built-in parser.
func Default() *Registry {
	r := NewRegistry()

	text := TextParser{}
	for _, ext := range []string{".txt", ".md", ".log"} {
		r.Register(ext, text)
	}

	r.Register(".csv", CSVParser{})
	r.Register(".json", JSONParser{})
	r.Register(".html", HTMLParser{})
	r.Register(".htm", HTMLParser{})
	r.Register(".xlsx", XLSXParser{})

	return r
}

func (r *Registry) Register(ext string, p Parser) {
	r.parsers[strings.ToLower(ext)] = p
}

// For returns the parser for filename's extension.
func (r *Registry) For(filename string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(path.Ext(filename))]
	if !ok {
		return nil, ErrUnsupported
	}

	return p, nil
}

func (r *Registry) IsSupported(filename string) bool {
	_, err := r.For(filename)
	return err == nil
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	return exts
}

var defaultRegistry = Default()

// IsSupported reports whether the default registry can parse filename.
func IsSupported(filename string) bool {
	return defaultRegistry.IsSupported(filename)
}

func noop(int, int) {}

func reporter(report Progress) Progress {
	if report == nil {
		return noop
	}

	return report
}
