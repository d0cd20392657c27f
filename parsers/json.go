package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// JSONParser flattens a JSON document into "path: value" lines, one per
// scalar leaf.
type JSONParser struct{}

func (JSONParser) Parse(ctx context.Context, r io.Reader, report Progress) (*Document, error) {
	report = reporter(report)
	report(0, 1)

	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lines []string

	flatten("", v, &lines)

	report(1, 1)

	return &Document{Text: strings.Join(lines, "\n"), Sections: len(lines)}, nil
}

func flatten(prefix string, v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}

			flatten(p, t[k], out)
		}
	case []any:
		for i, item := range t {
			flatten(prefix+"["+strconv.Itoa(i)+"]", item, out)
		}
	case nil:
		*out = append(*out, line(prefix, "null"))
	default:
		*out = append(*out, line(prefix, fmt.Sprint(t)))
	}
}

func line(path, value string) string {
	if path == "" {
		return value
	}

	return path + ": " + value
}
