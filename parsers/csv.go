package parsers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const progressEvery = 500

// CSVParser renders each record as a tab separated line.
type CSVParser struct{}

func (CSVParser) Parse(ctx context.Context, r io.Reader, report Progress) (*Document, error) {
	report = reporter(report)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var sb strings.Builder

	rows := 0

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", rows+1, err)
		}

		sb.WriteString(strings.Join(rec, "\t"))
		sb.WriteByte('\n')

		rows++

		if rows%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			report(rows, 0)
		}
	}

	report(rows, rows)

	return &Document{Text: sb.String(), Sections: rows}, nil
}
