package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders every sheet as a header line followed by tab separated
// rows. Each sheet is one section.
type XLSXParser struct{}

func (XLSXParser) Parse(ctx context.Context, r io.Reader, report Progress) (*Document, error) {
	report = reporter(report)

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	defer f.Close()

	sheets := f.GetSheetList()

	var sb strings.Builder

	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report(i, len(sheets))

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}

		if i > 0 {
			sb.WriteByte('\n')
		}

		sb.WriteString("# ")
		sb.WriteString(sheet)
		sb.WriteByte('\n')

		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
	}

	report(len(sheets), len(sheets))

	return &Document{Text: sb.String(), Sections: len(sheets)}, nil
}
