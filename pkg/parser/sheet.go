package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// maxSheetRows bounds how much of a legacy xls workbook is read.
const maxSheetRows = 100000

// ParseXLSX reads the first sheet of an xlsx workbook into a Table.
func (p *Parser) ParseXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	p.logger.Debug("read xlsx sheet", "sheet", sheets[0], "rows", len(rows))
	return fromRows(rows)
}

// ParseXLS reads the first sheet of a legacy xls workbook into a Table.
func (p *Parser) ParseXLS(data []byte) (*Table, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "cp1252")
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}
	rows := workbook.ReadAllCells(maxSheetRows)
	p.logger.Debug("read xls sheet", "rows", len(rows))
	return fromRows(rows)
}

// fromRows applies the tokenizer's line rules to pre-split spreadsheet rows.
func fromRows(rows [][]string) (*Table, error) {
	var kept [][]string
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, c := range row {
			if i == 0 && j == 0 {
				c = strings.TrimPrefix(c, byteOrderMark)
			}
			cells[j] = CleanToken(c)
		}
		if skipCells(cells) {
			continue
		}
		kept = append(kept, cells)
	}
	if len(kept) == 0 {
		return nil, ErrEmptyInput
	}
	return &Table{Headers: trimTrailingEmpty(kept[0]), Rows: kept[1:]}, nil
}

// skipCells is skipLine for a row of cleaned cells: the row is blank, or
// its first non-empty cell opens a comment.
func skipCells(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return strings.HasPrefix(c, commentMarker)
		}
	}
	return true
}

// trimTrailingEmpty drops blank header cells spreadsheets pad rows with.
func trimTrailingEmpty(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
