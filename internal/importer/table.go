// Package importer turns spreadsheet exports of license assignments into a
// plan of ledger records. Parsing, validation, and entity resolution are pure;
// the service layer commits the resulting plan inside a store transaction.
package importer

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyInput is returned when the input holds no header row.
var ErrEmptyInput = errors.New("import input is empty")

// Table is a parsed import file: one header row plus data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// ParseCSV reads comma separated text. The dialect is deliberately small:
// lines are split on runs of CR/LF, blank lines are dropped, cells are split
// on every comma, trimmed, and lose one leading and one trailing double
// quote. Quoted commas and escaped quotes are not supported.
func ParseCSV(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read import input: %w", err)
	}
	return ParseCSVString(string(data))
}

// ParseCSVString parses text already held in memory. See ParseCSV.
func ParseCSVString(text string) (Table, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	var lines []string
	for _, line := range lineBreaks.Split(text, -1) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return Table{}, ErrEmptyInput
	}
	table := Table{Headers: splitCells(lines[0]), Rows: make([][]string, 0, len(lines)-1)}
	for _, line := range lines[1:] {
		table.Rows = append(table.Rows, splitCells(line))
	}
	return table, nil
}

func splitCells(line string) []string {
	cells := strings.Split(line, ",")
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		cell = strings.TrimPrefix(cell, `"`)
		cells[i] = strings.TrimSuffix(cell, `"`)
	}
	return cells
}

// ParseXLSX reads the first worksheet of an Excel workbook. Cells are trimmed
// and rows without any content are dropped, mirroring ParseCSV.
func ParseXLSX(r io.Reader) (Table, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, ErrEmptyInput
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	var kept [][]string
	for _, row := range rows {
		cells := make([]string, len(row))
		blank := true
		for i, cell := range row {
			cells[i] = strings.TrimSpace(cell)
			if cells[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		kept = append(kept, cells)
	}
	if len(kept) == 0 {
		return Table{}, ErrEmptyInput
	}
	return Table{Headers: kept[0], Rows: kept[1:]}, nil
}

// cell returns the value at index i, or "" when the row is short.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// rowData pairs every header with the row's value for it.
func (t Table) rowData(row []string) map[string]string {
	data := make(map[string]string, len(t.Headers))
	for i, header := range t.Headers {
		data[header] = cell(row, i)
	}
	return data
}

// headerIndex returns the first column whose header equals name exactly.
func (t Table) headerIndex(name string) int {
	for i, header := range t.Headers {
		if header == name {
			return i
		}
	}
	return -1
}
