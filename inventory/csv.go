package inventory

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Import sheet columns.
const (
	ColProductName    = "product_name"
	ColCategory       = "category"
	ColPrice          = "price"
	ColStock          = "stock"
	ColSalesLastMonth = "sales_last_month"
)

var requiredColumns = []string{ColProductName, ColStock, ColSalesLastMonth}

// ErrInvalidImport is returned when a sheet has row or header problems.
var ErrInvalidImport = errors.New("invalid import sheet")

// RowIssue is a problem found on one line of the sheet. Line is 1-based and
// counts the header.
type RowIssue struct {
	Line    int
	Column  string
	Message string
}

func (i RowIssue) String() string {
	if i.Column == "" {
		return fmt.Sprintf("line %d: %s", i.Line, i.Message)
	}
	return fmt.Sprintf("line %d, %s: %s", i.Line, i.Column, i.Message)
}

// ImportError lists every issue found in a sheet.
type ImportError struct {
	Issues []RowIssue
}

func (e *ImportError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidImport, strings.Join(parts, "; "))
}

func (e *ImportError) Unwrap() error {
	return ErrInvalidImport
}

// ValidateImportCSV parses an inventory sheet and checks every row. It
// returns the parsed rows, or an *ImportError listing all issues found.
func ValidateImportCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ImportError{Issues: []RowIssue{{Line: 1, Message: "file is empty"}}}
	}
	if err != nil {
		return nil, fmt.Errorf("[inventory ValidateImportCSV] read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	var issues []RowIssue
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			issues = append(issues, RowIssue{Line: 1, Column: name, Message: "missing column"})
		}
	}
	if len(issues) > 0 {
		return nil, &ImportError{Issues: issues}
	}

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			line := 0
			if errors.As(err, &parseErr) {
				line = parseErr.Line
			}
			issues = append(issues, RowIssue{Line: line, Message: err.Error()})
			continue
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		row, rowIssues := parseRow(line, cols, record)
		issues = append(issues, rowIssues...)
		rows = append(rows, row)
	}

	if len(issues) > 0 {
		return nil, &ImportError{Issues: issues}
	}
	if len(rows) == 0 {
		return nil, &ImportError{Issues: []RowIssue{{Line: 2, Message: "no data rows"}}}
	}
	return rows, nil
}

func parseRow(line int, cols map[string]int, record []string) (ImportRow, []RowIssue) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var issues []RowIssue
	row := ImportRow{
		ProductName: field(ColProductName),
		Category:    field(ColCategory),
	}
	if row.ProductName == "" {
		issues = append(issues, RowIssue{Line: line, Column: ColProductName, Message: "required"})
	}

	if v := field(ColPrice); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil:
			issues = append(issues, RowIssue{Line: line, Column: ColPrice, Message: fmt.Sprintf("%q is not a number", v)})
		case f < 0:
			issues = append(issues, RowIssue{Line: line, Column: ColPrice, Message: "must not be negative"})
		default:
			row.Price = json.Number(v)
		}
	}

	for _, col := range []string{ColStock, ColSalesLastMonth} {
		v := field(col)
		n, err := strconv.Atoi(v)
		switch {
		case v == "":
			issues = append(issues, RowIssue{Line: line, Column: col, Message: "required"})
			continue
		case err != nil:
			issues = append(issues, RowIssue{Line: line, Column: col, Message: fmt.Sprintf("%q is not a whole number", v)})
			continue
		case n < 0:
			issues = append(issues, RowIssue{Line: line, Column: col, Message: "must not be negative"})
			continue
		}
		if col == ColStock {
			row.Stock = json.Number(v)
		} else {
			row.SalesLastMonth = json.Number(v)
		}
	}
	return row, issues
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
