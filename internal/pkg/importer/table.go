package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type, upload .csv or .xlsx")
	ErrEmptyFile       = errors.New("file has no data rows")
)

// MaxRows caps one import.
const MaxRows = 5000

// Upload is an uploaded spreadsheet.
type Upload struct {
	Name string
	Data []byte
}

// Table is a parsed sheet. Headers are normalised; rows never include the header row.
type Table struct {
	Headers []string
	Rows    [][]string
	index   map[string]int
}

// ReadTable parses .csv with encoding/csv and .xlsx with excelize (first sheet).
func ReadTable(u Upload) (*Table, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(u.Name)) {
	case ".csv":
		rows, err = readCSV(u.Data)
	case ".xlsx":
		rows, err = readXLSX(u.Data)
	default:
		return nil, ErrUnsupportedFile
	}
	if err != nil {
		return nil, err
	}

	rows = dropBlankRows(rows)
	if len(rows) < 2 {
		return nil, ErrEmptyFile
	}
	if len(rows)-1 > MaxRows {
		return nil, fmt.Errorf("file has %d rows, the limit is %d", len(rows)-1, MaxRows)
	}

	t := &Table{index: map[string]int{}}
	for i, h := range rows[0] {
		name := normalizeHeader(h)
		t.Headers = append(t.Headers, name)
		if _, dup := t.index[name]; !dup && name != "" {
			t.index[name] = i
		}
	}
	t.Rows = rows[1:]
	return t, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if semicolonSeparated(data) {
		r.Comma = ';'
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// semicolonSeparated detects the spreadsheet export variant used with decimal commas.
func semicolonSeparated(data []byte) bool {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	return bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(","))
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no worksheet found")
	}
	return file.GetRows(sheetName)
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func normalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.Join(strings.Fields(h), "_")
	return strings.ReplaceAll(h, "-", "_")
}

// HasHeader reports whether the sheet has the (normalised) column.
func (t *Table) HasHeader(header string) bool {
	_, ok := t.index[normalizeHeader(header)]
	return ok
}

// Cell returns the trimmed value of header in row, or "" when absent.
func (t *Table) Cell(row []string, header string) string {
	idx, ok := t.index[normalizeHeader(header)]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount accepts "1000", "1,000.50", "1.000,50" and a leading currency sign.
func parseAmount(v string) (float64, error) {
	v = strings.TrimSpace(v)
	v = strings.TrimLeft(v, "$€£ ")
	v = strings.ReplaceAll(v, " ", "")
	if v == "" {
		return 0, errors.New("empty amount")
	}
	lastDot := strings.LastIndex(v, ".")
	lastComma := strings.LastIndex(v, ",")
	switch {
	case lastComma > lastDot:
		v = strings.ReplaceAll(v, ".", "")
		v = strings.Replace(v, ",", ".", 1)
	default:
		v = strings.ReplaceAll(v, ",", "")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", v)
	}
	return f, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

// parseDate accepts ISO dates, day-first dates and Excel serial numbers.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		if serial >= 20000 && serial <= 80000 {
			return excelize.ExcelDateToTime(serial, false)
		}
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}
