// Package listfile reads the externally maintained audit list from a text,
// CSV or spreadsheet file.
package listfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/erp/stockaudit/internal/domain/audit"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// HeaderChassis is the optional header cell naming the chassis column.
const HeaderChassis = "Chassis"

var (
	// ErrInvalidEncoding is returned for files that are not UTF-8.
	ErrInvalidEncoding = errors.New("audit list file must be UTF-8 encoded")
	// ErrNoSheet is returned for a workbook without worksheets.
	ErrNoSheet = errors.New("audit list workbook has no worksheet")
)

// Load reads the audit list at path. Spreadsheets (.xlsx) are read from the
// first worksheet; anything else is parsed as delimited text.
func Load(path string) (audit.AuditList, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadWorkbook(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit list: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads one chassis per record from the first field. Blank lines,
// lines starting with '#' and a leading "Chassis" header are skipped. Input
// starting with a UTF-8 or UTF-16 byte order mark is decoded accordingly;
// anything else must be UTF-8.
func Parse(r io.Reader) (audit.AuditList, error) {
	// Spreadsheet "Unicode text" exports are UTF-16 with a BOM
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(encoding.Nop.NewDecoder())))
	if err != nil {
		return nil, fmt.Errorf("read audit list: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comment = '#'
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var cells []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read audit list: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		cells = append(cells, record[0])
	}
	return fromColumn(cells), nil
}

func loadWorkbook(path string) (audit.AuditList, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open audit list workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read audit list worksheet %s: %w", sheets[0], err)
	}

	cells := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			cells = append(cells, row[0])
		}
	}
	return fromColumn(cells), nil
}

// fromColumn trims cells, drops blanks and a leading header. Everything
// else is kept verbatim so validation can reject it.
func fromColumn(cells []string) audit.AuditList {
	list := make(audit.AuditList, 0, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if i == 0 && strings.EqualFold(c, HeaderChassis) {
			continue
		}
		list = append(list, c)
	}
	return list
}
