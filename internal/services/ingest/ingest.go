// Package ingest parses uploaded bill and order files into sheets.
// CSV, XLSX and ZIP archives of either are supported.
package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"billrecon/internal/models"
)

// Sheet is one parsed table: a CSV file or a single workbook sheet.
type Sheet struct {
	Name    string
	Columns []string
	Rows    []models.Row
}

// delimiters tried when sniffing a CSV file, in preference order.
var delimiters = []rune{',', '\t', ';', '|'}

// File parses an uploaded file by extension. ZIP archives are walked
// recursively; unsupported entries inside an archive are skipped.
func File(name string, data []byte) ([]Sheet, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		sheet, err := CSV(name, data)
		if err != nil {
			return nil, err
		}
		return []Sheet{sheet}, nil
	case ".xlsx", ".xls":
		return XLSX(name, data)
	case ".zip":
		return Zip(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(name))
	}
}

// CSV parses one delimited text file. The delimiter is sniffed from
// the header line; blank header cells get positional names.
func CSV(name string, data []byte) (Sheet, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Sheet{}, fmt.Errorf("error reading header: %w", err)
	}
	columns := headerNames(header)

	sheet := Sheet{
		Name:    sheetName(name),
		Columns: columns,
	}

	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: error reading line %d of %s: %v", lineNum+1, name, err)
			lineNum++
			continue
		}
		lineNum++

		if blankRecord(record) {
			continue
		}
		sheet.Rows = append(sheet.Rows, buildRow(columns, record))
	}

	return sheet, nil
}

// XLSX parses every non-empty sheet of a workbook. The first row of
// each sheet is the header.
func XLSX(name string, data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening workbook %s: %w", name, err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, sheetTitle := range f.GetSheetList() {
		rows, err := f.GetRows(sheetTitle)
		if err != nil {
			return nil, fmt.Errorf("error reading sheet %s: %w", sheetTitle, err)
		}
		if len(rows) < 1 {
			continue
		}

		columns := headerNames(rows[0])
		sheet := Sheet{
			Name:    sheetTitle,
			Columns: columns,
		}
		for _, record := range rows[1:] {
			if blankRecord(record) {
				continue
			}
			sheet.Rows = append(sheet.Rows, buildRow(columns, record))
		}
		if len(sheet.Rows) == 0 && len(sheet.Columns) == 0 {
			continue
		}
		sheets = append(sheets, sheet)
	}

	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no usable sheets", name)
	}
	return sheets, nil
}

// Zip walks an archive and parses every supported entry. macOS
// metadata entries are skipped.
func Zip(data []byte) ([]Sheet, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("error opening archive: %w", err)
	}

	var sheets []Sheet
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		base := filepath.Base(entry.Name)
		if strings.HasPrefix(entry.Name, "__MACOSX/") || strings.HasPrefix(base, "._") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name))
		if ext != ".csv" && ext != ".txt" && ext != ".xlsx" && ext != ".xls" && ext != ".zip" {
			log.Printf("Skipping unsupported archive entry: %s", entry.Name)
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening archive entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading archive entry %s: %w", entry.Name, err)
		}

		parsed, err := File(base, content)
		if err != nil {
			log.Printf("Warning: failed to parse archive entry %s: %v", entry.Name, err)
			continue
		}
		sheets = append(sheets, parsed...)
	}

	if len(sheets) == 0 {
		return nil, fmt.Errorf("archive contains no usable files")
	}
	return sheets, nil
}

// sniffDelimiter counts candidate delimiters in the first line and
// picks the most frequent one. Ties keep the earlier candidate, so a
// plain file defaults to comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best := delimiters[0]
	bestCount := 0
	for _, d := range delimiters {
		count := bytes.Count(line, []byte(string(d)))
		if count > bestCount {
			best = d
			bestCount = count
		}
	}
	return best
}

func sheetName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func headerNames(header []string) []string {
	columns := make([]string, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "" {
			col = fmt.Sprintf("Column %d", i+1)
		}
		columns[i] = col
	}
	return columns
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// buildRow maps a record onto the header, coercing numeric text to
// numbers. Short records leave trailing columns empty.
func buildRow(columns []string, record []string) models.Row {
	row := make(models.Row, len(columns))
	for i, col := range columns {
		if i >= len(record) {
			row[col] = ""
			continue
		}
		row[col] = coerceCell(record[i])
	}
	return row
}

// coerceCell turns purely numeric text into a float64. Values with a
// leading zero stay strings: order and tracking numbers must keep
// their digits.
func coerceCell(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) > 1 && trimmed[0] == '0' && trimmed[1] != '.' {
		return trimmed
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return trimmed
}
