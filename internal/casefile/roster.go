package casefile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadRoster reads a two-column (name, id) roster from a .csv or .xlsx file
// and returns id → name. Blank rows are skipped.
func LoadRoster(path string) (map[string]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadRosterXLSX(path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()
	return ReadRosterCSV(file)
}

// ReadRosterCSV parses CSV rows of name,id.
func ReadRosterCSV(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return rosterFromRows(rows)
}

func loadRosterXLSX(path string) (map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open roster workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("roster workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rosterFromRows(rows)
}

func rosterFromRows(rows [][]string) (map[string]string, error) {
	out := make(map[string]string, len(rows))
	for i, row := range rows {
		if blank(row) {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("roster row %d: want name and id, got %d column(s)", i+1, len(row))
		}
		name, id := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if id == "" {
			return nil, fmt.Errorf("roster row %d: empty id", i+1)
		}
		out[id] = name
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
