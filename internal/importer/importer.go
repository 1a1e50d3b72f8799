// Package importer reads pending requirements and existing stock rolls from
// CSV and Excel sheets. It detects the CSV delimiter, maps columns by header
// name (case-insensitive, with aliases) and falls back to positional columns
// when the sheet has no header.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Kind selects what a sheet holds.
type Kind int

const (
	Requirements Kind = iota
	Stock
)

func (k Kind) String() string {
	if k == Stock {
		return "stock"
	}
	return "requirements"
}

// Column is a semantic column role.
type Column string

const (
	ColOrder    Column = "order"
	ColRollID   Column = "id"
	ColWidth    Column = "width"
	ColGSM      Column = "gsm"
	ColBF       Column = "bf"
	ColShade    Column = "shade"
	ColQuantity Column = "quantity"
	ColReason   Column = "reason"
	ColSource   Column = "source"
)

// ImportResult holds the rows read and the problems found. Rows with errors
// are skipped; warnings do not drop the row.
type ImportResult struct {
	Requirements []model.PendingRequirement
	Stock        []model.ExistingStockRoll
	Errors       []string
	Warnings     []string
}

// Err folds the collected row errors into one InvalidInput error, or nil.
func (r ImportResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrInvalidInput, strings.Join(r.Errors, "; "))
}

// ColumnMapping maps column roles to indices in a row. Unmapped roles are
// absent.
type ColumnMapping map[Column]int

// Index returns the column index for a role or -1.
func (m ColumnMapping) Index(c Column) int {
	if i, ok := m[c]; ok {
		return i
	}
	return -1
}

type layout struct {
	positional []Column
	required   []Column
	aliases    map[Column][]string
}

var layouts = map[Kind]layout{
	Requirements: {
		positional: []Column{ColOrder, ColWidth, ColGSM, ColBF, ColShade, ColQuantity, ColReason},
		required:   []Column{ColOrder, ColWidth, ColGSM, ColBF, ColShade, ColQuantity},
		aliases: map[Column][]string{
			ColOrder:    {"order", "order id", "order_id", "so", "sales order", "order no"},
			ColWidth:    {"width", "w", "size", "deckle", "width (in)"},
			ColGSM:      {"gsm", "grammage", "weight"},
			ColBF:       {"bf", "burst factor", "burst"},
			ColShade:    {"shade", "colour", "color", "grade"},
			ColQuantity: {"quantity", "qty", "count", "rolls", "pcs"},
			ColReason:   {"reason", "note", "notes", "remark", "remarks"},
		},
	},
	Stock: {
		positional: []Column{ColRollID, ColWidth, ColGSM, ColBF, ColShade, ColSource},
		required:   []Column{ColWidth, ColGSM, ColBF, ColShade},
		aliases: map[Column][]string{
			ColRollID: {"id", "roll", "roll id", "roll_id", "reel", "reel id"},
			ColWidth:  {"width", "w", "size", "width (in)"},
			ColGSM:    {"gsm", "grammage", "weight"},
			ColBF:     {"bf", "burst factor", "burst"},
			ColShade:  {"shade", "colour", "color", "grade"},
			ColSource: {"source", "origin", "from", "note", "notes"},
		},
	},
}

// DetectCSVDelimiter reads the data and picks the most likely delimiter among
// comma, semicolon, tab and pipe: the one giving the most rows with the same
// (more than one) column count as the first row.
func DetectCSVDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	bestDelimiter := ','
	bestScore := 0

	for _, delim := range candidates {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		records, err := reader.ReadAll()
		if err != nil || len(records) < 1 {
			continue
		}

		firstCols := len(records[0])
		if firstCols < 2 {
			continue
		}

		score := 0
		for _, row := range records {
			if len(row) == firstCols {
				score++
			}
		}

		weighted := score*10 + firstCols
		if weighted > bestScore {
			bestScore = weighted
			bestDelimiter = delim
		}
	}

	return bestDelimiter
}

// DetectColumns examines a row for header names of the given kind. It returns
// the mapping and true when a header was found, or the positional mapping and
// false otherwise.
func DetectColumns(row []string, kind Kind) (ColumnMapping, bool) {
	l := layouts[kind]
	mapping := ColumnMapping{}

	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for _, col := range l.positional {
			if _, seen := mapping[col]; seen {
				continue
			}
			for _, alias := range l.aliases[col] {
				if normalized == alias {
					mapping[col] = i
					break
				}
			}
		}
	}

	if len(mapping) == 0 {
		positional := ColumnMapping{}
		for i, col := range l.positional {
			positional[col] = i
		}
		return positional, false
	}
	return mapping, true
}

func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseWidth reads an inch value such as `40`, `39.625` or `40"` rounded to
// two decimals.
func parseWidth(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, `"`), "in"))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() {
		return 0, errors.New("must be positive")
	}
	return d.Round(2).InexactFloat64(), nil
}

func parseSpec(row []string, m ColumnMapping, rowLabel string) (model.PaperSpec, string) {
	gsmStr := getCell(row, m.Index(ColGSM))
	gsm, err := strconv.Atoi(gsmStr)
	if err != nil {
		return model.PaperSpec{}, fmt.Sprintf("%s: Invalid gsm '%s'", rowLabel, gsmStr)
	}
	bfStr := getCell(row, m.Index(ColBF))
	bf, err := decimal.NewFromString(bfStr)
	if err != nil {
		return model.PaperSpec{}, fmt.Sprintf("%s: Invalid bf '%s'", rowLabel, bfStr)
	}
	spec := model.NewPaperSpec(gsm, bf.InexactFloat64(), getCell(row, m.Index(ColShade)))
	if err := spec.Validate(); err != nil {
		return model.PaperSpec{}, fmt.Sprintf("%s: %v", rowLabel, err)
	}
	return spec, ""
}

func parseRequirement(row []string, m ColumnMapping, rowLabel string, ids model.IDGenerator) (model.PendingRequirement, string) {
	order := getCell(row, m.Index(ColOrder))
	if order == "" {
		return model.PendingRequirement{}, fmt.Sprintf("%s: Missing order id", rowLabel)
	}

	widthStr := getCell(row, m.Index(ColWidth))
	if widthStr == "" {
		return model.PendingRequirement{}, fmt.Sprintf("%s: Missing width value", rowLabel)
	}
	width, err := parseWidth(widthStr)
	if err != nil {
		return model.PendingRequirement{}, fmt.Sprintf("%s: Invalid width '%s'", rowLabel, widthStr)
	}

	spec, msg := parseSpec(row, m, rowLabel)
	if msg != "" {
		return model.PendingRequirement{}, msg
	}

	qtyStr := getCell(row, m.Index(ColQuantity))
	qty, err := strconv.Atoi(qtyStr)
	if err != nil || qty <= 0 {
		return model.PendingRequirement{}, fmt.Sprintf("%s: Invalid quantity '%s'", rowLabel, qtyStr)
	}

	r := model.NewRequirement(ids, order, width, spec, qty)
	r.Reason = getCell(row, m.Index(ColReason))
	return r, ""
}

func parseStockRoll(row []string, m ColumnMapping, rowLabel string, ids model.IDGenerator) (model.ExistingStockRoll, string, string) {
	widthStr := getCell(row, m.Index(ColWidth))
	if widthStr == "" {
		return model.ExistingStockRoll{}, fmt.Sprintf("%s: Missing width value", rowLabel), ""
	}
	width, err := parseWidth(widthStr)
	if err != nil {
		return model.ExistingStockRoll{}, fmt.Sprintf("%s: Invalid width '%s'", rowLabel, widthStr), ""
	}

	spec, msg := parseSpec(row, m, rowLabel)
	if msg != "" {
		return model.ExistingStockRoll{}, msg, ""
	}

	var warning string
	id := getCell(row, m.Index(ColRollID))
	if id == "" {
		id = ids.NewID("roll")
		warning = fmt.Sprintf("%s: Missing roll id, assigned %s", rowLabel, id)
	}
	if width < model.MinRemnantWidth {
		warning = fmt.Sprintf("%s: Roll %s is narrower than %g\"", rowLabel, id, model.MinRemnantWidth)
	}

	return model.ExistingStockRoll{
		ID:     id,
		Width:  width,
		Spec:   spec,
		Source: getCell(row, m.Index(ColSource)),
	}, "", warning
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportFile imports a CSV, TSV or Excel file, chosen by extension.
func ImportFile(path string, kind Kind, ids model.IDGenerator) ImportResult {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx":
		return ImportExcel(path, kind, ids)
	default:
		return ImportCSV(path, kind, ids)
	}
}

// ImportCSV imports a CSV file, detecting its delimiter.
func ImportCSV(path string, kind Kind, ids model.IDGenerator) ImportResult {
	result := ImportResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open file: %v", err))
		return result
	}

	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	delimiter := DetectCSVDelimiter(data)
	var warnings []string
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		warnings = append(warnings, fmt.Sprintf("Detected %s delimiter", delimName))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "Line", kind, ids, warnings)
}

// ImportCSVFromReader imports CSV data with a known delimiter.
func ImportCSVFromReader(reader io.Reader, delimiter rune, kind Kind, ids model.IDGenerator) ImportResult {
	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read CSV: %v", err)}}
	}

	return importFromRows(records, "Line", kind, ids, nil)
}

// ImportExcel imports the first sheet of an Excel workbook.
func ImportExcel(path string, kind Kind, ids model.IDGenerator) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read Excel data: %v", err))
		return result
	}

	return importFromRows(rows, "Row", kind, ids, nil)
}

func importFromRows(rows [][]string, rowPrefix string, kind Kind, ids model.IDGenerator, initialWarnings []string) ImportResult {
	result := ImportResult{Warnings: initialWarnings}
	if ids == nil {
		ids = model.UUIDGenerator{}
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0], kind)
	startRow := 0
	if hasHeader {
		startRow = 1
		result.Warnings = append(result.Warnings, "Detected header row, skipping")

		var missing []string
		for _, col := range layouts[kind].required {
			if mapping.Index(col) == -1 {
				missing = append(missing, string(col))
			}
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("Required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	} else if len(rows[0]) >= 2 {
		// Width is the second column in both layouts; a non-numeric value
		// there means an unrecognized header.
		if _, err := parseWidth(rows[0][1]); err != nil {
			startRow = 1
			result.Warnings = append(result.Warnings, "Detected header row, skipping")
		}
	}

	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}
		rowLabel := fmt.Sprintf("%s %d", rowPrefix, i+1)

		switch kind {
		case Stock:
			roll, errMsg, warning := parseStockRoll(row, mapping, rowLabel, ids)
			if errMsg != "" {
				result.Errors = append(result.Errors, errMsg)
				continue
			}
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
			}
			result.Stock = append(result.Stock, roll)
		default:
			req, errMsg := parseRequirement(row, mapping, rowLabel, ids)
			if errMsg != "" {
				result.Errors = append(result.Errors, errMsg)
				continue
			}
			result.Requirements = append(result.Requirements, req)
		}
	}

	return result
}
