// Package excel reads and writes the storage-inventory workbook format.
// Import accepts the bilingual header spellings used by the legacy
// spreadsheets; export and the blank template always write the English
// headers with the Chinese names alongside.
package excel

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"labstock/internal/ledger"
	"labstock/models"
)

// SheetName is the storage worksheet name.
const SheetName = "Storage"

// ExportHeader lists the export columns in order.
var ExportHeader = []string{
	"Type (类型)",
	"Name (产品名)",
	"Brand (品牌)",
	"Quantity (数量及数量单位)",
	"Location (存放地)",
	"CAS Number (CAS号)",
	"Current Quantity (当前库存量)",
	"Unit (单位)",
	"Stock Status (库存状态)",
}

// ImportHeader lists the columns expected in uploaded workbooks. Current
// quantity and unit are optional; when absent the balance is derived from the
// quantity text.
var ImportHeader = ExportHeader[:8]

// headerAliases folds recognized header spellings into canonical field keys.
var headerAliases = map[string]string{
	"type": "category", "category": "category", "类型": "category",
	"name": "name", "product name": "name", "产品名": "name",
	"brand": "brand", "品牌": "brand",
	"quantity": "quantity_text", "数量及数量单位": "quantity_text",
	"location": "location", "存放地": "location",
	"cas": "cas_number", "cas number": "cas_number", "cas号": "cas_number",
	"current quantity": "current_quantity", "当前库存量": "current_quantity",
	"unit": "unit", "单位": "unit",
}

var requiredFields = []string{"category", "name", "quantity_text", "location"}

// Row is one parsed storage row. Line is the 1-based Excel row number, for
// error reporting back to the person who uploaded the sheet.
type Row struct {
	Line            int
	Category        string
	Name            string
	Brand           string
	QuantityText    string
	Location        string
	CASNumber       string
	CurrentQuantity *float64
	Unit            string
}

// RowError is a per-row import failure that does not abort the whole upload.
type RowError struct {
	Line    int    `json:"row"`
	Message string `json:"message"`
}

// ParseStorageSheet reads the first worksheet of an uploaded workbook and
// returns the valid rows plus the per-row failures.
func ParseStorageSheet(r io.Reader) ([]Row, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	columns, headerLine, err := mapHeader(rows)
	if err != nil {
		return nil, nil, err
	}

	var parsed []Row
	var rowErrors []RowError
	for i := headerLine; i < len(rows); i++ {
		line := i + 1
		cells := rows[i]
		if isBlankRow(cells) {
			continue
		}

		row := Row{Line: line}
		for col, field := range columns {
			value := ""
			if col < len(cells) {
				value = strings.TrimSpace(cells[col])
			}
			switch field {
			case "category":
				row.Category = value
			case "name":
				row.Name = value
			case "brand":
				row.Brand = value
			case "quantity_text":
				row.QuantityText = value
			case "location":
				row.Location = value
			case "cas_number":
				row.CASNumber = value
			case "current_quantity":
				if value != "" {
					quantity, err := strconv.ParseFloat(value, 64)
					if err != nil {
						rowErrors = append(rowErrors, RowError{Line: line, Message: fmt.Sprintf("invalid current quantity %q", value)})
						continue
					}
					row.CurrentQuantity = &quantity
				}
			case "unit":
				row.Unit = ledger.NormalizeUnit(value)
			}
		}

		if msg := validateRow(row); msg != "" {
			rowErrors = append(rowErrors, RowError{Line: line, Message: msg})
			continue
		}
		parsed = append(parsed, row)
	}

	return parsed, rowErrors, nil
}

func mapHeader(rows [][]string) (map[int]string, int, error) {
	for i, cells := range rows {
		if isBlankRow(cells) {
			continue
		}

		columns := make(map[int]string)
		for col, cell := range cells {
			if field, ok := headerAliases[normalizeHeader(cell)]; ok {
				columns[col] = field
			}
		}

		seen := make(map[string]bool)
		for _, field := range columns {
			seen[field] = true
		}
		var missing []string
		for _, field := range requiredFields {
			if !seen[field] {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return nil, 0, fmt.Errorf("header row is missing required columns: %s", strings.Join(missing, ", "))
		}
		return columns, i + 1, nil
	}
	return nil, 0, fmt.Errorf("no header row found")
}

// normalizeHeader strips the parenthesized half of a bilingual header so both
// "Type (类型)" and "类型" resolve.
func normalizeHeader(cell string) string {
	trimmed := strings.ToLower(strings.TrimSpace(cell))
	for _, sep := range []string{"(", "（"} {
		if idx := strings.Index(trimmed, sep); idx >= 0 {
			inner := strings.Trim(trimmed[idx:], "()（） ")
			if _, ok := headerAliases[inner]; ok {
				return inner
			}
			trimmed = strings.TrimSpace(trimmed[:idx])
		}
	}
	return trimmed
}

func validateRow(row Row) string {
	switch {
	case row.Name == "":
		return "product name is required"
	case row.Category == "":
		return "type is required"
	case row.Location == "":
		return "location is required"
	case row.QuantityText == "":
		return "quantity is required"
	}
	if _, _, err := ledger.ParseQuantity(row.QuantityText); err != nil && row.CurrentQuantity == nil {
		return fmt.Sprintf("unparseable quantity %q", row.QuantityText)
	}
	return ""
}

func isBlankRow(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ExportFilename names a storage export for the given day.
func ExportFilename(now time.Time) string {
	return "storage_export_" + now.Format("2006-01-02") + ".xlsx"
}

// ExportStorage writes the full inventory as a styled workbook. statuses must
// be index-aligned with items.
func ExportStorage(items []models.StorageItem, statuses []ledger.StockStatus) ([]byte, error) {
	f, sheet, err := newWorkbook(ExportHeader)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i, item := range items {
		label := ""
		if i < len(statuses) {
			label = statuses[i].Label
		}
		cells := []any{
			item.Category,
			item.Name,
			item.Brand,
			item.QuantityText,
			item.Location,
			item.CASNumber,
			item.CurrentQuantity,
			item.Unit,
			label,
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return nil, err
		}
	}

	return workbookBytes(f)
}

// Template builds an import template with example rows.
func Template() ([]byte, error) {
	f, sheet, err := newWorkbook(ImportHeader)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	examples := [][]any{
		{"有机溶剂", "丙酮", "Sigma-Aldrich", "500ml", "A柜-1层", "67-64-1", 500, "ml"},
		{"无机盐", "氯化钠", "国药", "1000g", "B柜-2层", "7647-14-5", 1000, "g"},
	}
	for i, cells := range examples {
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return nil, err
		}
	}

	return workbookBytes(f)
}

func newWorkbook(headers []string) (*excelize.File, string, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, "", fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("style header cell %s: %w", cell, err)
		}
	}

	widths := []float64{14, 22, 16, 22, 16, 14, 20, 10, 16}
	for col := range headers {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, "", fmt.Errorf("column name: %w", err)
		}
		width := 16.0
		if col < len(widths) {
			width = widths[col]
		}
		if err := f.SetColWidth(SheetName, name, name, width); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("set column width: %w", err)
		}
	}

	return f, SheetName, nil
}

func writeRow(f *excelize.File, sheet string, line int, cells []any) error {
	for col, value := range cells {
		cell, err := excelize.CoordinatesToCellName(col+1, line)
		if err != nil {
			return fmt.Errorf("convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func workbookBytes(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
