// Package spreadsheet reads and writes XLSX workbooks for line items and request exports.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// columnAliases maps normalized header text to line item fields
var columnAliases = map[string]string{
	"employee_id":      "employee_id",
	"employee_no":      "employee_id",
	"emp_id":           "employee_id",
	"employee_name":    "employee_name",
	"name":             "employee_name",
	"employee_email":   "employee_email",
	"email":            "employee_email",
	"department":       "department",
	"position":         "position",
	"title":            "position",
	"geo":              "geo",
	"location":         "location",
	"hire_date":        "hire_date",
	"date_hired":       "hire_date",
	"termination_date": "termination_date",
	"employee_status":  "employee_status",
	"status":           "employee_status",
	"item_type":        "item_type",
	"type":             "item_type",
	"amount":           "amount",
	"is_deduction":     "is_deduction",
	"deduction":        "is_deduction",
	"notes":            "notes",
	"remarks":          "notes",
}

var requiredColumns = []string{"employee_id", "employee_name", "amount"}

// Importer parses line items from the first sheet of an XLSX workbook
type Importer struct {
	logger *zap.Logger
}

// NewImporter creates an XLSX line item importer
func NewImporter(logger *zap.Logger) *Importer {
	return &Importer{logger: logger}
}

// ParseLineItems reads the header row and one line item per non-blank row.
// Item type normalization and amount checks are left to the caller.
func (im *Importer) ParseLineItems(r io.Reader) ([]*entity.LineItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	columns := make(map[string]int)
	for i, header := range rows[0] {
		if field, ok := columnAliases[normalizeHeader(header)]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var items []*entity.LineItem
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}
		get := func(field string) string {
			idx, ok := columns[field]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		amount, err := decimal.NewFromString(strings.ReplaceAll(get("amount"), ",", ""))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid amount %q", rowNum, get("amount"))
		}

		items = append(items, &entity.LineItem{
			EmployeeID:      get("employee_id"),
			EmployeeName:    get("employee_name"),
			EmployeeEmail:   get("employee_email"),
			Department:      get("department"),
			Position:        get("position"),
			Geo:             get("geo"),
			Location:        get("location"),
			HireDate:        get("hire_date"),
			TerminationDate: get("termination_date"),
			EmployeeStatus:  get("employee_status"),
			ItemType:        get("item_type"),
			Amount:          amount,
			IsDeduction:     parseBool(get("is_deduction")),
			Notes:           get("notes"),
		})
	}

	im.logger.Info("Parsed line item workbook",
		zap.String("sheet", sheets[0]),
		zap.Int("items", len(items)))
	return items, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(h)
	return h
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "y", "yes", "true", "x":
		return true
	}
	return false
}

// Verify interface compliance
var _ port.LineItemImporter = (*Importer)(nil)
