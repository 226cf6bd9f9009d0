package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

const (
	SummarySheet   = "Summary"
	LineItemsSheet = "Line Items"
	dateLayout     = "2006-01-02 15:04"
)

var lineItemHeaders = []string{
	"Item #", "Employee ID", "Employee Name", "Employee Email", "Department", "Position",
	"Geo", "Location", "Hire Date", "Item Type", "Amount", "Deduction", "Notes",
}

// Exporter writes a request, its ledger and its line items to an XLSX workbook
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates an XLSX request exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// WriteRequest writes the Summary and Line Items sheets to w
func (ex *Exporter) WriteRequest(w io.Writer, export *port.RequestExport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(LineItemsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := ex.writeSummary(f, export); err != nil {
		return err
	}
	if err := ex.writeLineItems(f, export.LineItems); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	ex.logger.Info("Exported request workbook",
		zap.String("request_id", export.Request.ID),
		zap.Int("items", len(export.LineItems)))
	return nil
}

func (ex *Exporter) writeSummary(f *excelize.File, export *port.RequestExport) error {
	req := export.Request
	rows := [][]interface{}{
		{"Request Number", req.RequestNumber},
		{"Title", req.Title},
		{"Status", req.OverallStatus},
		{"Stage", export.Stage},
		{"Net Amount", entity.NetAmount(export.LineItems).StringFixed(2)},
		{"Line Items", len(export.LineItems)},
		{"Created By", req.CreatedBy},
		{"Submitted By", req.SubmittedBy},
	}
	if export.Budget != nil {
		rows = append(rows,
			[]interface{}{"Budget", export.Budget.Name},
			[]interface{}{"Currency", export.Budget.Currency},
		)
	}
	rows = append(rows, []interface{}{}, []interface{}{"Level", "Status", "Assigned", "Decided By", "Decided At", "Notes"})
	for _, l := range export.Levels {
		decidedAt := ""
		if l.ApprovalDate != nil {
			decidedAt = l.ApprovalDate.Format(dateLayout)
		}
		notes := l.ApprovalNotes
		if l.Status == entity.LevelStatusRejected {
			notes = l.RejectionReason
		}
		assigned := l.Assigned.Primary
		if l.Assigned.Backup != "" {
			assigned += " / " + l.Assigned.Backup
		}
		rows = append(rows, []interface{}{l.LevelName, l.Status, assigned, l.ApprovedBy, decidedAt, notes})
	}

	return writeRows(f, SummarySheet, rows)
}

func (ex *Exporter) writeLineItems(f *excelize.File, items []*entity.LineItem) error {
	rows := make([][]interface{}, 0, len(items)+1)
	header := make([]interface{}, len(lineItemHeaders))
	for i, h := range lineItemHeaders {
		header[i] = h
	}
	rows = append(rows, header)

	for _, item := range items {
		amount, _ := item.Amount.Float64()
		rows = append(rows, []interface{}{
			item.ItemNumber, item.EmployeeID, item.EmployeeName, item.EmployeeEmail,
			item.Department, item.Position, item.Geo, item.Location, item.HireDate,
			item.ItemType, amount, item.IsDeduction, item.Notes,
		})
	}
	return writeRows(f, LineItemsSheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// Verify interface compliance
var _ port.RequestExporter = (*Exporter)(nil)
