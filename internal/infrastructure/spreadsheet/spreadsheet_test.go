package spreadsheet

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, writeRows(f, "Sheet1", rows))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestImporter_ParsesHeadersCaseInsensitively(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"Employee ID", "Name", "LOCATION", "Hire Date", "Type", "Amount", "Deduction", "Remarks"},
		{"E1", "Ana", "Manila", "2024-01-10", "Bonus", "1,250.50", "", "Q1"},
		{},
		{"E2", "Ben", "Cebu", "2023-05-01", "deduction", "75", "yes", ""},
	})

	items, err := NewImporter(zap.NewNop()).ParseLineItems(buf)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "E1", items[0].EmployeeID)
	assert.Equal(t, "Ana", items[0].EmployeeName)
	assert.Equal(t, "Manila", items[0].Location)
	assert.Equal(t, "2024-01-10", items[0].HireDate)
	assert.Equal(t, "Bonus", items[0].ItemType)
	assert.True(t, items[0].Amount.Equal(decimal.RequireFromString("1250.50")))
	assert.False(t, items[0].IsDeduction)
	assert.Equal(t, "Q1", items[0].Notes)

	assert.True(t, items[1].IsDeduction)
	assert.Equal(t, 0, items[1].ItemNumber)
}

func TestImporter_Errors(t *testing.T) {
	_, err := NewImporter(zap.NewNop()).ParseLineItems(workbook(t, [][]interface{}{
		{"Employee ID", "Name"},
		{"E1", "Ana"},
	}))
	assert.ErrorContains(t, err, `missing required column "amount"`)

	_, err = NewImporter(zap.NewNop()).ParseLineItems(workbook(t, [][]interface{}{
		{"employee_id", "employee_name", "amount"},
		{"E1", "Ana", "abc"},
	}))
	assert.ErrorContains(t, err, "row 2")

	_, err = NewImporter(zap.NewNop()).ParseLineItems(bytes.NewBufferString("not a workbook"))
	assert.Error(t, err)
}

func TestExporter_WritesSummaryAndItems(t *testing.T) {
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	export := &port.RequestExport{
		Request: &entity.ApprovalRequest{ID: "r1", RequestNumber: "REQ-2026-000003", OverallStatus: entity.RequestStatusRejected, CreatedBy: "userA"},
		Budget:  &entity.BudgetConfiguration{Name: "Q1", Currency: "USD"},
		LineItems: []*entity.LineItem{
			{ItemNumber: 1, EmployeeID: "E1", EmployeeName: "Ana", ItemType: "bonus", Amount: decimal.NewFromInt(500)},
			{ItemNumber: 2, EmployeeID: "E2", EmployeeName: "Ben", ItemType: "deduction", Amount: decimal.NewFromInt(50), IsDeduction: true},
		},
		Levels: []*entity.ApprovalLevelRecord{
			{LevelName: "Level 1", Status: entity.LevelStatusRejected, Assigned: entity.ApproverSnapshot{Primary: "alice", Backup: "bob"}, ApprovedBy: "bob", RejectionReason: "over budget", ApprovalDate: &at},
		},
		Stage: "Rejected",
	}

	var buf bytes.Buffer
	require.NoError(t, NewExporter(zap.NewNop()).WriteRequest(&buf, export))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SummarySheet, LineItemsSheet}, f.GetSheetList())

	v, err := f.GetCellValue(SummarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "REQ-2026-000003", v)

	v, err = f.GetCellValue(SummarySheet, "B5")
	require.NoError(t, err)
	assert.Equal(t, "450.00", v)

	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	last := rows[len(rows)-1]
	assert.Equal(t, []string{"Level 1", "rejected", "alice / bob", "bob", "2026-03-15 10:00", "over budget"}, last)

	items, err := f.GetRows(LineItemsSheet)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Employee ID", items[0][1])
	assert.Equal(t, "E2", items[2][1])
}
