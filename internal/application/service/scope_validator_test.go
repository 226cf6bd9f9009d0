package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/budget-approval/internal/domain/entity"
)

func TestCheckLocationScope(t *testing.T) {
	tests := []struct {
		name     string
		location string
		items    []*entity.LineItem
		valid    bool
		contains []string
	}{
		{
			name:     "empty scope is unrestricted",
			location: "",
			items:    []*entity.LineItem{item("E1", "Anywhere", "", 10)},
			valid:    true,
		},
		{
			name:     "all token is unrestricted",
			location: `["Manila","ALL"]`,
			items:    []*entity.LineItem{item("E1", "Cebu", "", 10)},
			valid:    true,
		},
		{
			name:     "json array match ignores case and spacing",
			location: `["Manila", "New  York"]`,
			items: []*entity.LineItem{
				item("E1", "manila", "", 10),
				item("E2", " new york ", "", 10),
			},
			valid: true,
		},
		{
			name:     "comma separated scope",
			location: "Manila, Cebu",
			items:    []*entity.LineItem{item("E1", "Cebu", "", 10)},
			valid:    true,
		},
		{
			name:     "out of scope items are listed",
			location: "Manila",
			items: []*entity.LineItem{
				item("E1", "Manila", "", 10),
				item("E2", "Davao", "", 10),
				item("E3", "", "", 10),
			},
			contains: []string{"2 line item(s)", "[manila]", "E2 (davao)", "E3 (missing)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := &entity.BudgetConfiguration{Location: tt.location}
			verdict := CheckLocationScope(budget, tt.items)
			assert.Equal(t, tt.valid, verdict.Valid)
			if tt.valid {
				assert.Empty(t, verdict.Reason)
				return
			}
			assert.True(t, strings.HasPrefix(verdict.Reason, "Location scope violation"))
			for _, s := range tt.contains {
				assert.Contains(t, verdict.Reason, s)
			}
		})
	}
}

func TestCheckLocationScope_TruncatesLongLists(t *testing.T) {
	budget := &entity.BudgetConfiguration{Location: "Manila"}
	var items []*entity.LineItem
	for _, id := range []string{"E1", "E2", "E3", "E4", "E5", "E6", "E7"} {
		items = append(items, item(id, "Cebu", "", 10))
	}

	verdict := CheckLocationScope(budget, items)

	require.False(t, verdict.Valid)
	assert.Contains(t, verdict.Reason, "7 line item(s)")
	assert.Contains(t, verdict.Reason, "E5 (cebu)")
	assert.NotContains(t, verdict.Reason, "E6")
	assert.True(t, strings.HasSuffix(verdict.Reason, ", …"))
}

func TestCheckTenureScope(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		groups   string
		hireDate string
		valid    bool
		contains string
	}{
		{"unrestricted", "", "garbage", true, ""},
		{"bucket matches canonical name", `["1-2years"]`, "2024-12-01", true, ""},
		{"bucket matches synonym", "1 - 2 Years, 5+ years", "2019-01-01", true, ""},
		{"bucket outside groups", `["0-6months"]`, "2024-12-01", false, "E1 (1-2years)"},
		{"invalid hire date", `["0-6months"]`, "not-a-date", false, "E1 (missing/invalid)"},
		{"missing hire date", `["0-6months"]`, "", false, "E1 (missing/invalid)"},
		{"future hire date has no bucket", `["0-6months"]`, "2026-06-01", false, "E1 (missing/invalid)"},
		{"slash layout parses", `["6-12 months"]`, "2025/06/01", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := &entity.BudgetConfiguration{TenureGroup: tt.groups}
			verdict := CheckTenureScope(budget, []*entity.LineItem{item("E1", "", tt.hireDate, 10)}, now)
			assert.Equal(t, tt.valid, verdict.Valid)
			if !tt.valid {
				assert.True(t, strings.HasPrefix(verdict.Reason, "Tenure scope violation"))
				assert.Contains(t, verdict.Reason, tt.contains)
			}
		})
	}
}

func TestScopeValidator_LoadsRequestContext(t *testing.T) {
	f := newFixture()
	budget := f.seedBudget(t, func(b *entity.BudgetConfiguration) {
		b.Location = `["Manila"]`
		b.TenureGroup = `["0-6months"]`
	})
	request := f.seedRequest(t, budget.ID, entity.RequestStatusDraft, "erin",
		item("E1", "Manila", "2026-01-02", 100),
		item("E2", "Cebu", "2020-01-02", 100),
	)
	validator := NewScopeValidator(f.store.Requests(), f.store.Budgets(), f.store.LineItems(), f.clock)
	ctx := context.Background()

	location, err := validator.ValidateLocationScope(ctx, request.ID)
	require.NoError(t, err)
	assert.False(t, location.Valid)
	assert.Contains(t, location.Reason, "E2 (cebu)")

	tenure, err := validator.ValidateTenureScope(ctx, request.ID)
	require.NoError(t, err)
	assert.False(t, tenure.Valid)
	assert.Contains(t, tenure.Reason, "E2 (5plus-years)")
	assert.NotContains(t, tenure.Reason, "E1")

	_, err = validator.ValidateLocationScope(ctx, "missing")
	assert.True(t, entity.IsKind(err, entity.KindNotFound))
}
