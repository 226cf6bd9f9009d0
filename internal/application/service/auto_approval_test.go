package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/budget-approval/internal/domain/entity"
)

func TestAutoApprovalResolver(t *testing.T) {
	tests := []struct {
		name      string
		submitter string
		approved  bool
	}{
		{"primary approver", "alice", true},
		{"backup approver", "bob", true},
		{"case insensitive match", "ALICE", true},
		{"level 2 approver is not self", "carol", false},
		{"unrelated submitter", "erin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, request := f.submittedRequest(t, tt.submitter)

			result, err := f.resolver().Resolve(context.Background(), request.ID, tt.submitter)
			require.NoError(t, err)
			assert.Equal(t, tt.approved, result.AutoApproved)

			records := f.levels(t, request.ID)
			stored := f.request(t, request.ID)
			if !tt.approved {
				assert.Equal(t, entity.LevelStatusPending, records[0].Status)
				assert.Equal(t, entity.RequestStatusSubmitted, stored.OverallStatus)
				return
			}

			assert.Equal(t, entity.LevelStatusApproved, records[0].Status)
			assert.True(t, records[0].IsSelfRequest)
			assert.Equal(t, entity.SelfApproverName, records[0].ApproverName)
			assert.Equal(t, entity.SelfApprovalNotes, records[0].ApprovalNotes)
			assert.Equal(t, tt.submitter, records[0].ApprovedBy)
			assert.Equal(t, entity.LevelStatusPending, records[1].Status)
			assert.Equal(t, entity.RequestStatusInProgress, stored.OverallStatus)
			assert.Equal(t, entity.RequestStatusInProgress, result.OverallStatus)
		})
	}
}

func TestAutoApprovalResolver_LevelAlreadyDecided(t *testing.T) {
	f := newFixture()
	_, request := f.submittedRequest(t, "alice")
	approve(t, f.ledger(), request.ID, 1, "bob")

	result, err := f.resolver().Resolve(context.Background(), request.ID, "alice")
	require.NoError(t, err)
	assert.False(t, result.AutoApproved)
	assert.Equal(t, "bob", f.levels(t, request.ID)[0].ApprovedBy)
}

func TestAutoApprovalResolver_NoLedger(t *testing.T) {
	f := newFixture()
	budget := f.seedBudget(t, nil)
	request := f.seedRequest(t, budget.ID, entity.RequestStatusSubmitted, "alice")

	result, err := f.resolver().Resolve(context.Background(), request.ID, "alice")
	require.NoError(t, err)
	assert.False(t, result.AutoApproved)
}
