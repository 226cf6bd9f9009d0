package service

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// orgTree puts the budget's chain and erin under acme, and mallory under a separate root
func orgTree(f *fixture) {
	f.dir.
		AddOrg("acme", "").
		AddOrg("acme-ph", "acme").
		AddOrg("acme-ph-ops", "acme-ph").
		AddOrg("globex", "").
		AddUser("erin", "acme-ph-ops").
		AddUser("owner", "acme").
		AddUser("alice", "acme-ph").
		AddUser("bob", "acme-ph").
		AddUser("carol", "acme").
		AddUser("dave", "globex").
		AddUser("pat", "acme-ph", "Payroll Specialist").
		AddUser("quinn", "globex", "Payroll Lead").
		AddUser("mallory", "globex")
}

func recipientsOf(f *fixture, notificationType string) []string {
	var ids []string
	for _, n := range f.store.AllNotifications() {
		if n.NotificationType == notificationType {
			ids = append(ids, n.RecipientID)
		}
	}
	sort.Strings(ids)
	return ids
}

func TestNotificationDispatcher_ScopesRecipientsToSubmitterOrgRoot(t *testing.T) {
	f := newFixture()
	orgTree(f)
	_, request := f.submittedRequest(t, "erin")

	report, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeSubmitted,
		RequestID: request.ID,
		ActorID:   "erin",
	})
	require.NoError(t, err)

	// dave sits under another org root and is dropped
	expected := []string{"alice", "bob", "carol", "erin", "owner"}
	assert.Equal(t, expected, recipientsOf(f, entity.NotificationTypeSubmitted))
	assert.Equal(t, len(expected), report.Recipients)
	assert.Equal(t, len(expected), report.InAppCreated)
	assert.Equal(t, len(expected), report.EmailsSent)
	assert.Zero(t, report.PayrollRecipients)

	sent := f.notifier.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, "Approval Request "+request.RequestNumber+" Submitted", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "https://approvals.example.com/requests/"+request.ID)
}

func TestNotificationDispatcher_ActorAlwaysIncluded(t *testing.T) {
	f := newFixture()
	orgTree(f)
	_, request := f.submittedRequest(t, "erin")

	_, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeApproved,
		RequestID: request.ID,
		ActorID:   "mallory",
		Level:     1,
	})
	require.NoError(t, err)

	assert.Contains(t, recipientsOf(f, entity.NotificationTypeApproved), "mallory")
	for _, n := range f.store.AllNotifications() {
		require.NotNil(t, n.RelatedApprovalLevel)
		assert.Equal(t, 1, *n.RelatedApprovalLevel)
	}
}

func TestNotificationDispatcher_PayrollHandOff(t *testing.T) {
	f := newFixture()
	orgTree(f)
	_, request := f.submittedRequest(t, "erin")
	ledger := f.ledger()
	approve(t, ledger, request.ID, 1, "alice")
	approve(t, ledger, request.ID, 2, "carol")
	approve(t, ledger, request.ID, 3, "dave")

	report, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeApproved,
		RequestID: request.ID,
		ActorID:   "dave",
		Level:     3,
	})
	require.NoError(t, err)

	// quinn holds a payroll role under another root
	assert.Equal(t, []string{"pat"}, recipientsOf(f, entity.NotificationTypePayrollActionRequired))
	assert.Equal(t, 1, report.PayrollRecipients)

	for _, n := range f.store.AllNotifications() {
		if n.NotificationType == entity.NotificationTypePayrollActionRequired {
			assert.Equal(t, "Payroll Action Required: "+request.RequestNumber, n.Title)
			require.NotNil(t, n.RelatedApprovalLevel)
			assert.Equal(t, entity.LevelPayroll, *n.RelatedApprovalLevel)
		}
	}
}

func TestNotificationDispatcher_NoPayrollBeforeChainCompletes(t *testing.T) {
	f := newFixture()
	orgTree(f)
	_, request := f.submittedRequest(t, "erin")
	approve(t, f.ledger(), request.ID, 1, "alice")

	report, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeApproved,
		RequestID: request.ID,
		ActorID:   "alice",
		Level:     1,
	})
	require.NoError(t, err)
	assert.Zero(t, report.PayrollRecipients)
	assert.Empty(t, recipientsOf(f, entity.NotificationTypePayrollActionRequired))
}

func TestNotificationDispatcher_EmptyRootMatchesOnlyEmptyRoot(t *testing.T) {
	f := newFixture()
	f.dir.AddOrg("acme", "").AddUser("alice", "acme").AddUser("owner", "")
	_, request := f.submittedRequest(t, "erin")

	_, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeSubmitted,
		RequestID: request.ID,
		ActorID:   "erin",
	})
	require.NoError(t, err)

	// erin has no profile, so only owner (no org) shares the empty root
	assert.Equal(t, []string{"erin", "owner"}, recipientsOf(f, entity.NotificationTypeSubmitted))
}

func TestNotificationDispatcher_FailuresAreReportedNotRaised(t *testing.T) {
	f := newFixture()
	orgTree(f)
	_, request := f.submittedRequest(t, "erin")
	f.notifier.FailFor["alice@example.com"] = errors.New("mailbox unavailable")
	f.store.NotificationErr = errors.New("disk full")

	report, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:            entity.NotificationTypeRejected,
		RequestID:       request.ID,
		ActorID:         "carol",
		Level:           2,
		RejectionReason: "duplicate request",
	})
	require.NoError(t, err)

	assert.Zero(t, report.InAppCreated)
	assert.Equal(t, 1, report.EmailFailures)
	assert.Equal(t, report.Recipients-1, report.EmailsSent)
	assert.Len(t, report.Warnings, 2)
	assert.NotContains(t, f.notifier.Recipients(), "alice@example.com")

	sent := f.notifier.Sent()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0].Text, "Reason: duplicate request")
}

func TestNotificationDispatcher_CountsRecipientsWithoutEmail(t *testing.T) {
	f := newFixture()
	orgTree(f)
	f.dir.ClearEmail("bob")
	_, request := f.submittedRequest(t, "erin")

	report, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeSubmitted,
		RequestID: request.ID,
		ActorID:   "erin",
	})
	require.NoError(t, err)

	assert.Contains(t, recipientsOf(f, entity.NotificationTypeSubmitted), "bob")
	assert.Equal(t, report.Recipients, report.InAppCreated)
	assert.Equal(t, 1, report.EmailsSkipped)
	assert.Equal(t, report.Recipients-1, report.EmailsSent)
	assert.Zero(t, report.EmailFailures)
	assert.NotContains(t, f.notifier.Recipients(), "bob@example.com")
}

func TestNotificationDispatcher_DirectoryFailure(t *testing.T) {
	f := newFixture()
	_, request := f.submittedRequest(t, "erin")
	f.dir.Err = errors.New("directory offline")

	_, err := f.dispatcher().Notify(context.Background(), NotifyInput{
		Type:      entity.NotificationTypeSubmitted,
		RequestID: request.ID,
		ActorID:   "erin",
	})
	assert.True(t, entity.IsKind(err, entity.KindCollaborator))
}
