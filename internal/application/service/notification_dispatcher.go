package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// NotifyInput describes one workflow milestone to announce
type NotifyInput struct {
	Type             string
	RequestID        string
	ActorID          string
	Level            int
	Notes            string
	RejectionReason  string
	PayrollCycle     string
	PayrollCycleDate *time.Time
}

// NotifyReport summarizes a fan-out. Failures are counted, never raised.
type NotifyReport struct {
	Recipients        int      `json:"recipients"`
	InAppCreated      int      `json:"in_app_created"`
	EmailsSent        int      `json:"emails_sent"`
	EmailFailures     int      `json:"email_failures"`
	EmailsSkipped     int      `json:"emails_skipped"`
	PayrollRecipients int      `json:"payroll_recipients"`
	Warnings          []string `json:"warnings,omitempty"`
}

// NotificationDispatcherConfig tunes message content and fan-out width
type NotificationDispatcherConfig struct {
	AppBaseURL         string
	SenderName         string
	PayrollRoleKeyword string
	MaxConcurrency     int
}

// NotificationDispatcher computes scoped recipients and fans out in-app rows and outbound messages
type NotificationDispatcher interface {
	Notify(ctx context.Context, input NotifyInput) (*NotifyReport, error)
}

type notificationDispatcherImpl struct {
	requestRepo      port.RequestRepository
	budgetRepo       port.BudgetRepository
	levelRepo        port.ApprovalLevelRepository
	notificationRepo port.NotificationRepository
	directory        port.Directory
	notifier         port.Notifier
	config           NotificationDispatcherConfig
	logger           Logger
	now              Clock
}

// NewNotificationDispatcher creates a new NotificationDispatcher
func NewNotificationDispatcher(
	requestRepo port.RequestRepository,
	budgetRepo port.BudgetRepository,
	levelRepo port.ApprovalLevelRepository,
	notificationRepo port.NotificationRepository,
	directory port.Directory,
	notifier port.Notifier,
	config NotificationDispatcherConfig,
	logger Logger,
	now Clock,
) NotificationDispatcher {
	if config.PayrollRoleKeyword == "" {
		config.PayrollRoleKeyword = entity.DefaultPayrollKeyword
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if now == nil {
		now = time.Now
	}
	return &notificationDispatcherImpl{
		requestRepo:      requestRepo,
		budgetRepo:       budgetRepo,
		levelRepo:        levelRepo,
		notificationRepo: notificationRepo,
		directory:        directory,
		notifier:         notifier,
		config:           config,
		logger:           logger,
		now:              now,
	}
}

// recipientScope is the resolved audience of one request
type recipientScope struct {
	submitterRoot string
	profiles      map[string]*entity.UserProfile
	recipients    []string
}

// Notify announces a milestone. The returned error covers only loading the request context.
func (d *notificationDispatcherImpl) Notify(ctx context.Context, input NotifyInput) (*NotifyReport, error) {
	request, err := loadRequest(ctx, d.requestRepo, input.RequestID)
	if err != nil {
		return nil, err
	}
	budget, err := loadBudget(ctx, d.budgetRepo, request.BudgetID)
	if err != nil {
		return nil, err
	}
	records, err := loadLevels(ctx, d.levelRepo, request.ID)
	if err != nil {
		return nil, err
	}

	audience, err := d.scopeRecipients(ctx, request, budget, records, input.ActorID)
	if err != nil {
		return nil, entity.NewCollaboratorError("resolve notification recipients", err)
	}

	report := &NotifyReport{Recipients: len(audience.recipients)}
	title, body := d.compose(input, request, budget, audience.profiles[input.ActorID])
	d.deliver(ctx, input, request, audience.recipients, audience.profiles, input.Type, title, body, report)

	if input.Type == entity.NotificationTypeApproved &&
		input.Level == entity.MaxApproverLevel &&
		entity.ApproverLevelsApproved(records) {
		d.notifyPayroll(ctx, input, request, budget, audience, report)
	}

	d.logger.Info("Notifications dispatched",
		"request_id", request.ID,
		"type", input.Type,
		"recipients", report.Recipients,
		"in_app_created", report.InAppCreated,
		"emails_sent", report.EmailsSent,
		"email_failures", report.EmailFailures,
		"payroll_recipients", report.PayrollRecipients,
	)
	return report, nil
}

// scopeRecipients keeps the candidates sharing the submitter's org root and always adds the actor
func (d *notificationDispatcherImpl) scopeRecipients(
	ctx context.Context,
	request *entity.ApprovalRequest,
	budget *entity.BudgetConfiguration,
	records []*entity.ApprovalLevelRecord,
	actorID string,
) (*recipientScope, error) {
	candidates := newIDSet()
	candidates.add(request.SubmittedBy)
	candidates.add(request.CreatedBy)
	candidates.add(budget.CreatedBy)
	for _, record := range records {
		for _, id := range record.Assigned.IDs() {
			candidates.add(id)
		}
	}

	lookup := append([]string{actorID}, candidates.list()...)
	profiles, err := d.directory.ResolveProfiles(ctx, compactIDs(lookup))
	if err != nil {
		return nil, err
	}

	roots := make(map[string]string)
	submitterRoot, err := d.orgRootOf(ctx, profiles[request.Requestor()], roots)
	if err != nil {
		return nil, err
	}

	audience := &recipientScope{submitterRoot: submitterRoot, profiles: profiles}
	selected := newIDSet()
	for _, id := range candidates.list() {
		profile, ok := profiles[id]
		if !ok {
			continue
		}
		root, err := d.orgRootOf(ctx, profile, roots)
		if err != nil {
			return nil, err
		}
		if root == submitterRoot {
			selected.add(id)
		}
	}
	selected.add(actorID)

	audience.recipients = selected.list()
	return audience, nil
}

// orgRootOf resolves the org root of profile, caching by org id. A missing profile or org maps to "".
func (d *notificationDispatcherImpl) orgRootOf(ctx context.Context, profile *entity.UserProfile, cache map[string]string) (string, error) {
	if profile == nil || profile.OrgID == "" {
		return "", nil
	}
	if root, ok := cache[profile.OrgID]; ok {
		return root, nil
	}
	root, err := d.directory.ResolveOrgRoot(ctx, profile.OrgID)
	if err != nil {
		return "", fmt.Errorf("resolve org root of %s: %w", profile.OrgID, err)
	}
	cache[profile.OrgID] = root
	return root, nil
}

func (d *notificationDispatcherImpl) notifyPayroll(
	ctx context.Context,
	input NotifyInput,
	request *entity.ApprovalRequest,
	budget *entity.BudgetConfiguration,
	audience *recipientScope,
	report *NotifyReport,
) {
	users, err := d.directory.FindUsersByRoleKeyword(ctx, d.config.PayrollRoleKeyword)
	if err != nil {
		d.warn(report, "payroll user lookup failed", err, request.ID)
		return
	}

	roots := make(map[string]string)
	recipients := newIDSet()
	profiles := make(map[string]*entity.UserProfile, len(users))
	for _, user := range users {
		root, err := d.orgRootOf(ctx, user, roots)
		if err != nil {
			d.warn(report, "payroll org root lookup failed", err, request.ID)
			continue
		}
		if root != audience.submitterRoot {
			continue
		}
		recipients.add(user.ID)
		profiles[user.ID] = user
	}

	report.PayrollRecipients = len(recipients.list())
	if report.PayrollRecipients == 0 {
		d.logger.Warn("No payroll users found for request org root", "request_id", request.ID, "org_root", audience.submitterRoot)
		return
	}

	title := fmt.Sprintf("Payroll Action Required: %s", request.RequestNumber)
	body := fmt.Sprintf("Request %s for budget %s has been approved at levels 1-3 and is ready for payroll processing. Net amount: %s %s.",
		request.RequestNumber, budget.Name, request.TotalRequestAmount.StringFixed(2), budget.Currency)
	body = d.withLink(body, request.ID)

	payrollInput := input
	payrollInput.Level = entity.LevelPayroll
	d.deliver(ctx, payrollInput, request, recipients.list(), profiles, entity.NotificationTypePayrollActionRequired, title, body, report)
}

// deliver inserts the in-app rows, then sends one message per recipient with an email address concurrently
func (d *notificationDispatcherImpl) deliver(
	ctx context.Context,
	input NotifyInput,
	request *entity.ApprovalRequest,
	recipients []string,
	profiles map[string]*entity.UserProfile,
	notificationType string,
	title, body string,
	report *NotifyReport,
) {
	if len(recipients) == 0 {
		return
	}

	now := d.now()
	var level *int
	if input.Level > 0 {
		l := input.Level
		level = &l
	}

	rows := make([]*entity.Notification, 0, len(recipients))
	for _, id := range recipients {
		rows = append(rows, &entity.Notification{
			ID:                   uuid.NewString(),
			RequestID:            request.ID,
			RecipientID:          id,
			NotificationType:     notificationType,
			Title:                title,
			Message:              body,
			RelatedApprovalLevel: level,
			CreatedAt:            now,
		})
	}
	if err := d.notificationRepo.CreateBatch(ctx, rows); err != nil {
		d.warn(report, "in-app notification insert failed", err, request.ID)
	} else {
		report.InAppCreated += len(rows)
	}

	var sent, failed atomic.Int64
	var mu sync.Mutex
	var skipped []string
	p := pool.New().WithMaxGoroutines(d.config.MaxConcurrency)
	for _, id := range recipients {
		profile, ok := profiles[id]
		if !ok || profile.Email == "" {
			skipped = append(skipped, id)
			continue
		}
		msg := port.Message{
			To:      []string{profile.Email},
			Subject: title,
			Text:    fmt.Sprintf("Hi %s,\n\n%s\n\n%s", profile.DisplayName(), body, d.signature()),
			HTML:    d.renderHTML(profile.DisplayName(), body),
		}
		p.Go(func() {
			if err := d.notifier.Send(ctx, msg); err != nil {
				failed.Add(1)
				mu.Lock()
				d.warn(report, "notification send failed", err, request.ID)
				mu.Unlock()
				return
			}
			sent.Add(1)
		})
	}
	p.Wait()

	report.EmailsSent += int(sent.Load())
	report.EmailFailures += int(failed.Load())
	report.EmailsSkipped += len(skipped)
	if len(skipped) > 0 {
		d.logger.Info("Recipients without email received in-app notification only",
			"request_id", request.ID,
			"notification_type", notificationType,
			"recipients", skipped)
	}
}

// compose builds the title and body for the milestone announced by input
func (d *notificationDispatcherImpl) compose(
	input NotifyInput,
	request *entity.ApprovalRequest,
	budget *entity.BudgetConfiguration,
	actor *entity.UserProfile,
) (string, string) {
	actorName := input.ActorID
	if actor != nil {
		actorName = actor.DisplayName()
	}
	amount := fmt.Sprintf("%s %s", request.TotalRequestAmount.StringFixed(2), budget.Currency)

	var title, body string
	switch input.Type {
	case entity.NotificationTypeSubmitted:
		title = fmt.Sprintf("Approval Request %s Submitted", request.RequestNumber)
		body = fmt.Sprintf("%s (Requestor) has submitted request %s against budget %s for %s.",
			actorName, request.RequestNumber, budget.Name, amount)
	case entity.NotificationTypeApproved:
		title = fmt.Sprintf("Approval Request %s Approved at %s", request.RequestNumber, entity.LevelName(input.Level))
		body = fmt.Sprintf("%s (%s) has approved request %s at %s.",
			actorName, roleLabel(input.Level), request.RequestNumber, entity.LevelName(input.Level))
		if input.Level == entity.LevelPayroll && (input.PayrollCycle != "" || input.PayrollCycleDate != nil) {
			body += " Payroll cycle: " + input.PayrollCycle
			if input.PayrollCycleDate != nil {
				body += fmt.Sprintf(" (%s)", input.PayrollCycleDate.Format("2006-01-02"))
			}
			body += "."
		}
		if input.Notes != "" {
			body += " Notes: " + input.Notes
		}
	case entity.NotificationTypeRejected:
		title = fmt.Sprintf("Approval Request %s Rejected", request.RequestNumber)
		body = fmt.Sprintf("%s (%s) has rejected request %s at %s. Reason: %s",
			actorName, roleLabel(input.Level), request.RequestNumber, entity.LevelName(input.Level), input.RejectionReason)
	case entity.NotificationTypeCompleted:
		title = fmt.Sprintf("Payment Completed: %s", request.RequestNumber)
		body = fmt.Sprintf("%s (Payroll) has completed payment for request %s (%s).", actorName, request.RequestNumber, amount)
		if input.Notes != "" {
			body += " Completion notes: " + input.Notes
		}
	default:
		title = fmt.Sprintf("Approval Request %s Updated", request.RequestNumber)
		body = fmt.Sprintf("Request %s was updated by %s.", request.RequestNumber, actorName)
	}
	return title, d.withLink(body, request.ID)
}

func roleLabel(level int) string {
	if level == entity.LevelPayroll {
		return entity.PayrollLevelName
	}
	return fmt.Sprintf("Level %d Approver", level)
}

func (d *notificationDispatcherImpl) withLink(body, requestID string) string {
	if d.config.AppBaseURL == "" {
		return body
	}
	return fmt.Sprintf("%s View: %s/requests/%s", body, strings.TrimRight(d.config.AppBaseURL, "/"), requestID)
}

func (d *notificationDispatcherImpl) signature() string {
	if d.config.SenderName == "" {
		return "Budget Approval"
	}
	return d.config.SenderName
}

func (d *notificationDispatcherImpl) renderHTML(name, body string) string {
	return fmt.Sprintf("<p>Hi %s,</p><p>%s</p><p>%s</p>",
		html.EscapeString(name), html.EscapeString(body), html.EscapeString(d.signature()))
}

func (d *notificationDispatcherImpl) warn(report *NotifyReport, msg string, err error, requestID string) {
	d.logger.Warn(msg, "request_id", requestID, "error", err)
	report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", msg, err))
}

// idSet is an insertion-ordered set of non-empty ids
type idSet struct {
	seen  map[string]bool
	order []string
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[string]bool)}
}

func (s *idSet) add(id string) {
	id = strings.TrimSpace(id)
	if id == "" || s.seen[id] {
		return
	}
	s.seen[id] = true
	s.order = append(s.order, id)
}

func (s *idSet) list() []string {
	return s.order
}

func compactIDs(ids []string) []string {
	set := newIDSet()
	for _, id := range ids {
		set.add(id)
	}
	out := append([]string(nil), set.list()...)
	sort.Strings(out)
	return out
}
