// Package porttest provides in-memory implementations of the application ports for tests.
package porttest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// Store keeps every aggregate in memory behind one mutex.
// Values are copied in and out so callers never share pointers with the store.
type Store struct {
	mu            sync.Mutex
	budgets       map[string]*entity.BudgetConfiguration
	approvers     map[string]map[int]*entity.Approver
	requests      map[string]*entity.ApprovalRequest
	items         map[string][]*entity.LineItem
	levels        map[string]map[int]*entity.ApprovalLevelRecord
	notifications []*entity.Notification
	activity      []*entity.ActivityLog
	sequences     map[int]int64

	// Failure injection, checked on every call of the matching operation
	NotificationErr error
	ActivityErr     error
	SequenceErr     error
	LevelCreateErr  error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		budgets:   make(map[string]*entity.BudgetConfiguration),
		approvers: make(map[string]map[int]*entity.Approver),
		requests:  make(map[string]*entity.ApprovalRequest),
		items:     make(map[string][]*entity.LineItem),
		levels:    make(map[string]map[int]*entity.ApprovalLevelRecord),
		sequences: make(map[int]int64),
	}
}

// Budgets returns the store as a port.BudgetRepository
func (s *Store) Budgets() port.BudgetRepository { return budgetRepo{s} }

// Approvers returns the store as a port.ApproverRepository
func (s *Store) Approvers() port.ApproverRepository { return approverRepo{s} }

// Requests returns the store as a port.RequestRepository
func (s *Store) Requests() port.RequestRepository { return requestRepo{s} }

// LineItems returns the store as a port.LineItemRepository
func (s *Store) LineItems() port.LineItemRepository { return lineItemRepo{s} }

// Levels returns the store as a port.ApprovalLevelRepository
func (s *Store) Levels() port.ApprovalLevelRepository { return levelRepo{s} }

// Notifications returns the store as a port.NotificationRepository
func (s *Store) Notifications() port.NotificationRepository { return notificationRepo{s} }

// Activity returns the store as a port.ActivityRepository
func (s *Store) Activity() port.ActivityRepository { return activityRepo{s} }

// Sequences returns the store as a port.SequenceRepository
func (s *Store) Sequences() port.SequenceRepository { return sequenceRepo{s} }

// TxManager returns a transaction manager that runs fn without isolation
func (s *Store) TxManager() port.TransactionManager { return txManager{} }

// AllNotifications returns a copy of every stored notification
func (s *Store) AllNotifications() []*entity.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		c := *n
		out = append(out, &c)
	}
	return out
}

// AllActivity returns a copy of every stored activity log
func (s *Store) AllActivity() []*entity.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.ActivityLog, 0, len(s.activity))
	for _, a := range s.activity {
		c := *a
		out = append(out, &c)
	}
	return out
}

type txManager struct{}

func (txManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type budgetRepo struct{ s *Store }

func (r budgetRepo) Create(_ context.Context, budget *entity.BudgetConfiguration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.budgets[budget.ID]; ok {
		return port.ErrDuplicate
	}
	c := *budget
	r.s.budgets[budget.ID] = &c
	return nil
}

func (r budgetRepo) GetByID(_ context.Context, id string) (*entity.BudgetConfiguration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.budgets[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (r budgetRepo) UpdateStatus(_ context.Context, id string, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.budgets[id]
	if !ok {
		return port.ErrNotFound
	}
	b.Status = status
	return nil
}

func (r budgetRepo) UpdateStartDate(_ context.Context, id string, startDate time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.budgets[id]
	if !ok {
		return port.ErrNotFound
	}
	b.StartDate = startDate
	return nil
}

func (r budgetRepo) List(_ context.Context, limit, offset int) ([]*entity.BudgetConfiguration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]*entity.BudgetConfiguration, 0, len(r.s.budgets))
	for _, b := range r.s.budgets {
		c := *b
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type approverRepo struct{ s *Store }

func (r approverRepo) Upsert(_ context.Context, approver *entity.Approver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	levels, ok := r.s.approvers[approver.BudgetID]
	if !ok {
		levels = make(map[int]*entity.Approver)
		r.s.approvers[approver.BudgetID] = levels
	}
	c := *approver
	levels[approver.ApprovalLevel] = &c
	return nil
}

func (r approverRepo) GetByBudgetID(_ context.Context, budgetID string) ([]*entity.Approver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Approver, 0, 3)
	for _, a := range r.s.approvers[budgetID] {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApprovalLevel < out[j].ApprovalLevel })
	return out, nil
}

func (r approverRepo) GetByLevel(_ context.Context, budgetID string, level int) (*entity.Approver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.approvers[budgetID][level]
	if !ok {
		return nil, port.ErrNotFound
	}
	c := *a
	return &c, nil
}

type requestRepo struct{ s *Store }

func (r requestRepo) Create(_ context.Context, request *entity.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[request.ID]; ok {
		return port.ErrDuplicate
	}
	for _, existing := range r.s.requests {
		if existing.RequestNumber == request.RequestNumber {
			return port.ErrDuplicate
		}
	}
	c := *request
	r.s.requests[request.ID] = &c
	return nil
}

func (r requestRepo) GetByID(_ context.Context, id string) (*entity.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	c := *req
	return &c, nil
}

func (r requestRepo) ListByBudgetID(_ context.Context, budgetID string) ([]*entity.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ApprovalRequest
	for _, req := range r.s.requests {
		if req.BudgetID == budgetID {
			c := *req
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestNumber < out[j].RequestNumber })
	return out, nil
}

func (r requestRepo) MarkSubmitted(_ context.Context, id string, update port.SubmissionUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return port.ErrNotFound
	}
	if req.OverallStatus != entity.RequestStatusDraft {
		return port.ErrConflict
	}
	at := update.SubmittedAt
	req.OverallStatus = entity.RequestStatusSubmitted
	req.SubmittedBy = update.SubmittedBy
	req.TotalRequestAmount = update.TotalAmount
	req.LineItemCount = update.LineItemCount
	req.SubmittedDate = &at
	req.UpdatedAt = at
	return nil
}

func (r requestRepo) TransitionStatus(_ context.Context, id string, fromStatus, toStatus string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return port.ErrNotFound
	}
	if req.OverallStatus != fromStatus {
		return port.ErrConflict
	}
	req.OverallStatus = toStatus
	req.UpdatedAt = at
	switch toStatus {
	case entity.RequestStatusApproved:
		req.ApprovedDate = &at
	case entity.RequestStatusRejected:
		req.RejectedDate = &at
	case entity.RequestStatusCompleted:
		req.CompletedDate = &at
	}
	return nil
}

func (r requestRepo) SetPayrollCycle(_ context.Context, id string, cycle string, cycleDate *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return port.ErrNotFound
	}
	req.PayrollCycle = cycle
	req.PayrollCycleDate = cycleDate
	return nil
}

type lineItemRepo struct{ s *Store }

func (r lineItemRepo) CreateBatch(_ context.Context, items []*entity.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range items {
		c := *item
		r.s.items[item.RequestID] = append(r.s.items[item.RequestID], &c)
	}
	return nil
}

func (r lineItemRepo) GetByRequestID(_ context.Context, requestID string) ([]*entity.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.LineItem, 0, len(r.s.items[requestID]))
	for _, item := range r.s.items[requestID] {
		c := *item
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemNumber < out[j].ItemNumber })
	return out, nil
}

type levelRepo struct{ s *Store }

func (r levelRepo) Create(_ context.Context, record *entity.ApprovalLevelRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.LevelCreateErr != nil {
		return r.s.LevelCreateErr
	}
	levels, ok := r.s.levels[record.RequestID]
	if !ok {
		levels = make(map[int]*entity.ApprovalLevelRecord)
		r.s.levels[record.RequestID] = levels
	}
	if _, exists := levels[record.ApprovalLevel]; exists {
		return port.ErrDuplicate
	}
	c := *record
	levels[record.ApprovalLevel] = &c
	return nil
}

func (r levelRepo) GetByRequestID(_ context.Context, requestID string) ([]*entity.ApprovalLevelRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.ApprovalLevelRecord, 0, 4)
	for _, rec := range r.s.levels[requestID] {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApprovalLevel < out[j].ApprovalLevel })
	return out, nil
}

func (r levelRepo) GetByLevel(_ context.Context, requestID string, level int) (*entity.ApprovalLevelRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.levels[requestID][level]
	if !ok {
		return nil, port.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (r levelRepo) Approve(_ context.Context, id string, d entity.LevelDecision) error {
	return r.update(id, entity.LevelStatusPending, func(rec *entity.ApprovalLevelRecord) {
		at := d.At
		rec.Status = entity.LevelStatusApproved
		rec.ApprovedBy = d.ActorID
		rec.ApproverName = d.ActorName
		rec.ApproverTitle = d.ActorTitle
		rec.ApprovalNotes = d.Notes
		rec.ConditionsApplied = d.ConditionsApplied
		rec.IsSelfRequest = d.IsSelfRequest
		rec.ApprovalDate = &at
		rec.UpdatedAt = at
	})
}

func (r levelRepo) Reject(_ context.Context, id string, d entity.LevelDecision) error {
	return r.update(id, entity.LevelStatusPending, func(rec *entity.ApprovalLevelRecord) {
		at := d.At
		rec.Status = entity.LevelStatusRejected
		rec.ApprovedBy = d.ActorID
		rec.ApproverName = d.ActorName
		rec.ApproverTitle = d.ActorTitle
		rec.RejectionReason = d.RejectionReason
		rec.ApprovalDate = &at
		rec.UpdatedAt = at
	})
}

func (r levelRepo) Complete(_ context.Context, id string, d entity.LevelDecision) error {
	return r.update(id, entity.LevelStatusApproved, func(rec *entity.ApprovalLevelRecord) {
		at := d.At
		rec.Status = entity.LevelStatusCompleted
		rec.CompletedBy = d.ActorID
		rec.CompletionNotes = d.Notes
		rec.CompletedDate = &at
		rec.UpdatedAt = at
	})
}

func (r levelRepo) update(id, expected string, apply func(*entity.ApprovalLevelRecord)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, levels := range r.s.levels {
		for _, rec := range levels {
			if rec.ID != id {
				continue
			}
			if rec.Status != expected {
				return port.ErrConflict
			}
			apply(rec)
			return nil
		}
	}
	return port.ErrConflict
}

func (r levelRepo) CountDecisionsByBudgetID(_ context.Context, budgetID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for requestID, levels := range r.s.levels {
		req, ok := r.s.requests[requestID]
		if !ok || req.BudgetID != budgetID {
			continue
		}
		for _, rec := range levels {
			if rec.Status != entity.LevelStatusPending {
				count++
			}
		}
	}
	return count, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreateBatch(_ context.Context, notifications []*entity.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.NotificationErr != nil {
		return r.s.NotificationErr
	}
	for _, n := range notifications {
		c := *n
		r.s.notifications = append(r.s.notifications, &c)
	}
	return nil
}

func (r notificationRepo) GetByID(_ context.Context, id string) (*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id {
			c := *n
			return &c, nil
		}
	}
	return nil, port.ErrNotFound
}

func (r notificationRepo) ListByRecipient(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Notification
	for i := len(r.s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := r.s.notifications[i]
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (r notificationRepo) ListByRequestID(_ context.Context, requestID string) ([]*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Notification
	for _, n := range r.s.notifications {
		if n.RequestID == requestID {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r notificationRepo) MarkRead(_ context.Context, id string, recipientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			n.IsRead = true
			return nil
		}
	}
	return port.ErrNotFound
}

type activityRepo struct{ s *Store }

func (r activityRepo) Create(_ context.Context, activity *entity.ActivityLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ActivityErr != nil {
		return r.s.ActivityErr
	}
	c := *activity
	r.s.activity = append(r.s.activity, &c)
	return nil
}

func (r activityRepo) ListByRequestID(_ context.Context, requestID string) ([]*entity.ActivityLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ActivityLog
	for _, a := range r.s.activity {
		if a.RequestID == requestID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

type sequenceRepo struct{ s *Store }

func (r sequenceRepo) NextValue(_ context.Context, year int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.SequenceErr != nil {
		return 0, r.s.SequenceErr
	}
	r.s.sequences[year]++
	return r.s.sequences[year], nil
}

// Directory is an in-memory user and organization directory
type Directory struct {
	mu    sync.Mutex
	users map[string]*entity.UserProfile
	orgs  map[string]*entity.Organization

	// Err fails every lookup when set
	Err error
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]*entity.UserProfile),
		orgs:  make(map[string]*entity.Organization),
	}
}

// AddOrg registers an organization under parent ("" for a root)
func (d *Directory) AddOrg(id, parent string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orgs[id] = &entity.Organization{ID: id, Name: id, ParentOrgID: parent}
	return d
}

// AddUser registers a user. The email defaults to <id>@example.com.
func (d *Directory) AddUser(id, orgID string, roles ...string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = &entity.UserProfile{
		ID:        id,
		Name:      strings.ToUpper(id[:1]) + id[1:],
		Email:     id + "@example.com",
		OrgID:     orgID,
		RoleNames: roles,
	}
	return d
}

// ClearEmail blanks a user's email so only in-app delivery reaches them
func (d *Directory) ClearEmail(id string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		u.Email = ""
	}
	return d
}

func (d *Directory) ResolveProfiles(_ context.Context, ids []string) (map[string]*entity.UserProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	out := make(map[string]*entity.UserProfile, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			c := *u
			out[id] = &c
		}
	}
	return out, nil
}

func (d *Directory) ResolveOrgRoot(_ context.Context, orgID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return "", d.Err
	}
	current := orgID
	for i := 0; i < 64; i++ {
		org, ok := d.orgs[current]
		if !ok || org.ParentOrgID == "" {
			return current, nil
		}
		current = org.ParentOrgID
	}
	return current, nil
}

func (d *Directory) FindUsersByRoleKeyword(_ context.Context, keyword string) ([]*entity.UserProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	var out []*entity.UserProfile
	for _, u := range d.users {
		if u.HasRoleContaining(keyword) {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Notifier records sent messages. Addresses listed in FailFor are refused.
type Notifier struct {
	mu      sync.Mutex
	sent    []port.Message
	FailFor map[string]error
}

// NewNotifier creates a recording notifier
func NewNotifier() *Notifier {
	return &Notifier{FailFor: make(map[string]error)}
}

func (n *Notifier) Send(_ context.Context, msg port.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, to := range msg.To {
		if err, ok := n.FailFor[to]; ok {
			return err
		}
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns the delivered messages
func (n *Notifier) Sent() []port.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]port.Message(nil), n.sent...)
}

// Recipients returns the sorted addresses of every delivered message
func (n *Notifier) Recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, msg := range n.sent {
		out = append(out, msg.To...)
	}
	sort.Strings(out)
	return out
}
