package port

import (
	"context"
	"io"

	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// Message is one outbound notification delivered through a Notifier
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Notifier delivers outbound messages (email, chat). Failures are reported, never retried here.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Directory is the read-only user and organization lookup
type Directory interface {
	// ResolveProfiles returns the profiles found for ids; unknown ids are absent from the map
	ResolveProfiles(ctx context.Context, ids []string) (map[string]*entity.UserProfile, error)

	// ResolveOrgRoot walks parent pointers to the top-most ancestor of orgID
	ResolveOrgRoot(ctx context.Context, orgID string) (string, error)

	// FindUsersByRoleKeyword returns users holding a role whose name contains keyword (case-insensitive)
	FindUsersByRoleKeyword(ctx context.Context, keyword string) ([]*entity.UserProfile, error)
}

// DirectoryWriter seeds the directory. It is used by administrative tooling, not by the engine.
type DirectoryWriter interface {
	UpsertOrganization(ctx context.Context, org *entity.Organization) error
	UpsertUser(ctx context.Context, user *entity.UserProfile) error
}

// InsightsInput is the request context handed to the insights generator
type InsightsInput struct {
	Request   *entity.ApprovalRequest
	Budget    *entity.BudgetConfiguration
	LineItems []*entity.LineItem
	Levels    []*entity.ApprovalLevelRecord
	Stage     string
}

// InsightsResult is the approver-facing summary produced by the generator
type InsightsResult struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Risks      []string `json:"risks"`
}

// InsightsGenerator produces a short approver-facing summary of a request
type InsightsGenerator interface {
	GenerateInsights(ctx context.Context, input *InsightsInput) (*InsightsResult, error)
}

// RequestExport is everything written to an exported request workbook
type RequestExport struct {
	Request   *entity.ApprovalRequest
	Budget    *entity.BudgetConfiguration
	LineItems []*entity.LineItem
	Levels    []*entity.ApprovalLevelRecord
	Stage     string
}

// LineItemImporter parses uploaded line items. Item numbers are left unset.
type LineItemImporter interface {
	ParseLineItems(r io.Reader) ([]*entity.LineItem, error)
}

// RequestExporter writes a request and its ledger to w
type RequestExporter interface {
	WriteRequest(w io.Writer, export *RequestExport) error
}
