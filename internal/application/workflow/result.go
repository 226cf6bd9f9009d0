package workflow

import (
	"errors"

	"github.com/garyjia/budget-approval/internal/application/service"
	"github.com/garyjia/budget-approval/internal/domain/entity"
	domainwf "github.com/garyjia/budget-approval/internal/domain/workflow"
)

// Result is the uniform envelope returned by every workflow action.
// Error is a message string, or a field-keyed map for field validation failures.
type Result struct {
	Success      bool        `json:"success"`
	Data         interface{} `json:"data,omitempty"`
	AutoApproved *bool       `json:"auto_approved,omitempty"`
	Message      string      `json:"message,omitempty"`
	Error        interface{} `json:"error,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`

	// Kind classifies a failure for transport mapping
	Kind entity.ErrorKind `json:"-"`
}

// ActionData is the state of a request after a workflow action
type ActionData struct {
	Request *entity.ApprovalRequest       `json:"request"`
	Level   *entity.ApprovalLevelRecord   `json:"level,omitempty"`
	Levels  []*entity.ApprovalLevelRecord `json:"approval_levels"`
	Stage   domainwf.Stage                `json:"stage"`
}

// SubmissionData is the state of a request after submission
type SubmissionData struct {
	ActionData
	AutoApproved bool                  `json:"auto_approved"`
	Notification *service.NotifyReport `json:"notification,omitempty"`
}

func ok(message string, data interface{}, warnings []string) *Result {
	return &Result{Success: true, Message: message, Data: data, Warnings: warnings}
}

// fail converts err into a failed envelope. Collaborator failures expose only the operation name.
func fail(err error) *Result {
	result := &Result{Kind: entity.KindOf(err)}

	var e *entity.Error
	if !errors.As(err, &e) {
		result.Error = "internal error"
		return result
	}

	switch {
	case len(e.Fields) > 0:
		result.Error = e.Fields
		result.Message = e.Message
	case e.Kind == entity.KindCollaborator:
		result.Error = "failed to " + e.Message
	default:
		result.Error = e.Message
	}
	return result
}

// ErrorResult wraps a service error in the failed envelope
func ErrorResult(err error) *Result {
	return fail(err)
}

// OK wraps data in a successful envelope
func OK(message string, data interface{}) *Result {
	return ok(message, data, nil)
}

func boolPtr(b bool) *bool {
	return &b
}
