package event

import (
	"testing"
	"time"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      string
	}{
		{"request submitted", TypeRequestSubmitted, "request.submitted"},
		{"auto approved", TypeRequestAutoApproved, "request.auto_approved"},
		{"level approved", TypeLevelApproved, "level.approved"},
		{"level rejected", TypeLevelRejected, "level.rejected"},
		{"payment completed", TypePaymentCompleted, "payment.completed"},
		{"payroll action required", TypePayrollActionRequired, "payroll.action_required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("Type.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsValid(t *testing.T) {
	if !TypeLevelApproved.IsValid() {
		t.Error("TypeLevelApproved should be valid")
	}
	if Type("instance.created").IsValid() {
		t.Error("unknown type should be invalid")
	}
	if Type("").IsValid() {
		t.Error("empty type should be invalid")
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now()
	evt := NewEvent(TypeLevelApproved, "req-1", map[string]interface{}{PayloadLevel: 2})

	if evt.ID == "" {
		t.Error("ID should be generated")
	}
	if evt.CorrelationID == "" || evt.CorrelationID == evt.ID {
		t.Errorf("CorrelationID = %q, want a distinct generated id", evt.CorrelationID)
	}
	if evt.RequestID != "req-1" {
		t.Errorf("RequestID = %v, want req-1", evt.RequestID)
	}
	if evt.Timestamp.Before(before) {
		t.Error("Timestamp should be set to now")
	}
	if got := evt.GetPayloadInt(PayloadLevel); got != 2 {
		t.Errorf("GetPayloadInt() = %v, want 2", got)
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	evt := NewEvent(TypeRequestSubmitted, "req-1", nil)
	if evt.Payload == nil {
		t.Fatal("Payload should be initialized")
	}
	if got := evt.GetPayloadString(PayloadStage); got != "" {
		t.Errorf("GetPayloadString() on missing key = %q, want empty", got)
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	evt := NewEventWithCorrelation(TypePaymentCompleted, "req-9", nil, "corr-1")
	if evt.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %v, want corr-1", evt.CorrelationID)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeLevelApproved, "req-1", map[string]interface{}{PayloadStage: "ongoing_approval"})
	updated := original.WithPayload(PayloadOverallStatus, "in_progress")

	if _, exists := original.Payload[PayloadOverallStatus]; exists {
		t.Error("original payload must not be modified")
	}
	if got := updated.GetPayloadString(PayloadOverallStatus); got != "in_progress" {
		t.Errorf("GetPayloadString() = %v, want in_progress", got)
	}
	if updated.ID != original.ID || updated.CorrelationID != original.CorrelationID {
		t.Error("WithPayload should keep identity fields")
	}
}

func TestEvent_PayloadGetters(t *testing.T) {
	evt := NewEvent(TypeRequestAutoApproved, "req-1", map[string]interface{}{
		"auto":   true,
		"level":  float64(3),
		"level2": int64(4),
		"name":   42,
	})

	if !evt.GetPayloadBool("auto") {
		t.Error("GetPayloadBool() = false, want true")
	}
	if got := evt.GetPayloadInt("level"); got != 3 {
		t.Errorf("GetPayloadInt(float64) = %v, want 3", got)
	}
	if got := evt.GetPayloadInt("level2"); got != 4 {
		t.Errorf("GetPayloadInt(int64) = %v, want 4", got)
	}
	if got := evt.GetPayloadString("name"); got != "" {
		t.Errorf("GetPayloadString(non-string) = %q, want empty", got)
	}
}
