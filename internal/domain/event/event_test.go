package event

import (
	"testing"
	"time"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		eventType Type
		want      string
	}{
		{TypeExpenseSaved, "expense.saved"},
		{TypeReportSubmitted, "report.submitted"},
		{TypeApprovalDecided, "approval.decided"},
		{TypeStatusChanged, "approval.status_changed"},
		{TypeApproverAdded, "approval.approver_added"},
		{TypeApproversMissing, "approval.approvers_missing"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.eventType.String(); got != tt.want {
				t.Errorf("Type.String() = %v, want %v", got, tt.want)
			}
			if !tt.eventType.IsValid() {
				t.Errorf("Type.IsValid() = false for %v", tt.eventType)
			}
		})
	}

	if Type("instance.created").IsValid() {
		t.Error("unknown type should be invalid")
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now()
	evt := NewEvent(TypeReportSubmitted, 42, map[string]interface{}{KeyCompanyID: int64(7)})

	if evt.ID == "" {
		t.Error("NewEvent() should generate an ID")
	}
	if evt.CorrelationID != evt.ID {
		t.Errorf("CorrelationID = %v, want the event ID %v", evt.CorrelationID, evt.ID)
	}
	if evt.AggregateID != 42 {
		t.Errorf("AggregateID = %v, want 42", evt.AggregateID)
	}
	if evt.Timestamp.Before(before) {
		t.Error("Timestamp should be set to now")
	}
	if got := evt.GetPayloadInt(KeyCompanyID); got != 7 {
		t.Errorf("GetPayloadInt() = %v, want 7", got)
	}

	other := NewEvent(TypeReportSubmitted, 42, nil)
	if other.ID == evt.ID {
		t.Error("event IDs should be unique")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	parent := NewEvent(TypeApprovalDecided, 1, nil)
	child := NewEventWithCorrelation(TypeStatusChanged, 1, nil, parent.CorrelationID)

	if child.CorrelationID != parent.CorrelationID {
		t.Errorf("CorrelationID = %v, want %v", child.CorrelationID, parent.CorrelationID)
	}
	if child.ID == parent.ID {
		t.Error("child should get its own ID")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeStatusChanged, 5, map[string]interface{}{KeyNewStatus: "APPROVED"})
	updated := original.WithPayload(KeyLevel, 2)

	if _, ok := original.Payload[KeyLevel]; ok {
		t.Error("WithPayload() must not mutate the original event")
	}
	if updated.GetPayloadInt(KeyLevel) != 2 {
		t.Errorf("GetPayloadInt() = %v, want 2", updated.GetPayloadInt(KeyLevel))
	}
	if updated.GetPayloadString(KeyNewStatus) != "APPROVED" {
		t.Error("WithPayload() should keep existing keys")
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event ID")
	}
}

func TestEvent_PayloadAccessors(t *testing.T) {
	evt := NewEvent(TypeExpenseSaved, 1, map[string]interface{}{
		"int":    3,
		"int64":  int64(4),
		"float":  float64(5),
		"string": "x",
	})

	tests := map[string]int64{"int": 3, "int64": 4, "float": 5, "string": 0, "missing": 0}
	for key, want := range tests {
		if got := evt.GetPayloadInt(key); got != want {
			t.Errorf("GetPayloadInt(%q) = %v, want %v", key, got, want)
		}
	}

	if evt.GetPayloadString("int") != "" {
		t.Error("GetPayloadString() should ignore non-string values")
	}
}
