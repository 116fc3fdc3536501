package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestFields_Component(t *testing.T) {
	fields := NewFields().Component("scheduler")
	if fields["component"] != "scheduler" {
		t.Errorf("Component() = %v, want %v", fields["component"], "scheduler")
	}
}

func TestFields_Resource(t *testing.T) {
	fields := NewFields().Resource("task", "task-1")
	if fields["resource_type"] != "task" || fields["resource_name"] != "task-1" {
		t.Errorf("Resource() = %v", fields)
	}
}

func TestFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("task", "")
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestFields_Duration(t *testing.T) {
	fields := NewFields().Duration(150 * time.Millisecond)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want 150", fields["duration_ms"])
	}
}

func TestFields_Error(t *testing.T) {
	fields := NewFields().Error(errors.New("boom"))
	if fields["error"] != "boom" {
		t.Errorf("Error() = %v, want boom", fields["error"])
	}
}

func TestFields_ErrorNil(t *testing.T) {
	fields := NewFields().Error(nil)
	if _, exists := fields["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestFields_SessionID(t *testing.T) {
	fields := NewFields().SessionID("sess-1")
	if fields["session_id"] != "sess-1" {
		t.Errorf("SessionID() = %v, want sess-1", fields["session_id"])
	}
}

func TestFields_ChainedCalls(t *testing.T) {
	fields := NewFields().
		Component("orchestrator").
		Operation("generation").
		Resource("session", "sess-1").
		Duration(100 * time.Millisecond).
		Count(5)

	expected := map[string]interface{}{
		"component":     "orchestrator",
		"operation":     "generation",
		"resource_type": "session",
		"resource_name": "sess-1",
		"duration_ms":   int64(100),
		"count":         5,
	}

	for key, expectedValue := range expected {
		if fields[key] != expectedValue {
			t.Errorf("Chained calls: %s = %v, want %v", key, fields[key], expectedValue)
		}
	}
}

func TestFields_ToLogrus(t *testing.T) {
	fields := NewFields().Component("test").Operation("create")
	logrusFields := fields.ToLogrus()
	if logrusFields == nil {
		t.Fatal("ToLogrus() should not return nil")
	}
	if logrusFields["component"] != "test" || logrusFields["operation"] != "create" {
		t.Errorf("ToLogrus() = %v", logrusFields)
	}
}

func TestWorkflowFields(t *testing.T) {
	fields := WorkflowFields("phase.generation", "session-123")
	expected := map[string]interface{}{
		"component":     "workflow",
		"operation":     "phase.generation",
		"resource_type": "workflow",
		"resource_name": "session-123",
	}
	for key, expectedValue := range expected {
		if fields[key] != expectedValue {
			t.Errorf("WorkflowFields() %s = %v, want %v", key, fields[key], expectedValue)
		}
	}
}

func TestAIFields(t *testing.T) {
	fields := AIFields("classify_intent", "claude-3-haiku")
	expected := map[string]interface{}{
		"component": "ai",
		"operation": "classify_intent",
		"model":     "claude-3-haiku",
	}
	for key, expectedValue := range expected {
		if fields[key] != expectedValue {
			t.Errorf("AIFields() %s = %v, want %v", key, fields[key], expectedValue)
		}
	}
}

func TestPerformanceFields(t *testing.T) {
	fields := PerformanceFields("compile", 250*time.Millisecond, true)
	expected := map[string]interface{}{
		"component":   "performance",
		"operation":   "compile",
		"duration_ms": int64(250),
		"success":     true,
	}
	for key, expectedValue := range expected {
		if fields[key] != expectedValue {
			t.Errorf("PerformanceFields() %s = %v, want %v", key, fields[key], expectedValue)
		}
	}
}
