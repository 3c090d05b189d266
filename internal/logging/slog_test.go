package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, FormatJSON, slog.LevelInfo)
		logger.Info("hello", UserID("u1"))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
		}
		if entry[KeyUserID] != "u1" {
			t.Errorf("user_id = %v, want u1", entry[KeyUserID])
		}
	})

	t.Run("text is default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, "bogus", slog.LevelInfo)
		logger.Info("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Errorf("expected text output, got %q", buf.String())
		}
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, FormatText, slog.LevelWarn)
		logger.Info("dropped")
		if buf.Len() != 0 {
			t.Errorf("info should be filtered at warn level, got %q", buf.String())
		}
	})
}

func TestWithRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRecord(New(&buf, FormatText, slog.LevelInfo), "u1", "tasks", "r1")
	logger.Info("synced")

	out := buf.String()
	for _, want := range []string{"user_id=u1", "collection=tasks", "record_id=r1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestWithOperation(t *testing.T) {
	if WithOperation(slog.Default(), "calendar.insert") == nil {
		t.Error("WithOperation returned nil")
	}
	if WithTool(slog.Default(), "calendar_create_event") == nil {
		t.Error("WithTool returned nil")
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		attr  slog.Attr
		key   string
		value string
	}{
		{Operation("op"), KeyOperation, "op"},
		{UserID("u1"), KeyUserID, "u1"},
		{RecordID("r1"), KeyRecordID, "r1"},
		{Collection("projects"), KeyCollection, "projects"},
		{Phase("update"), KeyPhase, "update"},
		{EventID("evt"), KeyEventID, "evt"},
		{Tool("calendar_status"), KeyTool, "calendar_status"},
		{Status(StatusSuccess), KeyStatus, "success"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.key)
			}
			if tt.attr.Value.String() != tt.value {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.value)
			}
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// Empty Group has empty key
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestAnonymizeUserID(t *testing.T) {
	if got := AnonymizeUserID(""); got != "" {
		t.Errorf("AnonymizeUserID(\"\") = %q, want empty", got)
	}

	hash1 := AnonymizeUserID("user-123")
	if len(hash1) != 21 || !strings.HasPrefix(hash1, "user:") {
		t.Errorf("unexpected hash %q", hash1)
	}
	if hash1 != AnonymizeUserID("user-123") {
		t.Error("AnonymizeUserID should return deterministic results")
	}
	if hash1 == AnonymizeUserID("user-456") {
		t.Error("Different emails should produce different hashes")
	}
	if UserHash("user-123").Value.String() != hash1 {
		t.Error("UserHash should use AnonymizeUserID")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"ya29.a0AfH6SMBx", "[token:15 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := SanitizeToken(tt.token); result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}
