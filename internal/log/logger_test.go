package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/felixgeelhaar/coffeeclub/internal/errors"
)

func newBufferLogger(buf *bytes.Buffer, level Level) *Logger {
	return New(Config{
		Level:  level,
		Format: FormatJSON,
		Output: NewOutput(buf),
	})
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}
	return entry
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() > 0 {
		t.Errorf("expected no output for debug/info at warn level, got: %s", buf.String())
	}

	logger.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("expected output for warn message")
	}

	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should not be enabled at warn level")
	}
}

func TestJSONFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         NewOutput(&buf),
		ServiceName:    "coffeeclub",
		ServiceVersion: "1.2.3",
	})

	logger.Info("test message", "key1", "value1", "key2", 42)

	entry := decode(t, &buf)
	if entry["msg"] != "test message" {
		t.Errorf("expected msg 'test message', got %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level 'INFO', got %v", entry["level"])
	}
	if entry["key2"] != float64(42) {
		t.Errorf("expected key2 42, got %v", entry["key2"])
	}
	if entry["service"] != "coffeeclub" || entry["version"] != "1.2.3" {
		t.Errorf("expected service attributes, got %v", entry)
	}
}

func TestTextFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatText, Output: NewOutput(&buf)})

	logger.Info("test message", "key1", "value1")

	output := buf.String()
	if !strings.Contains(output, "test message") || !strings.Contains(output, "key1=value1") {
		t.Errorf("unexpected text output: %s", output)
	}
}

func TestWithAndWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo).With("component", "gateway").WithGroup("http")

	logger.Info("request", "status", 200)

	entry := decode(t, &buf)
	if entry["component"] != "gateway" {
		t.Errorf("expected component attribute, got %v", entry)
	}
	group, ok := entry["http"].(map[string]any)
	if !ok || group["status"] != float64(200) {
		t.Errorf("expected grouped status, got %v", entry["http"])
	}
}

func TestWithError(t *testing.T) {
	t.Run("nil error returns same logger", func(t *testing.T) {
		logger := Discard()
		if logger.WithError(nil) != logger {
			t.Error("WithError(nil) should return the receiver")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		var buf bytes.Buffer
		newBufferLogger(&buf, LevelInfo).WithError(fmt.Errorf("boom")).Info("failed")

		entry := decode(t, &buf)
		if entry["error"] != "boom" {
			t.Errorf("expected error attribute, got %v", entry)
		}
	})

	t.Run("wrapped coded error", func(t *testing.T) {
		var buf bytes.Buffer
		appErr := errors.NewAPIServerError(fmt.Errorf("status 503"))
		wrapped := fmt.Errorf("fetch profile: %w", appErr)

		newBufferLogger(&buf, LevelInfo).WithError(wrapped).Info("failed")

		entry := decode(t, &buf)
		if entry["error_code"] != string(errors.ErrCodeAPIServer) {
			t.Errorf("expected error_code, got %v", entry)
		}
		if entry["cause"] != "status 503" {
			t.Errorf("expected cause, got %v", entry["cause"])
		}
		if _, ok := entry["suggestions"]; !ok {
			t.Error("expected suggestions attribute")
		}
	})
}

func TestWithContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithRequestID(context.Background(), "req-123")

	if RequestIDFromContext(ctx) != "req-123" {
		t.Fatalf("RequestIDFromContext = %q", RequestIDFromContext(ctx))
	}

	newBufferLogger(&buf, LevelInfo).WithContext(ctx).Info("sent")

	entry := decode(t, &buf)
	if entry["request_id"] != "req-123" {
		t.Errorf("expected request_id, got %v", entry)
	}

	plain := Discard()
	if plain.WithContext(context.Background()) != plain {
		t.Error("WithContext without a request id should return the receiver")
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, LevelInfo)

	logger.LogError(nil)
	if buf.Len() != 0 {
		t.Fatalf("LogError(nil) should not log, got %s", buf.String())
	}

	logger.LogError(errors.NewAuthRequiredError())

	entry := decode(t, &buf)
	if entry["level"] != "ERROR" {
		t.Errorf("expected ERROR level, got %v", entry["level"])
	}
	if entry["error_code"] != string(errors.ErrCodeAuthRequired) {
		t.Errorf("expected error_code, got %v", entry)
	}
	if entry["docs_url"] == nil {
		t.Error("expected docs_url attribute")
	}
}

func TestDefaultLogger(t *testing.T) {
	original := defaultLogger.Load()
	defer defaultLogger.Store(original)

	defaultLogger.Store(nil)
	if DefaultLogger() == nil {
		t.Fatal("DefaultLogger returned nil when no default was set")
	}

	custom := New(DevelopmentConfig())
	SetDefaultLogger(custom)
	if DefaultLogger() != custom {
		t.Error("DefaultLogger did not return the custom logger")
	}
	if OrDefault(nil) != custom {
		t.Error("OrDefault(nil) should return the default logger")
	}

	other := Discard()
	if OrDefault(other) != other {
		t.Error("OrDefault should prefer the given logger")
	}
}
