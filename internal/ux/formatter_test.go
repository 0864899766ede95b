package ux

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type cardData struct {
	Coffees   int `json:"currentCoffees" yaml:"currentCoffees"`
	Threshold int `json:"threshold" yaml:"threshold"`
}

type greeting string

func (g greeting) String() string { return "hello " + string(g) }

func format(t *testing.T, format string, compact bool, data any) string {
	t.Helper()
	var buf bytes.Buffer
	f, err := NewFormatter(format, &FormatterOptions{Writer: &buf, Compact: compact})
	if err != nil {
		t.Fatalf("NewFormatter(%q) error = %v", format, err)
	}
	if err := f.Format(data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestNewFormatterRejectsUnknown(t *testing.T) {
	for _, name := range Formats {
		if _, err := NewFormatter(name, nil); err != nil {
			t.Errorf("NewFormatter(%q) error = %v", name, err)
		}
	}
	if _, err := NewFormatter("", nil); err != nil {
		t.Errorf("empty format should mean text, got %v", err)
	}
	if _, err := NewFormatter("xml", nil); err == nil {
		t.Error("NewFormatter(xml) should fail")
	}
}

func TestFormat(t *testing.T) {
	card := cardData{Coffees: 7, Threshold: 10}

	tests := []struct {
		name    string
		format  string
		compact bool
		data    any
		want    string
	}{
		{"json", FormatJSON, false, card, "{\n  \"currentCoffees\": 7,\n  \"threshold\": 10\n}"},
		{"compact json", FormatJSON, true, card, `{"currentCoffees":7,"threshold":10}`},
		{"yaml", FormatYAML, false, card, "currentCoffees: 7\nthreshold: 10"},
		{"yaml decodes raw json", FormatYAML, false, json.RawMessage(`{"version":"1.2.0"}`), "version: 1.2.0"},
		{"text string", FormatText, false, "Signed in", "Signed in"},
		{"text stringer", FormatText, false, greeting("ada"), "hello ada"},
		{"text struct falls back to yaml", FormatText, false, card, "currentCoffees: 7\nthreshold: 10"},
		{"text indents raw json", FormatText, false, json.RawMessage(`{"environment":"dev"}`), "{\n  \"environment\": \"dev\"\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := format(t, tt.format, tt.compact, tt.data); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestYAMLFormatterInvalidRawJSON(t *testing.T) {
	f, _ := NewFormatter(FormatYAML, &FormatterOptions{Writer: &bytes.Buffer{}})
	if err := f.Format(json.RawMessage(`{`)); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}
