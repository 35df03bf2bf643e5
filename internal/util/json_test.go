package util

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string // "array" or "object"
	}{
		{
			name:     "plain object",
			input:    `{"title": "Plan", "topics": []}`,
			wantType: "object",
		},
		{
			name:     "object in markdown",
			input:    "```json\n{\"title\": \"Plan\", \"topics\": [{\"title\": \"A\"}]}\n```",
			wantType: "object",
		},
		{
			name:     "object with prose around it",
			input:    "Here is the outline: {\"title\": \"Plan\", \"topics\": [\"x\"]} Hope it helps.",
			wantType: "object",
		},
		{
			name:     "plain array",
			input:    `["a", "b", "c"]`,
			wantType: "array",
		},
		{
			name:     "truncated array",
			input:    `["a", "b", "c"`,
			wantType: "array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.input)

			if tt.wantType == "array" {
				var arr []interface{}
				if err := json.Unmarshal([]byte(got), &arr); err != nil {
					t.Errorf("ExtractJSON() produced invalid array JSON: %v\nGot: %s", err, got)
				}
			} else {
				var obj map[string]interface{}
				if err := json.Unmarshal([]byte(got), &obj); err != nil {
					t.Errorf("ExtractJSON() produced invalid object JSON: %v\nGot: %s", err, got)
				}
			}
		})
	}
}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "unescaped newline",
			input: "[\"a\nb\"]",
			want:  "[\"a\\nb\"]",
		},
		{
			name:  "unescaped crlf",
			input: "{\"k\": \"a\r\nb\"}",
			want:  "{\"k\": \"a\\nb\"}",
		},
		{
			name:  "newline outside strings kept",
			input: "{\n\"k\": 1\n}",
			want:  "{\n\"k\": 1\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeJSON(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
