package config

import (
	"strings"
	"testing"
)

func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // empty = valid
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:   "title with newline",
			mutate: func(c *Config) { c.Generation.DocumentTitle = "Strategy Memo\nDraft" },
		},
		{
			name:    "title too long",
			mutate:  func(c *Config) { c.Generation.DocumentTitle = strings.Repeat("a", MaxDocumentTitleLength+1) },
			wantErr: "exceeds maximum length",
		},
		{
			name:    "title with null byte",
			mutate:  func(c *Config) { c.Generation.DocumentTitle = "Market\x00Study" },
			wantErr: "invalid control characters",
		},
		{
			name: "model name too long",
			mutate: func(c *Config) {
				mc := c.Models["main"]
				mc.ModelName = strings.Repeat("m", MaxModelNameLength+1)
				c.Models["main"] = mc
			},
			wantErr: "name exceeds maximum length",
		},
		{
			name: "model name with escape",
			mutate: func(c *Config) {
				mc := c.Models["main"]
				mc.ModelName = "llama\x1b[31m"
				c.Models["main"] = mc
			},
			wantErr: "control characters",
		},
		{
			name: "ftp base url",
			mutate: func(c *Config) {
				mc := c.Models["main"]
				mc.BaseURL = "ftp://api.example.com/v1"
				c.Models["main"] = mc
			},
			wantErr: "http or https",
		},
		{
			name: "base url without host",
			mutate: func(c *Config) {
				mc := c.Models["main"]
				mc.BaseURL = "https:///v1"
				c.Models["main"] = mc
			},
			wantErr: "must have a host",
		},
		{
			name: "local base url",
			mutate: func(c *Config) {
				mc := c.Models["main"]
				mc.BaseURL = "http://127.0.0.1:8080/v1"
				c.Models["main"] = mc
			},
		},
		{
			name:    "oversized section template",
			mutate:  func(c *Config) { c.PromptTemplates.SectionGeneration = strings.Repeat("x", MaxTemplateSize+1) },
			wantErr: "section_generation",
		},
		{
			name:    "oversized outline system prompt",
			mutate:  func(c *Config) { c.PromptTemplates.OutlineSystemPrompt = strings.Repeat("x", MaxTemplateSize+1) },
			wantErr: "outline_system_prompt",
		},
		{
			name: "redis key prefix with spaces",
			mutate: func(c *Config) {
				c.Checkpoint.Backend = BackendRedis
				c.Checkpoint.KeyPrefix = "folio forge"
			},
			wantErr: "key_prefix",
		},
		{
			name: "file backend ignores key prefix",
			mutate: func(c *Config) {
				c.Checkpoint.KeyPrefix = "folio forge"
			},
		},
		{
			name:   "status addr",
			mutate: func(c *Config) { c.Status.Addr = "127.0.0.1:8089" },
		},
		{
			name:    "status addr without port",
			mutate:  func(c *Config) { c.Status.Addr = "localhost" },
			wantErr: "status.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.ValidateInputs()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateInputs() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateInputs() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateInputs() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestContainsControlChars(t *testing.T) {
	tests := map[string]bool{
		"Quarterly review":   false,
		"line one\nline two": false,
		"col\tcol":           false,
		"crlf\r\n":           false,
		"nul\x00":            true,
		"bell\x07":           true,
		"esc\x1b":            true,
	}
	for input, want := range tests {
		if got := containsControlChars(input); got != want {
			t.Errorf("containsControlChars(%q) = %v, want %v", input, got, want)
		}
	}
}
