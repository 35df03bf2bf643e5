package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"unicode"
)

const (
	// MaxDocumentTitleLength bounds generation.document_title
	MaxDocumentTitleLength = 500

	// MaxModelNameLength bounds models.<name>.model_name
	MaxModelNameLength = 100

	// MaxTemplateSize bounds each prompt template
	MaxTemplateSize = 50 * 1024
)

var keyPrefixRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// textField is a user-supplied string that ends up in prompts, requests or file names
type textField struct {
	key    string
	value  string
	max    int
	noCtrl bool
}

func (f textField) check() error {
	if len(f.value) > f.max {
		return fmt.Errorf("%s exceeds maximum length of %d (got %d)", f.key, f.max, len(f.value))
	}
	if f.noCtrl && containsControlChars(f.value) {
		return fmt.Errorf("%s contains invalid control characters", f.key)
	}
	return nil
}

// ValidateInputs bounds and sanitizes the free-form strings of the config.
// Validate covers the structural checks.
func (c *Config) ValidateInputs() error {
	fields := []textField{
		{"generation.document_title", c.Generation.DocumentTitle, MaxDocumentTitleLength, true},
		{"prompt_templates.section_generation", c.PromptTemplates.SectionGeneration, MaxTemplateSize, false},
		{"prompt_templates.section_system_prompt", c.PromptTemplates.SectionSystemPrompt, MaxTemplateSize, false},
		{"prompt_templates.outline_generation", c.PromptTemplates.OutlineGeneration, MaxTemplateSize, false},
		{"prompt_templates.outline_system_prompt", c.PromptTemplates.OutlineSystemPrompt, MaxTemplateSize, false},
	}
	for name, mc := range c.Models {
		fields = append(fields, textField{"models." + name + ".model_name", mc.ModelName, MaxModelNameLength, true})
	}
	for _, f := range fields {
		if err := f.check(); err != nil {
			return err
		}
	}

	for name, mc := range c.Models {
		if err := checkEndpoint(mc.BaseURL); err != nil {
			return fmt.Errorf("models.%s.base_url: %w", name, err)
		}
	}

	if c.Checkpoint.Backend == BackendRedis && !keyPrefixRegex.MatchString(c.Checkpoint.KeyPrefix) {
		return fmt.Errorf("checkpoint.key_prefix %q must be 1-64 characters of letters, digits, '.', '_' or '-'", c.Checkpoint.KeyPrefix)
	}
	if c.Status.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			return fmt.Errorf("status.addr %q must be host:port: %w", c.Status.Addr, err)
		}
	}
	return nil
}

// checkEndpoint accepts absolute http(s) URLs only
func checkEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("must use http or https (got %q)", u.Scheme)
	case u.Host == "":
		return fmt.Errorf("must have a host")
	}
	return nil
}

// containsControlChars ignores the whitespace controls \n, \t and \r
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
