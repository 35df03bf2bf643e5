package writer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Project ids are used as directory, file and key names
var projectIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateProjectID rejects ids that could escape the output or checkpoint
// directories (CWE-22) or collide with generated file names.
func ValidateProjectID(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("project id cannot be empty")
	}

	if strings.Contains(projectID, "..") {
		return fmt.Errorf("invalid project id: contains '..' (path traversal attempt)")
	}

	if filepath.IsAbs(projectID) {
		return fmt.Errorf("invalid project id: must not be an absolute path")
	}

	if strings.ContainsAny(projectID, "/\\") {
		return fmt.Errorf("invalid project id: must not contain path separators")
	}

	if !projectIDRegex.MatchString(projectID) {
		return fmt.Errorf("invalid project id %q: use letters, digits, '-' or '_' (max 128)", projectID)
	}

	return nil
}
