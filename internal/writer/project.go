package writer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lamim/folioforge/pkg/models"
)

// ErrProjectNotFound is returned when a project directory does not exist
var ErrProjectNotFound = errors.New("project directory not found")

// ProjectDir manages the files of one project under the output directory
type ProjectDir struct {
	id  string
	dir string
}

// CreateProjectDir creates (or reuses) the directory of a project
func CreateProjectDir(outputDir, projectID string) (*ProjectDir, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	dir := filepath.Join(outputDir, projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}
	return &ProjectDir{id: projectID, dir: dir}, nil
}

// OpenProjectDir opens an existing project directory
func OpenProjectDir(outputDir, projectID string) (*ProjectDir, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	dir := filepath.Join(outputDir, projectID)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &ProjectDir{id: projectID, dir: dir}, nil
}

func (p *ProjectDir) ID() string           { return p.id }
func (p *ProjectDir) Dir() string          { return p.dir }
func (p *ProjectDir) OutlinePath() string  { return filepath.Join(p.dir, "outline.json") }
func (p *ProjectDir) PlanPath() string     { return filepath.Join(p.dir, "plan.json") }
func (p *ProjectDir) SectionsPath() string { return filepath.Join(p.dir, "sections.jsonl") }
func (p *ProjectDir) ImagesPath() string   { return filepath.Join(p.dir, "images.json") }
func (p *ProjectDir) ReviewPath() string   { return filepath.Join(p.dir, "review.json") }
func (p *ProjectDir) DocumentPath() string { return filepath.Join(p.dir, "document.md") }
func (p *ProjectDir) LogPath() string      { return filepath.Join(p.dir, "session.log") }

// ConfigBackupPath returns the path of the config snapshot
func (p *ProjectDir) ConfigBackupPath() string {
	return filepath.Join(p.dir, "config.toml.bak")
}

// SaveOutline persists the input outline
func (p *ProjectDir) SaveOutline(outline models.Outline) error {
	return WriteJSONAtomic(p.OutlinePath(), outline)
}

// LoadOutline reads the persisted outline
func (p *ProjectDir) LoadOutline() (models.Outline, error) {
	var outline models.Outline
	if err := ReadJSON(p.OutlinePath(), &outline); err != nil {
		return models.Outline{}, fmt.Errorf("failed to load outline: %w", err)
	}
	return outline, nil
}

// SavePlan persists the section plan
func (p *ProjectDir) SavePlan(plan *models.SectionPlan) error {
	return WriteJSONAtomic(p.PlanPath(), plan)
}

// LoadPlan reads the persisted section plan
func (p *ProjectDir) LoadPlan() (*models.SectionPlan, error) {
	var plan models.SectionPlan
	if err := ReadJSON(p.PlanPath(), &plan); err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return &plan, nil
}

// BackupConfig copies the config file into the project directory
func (p *ProjectDir) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := os.WriteFile(p.ConfigBackupPath(), source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}
	return nil
}

// ResetOutputs removes generated artifacts, keeping the outline and logs
func (p *ProjectDir) ResetOutputs() error {
	for _, path := range []string{p.PlanPath(), p.SectionsPath(), p.ImagesPath(), p.ReviewPath(), p.DocumentPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// Remove deletes the whole project directory
func (p *ProjectDir) Remove() error {
	return os.RemoveAll(p.dir)
}
