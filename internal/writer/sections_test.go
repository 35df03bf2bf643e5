package writer

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/folioforge/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSectionWriter_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.jsonl")

	sw, err := OpenSectionWriter(path, discardLogger())
	if err != nil {
		t.Fatalf("OpenSectionWriter() error = %v", err)
	}
	for i, body := range []string{"first", "second", "second again"} {
		idx := i
		if i == 2 {
			idx = 1
		}
		if err := sw.Append(models.SectionRecord{Index: idx, Content: body}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := ReadSections(path, discardLogger())
	if err != nil {
		t.Fatalf("ReadSections() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadSections() returned %d sections, want 2", len(got))
	}
	if got[1].Content != "second again" {
		t.Errorf("later line should win, got %q", got[1].Content)
	}
}

func TestReadSections_SkipsTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.jsonl")
	data := `{"index":0,"content":"ok"}` + "\n" + `{"index":1,"conte`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadSections(path, discardLogger())
	if err != nil {
		t.Fatalf("ReadSections() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "ok" {
		t.Errorf("unexpected sections: %+v", got)
	}
}

func TestOpenSectionWriter_TerminatesTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.jsonl")
	data := `{"index":0,"content":"ok"}` + "\n" + `{"index":1,"conte`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	sw, err := OpenSectionWriter(path, discardLogger())
	if err != nil {
		t.Fatalf("OpenSectionWriter() error = %v", err)
	}
	if err := sw.Append(models.SectionRecord{Index: 1, Content: "regenerated"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := ReadSections(path, discardLogger())
	if err != nil {
		t.Fatalf("ReadSections() error = %v", err)
	}
	if len(got) != 2 || got[1].Content != "regenerated" {
		t.Errorf("unexpected sections: %+v", got)
	}
}

func TestReadSections_MissingFile(t *testing.T) {
	got, err := ReadSections(filepath.Join(t.TempDir(), "nope.jsonl"), discardLogger())
	if err != nil {
		t.Fatalf("ReadSections() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no sections, got %d", len(got))
	}
}

func TestWriteAtomic_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "record.json")

	if err := WriteAtomic(path, []byte("one")); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}
	if err := WriteAtomic(path, []byte("two")); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not remain, stat err = %v", err)
	}
}

func TestAssembleMarkdown(t *testing.T) {
	plan := &models.SectionPlan{
		DocumentTitle: "Market Entry Plan",
		Sections: []models.Section{
			{Index: 0, Title: "Overview (Part 1)", ParentTopic: "Overview"},
			{Index: 1, Title: "Overview (Part 2)", ParentTopic: "Overview"},
			{Index: 2, Title: "Pricing", ParentTopic: "Pricing"},
		},
	}
	sections := map[int]models.SectionRecord{
		0: {Index: 0, Content: "Intro text.\n[IMAGE: regional demand map]"},
		2: {Index: 2, Content: "Price points."},
	}

	doc := AssembleMarkdown(plan, sections)

	for _, want := range []string{
		"# Market Entry Plan",
		"## Overview",
		"### Overview (Part 2)",
		"> Figure: regional demand map",
		"_Section not generated._",
		"## Pricing",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q\n%s", want, doc)
		}
	}
	if strings.Count(doc, "## Overview\n") != 1 {
		t.Errorf("topic heading should appear once:\n%s", doc)
	}
}

func TestProjectDir_OutlineRoundTrip(t *testing.T) {
	out := t.TempDir()
	p, err := CreateProjectDir(out, "demo")
	if err != nil {
		t.Fatalf("CreateProjectDir() error = %v", err)
	}
	outline := models.Outline{Title: "T", Topics: []models.Topic{{Title: "A", SubTopics: []string{"a1"}}}}
	if err := p.SaveOutline(outline); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenProjectDir(out, "demo")
	if err != nil {
		t.Fatalf("OpenProjectDir() error = %v", err)
	}
	got, err := reopened.LoadOutline()
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "T" || len(got.Topics) != 1 || got.Topics[0].SubTopics[0] != "a1" {
		t.Errorf("unexpected outline: %+v", got)
	}

	if _, err := OpenProjectDir(out, "missing"); err == nil {
		t.Error("expected error for missing project")
	}
}
