package writer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/lamim/folioforge/pkg/models"
)

// SectionWriter appends generated sections to the project's JSONL log.
// Every append is fsynced so content is durable before its checkpoint.
type SectionWriter struct {
	file   *os.File
	mu     sync.Mutex
	logger *slog.Logger
}

// OpenSectionWriter opens the section log for appending. A torn final line
// left by a crash is terminated so the next record starts on its own line.
func OpenSectionWriter(path string, logger *slog.Logger) (*SectionWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open section log: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat section log: %w", err)
	}
	if size := info.Size(); size > 0 {
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, size-1); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to read section log tail: %w", err)
		}
		if last[0] != '\n' {
			logger.Warn("Section log ends with a partial line, terminating it", "path", path)
			if _, err := file.Write([]byte{'\n'}); err != nil {
				_ = file.Close()
				return nil, fmt.Errorf("failed to repair section log: %w", err)
			}
		}
	}

	return &SectionWriter{file: file, logger: logger}, nil
}

// Append writes one section record and syncs it to disk
func (sw *SectionWriter) Append(record models.SectionRecord) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal section %d: %w", record.Index, err)
	}
	if _, err := sw.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write section %d: %w", record.Index, err)
	}
	if err := sw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync section %d: %w", record.Index, err)
	}
	return nil
}

// Close closes the section log
func (sw *SectionWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if err := sw.file.Close(); err != nil {
		return fmt.Errorf("failed to close section log: %w", err)
	}
	return nil
}

// ReadSections loads the section log keyed by index. Later lines win, so a
// section regenerated after a crash replaces the stale copy. A torn final
// line is skipped.
func ReadSections(path string, logger *slog.Logger) (map[int]models.SectionRecord, error) {
	sections := make(map[int]models.SectionRecord)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sections, nil
		}
		return nil, fmt.Errorf("failed to open section log: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec models.SectionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Warn("Skipping unreadable section log line", "line", line, "error", err)
			continue
		}
		sections[rec.Index] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read section log: %w", err)
	}
	return sections, nil
}
