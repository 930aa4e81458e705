package services

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
)

var rotatedFilePattern = regexp.MustCompile(
	`^(errors|vitals)-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z(-\d+)?\.ndjson$`,
)

type RotatedFile struct {
	Name       string        `json:"name"`
	Kind       types.LogKind `json:"kind"`
	Size       int64         `json:"size"`
	ModifiedAt time.Time     `json:"modifiedAt"`
}

// LogRetentionService lists and prunes rotated log files. The active files are never touched.
type LogRetentionService struct {
	dir       string
	retention time.Duration
	now       func() time.Time
	log       logger.Logger
}

func NewLogRetentionService(dir string, retentionDays int) *LogRetentionService {
	return &LogRetentionService{
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		log:       logger.New("logRetentionService"),
	}
}

// Enabled reports whether a retention period is configured
func (s *LogRetentionService) Enabled() bool {
	return s.retention > 0
}

// ListRotatedFiles returns the rotated siblings in the log directory, oldest first
func (s *LogRetentionService) ListRotatedFiles(ctx context.Context) ([]RotatedFile, error) {
	log := s.log.TraceFromContext(ctx).Function("ListRotatedFiles")

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []RotatedFile{}, nil
	}
	if err != nil {
		return nil, log.Err("failed to read log directory", err, "directory", s.dir)
	}

	files := make([]RotatedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		match := rotatedFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn("Failed to stat rotated file", "file", entry.Name(), "error", err)
			continue
		}

		files = append(files, RotatedFile{
			Name:       entry.Name(),
			Kind:       types.LogKind(match[1]),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.Before(files[j].ModifiedAt)
	})

	return files, nil
}

// CleanupExpired removes rotated files last modified before the retention period
func (s *LogRetentionService) CleanupExpired(ctx context.Context) (int, error) {
	log := s.log.TraceFromContext(ctx).Function("CleanupExpired")

	if !s.Enabled() {
		return 0, nil
	}

	files, err := s.ListRotatedFiles(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.retention)

	var errs []error
	removed := 0
	for _, file := range files {
		if !file.ModifiedAt.Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, file.Name)
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			log.Er("failed to remove rotated file", err, "path", path)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, log.Err("failed to cleanup some rotated files", errs[0], "errorCount", len(errs))
	}

	if removed > 0 {
		log.Info("Removed expired rotated files", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}
