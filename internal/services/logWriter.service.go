package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	LOG_MAX_BYTES   = 10 * 1024 * 1024 // rotate once the active file reaches 10 MiB
	LOG_FILE_MODE   = 0o644
	LOG_DIR_MODE    = 0o755
	ROTATION_LAYOUT = "2006-01-02T15:04:05.000Z07:00"
)

// LogWriterService appends NDJSON records to one active file per kind and rotates
// the file by size. The size bound is soft: the check runs before each append, so a
// single append may leave the file past maxBytes until the next one rotates it.
type LogWriterService struct {
	dir      string
	maxBytes int64
	now      func() time.Time
	log      logger.Logger

	mu    sync.Mutex
	locks map[types.LogKind]*sync.Mutex
}

func NewLogWriterService(dir string, maxBytes int64) *LogWriterService {
	log := logger.New("logWriterService")

	if maxBytes <= 0 {
		maxBytes = LOG_MAX_BYTES
	}

	log.Info("Log writer initialized", "dir", dir, "maxBytes", maxBytes)

	return &LogWriterService{
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
		log:      log,
		locks:    make(map[types.LogKind]*sync.Mutex),
	}
}

// Path returns the active file for the kind
func (w *LogWriterService) Path(kind types.LogKind) string {
	return filepath.Join(w.dir, kind.FileName())
}

// Append writes record as one JSON line to the active file of kind, rotating first when
// the file has reached maxBytes. I/O errors are returned as-is and never retried.
func (w *LogWriterService) Append(kind types.LogKind, record any) error {
	log := w.log.Function("Append")

	line, err := json.Marshal(record)
	if err != nil {
		return log.Err("failed to marshal log record", err, "kind", kind)
	}
	line = append(line, '\n')

	if err := ensureDirectory(w.dir, w.log); err != nil {
		return err
	}

	lock := w.lockFor(kind)
	lock.Lock()
	defer lock.Unlock()

	if _, err := w.rotateIfNeeded(kind); err != nil {
		return err
	}

	file, err := os.OpenFile(w.Path(kind), os.O_APPEND|os.O_CREATE|os.O_WRONLY, LOG_FILE_MODE)
	if err != nil {
		return log.Err("failed to open log file", err, "kind", kind)
	}

	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return log.Err("failed to append log record", err, "kind", kind)
	}

	if err := file.Close(); err != nil {
		return log.Err("failed to close log file", err, "kind", kind)
	}

	return nil
}

// Ready reports whether the log directory exists or can be created
func (w *LogWriterService) Ready() error {
	return ensureDirectory(w.dir, w.log)
}

// RotatedName builds the sibling file name used when rotating kind at ts,
// e.g. errors-2025-01-02T03-04-05-678Z.ndjson
func RotatedName(kind types.LogKind, ts time.Time) string {
	stamp := ts.UTC().Format(ROTATION_LAYOUT)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s-%s.ndjson", kind, stamp)
}

// freeRotatedPath returns the rotated path for ts, adding a -1, -2 ... suffix while the
// name is taken so an earlier rotated file is never overwritten
func (w *LogWriterService) freeRotatedPath(kind types.LogKind, ts time.Time) (string, error) {
	base := strings.TrimSuffix(RotatedName(kind, ts), ".ndjson")
	candidate := filepath.Join(w.dir, base+".ndjson")

	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(w.dir, fmt.Sprintf("%s-%d.ndjson", base, n))
	}
}

// rotateIfNeeded must be called with the kind's lock held. It returns the rotated
// file path, or "" when no rotation happened.
func (w *LogWriterService) rotateIfNeeded(kind types.LogKind) (string, error) {
	log := w.log.Function("rotateIfNeeded")
	active := w.Path(kind)

	info, err := os.Stat(active)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", log.Err("failed to stat log file", err, "file", active)
	}

	if info.Size() < w.maxBytes {
		return "", nil
	}

	rotated, err := w.freeRotatedPath(kind, w.now())
	if err != nil {
		return "", log.Err("failed to pick rotated file name", err, "file", active)
	}

	if err := os.Rename(active, rotated); err != nil {
		return "", log.Err("failed to rotate log file", err, "file", active, "rotated", rotated)
	}

	if err := os.WriteFile(active, nil, LOG_FILE_MODE); err != nil {
		return "", log.Err("failed to recreate log file", err, "file", active)
	}

	log.Info("Rotated log file", "kind", kind, "size", info.Size(), "rotated", rotated)
	return rotated, nil
}

func (w *LogWriterService) lockFor(kind types.LogKind) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	lock, ok := w.locks[kind]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[kind] = lock
	}
	return lock
}

// ensureDirectory creates directory if it doesn't exist
func ensureDirectory(dir string, logger logger.Logger) error {
	log := logger.Function("ensureDirectory")

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return log.Error("log path is not a directory", "directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return log.Err("failed to stat directory", err, "directory", dir)
	}

	if err := os.MkdirAll(dir, LOG_DIR_MODE); err != nil {
		return log.Err("failed to create directory", err, "directory", dir)
	}
	log.Info("Created log directory", "directory", dir)
	return nil
}
