package services

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/hpcloud/tail"
)

// LogTailService follows the active NDJSON files and emits every record appended
// after Run returns. Rotation is survived by reopening the active path.
type LogTailService struct {
	dir   string
	kinds []types.LogKind
	poll  bool
	log   logger.Logger
	wg    sync.WaitGroup
}

func NewLogTailService(dir string) *LogTailService {
	return &LogTailService{
		dir:   dir,
		kinds: types.LogKinds,
		log:   logger.New("logTailService"),
	}
}

// Run starts one follower per kind and returns once they are started. Followers
// stop when ctx is done; Wait blocks until they have.
func (s *LogTailService) Run(ctx context.Context, out chan<- types.TelemetryEvent) error {
	log := s.log.TraceFromContext(ctx).Function("Run")

	if err := ensureDirectory(s.dir, s.log); err != nil {
		return err
	}

	tails := make([]*tail.Tail, 0, len(s.kinds))
	for _, kind := range s.kinds {
		path := filepath.Join(s.dir, kind.FileName())

		offset, err := activeOffset(path)
		if err != nil {
			s.stopAll(tails)
			return log.Err("failed to open active log file", err, "file", path)
		}

		t, err := tail.TailFile(path, tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Poll:      s.poll,
			Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			s.stopAll(tails)
			return log.Err("failed to follow log file", err, "file", path)
		}
		tails = append(tails, t)
	}

	for i, t := range tails {
		s.wg.Add(1)
		go s.follow(ctx, s.kinds[i], t, out)
	}

	log.Info("Following active log files", "dir", s.dir, "kinds", len(tails))
	return nil
}

// Wait blocks until every follower has stopped
func (s *LogTailService) Wait() {
	s.wg.Wait()
}

func (s *LogTailService) follow(
	ctx context.Context,
	kind types.LogKind,
	t *tail.Tail,
	out chan<- types.TelemetryEvent,
) {
	log := s.log.Function("follow")
	defer s.wg.Done()
	defer func() {
		_ = t.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopped following log file", "kind", kind)
			return
		case line, ok := <-t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				log.Warn("Tail line error", "kind", kind, "error", line.Err)
				continue
			}

			record := []byte(line.Text)
			if !json.Valid(record) {
				log.Debug("Skipping malformed log line", "kind", kind)
				continue
			}

			event := types.TelemetryEvent{Kind: kind, Record: json.RawMessage(record)}
			select {
			case <-ctx.Done():
				return
			case out <- event:
			}
		}
	}
}

// activeOffset creates the active file when missing and returns its current size,
// the offset following starts from.
func activeOffset(path string) (int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LOG_FILE_MODE)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *LogTailService) stopAll(tails []*tail.Tail) {
	for _, t := range tails {
		_ = t.Stop()
	}
}
