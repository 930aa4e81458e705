package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	FORWARD_BATCH_SIZE     = 100
	FORWARD_FLUSH_INTERVAL = 5 * time.Second
	FORWARD_HTTP_TIMEOUT   = 10 * time.Second
	FORWARD_STREAM_FIELDS  = "source,app,kind"
	FORWARD_APP_NAME       = "nexus"
	FORWARD_SOURCE         = "telemetry"
)

// LogForwarderService ships telemetry records to a VictoriaLogs jsonline endpoint.
// It is disabled when no URL is configured.
type LogForwarderService struct {
	victoriaLogsURL string
	httpClient      *http.Client
	log             logger.Logger
	enabled         bool
	batchSize       int
	flushInterval   time.Duration
}

func NewLogForwarderService(victoriaLogsURL string) *LogForwarderService {
	victoriaLogsURL = strings.TrimRight(strings.TrimSpace(victoriaLogsURL), "/")
	enabled := victoriaLogsURL != ""

	log := logger.New("logForwarderService")
	if !enabled {
		log.Info("Log forwarding URL not configured, forwarding disabled")
	} else {
		log.Info("Log forwarder initialized", "url", victoriaLogsURL)
	}

	return &LogForwarderService{
		victoriaLogsURL: victoriaLogsURL,
		httpClient: &http.Client{
			Timeout: FORWARD_HTTP_TIMEOUT,
		},
		log:           log,
		enabled:       enabled,
		batchSize:     FORWARD_BATCH_SIZE,
		flushInterval: FORWARD_FLUSH_INTERVAL,
	}
}

// IsEnabled returns whether forwarding is configured
func (s *LogForwarderService) IsEnabled() bool {
	return s.enabled
}

// Run batches events and forwards them until ctx is done or events is closed.
// The pending batch is flushed on the way out.
func (s *LogForwarderService) Run(ctx context.Context, events <-chan types.TelemetryEvent) {
	log := s.log.Function("Run")
	log.Info("Starting log forwarder", "batchSize", s.batchSize, "flushInterval", s.flushInterval.String())

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]types.TelemetryEvent, 0, s.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if _, err := s.Forward(ctx, batch); err != nil {
			log.Er("Dropping telemetry batch", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), FORWARD_HTTP_TIMEOUT)
			flush(flushCtx)
			cancel()
			log.Info("Log forwarder stopped")
			return
		case event, ok := <-events:
			if !ok {
				flush(context.Background())
				return
			}
			batch = append(batch, event)
			if len(batch) >= s.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Forward sends events as one gzip-compressed jsonline request and returns how many
// were sent. Records that are not JSON objects are skipped.
func (s *LogForwarderService) Forward(ctx context.Context, events []types.TelemetryEvent) (int, error) {
	log := s.log.TraceFromContext(ctx).Function("Forward")

	if !s.enabled || len(events) == 0 {
		return 0, nil
	}

	lines := make([]string, 0, len(events))
	for _, event := range events {
		line, err := s.convertToVictoriaLogsEntry(event)
		if err != nil {
			log.Debug("Skipping unforwardable record", "kind", event.Kind, "error", err)
			continue
		}
		lines = append(lines, string(line))
	}

	if len(lines) == 0 {
		return 0, nil
	}

	if err := s.sendToVictoriaLogs(ctx, strings.Join(lines, "\n")); err != nil {
		return 0, log.Err("failed to forward telemetry", err, "count", len(lines))
	}

	log.Debug("Forwarded telemetry batch", "count", len(lines))
	return len(lines), nil
}

// convertToVictoriaLogsEntry flattens a record into a jsonline entry carrying the
// VictoriaLogs message and time fields
func (s *LogForwarderService) convertToVictoriaLogsEntry(event types.TelemetryEvent) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(event.Record, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("record is not an object")
	}

	fields["_msg"] = forwardMessage(event.Kind, fields)
	if receivedAt, ok := fields["receivedAt"].(string); ok && receivedAt != "" {
		fields["_time"] = receivedAt
	}
	fields["source"] = FORWARD_SOURCE
	fields["app"] = FORWARD_APP_NAME
	fields["kind"] = string(event.Kind)

	return json.Marshal(fields)
}

func forwardMessage(kind types.LogKind, fields map[string]any) string {
	if kind == types.LogKindErrors {
		if message, ok := fields["message"].(string); ok && message != "" {
			return message
		}
		return "client error"
	}

	name, _ := fields["name"].(string)
	return fmt.Sprintf("%s=%v (%v)", name, fields["value"], fields["rating"])
}

func (s *LogForwarderService) sendToVictoriaLogs(ctx context.Context, payload string) error {
	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write([]byte(payload)); err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}

	endpoint := fmt.Sprintf(
		"%s/insert/jsonline?_stream_fields=%s",
		s.victoriaLogsURL,
		url.QueryEscape(FORWARD_STREAM_FIELDS),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("VictoriaLogs returned status %d", resp.StatusCode)
	}

	return nil
}
