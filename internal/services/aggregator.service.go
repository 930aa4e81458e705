package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/shopspring/decimal"
)

const (
	DEFAULT_RECENT_LIMIT = 10
	MAX_RECENT_LIMIT     = 100
	UNKNOWN_PATH         = "unknown"
	DEFAULT_SEVERITY     = types.SeverityMedium
	AVERAGE_PRECISION    = 4
)

// CoreVitals are always reported in the summary, null when no sample exists
var CoreVitals = []string{"CLS", "FID", "LCP", "TTFB", "INP"}

// ObservabilityQuery holds the filters of the observability view
type ObservabilityQuery struct {
	Type   types.LogKind `json:"type"`
	Rating types.Rating  `json:"rating,omitempty"`
	Path   string        `json:"path,omitempty"`
	Last   int           `json:"last"`
}

// ParseObservabilityQuery applies the view defaults: type falls back to vitals,
// unknown ratings are ignored and last is clamped to 1..100 (default 10).
func ParseObservabilityQuery(kind, rating, path, last string) ObservabilityQuery {
	query := ObservabilityQuery{
		Type: types.LogKindVitals,
		Path: strings.TrimSpace(path),
		Last: DEFAULT_RECENT_LIMIT,
	}

	if types.LogKind(strings.ToLower(strings.TrimSpace(kind))) == types.LogKindErrors {
		query.Type = types.LogKindErrors
	}

	if parsed, ok := types.ParseRating(strings.TrimSpace(rating)); ok {
		query.Rating = parsed
	}

	if n, err := strconv.Atoi(strings.TrimSpace(last)); err == nil && n != 0 {
		query.Last = ClampRecentLimit(n)
	}

	return query
}

// ClampRecentLimit bounds n to 1..MAX_RECENT_LIMIT
func ClampRecentLimit(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MAX_RECENT_LIMIT:
		return MAX_RECENT_LIMIT
	default:
		return n
	}
}

type VitalsSummary struct {
	Total   int                 `json:"total"   yaml:"total"`
	Average map[string]*float64 `json:"average" yaml:"average"`
}

type VitalsPathGroup struct {
	Count   int            `json:"count"   yaml:"count"`
	Metrics map[string]int `json:"metrics" yaml:"metrics"`
}

type VitalsReport struct {
	Summary VitalsSummary              `json:"summary" yaml:"summary"`
	Groups  map[string]VitalsPathGroup `json:"groups"  yaml:"groups"`
	Recent  []types.VitalMetricEntry   `json:"recent"  yaml:"recent"`
}

type ErrorsSummary struct {
	Total      int            `json:"total"      yaml:"total"`
	BySeverity map[string]int `json:"bySeverity" yaml:"bySeverity"`
	ByTag      map[string]int `json:"byTag"      yaml:"byTag"`
}

type ErrorsPathGroup struct {
	Count int `json:"count" yaml:"count"`
}

type ErrorsReport struct {
	Summary ErrorsSummary              `json:"summary" yaml:"summary"`
	Groups  map[string]ErrorsPathGroup `json:"groups"  yaml:"groups"`
	Recent  []types.ErrorLogEntry      `json:"recent"  yaml:"recent"`
}

// ObservabilityReport is the aggregated view over both active log files
type ObservabilityReport struct {
	Query  ObservabilityQuery `json:"query"  yaml:"query"`
	Vitals VitalsReport       `json:"vitals" yaml:"vitals"`
	Errors ErrorsReport       `json:"errors" yaml:"errors"`
}

type AggregatorService struct {
	dir string
	log logger.Logger
}

func NewAggregatorService(dir string) *AggregatorService {
	return &AggregatorService{
		dir: dir,
		log: logger.New("aggregatorService"),
	}
}

// Query scans the active vitals and errors files and aggregates them. Read failures
// degrade to empty results.
func (a *AggregatorService) Query(ctx context.Context, query ObservabilityQuery) ObservabilityReport {
	if query.Last == 0 {
		query.Last = DEFAULT_RECENT_LIMIT
	}
	query.Last = ClampRecentLimit(query.Last)
	if query.Type != types.LogKindErrors {
		query.Type = types.LogKindVitals
	}

	vitals := FilterVitals(a.ReadVitals(ctx), query.Path, query.Rating)
	errorEntries := FilterErrors(a.ReadErrors(ctx), query.Path)

	return ObservabilityReport{
		Query: query,
		Vitals: VitalsReport{
			Summary: SummarizeVitals(vitals),
			Groups:  GroupVitalsByPath(vitals),
			Recent:  lastReversed(vitals, query.Last),
		},
		Errors: ErrorsReport{
			Summary: SummarizeErrors(errorEntries),
			Groups:  GroupErrorsByPath(errorEntries),
			Recent:  lastReversed(errorEntries, query.Last),
		},
	}
}

// ReadVitals returns every well-formed record of the active vitals file
func (a *AggregatorService) ReadVitals(ctx context.Context) []types.VitalMetricEntry {
	var records []types.VitalMetricEntry
	a.scan(ctx, types.LogKindVitals, func(line []byte) bool {
		var record types.VitalMetricEntry
		if err := json.Unmarshal(line, &record); err != nil {
			return false
		}
		records = append(records, record)
		return true
	})
	return records
}

// ReadErrors returns every well-formed record of the active errors file
func (a *AggregatorService) ReadErrors(ctx context.Context) []types.ErrorLogEntry {
	var records []types.ErrorLogEntry
	a.scan(ctx, types.LogKindErrors, func(line []byte) bool {
		var record types.ErrorLogEntry
		if err := json.Unmarshal(line, &record); err != nil {
			return false
		}
		records = append(records, record)
		return true
	})
	return records
}

func (a *AggregatorService) scan(ctx context.Context, kind types.LogKind, handle func(line []byte) bool) {
	log := a.log.TraceFromContext(ctx).Function("scan")
	path := filepath.Join(a.dir, kind.FileName())

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		log.Er("failed to open log file", err, "file", path)
		return
	}
	defer file.Close()

	skipped := 0
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			// null, arrays and scalars are valid JSON but not records
			if !strings.HasPrefix(trimmed, "{") || !handle([]byte(trimmed)) {
				skipped++
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Er("failed to read log file", err, "file", path)
			break
		}
	}

	if skipped > 0 {
		log.Warn("Skipped malformed log lines", "file", path, "skipped", skipped)
	}
}

// VitalPathKey is the grouping key of a vitals record
func VitalPathKey(record types.VitalMetricEntry) string {
	if record.Path != "" {
		return record.Path
	}
	return UNKNOWN_PATH
}

// ErrorPathKey is the grouping key of an error record: path, else metadata.fileName
func ErrorPathKey(record types.ErrorLogEntry) string {
	if record.Path != "" {
		return record.Path
	}
	if fileName, ok := record.Metadata["fileName"].(string); ok && fileName != "" {
		return fileName
	}
	return UNKNOWN_PATH
}

func FilterVitals(records []types.VitalMetricEntry, path string, rating types.Rating) []types.VitalMetricEntry {
	if path == "" && rating == "" {
		return records
	}

	filtered := make([]types.VitalMetricEntry, 0, len(records))
	for _, record := range records {
		if path != "" && VitalPathKey(record) != path {
			continue
		}
		if rating != "" && types.Rating(strings.ToLower(string(record.Rating))) != rating {
			continue
		}
		filtered = append(filtered, record)
	}
	return filtered
}

func FilterErrors(records []types.ErrorLogEntry, path string) []types.ErrorLogEntry {
	if path == "" {
		return records
	}

	filtered := make([]types.ErrorLogEntry, 0, len(records))
	for _, record := range records {
		if ErrorPathKey(record) == path {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// SummarizeVitals counts records and averages value per metric name
func SummarizeVitals(records []types.VitalMetricEntry) VitalsSummary {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int64)

	for _, record := range records {
		if record.Name == "" {
			continue
		}
		sums[record.Name] = sums[record.Name].Add(decimal.NewFromFloat(record.Value))
		counts[record.Name]++
	}

	average := make(map[string]*float64, len(CoreVitals)+len(counts))
	for _, name := range CoreVitals {
		average[name] = nil
	}

	for name, count := range counts {
		// FID is always reported as null
		if name == "FID" {
			continue
		}
		mean, _ := sums[name].Div(decimal.NewFromInt(count)).Round(AVERAGE_PRECISION).Float64()
		average[name] = &mean
	}

	return VitalsSummary{Total: len(records), Average: average}
}

func GroupVitalsByPath(records []types.VitalMetricEntry) map[string]VitalsPathGroup {
	groups := make(map[string]VitalsPathGroup)
	for _, record := range records {
		key := VitalPathKey(record)
		group, ok := groups[key]
		if !ok {
			group = VitalsPathGroup{Metrics: make(map[string]int)}
		}
		group.Count++
		group.Metrics[record.Name]++
		groups[key] = group
	}
	return groups
}

// SummarizeErrors counts records by lower-cased severity (default medium) and by tag
func SummarizeErrors(records []types.ErrorLogEntry) ErrorsSummary {
	summary := ErrorsSummary{
		Total:      len(records),
		BySeverity: make(map[string]int),
		ByTag:      make(map[string]int),
	}

	for _, record := range records {
		severity := strings.ToLower(string(record.Severity))
		if severity == "" {
			severity = string(DEFAULT_SEVERITY)
		}
		summary.BySeverity[severity]++

		for _, tag := range record.Tags {
			summary.ByTag[tag]++
		}
	}

	return summary
}

func GroupErrorsByPath(records []types.ErrorLogEntry) map[string]ErrorsPathGroup {
	groups := make(map[string]ErrorsPathGroup)
	for _, record := range records {
		key := ErrorPathKey(record)
		group := groups[key]
		group.Count++
		groups[key] = group
	}
	return groups
}

// lastReversed returns the last n records, newest first
func lastReversed[T any](records []T, n int) []T {
	if n > len(records) {
		n = len(records)
	}

	recent := make([]T, 0, n)
	for i := len(records) - 1; i >= len(records)-n; i-- {
		recent = append(recent, records[i])
	}
	return recent
}
