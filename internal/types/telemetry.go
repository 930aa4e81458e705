package types

import (
	"encoding/json"
	"reflect"
	"strings"
)

// LogKind names one append-only telemetry log
type LogKind string

const (
	LogKindErrors LogKind = "errors"
	LogKindVitals LogKind = "vitals"
)

// LogKinds lists every kind that owns an active log file
var LogKinds = []LogKind{LogKindErrors, LogKindVitals}

func (k LogKind) String() string {
	return string(k)
}

// FileName returns the active file name for the kind, e.g. errors.ndjson
func (k LogKind) FileName() string {
	return string(k) + ".ndjson"
}

// LogLevel represents the level of a client error report
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// Severity is the client-assigned impact of an error report
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rating is the web-vitals bucket for a metric value
type Rating string

const (
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs-improvement"
	RatingPoor             Rating = "poor"
)

// ParseRating lower-cases input and reports whether it is a known rating
func ParseRating(value string) (Rating, bool) {
	switch r := Rating(strings.ToLower(value)); r {
	case RatingGood, RatingNeedsImprovement, RatingPoor:
		return r, true
	}
	return "", false
}

// ErrorLogPayload is the strict schema accepted by POST /api/log-error
type ErrorLogPayload struct {
	Message     string         `json:"message"               yaml:"message"               validate:"required,max=1000"`
	Level       LogLevel       `json:"level,omitempty"       yaml:"level,omitempty"       validate:"omitempty,oneof=error warn info debug"`
	Timestamp   string         `json:"timestamp,omitempty"   yaml:"timestamp,omitempty"   validate:"omitempty,max=64"`
	Stack       string         `json:"stack,omitempty"       yaml:"stack,omitempty"       validate:"omitempty,max=5000"`
	Metadata    map[string]any `json:"metadata,omitzero"     yaml:"metadata,omitempty"    validate:"omitempty,max=50"`
	Severity    Severity       `json:"severity,omitempty"    yaml:"severity,omitempty"    validate:"omitempty,oneof=low medium high critical"`
	Tags        []string       `json:"tags,omitzero"         yaml:"tags,omitempty"        validate:"omitempty,max=20,dive,min=1,max=64"`
	User        string         `json:"user,omitempty"        yaml:"user,omitempty"        validate:"omitempty,max=200"`
	AppVersion  string         `json:"appVersion,omitempty"  yaml:"appVersion,omitempty"  validate:"omitempty,max=50"`
	Environment string         `json:"environment,omitempty" yaml:"environment,omitempty" validate:"omitempty,max=50"`
	UserAgent   string         `json:"userAgent,omitempty"   yaml:"userAgent,omitempty"   validate:"omitempty,max=512"`
	Path        string         `json:"path,omitempty"        yaml:"path,omitempty"        validate:"omitempty,max=2048"`
}

// ErrorLogEntry is one line of errors.ndjson
type ErrorLogEntry struct {
	ErrorLogPayload `yaml:",inline"`
	ReceivedAt      string `json:"receivedAt" yaml:"receivedAt"`
}

// VitalMetricPayload is the lenient schema accepted by POST /api/vitals
type VitalMetricPayload struct {
	Name            string   `json:"name"                      validate:"required,max=32"`
	Value           *float64 `json:"value"                     validate:"required"`
	Rating          string   `json:"rating,omitempty"`
	ID              string   `json:"id,omitempty"              validate:"omitempty,max=128"`
	Delta           *float64 `json:"delta,omitempty"`
	Path            string   `json:"path,omitempty"            validate:"omitempty,max=2048"`
	NavigationType  string   `json:"navigationType,omitempty"  validate:"omitempty,max=64"`
	VisibilityState string   `json:"visibilityState,omitempty" validate:"omitempty,max=64"`
	Timestamp       string   `json:"timestamp,omitempty"       validate:"omitempty,max=64"`
}

// VitalMetricEntry is one line of vitals.ndjson
type VitalMetricEntry struct {
	Name            string   `json:"name"                      yaml:"name"`
	Value           float64  `json:"value"                     yaml:"value"`
	Rating          Rating   `json:"rating"                    yaml:"rating"`
	ID              string   `json:"id,omitempty"              yaml:"id,omitempty"`
	Delta           *float64 `json:"delta,omitempty"           yaml:"delta,omitempty"`
	Path            string   `json:"path,omitempty"            yaml:"path,omitempty"`
	NavigationType  string   `json:"navigationType,omitempty"  yaml:"navigationType,omitempty"`
	VisibilityState string   `json:"visibilityState,omitempty" yaml:"visibilityState,omitempty"`
	Timestamp       string   `json:"timestamp"                 yaml:"timestamp"`
	ReceivedAt      string   `json:"receivedAt"                yaml:"receivedAt"`

	// Extra holds submitted fields outside the known schema, stored as sent
	Extra map[string]json.RawMessage `json:"-" yaml:"-"`
}

type vitalMetricFields VitalMetricEntry

var vitalMetricKeys = JSONFieldNames(reflect.TypeOf(VitalMetricEntry{}))

// MarshalJSON writes the known fields and merges Extra alongside them. Known fields
// win over an extra of the same name.
func (e VitalMetricEntry) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(vitalMetricFields(e))
	if err != nil || len(e.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(e.Extra)+len(vitalMetricKeys))
	for key, value := range e.Extra {
		if _, known := vitalMetricKeys[key]; !known {
			merged[key] = value
		}
	}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	return json.Marshal(merged)
}

func (e *VitalMetricEntry) UnmarshalJSON(data []byte) error {
	var fields vitalMetricFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if _, known := vitalMetricKeys[key]; known {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]json.RawMessage)
		}
		fields.Extra[key] = value
	}

	*e = VitalMetricEntry(fields)
	return nil
}

// JSONFieldNames returns the exact JSON keys of a struct type, following embedded
// structs. Fields tagged "-" are left out.
func JSONFieldNames(t reflect.Type) map[string]struct{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	names := make(map[string]struct{})
	if t.Kind() != reflect.Struct {
		return names
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		name := strings.SplitN(tag, ",", 2)[0]

		if field.Anonymous && name == "" {
			for embedded := range JSONFieldNames(field.Type) {
				names[embedded] = struct{}{}
			}
			continue
		}
		if !field.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		names[name] = struct{}{}
	}
	return names
}

// TelemetryEvent is one record appended to an active log file, as seen by the live feed
type TelemetryEvent struct {
	Kind   LogKind         `json:"kind"`
	Record json.RawMessage `json:"record"`
}
