package services

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"nexus/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidationService() *ValidationService {
	s := NewValidationService()
	s.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.UTC) }
	return s
}

func TestValidationService_ParseErrorLog(t *testing.T) {
	s := newTestValidationService()

	t.Run("Accepts a full client report", func(t *testing.T) {
		body := `{
			"message": "boom",
			"level": "error",
			"timestamp": "2025-03-04T05:06:00.000Z",
			"stack": "Error: boom\n    at main.js:1:1",
			"metadata": {"fileName": "main.js", "lineNumber": 1},
			"severity": "high",
			"tags": ["global-error"],
			"user": "u-1",
			"appVersion": "1.0.0",
			"environment": "production",
			"userAgent": "Mozilla/5.0",
			"path": "/modules"
		}`

		entry, err := s.ParseErrorLog([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "boom", entry.Message)
		assert.Equal(t, types.LogLevelError, entry.Level)
		assert.Equal(t, types.SeverityHigh, entry.Severity)
		assert.Equal(t, []string{"global-error"}, entry.Tags)
		assert.Equal(t, "main.js", entry.Metadata["fileName"])
		assert.Equal(t, "/modules", entry.Path)
		assert.Equal(t, "2025-03-04T05:06:07.890Z", entry.ReceivedAt)
	})

	t.Run("Message length boundary", func(t *testing.T) {
		_, err := s.ParseErrorLog([]byte(`{"message":"` + strings.Repeat("a", 1000) + `"}`))
		assert.NoError(t, err)

		_, err = s.ParseErrorLog([]byte(`{"message":"` + strings.Repeat("a", 1001) + `"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "message")
		assert.Contains(t, err.Error(), "1000")
	})

	t.Run("Keeps empty metadata and tags", func(t *testing.T) {
		entry, err := s.ParseErrorLog([]byte(`{"message":"x","metadata":{},"tags":[]}`))
		require.NoError(t, err)

		line, err := json.Marshal(entry)
		require.NoError(t, err)
		assert.Contains(t, string(line), `"metadata":{}`)
		assert.Contains(t, string(line), `"tags":[]`)

		entry, err = s.ParseErrorLog([]byte(`{"message":"x"}`))
		require.NoError(t, err)

		line, err = json.Marshal(entry)
		require.NoError(t, err)
		assert.NotContains(t, string(line), "metadata")
		assert.NotContains(t, string(line), "tags")
	})

	t.Run("Message length counts characters not bytes", func(t *testing.T) {
		_, err := s.ParseErrorLog([]byte(`{"message":"` + strings.Repeat("é", 1000) + `"}`))
		assert.NoError(t, err)
	})

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "Unknown field", body: `{"message":"x","evil":"y"}`, wantField: "evil"},
		{name: "Client receivedAt is unknown", body: `{"message":"x","receivedAt":"now"}`, wantField: "receivedAt"},
		{name: "Key case differs", body: `{"MESSAGE":"x","Level":"error"}`, wantField: "Level"},
		{name: "Key case differs on optional field", body: `{"message":"x","Severity":"high"}`, wantField: "Severity"},
		{name: "Missing message", body: `{"level":"error"}`, wantField: "message"},
		{name: "Empty message", body: `{"message":""}`, wantField: "message"},
		{name: "Invalid level", body: `{"message":"x","level":"fatal"}`, wantField: "level"},
		{name: "Invalid severity", body: `{"message":"x","severity":"urgent"}`, wantField: "severity"},
		{name: "Oversized stack", body: `{"message":"x","stack":"` + strings.Repeat("s", 5001) + `"}`, wantField: "stack"},
		{name: "Empty tag", body: `{"message":"x","tags":[""]}`, wantField: "tags[0]"},
		{name: "Wrong type", body: `{"message":42}`, wantField: "message"},
		{name: "Not an object", body: `[1,2]`},
		{name: "Malformed JSON", body: `{"message":`},
		{name: "Trailing data", body: `{"message":"x"}{"message":"y"}`},
		{name: "Empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ParseErrorLog([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, validationErr.Field)
			}
			assert.NotEmpty(t, validationErr.Reason)
		})
	}
}

func TestValidationService_ParseVital(t *testing.T) {
	s := newTestValidationService()

	t.Run("Derives rating when absent", func(t *testing.T) {
		entry, err := s.ParseVital([]byte(`{"name":"LCP","value":4500}`))
		require.NoError(t, err)
		assert.Equal(t, types.RatingPoor, entry.Rating)

		entry, err = s.ParseVital([]byte(`{"name":"LCP","value":2000}`))
		require.NoError(t, err)
		assert.Equal(t, types.RatingGood, entry.Rating)
	})

	t.Run("Recomputes an invalid rating", func(t *testing.T) {
		entry, err := s.ParseVital([]byte(`{"name":"CLS","value":0.2,"rating":"excellent"}`))
		require.NoError(t, err)
		assert.Equal(t, types.RatingNeedsImprovement, entry.Rating)
	})

	t.Run("Keeps and lower-cases a valid rating", func(t *testing.T) {
		entry, err := s.ParseVital([]byte(`{"name":"LCP","value":9000,"rating":"GOOD"}`))
		require.NoError(t, err)
		assert.Equal(t, types.RatingGood, entry.Rating)
	})

	t.Run("Carries unknown fields through", func(t *testing.T) {
		body := `{"name":"INP","value":120,"id":"v4-1","delta":12,"entries":[{"x":1}],"path":"/","navigationType":"navigate","visibilityState":"visible","timestamp":"2025-03-04T05:00:00.000Z"}`
		entry, err := s.ParseVital([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "v4-1", entry.ID)
		require.NotNil(t, entry.Delta)
		assert.Equal(t, 12.0, *entry.Delta)
		assert.Equal(t, "/", entry.Path)
		assert.Equal(t, "navigate", entry.NavigationType)
		assert.Equal(t, "visible", entry.VisibilityState)
		assert.Equal(t, "2025-03-04T05:00:00.000Z", entry.Timestamp)
		assert.Equal(t, "2025-03-04T05:06:07.890Z", entry.ReceivedAt)
		assert.JSONEq(t, `[{"x":1}]`, string(entry.Extra["entries"]))

		line, err := json.Marshal(entry)
		require.NoError(t, err)

		var stored map[string]any
		require.NoError(t, json.Unmarshal(line, &stored))
		assert.Equal(t, []any{map[string]any{"x": 1.0}}, stored["entries"])
		assert.Equal(t, "INP", stored["name"])

		var reread types.VitalMetricEntry
		require.NoError(t, json.Unmarshal(line, &reread))
		assert.Equal(t, entry, reread)
	})

	t.Run("Known keys match exactly", func(t *testing.T) {
		_, err := s.ParseVital([]byte(`{"NAME":"LCP","Value":100}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("Server fields win over extras", func(t *testing.T) {
		entry, err := s.ParseVital([]byte(`{"name":"LCP","value":100,"receivedAt":"client"}`))
		require.NoError(t, err)

		line, err := json.Marshal(entry)
		require.NoError(t, err)

		var stored map[string]any
		require.NoError(t, json.Unmarshal(line, &stored))
		assert.Equal(t, "2025-03-04T05:06:07.890Z", stored["receivedAt"])
	})

	t.Run("Timestamp defaults to receivedAt", func(t *testing.T) {
		entry, err := s.ParseVital([]byte(`{"name":"TTFB","value":100}`))
		require.NoError(t, err)
		assert.Equal(t, entry.ReceivedAt, entry.Timestamp)
	})

	t.Run("Zero value is accepted", func(t *testing.T) {
		entry, err := s.ParseVital([]byte(`{"name":"CLS","value":0}`))
		require.NoError(t, err)
		assert.Equal(t, types.RatingGood, entry.Rating)
	})

	invalid := []struct {
		name string
		body string
	}{
		{name: "Missing name", body: `{"value":1}`},
		{name: "Missing value", body: `{"name":"LCP"}`},
		{name: "String value", body: `{"name":"LCP","value":"fast"}`},
		{name: "Malformed", body: `not json`},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ParseVital([]byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestNormalizeRating(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		value  float64
		want   types.Rating
	}{
		{name: "CLS good boundary", metric: "CLS", value: 0.1, want: types.RatingGood},
		{name: "CLS needs improvement", metric: "CLS", value: 0.25, want: types.RatingNeedsImprovement},
		{name: "CLS poor", metric: "CLS", value: 0.26, want: types.RatingPoor},
		{name: "LCP good boundary", metric: "LCP", value: 2500, want: types.RatingGood},
		{name: "LCP needs improvement boundary", metric: "LCP", value: 4000, want: types.RatingNeedsImprovement},
		{name: "LCP poor", metric: "LCP", value: 4000.1, want: types.RatingPoor},
		{name: "TTFB good", metric: "TTFB", value: 800, want: types.RatingGood},
		{name: "TTFB needs improvement", metric: "TTFB", value: 1800, want: types.RatingNeedsImprovement},
		{name: "TTFB poor", metric: "TTFB", value: 1801, want: types.RatingPoor},
		{name: "INP good", metric: "INP", value: 200, want: types.RatingGood},
		{name: "INP needs improvement", metric: "INP", value: 500, want: types.RatingNeedsImprovement},
		{name: "INP poor", metric: "INP", value: 501, want: types.RatingPoor},
		{name: "Unknown metric", metric: "XYZ", value: 1, want: types.RatingNeedsImprovement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRating(tt.metric, tt.value, ""))
		})
	}
}
