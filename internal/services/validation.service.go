package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload marks every ValidationError
var ErrInvalidPayload = errors.New("invalid_payload")

// ValidationError names the first constraint a payload violated
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

type ValidationService struct {
	validate *validator.Validate
	log      logger.Logger
	now      func() time.Time
}

func NewValidationService() *ValidationService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &ValidationService{
		validate: validate,
		log:      logger.New("validationService"),
		now:      time.Now,
	}
}

// ParseErrorLog decodes an error report with the strict schema and stamps receivedAt
func (s *ValidationService) ParseErrorLog(body []byte) (types.ErrorLogEntry, error) {
	log := s.log.Function("ParseErrorLog")

	var payload types.ErrorLogPayload
	if _, err := decodeJSON(body, &payload, true); err != nil {
		log.Debug("Rejected error log payload", "error", err)
		return types.ErrorLogEntry{}, err
	}

	if err := s.check(payload); err != nil {
		log.Debug("Rejected error log payload", "error", err)
		return types.ErrorLogEntry{}, err
	}

	return types.ErrorLogEntry{
		ErrorLogPayload: payload,
		ReceivedAt:      s.receivedAt(),
	}, nil
}

// ParseVital decodes a web-vitals metric and normalizes its rating. Unknown fields are
// carried through to the stored record unchanged.
func (s *ValidationService) ParseVital(body []byte) (types.VitalMetricEntry, error) {
	log := s.log.Function("ParseVital")

	var payload types.VitalMetricPayload
	extra, err := decodeJSON(body, &payload, false)
	if err != nil {
		log.Debug("Rejected vitals payload", "error", err)
		return types.VitalMetricEntry{}, err
	}

	if err := s.check(payload); err != nil {
		log.Debug("Rejected vitals payload", "error", err)
		return types.VitalMetricEntry{}, err
	}

	receivedAt := s.receivedAt()
	timestamp := payload.Timestamp
	if timestamp == "" {
		timestamp = receivedAt
	}

	return types.VitalMetricEntry{
		Name:            payload.Name,
		Value:           *payload.Value,
		Rating:          NormalizeRating(payload.Name, *payload.Value, payload.Rating),
		ID:              payload.ID,
		Delta:           payload.Delta,
		Path:            payload.Path,
		NavigationType:  payload.NavigationType,
		VisibilityState: payload.VisibilityState,
		Timestamp:       timestamp,
		ReceivedAt:      receivedAt,
		Extra:           extra,
	}, nil
}

func (s *ValidationService) receivedAt() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func (s *ValidationService) check(payload any) error {
	err := s.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return &ValidationError{Reason: err.Error()}
	}

	first := fieldErrors[0]
	return &ValidationError{
		Field:  fieldPath(first),
		Reason: describeConstraint(first),
	}
}

// decodeJSON decodes a single JSON object into target. Keys must match the target's
// JSON names exactly. Strict decoding rejects any other key, lenient decoding returns
// them as extras.
func decodeJSON(body []byte, target any, strict bool) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &ValidationError{Reason: "request body is empty"}
	}

	var fields map[string]json.RawMessage
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&fields); err != nil {
		return nil, decodeError(err)
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Reason: "request body must contain a single JSON object"}
	}

	allowed := types.JSONFieldNames(reflect.TypeOf(target))
	known := make(map[string]json.RawMessage, len(fields))
	var extra map[string]json.RawMessage

	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if _, ok := allowed[key]; ok {
			known[key] = fields[key]
			continue
		}
		if strict {
			return nil, &ValidationError{Field: key, Reason: "unknown field"}
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[key] = fields[key]
	}

	encoded, err := json.Marshal(known)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if err := json.Unmarshal(encoded, target); err != nil {
		return nil, decodeError(err)
	}

	return extra, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return &ValidationError{Reason: "request body must be a JSON object"}
		}
		return &ValidationError{
			Field:  typeErr.Field,
			Reason: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
		}
	case errors.As(err, &syntaxErr):
		return &ValidationError{Reason: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &ValidationError{Reason: "malformed JSON"}
	default:
		return &ValidationError{Reason: err.Error()}
	}
}

// fieldPath drops the struct name prefix: ErrorLogPayload.tags[0] -> tags[0]
func fieldPath(fe validator.FieldError) string {
	namespace := fe.Namespace()
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return fe.Field()
}

func describeConstraint(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must contain at most %s items", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must contain at least %s items", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed the %s constraint", fe.Tag())
	}
}
