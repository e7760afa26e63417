package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorType is the closed set of pipeline failure categories.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "ValidationError"
	ErrorTypeResolution  ErrorType = "ResolutionError"
	ErrorTypeGeoFallback ErrorType = "GeoFallbackError"
	ErrorTypeProcessing  ErrorType = "ProcessingError"
)

// ErrorCode is the closed set of pipeline failure codes.
type ErrorCode string

const (
	CodeInvalidPayload   ErrorCode = "INVALID_PAYLOAD"
	CodeInvalidTimestamp ErrorCode = "INVALID_TIMESTAMP"
	CodeInvalidGeo       ErrorCode = "INVALID_GEO"
	CodeInvalidRange     ErrorCode = "INVALID_RANGE"
	CodeDeviceNotFound   ErrorCode = "DEVICE_NOT_FOUND"
	CodeTalhaoNotFound   ErrorCode = "TALHAO_NOT_FOUND"
	CodeGeoJSONNotMatch  ErrorCode = "GEOJSON_NOT_MATCH"
	CodeException        ErrorCode = "EXCEPTION"
)

// PipelineError is a classified pipeline failure carried as a value.
// Callers branch on Type and Code, never on wrapped error identity.
type PipelineError struct {
	Type       ErrorType
	Code       ErrorCode
	Message    string
	Violations []string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s/%s: %s", e.Type, e.Code, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s/%s: %s", e.Type, e.Code, e.Message)
}

// Detail returns the human message, folding violation lists into one line.
func (e *PipelineError) Detail() string {
	if e == nil {
		return ""
	}
	if len(e.Violations) > 0 {
		return strings.Join(e.Violations, "; ")
	}
	return e.Message
}

// NewProcessingError classifies an unexpected runtime failure.
func NewProcessingError(message string) *PipelineError {
	return &PipelineError{Type: ErrorTypeProcessing, Code: CodeException, Message: message}
}

// IngestionError is the append-only dead-letter record written for every
// rejected reading. It is created once and never mutated.
type IngestionError struct {
	EventID    string
	DeviceID   string
	Timestamp  *time.Time
	Geo        *GeoPoint
	RawPayload json.RawMessage
	Type       ErrorType
	Code       ErrorCode
	Message    string
	IngestedAt time.Time
}

// Validate checks dead-letter invariants before persistence.
func (e IngestionError) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("ingestion error: empty event id")
	}
	if e.Type == "" || e.Code == "" {
		return fmt.Errorf("ingestion error: empty type/code")
	}
	return nil
}
