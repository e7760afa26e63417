package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"farmgate/internal/ingestion/application"
	ingestion "farmgate/internal/ingestion/domain"
	"farmgate/internal/observability/metrics"
)

// maxPayloadBytes bounds a single reading submission.
const maxPayloadBytes = 64 * 1024

// IngestHandler handles reading submissions from field gateways.
type IngestHandler struct {
	pipeline *application.Pipeline
	logger   *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(pipeline *application.Pipeline, logger *log.Logger) (*IngestHandler, error) {
	if pipeline == nil {
		return nil, errors.New("ingest handler: nil pipeline")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{pipeline: pipeline, logger: logger}, nil
}

// ServeHTTP accepts one sensor reading per request.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		h.logger.Printf("ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		metrics.ObserveIngest("read_error", time.Since(start))
		return
	}
	defer r.Body.Close()
	if len(body) > maxPayloadBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		metrics.ObserveIngest("too_large", time.Since(start))
		return
	}

	ack, perr := h.pipeline.Process(r.Context(), body)
	if perr != nil {
		h.respondError(w, perr)
		metrics.ObserveIngest(string(perr.Type), time.Since(start))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ackResponse{
		EventID:    ack.EventID,
		DeviceID:   ack.DeviceID,
		TalhaoID:   ack.TalhaoID,
		ResolvedBy: string(ack.ResolvedBy),
		Alert:      string(ack.Alert),
		Timestamp:  ack.Timestamp.UTC().Format(time.RFC3339),
		Message:    "reading accepted",
	})
	metrics.ObserveIngest("success", time.Since(start))
}

func (h *IngestHandler) respondError(w http.ResponseWriter, perr *ingestion.PipelineError) {
	status := http.StatusInternalServerError
	switch perr.Type {
	case ingestion.ErrorTypeValidation:
		status = http.StatusBadRequest
	case ingestion.ErrorTypeResolution, ingestion.ErrorTypeGeoFallback:
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   string(perr.Type),
		Code:    string(perr.Code),
		Message: perr.Message,
		Errors:  perr.Violations,
	})
}

type ackResponse struct {
	EventID    string `json:"eventId"`
	DeviceID   string `json:"deviceId"`
	TalhaoID   string `json:"talhaoId"`
	ResolvedBy string `json:"resolvedBy"`
	Alert      string `json:"alerta"`
	Timestamp  string `json:"timestamp"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}
