package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	ingestion "farmgate/internal/ingestion/domain"
	ingestionrepo "farmgate/internal/ingestion/infrastructure/postgres"
)

// Journal is the read side of the dead-letter store.
type Journal interface {
	List(ctx context.Context, filter ingestionrepo.ListFilter) ([]ingestion.IngestionError, error)
}

// Handler serves the dead-letter review endpoints.
type Handler struct {
	journal Journal
	logger  *log.Logger
}

// NewHandler constructs a dead-letter handler.
func NewHandler(journal Journal, logger *log.Logger) (*Handler, error) {
	if journal == nil {
		return nil, errors.New("audit handler: nil journal")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{journal: journal, logger: logger}, nil
}

// ServeHTTP handles /api/v1/deadletters and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/deadletters":
		h.handleList(w, r)
	case "/api/v1/deadletters/export.csv":
		h.handleExport(w, r, "csv")
	case "/api/v1/deadletters/export.xlsx":
		h.handleExport(w, r, "xlsx")
	case "/api/v1/deadletters/export.pdf":
		h.handleExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.journal.List(r.Context(), filterFromQuery(r))
	if err != nil {
		h.logger.Printf("dead letter list: %v", err)
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}

	items := make([]deadLetterItem, 0, len(records))
	for _, rec := range records {
		items = append(items, newDeadLetterItem(rec))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	records, err := h.journal.List(r.Context(), filterFromQuery(r))
	if err != nil {
		h.logger.Printf("dead letter export: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	var (
		payload     []byte
		contentType string
	)
	switch format {
	case "csv":
		payload, err = BuildDeadLetterCSV(records)
		contentType = "text/csv"
	case "xlsx":
		payload, err = BuildDeadLetterXLSX(records)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		payload, err = BuildDeadLetterPDF(records)
		contentType = "application/pdf"
	}
	if err != nil {
		h.logger.Printf("dead letter export render: %v", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	filename := "deadletters-" + time.Now().UTC().Format("20060102T150405Z") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(payload)
}

func filterFromQuery(r *http.Request) ingestionrepo.ListFilter {
	filter := ingestionrepo.ListFilter{
		Type:     r.URL.Query().Get("type"),
		DeviceID: r.URL.Query().Get("device"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	return filter
}

type deadLetterItem struct {
	EventID    string              `json:"eventId"`
	DeviceID   string              `json:"deviceId,omitempty"`
	Timestamp  *string             `json:"timestamp"`
	Geo        *ingestion.GeoPoint `json:"geo"`
	RawPayload json.RawMessage     `json:"rawPayload,omitempty"`
	Type       string              `json:"errorType"`
	Code       string              `json:"errorCode"`
	Message    string              `json:"errorMessage"`
	IngestedAt string              `json:"ingestedAt"`
}

func newDeadLetterItem(rec ingestion.IngestionError) deadLetterItem {
	item := deadLetterItem{
		EventID:    rec.EventID,
		DeviceID:   rec.DeviceID,
		Geo:        rec.Geo,
		RawPayload: rec.RawPayload,
		Type:       string(rec.Type),
		Code:       string(rec.Code),
		Message:    rec.Message,
		IngestedAt: rec.IngestedAt.UTC().Format(time.RFC3339),
	}
	if rec.Timestamp != nil {
		ts := rec.Timestamp.UTC().Format(time.RFC3339)
		item.Timestamp = &ts
	}
	return item
}
