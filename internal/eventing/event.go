package eventing

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	ingestion "farmgate/internal/ingestion/domain"
)

// ResolvedEvent is the broker message body. The schema is the one wire
// contract of this service, so fields are mapped explicitly rather than
// through any generic envelope.
type ResolvedEvent struct {
	EventID    string       `json:"eventId"`
	DeviceID   string       `json:"deviceId"`
	TalhaoID   string       `json:"talhaoId"`
	Timestamp  string       `json:"timestamp"`
	ResolvedBy string       `json:"resolvedBy"`
	Summary    EventSummary `json:"summary"`
}

// EventSummary carries the soil readings downstream dashboards consume.
// Absent readings serialize as null, not as omitted keys.
type EventSummary struct {
	SoilMoisturePct *float64 `json:"umidadeSoloPct"`
	SoilTempC       *float64 `json:"temperaturaSoloC"`
	PrecipitationMm *float64 `json:"precipitacaoMm"`
}

// NewResolvedEvent maps a resolved reading onto the wire schema.
func NewResolvedEvent(reading ingestion.ResolvedReading) ResolvedEvent {
	return ResolvedEvent{
		EventID:    reading.EventID,
		DeviceID:   reading.DeviceID,
		TalhaoID:   reading.TalhaoID,
		Timestamp:  reading.Timestamp.UTC().Format(time.RFC3339),
		ResolvedBy: string(reading.ResolvedBy),
		Summary: EventSummary{
			SoilMoisturePct: reading.Values.SoilMoisturePct,
			SoilTempC:       reading.Values.SoilTempC,
			PrecipitationMm: reading.Values.PrecipitationMm,
		},
	}
}

// NewEventID generates a random event identifier, unique per ingestion
// attempt. Consumers deduplicate on it across producer restarts.
func NewEventID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString(buf[:])
	}
	// UUIDv4 formatting (without external dependency).
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return hex.EncodeToString(buf[:])
}
