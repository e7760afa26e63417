package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"farmgate/internal/eventing"
	ingestion "farmgate/internal/ingestion/domain"
	"farmgate/internal/observability/metrics"
	"farmgate/internal/resolution"
)

// DeadLetterStore persists classified rejections.
type DeadLetterStore interface {
	Record(ctx context.Context, rec ingestion.IngestionError) error
}

// EventPublisher delivers resolved events downstream, blocking on the ack.
type EventPublisher interface {
	Publish(ctx context.Context, event eventing.ResolvedEvent) error
}

// Resolver assigns a validated reading to a plot.
type Resolver interface {
	Resolve(deviceID string, point ingestion.GeoPoint) (resolution.Result, *ingestion.PipelineError)
}

// Clock abstracts wall time for tests.
type Clock func() time.Time

// Ack is the pipeline's answer for an accepted reading.
type Ack struct {
	EventID    string
	DeviceID   string
	TalhaoID   string
	ResolvedBy ingestion.ResolutionMethod
	Alert      ingestion.AlertStatus
	Timestamp  time.Time
}

// Pipeline runs the full ingest flow for one payload: validate, resolve,
// classify the alert, publish. Every failure is classified and written to
// the dead-letter store before the caller sees it.
type Pipeline struct {
	validator  ingestion.Validator
	resolver   Resolver
	publisher  EventPublisher
	deadletter DeadLetterStore
	now        Clock
	logger     *log.Logger
}

// NewPipeline constructs the ingest pipeline.
func NewPipeline(resolver Resolver, publisher EventPublisher, deadletter DeadLetterStore, logger *log.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if resolver == nil {
		return nil, errors.New("pipeline: nil resolver")
	}
	if publisher == nil {
		return nil, errors.New("pipeline: nil publisher")
	}
	if deadletter == nil {
		return nil, errors.New("pipeline: nil dead letter store")
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &Pipeline{
		resolver:   resolver,
		publisher:  publisher,
		deadletter: deadletter,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PipelineOption overrides pipeline behavior.
type PipelineOption func(*Pipeline)

// WithClock replaces the wall clock.
func WithClock(clock Clock) PipelineOption {
	return func(p *Pipeline) {
		if clock != nil {
			p.now = clock
		}
	}
}

// Process runs one raw payload through the pipeline. On success it returns
// the ack after the broker acknowledged the event; on failure the returned
// PipelineError has already been dead-lettered. A panic anywhere inside the
// flow is recovered and classified as a processing error, so one poisoned
// payload cannot take the gateway down.
func (p *Pipeline) Process(ctx context.Context, payload []byte) (ack *Ack, perr *ingestion.PipelineError) {
	eventID := eventing.NewEventID()

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Printf("event %s: recovered panic: %v", eventID, rec)
			perr = ingestion.NewProcessingError(fmt.Sprintf("unexpected failure: %v", rec))
			p.record(ctx, eventID, payload, nil, perr)
			ack = nil
		}
	}()

	var raw ingestion.RawReading
	if err := json.Unmarshal(payload, &raw); err != nil {
		perr = &ingestion.PipelineError{
			Type:    ingestion.ErrorTypeValidation,
			Code:    ingestion.CodeInvalidPayload,
			Message: fmt.Sprintf("payload is not valid JSON: %v", err),
		}
		p.record(ctx, eventID, payload, nil, perr)
		return nil, perr
	}

	valid, perr := p.validator.Validate(raw)
	if perr != nil {
		p.record(ctx, eventID, payload, nil, perr)
		return nil, perr
	}

	result, perr := p.resolver.Resolve(valid.DeviceID, valid.Geo)
	if perr != nil {
		p.record(ctx, eventID, payload, valid, perr)
		return nil, perr
	}

	reading := ingestion.ResolvedReading{
		EventID:    eventID,
		DeviceID:   valid.DeviceID,
		TalhaoID:   result.TalhaoID,
		ResolvedBy: result.Method,
		Timestamp:  valid.Timestamp,
		Values:     valid.Values,
		Alert:      ingestion.ClassifyMoisture(valid.Values.SoilMoisturePct),
		IngestedAt: p.now().UTC(),
	}

	if err := p.publisher.Publish(ctx, eventing.NewResolvedEvent(reading)); err != nil {
		p.logger.Printf("event %s: publish failed: %v", eventID, err)
		perr = ingestion.NewProcessingError(fmt.Sprintf("event delivery failed: %v", err))
		p.record(ctx, eventID, payload, valid, perr)
		return nil, perr
	}

	metrics.IncResolution(string(result.Method))
	return &Ack{
		EventID:    eventID,
		DeviceID:   reading.DeviceID,
		TalhaoID:   reading.TalhaoID,
		ResolvedBy: reading.ResolvedBy,
		Alert:      reading.Alert,
		Timestamp:  reading.Timestamp,
	}, nil
}

// record writes the dead-letter row for a classified failure. The write
// uses a detached context so a caller that already gave up cannot lose the
// record; a store failure is logged, never surfaced over the original error.
func (p *Pipeline) record(ctx context.Context, eventID string, payload []byte, valid *ingestion.ValidReading, perr *ingestion.PipelineError) {
	rec := ingestion.IngestionError{
		EventID:    eventID,
		RawPayload: json.RawMessage(payload),
		Type:       perr.Type,
		Code:       perr.Code,
		Message:    perr.Detail(),
		IngestedAt: p.now().UTC(),
	}
	if valid != nil {
		rec.DeviceID = valid.DeviceID
		ts := valid.Timestamp
		rec.Timestamp = &ts
		geo := valid.Geo
		rec.Geo = &geo
	} else {
		// Salvage whatever identifying fields the raw payload carries.
		var partial ingestion.RawReading
		if err := json.Unmarshal(payload, &partial); err == nil {
			rec.DeviceID = partial.DeviceID
			if parsed, err := time.Parse(time.RFC3339, partial.Timestamp); err == nil {
				utc := parsed.UTC()
				rec.Timestamp = &utc
			}
			rec.Geo = partial.Geo
		}
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.deadletter.Record(storeCtx, rec); err != nil {
		p.logger.Printf("event %s: dead letter write failed: %v", eventID, err)
	}
	metrics.IncDeadLetter(string(perr.Type))
}
