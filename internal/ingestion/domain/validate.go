package ingestion

import (
	"fmt"
	"strings"
	"time"
)

// Validator performs structural and range validation of raw readings.
// Validation is exhaustive: every rule is checked and every violation is
// reported, in field order, before the reading is rejected.
type Validator struct{}

// Validate returns the validated reading or a ValidationError carrying the
// full ordered violation list. The error code reflects the most structural
// failed field group: payload, then timestamp, then geo, then ranges.
func (Validator) Validate(raw RawReading) (*ValidReading, *PipelineError) {
	var violations []string
	code := ErrorCode("")

	worst := func(candidate ErrorCode) {
		if rankCode(candidate) > rankCode(code) {
			code = candidate
		}
	}

	if strings.TrimSpace(raw.DeviceID) == "" {
		violations = append(violations, "deviceId: required")
		worst(CodeInvalidPayload)
	}

	var ts time.Time
	switch {
	case strings.TrimSpace(raw.Timestamp) == "":
		violations = append(violations, "timestamp: required")
		worst(CodeInvalidTimestamp)
	default:
		parsed, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			violations = append(violations, "timestamp: must be an ISO-8601 instant with explicit offset")
			worst(CodeInvalidTimestamp)
		} else {
			ts = parsed.UTC()
		}
	}

	switch {
	case raw.Geo == nil:
		violations = append(violations, "geo: required")
		worst(CodeInvalidGeo)
	default:
		if raw.Geo.Lat < -90 || raw.Geo.Lat > 90 {
			violations = append(violations, fmt.Sprintf("geo.lat: %v outside [-90, 90]", raw.Geo.Lat))
			worst(CodeInvalidGeo)
		}
		if raw.Geo.Lon < -180 || raw.Geo.Lon > 180 {
			violations = append(violations, fmt.Sprintf("geo.lon: %v outside [-180, 180]", raw.Geo.Lon))
			worst(CodeInvalidGeo)
		}
	}

	checkRange := func(field string, value *float64, min, max float64) {
		if value == nil {
			return
		}
		if *value < min || *value > max {
			violations = append(violations, fmt.Sprintf("%s: %v outside [%v, %v]", field, *value, min, max))
			worst(CodeInvalidRange)
		}
	}
	checkMin := func(field string, value *float64, min float64) {
		if value == nil {
			return
		}
		if *value < min {
			violations = append(violations, fmt.Sprintf("%s: %v below %v", field, *value, min))
			worst(CodeInvalidRange)
		}
	}

	checkRange("umidadeSoloPct", raw.SoilMoisturePct, 0, 100)
	checkRange("temperaturaSoloC", raw.SoilTempC, -40, 80)
	checkMin("precipitacaoMm", raw.PrecipitationMm, 0)
	checkRange("ph", raw.PH, 0, 14)
	checkMin("condutividadeEletrica", raw.ConductivityDSm, 0)

	if len(violations) > 0 {
		return nil, &PipelineError{
			Type:       ErrorTypeValidation,
			Code:       code,
			Message:    "reading failed validation",
			Violations: violations,
		}
	}

	return &ValidReading{
		DeviceID:  strings.TrimSpace(raw.DeviceID),
		Timestamp: ts,
		Geo:       *raw.Geo,
		Values:    raw.SensorValues,
	}, nil
}

func rankCode(code ErrorCode) int {
	switch code {
	case CodeInvalidPayload:
		return 4
	case CodeInvalidTimestamp:
		return 3
	case CodeInvalidGeo:
		return 2
	case CodeInvalidRange:
		return 1
	default:
		return 0
	}
}
