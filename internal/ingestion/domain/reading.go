package ingestion

import "time"

// ResolutionMethod identifies how a reading was assigned to a plot.
type ResolutionMethod string

const (
	ResolvedByDevice ResolutionMethod = "device"
	ResolvedByGeo    ResolutionMethod = "geo"
)

// Valid returns true when the method is one of the supported values.
func (m ResolutionMethod) Valid() bool {
	switch m {
	case ResolvedByDevice, ResolvedByGeo:
		return true
	default:
		return false
	}
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InRange returns true when both coordinates are within WGS84 bounds.
func (p GeoPoint) InRange() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// SensorValues carries the optional physiochemical readings.
// Absent values stay nil and are range-checked independently when present.
type SensorValues struct {
	SoilMoisturePct *float64 `json:"umidadeSoloPct,omitempty"`
	SoilTempC       *float64 `json:"temperaturaSoloC,omitempty"`
	PrecipitationMm *float64 `json:"precipitacaoMm,omitempty"`
	PH              *float64 `json:"ph,omitempty"`
	ConductivityDSm *float64 `json:"condutividadeEletrica,omitempty"`
}

// RawReading is the untrusted ingest payload as it arrives over the wire.
type RawReading struct {
	DeviceID  string    `json:"deviceId"`
	Timestamp string    `json:"timestamp"`
	Geo       *GeoPoint `json:"geo"`
	SensorValues
	BatteryPct *float64 `json:"bateriaPct,omitempty"`
	SignalRSSI *int     `json:"sinalRssi,omitempty"`
	Sequence   *int64   `json:"sequencia,omitempty"`
}

// ValidReading is a RawReading that passed structural validation.
// Timestamp is normalized to UTC.
type ValidReading struct {
	DeviceID  string
	Timestamp time.Time
	Geo       GeoPoint
	Values    SensorValues
}

// ResolvedReading is the canonical pipeline output. It always carries a
// non-empty plot id and a valid resolution method.
type ResolvedReading struct {
	EventID    string
	DeviceID   string
	TalhaoID   string
	ResolvedBy ResolutionMethod
	Timestamp  time.Time
	Values     SensorValues
	Alert      AlertStatus
	IngestedAt time.Time
}
