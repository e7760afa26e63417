package ingestion

// AlertStatus is the soil-moisture classification derived for a reading.
// It enriches the resolved reading but is never persisted by this service.
type AlertStatus string

const (
	AlertNormal  AlertStatus = "Normal"
	AlertAtencao AlertStatus = "Atencao"
	AlertSeca    AlertStatus = "Seca"
)

// ClassifyMoisture maps a soil-moisture percentage to an alert tier.
// Below 30 is Seca, below 45 is Atencao, everything else (including a
// missing reading) is Normal.
func ClassifyMoisture(pct *float64) AlertStatus {
	switch {
	case pct == nil:
		return AlertNormal
	case *pct < 30:
		return AlertSeca
	case *pct < 45:
		return AlertAtencao
	default:
		return AlertNormal
	}
}
