package registry

import (
	"context"
	"time"
)

// Device is a registry entry owned by the external device-management
// service. The pipeline consumes it read-only.
type Device struct {
	ID        string
	TalhaoID  string
	Active    bool
	UpdatedAt time.Time
}

// DeviceSource loads the full device registry for a snapshot refresh.
type DeviceSource interface {
	ListDevices(ctx context.Context) ([]Device, error)
}
