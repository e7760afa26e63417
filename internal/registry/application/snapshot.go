package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	registry "farmgate/internal/registry/domain"
)

// Snapshot is an immutable view of the device registry and plot set.
// Readers share it concurrently without locking; a refresh builds a new
// snapshot and swaps it in wholesale.
type Snapshot struct {
	devices      map[string]registry.Device
	activePlots  []registry.Plot
	loadedAt     time.Time
	deviceCount  int
	plotCount    int
	boundedCount int
}

// LookupDevice returns the registry entry for a device id.
func (s *Snapshot) LookupDevice(id string) (registry.Device, bool) {
	if s == nil || id == "" {
		return registry.Device{}, false
	}
	device, ok := s.devices[id]
	return device, ok
}

// ActivePlots returns the active plots that carry a boundary geometry,
// the candidate set for geo fallback. Callers must not mutate it.
func (s *Snapshot) ActivePlots() []registry.Plot {
	if s == nil {
		return nil
	}
	return s.activePlots
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}

func buildSnapshot(devices []registry.Device, plots []registry.Plot, now time.Time) *Snapshot {
	byID := make(map[string]registry.Device, len(devices))
	for _, device := range devices {
		byID[device.ID] = device
	}
	active := make([]registry.Plot, 0, len(plots))
	for _, plot := range plots {
		if plot.Active && plot.Bounded() {
			active = append(active, plot)
		}
	}
	return &Snapshot{
		devices:      byID,
		activePlots:  active,
		loadedAt:     now,
		deviceCount:  len(devices),
		plotCount:    len(plots),
		boundedCount: len(active),
	}
}

// Store holds the current snapshot behind an atomic pointer. Refresh uses
// copy-and-swap; in-flight readers keep the snapshot they started with.
type Store struct {
	devices registry.DeviceSource
	plots   registry.PlotSource
	current atomic.Pointer[Snapshot]
}

// NewStore constructs a snapshot store over the given sources.
func NewStore(devices registry.DeviceSource, plots registry.PlotSource) (*Store, error) {
	if devices == nil {
		return nil, errors.New("registry store: nil device source")
	}
	if plots == nil {
		return nil, errors.New("registry store: nil plot source")
	}
	store := &Store{devices: devices, plots: plots}
	store.current.Store(buildSnapshot(nil, nil, time.Time{}))
	return store, nil
}

// Refresh reloads both sources and swaps in the new snapshot. On failure
// the previous snapshot stays current.
func (s *Store) Refresh(ctx context.Context) error {
	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return err
	}
	plots, err := s.plots.ListPlots(ctx)
	if err != nil {
		return err
	}
	s.current.Store(buildSnapshot(devices, plots, time.Now().UTC()))
	return nil
}

// Current returns the snapshot readers should use for one resolution.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// LookupDevice resolves a device against the current snapshot.
func (s *Store) LookupDevice(id string) (registry.Device, bool) {
	return s.Current().LookupDevice(id)
}

// ActivePlots lists geo-fallback candidates from the current snapshot.
func (s *Store) ActivePlots() []registry.Plot {
	return s.Current().ActivePlots()
}

// Stats reports snapshot sizes for logging.
func (s *Store) Stats() (devices, plots, bounded int, loadedAt time.Time) {
	snap := s.Current()
	return snap.deviceCount, snap.plotCount, snap.boundedCount, snap.loadedAt
}
