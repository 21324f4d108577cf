package dispatch

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/mmcloughlin/geohash"

	"kwenda/internal/geo"
	"kwenda/internal/types"
)

const (
	// cellPrecision 4 gives cells of about 39km x 19.5km at the equator.
	cellPrecision  = 4
	cellHeightDeg  = 180.0 / (1 << 10)
	cellWidthDeg   = 360.0 / (1 << 10)
	kmPerDegreeLat = 111.19
)

// MemoryPool is an in-process driver pool bucketed by geohash cell. It backs
// local development and tests where Redis is not available.
type MemoryPool struct {
	mu      sync.RWMutex
	drivers map[types.ID]DriverState
	cells   map[string]map[types.ID]struct{}
	cellOf  map[types.ID]string
}

func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		drivers: make(map[types.ID]DriverState),
		cells:   make(map[string]map[types.ID]struct{}),
		cellOf:  make(map[types.ID]string),
	}
}

func (p *MemoryPool) Upsert(_ context.Context, d DriverState) error {
	if err := d.Location.Validate(); err != nil {
		return err
	}
	d.ServiceTypes = withAny(d.ServiceTypes)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.unindex(d.ID)
	p.drivers[d.ID] = d
	cell := geohash.EncodeWithPrecision(d.Location.Lat, d.Location.Lng, cellPrecision)
	if p.cells[cell] == nil {
		p.cells[cell] = make(map[types.ID]struct{})
	}
	p.cells[cell][d.ID] = struct{}{}
	p.cellOf[d.ID] = cell
	return nil
}

func (p *MemoryPool) SetAvailability(_ context.Context, id types.ID, available bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[id]
	if !ok {
		return ErrUnknownDriver
	}
	d.Available = available
	p.drivers[id] = d
	return nil
}

func (p *MemoryPool) Remove(_ context.Context, id types.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unindex(id)
	delete(p.drivers, id)
	return nil
}

// OnlineCandidates implements CandidateSource. Small radii only look at the
// pickup cell and its neighbours; larger ones scan every driver.
func (p *MemoryPool) OnlineCandidates(_ context.Context, pickup types.Point, radiusKm float64, serviceType string) ([]Candidate, error) {
	if serviceType == "" {
		serviceType = ServiceAny
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []types.ID
	if radiusKm < neighbourCoverKm(pickup.Lat) {
		center := geohash.EncodeWithPrecision(pickup.Lat, pickup.Lng, cellPrecision)
		for _, cell := range append(geohash.Neighbors(center), center) {
			for id := range p.cells[cell] {
				ids = append(ids, id)
			}
		}
	} else {
		for id := range p.drivers {
			ids = append(ids, id)
		}
	}
	// Map iteration order is random; keep the output reproducible.
	slices.Sort(ids)

	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		d := p.drivers[id]
		if !d.Available || !slices.Contains(d.ServiceTypes, serviceType) {
			continue
		}
		if !(geo.HaversineKm(pickup, d.Location) <= radiusKm) {
			continue
		}
		candidates = append(candidates, d.candidate())
	}
	return candidates, nil
}

// Len returns the number of known drivers.
func (p *MemoryPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.drivers)
}

func (p *MemoryPool) unindex(id types.ID) {
	cell, ok := p.cellOf[id]
	if !ok {
		return
	}
	delete(p.cells[cell], id)
	if len(p.cells[cell]) == 0 {
		delete(p.cells, cell)
	}
	delete(p.cellOf, id)
}

// neighbourCoverKm is the smallest distance from any point of a cell to the
// outer edge of its 3x3 neighbourhood.
func neighbourCoverKm(lat float64) float64 {
	heightKm := cellHeightDeg * kmPerDegreeLat
	widthKm := cellWidthDeg * kmPerDegreeLat * math.Cos(lat*math.Pi/180)
	return math.Min(heightKm, widthKm)
}
