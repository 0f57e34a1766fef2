// Package model defines the fleet entities shared by the planning engines
// and the request/response shapes of the HTTP API.
package model

import (
	"errors"
	"fmt"
	"math"

	"dronenav/internal/geom"
)

var (
	ErrInvalidPriority = errors.New("priority must be between 1 and 5")
	ErrDegenerateZone  = errors.New("no-fly zone needs at least 3 vertices")
	ErrInvalidVehicle  = errors.New("vehicle needs positive payload, energy and speed")
	ErrDuplicateID     = errors.New("duplicate id")
)

const (
	MinPriority = 1
	MaxPriority = 5
)

// Vehicle is a drone. The exported run fields (Position, Energy, Load,
// Available) are the only mutable state; Reset restores them.
type Vehicle struct {
	ID             int        `json:"id" yaml:"id"`
	MaxPayload     float64    `json:"maxPayload" yaml:"max_payload"`
	EnergyCapacity int        `json:"energyCapacity" yaml:"energy_capacity"`
	Speed          float64    `json:"speed" yaml:"speed"`
	Start          geom.Point `json:"start" yaml:"start"`

	Position  geom.Point `json:"-" yaml:"-"`
	Energy    int        `json:"-" yaml:"-"`
	Load      float64    `json:"-" yaml:"-"`
	Available bool       `json:"-" yaml:"-"`
}

// NewVehicle returns a vehicle at its start of day.
func NewVehicle(id int, maxPayload float64, energy int, speed float64, start geom.Point) (Vehicle, error) {
	v := Vehicle{ID: id, MaxPayload: maxPayload, EnergyCapacity: energy, Speed: speed, Start: start}
	if err := v.Validate(); err != nil {
		return Vehicle{}, err
	}
	v.Reset()
	return v, nil
}

func (v Vehicle) Validate() error {
	if v.MaxPayload <= 0 || v.EnergyCapacity <= 0 || v.Speed <= 0 {
		return fmt.Errorf("vehicle %d: %w", v.ID, ErrInvalidVehicle)
	}
	return nil
}

// Reset restores position, energy, load and availability.
func (v *Vehicle) Reset() {
	v.Position = v.Start
	v.Energy = v.EnergyCapacity
	v.Load = 0
	v.Available = true
}

func (v Vehicle) CanCarry(mass float64) bool { return mass <= v.MaxPayload }

// EnergyCost is the integer charge for flying dist metres with mass kg:
// ceil(dist * (1 + mass/10) * 10).
func EnergyCost(dist, mass float64) int {
	raw := dist * (1 + mass/10) * 10
	// absorb representation error such as 10*1.1*10 = 110.00000000000001
	return int(math.Ceil(raw - 1e-9))
}

func (v Vehicle) HasEnergyFor(dist, mass float64) bool {
	return v.Energy >= EnergyCost(dist, mass)
}

// MoveTo relocates the vehicle and charges the flight.
func (v *Vehicle) MoveTo(p geom.Point, dist, mass float64) {
	v.Position = p
	v.Energy -= EnergyCost(dist, mass)
}

// DeliveryPoint is a parcel drop. Priority is fixed at construction.
type DeliveryPoint struct {
	ID        int        `json:"id" yaml:"id"`
	Position  geom.Point `json:"position" yaml:"position"`
	Mass      float64    `json:"mass" yaml:"mass"`
	Priority  int        `json:"priority" yaml:"priority"`
	Window    Window     `json:"window" yaml:"window"`
	Delivered bool       `json:"-" yaml:"-"`
}

// NewDeliveryPoint validates the priority range.
func NewDeliveryPoint(id int, pos geom.Point, mass float64, priority int, w Window) (DeliveryPoint, error) {
	d := DeliveryPoint{ID: id, Position: pos, Mass: mass, Priority: priority, Window: w}
	if err := d.Validate(); err != nil {
		return DeliveryPoint{}, err
	}
	return d, nil
}

func (d DeliveryPoint) Validate() error {
	if d.Priority < MinPriority || d.Priority > MaxPriority {
		return fmt.Errorf("delivery %d: priority %d: %w", d.ID, d.Priority, ErrInvalidPriority)
	}
	return nil
}

func (d DeliveryPoint) InWindow(t TimeOfDay) bool { return d.Window.Contains(t) }

// NoFlyZone is a polygon that may not be crossed while active.
type NoFlyZone struct {
	ID       int          `json:"id" yaml:"id"`
	Vertices []geom.Point `json:"vertices" yaml:"vertices"`
	Active   Window       `json:"active" yaml:"active"`
}

func NewNoFlyZone(id int, vertices []geom.Point, active Window) (NoFlyZone, error) {
	z := NoFlyZone{ID: id, Vertices: append([]geom.Point(nil), vertices...), Active: active}
	if err := z.Validate(); err != nil {
		return NoFlyZone{}, err
	}
	return z, nil
}

func (z NoFlyZone) Validate() error {
	if len(z.Vertices) < 3 {
		return fmt.Errorf("zone %d: %w", z.ID, ErrDegenerateZone)
	}
	return nil
}

func (z NoFlyZone) ActiveAt(t TimeOfDay) bool { return z.Active.Contains(t) }

func (z NoFlyZone) Contains(p geom.Point) bool { return geom.PointInPolygon(p, z.Vertices) }

// Crosses reports whether the segment a-b enters the zone.
func (z NoFlyZone) Crosses(a, b geom.Point) bool { return geom.SegmentCrossesPolygon(a, b, z.Vertices) }

func (z NoFlyZone) Clone() NoFlyZone {
	z.Vertices = append([]geom.Point(nil), z.Vertices...)
	return z
}

// ActiveZones returns the zones active at t, in input order.
func ActiveZones(zones []NoFlyZone, t TimeOfDay) []NoFlyZone {
	out := make([]NoFlyZone, 0, len(zones))
	for _, z := range zones {
		if z.ActiveAt(t) {
			out = append(out, z)
		}
	}
	return out
}

// PathClear reports whether a-b crosses none of zones.
func PathClear(zones []NoFlyZone, a, b geom.Point) bool {
	for _, z := range zones {
		if z.Crosses(a, b) {
			return false
		}
	}
	return true
}
