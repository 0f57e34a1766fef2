package model

import (
	"errors"
	"fmt"
)

// Scenario is one planning problem: a fleet, its deliveries, the zones and
// the reference time the engines evaluate zone activity at.
type Scenario struct {
	Name          string          `json:"name,omitempty" yaml:"name,omitempty"`
	ReferenceTime TimeOfDay       `json:"referenceTime" yaml:"reference_time"`
	Vehicles      []Vehicle       `json:"vehicles" yaml:"vehicles"`
	Deliveries    []DeliveryPoint `json:"deliveries" yaml:"deliveries"`
	Zones         []NoFlyZone     `json:"zones" yaml:"zones"`
}

// Validate checks every entity and id uniqueness per kind.
func (s Scenario) Validate() error {
	var errs []error
	seen := map[int]bool{}
	for _, v := range s.Vehicles {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Errorf("vehicle %d: %w", v.ID, ErrDuplicateID))
		}
		seen[v.ID] = true
	}
	seen = map[int]bool{}
	for _, d := range s.Deliveries {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Errorf("delivery %d: %w", d.ID, ErrDuplicateID))
		}
		seen[d.ID] = true
	}
	seen = map[int]bool{}
	for _, z := range s.Zones {
		if err := z.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[z.ID] {
			errs = append(errs, fmt.Errorf("zone %d: %w", z.ID, ErrDuplicateID))
		}
		seen[z.ID] = true
	}
	return errors.Join(errs...)
}

// Reset puts every vehicle back at its start and clears delivered flags.
func (s *Scenario) Reset() {
	for i := range s.Vehicles {
		s.Vehicles[i].Reset()
	}
	for i := range s.Deliveries {
		s.Deliveries[i].Delivered = false
	}
}

// Clone returns a deep copy.
func (s Scenario) Clone() Scenario {
	out := s
	out.Vehicles = append([]Vehicle(nil), s.Vehicles...)
	out.Deliveries = append([]DeliveryPoint(nil), s.Deliveries...)
	out.Zones = make([]NoFlyZone, len(s.Zones))
	for i, z := range s.Zones {
		out.Zones[i] = z.Clone()
	}
	return out
}
