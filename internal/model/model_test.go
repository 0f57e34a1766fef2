package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dronenav/internal/geom"
)

func TestEnergyCost(t *testing.T) {
	tests := []struct {
		dist, mass float64
		want       int
	}{
		{10, 1, 110},
		{10, 0, 100},
		{0, 4, 0},
		{1.01, 0, 11},
		{3.3, 2, 40},
	}
	for _, tt := range tests {
		if got := EnergyCost(tt.dist, tt.mass); got != tt.want {
			t.Fatalf("EnergyCost(%v, %v) = %d, want %d", tt.dist, tt.mass, got, tt.want)
		}
	}
}

func TestVehicleMoveAndReset(t *testing.T) {
	v, err := NewVehicle(1, 5, 1000, 10, geom.Point{})
	if err != nil {
		t.Fatalf("NewVehicle: %v", err)
	}
	if !v.HasEnergyFor(10, 1) {
		t.Fatal("expected enough energy for 110")
	}
	v.MoveTo(geom.Point{X: 10}, 10, 1)
	if v.Energy != 890 || v.Position.X != 10 {
		t.Fatalf("after move: energy %d pos %v", v.Energy, v.Position)
	}
	v.Load = 3
	v.Available = false
	v.Reset()
	if v.Energy != 1000 || v.Position != (geom.Point{}) || v.Load != 0 || !v.Available {
		t.Fatalf("reset did not restore state: %+v", v)
	}
}

func TestHasEnergyForIsInclusive(t *testing.T) {
	v, _ := NewVehicle(1, 5, 110, 10, geom.Point{})
	if !v.HasEnergyFor(10, 1) {
		t.Fatal("energy equal to cost must be enough")
	}
	v.Energy = 109
	if v.HasEnergyFor(10, 1) {
		t.Fatal("energy below cost must not be enough")
	}
}

func TestNewVehicleRejectsZeroSpeed(t *testing.T) {
	if _, err := NewVehicle(1, 5, 100, 0, geom.Point{}); !errors.Is(err, ErrInvalidVehicle) {
		t.Fatalf("got %v, want ErrInvalidVehicle", err)
	}
}

func TestNewDeliveryPointPriority(t *testing.T) {
	for _, p := range []int{0, 6, -1} {
		if _, err := NewDeliveryPoint(1, geom.Point{}, 1, p, AllDay); !errors.Is(err, ErrInvalidPriority) {
			t.Fatalf("priority %d: got %v, want ErrInvalidPriority", p, err)
		}
	}
	for p := MinPriority; p <= MaxPriority; p++ {
		if _, err := NewDeliveryPoint(1, geom.Point{}, 1, p, AllDay); err != nil {
			t.Fatalf("priority %d: %v", p, err)
		}
	}
}

func TestWindowInclusive(t *testing.T) {
	w := Window{Start: Clock(9, 0, 0), End: Clock(10, 0, 0)}
	for _, c := range []struct {
		t    TimeOfDay
		want bool
	}{
		{Clock(9, 0, 0), true},
		{Clock(10, 0, 0), true},
		{Clock(8, 59, 59), false},
		{Clock(10, 0, 1), false},
	} {
		if got := w.Contains(c.t); got != c.want {
			t.Fatalf("Contains(%s) = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestZoneActivityAndCrossing(t *testing.T) {
	z, err := NewNoFlyZone(1, []geom.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20}}, Window{Start: Clock(9, 0, 0), End: Clock(11, 0, 0)})
	if err != nil {
		t.Fatalf("NewNoFlyZone: %v", err)
	}
	if !z.ActiveAt(Clock(11, 0, 0)) || z.ActiveAt(Clock(11, 0, 1)) {
		t.Fatal("activity window must be inclusive")
	}
	if !z.Crosses(geom.Point{X: 0, Y: 15}, geom.Point{X: 30, Y: 15}) {
		t.Fatal("expected crossing")
	}
	if z.Crosses(geom.Point{}, geom.Point{X: 5, Y: 5}) {
		t.Fatal("unexpected crossing")
	}
	if got := ActiveZones([]NoFlyZone{z}, Clock(12, 0, 0)); len(got) != 0 {
		t.Fatalf("active zones at 12:00 = %d, want 0", len(got))
	}
	if _, err := NewNoFlyZone(2, []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, AllDay); !errors.Is(err, ErrDegenerateZone) {
		t.Fatalf("got %v, want ErrDegenerateZone", err)
	}
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("23:59:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := tod.Add(45 * time.Second); got != Clock(0, 0, 15) {
		t.Fatalf("wraparound: got %s", got)
	}
	if got := Clock(0, 0, 10).Add(-20 * time.Second); got != Clock(23, 59, 50) {
		t.Fatalf("negative wraparound: got %s", got)
	}
	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatal("expected range error")
	}
	b, _ := json.Marshal(Window{Start: Clock(8, 15, 0), End: Clock(9, 0, 0)})
	if string(b) != `{"start":"08:15:00","end":"09:00:00"}` {
		t.Fatalf("json = %s", b)
	}
	var w Window
	if err := json.Unmarshal([]byte(`{"start":"08:15","end":"10:30:05"}`), &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w.End != Clock(10, 30, 5) {
		t.Fatalf("end = %s", w.End)
	}
}

func TestTimeOfDayFraction(t *testing.T) {
	if got := EndOfDay.String(); got != "23:59:59.999999999" {
		t.Fatalf("end of day = %s", got)
	}
	if got := Clock(8, 0, 1).Add(250 * time.Millisecond).String(); got != "08:00:01.25" {
		t.Fatalf("fraction = %s", got)
	}
	b, err := EndOfDay.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back TimeOfDay
	if err := back.UnmarshalText(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != EndOfDay {
		t.Fatalf("round trip = %d, want %d", back, EndOfDay)
	}
	for _, bad := range []string{"10:00:00.", "10:00:00.1234567890", "10:00:00.x", "10:00.5"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestScenarioValidate(t *testing.T) {
	sc := Scenario{
		Vehicles:   []Vehicle{{ID: 1, MaxPayload: 1, EnergyCapacity: 1, Speed: 1}, {ID: 1, MaxPayload: 1, EnergyCapacity: 1, Speed: 1}},
		Deliveries: []DeliveryPoint{{ID: 1, Priority: 9}},
		Zones:      []NoFlyZone{{ID: 1}},
	}
	err := sc.Validate()
	for _, want := range []error{ErrDuplicateID, ErrInvalidPriority, ErrDegenerateZone} {
		if !errors.Is(err, want) {
			t.Fatalf("Validate() = %v, missing %v", err, want)
		}
	}
}

func TestScenarioCloneIsDeep(t *testing.T) {
	sc := Scenario{Zones: []NoFlyZone{{ID: 1, Vertices: []geom.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 1}}}}}
	cp := sc.Clone()
	cp.Zones[0].Vertices[0].X = 99
	if sc.Zones[0].Vertices[0].X != 1 {
		t.Fatal("clone shares zone vertices")
	}
}
