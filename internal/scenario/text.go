package scenario

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dronenav/internal/geom"
	"dronenav/internal/model"
)

// Section headers of the text format.
const (
	SectionSettings   = "SETTINGS"
	SectionDrones     = "DRONES"
	SectionDeliveries = "DELIVERIES"
	SectionZones      = "NO_FLY_ZONES"
)

// headers written by older tooling
var legacySections = map[string]string{
	"DRONLAR":              SectionDrones,
	"TESLIMAT_NOKTALARI":   SectionDeliveries,
	"UCUS_YASAK_BOLGELERI": SectionZones,
}

var ErrFormat = errors.New("scenario: malformed file")

// Write emits sc in the sectioned CSV text format.
func Write(w io.Writer, sc model.Scenario) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# drone fleet scenario")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "## "+SectionSettings)
	if sc.Name != "" {
		fmt.Fprintf(bw, "name,%s\n", sc.Name)
	}
	fmt.Fprintf(bw, "reference_time,%s\n", sc.ReferenceTime)
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "## "+SectionDrones)
	fmt.Fprintln(bw, "# id,max_payload,energy,speed,start_x,start_y")
	for _, v := range sc.Vehicles {
		fmt.Fprintf(bw, "%d,%s,%d,%s,%s,%s\n", v.ID, ftoa(v.MaxPayload), v.EnergyCapacity, ftoa(v.Speed), ftoa(v.Start.X), ftoa(v.Start.Y))
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "## "+SectionDeliveries)
	fmt.Fprintln(bw, "# id,x,y,mass,priority,window_start,window_end")
	for _, d := range sc.Deliveries {
		fmt.Fprintf(bw, "%d,%s,%s,%s,%d,%s,%s\n", d.ID, ftoa(d.Position.X), ftoa(d.Position.Y), ftoa(d.Mass), d.Priority, d.Window.Start, d.Window.End)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "## "+SectionZones)
	fmt.Fprintln(bw, "# id,active_start,active_end,vertex_count,x,y;x,y;...")
	for _, z := range sc.Zones {
		coords := make([]string, len(z.Vertices))
		for i, p := range z.Vertices {
			coords[i] = ftoa(p.X) + "," + ftoa(p.Y)
		}
		fmt.Fprintf(bw, "%d,%s,%s,%d,%s\n", z.ID, z.Active.Start, z.Active.End, len(z.Vertices), strings.Join(coords, ";"))
	}
	return bw.Flush()
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Read parses the text format. Blank lines and lines starting with '#'
// are skipped. The scenario is validated before it is returned.
func Read(r io.Reader) (model.Scenario, error) {
	var sc model.Scenario
	section := ""
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if strings.HasPrefix(line, "## ") {
			section = strings.TrimSpace(line[3:])
			if canon, ok := legacySections[section]; ok {
				section = canon
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var err error
		switch section {
		case SectionSettings:
			err = readSetting(&sc, line)
		case SectionDrones:
			var v model.Vehicle
			if v, err = parseDrone(line); err == nil {
				sc.Vehicles = append(sc.Vehicles, v)
			}
		case SectionDeliveries:
			var d model.DeliveryPoint
			if d, err = parseDelivery(line); err == nil {
				sc.Deliveries = append(sc.Deliveries, d)
			}
		case SectionZones:
			var z model.NoFlyZone
			if z, err = parseZone(line); err == nil {
				sc.Zones = append(sc.Zones, z)
			}
		default:
			err = fmt.Errorf("row outside a known section %q", section)
		}
		if err != nil {
			return model.Scenario{}, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNo, err)
		}
	}
	if err := s.Err(); err != nil {
		return model.Scenario{}, err
	}
	if err := sc.Validate(); err != nil {
		return model.Scenario{}, err
	}
	sc.Reset()
	return sc, nil
}

func readSetting(sc *model.Scenario, line string) error {
	key, val, ok := strings.Cut(line, ",")
	if !ok {
		return fmt.Errorf("want key,value")
	}
	switch strings.TrimSpace(key) {
	case "name":
		sc.Name = strings.TrimSpace(val)
	case "reference_time":
		t, err := model.ParseTimeOfDay(val)
		if err != nil {
			return err
		}
		sc.ReferenceTime = t
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// fields splits a CSV row and requires at least n columns.
type fields struct {
	cols []string
	err  error
}

func split(line string, n int) *fields {
	cols := strings.Split(line, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	f := &fields{cols: cols}
	if len(cols) < n {
		f.err = fmt.Errorf("want %d columns, got %d", n, len(cols))
	}
	return f
}

func (f *fields) intAt(i int) int {
	if f.err != nil {
		return 0
	}
	v, err := strconv.Atoi(f.cols[i])
	if err != nil {
		f.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return v
}

func (f *fields) floatAt(i int) float64 {
	if f.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(f.cols[i], 64)
	if err != nil {
		f.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return v
}

func (f *fields) clockAt(i int) model.TimeOfDay {
	if f.err != nil {
		return 0
	}
	v, err := model.ParseTimeOfDay(f.cols[i])
	if err != nil {
		f.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return v
}

func parseDrone(line string) (model.Vehicle, error) {
	f := split(line, 6)
	v := model.Vehicle{
		ID:             f.intAt(0),
		MaxPayload:     f.floatAt(1),
		EnergyCapacity: f.intAt(2),
		Speed:          f.floatAt(3),
		Start:          geom.Point{X: f.floatAt(4), Y: f.floatAt(5)},
	}
	return v, f.err
}

func parseDelivery(line string) (model.DeliveryPoint, error) {
	f := split(line, 7)
	d := model.DeliveryPoint{
		ID:       f.intAt(0),
		Position: geom.Point{X: f.floatAt(1), Y: f.floatAt(2)},
		Mass:     f.floatAt(3),
		Priority: f.intAt(4),
		Window:   model.Window{Start: f.clockAt(5), End: f.clockAt(6)},
	}
	return d, f.err
}

// parseZone reads id,start,end,count followed by count "x,y" pairs joined
// with ';'.
func parseZone(line string) (model.NoFlyZone, error) {
	head := split(line, 5)
	z := model.NoFlyZone{
		ID:     head.intAt(0),
		Active: model.Window{Start: head.clockAt(1), End: head.clockAt(2)},
	}
	count := head.intAt(3)
	if head.err != nil {
		return z, head.err
	}
	pairs := strings.Split(strings.Join(head.cols[4:], ","), ";")
	if len(pairs) < count {
		return z, fmt.Errorf("zone %d: want %d vertices, got %d", z.ID, count, len(pairs))
	}
	for _, pair := range pairs[:count] {
		f := split(pair, 2)
		p := geom.Point{X: f.floatAt(0), Y: f.floatAt(1)}
		if f.err != nil {
			return z, fmt.Errorf("zone %d: %w", z.ID, f.err)
		}
		z.Vertices = append(z.Vertices, p)
	}
	return z, nil
}
