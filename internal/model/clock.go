package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// TimeOfDay is an offset from midnight. Arithmetic wraps at day bounds.
type TimeOfDay time.Duration

// Clock builds a TimeOfDay from hours, minutes and seconds.
func Clock(h, m, s int) TimeOfDay {
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

// EndOfDay is the last representable instant, 23:59:59.999999999.
const EndOfDay = TimeOfDay(day - 1)

// AllDay is a window covering every time of day.
var AllDay = Window{Start: 0, End: EndOfDay}

// ParseTimeOfDay accepts "HH:MM", "HH:MM:SS" or "HH:MM:SS.fffffffff".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("parse time of day %q: want HH:MM or HH:MM:SS", s)
	}
	var frac string
	if len(parts) == 3 {
		parts[2], frac, _ = strings.Cut(parts[2], ".")
	} else {
		parts = append(parts, "0")
	}
	var hms [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("parse time of day %q: %w", s, err)
		}
		hms[i] = v
	}
	h, m, sec := hms[0], hms[1], hms[2]
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("parse time of day %q: out of range", s)
	}
	var ns int
	if frac != "" {
		if len(frac) > 9 {
			return 0, fmt.Errorf("parse time of day %q: fraction beyond nanoseconds", s)
		}
		v, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
		if err != nil || v < 0 {
			return 0, fmt.Errorf("parse time of day %q: bad fraction", s)
		}
		ns = v
	}
	return Clock(h, m, sec) + TimeOfDay(ns), nil
}

// Add returns t+d modulo 24h.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	v := (time.Duration(t) + d) % day
	if v < 0 {
		v += day
	}
	return TimeOfDay(v)
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	out := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if d > 0 {
		out += strings.TrimRight(fmt.Sprintf(".%09d", int64(d)), "0")
	}
	return out
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Window is an inclusive time-of-day interval.
type Window struct {
	Start TimeOfDay `json:"start" yaml:"start"`
	End   TimeOfDay `json:"end" yaml:"end"`
}

// Contains reports Start <= t <= End.
func (w Window) Contains(t TimeOfDay) bool { return w.Start <= t && t <= w.End }
