// Package sensor reads capacitive-touch frames from a serial plant sensor,
// or synthesizes them when no device is attached.
package sensor

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// lineRe matches one sensor frame: TOP is the calibrated baseline, VAL the
// current capacitance sample, INT the touch intensity.
var lineRe = regexp.MustCompile(`TOP:(-?[0-9]*\.?[0-9]+),VAL:(-?[0-9]*\.?[0-9]+),INT:(-?[0-9]*\.?[0-9]+)`)

// Reading is one parsed sensor frame.
type Reading struct {
	Top       float64
	Value     float64
	Intensity float64
	At        time.Time
}

// Deviation is the distance of the current sample from the baseline. This is
// the number the companion persona and the TUI readout consume.
func (r Reading) Deviation() float64 {
	return math.Abs(r.Value - r.Top)
}

// ParseLine parses one serial line. Malformed lines return ok=false and are
// dropped by callers without logging noise; partial reads and boot banners
// from the microcontroller are routine.
func ParseLine(line string, at time.Time) (Reading, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Reading{}, false
	}
	top, err1 := strconv.ParseFloat(m[1], 64)
	val, err2 := strconv.ParseFloat(m[2], 64)
	intensity, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Reading{}, false
	}
	return Reading{Top: top, Value: val, Intensity: intensity, At: at}, true
}
