package pricing

import (
	"fmt"
	"math"
)

// Usage is a 12-month kWh profile, January first.
type Usage [12]float64

// DefaultUsage is used when no usage history is available for a meter.
var DefaultUsage = Usage{900, 850, 900, 1000, 1200, 1400, 1500, 1500, 1300, 1100, 950, 900}

// Preset names a canned usage profile offered in the usage step.
type Preset string

const (
	PresetSmall  Preset = "small"
	PresetMedium Preset = "medium"
	PresetLarge  Preset = "large"
)

// Slider bounds for the average monthly kWh control.
const (
	MinAverageKWh = 200
	MaxAverageKWh = 5000
)

var presetAverages = map[Preset]float64{
	PresetSmall: 650,
	PresetLarge: 1800,
}

// Total returns the annual kWh.
func (u Usage) Total() float64 {
	var sum float64
	for _, v := range u {
		sum += v
	}
	return sum
}

// Average returns the mean monthly kWh.
func (u Usage) Average() float64 {
	return u.Total() / 12
}

// Validate checks that every month is a finite, non-negative value.
func (u Usage) Validate() error {
	for i, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("usage month %d: invalid value %v", i+1, v)
		}
	}
	return nil
}

// FromSlice converts a wire usage array into a Usage. Exactly 12 values are
// required.
func FromSlice(vals []float64) (Usage, error) {
	var u Usage
	if len(vals) != len(u) {
		return u, fmt.Errorf("usage profile must have 12 months, got %d", len(vals))
	}
	copy(u[:], vals)
	return u, u.Validate()
}

// ScaleTo rescales u so its monthly average equals avg while keeping the
// seasonal shape. A flat-zero profile borrows the shape of DefaultUsage.
func ScaleTo(u Usage, avg float64) (Usage, error) {
	if avg < MinAverageKWh || avg > MaxAverageKWh {
		return u, fmt.Errorf("average %v kWh outside [%d, %d]", avg, MinAverageKWh, MaxAverageKWh)
	}
	base := u
	if base.Total() == 0 {
		base = DefaultUsage
	}
	factor := avg / base.Average()
	var out Usage
	for i, v := range base {
		out[i] = math.Round(v * factor)
	}
	return out, nil
}

// PresetUsage returns the profile for a named preset.
func PresetUsage(p Preset) (Usage, error) {
	if p == PresetMedium {
		return DefaultUsage, nil
	}
	avg, ok := presetAverages[p]
	if !ok {
		return Usage{}, fmt.Errorf("unknown usage preset %q", p)
	}
	return ScaleTo(DefaultUsage, avg)
}
