// Package priority derives the composite priority score of a node and
// classifies it into ordered bands.
package priority

import (
	"fmt"
	"math"
	"strings"
)

// DefaultDimension is used for a priority input that was never supplied.
const DefaultDimension = 0.5

// Band is one of five ordered priority classes.
type Band string

const (
	BandCritical Band = "Critical"
	BandHigh     Band = "High"
	BandModerate Band = "Moderate"
	BandLow      Band = "Low"
	BandMinimal  Band = "Minimal"
)

// bands is ordered from most to least urgent. Each floor is inclusive and
// the band extends up to the floor of the previous entry (exclusive).
var bands = []struct {
	band  Band
	floor float64
}{
	{BandCritical, 0.8},
	{BandHigh, 0.6},
	{BandModerate, 0.4},
	{BandLow, 0.2},
	{BandMinimal, 0.0},
}

// Clamp bounds v to [0,1]. NaN becomes 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compute returns the unweighted mean of the three input dimensions, clamped
// to [0,1]. Inputs are clamped before averaging and the mean is rounded to
// nine decimals so band floors compare exactly.
func Compute(executive, individual, community float64) float64 {
	mean := (Clamp(executive) + Clamp(individual) + Clamp(community)) / 3
	return Clamp(math.Round(mean*1e9) / 1e9)
}

// Classify maps a computed score to its band.
func Classify(computed float64) Band {
	score := Clamp(computed)
	for _, b := range bands {
		if score >= b.floor {
			return b.band
		}
	}
	return BandMinimal
}

// Floor returns the inclusive lower bound of the band.
func (b Band) Floor() float64 {
	for _, entry := range bands {
		if entry.band == b {
			return entry.floor
		}
	}
	return 0
}

// Ceiling returns the exclusive upper bound of the band. The top band's
// ceiling lies just above 1 so a score of exactly 1 falls inside it.
func (b Band) Ceiling() float64 {
	for i, entry := range bands {
		if entry.band != b {
			continue
		}
		if i == 0 {
			return math.Nextafter(1, 2)
		}
		return bands[i-1].floor
	}
	return 0
}

// Valid reports whether b is a known band.
func (b Band) Valid() bool {
	for _, entry := range bands {
		if entry.band == b {
			return true
		}
	}
	return false
}

// Bands lists every band from most to least urgent.
func Bands() []Band {
	out := make([]Band, 0, len(bands))
	for _, entry := range bands {
		out = append(out, entry.band)
	}
	return out
}

// ParseBand matches a band name case-insensitively.
func ParseBand(value string) (Band, error) {
	trimmed := strings.TrimSpace(value)
	for _, entry := range bands {
		if strings.EqualFold(string(entry.band), trimmed) {
			return entry.band, nil
		}
	}
	return "", fmt.Errorf("unknown priority band %q", value)
}
