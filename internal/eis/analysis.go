package eis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// DefaultCalibrationResistance is the reference resistor of the board, in Ohm.
const DefaultCalibrationResistance = 56.2e3

// Point is the mean of all samples taken at one frequency.
type Point struct {
	Elapsed   float64 `json:"elapsed"`
	Frequency float64 `json:"frequency"`
	Real      float64 `json:"real"`
	Imag      float64 `json:"imag"`
}

func (p Point) Magnitude() float64 {
	return math.Hypot(p.Real, p.Imag)
}

// Phase is in radians.
func (p Point) Phase() float64 {
	return math.Atan2(p.Imag, p.Real)
}

// Impedance is a calibrated measurement.
type Impedance struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"` // Ohm
	Phase     float64 `json:"phase"`     // radians
}

// Average groups samples by frequency and averages every group. Points are
// sorted by ascending frequency.
func Average(samples []ad5933.Sample) []Point {
	type group struct {
		elapsed, real, imag []float64
	}

	groups := make(map[float64]*group)
	for _, s := range samples {
		g, ok := groups[s.Frequency]
		if !ok {
			g = &group{}
			groups[s.Frequency] = g
		}
		g.elapsed = append(g.elapsed, s.Elapsed)
		g.real = append(g.real, float64(s.Real))
		g.imag = append(g.imag, float64(s.Imag))
	}

	points := make([]Point, 0, len(groups))
	for freq, g := range groups {
		points = append(points, Point{
			Elapsed:   stat.Mean(g.elapsed, nil),
			Frequency: freq,
			Real:      stat.Mean(g.real, nil),
			Imag:      stat.Mean(g.imag, nil),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Frequency < points[j].Frequency
	})

	return points
}

// Calibrate converts data into impedance using a sweep of a known resistor
// rcal taken with the same settings. data and cal are matched by index.
func Calibrate(data, cal []Point, rcal float64) ([]Impedance, error) {
	if len(data) != len(cal) {
		return nil, fmt.Errorf("calibration has %d points, data has %d", len(cal), len(data))
	}

	out := make([]Impedance, len(data))
	for i, p := range data {
		m := p.Magnitude()
		if m == 0 {
			return nil, fmt.Errorf("zero magnitude at %v Hz", p.Frequency)
		}
		out[i] = Impedance{
			Frequency: p.Frequency,
			Magnitude: rcal * cal[i].Magnitude() / m,
			Phase:     p.Phase() - cal[i].Phase(),
		}
	}
	return out, nil
}

// GainFit is a linear model of the calibration magnitude over frequency.
type GainFit struct {
	Intercept float64
	Slope     float64
	Rcal      float64
}

// FitCalibration fits a straight line to the magnitude of a calibration sweep.
func FitCalibration(cal []Point, rcal float64) (GainFit, error) {
	if len(cal) < 2 {
		return GainFit{}, errors.New("calibration needs at least two frequencies")
	}

	x := make([]float64, len(cal))
	y := make([]float64, len(cal))
	for i, p := range cal {
		x[i] = p.Frequency
		y[i] = p.Magnitude()
	}

	a, b := stat.LinearRegression(x, y, nil, false)
	return GainFit{Intercept: a, Slope: b, Rcal: rcal}, nil
}

// Impedance applies the fit to a measured point.
func (g GainFit) Impedance(p Point) Impedance {
	return Impedance{
		Frequency: p.Frequency,
		Magnitude: g.Rcal * (g.Intercept + g.Slope*p.Frequency) / p.Magnitude(),
		Phase:     p.Phase(),
	}
}

// LogPlan returns n frequencies spaced logarithmically from lo to hi
// inclusive.
func LogPlan(lo, hi float64, n int) ([]float64, error) {
	switch {
	case n < 2:
		return nil, fmt.Errorf("a plan needs at least two points, got %d", n)
	case lo <= 0 || hi <= lo:
		return nil, fmt.Errorf("invalid frequency range %v - %v Hz", lo, hi)
	}
	return floats.LogSpan(make([]float64, n), lo, hi), nil
}
