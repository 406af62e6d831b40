package app

import "math"

const (
	defaultMinLevel = 0.0  // dB
	defaultMaxLevel = 90.0 // dB, full scale of a 16-bit DFT component

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumRange = 20 // dB
)

// LevelBounds represents the calculated magnitude boundaries
type LevelBounds struct {
	Min  float64 // 5th percentile level in dB
	Max  float64 // 95th percentile level in dB
	Mean float64 // Mean level in dB
}

func defaultLevelBounds() LevelBounds {
	return LevelBounds{
		Min:  defaultMinLevel,
		Max:  defaultMaxLevel,
		Mean: (defaultMinLevel + defaultMaxLevel) / 2,
	}
}

// LevelHistogram maintains a histogram of levels with 1dB bins
type LevelHistogram struct {
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64
	minBin     int
	maxBin     int
}

func NewLevelHistogram() *LevelHistogram {
	return &LevelHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// scaleDown halves all bin counts
func (h *LevelHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}

		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
	h.totalCount /= 2
}

// Update adds a level to the histogram
func (h *LevelHistogram) Update(level *float64) {
	if level == nil {
		return
	}

	bin := int(math.Floor(*level))

	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// PercentileBounds returns bounds at the 5th and 95th percentile, widened to
// at least minimumRange with a 10% margin.
func (h *LevelHistogram) PercentileBounds() LevelBounds {
	if h.totalCount < minimumSampleCount {
		return defaultLevelBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	var lo, hi int

	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target {
			lo = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target {
			hi = bin
			break
		}
	}

	var sumProduct float64
	for bin, n := range h.bins {
		sumProduct += float64(bin) * float64(n)
	}
	mean := sumProduct / float64(h.totalCount)

	if hi-lo < minimumRange {
		center := (hi + lo) / 2
		lo = center - minimumRange/2
		hi = center + minimumRange/2
	}

	margin := (hi - lo) / 10
	return LevelBounds{
		Min:  float64(lo - margin),
		Max:  float64(hi + margin),
		Mean: mean,
	}
}

// SmoothBounds exponentially smooths the histogram bounds
type SmoothBounds struct {
	hist    *LevelHistogram
	alpha   float64 // Smoothing factor (0-1)
	current LevelBounds
}

func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewLevelHistogram(),
		alpha:   alpha,
		current: defaultLevelBounds(),
	}
}

// Update adds a level and returns the smoothed bounds
func (s *SmoothBounds) Update(level *float64) LevelBounds {
	if level == nil {
		return s.current
	}

	s.hist.Update(level)
	bounds := s.hist.PercentileBounds()

	s.current.Min = s.current.Min*(1-s.alpha) + bounds.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + bounds.Max*s.alpha
	s.current.Mean = bounds.Mean

	return s.current
}

func (s *SmoothBounds) Current() LevelBounds {
	return s.current
}

// Override pins the bounds, e.g. to values given on the command line
func (s *SmoothBounds) Override(lo, hi *float64) {
	if lo != nil {
		s.current.Min = *lo
	}
	if hi != nil {
		s.current.Max = *hi
	}
}
