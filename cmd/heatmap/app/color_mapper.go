package app

import (
	"image/color"
	"math"
)

// ColorTheme names a gradient for |Z| levels in dB. The first stop of every
// gradient marks the lowest impedance magnitude in the image.
type ColorTheme string

const (
	DefaultTheme   ColorTheme = "default"   // navy, teal, amber, white
	ClassicTheme   ColorTheme = "classic"   // blue to red
	GrayscaleTheme ColorTheme = "grayscale" // black to white
	JungleTheme    ColorTheme = "jungle"    // dark green to yellow
	ThermalTheme   ColorTheme = "thermal"   // black, red, yellow, white
	MarineTheme    ColorTheme = "marine"    // deep blue to white

	DefaultColorMapSize = 256
)

// gradient is a list of evenly spaced color stops.
type gradient []color.RGBA

var themes = map[ColorTheme]gradient{
	DefaultTheme: {
		{R: 0x0b, G: 0x14, B: 0x3c, A: 0xff},
		{R: 0x1b, G: 0x6f, B: 0x8a, A: 0xff},
		{R: 0x3f, G: 0xb8, B: 0x8f, A: 0xff},
		{R: 0xf2, G: 0xb1, B: 0x34, A: 0xff},
		{R: 0xff, G: 0xf8, B: 0xe8, A: 0xff},
	},
	ClassicTheme: {
		{B: 0x80, A: 0xff},
		{B: 0xff, A: 0xff},
		{G: 0xff, B: 0xff, A: 0xff},
		{R: 0xff, G: 0xff, A: 0xff},
		{R: 0xff, A: 0xff},
	},
	GrayscaleTheme: {
		{A: 0xff},
		{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	},
	JungleTheme: {
		{G: 0x33, A: 0xff},
		{R: 0x2e, G: 0x8b, B: 0x22, A: 0xff},
		{R: 0xf0, G: 0xe6, B: 0x2c, A: 0xff},
	},
	ThermalTheme: {
		{A: 0xff},
		{R: 0xff, A: 0xff},
		{R: 0xff, G: 0xff, A: 0xff},
		{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	},
	MarineTheme: {
		{R: 0x02, G: 0x0b, B: 0x2e, A: 0xff},
		{R: 0x00, G: 0x5f, B: 0xa3, A: 0xff},
		{R: 0x4c, G: 0xd3, B: 0xe0, A: 0xff},
		{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	},
}

var validThemes = func() map[ColorTheme]struct{} {
	m := make(map[ColorTheme]struct{}, len(themes))
	for name := range themes {
		m[name] = struct{}{}
	}
	return m
}()

// at returns the color at t in [0, 1].
func (g gradient) at(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	if len(g) == 1 {
		return g[0]
	}

	pos := t * float64(len(g)-1)
	i := int(pos)
	if i >= len(g)-1 {
		return g[len(g)-1]
	}
	f := pos - float64(i)

	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + f*(float64(b)-float64(a))))
	}
	a, b := g[i], g[i+1]
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

// ColorMapper looks up |Z| levels in a color table spread over the current
// level bounds.
type ColorMapper struct {
	colorMap      []color.Color
	themeName     ColorTheme
	size          int
	levelPerIndex float64
	boundsMin     float64
}

func NewColorMapper(theme ColorTheme, bounds LevelBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize builds a table of size colors. Unknown themes use
// DefaultTheme.
func NewColorMapperWithSize(theme ColorTheme, bounds LevelBounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}
	g, ok := themes[theme]
	if !ok {
		theme, g = DefaultTheme, themes[DefaultTheme]
	}

	cm := &ColorMapper{
		colorMap:  make([]color.Color, size),
		themeName: theme,
		size:      size,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = g.at(float64(i) / float64(size-1))
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds rescales the table to bounds.
func (cm *ColorMapper) UpdateBounds(bounds LevelBounds) {
	cm.boundsMin = bounds.Min
	cm.levelPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)
}

// GetColor returns the color of level. Levels outside the bounds take the
// color of the nearest end; a missing level takes the lowest.
func (cm *ColorMapper) GetColor(level *float64) color.Color {
	if level == nil || cm.levelPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((*level - cm.boundsMin) / cm.levelPerIndex)
	switch {
	case index < 0:
		return cm.colorMap[0]
	case index >= cm.size:
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

func (cm *ColorMapper) Size() int {
	return cm.size
}
