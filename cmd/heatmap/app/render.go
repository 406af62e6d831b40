package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi                 = 120.0
	fontSize            = 10.0
	tickMarkHeight      = 5
	pixelsPerFreqLabel  = 150
	pixelsPerTimeLabel  = 60
	defaultCellSize     = 4
	defaultTimeFormat   = "15:04:05"
	defaultDateTimeForm = time.DateTime

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 110
	defaultBottomBorder = 40
	defaultRightBorder  = 40
)

// BorderConfig defines the sizes of white space around the heatmap
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds the heatmap rendering options
type RenderConfig struct {
	TimeFormat     string         // Format of time scale labels
	DatetimeFormat string         // Format of the info bar times
	Location       *time.Location // Timezone for time display

	FontSize     float64
	CellSize     int        // Pixels per grid cell in both directions
	ColorTheme   ColorTheme // Color scheme for magnitude levels
	ColorMapSize int        // Number of colors in gradient (0 for default)
	Annotate     bool

	BorderConfig BorderConfig
}

// HeatmapRenderer draws ImpedanceData as an image
type HeatmapRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

// NewHeatmapRenderer creates a renderer, filling zero options with defaults.
func NewHeatmapRenderer(config RenderConfig) *HeatmapRenderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDateTimeForm
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.CellSize <= 0 {
		config.CellSize = defaultCellSize
	}
	if !config.Annotate {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &HeatmapRenderer{config: config}
}

// Render creates an image of data with optional annotations
func (r *HeatmapRenderer) Render(data *ImpedanceData) (*image.RGBA, error) {
	if data.Width == 0 || data.Height == 0 {
		return nil, fmt.Errorf("no data to render")
	}

	cell := r.config.CellSize
	borders := r.config.BorderConfig

	area := image.Rect(
		borders.Left,
		borders.Top,
		borders.Left+data.Width*cell,
		borders.Top+data.Height*cell,
	)
	img := image.NewRGBA(image.Rect(0, 0, area.Max.X+borders.Right, area.Max.Y+borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	bounds := data.BoundsTracker.Current()
	if r.colorMap == nil {
		r.colorMap = NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	if r.config.Annotate {
		ann, err := newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			CellSize:       cell,
			Borders:        borders,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, data, bounds); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderCells(img, area, data)
	return img, nil
}

// renderCells fills one cell per sweep and frequency point
func (r *HeatmapRenderer) renderCells(img *image.RGBA, area image.Rectangle, data *ImpedanceData) {
	cell := r.config.CellSize
	for y, row := range data.Rows {
		for x, level := range row {
			if level == nil {
				continue
			}
			rect := image.Rect(
				area.Min.X+x*cell,
				area.Min.Y+y*cell,
				area.Min.X+(x+1)*cell,
				area.Min.Y+(y+1)*cell,
			)
			draw.Draw(img, rect, image.NewUniform(r.colorMap.GetColor(level)), image.Point{}, draw.Src)
		}
	}
}

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	CellSize       int
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, data *ImpedanceData, bounds LevelBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing frequency scale", func() error { return a.drawFrequencyScale(img, data) }},
		{"drawing time scale", func() error { return a.drawTimeScale(img, data) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, data, bounds) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// drawFrequencyScale labels every n-th column with its frequency. Columns
// are not necessarily evenly spaced in frequency.
func (a *annotator) drawFrequencyScale(img *image.RGBA, data *ImpedanceData) error {
	cell := a.config.CellSize
	every := labelEvery(pixelsPerFreqLabel, cell)
	textY := a.config.Borders.Top - a.fontHeight()/2

	for col := 0; col < len(data.Frequencies); col += every {
		x := a.config.Borders.Left + col*cell + cell/2

		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(data.Frequencies[col])
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

// drawTimeScale labels every n-th row with the sweep start time
func (a *annotator) drawTimeScale(img *image.RGBA, data *ImpedanceData) error {
	cell := a.config.CellSize
	every := labelEvery(pixelsPerTimeLabel, cell)
	metrics := a.fontFace.Metrics()

	for row := 0; row < len(data.Timestamps); row += every {
		imgY := a.config.Borders.Top + row*cell + cell/2

		for x := a.config.Borders.Left - tickMarkHeight; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		textY := imgY + a.fontHeight()/2 - metrics.Descent.Round()
		label := data.Timestamps[row].In(a.config.Location).Format(a.config.TimeFormat)
		if _, err := a.context.DrawString(label, freetype.Pt(10, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *ImpedanceData, bounds LevelBounds) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Freq: %s - %s", formatFrequency(data.FrequencyMin), formatFrequency(data.FrequencyMax)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		data.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%s sweeps; |DFT| %.0f to %.0f dB", humanize.Comma(int64(data.Height)), bounds.Min, bounds.Max))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// labelEvery returns the number of cells between two labels
func labelEvery(pixelsPerLabel, cell int) int {
	return max(1, pixelsPerLabel/cell)
}

func formatFrequency(freq float64) string {
	v, prefix := humanize.ComputeSI(freq)
	return fmt.Sprintf("%.1f %sHz", v, prefix)
}
