package longtake

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderConfig defines the frame used when the browser cannot take a picture.
type RenderConfig struct {
	Columns    int        // characters per line
	Rows       int        // lines per frame
	Background color.RGBA // Background color
	Foreground color.RGBA // Text color
	Header     color.RGBA // Color of the first line
}

// DefaultRenderConfig returns a dark 100x40 character frame.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Columns:    100,
		Rows:       40,
		Background: color.RGBA{R: 24, G: 24, B: 27, A: 255},
		Foreground: color.RGBA{R: 228, G: 228, B: 231, A: 255},
		Header:     color.RGBA{R: 250, G: 204, B: 21, A: 255},
	}
}

// RenderingStage draws page text into a PNG frame.
//
// When a screenshot fails the camera still owes the run a picture, so the
// stage prints what it could read from the page (or why it couldn't) onto a
// plain character grid.
type RenderingStage struct {
	config     RenderConfig
	lines      []string
	charWidth  int
	charHeight int
	face       font.Face
}

// NewRenderingStage creates a stage with an empty frame.
func NewRenderingStage(config RenderConfig) *RenderingStage {
	if config.Columns <= 0 || config.Rows <= 0 {
		config = DefaultRenderConfig()
	}
	return &RenderingStage{
		config:     config,
		charWidth:  7,
		charHeight: 15,
		face:       basicfont.Face7x13,
	}
}

// RenderText lays text out on the grid, wrapping long lines. Lines beyond the
// last row are dropped.
func (rs *RenderingStage) RenderText(text string) {
	rs.lines = rs.lines[:0]
	for _, raw := range strings.Split(text, "\n") {
		line := []rune(strings.TrimRight(raw, " \t\r"))
		for len(line) > rs.config.Columns {
			rs.lines = append(rs.lines, string(line[:rs.config.Columns]))
			line = line[rs.config.Columns:]
		}
		rs.lines = append(rs.lines, string(line))
		if len(rs.lines) >= rs.config.Rows {
			rs.lines = rs.lines[:rs.config.Rows]
			return
		}
	}
}

// Lines returns the laid-out text.
func (rs *RenderingStage) Lines() []string {
	return append([]string(nil), rs.lines...)
}

// Frame encodes the current grid as a PNG image.
func (rs *RenderingStage) Frame() ([]byte, error) {
	width := rs.config.Columns*rs.charWidth + 2*rs.charWidth
	height := rs.config.Rows*rs.charHeight + rs.charHeight

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(rs.config.Background), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Face: rs.face,
	}

	for i, line := range rs.lines {
		if line == "" {
			continue
		}
		drawer.Src = image.NewUniform(rs.config.Foreground)
		if i == 0 {
			drawer.Src = image.NewUniform(rs.config.Header)
		}
		drawer.Dot = fixed.Point26_6{
			X: fixed.I(rs.charWidth),
			Y: fixed.I((i + 1) * rs.charHeight),
		}
		drawer.DrawString(line)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
