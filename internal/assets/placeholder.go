package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/DeafMist/festival-radar/backend/internal/models"
)

var palette = map[models.Type]color.RGBA{
	models.TypeConference: {R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	models.TypeWorkshop:   {R: 0x8b, G: 0x5c, B: 0xf6, A: 0xff},
	models.TypeStand:      {R: 0x10, G: 0xb9, B: 0x81, A: 0xff},
}

var neutral = color.RGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}

// Placeholder renders the fallback panel for t: a flat colour with a
// lighter inner frame. Output depends only on its arguments.
func Placeholder(t models.Type, width, height int) ([]byte, error) {
	if width <= 0 {
		width = 400
	}
	if height <= 0 {
		height = 400
	}
	base, ok := palette[t]
	if !ok {
		base = neutral
	}
	light := lighten(base)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	margin := min(width, height) / 10
	stroke := max(2, margin/8)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := base
			if onFrame(x, y, width, height, margin, stroke) {
				c = light
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func onFrame(x, y, w, h, margin, stroke int) bool {
	inOuter := x >= margin && x < w-margin && y >= margin && y < h-margin
	inInner := x >= margin+stroke && x < w-margin-stroke && y >= margin+stroke && y < h-margin-stroke
	return inOuter && !inInner
}

func lighten(c color.RGBA) color.RGBA {
	mix := func(v uint8) uint8 { return uint8((int(v) + 0xff) / 2) }
	return color.RGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 0xff}
}
