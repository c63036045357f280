package main

import (
	"context"
	"image"
	"image/color"
	"slices"

	"golang.org/x/image/draw"

	"github.com/kbukum/relay/pipeline"
)

// LEDFrame holds one colour per LED, in strip order.
type LEDFrame struct {
	Seq    int
	Colors []color.RGBA
}

// Sampler reduces frames to the average colours of the screen border
// zones behind each LED.
type Sampler struct {
	leds       int
	brightness float64
	small      *image.RGBA
	zones      []image.Rectangle
}

// NewSampler lays cfg.LEDs zones around a cfg.SampleWidth x cfg.SampleHeight
// thumbnail.
func NewSampler(cfg ZonesConfig) *Sampler {
	return &Sampler{
		leds:       cfg.LEDs,
		brightness: cfg.Brightness,
		small:      image.NewRGBA(image.Rect(0, 0, cfg.SampleWidth, cfg.SampleHeight)),
		zones:      layoutZones(cfg.LEDs, cfg.SampleWidth, cfg.SampleHeight),
	}
}

// Sample downscales frame and averages each zone. A Sampler reuses its
// thumbnail, so one Sampler must not be shared between goroutines.
func (s *Sampler) Sample(_ context.Context, frame Frame) (LEDFrame, error) {
	draw.ApproxBiLinear.Scale(s.small, s.small.Bounds(), frame.Image, frame.Image.Bounds(), draw.Src, nil)

	colors := make([]color.RGBA, len(s.zones))
	for i, zone := range s.zones {
		colors[i] = scale(average(s.small, zone), s.brightness)
	}
	return LEDFrame{Seq: frame.Seq, Colors: colors}, nil
}

// zonesStage maps captured frames to LED frames. With skipUnchanged, a frame
// identical to the one before it is dropped.
func zonesStage(cfg ZonesConfig) pipeline.TransformFunc[Frame, LEDFrame] {
	return func(ctx context.Context, in pipeline.Iterator[Frame]) (pipeline.Iterator[LEDFrame], error) {
		sampler := NewSampler(cfg)
		out := pipeline.Map(in, sampler.Sample)
		if cfg.SkipUnchanged {
			var last []color.RGBA
			out = pipeline.Filter(out, func(f LEDFrame) bool {
				if slices.Equal(f.Colors, last) {
					return false
				}
				last = f.Colors
				return true
			})
		}
		return out, nil
	}
}

// layoutZones splits the border of a w x h image into leds zones, clockwise
// from the top-left corner: along the top, down the right side, back along
// the bottom and up the left side. Zones reach min(w,h)/8 pixels inward.
func layoutZones(leds, w, h int) []image.Rectangle {
	depth := max(1, min(w, h)/8)
	perimeter := 2 * (w + h)
	bounds := image.Rect(0, 0, w, h)

	zones := make([]image.Rectangle, leds)
	for i := range zones {
		start := i * perimeter / leds
		end := max((i+1)*perimeter/leds, start+1)
		half := max(1, (end-start+1)/2)
		zones[i] = edgeRect((start+end)/2, half, w, h, depth).Intersect(bounds)
	}
	return zones
}

// edgeRect returns the zone centred on the border point pos, measured
// clockwise from the top-left corner.
func edgeRect(pos, half, w, h, depth int) image.Rectangle {
	switch {
	case pos < w:
		return image.Rect(pos-half, 0, pos+half, depth)
	case pos < w+h:
		y := pos - w
		return image.Rect(w-depth, y-half, w, y+half)
	case pos < 2*w+h:
		x := w - 1 - (pos - w - h)
		return image.Rect(x-half+1, h-depth, x+half+1, h)
	default:
		y := h - 1 - (pos - 2*w - h)
		return image.Rect(0, y-half+1, depth, y+half+1)
	}
}

func average(img *image.RGBA, r image.Rectangle) color.RGBA {
	var sr, sg, sb, n int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			sr += int(c.R)
			sg += int(c.G)
			sb += int(c.B)
			n++
		}
	}
	if n == 0 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n), A: 255}
}

func scale(c color.RGBA, brightness float64) color.RGBA {
	if brightness >= 1 {
		return c
	}
	return color.RGBA{
		R: uint8(float64(c.R) * brightness),
		G: uint8(float64(c.G) * brightness),
		B: uint8(float64(c.B) * brightness),
		A: 255,
	}
}
