package main

import (
	"context"
	"image"
	"image/color"
	"iter"
	"math"
	"time"
)

// Frame is one captured screen image.
type Frame struct {
	Seq   int
	At    time.Time
	Image *image.RGBA
}

// captureFrames generates synthetic frames at cfg.FPS. It yields cfg.Frames
// frames, or runs until ctx ends or the consumer stops when cfg.Frames is 0.
func captureFrames(ctx context.Context, cfg CaptureConfig) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS))
		defer ticker.Stop()

		for seq := 0; cfg.Frames == 0 || seq < cfg.Frames; seq++ {
			if seq > 0 {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
			frame := Frame{
				Seq:   seq,
				At:    time.Now(),
				Image: renderPattern(cfg.Pattern, seq, cfg.Width, cfg.Height),
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// renderPattern draws frame seq of a test pattern.
//
//	gradient  a hue sweep from left to right that drifts each frame
//	bars      eight vertical colour bars scrolling right
//	pulse     a solid colour whose brightness breathes
func renderPattern(pattern string, seq, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch pattern {
	case "bars":
		shift := seq * w / 120
		for x := 0; x < w; x++ {
			c := barColors[((x+shift)%w)*len(barColors)/w]
			for y := 0; y < h; y++ {
				img.SetRGBA(x, y, c)
			}
		}
	case "pulse":
		level := 0.5 + 0.5*math.Sin(float64(seq)/15)
		c := color.RGBA{R: uint8(255 * level), G: uint8(96 * level), B: uint8(32 * level), A: 255}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	default:
		for x := 0; x < w; x++ {
			hue := math.Mod(float64(x)/float64(w)*360+float64(seq)*3, 360)
			c := hsvToRGB(hue, 1, 1)
			for y := 0; y < h; y++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return img
}

var barColors = []color.RGBA{
	{255, 255, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 255, 0, 255},
	{255, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

// hsvToRGB converts hue in degrees and saturation, value in [0,1].
func hsvToRGB(h, s, v float64) color.RGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}
