package main

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"os"
	"sync"

	"github.com/kbukum/relay/component"
	"github.com/kbukum/relay/pipeline"
	"github.com/kbukum/relay/resilience"
)

const stdoutDevice = "-"

// encodeAdalight frames colors for an Adalight receiver: the magic word
// "Ada", the LED count minus one as a big-endian uint16, a checksum of the
// two count bytes xor 0x55, then one RGB triplet per LED.
func encodeAdalight(colors []color.RGBA) []byte {
	n := len(colors) - 1
	hi, lo := byte(n>>8), byte(n)

	buf := make([]byte, 0, 6+3*len(colors))
	buf = append(buf, 'A', 'd', 'a', hi, lo, hi^lo^0x55)
	for _, c := range colors {
		buf = append(buf, c.R, c.G, c.B)
	}
	return buf
}

// Device writes LED frames to a serial device path or, for "-", stdout. The
// path is opened on the first write. With a baud rate set, writes are paced
// to what the link can carry, and the stalls back up through the pipeline.
type Device struct {
	*component.Lazy

	path    string
	limiter *resilience.RateLimiter
	mu      sync.Mutex
	w       io.Writer
	file    *os.File

	frames int
}

// NewDevice creates a device for path without opening it. A positive baud
// limits writes to baud/10 bytes per second (8N1 framing).
func NewDevice(path string, baud int) *Device {
	d := &Device{path: path}
	if baud > 0 {
		d.limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name: "serial",
			Rate: float64(baud) / 10,
		})
	}
	d.Lazy = component.NewLazy("serial", d.open).WithCloser(d.close)
	return d
}

func (d *Device) open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.path == stdoutDevice {
		d.w = os.Stdout
		return nil
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	d.file, d.w = f, f
	return nil
}

func (d *Device) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.w = nil
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Write frames and writes one LED frame, opening the device if needed.
func (d *Device) Write(ctx context.Context, f LEDFrame) error {
	if err := d.Acquire(ctx); err != nil {
		return err
	}

	buf := encodeAdalight(f.Colors)
	if d.limiter != nil {
		if err := d.limiter.WaitN(ctx, len(buf)); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return fmt.Errorf("serial device %s is closed", d.path)
	}
	if _, err := d.w.Write(buf); err != nil {
		return fmt.Errorf("writing frame %d to %s: %w", f.Seq, d.path, err)
	}
	d.frames++
	return nil
}

// Frames returns the number of frames written.
func (d *Device) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// serialStage writes every LED frame to dev.
func serialStage(dev *Device) pipeline.SinkFunc[LEDFrame] {
	return func(ctx context.Context, in pipeline.Iterator[LEDFrame]) error {
		return pipeline.ForEach(ctx, in, dev.Write)
	}
}
