package internal

import (
	"context"
	"fmt"
	"io"
	"time"
)

// patternRed is the red channel of every index pixel.
const patternRed = 0x40

// PatternDecoder synthesizes frames following the probed timeline of a
// source instead of decoding its samples. Each frame carries its sample
// index in the top part of the picture and a bar that moves with the index
// in the bottom eighth.
type PatternDecoder struct {
	// FrameDelay simulates the cost of decoding one frame.
	FrameDelay time.Duration

	info   MediaInfo
	width  int
	height int
	index  uint32
	opened bool
	closed bool
}

// NewPatternDecoder creates an unopened pattern decoder.
func NewPatternDecoder() *PatternDecoder {
	return &PatternDecoder{}
}

func (d *PatternDecoder) Open(src *MediaSource, width, height int) error {
	if d.opened {
		return ErrAlreadyOpen
	}
	if src == nil {
		return fmt.Errorf("pattern decoder: no source")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid output size %dx%d", ErrFrameSize, width, height)
	}
	if src.Info.NrSamples == 0 || src.Info.SampleDur == 0 {
		return fmt.Errorf("pattern decoder: %s has an empty timeline", src.Path)
	}
	d.info = src.Info
	d.width = width
	d.height = height
	d.index = 0
	d.opened = true
	return nil
}

func (d *PatternDecoder) ReadFrame(ctx context.Context, dst []byte) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if d.closed {
		return 0, ErrClosed
	}
	if !d.opened {
		return 0, ErrNotInitialized
	}
	if len(dst) != BGRASize(d.width, d.height) {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(dst), BGRASize(d.width, d.height))
	}
	if d.index >= d.info.NrSamples {
		return 0, io.EOF
	}
	if d.FrameDelay > 0 {
		t := time.NewTimer(d.FrameDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}
	PaintPatternFrame(dst, d.width, d.height, d.index)
	pts := d.info.SampleTime(d.index)
	d.index++
	return pts, nil
}

func (d *PatternDecoder) Seek(pos time.Duration) error {
	if d.closed {
		return ErrClosed
	}
	if !d.opened {
		return ErrNotInitialized
	}
	frameDur := d.info.FrameDuration()
	idx := uint32(0)
	if pos > 0 && frameDur > 0 {
		idx = uint32(pos / frameDur)
	}
	d.index = min(idx, d.info.NrSamples-1)
	return nil
}

func (d *PatternDecoder) Close() error {
	d.closed = true
	return nil
}

// PaintPatternFrame draws the pattern for sample index into a BGRA buffer.
func PaintPatternFrame(dst []byte, width, height int, index uint32) {
	barH := height / 8
	split := (height - barH) * width * 4
	for i := 0; i < split; i += 4 {
		dst[i] = byte(index)
		dst[i+1] = byte(index >> 8)
		dst[i+2] = patternRed
		dst[i+3] = 0xff
	}
	if barH == 0 {
		return
	}
	barW := max(width/16, 1)
	x0 := int(index*4) % width
	for y := height - barH; y < height; y++ {
		row := dst[y*width*4 : (y+1)*width*4]
		for x := 0; x < width; x++ {
			v := byte(0x20)
			if x >= x0 && x < x0+barW {
				v = 0xff
			}
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = v, v, v, 0xff
		}
	}
}

// PatternFrameIndex recovers the sample index from the top-left pixel of a
// pattern frame.
func PatternFrameIndex(pix []byte) int {
	return int(pix[0]) | int(pix[1])<<8
}

// PatternColor is the color of the index area of pattern frame index.
func PatternColor(index int) Color {
	return Color{
		R: patternRed / 255.0,
		G: float32(byte(index>>8)) / 255,
		B: float32(byte(index)) / 255,
		A: 1,
	}
}
