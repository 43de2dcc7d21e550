package internal

import "fmt"

// Framebuffer is a tightly packed BGRA8 image in CPU memory.
type Framebuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFramebuffer allocates a zeroed (transparent black) framebuffer.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, BGRASize(width, height)),
	}
}

// BGRASize returns the buffer size of a tightly packed BGRA frame.
func BGRASize(width, height int) int {
	return width * height * 4
}

// At returns the pixel at (x, y) as a normalized color.
func (f *Framebuffer) At(x, y int) Color {
	i := (y*f.Width + x) * 4
	p := f.Pix[i : i+4 : i+4]
	return Color{
		R: float32(p[2]) / 255,
		G: float32(p[1]) / 255,
		B: float32(p[0]) / 255,
		A: float32(p[3]) / 255,
	}
}

// Set stores c at (x, y), saturating each component to [0,1].
func (f *Framebuffer) Set(x, y int, c Color) {
	i := (y*f.Width + x) * 4
	p := f.Pix[i : i+4 : i+4]
	p[0] = toUnorm8(c.B)
	p[1] = toUnorm8(c.G)
	p[2] = toUnorm8(c.R)
	p[3] = toUnorm8(c.A)
}

// Fill sets every pixel to c.
func (f *Framebuffer) Fill(c Color) {
	if len(f.Pix) < 4 {
		return
	}
	f.Set(0, 0, c)
	for i := 4; i < len(f.Pix); i *= 2 {
		copy(f.Pix[i:], f.Pix[:i])
	}
}

// Load copies a full BGRA frame into the framebuffer.
func (f *Framebuffer) Load(pix []byte) error {
	if len(pix) != len(f.Pix) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(pix), len(f.Pix))
	}
	copy(f.Pix, pix)
	return nil
}

// Clone creates a deep copy of the framebuffer.
func (f *Framebuffer) Clone() *Framebuffer {
	clone := &Framebuffer{
		Width:  f.Width,
		Height: f.Height,
		Pix:    make([]byte, len(f.Pix)),
	}
	copy(clone.Pix, f.Pix)
	return clone
}

// ConvertBGRAToRGBA swizzles a BGRA buffer into dst, which must be at least
// as long as src. Alpha is copied unchanged.
func ConvertBGRAToRGBA(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i]
		dst[i+3] = src[i+3]
	}
}

func toUnorm8(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return byte(v*255 + 0.5)
	}
}
