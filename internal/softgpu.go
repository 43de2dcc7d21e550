package internal

import (
	"fmt"
	"math"
	"sync"
)

// SoftwareDevice is a Device that keeps surfaces and the back buffer in CPU
// memory and rasterizes sprite batches itself. It backs the headless driver
// and the tests.
type SoftwareDevice struct {
	mu         sync.Mutex
	backBuffer *Framebuffer
	surfaces   int
	batches    int
	// FailSurfaces makes CreateSurface/CreateView fail, simulating a lost device.
	FailSurfaces bool
}

// NewSoftwareDevice creates a device with a back buffer of the given size.
func NewSoftwareDevice(width, height int) *SoftwareDevice {
	return &SoftwareDevice{backBuffer: NewFramebuffer(width, height)}
}

// BackBufferSize returns the back buffer dimensions.
func (d *SoftwareDevice) BackBufferSize() (int, int) {
	return d.backBuffer.Width, d.backBuffer.Height
}

// BackBuffer returns the render target that sprite batches draw into.
func (d *SoftwareDevice) BackBuffer() *Framebuffer {
	return d.backBuffer
}

// Clear fills the back buffer with c.
func (d *SoftwareDevice) Clear(c Color) {
	d.backBuffer.Fill(c)
}

// LiveSurfaces returns the number of surfaces not yet released.
func (d *SoftwareDevice) LiveSurfaces() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaces
}

// LiveBatches returns the number of sprite batches not yet released.
func (d *SoftwareDevice) LiveBatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// CreateSurface allocates a surface in CPU memory.
func (d *SoftwareDevice) CreateSurface(desc SurfaceDesc) (Surface, error) {
	if d.FailSurfaces {
		return nil, fmt.Errorf("%w: device lost", ErrResourceCreation)
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrResourceCreation, desc.Width, desc.Height)
	}
	if desc.Format != PixelFormatBGRA8 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, desc.Format)
	}
	if desc.SampleCount != 1 {
		return nil, fmt.Errorf("%w: sample count %d", ErrResourceCreation, desc.SampleCount)
	}
	d.mu.Lock()
	d.surfaces++
	d.mu.Unlock()
	return &softSurface{
		dev:  d,
		desc: desc,
		fb:   NewFramebuffer(desc.Width, desc.Height),
	}, nil
}

// CreateView creates a read view over a surface created by this device.
func (d *SoftwareDevice) CreateView(s Surface) (SurfaceView, error) {
	if d.FailSurfaces {
		return nil, fmt.Errorf("%w: device lost", ErrResourceCreation)
	}
	ss, ok := s.(*softSurface)
	if !ok || ss.dev != d {
		return nil, fmt.Errorf("%w: foreign surface %T", ErrResourceCreation, s)
	}
	if ss.desc.Usage&UsageShaderResource == 0 {
		return nil, fmt.Errorf("%w: surface not bindable as shader resource", ErrResourceCreation)
	}
	return &softView{surface: ss}, nil
}

// CreateSpriteBatch creates a batch that rasterizes into the back buffer.
func (d *SoftwareDevice) CreateSpriteBatch() (SpriteBatch, error) {
	d.mu.Lock()
	d.batches++
	d.mu.Unlock()
	return &softSpriteBatch{dev: d}, nil
}

type softSurface struct {
	mu       sync.RWMutex
	dev      *SoftwareDevice
	desc     SurfaceDesc
	fb       *Framebuffer
	released bool
}

func (s *softSurface) Width() int          { return s.desc.Width }
func (s *softSurface) Height() int         { return s.desc.Height }
func (s *softSurface) Format() PixelFormat { return s.desc.Format }

func (s *softSurface) WritePixels(pix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("surface: %w", ErrClosed)
	}
	return s.fb.Load(pix)
}

func (s *softSurface) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.dev.mu.Lock()
	s.dev.surfaces--
	s.dev.mu.Unlock()
	return nil
}

// Snapshot copies the surface content. It exists for diagnostics since the
// frame surface has no CPU access on real devices.
func (s *softSurface) Snapshot() *Framebuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fb.Clone()
}

type softView struct {
	surface *softSurface
}

func (v *softView) Width() int     { return v.surface.desc.Width }
func (v *softView) Height() int    { return v.surface.desc.Height }
func (v *softView) Release() error { return nil }

type sprite struct {
	view *softView
	dst  Rectangle
	tint Color
}

type softSpriteBatch struct {
	dev      *SoftwareDevice
	begun    bool
	mode     SortMode
	blend    BlendState
	sampler  SamplingPolicy
	effect   *PixelEffect
	queue    []sprite
	released bool
}

func (b *softSpriteBatch) Begin(mode SortMode, blend BlendState, sampler SamplingPolicy, effect Effect) error {
	if b.released {
		return fmt.Errorf("sprite batch: %w", ErrClosed)
	}
	if b.begun {
		return fmt.Errorf("%w: Begin called twice", ErrBatchState)
	}
	var pe *PixelEffect
	if effect != nil {
		var ok bool
		if pe, ok = effect.(*PixelEffect); !ok {
			return fmt.Errorf("%w: %T on software device", ErrUnsupportedEffect, effect)
		}
	}
	b.begun = true
	b.mode = mode
	b.blend = blend
	b.sampler = sampler
	b.effect = pe
	b.queue = b.queue[:0]
	return nil
}

func (b *softSpriteBatch) Draw(view SurfaceView, dst Rectangle, tint Color) error {
	if !b.begun {
		return fmt.Errorf("%w: Draw before Begin", ErrBatchState)
	}
	sv, ok := view.(*softView)
	if !ok {
		return fmt.Errorf("%w: foreign view %T", ErrResourceCreation, view)
	}
	sp := sprite{view: sv, dst: dst, tint: tint}
	if b.mode == SortImmediate {
		b.rasterize(sp)
		return nil
	}
	b.queue = append(b.queue, sp)
	return nil
}

func (b *softSpriteBatch) End() error {
	if !b.begun {
		return fmt.Errorf("%w: End before Begin", ErrBatchState)
	}
	for _, sp := range b.queue {
		b.rasterize(sp)
	}
	b.queue = b.queue[:0]
	b.begun = false
	return nil
}

// Release drops queued sprites. Safe to call more than once.
func (b *softSpriteBatch) Release() error {
	if b.released {
		return nil
	}
	b.released = true
	b.begun = false
	b.queue = nil
	b.dev.mu.Lock()
	b.dev.batches--
	b.dev.mu.Unlock()
	return nil
}

// rasterize draws one sprite into the back buffer, sampling every covered
// pixel center.
func (b *softSpriteBatch) rasterize(sp sprite) {
	target := b.dev.backBuffer
	if sp.dst.Empty() {
		return
	}
	x0, x1 := pixelSpan(sp.dst.X, sp.dst.Width, target.Width)
	y0, y1 := pixelSpan(sp.dst.Y, sp.dst.Height, target.Height)
	if x0 >= x1 || y0 >= y1 {
		return
	}
	sp.view.surface.mu.RLock()
	defer sp.view.surface.mu.RUnlock()
	tex := sp.view.surface.fb
	for y := y0; y < y1; y++ {
		v := (float32(y) + 0.5 - sp.dst.Y) / sp.dst.Height
		for x := x0; x < x1; x++ {
			u := (float32(x) + 0.5 - sp.dst.X) / sp.dst.Width
			if u < 0 || u >= 1 || v < 0 || v >= 1 {
				continue
			}
			c := sample(tex, b.sampler, u, v)
			if b.effect != nil {
				c = b.effect.Shade(c, u, v)
			}
			c = c.Mul(sp.tint)
			target.Set(x, y, blend(b.blend, c, target.At(x, y)))
		}
	}
}

// pixelSpan returns the half-open range of pixel indices whose centers lie
// in [start, start+length), clipped to [0, limit).
func pixelSpan(start, length float32, limit int) (int, int) {
	lo, hi := start, start+length
	if length < 0 {
		lo, hi = hi, lo
	}
	a := int(math.Ceil(float64(lo) - 0.5))
	b := int(math.Ceil(float64(hi) - 0.5))
	return max(a, 0), min(b, limit)
}

func blend(mode BlendState, src, dst Color) Color {
	switch mode {
	case BlendOpaque:
		return src
	case BlendAdditive:
		return Color{src.R + dst.R, src.G + dst.G, src.B + dst.B, src.A + dst.A}
	case BlendNonPremultiplied:
		inv := 1 - src.A
		return Color{
			src.R*src.A + dst.R*inv,
			src.G*src.A + dst.G*inv,
			src.B*src.A + dst.B*inv,
			src.A + dst.A*inv,
		}
	default:
		inv := 1 - src.A
		return Color{src.R + dst.R*inv, src.G + dst.G*inv, src.B + dst.B*inv, src.A + dst.A*inv}
	}
}

// sample reads tex at normalized coordinates (u, v) using the policy's
// filter and addressing.
func sample(tex *Framebuffer, p SamplingPolicy, u, v float32) Color {
	if p.Filter == FilterMinMagMipPoint {
		x, okx := address(int(math.Floor(float64(u*float32(tex.Width)))), tex.Width, p.AddressU)
		y, oky := address(int(math.Floor(float64(v*float32(tex.Height)))), tex.Height, p.AddressV)
		if !okx || !oky {
			return p.BorderColor
		}
		return tex.At(x, y)
	}
	tx := u*float32(tex.Width) - 0.5
	ty := v*float32(tex.Height) - 0.5
	fx0 := float32(math.Floor(float64(tx)))
	fy0 := float32(math.Floor(float64(ty)))
	wx := tx - fx0
	wy := ty - fy0
	ix, iy := int(fx0), int(fy0)

	c00 := texel(tex, p, ix, iy)
	c10 := texel(tex, p, ix+1, iy)
	c01 := texel(tex, p, ix, iy+1)
	c11 := texel(tex, p, ix+1, iy+1)
	top := lerp(c00, c10, wx)
	bottom := lerp(c01, c11, wx)
	return lerp(top, bottom, wy)
}

func texel(tex *Framebuffer, p SamplingPolicy, x, y int) Color {
	ax, okx := address(x, tex.Width, p.AddressU)
	ay, oky := address(y, tex.Height, p.AddressV)
	if !okx || !oky {
		return p.BorderColor
	}
	return tex.At(ax, ay)
}

// address maps an integer texel coordinate into [0, size). It returns false
// when the border color must be used.
func address(i, size int, mode AddressMode) (int, bool) {
	if i >= 0 && i < size {
		return i, true
	}
	switch mode {
	case AddressWrap:
		i %= size
		if i < 0 {
			i += size
		}
		return i, true
	case AddressBorder:
		return 0, false
	default:
		return min(max(i, 0), size-1), true
	}
}

func lerp(a, b Color, t float32) Color {
	if t == 0 {
		return a
	}
	return Color{
		a.R + (b.R-a.R)*t,
		a.G + (b.G-a.G)*t,
		a.B + (b.B-a.B)*t,
		a.A + (b.A-a.A)*t,
	}
}
