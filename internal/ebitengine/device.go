// Package ebitengine implements the GPU device and the window loop on top
// of Ebitengine.
package ebitengine

import (
	"fmt"
	"sync"

	"github.com/Eyevinn/videoplane/internal"
	"github.com/hajimehoshi/ebiten/v2"
)

// Device creates Ebitengine images and draws sprites into the current
// screen image.
type Device struct {
	width  int
	height int

	mu     sync.Mutex
	target *ebiten.Image
}

// NewDevice creates a device whose back buffer has the given size.
func NewDevice(width, height int) *Device {
	return &Device{width: width, height: height}
}

// BackBufferSize returns the logical screen size.
func (d *Device) BackBufferSize() (int, int) {
	return d.width, d.height
}

// SetTarget selects the image sprite batches draw into. The game loop sets
// it to the screen before each Draw.
func (d *Device) SetTarget(img *ebiten.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = img
}

func (d *Device) currentTarget() *ebiten.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// CreateSurface allocates an image. Pixels are converted to RGBA when
// written.
func (d *Device) CreateSurface(desc internal.SurfaceDesc) (internal.Surface, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", internal.ErrResourceCreation, desc.Width, desc.Height)
	}
	if desc.Format != internal.PixelFormatBGRA8 {
		return nil, fmt.Errorf("%w: %s", internal.ErrUnsupportedFormat, desc.Format)
	}
	if desc.SampleCount != 1 {
		return nil, fmt.Errorf("%w: sample count %d", internal.ErrResourceCreation, desc.SampleCount)
	}
	return &surface{
		desc: desc,
		img:  ebiten.NewImage(desc.Width, desc.Height),
		rgba: make([]byte, internal.BGRASize(desc.Width, desc.Height)),
	}, nil
}

// CreateView returns a view sampling s.
func (d *Device) CreateView(s internal.Surface) (internal.SurfaceView, error) {
	es, ok := s.(*surface)
	if !ok {
		return nil, fmt.Errorf("%w: foreign surface %T", internal.ErrResourceCreation, s)
	}
	if es.desc.Usage&internal.UsageShaderResource == 0 {
		return nil, fmt.Errorf("%w: surface not bindable as shader resource", internal.ErrResourceCreation)
	}
	return &view{surface: es}, nil
}

// CreateSpriteBatch creates a batch drawing into the current target.
func (d *Device) CreateSpriteBatch() (internal.SpriteBatch, error) {
	return &spriteBatch{dev: d}, nil
}

type surface struct {
	mu       sync.Mutex
	desc     internal.SurfaceDesc
	img      *ebiten.Image
	rgba     []byte
	released bool
}

func (s *surface) Width() int                   { return s.desc.Width }
func (s *surface) Height() int                  { return s.desc.Height }
func (s *surface) Format() internal.PixelFormat { return s.desc.Format }

func (s *surface) WritePixels(pix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("surface: %w", internal.ErrClosed)
	}
	if len(pix) != len(s.rgba) {
		return fmt.Errorf("%w: got %d bytes, want %d", internal.ErrFrameSize, len(pix), len(s.rgba))
	}
	internal.ConvertBGRAToRGBA(s.rgba, pix)
	s.img.WritePixels(s.rgba)
	return nil
}

func (s *surface) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.img.Deallocate()
	return nil
}

type view struct {
	surface *surface
}

func (v *view) Width() int     { return v.surface.desc.Width }
func (v *view) Height() int    { return v.surface.desc.Height }
func (v *view) Release() error { return nil }
