package internal

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// ShadeFunc transforms a sampled texel. u and v are the normalized
// coordinates of the pixel within the destination rectangle.
type ShadeFunc func(c Color, u, v float32) Color

// PixelEffect is the software device's effect program.
type PixelEffect struct {
	name  string
	shade ShadeFunc
}

// NewPixelEffect wraps fn as a named effect.
func NewPixelEffect(name string, fn ShadeFunc) *PixelEffect {
	return &PixelEffect{name: name, shade: fn}
}

// Name returns the effect name.
func (e *PixelEffect) Name() string {
	return e.name
}

// Shade applies the effect to one texel.
func (e *PixelEffect) Shade(c Color, u, v float32) Color {
	return e.shade(c, u, v)
}

// SoftwareContent resolves effect names to built-in or registered
// PixelEffects.
type SoftwareContent struct {
	mu      sync.RWMutex
	effects map[string]ShadeFunc
}

// NewSoftwareContent creates a loader with the built-in effects registered.
func NewSoftwareContent() *SoftwareContent {
	sc := &SoftwareContent{effects: make(map[string]ShadeFunc)}
	sc.Register("grayscale", grayscale)
	sc.Register("sepia", sepia)
	sc.Register("invert", invert)
	sc.Register("vignette", vignette)
	sc.Register("brightness", brightness(0.15))
	sc.Register("contrast", contrast(1.3))
	return sc
}

// Register adds or replaces an effect.
func (sc *SoftwareContent) Register(name string, fn ShadeFunc) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.effects[name] = fn
}

// Names lists the registered effects in sorted order.
func (sc *SoftwareContent) Names() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	names := make([]string, 0, len(sc.effects))
	for n := range sc.effects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadEffect returns the effect registered under name.
func (sc *SoftwareContent) LoadEffect(name string) (Effect, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	fn, ok := sc.effects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEffectNotFound, name)
	}
	return NewPixelEffect(name, fn), nil
}

// Rec. 601 luma
func luma(c Color) float32 {
	return 0.299*c.R + 0.587*c.G + 0.114*c.B
}

func grayscale(c Color, _, _ float32) Color {
	y := luma(c)
	return Color{y, y, y, c.A}
}

func sepia(c Color, _, _ float32) Color {
	return Color{
		R: 0.393*c.R + 0.769*c.G + 0.189*c.B,
		G: 0.349*c.R + 0.686*c.G + 0.168*c.B,
		B: 0.272*c.R + 0.534*c.G + 0.131*c.B,
		A: c.A,
	}
}

// invert works on premultiplied colors, so the inverse is taken against alpha.
func invert(c Color, _, _ float32) Color {
	return Color{c.A - c.R, c.A - c.G, c.A - c.B, c.A}
}

func vignette(c Color, u, v float32) Color {
	dx, dy := u-0.5, v-0.5
	d := float32(math.Sqrt(float64(dx*dx + dy*dy)))
	f := 1 - smoothstep(0.35, 0.75, d)
	return Color{c.R * f, c.G * f, c.B * f, c.A}
}

func brightness(delta float32) ShadeFunc {
	return func(c Color, _, _ float32) Color {
		d := delta * c.A
		return Color{c.R + d, c.G + d, c.B + d, c.A}
	}
}

func contrast(factor float32) ShadeFunc {
	return func(c Color, _, _ float32) Color {
		mid := 0.5 * c.A
		return Color{
			(c.R-mid)*factor + mid,
			(c.G-mid)*factor + mid,
			(c.B-mid)*factor + mid,
			c.A,
		}
	}
}

func smoothstep(e0, e1, x float32) float32 {
	t := (x - e0) / (e1 - e0)
	t = min(max(t, 0), 1)
	return t * t * (3 - 2*t)
}
