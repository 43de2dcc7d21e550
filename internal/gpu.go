package internal

import "math"

// PixelFormat identifies the memory layout of a surface.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatBGRA8               // 32-bit BGRA, 8 bits per channel, unsigned normalized
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatBGRA8:
		return "BGRA8"
	default:
		return "Unknown"
	}
}

// BytesPerPixel returns the size of one pixel in bytes.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatBGRA8:
		return 4
	default:
		return 0
	}
}

// SurfaceUsage is a set of bind flags for a surface.
type SurfaceUsage uint32

const (
	UsageRenderTarget SurfaceUsage = 1 << iota
	UsageShaderResource
)

// SurfaceDesc describes a 2-D GPU surface.
type SurfaceDesc struct {
	Width       int
	Height      int
	Format      PixelFormat
	SampleCount int
	MipLevels   int
	Usage       SurfaceUsage
	CPUAccess   bool
}

// FrameSurfaceDesc returns the description of the decode target surface:
// BGRA, single sample, single mip, render target and shader resource,
// no CPU access.
func FrameSurfaceDesc(width, height int) SurfaceDesc {
	return SurfaceDesc{
		Width:       width,
		Height:      height,
		Format:      PixelFormatBGRA8,
		SampleCount: 1,
		MipLevels:   1,
		Usage:       UsageRenderTarget | UsageShaderResource,
	}
}

// Surface is a GPU-resident 2-D image. The handle given to a frame source
// only allows writing decoded frames.
type Surface interface {
	Width() int
	Height() int
	Format() PixelFormat
	// WritePixels replaces the whole surface content with tightly packed pixels.
	WritePixels(pix []byte) error
	Release() error
}

// SurfaceView is a read-only view used to sample a surface while compositing.
type SurfaceView interface {
	Width() int
	Height() int
	Release() error
}

// Effect is a compiled shader program. Its concrete type is backend specific.
// Effects holding device memory also implement Releaser.
type Effect interface {
	Name() string
}

// Releaser frees device resources.
type Releaser interface {
	Release() error
}

// ContentLoader resolves named assets, like effects, for a device backend.
type ContentLoader interface {
	LoadEffect(name string) (Effect, error)
}

// SortMode controls when queued sprites are rasterized.
type SortMode int

const (
	SortDeferred  SortMode = iota // draw everything at End
	SortImmediate                 // draw at every Draw call
)

// BlendState selects how sprite colors are combined with the target.
type BlendState int

const (
	BlendAlpha            BlendState = iota // premultiplied: src + dst*(1-srcA)
	BlendOpaque                             // src
	BlendAdditive                           // src + dst
	BlendNonPremultiplied                   // src*srcA + dst*(1-srcA)
)

func (b BlendState) String() string {
	switch b {
	case BlendAlpha:
		return "AlphaBlend"
	case BlendOpaque:
		return "Opaque"
	case BlendAdditive:
		return "Additive"
	case BlendNonPremultiplied:
		return "NonPremultiplied"
	default:
		return "Unknown"
	}
}

// Filter is a texture filtering mode.
type Filter int

const (
	FilterMinMagMipLinear Filter = iota
	FilterMinMagMipPoint
)

// AddressMode controls sampling outside [0,1].
type AddressMode int

const (
	AddressClamp AddressMode = iota
	AddressWrap
	AddressBorder
)

// Comparison is the sampler comparison function.
type Comparison int

const (
	ComparisonNever Comparison = iota
	ComparisonAlways
)

// SamplingPolicy is an immutable sampler description.
type SamplingPolicy struct {
	Filter        Filter
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	BorderColor   Color
	Comparison    Comparison
	MaxAnisotropy int
	MipLODBias    float32
	MinLOD        float32
	MaxLOD        float32
}

// VideoSamplingPolicy is the sampler used for the video plane: linear
// filtering, clamped addressing, black border, unrestricted LOD range.
func VideoSamplingPolicy() SamplingPolicy {
	return SamplingPolicy{
		Filter:        FilterMinMagMipLinear,
		AddressU:      AddressClamp,
		AddressV:      AddressClamp,
		AddressW:      AddressClamp,
		BorderColor:   Color{0, 0, 0, 1},
		Comparison:    ComparisonNever,
		MaxAnisotropy: 16,
		MipLODBias:    0,
		MinLOD:        -math.MaxFloat32,
		MaxLOD:        math.MaxFloat32,
	}
}

// Color is a linear RGBA color with float components. Components are not
// clamped, so tints outside [0,1] are representable.
type Color struct {
	R, G, B, A float32
}

var (
	White          = Color{1, 1, 1, 1}
	CornflowerBlue = Color{100.0 / 255, 149.0 / 255, 237.0 / 255, 1}
)

// Mul multiplies two colors component-wise.
func (c Color) Mul(o Color) Color {
	return Color{c.R * o.R, c.G * o.G, c.B * o.B, c.A * o.A}
}

// Rectangle is a screen-space rectangle in pixels.
type Rectangle struct {
	X, Y          float32
	Width, Height float32
}

// Empty reports whether the rectangle has no area.
func (r Rectangle) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// SpriteBatch groups textured quads that share blend, sampling and effect state.
type SpriteBatch interface {
	Begin(mode SortMode, blend BlendState, sampler SamplingPolicy, effect Effect) error
	Draw(view SurfaceView, dst Rectangle, tint Color) error
	End() error
	Release() error
}

// Device creates GPU resources. Window and device lifetime belong to the caller.
type Device interface {
	// BackBufferSize returns the current size of the render target presented to the display.
	BackBufferSize() (width, height int)
	CreateSurface(desc SurfaceDesc) (Surface, error)
	CreateView(s Surface) (SurfaceView, error)
	CreateSpriteBatch() (SpriteBatch, error)
}
