package ebitengine

import (
	"fmt"

	"github.com/Eyevinn/videoplane/internal"
	"github.com/hajimehoshi/ebiten/v2"
)

var blendNonPremultiplied = ebiten.Blend{
	BlendFactorSourceRGB:        ebiten.BlendFactorSourceAlpha,
	BlendFactorSourceAlpha:      ebiten.BlendFactorOne,
	BlendFactorDestinationRGB:   ebiten.BlendFactorOneMinusSourceAlpha,
	BlendFactorDestinationAlpha: ebiten.BlendFactorOneMinusSourceAlpha,
	BlendOperationRGB:           ebiten.BlendOperationAdd,
	BlendOperationAlpha:         ebiten.BlendOperationAdd,
}

func blendFor(b internal.BlendState) ebiten.Blend {
	switch b {
	case internal.BlendOpaque:
		return ebiten.BlendCopy
	case internal.BlendAdditive:
		return ebiten.BlendLighter
	case internal.BlendNonPremultiplied:
		return blendNonPremultiplied
	default:
		return ebiten.BlendSourceOver
	}
}

func filterFor(f internal.Filter) ebiten.Filter {
	if f == internal.FilterMinMagMipPoint {
		return ebiten.FilterNearest
	}
	return ebiten.FilterLinear
}

// spriteGeoM maps a srcW x srcH image onto dst.
func spriteGeoM(dst internal.Rectangle, srcW, srcH int) ebiten.GeoM {
	var g ebiten.GeoM
	g.Scale(float64(dst.Width)/float64(srcW), float64(dst.Height)/float64(srcH))
	g.Translate(float64(dst.X), float64(dst.Y))
	return g
}

type sprite struct {
	view *view
	dst  internal.Rectangle
	tint internal.Color
}

type spriteBatch struct {
	dev      *Device
	begun    bool
	mode     internal.SortMode
	blend    ebiten.Blend
	filter   ebiten.Filter
	effect   *Effect
	pending  []sprite
	released bool
}

func (b *spriteBatch) Begin(mode internal.SortMode, blend internal.BlendState, sampler internal.SamplingPolicy, effect internal.Effect) error {
	if b.released {
		return fmt.Errorf("sprite batch: %w", internal.ErrClosed)
	}
	if b.begun {
		return fmt.Errorf("%w: Begin called twice", internal.ErrBatchState)
	}
	var e *Effect
	if effect != nil {
		var ok bool
		if e, ok = effect.(*Effect); !ok {
			return fmt.Errorf("%w: %T on ebitengine device", internal.ErrUnsupportedEffect, effect)
		}
	}
	b.begun = true
	b.mode = mode
	b.blend = blendFor(blend)
	b.filter = filterFor(sampler.Filter)
	b.effect = e
	b.pending = b.pending[:0]
	return nil
}

func (b *spriteBatch) Draw(v internal.SurfaceView, dst internal.Rectangle, tint internal.Color) error {
	if !b.begun {
		return fmt.Errorf("%w: Draw before Begin", internal.ErrBatchState)
	}
	ev, ok := v.(*view)
	if !ok {
		return fmt.Errorf("%w: foreign view %T", internal.ErrResourceCreation, v)
	}
	sp := sprite{view: ev, dst: dst, tint: tint}
	if b.mode == internal.SortImmediate {
		return b.flush(sp)
	}
	b.pending = append(b.pending, sp)
	return nil
}

func (b *spriteBatch) End() error {
	if !b.begun {
		return fmt.Errorf("%w: End before Begin", internal.ErrBatchState)
	}
	b.begun = false
	for _, sp := range b.pending {
		if err := b.flush(sp); err != nil {
			return err
		}
	}
	b.pending = b.pending[:0]
	return nil
}

// Release drops pending sprites. The batch owns no GPU memory itself.
func (b *spriteBatch) Release() error {
	b.released = true
	b.begun = false
	b.pending = nil
	b.effect = nil
	return nil
}

func (b *spriteBatch) flush(sp sprite) error {
	target := b.dev.currentTarget()
	if target == nil {
		return fmt.Errorf("sprite batch: %w: no render target", internal.ErrNotInitialized)
	}
	if sp.dst.Empty() {
		return nil
	}
	img := sp.view.surface.img
	w, h := sp.view.Width(), sp.view.Height()
	if b.effect == nil {
		op := &ebiten.DrawImageOptions{}
		op.GeoM = spriteGeoM(sp.dst, w, h)
		op.ColorScale.Scale(sp.tint.R, sp.tint.G, sp.tint.B, sp.tint.A)
		op.Filter = b.filter
		op.Blend = b.blend
		target.DrawImage(img, op)
		return nil
	}
	op := &ebiten.DrawRectShaderOptions{}
	op.GeoM = spriteGeoM(sp.dst, w, h)
	op.ColorScale.Scale(sp.tint.R, sp.tint.G, sp.tint.B, sp.tint.A)
	op.Blend = b.blend
	op.Images[0] = img
	op.Uniforms = map[string]any{
		"Resolution": []float32{sp.dst.Width, sp.dst.Height},
	}
	target.DrawRectShader(w, h, b.effect.shader, op)
	return nil
}
