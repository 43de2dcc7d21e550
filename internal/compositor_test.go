package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompositorDraw(t *testing.T) {
	src := Color{0.2, 0.4, 0.6, 1}
	testCases := []struct {
		desc   string
		effect string
		alpha  float32
		want   func(dst Color) Color
	}{
		{
			desc:  "opaque",
			alpha: 1,
			want:  func(Color) Color { return src },
		},
		{
			desc:  "transparent",
			alpha: 0,
			want:  func(dst Color) Color { return Color{src.R + dst.R, src.G + dst.G, src.B + dst.B, 1} },
		},
		{
			desc:  "half",
			alpha: 0.5,
			want: func(dst Color) Color {
				return Color{src.R + dst.R*0.5, src.G + dst.G*0.5, src.B + dst.B*0.5, 1}
			},
		},
		{
			desc:  "unclamped",
			alpha: 1.5,
			want: func(dst Color) Color {
				return Color{src.R - dst.R*0.5, src.G - dst.G*0.5, src.B - dst.B*0.5, 1}
			},
		},
		{
			desc:   "effect",
			effect: "invert",
			alpha:  1,
			want:   func(Color) Color { return Color{0.8, 0.6, 0.4, 1} },
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			dev := NewSoftwareDevice(4, 4)
			dev.Clear(CornflowerBlue)
			dst := dev.BackBuffer().At(0, 0)
			c, err := NewCompositor(dev)
			require.NoError(t, err)
			require.NoError(t, c.LoadEffect(NewSoftwareContent(), tc.effect))
			v := solidView(t, dev, 2, 2, src)

			require.NoError(t, c.Draw(v, Rectangle{X: 2, Y: 2, Width: 2, Height: 2}, tc.alpha))
			requireColor(t, dst, dev.BackBuffer().At(1, 1))
			want := tc.want(dst)
			clamp := func(v float32) float32 { return min(max(v, 0), 1) }
			requireColor(t, Color{clamp(want.R), clamp(want.G), clamp(want.B), clamp(want.A)}, dev.BackBuffer().At(3, 3))
		})
	}
}

func TestCompositorEffects(t *testing.T) {
	dev := NewSoftwareDevice(4, 4)
	c, err := NewCompositor(dev)
	require.NoError(t, err)
	require.Nil(t, c.Effect())

	require.NoError(t, c.LoadEffect(nil, ""), "pass-through needs no loader")
	require.Error(t, c.LoadEffect(nil, "grayscale"))
	require.ErrorIs(t, c.LoadEffect(NewSoftwareContent(), "VideoShader"), ErrEffectNotFound)
	require.Nil(t, c.Effect())

	require.NoError(t, c.LoadEffect(NewSoftwareContent(), "sepia"))
	require.Equal(t, "sepia", c.Effect().Name())
	require.NoError(t, c.LoadEffect(NewSoftwareContent(), ""))
	require.Nil(t, c.Effect())
}

func TestCompositorErrors(t *testing.T) {
	dev := NewSoftwareDevice(4, 4)
	c, err := NewCompositor(dev)
	require.NoError(t, err)
	require.ErrorIs(t, c.Draw(nil, Rectangle{Width: 4, Height: 4}, 1), ErrNotInitialized)

	other := NewSoftwareDevice(4, 4)
	v := solidView(t, other, 2, 2, White)
	c.effect = fakeEffect("kage")
	require.ErrorIs(t, c.Draw(v, Rectangle{Width: 4, Height: 4}, 1), ErrUnsupportedEffect)

	// the batch must be usable again after a failed draw
	c.effect = nil
	require.NoError(t, c.Draw(v, Rectangle{Width: 4, Height: 4}, 1))
}

func TestCompositorRelease(t *testing.T) {
	dev := NewSoftwareDevice(4, 4)
	c, err := NewCompositor(dev)
	require.NoError(t, err)
	content := &releasableContent{}

	require.NoError(t, c.LoadEffect(content, "first"))
	require.NoError(t, c.LoadEffect(content, "second"))
	require.Len(t, content.loaded, 2)
	require.Equal(t, 1, content.loaded[0].released, "replaced effect is released")
	require.Zero(t, content.loaded[1].released)

	require.Equal(t, 1, dev.LiveBatches())
	require.NoError(t, c.Release())
	require.NoError(t, c.Release())
	require.Equal(t, 1, content.loaded[1].released)
	require.Equal(t, 0, dev.LiveBatches())
	require.Nil(t, c.Effect())

	v := solidView(t, dev, 2, 2, White)
	require.ErrorIs(t, c.Draw(v, Rectangle{Width: 4, Height: 4}, 1), ErrClosed)
}
