package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const clipPath = "/videos/clip.mp4"

type sourceHarness struct {
	fs      afero.Fs
	surface *softSurface
	clock   *RenderClock
	src     *FrameSource
}

func newSourceHarness(t *testing.T, c clipParams, dec Decoder, prefetch bool) *sourceHarness {
	t.Helper()
	fsys := afero.NewMemMapFs()
	writeClip(t, fsys, clipPath, c)
	dev := NewSoftwareDevice(c.width, c.height)
	surface, err := dev.CreateSurface(FrameSurfaceDesc(c.width, c.height))
	require.NoError(t, err)
	if dec == nil {
		dec = NewPatternDecoder()
	}
	clock := &RenderClock{}
	src := NewFrameSource(FrameSourceOptions{Fs: fsys, Decoder: dec, Clock: clock, Prefetch: prefetch})
	require.NoError(t, src.Initialize(surface))
	t.Cleanup(func() { src.Shutdown() })
	return &sourceHarness{fs: fsys, surface: surface.(*softSurface), clock: clock, src: src}
}

func (h *sourceHarness) shown() int {
	return PatternFrameIndex(h.surface.Snapshot().Pix)
}

// tick sets the clock to frame k of a clip at fps frames per second.
func (h *sourceHarness) tick(k, fps int) {
	h.clock.Set(time.Duration(int64(k) * int64(time.Second) / int64(fps)))
}

func TestFrameSourceOpenMissing(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	res := h.src.Open("/videos/missing.mp4")
	require.False(t, res.OK())
	require.Equal(t, NotLoaded, res.State)
	require.ErrorIs(t, res.Err, ErrSourceUnavailable)
	require.False(t, h.src.Loaded())

	before := h.surface.Snapshot()
	h.src.Pause()
	h.src.Play()
	h.src.SetPlaybackPosition(time.Second)
	h.tick(10, 25)
	require.False(t, h.src.PullFrame())
	require.Equal(t, NotLoaded, h.src.State())
	require.Equal(t, time.Duration(0), h.src.Position())
	require.Equal(t, before.Pix, h.surface.Snapshot().Pix)

	require.NoError(t, h.src.Shutdown())
	require.NoError(t, h.src.Shutdown())
}

func TestFrameSourceOpenOrder(t *testing.T) {
	src := NewFrameSource(FrameSourceOptions{Fs: afero.NewMemMapFs()})
	res := src.Open(clipPath)
	require.ErrorIs(t, res.Err, ErrNotInitialized)
	require.Equal(t, NotLoaded, res.State)
	require.Error(t, src.Initialize(nil))

	h := newSourceHarness(t, clip25, nil, false)
	require.ErrorIs(t, h.src.Initialize(h.surface), ErrAlreadyInitialized)
	require.True(t, h.src.Open(clipPath).OK())
	res = h.src.Open(clipPath)
	require.ErrorIs(t, res.Err, ErrAlreadyOpen)
	require.Equal(t, Ready, res.State)
}

func TestFrameSourceStates(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	res := h.src.Open(clipPath)
	require.True(t, res.OK())
	require.Equal(t, Ready, h.src.State())
	require.Equal(t, clip25.info().LoopDuration(), h.src.Info().LoopDuration())

	require.True(t, h.src.PullFrame())
	require.Equal(t, Playing, h.src.State())
	require.Equal(t, 0, h.shown())
	require.False(t, h.src.PullFrame(), "no new frame due")

	h.src.Pause()
	require.Equal(t, Paused, h.src.State())
	h.src.Play()
	require.Equal(t, Playing, h.src.State())
}

func TestFrameSourceLoopsForever(t *testing.T) {
	h := newSourceHarness(t, clip2s, nil, false)
	require.True(t, h.src.Open(clipPath).OK())

	wraps := 0
	prev := -1
	// 5 seconds at 30 fps
	for k := 0; k < 150; k++ {
		h.tick(k, 30)
		require.True(t, h.src.PullFrame(), "frame %d", k)
		idx := h.shown()
		require.Equal(t, k%clip2s.nrSamples, idx)
		if idx < prev {
			wraps++
		}
		prev = idx
	}
	require.GreaterOrEqual(t, wraps, 2)
	stats := h.src.Stats()
	require.Equal(t, int64(2), stats.Loops)
	require.Equal(t, int64(150), stats.FramesShown)
	require.Equal(t, int64(0), stats.FramesDropped)
	require.Equal(t, clip2s.info().SampleTime(29), stats.LastFramePTS)
}

func TestFrameSourcePauseFreezes(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	require.True(t, h.src.Open(clipPath).OK())
	for k := 0; k <= 5; k++ {
		h.tick(k, 25)
		h.src.PullFrame()
	}
	require.Equal(t, 5, h.shown())

	h.src.Pause()
	for k := 6; k < 30; k++ {
		h.tick(k, 25)
		require.False(t, h.src.PullFrame())
		require.Equal(t, 5, h.shown())
	}
	require.Equal(t, 200*time.Millisecond, h.src.Position())

	// resume continues where playback was paused
	h.src.Play()
	h.tick(30, 25)
	require.True(t, h.src.PullFrame())
	require.Equal(t, 6, h.shown())
}

func TestFrameSourceRestart(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	require.True(t, h.src.Open(clipPath).OK())
	for k := 0; k <= 12; k++ {
		h.tick(k, 25)
		h.src.PullFrame()
	}
	h.src.Pause()
	h.tick(20, 25)

	h.src.SetPlaybackPosition(0)
	h.src.Play()
	require.Equal(t, Playing, h.src.State())
	require.Equal(t, time.Duration(0), h.src.Position())
	require.True(t, h.src.PullFrame())
	require.Equal(t, 0, h.shown())

	h.tick(21, 25)
	require.True(t, h.src.PullFrame())
	require.Equal(t, 1, h.shown())
}

func TestFrameSourceSeek(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	require.True(t, h.src.Open(clipPath).OK())

	h.src.SetPlaybackPosition(2500 * time.Millisecond)
	require.Equal(t, 500*time.Millisecond, h.src.Position(), "wraps at loop duration")
	require.True(t, h.src.PullFrame())
	require.Equal(t, 12, h.shown())

	h.src.SetPlaybackPosition(-time.Second)
	require.Equal(t, time.Duration(0), h.src.Position())
	require.True(t, h.src.PullFrame())
	require.Equal(t, 0, h.shown())
}

func TestFrameSourceDropsLateFrames(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	require.True(t, h.src.Open(clipPath).OK())
	require.True(t, h.src.PullFrame())

	h.tick(3, 25)
	require.True(t, h.src.PullFrame())
	require.Equal(t, 3, h.shown())
	stats := h.src.Stats()
	require.Equal(t, int64(2), stats.FramesDropped)
	require.Equal(t, int64(4), stats.FramesDecoded)
	require.Equal(t, int64(2), stats.FramesShown)

	// further behind, the decoder seeks instead of decoding the late frames
	h.tick(20, 25)
	require.True(t, h.src.PullFrame())
	require.Equal(t, 20, h.shown())
	stats = h.src.Stats()
	require.Equal(t, int64(2), stats.FramesDropped)
	require.Equal(t, int64(5), stats.FramesDecoded)
	require.Equal(t, int64(3), stats.FramesShown)
}

func TestFrameSourceInlinePullDoesNotDecodeThrough(t *testing.T) {
	const delay = 50 * time.Millisecond
	dec := NewPatternDecoder()
	dec.FrameDelay = delay
	h := newSourceHarness(t, clip25, dec, false)
	require.True(t, h.src.Open(clipPath).OK())

	h.tick(20, 25)
	start := time.Now()
	require.True(t, h.src.PullFrame())
	elapsed := time.Since(start)
	require.Equal(t, 20, h.shown())
	require.LessOrEqual(t, h.src.Stats().FramesDecoded, int64(2))
	require.Less(t, elapsed, 10*delay)
}

func TestFrameSourceResyncsWhenFarBehind(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, false)
	require.True(t, h.src.Open(clipPath).OK())
	require.True(t, h.src.PullFrame())

	h.clock.Set(5020 * time.Millisecond)
	require.True(t, h.src.PullFrame())
	require.Equal(t, 25, h.shown())
	require.Equal(t, int64(2), h.src.Stats().FramesDecoded)
}

func TestFrameSourceShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	dec := NewMockDecoder(ctrl)
	dec.EXPECT().Open(gomock.Any(), clip25.width, clip25.height).Return(nil)
	dec.EXPECT().Close().Return(nil).Times(1)

	h := newSourceHarness(t, clip25, dec, false)
	require.True(t, h.src.Open(clipPath).OK())
	require.NoError(t, h.src.Shutdown())
	require.NoError(t, h.src.Shutdown())

	require.False(t, h.src.PullFrame())
	require.Equal(t, NotLoaded, h.src.State())
	require.ErrorIs(t, h.src.Open(clipPath).Err, ErrClosed)
	require.ErrorIs(t, h.src.Initialize(h.surface), ErrClosed)

	// the stream was closed
	_, err := h.src.src.Stream.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestFrameSourceShutdownDuringOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	dec := NewMockDecoder(ctrl)
	var h *sourceHarness
	var opened *MediaSource
	dec.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(src *MediaSource, _, _ int) error {
			opened = src
			require.NoError(t, h.src.Shutdown())
			return nil
		})
	dec.EXPECT().Close().Return(nil).Times(1)

	h = newSourceHarness(t, clip25, dec, true)
	res := h.src.Open(clipPath)
	require.ErrorIs(t, res.Err, ErrClosed)
	require.Equal(t, NotLoaded, res.State)
	require.Equal(t, NotLoaded, h.src.State())
	require.False(t, h.src.PullFrame())

	_, err := opened.Stream.Read(make([]byte, 1))
	require.Error(t, err, "stream closed")
}

func TestFrameSourceDecoderOpenFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	dec := NewMockDecoder(ctrl)
	dec.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("no plugin for avc1"))

	h := newSourceHarness(t, clip25, dec, false)
	res := h.src.Open(clipPath)
	require.ErrorIs(t, res.Err, ErrSourceUnavailable)
	require.ErrorContains(t, res.Err, "no plugin for avc1")
	require.Equal(t, NotLoaded, h.src.State())
	require.NoError(t, h.src.Shutdown())
}

func TestFrameSourceDecodeStallKeepsLastFrame(t *testing.T) {
	ctrl := gomock.NewController(t)
	dec := NewMockDecoder(ctrl)
	dec.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	dec.EXPECT().ReadFrame(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, dst []byte) (time.Duration, error) {
			PaintPatternFrame(dst, clip25.width, clip25.height, 7)
			return 0, nil
		})
	dec.EXPECT().ReadFrame(gomock.Any(), gomock.Any()).Return(time.Duration(0), errors.New("corrupt slice")).AnyTimes()
	dec.EXPECT().Seek(gomock.Any()).Return(nil).AnyTimes()
	dec.EXPECT().Close().Return(nil)

	h := newSourceHarness(t, clip25, dec, false)
	require.True(t, h.src.Open(clipPath).OK())
	require.True(t, h.src.PullFrame())
	require.Equal(t, 7, h.shown())
	for k := 1; k < 10; k++ {
		h.tick(k, 25)
		require.False(t, h.src.PullFrame())
		require.Equal(t, 7, h.shown())
	}
	require.Equal(t, int64(1), h.src.Stats().FramesShown)
	require.Equal(t, Playing, h.src.State())
}

func TestFrameSourcePrefetch(t *testing.T) {
	h := newSourceHarness(t, clip25, nil, true)
	require.True(t, h.src.Open(clipPath).OK())

	// 4.8 seconds, wrapping twice
	for k := 0; k < 120; k++ {
		h.tick(k, 25)
		require.Eventually(t, h.src.PullFrame, time.Second, time.Millisecond, "frame %d", k)
		require.Equal(t, k%clip25.nrSamples, h.shown())
	}
	require.Equal(t, int64(2), h.src.Stats().Loops)

	h.src.Pause()
	h.tick(200, 25)
	require.Never(t, h.src.PullFrame, 50*time.Millisecond, time.Millisecond)

	h.src.SetPlaybackPosition(0)
	h.src.Play()
	require.Eventually(t, h.src.PullFrame, time.Second, time.Millisecond)
	require.Equal(t, 0, h.shown())
	require.NoError(t, h.src.Shutdown())
}

func TestFrameSourcePrefetchShutdownDuringDecode(t *testing.T) {
	dec := NewPatternDecoder()
	dec.FrameDelay = time.Hour
	h := newSourceHarness(t, clip25, dec, true)
	require.True(t, h.src.Open(clipPath).OK())
	require.False(t, h.src.PullFrame())

	done := make(chan error, 1)
	go func() { done <- h.src.Shutdown() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown blocked on an in-flight decode")
	}
}

func TestPlaybackStateString(t *testing.T) {
	require.Equal(t, "NotLoaded", NotLoaded.String())
	require.Equal(t, "Ready", Ready.String())
	require.Equal(t, "Playing", Playing.String())
	require.Equal(t, "Paused", Paused.String())
	require.Equal(t, "PlaybackState(9)", PlaybackState(9).String())
}
