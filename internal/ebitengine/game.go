package ebitengine

import (
	"errors"
	"image/color"
	"log/slog"
	"time"

	"github.com/Eyevinn/videoplane/internal"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

var clearColor = color.RGBA{R: 100, G: 149, B: 237, A: 255}

// Options configure the window and the loop.
type Options struct {
	Title          string
	RefreshRate    int
	Fullscreen     bool
	VSync          bool
	LegacyGraphics bool
	Logger         *slog.Logger
}

// Controllable is implemented by systems that expose playback controls.
type Controllable interface {
	Controller() *internal.PlaybackController
}

type game struct {
	dev   *Device
	sys   internal.System
	log   *slog.Logger
	tps   int
	ticks int64
	gt    internal.GameTime
	err   error
}

func (g *game) Update() error {
	if g.err != nil {
		return g.err
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if c, ok := g.sys.(Controllable); ok {
		switch {
		case inpututil.IsKeyJustPressed(ebiten.KeySpace):
			c.Controller().Toggle()
			g.log.Info("playback toggled", "state", c.Controller().State())
		case inpututil.IsKeyJustPressed(ebiten.KeyR):
			c.Controller().Restart()
			g.log.Info("playback restarted")
		}
	}
	total := time.Duration(g.ticks * int64(time.Second) / int64(g.tps))
	g.gt = internal.GameTime{Total: total, Elapsed: total - g.gt.Total}
	g.ticks++
	return g.sys.Update(g.gt)
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(clearColor)
	g.dev.SetTarget(screen)
	if err := g.sys.Draw(g.gt); err != nil && g.err == nil {
		g.log.Error("draw failed", "error", err)
		g.err = err
	}
	g.dev.SetTarget(nil)
}

func (g *game) Layout(_, _ int) (int, int) {
	return g.dev.BackBufferSize()
}

// Run initializes sys, runs the window loop until Escape is pressed or the
// window is closed, and shuts sys down.
func Run(dev *Device, sys internal.System, opts Options) (err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tps := max(opts.RefreshRate, internal.MinRefreshRate)
	w, h := dev.BackBufferSize()
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowSize(w, h)
	ebiten.SetFullscreen(opts.Fullscreen)
	ebiten.SetVsyncEnabled(opts.VSync)
	ebiten.SetTPS(tps)
	runOpts := &ebiten.RunGameOptions{}
	if opts.LegacyGraphics {
		runOpts.GraphicsLibrary = ebiten.GraphicsLibraryOpenGL
	}

	if err := sys.Initialize(); err != nil {
		return err
	}
	defer func() {
		if serr := sys.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()
	logger.Info("window loop started", "width", w, "height", h, "tps", tps,
		"fullscreen", opts.Fullscreen, "vsync", opts.VSync, "legacyGraphics", opts.LegacyGraphics)
	g := &game{dev: dev, sys: sys, log: logger, tps: tps}
	if err := ebiten.RunGameWithOptions(g, runOpts); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}
