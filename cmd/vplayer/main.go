package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eyevinn/videoplane/internal"
	"github.com/Eyevinn/videoplane/internal/ebitengine"
	"github.com/Eyevinn/videoplane/internal/gstreamer"
	"github.com/spf13/afero"
)

const (
	appName = "vplayer"
)

var usg = `%s plays a looping background video as a full-screen video plane.

Keys: Escape quits, Space pauses and resumes, R restarts from the beginning.

Usage of %s:
`

type options struct {
	configFile string
	video      string
	mediaDir   string
	effect     string
	contentDir string
	alpha      float64
	decoder    string
	headless   bool
	duration   time.Duration
	logLevel   string
	logFile    string
	version    bool
}

func parseOptions(fs *flag.FlagSet, args []string) (*options, error) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, usg, appName, appName)
		fmt.Fprintf(os.Stderr, "%s [options]\n\noptions:\n", appName)
		fs.PrintDefaults()
	}

	opts := options{}
	fs.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&opts.video, "video", "", "video file, relative to the media directory (overrides config)")
	fs.StringVar(&opts.mediaDir, "media-dir", "", "media directory (overrides config)")
	fs.StringVar(&opts.effect, "effect", "", "effect name (overrides config)")
	fs.StringVar(&opts.contentDir, "content", "", "directory with Kage effects (overrides config)")
	fs.Float64Var(&opts.alpha, "alpha", -1, "global alpha, negative keeps the configured value")
	fs.StringVar(&opts.decoder, "decoder", "", "decoder: gstreamer or pattern (overrides config)")
	fs.BoolVar(&opts.headless, "headless", false, "run without a window using the software device")
	fs.DurationVar(&opts.duration, "duration", 0, "stop a headless run after this long, 0 runs until interrupted")
	fs.StringVar(&opts.logLevel, "loglevel", "", "log level: debug, info, warning, error (overrides config)")
	fs.StringVar(&opts.logFile, "logfile", "", "rotated log file instead of stderr (overrides config)")
	fs.BoolVar(&opts.version, "version", false, fmt.Sprintf("Get %s version", appName))
	err := fs.Parse(args[1:])
	return &opts, err
}

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	opts, err := parseOptions(fs, args)

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.version {
		fmt.Printf("%s %s\n", appName, internal.GetVersion())
		return nil
	}

	osFs := afero.NewOsFs()
	cfg, err := internal.LoadConfig(osFs, opts.configFile)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, opts)

	logger, closer := internal.NewLogger(cfg.LogOptions())
	defer closer.Close()
	slog.SetDefault(logger)

	var decoder internal.Decoder
	switch cfg.Video.Decoder {
	case "gstreamer":
		decoder = gstreamer.New(logger)
	case "pattern":
		decoder = internal.NewPatternDecoder()
	default:
		return fmt.Errorf("unknown decoder %q", cfg.Video.Decoder)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if opts.headless {
		return runHeadless(ctx, cfg, osFs, decoder, logger)
	}
	return runWindow(cfg, osFs, decoder, logger)
}

func applyOverrides(cfg *internal.Config, opts *options) {
	if opts.video != "" {
		cfg.Video.File = opts.video
	}
	if opts.mediaDir != "" {
		cfg.Video.MediaDir = opts.mediaDir
	}
	if opts.effect != "" {
		cfg.Video.Effect = opts.effect
	}
	if opts.contentDir != "" {
		cfg.Video.ContentDir = opts.contentDir
	}
	if opts.alpha >= 0 {
		cfg.Video.Alpha = float32(opts.alpha)
	}
	if opts.decoder != "" {
		cfg.Video.Decoder = opts.decoder
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
}

func runHeadless(ctx context.Context, cfg internal.Config, fsys afero.Fs, decoder internal.Decoder, logger *slog.Logger) error {
	dev := internal.NewSoftwareDevice(cfg.Display.Width, cfg.Display.Height)
	renderer, err := internal.NewVideoPlaneRenderer(internal.RendererDeps{
		Device:  dev,
		Content: internal.NewSoftwareContent(),
		Decoder: decoder,
		Fs:      fsys,
		Logger:  logger,
	}, cfg.RendererConfig())
	if err != nil {
		return err
	}
	if err := renderer.Initialize(); err != nil {
		return err
	}
	driver := internal.NewHeadlessDriver(dev, cfg.Display.RefreshRate, logger)
	runErr := driver.Run(ctx, renderer)
	stats := renderer.Stats()
	logger.Info("playback finished", "frames", driver.Frame(), "decoded", stats.FramesDecoded,
		"shown", stats.FramesShown, "dropped", stats.FramesDropped, "loops", stats.Loops)
	return errors.Join(runErr, renderer.Shutdown())
}

func runWindow(cfg internal.Config, fsys afero.Fs, decoder internal.Decoder, logger *slog.Logger) error {
	dev := ebitengine.NewDevice(cfg.Display.Width, cfg.Display.Height)
	renderer, err := internal.NewVideoPlaneRenderer(internal.RendererDeps{
		Device:  dev,
		Content: ebitengine.NewKageContent(fsys, cfg.Video.ContentDir),
		Decoder: decoder,
		Fs:      fsys,
		Logger:  logger,
	}, cfg.RendererConfig())
	if err != nil {
		return err
	}
	return ebitengine.Run(dev, renderer, ebitengine.Options{
		Title:          cfg.Display.Title,
		RefreshRate:    cfg.Display.RefreshRate,
		Fullscreen:     cfg.Display.Fullscreen,
		VSync:          cfg.Display.VSync,
		LegacyGraphics: cfg.Display.LegacyGraphics,
		Logger:         logger,
	})
}
