package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Display limits
const (
	MinBackBufferWidth  = 640
	MinBackBufferHeight = 480
	MinRefreshRate      = 5
)

// Config is the player configuration file.
type Config struct {
	Display DisplayConfig `yaml:"display"`
	Video   VideoConfig   `yaml:"video"`
	Log     LogConfig     `yaml:"log"`
}

// DisplayConfig selects the window and device settings.
type DisplayConfig struct {
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	RefreshRate    int    `yaml:"refreshRate"`
	Fullscreen     bool   `yaml:"fullscreen"`
	VSync          bool   `yaml:"vsync"`
	AntiAliasing   bool   `yaml:"antiAliasing"`
	LegacyGraphics bool   `yaml:"legacyGraphics"` // most compatible graphics library only
	Title          string `yaml:"title"`
}

// VideoConfig selects the video and how it is composited.
type VideoConfig struct {
	File        string    `yaml:"file"`
	MediaDir    string    `yaml:"mediaDir"`
	Effect      string    `yaml:"effect"`
	ContentDir  string    `yaml:"contentDir"`
	Alpha       float32   `yaml:"alpha"`
	Destination Rectangle `yaml:"destination"`
	Decoder     string    `yaml:"decoder"`
	Prefetch    bool      `yaml:"prefetch"`
}

// LogConfig selects level and destination of the log.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
}

// DefaultConfig returns the configuration used for absent settings.
func DefaultConfig() Config {
	return Config{
		Display: DisplayConfig{
			Width:          1920,
			Height:         1080,
			RefreshRate:    60,
			Fullscreen:     true,
			VSync:          true,
			AntiAliasing:   true,
			LegacyGraphics: true,
			Title:          "videoplane",
		},
		Video: VideoConfig{
			File:       "background.mp4",
			MediaDir:   DefaultMediaDir(),
			ContentDir: "content",
			Alpha:      1,
			Decoder:    "gstreamer",
			Prefetch:   true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// DefaultMediaDir returns the user's video directory: $XDG_VIDEOS_DIR, or
// Videos in the home directory.
func DefaultMediaDir() string {
	if dir := os.Getenv("XDG_VIDEOS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Videos")
}

// LoadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(fsys afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize applies the display limits.
func (c *Config) Normalize() {
	c.Display.Width = max(c.Display.Width, MinBackBufferWidth)
	c.Display.Height = max(c.Display.Height, MinBackBufferHeight)
	c.Display.RefreshRate = max(c.Display.RefreshRate, MinRefreshRate)
	if c.Video.MediaDir == "" {
		c.Video.MediaDir = DefaultMediaDir()
	}
}

// VideoPath resolves the video file against the media directory.
func (c Config) VideoPath() string {
	if c.Video.File == "" || filepath.IsAbs(c.Video.File) {
		return c.Video.File
	}
	return filepath.Join(c.Video.MediaDir, c.Video.File)
}

// LogOptions converts the log section for NewLogger.
func (c Config) LogOptions() LogOptions {
	return LogOptions{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// RendererConfig converts the video section for NewVideoPlaneRenderer.
func (c Config) RendererConfig() RendererConfig {
	return RendererConfig{
		FilePath:    c.VideoPath(),
		EffectName:  c.Video.Effect,
		Destination: c.Video.Destination,
		Alpha:       c.Video.Alpha,
		Prefetch:    c.Video.Prefetch,
	}
}
