package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// GameTime is the timing information handed to a System each frame.
type GameTime struct {
	Total   time.Duration // time since the loop started
	Elapsed time.Duration // time since the previous frame
}

// System is a component driven by a render loop. The driver calls
// Initialize once, then Update and Draw once per frame in that order, and
// Shutdown at exit.
type System interface {
	Initialize() error
	Update(gt GameTime) error
	Draw(gt GameTime) error
	Shutdown() error
}

// RendererDeps are the collaborators of a VideoPlaneRenderer.
type RendererDeps struct {
	Device  Device
	Content ContentLoader // may be nil when no effect is configured
	Decoder Decoder       // defaults to a PatternDecoder
	Fs      afero.Fs      // defaults to the OS file system
	// Clock drives playback. When nil, the renderer advances its own clock
	// from GameTime.Total.
	Clock  Clock
	Logger *slog.Logger
}

// RendererConfig holds the options of a VideoPlaneRenderer.
type RendererConfig struct {
	FilePath    string
	EffectName  string
	Destination Rectangle // empty means the whole back buffer
	Alpha       float32
	Prefetch    bool
}

// VideoPlaneRenderer plays a looping video as a textured quad.
type VideoPlaneRenderer struct {
	deps RendererDeps
	cfg  RendererConfig
	id   string
	log  *slog.Logger

	renderClock *RenderClock
	bridge      TextureBridge
	compositor  *Compositor
	source      *FrameSource
	controller  *PlaybackController
	openResult  OpenResult

	mu          sync.Mutex
	alpha       float32
	destination Rectangle
	initialized bool
	shutdown    bool
}

var _ System = (*VideoPlaneRenderer)(nil)

// NewVideoPlaneRenderer creates a renderer. Nothing is allocated on the
// device until Initialize.
func NewVideoPlaneRenderer(deps RendererDeps, cfg RendererConfig) (*VideoPlaneRenderer, error) {
	if deps.Device == nil {
		return nil, fmt.Errorf("renderer: no device")
	}
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Decoder == nil {
		deps.Decoder = NewPatternDecoder()
	}
	r := &VideoPlaneRenderer{
		deps:        deps,
		cfg:         cfg,
		id:          uuid.NewString(),
		alpha:       cfg.Alpha,
		destination: cfg.Destination,
	}
	r.log = deps.Logger.With("renderer", r.id)
	if deps.Clock == nil {
		r.renderClock = &RenderClock{}
		r.deps.Clock = r.renderClock
	}
	r.controller = NewPlaybackController(nil)
	return r, nil
}

// ID returns the instance id used in log records.
func (r *VideoPlaneRenderer) ID() string {
	return r.id
}

// Initialize loads the effect, creates the sprite batch and the frame
// surface, and opens the video. A missing or unreadable video is not an
// error; the renderer then draws an empty surface and the controller
// ignores requests. Device resource failures are returned.
func (r *VideoPlaneRenderer) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return ErrClosed
	}
	if r.initialized {
		return ErrAlreadyInitialized
	}

	compositor, err := NewCompositor(r.deps.Device)
	if err != nil {
		return err
	}
	if err := compositor.LoadEffect(r.deps.Content, r.cfg.EffectName); err != nil {
		r.log.Warn("effect not loaded, drawing without effect", "effect", r.cfg.EffectName, "error", err)
	}
	r.compositor = compositor

	if r.destination.Empty() {
		w, h := r.deps.Device.BackBufferSize()
		r.destination = Rectangle{Width: float32(w), Height: float32(h)}
	}
	w, h := surfaceSize(r.destination)
	if err := r.bridge.Create(r.deps.Device, w, h); err != nil {
		return err
	}

	r.source = NewFrameSource(FrameSourceOptions{
		Fs:       r.deps.Fs,
		Decoder:  r.deps.Decoder,
		Clock:    r.deps.Clock,
		Logger:   r.log,
		Prefetch: r.cfg.Prefetch,
	})
	if err := r.source.Initialize(r.bridge.Target()); err != nil {
		r.bridge.Release()
		return err
	}
	r.openResult = r.source.Open(r.cfg.FilePath)
	r.controller = NewPlaybackController(r.source)
	r.initialized = true
	r.log.Info("renderer initialized", "destination", r.destination, "surface", fmt.Sprintf("%dx%d", w, h),
		"effect", r.cfg.EffectName, "state", r.openResult.State)
	return nil
}

// surfaceSize derives the frame surface size from the destination.
func surfaceSize(dst Rectangle) (int, int) {
	w := int(math.Round(math.Abs(float64(dst.Width))))
	h := int(math.Round(math.Abs(float64(dst.Height))))
	return max(w, 1), max(h, 1)
}

// Update advances the playback clock and pulls the due frame into the
// surface.
func (r *VideoPlaneRenderer) Update(gt GameTime) error {
	if !r.ready() {
		return nil
	}
	if r.renderClock != nil {
		r.renderClock.Set(gt.Total)
	}
	r.source.PullFrame()
	return nil
}

// Draw composites the surface over the destination rectangle.
func (r *VideoPlaneRenderer) Draw(_ GameTime) error {
	if !r.ready() {
		return nil
	}
	r.mu.Lock()
	dst, alpha, compositor := r.destination, r.alpha, r.compositor
	r.mu.Unlock()
	if compositor == nil {
		return nil
	}
	return compositor.Draw(r.bridge.View(), dst, alpha)
}

func (r *VideoPlaneRenderer) ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized && !r.shutdown
}

// Shutdown releases the video and GPU resources. Safe to call more than
// once.
func (r *VideoPlaneRenderer) Shutdown() error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true
	source, compositor := r.source, r.compositor
	r.compositor = nil
	r.mu.Unlock()

	var errs []error
	if source != nil {
		errs = append(errs, source.Shutdown())
	}
	if compositor != nil {
		errs = append(errs, compositor.Release())
	}
	errs = append(errs, r.bridge.Release())
	r.log.Debug("renderer shut down")
	return errors.Join(errs...)
}

// Controller returns the playback controller. Before Initialize and when no
// video was loaded all of its requests are no-ops.
func (r *VideoPlaneRenderer) Controller() *PlaybackController {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller
}

// OpenResult returns the outcome of opening the video during Initialize.
func (r *VideoPlaneRenderer) OpenResult() OpenResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openResult
}

// Stats returns frame source counters.
func (r *VideoPlaneRenderer) Stats() FrameSourceStats {
	r.mu.Lock()
	source := r.source
	r.mu.Unlock()
	if source == nil {
		return FrameSourceStats{}
	}
	return source.Stats()
}

// Alpha returns the global alpha.
func (r *VideoPlaneRenderer) Alpha() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alpha
}

// SetAlpha changes the global alpha. Values outside [0,1] are kept.
func (r *VideoPlaneRenderer) SetAlpha(alpha float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alpha = alpha
}

// Destination returns the destination rectangle. After Initialize it is
// never empty.
func (r *VideoPlaneRenderer) Destination() Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destination
}

// SetDestination changes the destination rectangle. The surface is sized
// from it, so it can only change before Initialize.
func (r *VideoPlaneRenderer) SetDestination(dst Rectangle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized || r.shutdown {
		return ErrAlreadyInitialized
	}
	r.destination = dst
	return nil
}
