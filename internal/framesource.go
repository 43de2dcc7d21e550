package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
)

// PlaybackState is the transport state of a FrameSource.
type PlaybackState int

const (
	NotLoaded PlaybackState = iota
	Ready
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case NotLoaded:
		return "NotLoaded"
	case Ready:
		return "Ready"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// OpenResult reports the outcome of FrameSource.Open.
type OpenResult struct {
	State PlaybackState
	Err   error
}

// OK reports whether the source was loaded.
func (r OpenResult) OK() bool {
	return r.Err == nil && r.State != NotLoaded
}

// FrameSourceStats are counters for observing decode progress. A
// FramesShown value that stops growing while Playing indicates a stalled
// decoder.
type FrameSourceStats struct {
	FramesDecoded int64
	FramesShown   int64
	FramesDropped int64
	Loops         int64
	LastFramePTS  time.Duration
}

// FrameSourceOptions configures a FrameSource.
type FrameSourceOptions struct {
	Fs      afero.Fs
	Decoder Decoder
	Clock   Clock
	Logger  *slog.Logger
	// Prefetch decodes on a background goroutine. When false, frames are
	// decoded inside PullFrame.
	Prefetch bool
}

const (
	// stallRetry is the pause between attempts after a decode error.
	stallRetry = 100 * time.Millisecond
	// maxConsecutiveDrops bounds how many late frames the prefetch worker
	// discards before it hands a late frame over anyway.
	maxConsecutiveDrops = 8
	// maxInlineLag is how many frames inline decoding may fall behind before
	// PullFrame seeks instead of decoding through the late frames.
	maxInlineLag = 4
	freeListSize = 3
)

type decodedFrame struct {
	pix []byte
	pts time.Duration
	at  time.Duration // playback time at which the frame is due
	gen uint64
}

// cursor tracks the decoder position. It belongs to whoever owns the decoder.
type cursor struct {
	gen  uint64
	loop int64
	last time.Duration
}

// FrameSource decodes a looping video file and writes the frame due at the
// current playback position into a GPU surface.
type FrameSource struct {
	fs       afero.Fs
	dec      Decoder
	clock    Clock
	log      *slog.Logger
	prefetch bool

	mu       sync.Mutex
	target   Surface
	looping  bool
	src      *MediaSource
	state    PlaybackState
	playback playbackClock
	gen      uint64
	mailbox  *decodedFrame
	free     [][]byte
	closed   bool
	stalled  bool
	lastPTS  time.Duration

	info     MediaInfo
	frameDur time.Duration
	loopDur  time.Duration
	frameLen int

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	wg     conc.WaitGroup

	// decMu serializes inline decoding against Shutdown.
	decMu   sync.Mutex
	cur     cursor
	pending *decodedFrame

	decoded atomic.Int64
	shown   atomic.Int64
	dropped atomic.Int64
	loops   atomic.Int64
}

// NewFrameSource creates an unbound frame source.
func NewFrameSource(opts FrameSourceOptions) *FrameSource {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	clock := opts.Clock
	if clock == nil {
		clock = NewWallClock()
	}
	dec := opts.Decoder
	if dec == nil {
		dec = NewPatternDecoder()
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	return &FrameSource{
		fs:       fsys,
		dec:      dec,
		clock:    clock,
		log:      logger,
		prefetch: opts.Prefetch,
		playback: playbackClock{clock: clock},
		wake:     make(chan struct{}, 1),
	}
}

// Initialize binds the decoder output to target. It must be called before
// Open and PullFrame.
func (s *FrameSource) Initialize(target Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.target != nil {
		return ErrAlreadyInitialized
	}
	if target == nil {
		return fmt.Errorf("frame source: nil target surface")
	}
	s.target = target
	s.looping = true
	s.frameLen = BGRASize(target.Width(), target.Height())
	return nil
}

// Open loads the video at path and starts playback at position 0. Failures
// are logged and reported through the result; the source then stays
// NotLoaded.
func (s *FrameSource) Open(path string) OpenResult {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return OpenResult{State: NotLoaded, Err: ErrClosed}
	case s.target == nil:
		s.mu.Unlock()
		return OpenResult{State: NotLoaded, Err: ErrNotInitialized}
	case s.src != nil:
		state := s.state
		s.mu.Unlock()
		return OpenResult{State: state, Err: ErrAlreadyOpen}
	}
	width, height := s.target.Width(), s.target.Height()
	s.mu.Unlock()

	src, err := OpenMediaSource(s.fs, path)
	if err != nil {
		s.log.Warn("video not loaded", "path", path, "error", err)
		return OpenResult{State: NotLoaded, Err: err}
	}
	if err := s.dec.Open(src, width, height); err != nil {
		src.Close()
		err = fmt.Errorf("%w: decoder: %v", ErrSourceUnavailable, err)
		s.log.Warn("video not loaded", "path", path, "error", err)
		return OpenResult{State: NotLoaded, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Shutdown ran while the file was being probed.
		s.dec.Close()
		src.Close()
		return OpenResult{State: NotLoaded, Err: ErrClosed}
	}
	src.Looping = s.looping
	s.src = src
	s.info = src.Info
	s.frameDur = src.Info.FrameDuration()
	s.loopDur = src.Info.LoopDuration()
	s.state = Ready
	s.playback.seek(0)
	s.playback.play()
	s.cur = cursor{gen: s.gen}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if s.prefetch {
		ctx, gen := s.ctx, s.gen
		s.wg.Go(func() { s.runPrefetch(ctx, gen) })
	}
	s.log.Info("video loaded", "path", path, "mime", src.MIME, "codec", s.info.Codec,
		"width", s.info.Width, "height", s.info.Height, "fps", s.info.FrameRate(),
		"duration", s.loopDur, "prefetch", s.prefetch)
	return OpenResult{State: Ready}
}

// Loaded reports whether a video was opened and the source is not shut down.
func (s *FrameSource) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != NotLoaded
}

// State returns the current playback state.
func (s *FrameSource) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the probed media info. It is zero until Open succeeds.
func (s *FrameSource) Info() MediaInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Position returns the playback position within the loop.
func (s *FrameSource) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NotLoaded || s.loopDur <= 0 {
		return 0
	}
	return s.playback.position() % s.loopDur
}

// Stats returns a snapshot of the decode counters.
func (s *FrameSource) Stats() FrameSourceStats {
	s.mu.Lock()
	last := s.lastPTS
	s.mu.Unlock()
	return FrameSourceStats{
		FramesDecoded: s.decoded.Load(),
		FramesShown:   s.shown.Load(),
		FramesDropped: s.dropped.Load(),
		Loops:         s.loops.Load(),
		LastFramePTS:  last,
	}
}

// SetPlaybackPosition moves playback to t. Positions past the end wrap
// around and negative positions are treated as 0.
func (s *FrameSource) SetPlaybackPosition(t time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NotLoaded {
		return
	}
	if t < 0 {
		t = 0
	}
	if s.loopDur > 0 {
		t %= s.loopDur
	}
	s.playback.seek(t)
	s.gen++
	if s.mailbox != nil {
		s.recycleLocked(s.mailbox)
		s.mailbox = nil
	}
	s.signal()
}

// Pause freezes frame advancement.
func (s *FrameSource) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready && s.state != Playing {
		return
	}
	s.playback.pause()
	s.state = Paused
}

// Play resumes playback from the current position.
func (s *FrameSource) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return
	}
	s.playback.play()
	s.state = Playing
	s.signal()
}

// PullFrame writes the frame due at the current playback position into the
// target surface if it has not been written yet. It never waits for the
// decoder and reports whether the surface changed.
func (s *FrameSource) PullFrame() bool {
	s.mu.Lock()
	if s.closed || s.state == NotLoaded || s.state == Paused {
		s.mu.Unlock()
		return false
	}
	if !s.prefetch {
		s.mu.Unlock()
		return s.pullInline()
	}
	f := s.mailbox
	if f == nil || f.gen != s.gen || f.at > s.playback.position() {
		s.mu.Unlock()
		return false
	}
	s.mailbox = nil
	s.signal()
	s.mu.Unlock()
	return s.present(f)
}

func (s *FrameSource) pullInline() bool {
	s.decMu.Lock()
	defer s.decMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	ctx, gen, pos := s.ctx, s.gen, s.playback.position()
	s.mu.Unlock()

	if s.needsResync(&s.cur, gen, pos) || pos-s.cur.last > maxInlineLag*s.frameDur {
		if s.pending != nil {
			s.recycle(s.pending)
			s.pending = nil
		}
		if err := s.resync(&s.cur, gen, pos); err != nil {
			s.decodeFailed(err)
			return false
		}
	}
	var best *decodedFrame
	for {
		f := s.pending
		s.pending = nil
		if f == nil {
			var err error
			if f, err = s.decode(ctx, &s.cur); err != nil {
				s.decodeFailed(err)
				break
			}
		}
		if f.at > pos {
			s.pending = f
			break
		}
		if best != nil {
			s.dropped.Add(1)
			s.recycle(best)
		}
		best = f
		if f.at+s.frameDur > pos {
			break
		}
	}
	if best == nil {
		return false
	}
	return s.present(best)
}

// runPrefetch keeps the mailbox filled with the next due frame.
func (s *FrameSource) runPrefetch(ctx context.Context, gen uint64) {
	cur := cursor{gen: gen}
	drops := 0
	for ctx.Err() == nil {
		s.mu.Lock()
		gen, pos := s.gen, s.playback.position()
		full := s.mailbox != nil && s.mailbox.gen == gen
		s.mu.Unlock()

		if s.needsResync(&cur, gen, pos) {
			if err := s.resync(&cur, gen, pos); err != nil {
				s.decodeFailed(err)
				s.wait(ctx, stallRetry)
				continue
			}
			drops = 0
		} else if full {
			s.wait(ctx, 0)
			continue
		}

		f, err := s.decode(ctx, &cur)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.decodeFailed(err)
			s.wait(ctx, stallRetry)
			continue
		}

		s.mu.Lock()
		switch {
		case f.gen != s.gen:
			s.recycleLocked(f)
		case f.at+s.frameDur <= s.playback.position() && drops < maxConsecutiveDrops:
			drops++
			s.dropped.Add(1)
			s.recycleLocked(f)
		default:
			drops = 0
			if s.mailbox != nil {
				s.recycleLocked(s.mailbox)
			}
			s.mailbox = f
		}
		s.mu.Unlock()
	}
}

func (s *FrameSource) needsResync(cur *cursor, gen uint64, pos time.Duration) bool {
	return cur.gen != gen || pos-cur.last > s.loopDur
}

// resync seeks the decoder to the loop offset of pos.
func (s *FrameSource) resync(cur *cursor, gen uint64, pos time.Duration) error {
	var loop int64
	off := pos
	if s.loopDur > 0 {
		loop = int64(pos / s.loopDur)
		off = pos - time.Duration(loop)*s.loopDur
	}
	if err := s.dec.Seek(off); err != nil {
		return fmt.Errorf("seek to %s: %w", off, err)
	}
	s.log.Debug("decoder resynced", "position", off, "loop", loop)
	cur.gen = gen
	cur.loop = loop
	cur.last = pos
	return nil
}

// decode reads the next frame, seeking back to the start at end of stream.
func (s *FrameSource) decode(ctx context.Context, cur *cursor) (*decodedFrame, error) {
	buf := s.buffer()
	pts, err := s.dec.ReadFrame(ctx, buf)
	if errors.Is(err, io.EOF) && s.looping {
		if serr := s.dec.Seek(0); serr != nil {
			return nil, fmt.Errorf("loop seek: %w", serr)
		}
		cur.loop++
		s.loops.Add(1)
		pts, err = s.dec.ReadFrame(ctx, buf)
	}
	if err != nil {
		return nil, err
	}
	s.decoded.Add(1)
	at := time.Duration(cur.loop)*s.loopDur + pts
	cur.last = at
	s.mu.Lock()
	if s.stalled {
		s.stalled = false
		s.log.Info("decoding resumed", "pts", pts)
	}
	s.mu.Unlock()
	return &decodedFrame{pix: buf, pts: pts, at: at, gen: cur.gen}, nil
}

func (s *FrameSource) decodeFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.stalled {
		s.stalled = true
		s.log.Warn("decoding stalled, keeping last frame", "error", err)
		return
	}
	s.log.Debug("decode error", "error", err)
}

// present writes f into the target surface.
func (s *FrameSource) present(f *decodedFrame) bool {
	defer s.recycle(f)
	if err := s.target.WritePixels(f.pix); err != nil {
		s.log.Error("could not write frame to surface", "error", err)
		return false
	}
	s.shown.Add(1)
	s.mu.Lock()
	s.lastPTS = f.pts
	if s.state == Ready {
		s.state = Playing
	}
	s.mu.Unlock()
	return true
}

func (s *FrameSource) buffer() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		buf := s.free[n-1]
		s.free = s.free[:n-1]
		return buf
	}
	return make([]byte, s.frameLen)
}

func (s *FrameSource) recycle(f *decodedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recycleLocked(f)
}

func (s *FrameSource) recycleLocked(f *decodedFrame) {
	if len(s.free) < freeListSize {
		s.free = append(s.free, f.pix)
	}
}

// signal wakes the prefetch worker without blocking.
func (s *FrameSource) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// wait blocks until woken, ctx is done or d has passed (d == 0 waits
// without timeout).
func (s *FrameSource) wait(ctx context.Context, d time.Duration) {
	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timeout:
	}
}

// Shutdown stops decoding and releases the decoder and stream. It is safe
// to call more than once and before Open. After Shutdown the source stays
// NotLoaded and PullFrame does nothing.
func (s *FrameSource) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = NotLoaded
	cancel := s.cancel
	src := s.src
	s.mailbox = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.signal()
	if r := s.wg.WaitAndRecover(); r != nil {
		s.log.Error("prefetch worker panicked", "error", r.AsError())
	}

	s.decMu.Lock()
	defer s.decMu.Unlock()
	s.pending = nil
	if src == nil {
		return nil
	}
	var errs []error
	if err := s.dec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close decoder: %w", err))
	}
	if err := src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	s.log.Debug("frame source shut down", "path", src.Path)
	return errors.Join(errs...)
}
