package internal

import "time"

// Transport is the part of FrameSource driven by the playback controller.
type Transport interface {
	Loaded() bool
	State() PlaybackState
	SetPlaybackPosition(t time.Duration)
	Pause()
	Play()
}

// PlaybackController gates transport requests on a loaded video. Without
// one, every request is a no-op.
type PlaybackController struct {
	src Transport
}

// NewPlaybackController creates a controller for src.
func NewPlaybackController(src Transport) *PlaybackController {
	return &PlaybackController{src: src}
}

// Restart plays from position 0.
func (p *PlaybackController) Restart() {
	if !p.loaded() {
		return
	}
	p.src.SetPlaybackPosition(0)
	p.src.Play()
}

// Pause freezes playback.
func (p *PlaybackController) Pause() {
	if !p.loaded() {
		return
	}
	p.src.Pause()
}

// Resume continues playback from where it was paused.
func (p *PlaybackController) Resume() {
	if !p.loaded() {
		return
	}
	p.src.Play()
}

// Toggle pauses a playing video and resumes a paused one.
func (p *PlaybackController) Toggle() {
	if p.State() == Paused {
		p.Resume()
		return
	}
	p.Pause()
}

// State returns the playback state, NotLoaded when there is no video.
func (p *PlaybackController) State() PlaybackState {
	if p.src == nil {
		return NotLoaded
	}
	return p.src.State()
}

func (p *PlaybackController) loaded() bool {
	return p.src != nil && p.src.Loaded()
}
