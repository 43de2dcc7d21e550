package internal

import (
	"sync"
	"time"
)

// Clock reports a monotonic time offset.
type Clock interface {
	Now() time.Duration
}

// RenderClock is a Clock advanced by the render loop.
type RenderClock struct {
	mu  sync.RWMutex
	now time.Duration
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *RenderClock) Set(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d.
func (c *RenderClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
}

// Now returns the current render time.
func (c *RenderClock) Now() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// WallClock measures time elapsed since its creation.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a clock starting at zero now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the time elapsed since the clock was created.
func (c *WallClock) Now() time.Duration {
	return time.Since(c.start)
}

// playbackClock maps a Clock onto a pausable playback position.
type playbackClock struct {
	clock   Clock
	base    time.Duration // position when last resumed or seeked
	anchor  time.Duration // clock reading at that moment
	running bool
}

func (p *playbackClock) position() time.Duration {
	if !p.running {
		return p.base
	}
	return p.base + p.clock.Now() - p.anchor
}

func (p *playbackClock) seek(pos time.Duration) {
	p.base = pos
	p.anchor = p.clock.Now()
}

func (p *playbackClock) pause() {
	if !p.running {
		return
	}
	p.base = p.position()
	p.running = false
}

func (p *playbackClock) play() {
	if p.running {
		return
	}
	p.anchor = p.clock.Now()
	p.running = true
}
