package internal

import (
	"errors"
	"fmt"
)

// Compositor draws the frame surface as one sprite into the device back
// buffer.
type Compositor struct {
	batch   SpriteBatch
	effect  Effect
	sampler SamplingPolicy
}

// NewCompositor creates the sprite batch used for compositing.
func NewCompositor(dev Device) (*Compositor, error) {
	batch, err := dev.CreateSpriteBatch()
	if err != nil {
		return nil, wrapResourceErr("create sprite batch", err)
	}
	return &Compositor{
		batch:   batch,
		sampler: VideoSamplingPolicy(),
	}, nil
}

// LoadEffect loads the named effect through loader. An empty name selects
// the pass-through draw.
func (c *Compositor) LoadEffect(loader ContentLoader, name string) error {
	if name == "" {
		return c.releaseEffect()
	}
	if loader == nil {
		return fmt.Errorf("load effect %q: no content loader", name)
	}
	effect, err := loader.LoadEffect(name)
	if err != nil {
		return fmt.Errorf("load effect %q: %w", name, err)
	}
	if err := c.releaseEffect(); err != nil {
		return err
	}
	c.effect = effect
	return nil
}

func (c *Compositor) releaseEffect() error {
	effect := c.effect
	c.effect = nil
	if r, ok := effect.(Releaser); ok {
		if err := r.Release(); err != nil {
			return fmt.Errorf("release effect %q: %w", effect.Name(), err)
		}
	}
	return nil
}

// Release frees the effect and the sprite batch. Draw fails afterwards.
func (c *Compositor) Release() error {
	errEffect := c.releaseEffect()
	var errBatch error
	if c.batch != nil {
		errBatch = c.batch.Release()
		c.batch = nil
	}
	return errors.Join(errEffect, errBatch)
}

// Effect returns the loaded effect, or nil for pass-through.
func (c *Compositor) Effect() Effect {
	return c.effect
}

// Draw composites view over dst tinted with (1,1,1,alpha). alpha is used
// as given.
func (c *Compositor) Draw(view SurfaceView, dst Rectangle, alpha float32) error {
	if view == nil {
		return fmt.Errorf("compositor: %w: no view", ErrNotInitialized)
	}
	if c.batch == nil {
		return fmt.Errorf("compositor: %w", ErrClosed)
	}
	if err := c.batch.Begin(SortDeferred, BlendAlpha, c.sampler, c.effect); err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	if err := c.batch.Draw(view, dst, Color{1, 1, 1, alpha}); err != nil {
		c.batch.End()
		return fmt.Errorf("draw sprite: %w", err)
	}
	if err := c.batch.End(); err != nil {
		return fmt.Errorf("end batch: %w", err)
	}
	return nil
}
