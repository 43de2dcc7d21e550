package internal

import (
	"errors"
	"fmt"
	"sync"
)

// TextureBridge owns the frame surface and its read view. The frame source
// only gets the surface for writing and the compositor only gets the view.
type TextureBridge struct {
	mu       sync.Mutex
	surface  Surface
	view     SurfaceView
	released bool
}

// Create allocates the frame surface and view. It can only succeed once.
func (b *TextureBridge) Create(dev Device, width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("texture bridge: %w", ErrClosed)
	}
	if b.surface != nil {
		return ErrAlreadyCreated
	}
	surface, err := dev.CreateSurface(FrameSurfaceDesc(width, height))
	if err != nil {
		return wrapResourceErr("create surface", err)
	}
	view, err := dev.CreateView(surface)
	if err != nil {
		surface.Release()
		return wrapResourceErr("create view", err)
	}
	b.surface = surface
	b.view = view
	return nil
}

func wrapResourceErr(op string, err error) error {
	if errors.Is(err, ErrResourceCreation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrResourceCreation, err)
}

// Target returns the writable surface, or nil before Create.
func (b *TextureBridge) Target() Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// View returns the read view, or nil before Create.
func (b *TextureBridge) View() SurfaceView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// Size returns the surface dimensions.
func (b *TextureBridge) Size() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.surface == nil {
		return 0, 0
	}
	return b.surface.Width(), b.surface.Height()
}

// Release frees the view and surface. Safe to call more than once.
func (b *TextureBridge) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	var errs []error
	if b.view != nil {
		errs = append(errs, b.view.Release())
	}
	if b.surface != nil {
		errs = append(errs, b.surface.Release())
	}
	b.view, b.surface = nil, nil
	return errors.Join(errs...)
}
