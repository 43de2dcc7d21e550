package internal

import "errors"

// Error definitions for the video plane pipeline
var (
	ErrSourceUnavailable  = errors.New("video source unavailable")
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrAlreadyOpen        = errors.New("source already opened")
	ErrAlreadyCreated     = errors.New("surface already created")
	ErrResourceCreation   = errors.New("gpu resource creation failed")
	ErrUnsupportedFormat  = errors.New("unsupported pixel format")
	ErrUnsupportedEffect  = errors.New("unsupported effect")
	ErrEffectNotFound     = errors.New("effect not found")
	ErrBatchState         = errors.New("sprite batch begin/end mismatch")
	ErrFrameSize          = errors.New("frame size mismatch")
	ErrClosed             = errors.New("closed")
)
