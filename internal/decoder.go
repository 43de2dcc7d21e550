package internal

//go:generate mockgen -source=decoder.go -destination=decoder_mock_test.go -package=internal

import (
	"context"
	"time"
)

// Decoder turns the video track of a MediaSource into raw BGRA frames.
// A Decoder is used by one goroutine at a time.
type Decoder interface {
	// Open prepares decoding of src with frames scaled to width x height.
	// A failed Open leaves nothing to clean up.
	Open(src *MediaSource, width, height int) error
	// ReadFrame decodes the next frame into dst, which has room for exactly
	// one tightly packed BGRA frame, and returns its presentation time.
	// io.EOF is returned at the end of the stream.
	ReadFrame(ctx context.Context, dst []byte) (time.Duration, error)
	// Seek repositions the stream so that the next frame read is the one
	// displayed at pos, or an earlier one.
	Seek(pos time.Duration) error
	Close() error
}
