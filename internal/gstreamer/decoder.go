// Package gstreamer decodes video files with a GStreamer pipeline.
package gstreamer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Eyevinn/videoplane/internal"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const (
	sinkName            = "sink"
	defaultPollInterval = 20 * time.Millisecond
)

var initOnce sync.Once

// Decoder reads BGRA frames from an appsink at the end of a decodebin
// pipeline. The source file is read by GStreamer directly, so it must live
// on the OS file system.
type Decoder struct {
	// PollInterval bounds how long a single pull waits before the context
	// is checked again.
	PollInterval time.Duration

	log      *slog.Logger
	pipeline *gst.Pipeline
	sink     *app.Sink
	info     internal.MediaInfo
	frameLen int
	index    uint32
}

// New creates an unopened decoder.
func New(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		PollInterval: defaultPollInterval,
		log:          logger.With("decoder", "gstreamer"),
	}
}

// launchString builds the pipeline description for path scaled to
// width x height.
func launchString(path string, width, height int) string {
	return fmt.Sprintf("filesrc location=%q ! decodebin ! videoconvert ! videoscale ! "+
		"video/x-raw,format=BGRA,width=%d,height=%d ! appsink name=%s sync=false max-buffers=2",
		path, width, height, sinkName)
}

func (d *Decoder) Open(src *internal.MediaSource, width, height int) error {
	if d.pipeline != nil {
		return internal.ErrAlreadyOpen
	}
	if src == nil {
		return fmt.Errorf("gstreamer: no source")
	}
	initOnce.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipelineFromString(launchString(src.Path, width, height))
	if err != nil {
		return fmt.Errorf("gstreamer: create pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName(sinkName)
	if err != nil {
		return fmt.Errorf("gstreamer: find appsink: %w", err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gstreamer: start pipeline: %w", err)
	}
	d.pipeline = pipeline
	d.sink = app.SinkFromElement(elem)
	d.info = src.Info
	d.frameLen = internal.BGRASize(width, height)
	d.index = 0
	d.log.Debug("pipeline started", "path", src.Path, "width", width, "height", height)
	return nil
}

// ReadFrame pulls the next decoded frame. The returned time is derived from
// the frame count and the probed sample duration.
func (d *Decoder) ReadFrame(ctx context.Context, dst []byte) (time.Duration, error) {
	if d.pipeline == nil {
		return 0, internal.ErrNotInitialized
	}
	if len(dst) != d.frameLen {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", internal.ErrFrameSize, len(dst), d.frameLen)
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := d.busError(); err != nil {
			return 0, err
		}
		sample := d.sink.TryPullSample(d.PollInterval)
		if sample == nil {
			if d.sink.IsEOS() {
				return 0, io.EOF
			}
			continue
		}
		buffer := sample.GetBuffer()
		if buffer == nil {
			d.log.Warn("sample without buffer, skipping")
			continue
		}
		mapInfo := buffer.Map(gst.MapRead)
		data := mapInfo.Bytes()
		n := copy(dst, data)
		buffer.Unmap()
		if n != d.frameLen || len(data) != d.frameLen {
			return 0, fmt.Errorf("%w: got %d bytes, want %d", internal.ErrFrameSize, len(data), d.frameLen)
		}
		pts := d.info.SampleTime(d.index)
		d.index++
		return pts, nil
	}
}

// busError drains pending bus messages and returns the first error.
func (d *Decoder) busError() error {
	bus := d.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			d.log.Error("pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			return fmt.Errorf("gstreamer: %s", gerr.Error())
		}
	}
}

// Seek performs an accurate flushing seek so that frame counting stays
// aligned with the stream.
func (d *Decoder) Seek(pos time.Duration) error {
	if d.pipeline == nil {
		return internal.ErrNotInitialized
	}
	if pos < 0 {
		pos = 0
	}
	if !d.pipeline.SeekSimple(int64(pos), gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagAccurate) {
		return fmt.Errorf("gstreamer: seek to %s rejected", pos)
	}
	frameDur := d.info.FrameDuration()
	d.index = 0
	if frameDur > 0 {
		d.index = uint32(pos / frameDur)
	}
	return nil
}

func (d *Decoder) Close() error {
	if d.pipeline == nil {
		return nil
	}
	err := d.pipeline.SetState(gst.StateNull)
	d.pipeline = nil
	d.sink = nil
	if err != nil {
		return fmt.Errorf("gstreamer: stop pipeline: %w", err)
	}
	return nil
}
