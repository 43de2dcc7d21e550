package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// HeadlessDriver runs a System on a fixed timestep without a window.
type HeadlessDriver struct {
	// Device, when set, has its back buffer cleared before each Draw.
	Device     *SoftwareDevice
	ClearColor Color
	TPS        int
	Logger     *slog.Logger
	// AfterDraw is called with the frame number after each Draw.
	AfterDraw func(frame int64)

	frame int64
	total time.Duration
}

// NewHeadlessDriver creates a driver ticking tps times per second.
func NewHeadlessDriver(dev *SoftwareDevice, tps int, logger *slog.Logger) *HeadlessDriver {
	if logger == nil {
		logger = discardLogger()
	}
	return &HeadlessDriver{
		Device:     dev,
		ClearColor: CornflowerBlue,
		TPS:        tps,
		Logger:     logger,
	}
}

// Frame returns the number of frames run so far.
func (d *HeadlessDriver) Frame() int64 {
	return d.frame
}

// Step runs one Update and Draw.
func (d *HeadlessDriver) Step(sys System) error {
	if d.TPS <= 0 {
		return fmt.Errorf("headless driver: invalid tps %d", d.TPS)
	}
	total := time.Duration(d.frame * int64(time.Second) / int64(d.TPS))
	gt := GameTime{Total: total, Elapsed: total - d.total}
	if err := sys.Update(gt); err != nil {
		return fmt.Errorf("update frame %d: %w", d.frame, err)
	}
	if d.Device != nil {
		d.Device.Clear(d.ClearColor)
	}
	if err := sys.Draw(gt); err != nil {
		return fmt.Errorf("draw frame %d: %w", d.frame, err)
	}
	if d.AfterDraw != nil {
		d.AfterDraw(d.frame)
	}
	d.total = total
	d.frame++
	return nil
}

// RunFrames runs n frames back to back, as fast as possible.
func (d *HeadlessDriver) RunFrames(ctx context.Context, sys System, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Step(sys); err != nil {
			return err
		}
	}
	return nil
}

// Run steps sys in real time until ctx is done.
func (d *HeadlessDriver) Run(ctx context.Context, sys System) error {
	if d.TPS <= 0 {
		return fmt.Errorf("headless driver: invalid tps %d", d.TPS)
	}
	ticker := time.NewTicker(time.Second / time.Duration(d.TPS))
	defer ticker.Stop()
	d.Logger.Info("headless loop started", "tps", d.TPS)
	for {
		if err := d.Step(sys); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			d.Logger.Info("headless loop stopped", "frames", d.frame)
			return nil
		case <-ticker.C:
		}
	}
}
