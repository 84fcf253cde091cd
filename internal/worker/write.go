package worker

import (
	"context"
	"time"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/perrors"
)

// Write issues a command to one data point (spec §4.4): "Write commands
// are accepted only when access_mode is write/read_write and the state
// is active; a write attempt on a read-only point fails with a distinct
// error." Returns synchronously; never changes worker state (spec §7).
func (c *WorkerCore) Write(ctx context.Context, pointID string, value model.Value) error {
	var target *model.DataPoint
	for _, p := range c.dataPointsSnapshot() {
		if p.ID == pointID {
			target = p
			break
		}
	}
	if target == nil {
		return &perrors.NotWritableError{PointID: pointID}
	}
	if !target.AccessMode.CanWrite() {
		return &perrors.NotWritableError{PointID: pointID}
	}
	if !State(c.state.Load()).IsActive() {
		return &perrors.NotWritableError{PointID: pointID}
	}

	if err := c.driver.WritePoint(ctx, target, value); err != nil {
		return err
	}
	target.Runtime.LastWriteTime = time.Now()
	return nil
}
