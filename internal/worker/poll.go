package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/pulseone/pulseone/internal/model"
)

// pollLoop runs the protocol-independent polling cadence: at most one
// outstanding request per device, the next poll starting poll_interval
// after the previous poll's start or immediately if already late (spec
// §4.4's polling schedule).
func (c *WorkerCore) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	interval := c.device.Timing.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !State(c.state.Load()).IsActive() || !c.connected.Load() {
				continue
			}
			c.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poll cycle and pushes the resulting batch (spec
// §4.3's emission contract).
func (c *WorkerCore) pollOnce(ctx context.Context) {
	points := c.dataPointsSnapshot()
	if len(points) == 0 {
		return
	}

	timeout := c.device.Timing.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	values, err := c.driver.Poll(pollCtx, points)
	c.lastResponseNS.Store(int64(time.Since(start)))

	if err != nil {
		c.consecutiveFailures.Add(1)
		c.totalFailures.Add(1)
		c.setLastError(err, "poll")
		c.connected.Store(false)
		c.state.Store(int32(StateReconnecting))
		c.emit(ctx, points, nil, 0, len(points), len(points))
		return
	}

	byPoint := make(map[string]TimestampedValue, len(values))
	for _, v := range values {
		byPoint[v.PointID] = v
	}

	var passing []TimestampedValue
	successCount := 0
	failedCount := 0

	for _, p := range points {
		v, ok := byPoint[p.ID]
		if !ok || v.Quality == model.QualityBad {
			failedCount++
			p.Runtime.QualityCode = model.QualityBad
			p.Runtime.QualityTS = time.Now()
			continue
		}

		successCount++
		p.Runtime.CurrentValue = v.Value
		p.Runtime.RawValue = v.RawValue
		p.Runtime.QualityCode = v.Quality
		p.Runtime.ValueTimestamp = v.Timestamp
		p.Runtime.QualityTS = v.Timestamp
		p.Runtime.LastReadTime = time.Now()

		if c.saveCurrentValue != nil {
			c.saveCurrentValue(ctx, model.CurrentValue{
				DataPointID: p.ID,
				Value:       p.Runtime.CurrentValue,
				RawValue:    p.Runtime.RawValue,
				Quality:     p.Runtime.QualityCode,
				ValueTS:     p.Runtime.ValueTimestamp,
				QualityTS:   p.Runtime.QualityTS,
			})
		}

		if c.shouldLog(p, p.Runtime.LastLoggedValue, v.Value) {
			p.Runtime.LastLogTime = time.Now()
			p.Runtime.LastLoggedValue = v.Value
			passing = append(passing, v)
		}
	}

	c.consecutiveFailures.Store(0)
	c.lastSuccessNS.Store(time.Now().UnixNano())
	c.emit(ctx, points, passing, successCount, failedCount, len(points))
}

// shouldLog applies spec §4.3's deadband rule: a point is logged only
// when log_enabled AND elapsed since last_log_time >= log_interval_ms
// AND the deadband check passes against the last *logged* value (not
// the immediately preceding poll), so slow drift across many
// sub-deadband samples still accumulates into an eventual log event.
func (c *WorkerCore) shouldLog(p *model.DataPoint, prev, next model.Value) bool {
	if !p.LogEnabled {
		return false
	}
	if !p.Runtime.LastLogTime.IsZero() {
		elapsed := time.Since(p.Runtime.LastLogTime)
		if elapsed < time.Duration(p.LogIntervalMS)*time.Millisecond {
			return false
		}
	}
	return p.PassesDeadband(prev, next)
}

func (c *WorkerCore) emit(ctx context.Context, points []*model.DataPoint, passing []TimestampedValue, successCount, failedCount, total int) {
	now := time.Now()
	bs := batchStats{
		consecutiveFailures: c.consecutiveFailures.Load(),
		timeSinceSuccess:    now.Sub(time.Unix(0, c.lastSuccessNS.Load())),
		failedInBatch:       int64(failedCount),
		totalInBatch:        int64(total),
	}
	var status model.DeviceStatus
	if State(c.state.Load()).IsManualOverride() {
		status = model.DeviceStatusMaintenance
	} else {
		status = deriveStatus(c.thresholds, bs)
	}
	prevStatus := model.DeviceStatus(c.prevStatus.Load())
	statusChanged := status != prevStatus
	c.prevStatus.Store(int32(status))

	seq := c.batchSeq.Add(1)

	msg := &DeviceDataMessage{
		DeviceID:             c.device.ID,
		ProtocolTag:          c.device.ProtocolTag,
		BatchTimestamp:       now,
		Priority:             c.device.Priority,
		TenantID:             c.device.TenantID,
		SiteID:               c.device.SiteID,
		TriggerAlarms:        c.device.TriggerAlarms,
		TriggerVirtualPoints: c.device.TriggerVirtualPoints,
		HighPriority:         c.device.HighPriority,
		CorrelationID:        fmt.Sprintf("%s-%s-%d", c.device.ID, c.id, now.UnixMilli()),
		BatchSequence:        seq,
		Status:               status,
		PreviousStatus:       prevStatus,
		StatusChanged:        statusChanged,
		Connection:           c.Stats(),
		Points: PointCounts{
			TotalConfigured: total,
			Successful:      successCount,
			Failed:          failedCount,
		},
		Values: passing,
	}

	if c.sink == nil {
		return
	}
	if !c.sink.Push(ctx, msg) {
		c.log.Warnf("pipeline queue rejected batch seq=%d device=%s", seq, c.device.ID)
	}
}
