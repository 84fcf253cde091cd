package worker

// StatusSnapshot builds the worker status JSON payload (spec §6):
// {device_id, device_name, worker_id, protocol_type, endpoint, state,
// connected, data_points_count, write_supported}.
func (c *WorkerCore) StatusSnapshot() StatusSnapshot {
	points := c.dataPointsSnapshot()
	writeSupported := false
	for _, p := range points {
		if p.AccessMode.CanWrite() {
			writeSupported = true
			break
		}
	}
	return StatusSnapshot{
		DeviceID:        c.device.ID,
		DeviceName:      c.device.Name,
		WorkerID:        c.id,
		ProtocolType:    c.device.ProtocolTag,
		Endpoint:        c.device.EndpointString,
		State:           c.State().String(),
		Connected:       c.Connected(),
		DataPointsCount: len(points),
		WriteSupported:  writeSupported,
	}
}
