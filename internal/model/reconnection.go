package model

import "fmt"

// ReconnectionPolicy is the persisted, JSON-round-trippable settings a
// worker's reconnection loop runs under (spec §4, "Persisted
// reconnection settings"). It is guarded by its own mutex wherever a
// worker holds one live (spec §5: "reconnection settings are guarded by
// a dedicated mutex"); this type itself has no internal locking since
// callers copy it by value across that boundary.
type ReconnectionPolicy struct {
	AutoReconnectEnabled      bool `json:"auto_reconnect_enabled" mapstructure:"auto_reconnect_enabled"`
	RetryIntervalMS           int  `json:"retry_interval_ms" mapstructure:"retry_interval_ms"`
	MaxRetriesPerCycle        int  `json:"max_retries_per_cycle" mapstructure:"max_retries_per_cycle"`
	WaitTimeAfterMaxRetriesMS int  `json:"wait_time_after_max_retries_ms" mapstructure:"wait_time_after_max_retries_ms"`
	KeepAliveEnabled          bool `json:"keep_alive_enabled" mapstructure:"keep_alive_enabled"`
	KeepAliveIntervalSeconds  int  `json:"keep_alive_interval_seconds" mapstructure:"keep_alive_interval_seconds"`
	ConnectionTimeoutSeconds  int  `json:"connection_timeout_seconds" mapstructure:"connection_timeout_seconds"`
}

// DefaultReconnectionPolicy returns the defaults spec §4 names in
// parentheses next to each field.
func DefaultReconnectionPolicy() ReconnectionPolicy {
	return ReconnectionPolicy{
		AutoReconnectEnabled:      true,
		RetryIntervalMS:           5000,
		MaxRetriesPerCycle:        0,
		WaitTimeAfterMaxRetriesMS: 60000,
		KeepAliveEnabled:          true,
		KeepAliveIntervalSeconds:  30,
		ConnectionTimeoutSeconds:  10,
	}
}

// Validate enforces the bounds spec §4 specifies for each field,
// returning the first violation found.
func (p ReconnectionPolicy) Validate() error {
	if p.RetryIntervalMS < 1000 || p.RetryIntervalMS > 300000 {
		return fmt.Errorf("retry_interval_ms must be in [1000, 300000], got %d", p.RetryIntervalMS)
	}
	if p.MaxRetriesPerCycle < 0 || p.MaxRetriesPerCycle > 100 {
		return fmt.Errorf("max_retries_per_cycle must be in [0, 100], got %d", p.MaxRetriesPerCycle)
	}
	if p.WaitTimeAfterMaxRetriesMS < 10000 {
		return fmt.Errorf("wait_time_after_max_retries_ms must be >= 10000, got %d", p.WaitTimeAfterMaxRetriesMS)
	}
	return nil
}
