// Package perrors holds the typed error taxonomy spec §7 requires an
// implementer to distinguish: ConfigurationError, TransportError,
// ProtocolError, TimeoutError, NotWritableError, and QueueFullError. Each
// is a distinct type so callers can dispatch with errors.As instead of
// string matching, while still supporting fmt.Errorf("...: %w", err)
// wrapping at every boundary the way the teacher's storage/dolt package
// wraps driver errors.
package perrors

import (
	"fmt"
	"strings"
)

// ConfigurationError signals an invalid endpoint, out-of-range setting,
// or unknown protocol tag. Surfaced to the caller; the worker never
// starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransportError wraps a socket/serial open or I/O failure. Local to the
// worker; triggers a transition to COMMUNICATION_ERROR -> RECONNECTING.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError signals a well-formed transport exchange where the
// device rejected the request or returned a malformed PDU. Counted; does
// not necessarily break the connection.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Detail)
}

// TimeoutError signals an expected response that did not arrive within
// the configured timeout. Counted; under thresholds, contributes to
// degraded device status.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s after %s", e.Op, e.Timeout)
}

// NotWritableError is returned synchronously to the command originator
// when a write targets a read-only point. It never changes worker state.
type NotWritableError struct {
	PointID string
}

func (e *NotWritableError) Error() string {
	return fmt.Sprintf("data point %s is not writable", e.PointID)
}

// QueueFullError signals the downstream pipeline sink rejected a message
// because its queue was full. Counted; the next batch retries. Never
// blocks the polling loop.
type QueueFullError struct {
	DeviceID string
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("pipeline queue full, dropped batch for device %s", e.DeviceID)
}

// IsRetryableTransportError classifies a transport-layer error as
// transient (reconnect is likely to succeed) vs. terminal, grounded in
// the teacher's substring-based isRetryableError classifier
// (internal/storage/dolt/retry.go). The exact substrings differ - these
// are the ones a TCP/serial field-device transport actually produces -
// but the technique (lower-case substring match against a known list) is
// the same.
func IsRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, needle := range retryableSubstrings {
		if strings.Contains(errStr, needle) {
			return true
		}
	}
	return false
}

var retryableSubstrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"no route to host",
	"network is unreachable",
	"use of closed network connection",
	"eof",
	"device or resource busy",
	"resource temporarily unavailable",
}
