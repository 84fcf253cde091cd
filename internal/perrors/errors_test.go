package perrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableTransportError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"reset case insensitive", errors.New("Connection Reset by peer"), true},
		{"timeout", errors.New("read tcp 10.0.0.1:502: i/o timeout"), true},
		{"not retryable", errors.New("modbus exception: illegal data address"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsRetryableTransportError(tc.err))
		})
	}
}

func TestNotWritableError(t *testing.T) {
	err := &NotWritableError{PointID: "pt-1"}
	assert.Contains(t, err.Error(), "pt-1")

	var target *NotWritableError
	assert.True(t, errors.As(err, &target))
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := &TransportError{Op: "connect", Err: inner}
	assert.ErrorIs(t, wrapped, inner)
}
