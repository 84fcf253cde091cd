package transport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pulseone/pulseone/internal/perrors"
)

// SerialConfig is the parsed form of spec §4.2's serial endpoint
// string: "dev:baud:bits:parity:stop", e.g. "/dev/ttyUSB0:9600:8:N:1".
type SerialConfig struct {
	Device   string
	Baud     int
	DataBits int
	Parity   byte // 'N', 'E', or 'O'
	StopBits int
}

var validBauds = map[int]bool{
	1200: true, 2400: true, 4800: true, 9600: true,
	19200: true, 38400: true, 57600: true,
	115200: true, 230400: true, 460800: true, 921600: true,
}

// ParseSerialEndpoint parses "dev:baud:bits:parity:stop", defaulting a
// bare device path to 9600:8:N:1 (spec §9 Open Question: "ParseEndpoint
// for serial accepts the short form dev and silently defaults to
// 9600:8:N:1").
func ParseSerialEndpoint(s string) (SerialConfig, error) {
	parts := strings.Split(s, ":")
	cfg := SerialConfig{Device: parts[0], Baud: 9600, DataBits: 8, Parity: 'N', StopBits: 1}
	if len(parts) == 1 {
		return cfg, cfg.validate()
	}
	if len(parts) != 5 {
		return SerialConfig{}, &perrors.ConfigurationError{
			Field: "endpoint_string", Reason: fmt.Sprintf("expected dev:baud:bits:parity:stop or a bare device path, got %q", s),
		}
	}
	baud, err := strconv.Atoi(parts[1])
	if err != nil {
		return SerialConfig{}, &perrors.ConfigurationError{Field: "endpoint_string", Reason: "baud is not an integer"}
	}
	bits, err := strconv.Atoi(parts[2])
	if err != nil {
		return SerialConfig{}, &perrors.ConfigurationError{Field: "endpoint_string", Reason: "data bits is not an integer"}
	}
	stop, err := strconv.Atoi(parts[4])
	if err != nil {
		return SerialConfig{}, &perrors.ConfigurationError{Field: "endpoint_string", Reason: "stop bits is not an integer"}
	}
	if len(parts[3]) != 1 {
		return SerialConfig{}, &perrors.ConfigurationError{Field: "endpoint_string", Reason: "parity must be a single character (N, E, or O)"}
	}
	cfg.Baud = baud
	cfg.DataBits = bits
	cfg.Parity = parts[3][0]
	cfg.StopBits = stop
	return cfg, cfg.validate()
}

func (c SerialConfig) validate() error {
	if !validBauds[c.Baud] {
		return &perrors.ConfigurationError{Field: "baud_rate", Reason: fmt.Sprintf("%d is not a supported baud rate", c.Baud)}
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		return &perrors.ConfigurationError{Field: "data_bits", Reason: "must be 7 or 8"}
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return &perrors.ConfigurationError{Field: "stop_bits", Reason: "must be 1 or 2"}
	}
	if c.Parity != 'N' && c.Parity != 'E' && c.Parity != 'O' {
		return &perrors.ConfigurationError{Field: "parity", Reason: "must be N, E, or O"}
	}
	return nil
}
