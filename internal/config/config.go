// Copyright The Jaegercat Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the validated process configuration. Everything in
// here is fixed before the first socket is bound and never mutated
// afterwards, so it is shared across goroutines without locking.
package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

const (
	// Default ports match the standard Jaeger agent port assignments.
	DefaultCompactThriftPort = 6831
	DefaultBinaryThriftPort  = 6832

	// DefaultUDPBufferSize bounds a single received datagram. The kernel
	// truncates anything larger; the truncated payload is still handed to
	// the decoder, which will usually (legitimately) reject it.
	DefaultUDPBufferSize = 65000
)

// Protocol selects which Thrift protocol variant a listener decodes.
type Protocol int

const (
	ProtocolCompact Protocol = iota
	ProtocolBinary
)

func (p Protocol) String() string {
	switch p {
	case ProtocolCompact:
		return "compact"
	case ProtocolBinary:
		return "binary"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Format selects how a decoded batch is rendered on stdout.
type Format int

const (
	FormatRaw Format = iota
	FormatJSON
	FormatJSONPretty
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatJSON:
		return "json"
	case FormatJSONPretty:
		return "json-pretty"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps the -f/--format flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "raw":
		return FormatRaw, nil
	case "json":
		return FormatJSON, nil
	case "json-pretty":
		return FormatJSONPretty, nil
	default:
		return 0, fmt.Errorf("unknown format %q (expected one of raw, json, json-pretty)", s)
	}
}

// ParseLogLevel maps the --log-level flag value to a zap level.
func ParseLogLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (expected one of debug, info, error)", s)
	}
}

// ListenerConfig is the per-listener slice of the process configuration.
// Exactly one listener owns each instance.
type ListenerConfig struct {
	Port       int
	Protocol   Protocol
	BufferSize int
}

// Config is the full validated process configuration.
type Config struct {
	CompactThriftPort int
	BinaryThriftPort  int
	Format            Format
	UDPBufferSize     int
	LogLevel          zapcore.Level
	SampleServices    []string
}

// Validate reports the first invalid field. It must pass before any
// network resource is created; partial startup is not allowed.
func (c *Config) Validate() error {
	if err := validPort(c.CompactThriftPort); err != nil {
		return fmt.Errorf("compact thrift port: %w", err)
	}
	if err := validPort(c.BinaryThriftPort); err != nil {
		return fmt.Errorf("binary thrift port: %w", err)
	}
	if c.CompactThriftPort == c.BinaryThriftPort {
		return fmt.Errorf("compact and binary thrift ports are both %d", c.CompactThriftPort)
	}
	if c.UDPBufferSize <= 0 {
		return fmt.Errorf("udp buffer size must be positive, got %d", c.UDPBufferSize)
	}
	return nil
}

// Listeners expands the config into one ListenerConfig per wire protocol.
func (c *Config) Listeners() []ListenerConfig {
	return []ListenerConfig{
		{Port: c.CompactThriftPort, Protocol: ProtocolCompact, BufferSize: c.UDPBufferSize},
		{Port: c.BinaryThriftPort, Protocol: ProtocolBinary, BufferSize: c.UDPBufferSize},
	}
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%d is outside the valid range 1-65535", port)
	}
	return nil
}
