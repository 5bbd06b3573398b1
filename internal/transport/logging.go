// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "instruments/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// DEBUG level. Used when no network transport is configured.
type LoggingTransport struct {
	sent atomic.Uint64
}

func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send never fails.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.sent.Add(1)
	applog.Debugf("LoggingTransport: #%d %T %+v", n, data, data)
	return nil
}

// Sent returns the number of messages logged.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called after %d messages", lt.sent.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
