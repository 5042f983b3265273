// Package audit carries security events from the Engine to their sinks.
//
// The [Dispatcher] buffers events and hands them to a [Sink] on background
// workers so recording never slows down or fails an authentication flow.
// Sinks provided here: no-op, channel, JSON lines, zap logger, fan-out and a
// tolerant wrapper for sinks whose writes can fail (such as a database).
//
// Which events to emit is decided by the Engine, not by this package.
package audit
