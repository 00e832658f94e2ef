// Package metrics provides the Prometheus collectors of the capture engine.
package metrics

import "time"

// Namespace prefixes every metric name.
const Namespace = "nightsound"

// ShutdownTimeout bounds the graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second

// Frame outcome labels.
const (
	FrameProcessed = "processed"
	FrameInvalid   = "invalid"
)

// Gate event labels.
const (
	EventStarted   = "started"
	EventClosed    = "closed"
	EventDiscarded = "discarded"
)
