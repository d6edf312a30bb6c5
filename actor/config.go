// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

// Config sizes the command queue.
type Config struct {
	// QueueDepth bounds the number of commands waiting to be applied.
	// Submission blocks when the queue is full.
	QueueDepth int
}

func DefaultConfig() Config {
	return Config{QueueDepth: 256}
}
