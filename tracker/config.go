// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tracker

import "time"

// Config holds the tracker's policy knobs.
type Config struct {
	// MaxTimestampSkew is how far beyond the tracker clock a new
	// note's timestamp may sit before it is rejected as a future
	// timestamp.
	MaxTimestampSkew time.Duration `serialize:"true" json:"maxTimestampSkew"`
}

// DefaultConfig returns the standard policy values.
func DefaultConfig() Config {
	return Config{
		MaxTimestampSkew: 5 * time.Minute,
	}
}
