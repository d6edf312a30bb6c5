// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redemption

import "time"

// Config holds the redemption policy parameters.
type Config struct {
	// LockPeriod is the minimum note age before redemption.
	LockPeriod time.Duration

	// EstimatedFee is quoted in redemption proposals.
	EstimatedFee uint64
}

func DefaultConfig() Config {
	return Config{
		LockPeriod:   7 * 24 * time.Hour,
		EstimatedFee: 1_000_000,
	}
}
