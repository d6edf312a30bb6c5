// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reserve

// Config holds the collateralization policy thresholds.
type Config struct {
	// WarningRatio marks reserves whose ratio has fallen to or below
	// it as under-collateralized but still solvent.
	WarningRatio float64

	// CriticalRatio is the floor below which new debt is refused. A
	// ratio at or below it classifies the reserve as critical.
	CriticalRatio float64
}

func DefaultConfig() Config {
	return Config{
		WarningRatio:  1.25,
		CriticalRatio: 1.0,
	}
}
