// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockPinAndAdvance(t *testing.T) {
	require := require.New(t)

	clock := &Clock{}
	pinned := time.Unix(1700000000, 0)
	clock.Set(pinned)
	require.Equal(pinned, clock.Time())
	require.Equal(uint64(1700000000), clock.Unix())

	clock.Advance(time.Hour)
	require.Equal(pinned.Add(time.Hour), clock.Time())

	clock.Sync()
	require.WithinDuration(time.Now(), clock.Time(), time.Minute)
}

func TestClockUnixClampsNegative(t *testing.T) {
	require := require.New(t)

	clock := &Clock{}
	clock.Set(time.Unix(-5, 0))
	require.Zero(clock.Unix())
}
