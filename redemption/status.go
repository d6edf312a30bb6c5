// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redemption

import (
	"time"

	"github.com/luxfi/notechain/note"
)

// NoteStatus is a note's position in the redemption lifecycle:
// Outstanding until the lock period elapses, then Redeemable, then
// PartiallyRedeemed once any amount has been redeemed, and finally
// FullyRedeemed, which is terminal.
type NoteStatus uint8

const (
	StatusOutstanding NoteStatus = iota
	StatusRedeemable
	StatusPartiallyRedeemed
	StatusFullyRedeemed
)

func (s NoteStatus) String() string {
	switch s {
	case StatusOutstanding:
		return "outstanding"
	case StatusRedeemable:
		return "redeemable"
	case StatusPartiallyRedeemed:
		return "partiallyRedeemed"
	case StatusFullyRedeemed:
		return "fullyRedeemed"
	default:
		return "unknown"
	}
}

// StatusOf classifies a note at the given unix time.
func StatusOf(n *note.Note, now uint64, lockPeriod time.Duration) NoteStatus {
	switch {
	case n.IsFullyRedeemed():
		return StatusFullyRedeemed
	case n.AmountRedeemed > 0:
		return StatusPartiallyRedeemed
	case now >= n.Timestamp+uint64(lockPeriod.Seconds()):
		return StatusRedeemable
	default:
		return StatusOutstanding
	}
}
