// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reserve

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/notechain/crypto/sigma"
)

// Event is one observed change to an on-chain reserve box. The set of
// shapes is closed; how events are produced is the scanner's concern.
type Event interface {
	// Box returns the reserve box the event applies to.
	Box() ids.ID

	// AtHeight returns the chain height the event was observed at.
	AtHeight() uint64
}

// Created reports a newly funded reserve box.
type Created struct {
	BoxID            ids.ID
	OwnerPubKey      sigma.PublicKey
	CollateralAmount uint64
	Height           uint64
}

// ToppedUp reports additional collateral deposited into a reserve.
type ToppedUp struct {
	BoxID                ids.ID
	AdditionalCollateral uint64
	Height               uint64
}

// Redeemed reports collateral released from a reserve by a redemption.
type Redeemed struct {
	BoxID          ids.ID
	RedeemedAmount uint64
	Height         uint64
}

// Spent reports a reserve box consumed entirely.
type Spent struct {
	BoxID  ids.ID
	Height uint64
}

func (e Created) Box() ids.ID      { return e.BoxID }
func (e Created) AtHeight() uint64 { return e.Height }

func (e ToppedUp) Box() ids.ID      { return e.BoxID }
func (e ToppedUp) AtHeight() uint64 { return e.Height }

func (e Redeemed) Box() ids.ID      { return e.BoxID }
func (e Redeemed) AtHeight() uint64 { return e.Height }

func (e Spent) Box() ids.ID      { return e.BoxID }
func (e Spent) AtHeight() uint64 { return e.Height }
