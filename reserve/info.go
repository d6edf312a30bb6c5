// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reserve

import (
	"errors"
	"math"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
	"github.com/luxfi/ids"

	"github.com/luxfi/notechain/crypto/sigma"
)

const codecVersion = 0

var Codec codec.Manager

func init() {
	Codec = codec.NewManager(math.MaxInt)
	lc := linearcodec.NewDefault()

	err := errors.Join(
		lc.RegisterType(&Info{}),
		Codec.RegisterCodec(codecVersion, lc),
	)
	if err != nil {
		panic(err)
	}
}

// Status classifies a reserve by its collateralization ratio.
type Status uint8

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Info describes one collateral reserve box. A reserve backs its
// owner's outstanding note debt either with native collateral or, when
// HasToken is set, with a fungible token balance.
type Info struct {
	BoxID            ids.ID          `serialize:"true" json:"boxID"`
	OwnerPubKey      sigma.PublicKey `serialize:"true" json:"ownerPubKey"`
	CollateralAmount uint64          `serialize:"true" json:"collateralAmount"`

	HasToken    bool   `serialize:"true" json:"hasToken"`
	TokenID     ids.ID `serialize:"true" json:"tokenID"`
	TokenAmount uint64 `serialize:"true" json:"tokenAmount"`

	TotalDebt            uint64 `serialize:"true" json:"totalDebt"`
	LastUpdatedHeight    uint64 `serialize:"true" json:"lastUpdatedHeight"`
	LastUpdatedTimestamp uint64 `serialize:"true" json:"lastUpdatedTimestamp"`
}

// backing is the value securing the debt: the token balance when the
// reserve is token-backed, native collateral otherwise.
func (i *Info) backing() uint64 {
	if i.HasToken {
		return i.TokenAmount
	}
	return i.CollateralAmount
}

// CollateralizationRatio is backing divided by debt, +Inf for a
// debt-free reserve.
func (i *Info) CollateralizationRatio() float64 {
	return ratio(i.backing(), i.TotalDebt)
}

// Status classifies the reserve against the configured thresholds.
// A critical reserve is also in warning territory.
func (i *Info) Status(cfg Config) Status {
	r := i.CollateralizationRatio()
	switch {
	case r <= cfg.CriticalRatio:
		return StatusCritical
	case r <= cfg.WarningRatio:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

func ratio(backing, debt uint64) float64 {
	if debt == 0 {
		return math.Inf(1)
	}
	return float64(backing) / float64(debt)
}
