// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reserve tracks the collateral reserves backing outstanding
// note debt and enforces the collateralization floor on debt issuance.
package reserve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/utils/timeutil"
)

var (
	ErrReserveNotFound        = errors.New("reserve not found")
	ErrInsufficientCollateral = errors.New("insufficient collateral for requested debt")
	ErrDebtOverflow           = errors.New("total debt would overflow")
	ErrCollateralOverflow     = errors.New("collateral amount would overflow")
)

// Totals aggregates collateral and debt across every tracked reserve.
type Totals struct {
	TotalCollateral uint64
	TotalDebt       uint64
}

// Tracker maintains the boxID keyed reserve set plus an owner index.
// Reserves persist to the backing database on every mutation; the
// in-memory maps are the working set, reloaded on construction.
//
// Each owner has at most one active reserve. A Created event for an
// owner with an existing reserve repoints the index to the new box.
type Tracker struct {
	log   log.Logger
	clock *timeutil.Clock
	cfg   Config
	db    database.Database

	mu       sync.RWMutex
	reserves map[ids.ID]*Info
	byOwner  map[sigma.PublicKey]ids.ID
}

// New opens the tracker over db and loads the persisted reserve set.
func New(db database.Database, clock *timeutil.Clock, cfg Config, logger log.Logger) (*Tracker, error) {
	t := &Tracker{
		log:      logger,
		clock:    clock,
		cfg:      cfg,
		db:       db,
		reserves: make(map[ids.ID]*Info),
		byOwner:  make(map[sigma.PublicKey]ids.ID),
	}

	iter := db.NewIterator()
	defer iter.Release()
	for iter.Next() {
		info := &Info{}
		if _, err := Codec.Unmarshal(iter.Value(), info); err != nil {
			return nil, fmt.Errorf("reserve load failed: %w", err)
		}
		t.reserves[info.BoxID] = info
		t.byOwner[info.OwnerPubKey] = info.BoxID
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("reserve scan failed: %w", err)
	}
	if n := len(t.reserves); n > 0 {
		logger.Info("loaded reserves", log.Int("count", n))
	}
	return t, nil
}

// UpdateReserve upserts a reserve record.
func (t *Tracker) UpdateReserve(info Info) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info.LastUpdatedTimestamp = t.clock.Unix()
	return t.put(&info)
}

// GetReserve returns a copy of the reserve for boxID.
func (t *Tracker) GetReserve(boxID ids.ID) (Info, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.reserves[boxID]
	if !ok {
		return Info{}, ErrReserveNotFound
	}
	return *info, nil
}

// GetReserveByOwner returns a copy of the owner's active reserve.
func (t *Tracker) GetReserveByOwner(owner sigma.PublicKey) (Info, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	boxID, ok := t.byOwner[owner]
	if !ok {
		return Info{}, ErrReserveNotFound
	}
	return *t.reserves[boxID], nil
}

// AddDebt registers newly issued debt against a reserve. The resulting
// collateralization ratio is computed before committing; a ratio at or
// below the critical floor rejects the debt and leaves the reserve
// unchanged.
func (t *Tracker) AddDebt(boxID ids.ID, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.reserves[boxID]
	if !ok {
		return ErrReserveNotFound
	}
	newDebt, err := safemath.Add64(info.TotalDebt, amount)
	if err != nil {
		return ErrDebtOverflow
	}
	if ratio(info.backing(), newDebt) <= t.cfg.CriticalRatio {
		return fmt.Errorf("%w: backing %d, debt would be %d",
			ErrInsufficientCollateral, info.backing(), newDebt)
	}

	updated := *info
	updated.TotalDebt = newDebt
	updated.LastUpdatedTimestamp = t.clock.Unix()
	if err := t.put(&updated); err != nil {
		return err
	}
	if updated.Status(t.cfg) == StatusWarning {
		t.log.Warn("reserve under-collateralized",
			log.String("boxID", boxID.String()),
			log.String("ratio", fmt.Sprintf("%.3f", updated.CollateralizationRatio())),
		)
	}
	return nil
}

// ReduceDebt retires repaid debt, saturating at zero. It returns the
// amount actually retired.
func (t *Tracker) ReduceDebt(boxID ids.ID, amount uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.reserves[boxID]
	if !ok {
		return 0, ErrReserveNotFound
	}
	retired := amount
	if retired > info.TotalDebt {
		retired = info.TotalDebt
	}

	updated := *info
	updated.TotalDebt -= retired
	updated.LastUpdatedTimestamp = t.clock.Unix()
	if err := t.put(&updated); err != nil {
		return 0, err
	}
	return retired, nil
}

// SystemTotals sums collateral and debt over every reserve at call
// time. The result always equals the sum of the individual records.
func (t *Tracker) SystemTotals() Totals {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var totals Totals
	for _, info := range t.reserves {
		totals.TotalCollateral += info.CollateralAmount
		totals.TotalDebt += info.TotalDebt
	}
	return totals
}

// ApplyEvent folds one observed on-chain reserve change into the set.
func (t *Tracker) ApplyEvent(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case Created:
		info := &Info{
			BoxID:                e.BoxID,
			OwnerPubKey:          e.OwnerPubKey,
			CollateralAmount:     e.CollateralAmount,
			LastUpdatedHeight:    e.Height,
			LastUpdatedTimestamp: t.clock.Unix(),
		}
		return t.put(info)

	case ToppedUp:
		info, ok := t.reserves[e.BoxID]
		if !ok {
			return ErrReserveNotFound
		}
		newCollateral, err := safemath.Add64(info.CollateralAmount, e.AdditionalCollateral)
		if err != nil {
			return ErrCollateralOverflow
		}
		updated := *info
		updated.CollateralAmount = newCollateral
		updated.LastUpdatedHeight = e.Height
		updated.LastUpdatedTimestamp = t.clock.Unix()
		return t.put(&updated)

	case Redeemed:
		info, ok := t.reserves[e.BoxID]
		if !ok {
			return ErrReserveNotFound
		}
		released := e.RedeemedAmount
		if released > info.CollateralAmount {
			released = info.CollateralAmount
		}
		updated := *info
		updated.CollateralAmount -= released
		updated.LastUpdatedHeight = e.Height
		updated.LastUpdatedTimestamp = t.clock.Unix()
		return t.put(&updated)

	case Spent:
		info, ok := t.reserves[e.BoxID]
		if !ok {
			return ErrReserveNotFound
		}
		if err := t.db.Delete(e.BoxID[:]); err != nil {
			return fmt.Errorf("reserve delete failed: %w", err)
		}
		delete(t.reserves, e.BoxID)
		if t.byOwner[info.OwnerPubKey] == e.BoxID {
			delete(t.byOwner, info.OwnerPubKey)
		}
		return nil

	default:
		return fmt.Errorf("unknown reserve event %T", ev)
	}
}

// put persists info and installs it in the working set. Callers hold
// the write lock.
func (t *Tracker) put(info *Info) error {
	raw, err := Codec.Marshal(codecVersion, info)
	if err != nil {
		return fmt.Errorf("reserve encode failed: %w", err)
	}
	if err := t.db.Put(info.BoxID[:], raw); err != nil {
		return fmt.Errorf("reserve write failed: %w", err)
	}
	t.reserves[info.BoxID] = info
	t.byOwner[info.OwnerPubKey] = info.BoxID
	return nil
}
