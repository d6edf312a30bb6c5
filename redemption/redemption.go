// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package redemption drives the note redemption protocol: proposing
// redemptions against the time lock and outstanding debt, applying
// completed redemptions to the ledger and the backing reserve, and
// verifying tree proofs before collateral release.
package redemption

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/reserve"
	"github.com/luxfi/notechain/tracker"
	"github.com/luxfi/notechain/tree"
	"github.com/luxfi/notechain/utils/timeutil"
)

var (
	// ErrRedemptionTooEarly is retryable: the same request succeeds
	// once the note has aged past the lock period.
	ErrRedemptionTooEarly = errors.New("note still inside redemption lock period")

	// ErrAmountExceedsDebt is a hard validation failure.
	ErrAmountExceedsDebt = errors.New("redemption amount exceeds outstanding debt")

	ErrProofMismatch = errors.New("proof does not commit to the claimed note")
)

// Request asks to redeem part of a note's outstanding debt against the
// issuer's collateral reserve.
type Request struct {
	IssuerPubKey    sigma.PublicKey
	RecipientPubKey sigma.PublicKey
	Amount          uint64
	BoxID           ids.ID
}

// Data is a redemption proposal. Nothing has been applied; the caller
// collects the required signatures over UnsignedPayload and submits
// completion separately.
type Data struct {
	RedemptionID    uuid.UUID
	UnsignedPayload []byte
	RequiredSigners []sigma.PublicKey
	EstimatedFee    uint64
}

// Manager validates and applies redemptions against the note ledger
// and the reserve set.
type Manager struct {
	log      log.Logger
	clock    *timeutil.Clock
	cfg      Config
	notes    *tracker.Tracker
	reserves *reserve.Tracker
}

func NewManager(
	notes *tracker.Tracker,
	reserves *reserve.Tracker,
	clock *timeutil.Clock,
	cfg Config,
	logger log.Logger,
) *Manager {
	return &Manager{
		log:      logger,
		clock:    clock,
		cfg:      cfg,
		notes:    notes,
		reserves: reserves,
	}
}

// Initiate validates a redemption request and returns a proposal. The
// referenced reserve must exist, the amount must fit within the note's
// outstanding debt, and the note must have aged past the lock period.
func (m *Manager) Initiate(req Request) (Data, error) {
	if _, err := m.reserves.GetReserve(req.BoxID); err != nil {
		return Data{}, err
	}
	n, err := m.notes.LookupNote(req.IssuerPubKey, req.RecipientPubKey)
	if err != nil {
		return Data{}, err
	}
	if req.Amount > n.Outstanding() {
		return Data{}, fmt.Errorf("%w: requested %d, outstanding %d",
			ErrAmountExceedsDebt, req.Amount, n.Outstanding())
	}

	now := m.clock.Unix()
	lock := uint64(m.cfg.LockPeriod.Seconds())
	if now < n.Timestamp+lock {
		return Data{}, fmt.Errorf("%w: redeemable at %d, now %d",
			ErrRedemptionTooEarly, n.Timestamp+lock, now)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Data{}, err
	}
	data := Data{
		RedemptionID:    id,
		UnsignedPayload: unsignedPayload(req),
		RequiredSigners: []sigma.PublicKey{req.IssuerPubKey, req.RecipientPubKey},
		EstimatedFee:    m.cfg.EstimatedFee,
	}
	m.log.Debug("redemption proposed",
		log.String("redemptionID", id.String()),
		log.Uint64("amount", req.Amount),
	)
	return data, nil
}

// Complete applies a redemption: the ledger's redeemed amount advances
// (clamped at the collected amount) and the retired debt is reflected
// in the issuer's reserve. A missing reserve is logged, not fatal; the
// ledger update has already committed.
func (m *Manager) Complete(issuer, recipient sigma.PublicKey, amount uint64) (*note.Note, error) {
	n, retired, err := m.notes.CompleteRedemption(issuer, recipient, amount)
	if err != nil {
		return nil, err
	}
	if retired == 0 {
		return n, nil
	}

	info, err := m.reserves.GetReserveByOwner(issuer)
	if err != nil {
		m.log.Warn("redeemed note has no backing reserve",
			log.Err(err),
			log.Uint64("retired", retired),
		)
		return n, nil
	}
	if _, err := m.reserves.ReduceDebt(info.BoxID, retired); err != nil {
		return nil, err
	}
	return n, nil
}

// VerifyProof re-derives whether a previously generated tree proof is
// consistent with the claimed note under the current commitment root.
// It is the final check before collateral release is authorized.
func (m *Manager) VerifyProof(p *tree.Proof, n *note.Note, issuer sigma.PublicKey) error {
	if err := p.Verify(); err != nil {
		return err
	}
	root := m.notes.RootDigest()
	if !bytes.Equal(p.PostRoot, root.Bytes()) {
		return fmt.Errorf("%w: proof root is stale", tree.ErrInvalidProof)
	}
	key := note.NewKey(issuer, n.RecipientPubKey)
	if !p.CommitsTo(key.Bytes(), n.TreeValue()) {
		return ErrProofMismatch
	}
	return nil
}

// unsignedPayload is the deterministic byte string the required
// signers authorize: noteKey(64) || amount(8 BE) || boxID(32).
func unsignedPayload(req Request) []byte {
	key := note.NewKey(req.IssuerPubKey, req.RecipientPubKey)
	payload := make([]byte, 0, note.KeyLen+8+ids.IDLen)
	payload = append(payload, key.Bytes()...)
	payload = binary.BigEndian.AppendUint64(payload, req.Amount)
	payload = append(payload, req.BoxID[:]...)
	return payload
}
