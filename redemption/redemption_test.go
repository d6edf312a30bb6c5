// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redemption

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/reserve"
	"github.com/luxfi/notechain/tracker"
	"github.com/luxfi/notechain/tree"
	"github.com/luxfi/notechain/utils/timeutil"
)

const testNow = uint64(1700000000)

type fixture struct {
	clock     *timeutil.Clock
	notes     *tracker.Tracker
	reserves  *reserve.Tracker
	manager   *Manager
	issuer    *sigma.PrivateKey
	recipient *sigma.PrivateKey
	boxID     ids.ID
}

// newFixture seeds a 1000-unit note aged past the lock period, backed
// by a reserve carrying 1000 debt against ample collateral.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	require := require.New(t)

	clock := &timeutil.Clock{}
	clock.Set(time.Unix(int64(testNow), 0))

	notes, err := tracker.New(memdb.New(), clock, tracker.DefaultConfig(), log.NoLog{})
	require.NoError(err)
	reserves, err := reserve.New(memdb.New(), clock, reserve.DefaultConfig(), log.NoLog{})
	require.NoError(err)

	issuer, err := sigma.GenerateKey()
	require.NoError(err)
	recipient, err := sigma.GenerateKey()
	require.NoError(err)

	cfg := DefaultConfig()
	issuedAt := testNow - uint64(cfg.LockPeriod.Seconds()) - 1
	n := &note.Note{
		RecipientPubKey: recipient.PublicKey(),
		AmountCollected: 1000,
		Timestamp:       issuedAt,
	}
	sig, err := sigma.Sign(n.SigningMessage(), issuer)
	require.NoError(err)
	n.Signature = sig
	require.NoError(notes.AddNote(issuer.PublicKey(), n))

	boxID := ids.GenerateTestID()
	require.NoError(reserves.ApplyEvent(reserve.Created{
		BoxID:            boxID,
		OwnerPubKey:      issuer.PublicKey(),
		CollateralAmount: 10_000,
		Height:           1,
	}))
	require.NoError(reserves.AddDebt(boxID, 1000))

	return &fixture{
		clock:     clock,
		notes:     notes,
		reserves:  reserves,
		manager:   NewManager(notes, reserves, clock, cfg, log.NoLog{}),
		issuer:    issuer,
		recipient: recipient,
		boxID:     boxID,
	}
}

func (f *fixture) request(amount uint64) Request {
	return Request{
		IssuerPubKey:    f.issuer.PublicKey(),
		RecipientPubKey: f.recipient.PublicKey(),
		Amount:          amount,
		BoxID:           f.boxID,
	}
}

func TestInitiateReturnsProposal(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	data, err := f.manager.Initiate(f.request(400))
	require.NoError(err)
	require.NotEmpty(data.RedemptionID)
	require.Equal(DefaultConfig().EstimatedFee, data.EstimatedFee)
	require.Equal([]sigma.PublicKey{f.issuer.PublicKey(), f.recipient.PublicKey()}, data.RequiredSigners)
	require.Len(data.UnsignedPayload, note.KeyLen+8+ids.IDLen)

	// A proposal applies nothing.
	n, err := f.notes.LookupNote(f.issuer.PublicKey(), f.recipient.PublicKey())
	require.NoError(err)
	require.Equal(uint64(1000), n.Outstanding())
}

func TestInitiateRejectsUnknownReserve(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	req := f.request(400)
	req.BoxID = ids.GenerateTestID()
	_, err := f.manager.Initiate(req)
	require.ErrorIs(err, reserve.ErrReserveNotFound)
}

func TestInitiateRejectsExcessiveAmount(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	_, err := f.manager.Initiate(f.request(1001))
	require.ErrorIs(err, ErrAmountExceedsDebt)
}

func TestInitiateRejectsYoungNote(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)

	// Wind the clock back to one second before the lock elapses.
	f.clock.Set(time.Unix(int64(testNow-2), 0))
	_, err := f.manager.Initiate(f.request(400))
	require.ErrorIs(err, ErrRedemptionTooEarly)

	// The same request succeeds once the note has aged.
	f.clock.Set(time.Unix(int64(testNow), 0))
	_, err = f.manager.Initiate(f.request(400))
	require.NoError(err)
}

func TestCompleteDrivesNoteAndReserve(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)

	n, err := f.manager.Complete(f.issuer.PublicKey(), f.recipient.PublicKey(), 500)
	require.NoError(err)
	require.Equal(uint64(500), n.Outstanding())
	require.False(n.IsFullyRedeemed())

	n, err = f.manager.Complete(f.issuer.PublicKey(), f.recipient.PublicKey(), 500)
	require.NoError(err)
	require.Zero(n.Outstanding())
	require.True(n.IsFullyRedeemed())

	info, err := f.reserves.GetReserve(f.boxID)
	require.NoError(err)
	require.Zero(info.TotalDebt)
}

func TestCompleteWithoutReserveStillApplies(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	require.NoError(f.reserves.ApplyEvent(reserve.Spent{BoxID: f.boxID, Height: 2}))

	n, err := f.manager.Complete(f.issuer.PublicKey(), f.recipient.PublicKey(), 250)
	require.NoError(err)
	require.Equal(uint64(750), n.Outstanding())
}

func TestCompleteUnknownNote(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	other, err := sigma.GenerateKey()
	require.NoError(err)
	_, err = f.manager.Complete(f.issuer.PublicKey(), other.PublicKey(), 100)
	require.ErrorIs(err, tracker.ErrNoteNotFound)
}

func TestVerifyProof(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	n, err := f.notes.LookupNote(f.issuer.PublicKey(), f.recipient.PublicKey())
	require.NoError(err)

	p, err := f.notes.GenerateProof()
	require.NoError(err)
	require.NoError(f.manager.VerifyProof(p, n, f.issuer.PublicKey()))

	// A proof sealed before a later mutation no longer matches the
	// current root.
	_, err = f.manager.Complete(f.issuer.PublicKey(), f.recipient.PublicKey(), 100)
	require.NoError(err)
	require.ErrorIs(f.manager.VerifyProof(p, n, f.issuer.PublicKey()), tree.ErrInvalidProof)

	// A fresh proof over the updated note verifies again.
	n, err = f.notes.LookupNote(f.issuer.PublicKey(), f.recipient.PublicKey())
	require.NoError(err)
	p, err = f.notes.GenerateProof()
	require.NoError(err)
	require.NoError(f.manager.VerifyProof(p, n, f.issuer.PublicKey()))

	// The proof must commit to the exact note claimed.
	tampered := *n
	tampered.AmountRedeemed++
	require.ErrorIs(f.manager.VerifyProof(p, &tampered, f.issuer.PublicKey()), ErrProofMismatch)
}

func TestStatusLifecycle(t *testing.T) {
	require := require.New(t)

	lock := DefaultConfig().LockPeriod
	n := &note.Note{AmountCollected: 1000, Timestamp: testNow}

	require.Equal(StatusOutstanding, StatusOf(n, testNow+1, lock))
	require.Equal(StatusRedeemable, StatusOf(n, testNow+uint64(lock.Seconds()), lock))

	n.AmountRedeemed = 400
	require.Equal(StatusPartiallyRedeemed, StatusOf(n, testNow+uint64(lock.Seconds()), lock))

	n.AmountRedeemed = 1000
	require.Equal(StatusFullyRedeemed, StatusOf(n, testNow, lock))
}
