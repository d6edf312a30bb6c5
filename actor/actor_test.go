// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/redemption"
	"github.com/luxfi/notechain/reserve"
	"github.com/luxfi/notechain/tracker"
	"github.com/luxfi/notechain/utils/timeutil"
)

const testNow = uint64(1700000000)

func newTestActor(t *testing.T, cfg Config) *Actor {
	t.Helper()
	require := require.New(t)

	clock := &timeutil.Clock{}
	clock.Set(time.Unix(int64(testNow), 0))

	notes, err := tracker.New(memdb.New(), clock, tracker.DefaultConfig(), log.NoLog{})
	require.NoError(err)
	reserves, err := reserve.New(memdb.New(), clock, reserve.DefaultConfig(), log.NoLog{})
	require.NoError(err)
	redemptions := redemption.NewManager(notes, reserves, clock, redemption.DefaultConfig(), log.NoLog{})

	a, err := New(notes, reserves, redemptions, cfg, nil, log.NoLog{})
	require.NoError(err)
	t.Cleanup(a.Shutdown)
	return a
}

func signedNote(t *testing.T, issuer *sigma.PrivateKey, recipient sigma.PublicKey, amount uint64) *note.Note {
	t.Helper()
	n := &note.Note{
		RecipientPubKey: recipient,
		AmountCollected: amount,
		Timestamp:       testNow - 10,
	}
	sig, err := sigma.Sign(n.SigningMessage(), issuer)
	require.NoError(t, err)
	n.Signature = sig
	return n
}

func TestCommandRoundTrip(t *testing.T) {
	require := require.New(t)

	a := newTestActor(t, DefaultConfig())
	ctx := context.Background()

	issuer, err := sigma.GenerateKey()
	require.NoError(err)
	recipient, err := sigma.GenerateKey()
	require.NoError(err)

	require.NoError(a.AddNote(ctx, issuer.PublicKey(), signedNote(t, issuer, recipient.PublicKey(), 1000)))

	n, err := a.Note(ctx, issuer.PublicKey(), recipient.PublicKey())
	require.NoError(err)
	require.Equal(uint64(1000), n.Outstanding())

	byIssuer, err := a.NotesByIssuer(ctx, issuer.PublicKey())
	require.NoError(err)
	require.Len(byIssuer, 1)
	byRecipient, err := a.NotesByRecipient(ctx, recipient.PublicKey())
	require.NoError(err)
	require.Len(byRecipient, 1)
	all, err := a.Notes(ctx)
	require.NoError(err)
	require.Len(all, 1)

	state, err := a.State(ctx)
	require.NoError(err)
	require.Equal(uint64(1), state.LastCommitHeight)

	boxID := ids.GenerateTestID()
	require.NoError(a.ApplyReserveEvent(ctx, reserve.Created{
		BoxID:            boxID,
		OwnerPubKey:      issuer.PublicKey(),
		CollateralAmount: 10_000,
		Height:           1,
	}))
	require.NoError(a.AddDebt(ctx, boxID, 1000))

	n, err = a.CompleteRedemption(ctx, issuer.PublicKey(), recipient.PublicKey(), 400)
	require.NoError(err)
	require.Equal(uint64(600), n.Outstanding())

	p, err := a.GenerateProof(ctx)
	require.NoError(err)
	require.NoError(p.Verify())
	require.Len(p.Ops, 2)
}

func TestErrorsPassThrough(t *testing.T) {
	require := require.New(t)

	a := newTestActor(t, DefaultConfig())
	ctx := context.Background()

	issuer, err := sigma.GenerateKey()
	require.NoError(err)
	recipient, err := sigma.GenerateKey()
	require.NoError(err)

	_, err = a.Note(ctx, issuer.PublicKey(), recipient.PublicKey())
	require.ErrorIs(err, tracker.ErrNoteNotFound)

	require.ErrorIs(a.AddDebt(ctx, ids.GenerateTestID(), 1), reserve.ErrReserveNotFound)
}

func TestConcurrentSubmitters(t *testing.T) {
	require := require.New(t)

	a := newTestActor(t, Config{QueueDepth: 4})
	ctx := context.Background()

	const submitters = 8
	const notesEach = 25

	type submission struct {
		issuer sigma.PublicKey
		note   *note.Note
	}
	batches := make([][]submission, submitters)
	for i := range batches {
		issuer, err := sigma.GenerateKey()
		require.NoError(err)
		for j := 0; j < notesEach; j++ {
			recipient, err := sigma.GenerateKey()
			require.NoError(err)
			batches[i] = append(batches[i], submission{
				issuer: issuer.PublicKey(),
				note:   signedNote(t, issuer, recipient.PublicKey(), 100),
			})
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, submitters*notesEach)
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []submission) {
			defer wg.Done()
			for _, s := range batch {
				errs <- a.AddNote(ctx, s.issuer, s.note)
			}
		}(batch)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	all, err := a.Notes(ctx)
	require.NoError(err)
	require.Len(all, submitters*notesEach)

	// Every mutation advanced the state exactly once.
	state, err := a.State(ctx)
	require.NoError(err)
	require.Equal(uint64(submitters*notesEach), state.LastCommitHeight)
}

// orderCmd records its sequence number when applied. Execution happens
// on the single worker goroutine, so no locking is needed.
type orderCmd struct {
	i    int
	out  *[]int
	last bool
	done chan struct{}
}

func (c *orderCmd) execute(*Actor) error {
	*c.out = append(*c.out, c.i)
	if c.last {
		close(c.done)
	}
	return nil
}

func (c *orderCmd) fail(error) {}

func TestQueueIsStrictlyFIFO(t *testing.T) {
	require := require.New(t)

	const n = 64
	a := newTestActor(t, Config{QueueDepth: n})

	// Stall the worker so the queue fills in a known order.
	stall := &stallCmd{started: make(chan struct{}), release: make(chan struct{})}
	a.queue <- stall
	<-stall.started

	var applied []int
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		a.queue <- &orderCmd{i: i, out: &applied, last: i == n-1, done: done}
	}
	close(stall.release)
	<-done

	require.Len(applied, n)
	for i, got := range applied {
		require.Equal(i, got)
	}
}

type stallCmd struct {
	started chan struct{}
	release chan struct{}
}

func (c *stallCmd) execute(*Actor) error {
	close(c.started)
	<-c.release
	return nil
}

func (c *stallCmd) fail(error) {}

func TestSubmitHonorsCancellation(t *testing.T) {
	require := require.New(t)

	a := newTestActor(t, Config{QueueDepth: 1})

	// Occupy the worker and fill the queue so the next submission
	// must block on backpressure.
	stall := &stallCmd{started: make(chan struct{}), release: make(chan struct{})}
	a.queue <- stall
	<-stall.started
	a.queue <- &orderCmd{out: new([]int)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	issuer, err := sigma.GenerateKey()
	require.NoError(err)
	recipient, err := sigma.GenerateKey()
	require.NoError(err)
	err = a.AddNote(ctx, issuer.PublicKey(), signedNote(t, issuer, recipient.PublicKey(), 100))
	require.ErrorIs(err, context.Canceled)

	// The actor is unaffected: release the worker and use it again.
	close(stall.release)
	n := signedNote(t, issuer, recipient.PublicKey(), 100)
	require.NoError(a.AddNote(context.Background(), issuer.PublicKey(), n))
}

func TestShutdownRejectsNewCommands(t *testing.T) {
	require := require.New(t)

	a := newTestActor(t, DefaultConfig())
	a.Shutdown()

	issuer, err := sigma.GenerateKey()
	require.NoError(err)
	recipient, err := sigma.GenerateKey()
	require.NoError(err)
	err = a.AddNote(context.Background(), issuer.PublicKey(), signedNote(t, issuer, recipient.PublicKey(), 100))
	require.ErrorIs(err, ErrShuttingDown)

	// Shutdown is idempotent.
	a.Shutdown()
}

func TestDrainFailsQueuedCommands(t *testing.T) {
	require := require.New(t)

	// A bare actor whose worker never ran: drain must resolve every
	// queued command with the shutdown error.
	m, err := newMetrics(nil)
	require.NoError(err)
	a := &Actor{
		log:      log.NoLog{},
		metrics:  m,
		queue:    make(chan command, 8),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	responses := make([]chan error, 4)
	for i := range responses {
		responses[i] = make(chan error, 1)
		a.queue <- &addNoteCmd{response: responses[i]}
	}
	a.drain()
	for _, ch := range responses {
		require.ErrorIs(<-ch, ErrShuttingDown)
	}
}
