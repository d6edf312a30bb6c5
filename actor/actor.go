// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package actor serializes every ledger-mutating operation through one
// bounded FIFO queue drained by a single goroutine. The resulting
// total order over tree operations is what makes the commitment root
// digest well defined.
package actor

import (
	"context"
	"errors"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/redemption"
	"github.com/luxfi/notechain/reserve"
	"github.com/luxfi/notechain/tracker"
	"github.com/luxfi/notechain/tree"
)

var ErrShuttingDown = errors.New("actor is shutting down")

// Actor owns the tracker, reserve set and redemption manager on behalf
// of all callers. Mutations are applied strictly in submission order;
// a full queue blocks submitters rather than dropping or reordering.
type Actor struct {
	log         log.Logger
	notes       *tracker.Tracker
	reserves    *reserve.Tracker
	redemptions *redemption.Manager
	metrics     *actorMetrics

	queue    chan command
	shutdown chan struct{}
	done     chan struct{}
}

// New starts the actor's worker goroutine. Pass a nil registerer to
// skip metric registration.
func New(
	notes *tracker.Tracker,
	reserves *reserve.Tracker,
	redemptions *redemption.Manager,
	cfg Config,
	registerer metric.Registerer,
	logger log.Logger,
) (*Actor, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	a := &Actor{
		log:         logger,
		notes:       notes,
		reserves:    reserves,
		redemptions: redemptions,
		metrics:     m,
		queue:       make(chan command, cfg.QueueDepth),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// run drains the queue until shutdown. The shutdown token is observed
// between commands, never mid-command, so an in-flight command always
// completes.
func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case <-a.shutdown:
			a.drain()
			return
		case cmd := <-a.queue:
			if err := cmd.execute(a); err != nil {
				a.metrics.commandsRejected.Inc()
			} else {
				a.metrics.commandsApplied.Inc()
			}
			a.metrics.queueDepth.Set(float64(len(a.queue)))
		}
	}
}

// drain resolves every queued command with a shutdown error.
func (a *Actor) drain() {
	for {
		select {
		case cmd := <-a.queue:
			cmd.fail(ErrShuttingDown)
			a.metrics.commandsRejected.Inc()
		default:
			a.metrics.queueDepth.Set(0)
			return
		}
	}
}

// Shutdown stops the actor and waits for the worker to exit. Queued
// commands resolve with ErrShuttingDown; the command being applied
// when Shutdown is called completes normally.
func (a *Actor) Shutdown() {
	select {
	case <-a.shutdown:
	default:
		close(a.shutdown)
	}
	<-a.done
	a.log.Info("actor stopped")
}

// submit enqueues cmd, blocking while the queue is full. The caller's
// context cancels the wait; a cancelled submission never enters the
// queue.
func (a *Actor) submit(ctx context.Context, cmd command) error {
	select {
	case <-a.shutdown:
		return ErrShuttingDown
	default:
	}
	select {
	case a.queue <- cmd:
		a.metrics.queueDepth.Set(float64(len(a.queue)))
		return nil
	case <-a.shutdown:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await submits cmd and waits on its response channel. The channel is
// buffered, so a caller abandoning the wait leaves the actor
// unaffected.
func await[T any](ctx context.Context, a *Actor, cmd command, response chan result[T]) (T, error) {
	var zero T
	if err := a.submit(ctx, cmd); err != nil {
		return zero, err
	}
	select {
	case r := <-response:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// awaitErr is await for commands that only produce an error.
func awaitErr(ctx context.Context, a *Actor, cmd command, response chan error) error {
	if err := a.submit(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-response:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddNote records a newly issued note.
func (a *Actor) AddNote(ctx context.Context, issuer sigma.PublicKey, n *note.Note) error {
	cmd := &addNoteCmd{issuer: issuer, note: n, response: make(chan error, 1)}
	return awaitErr(ctx, a, cmd, cmd.response)
}

// Notes returns the full ledger.
func (a *Actor) Notes(ctx context.Context) ([]tracker.Record, error) {
	cmd := &notesCmd{response: make(chan result[[]tracker.Record], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// NotesByIssuer returns every note issued by the given key.
func (a *Actor) NotesByIssuer(ctx context.Context, issuer sigma.PublicKey) ([]tracker.Record, error) {
	cmd := &notesByIssuerCmd{issuer: issuer, response: make(chan result[[]tracker.Record], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// NotesByRecipient returns every note addressed to the given key.
func (a *Actor) NotesByRecipient(ctx context.Context, recipient sigma.PublicKey) ([]tracker.Record, error) {
	cmd := &notesByRecipientCmd{recipient: recipient, response: make(chan result[[]tracker.Record], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// Note returns the note for an (issuer, recipient) pair.
func (a *Actor) Note(ctx context.Context, issuer, recipient sigma.PublicKey) (*note.Note, error) {
	cmd := &noteByPairCmd{issuer: issuer, recipient: recipient, response: make(chan result[*note.Note], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// InitiateRedemption validates a redemption request and returns a
// proposal.
func (a *Actor) InitiateRedemption(ctx context.Context, req redemption.Request) (redemption.Data, error) {
	cmd := &initiateRedemptionCmd{request: req, response: make(chan result[redemption.Data], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// CompleteRedemption applies a redemption to the ledger and reserve.
func (a *Actor) CompleteRedemption(ctx context.Context, issuer, recipient sigma.PublicKey, amount uint64) (*note.Note, error) {
	cmd := &completeRedemptionCmd{issuer: issuer, recipient: recipient, amount: amount, response: make(chan result[*note.Note], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// GenerateProof seals and returns the pending tree operation batch.
func (a *Actor) GenerateProof(ctx context.Context) (*tree.Proof, error) {
	cmd := &generateProofCmd{response: make(chan result[*tree.Proof], 1)}
	return await(ctx, a, cmd, cmd.response)
}

// AddDebt registers newly issued debt against a reserve.
func (a *Actor) AddDebt(ctx context.Context, boxID ids.ID, amount uint64) error {
	cmd := &addDebtCmd{boxID: boxID, amount: amount, response: make(chan error, 1)}
	return awaitErr(ctx, a, cmd, cmd.response)
}

// ApplyReserveEvent folds one observed reserve change into the set.
func (a *Actor) ApplyReserveEvent(ctx context.Context, ev reserve.Event) error {
	cmd := &applyReserveEventCmd{event: ev, response: make(chan error, 1)}
	return awaitErr(ctx, a, cmd, cmd.response)
}

// State returns the current tracker state snapshot.
func (a *Actor) State(ctx context.Context) (tracker.State, error) {
	cmd := &getStateCmd{response: make(chan result[tracker.State], 1)}
	return await(ctx, a, cmd, cmd.response)
}
