// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/redemption"
	"github.com/luxfi/notechain/reserve"
	"github.com/luxfi/notechain/tracker"
	"github.com/luxfi/notechain/tree"
)

// command is one queued request. The set of implementations below is
// the complete command vocabulary; each carries a buffered single-use
// response channel so the actor never blocks on a slow or departed
// caller.
type command interface {
	// execute runs the command against the actor's owned state.
	execute(a *Actor) error

	// fail resolves the command without executing it.
	fail(err error)
}

// result pairs a value with an error on one response channel.
type result[T any] struct {
	value T
	err   error
}

type addNoteCmd struct {
	issuer   sigma.PublicKey
	note     *note.Note
	response chan error
}

func (c *addNoteCmd) execute(a *Actor) error {
	err := a.notes.AddNote(c.issuer, c.note)
	c.response <- err
	return err
}

func (c *addNoteCmd) fail(err error) { c.response <- err }

type notesCmd struct {
	response chan result[[]tracker.Record]
}

func (c *notesCmd) execute(a *Actor) error {
	records, err := a.notes.AllNotes()
	c.response <- result[[]tracker.Record]{value: records, err: err}
	return err
}

func (c *notesCmd) fail(err error) { c.response <- result[[]tracker.Record]{err: err} }

type notesByIssuerCmd struct {
	issuer   sigma.PublicKey
	response chan result[[]tracker.Record]
}

func (c *notesByIssuerCmd) execute(a *Actor) error {
	records, err := a.notes.IssuerNotes(c.issuer)
	c.response <- result[[]tracker.Record]{value: records, err: err}
	return err
}

func (c *notesByIssuerCmd) fail(err error) { c.response <- result[[]tracker.Record]{err: err} }

type notesByRecipientCmd struct {
	recipient sigma.PublicKey
	response  chan result[[]tracker.Record]
}

func (c *notesByRecipientCmd) execute(a *Actor) error {
	records, err := a.notes.RecipientNotes(c.recipient)
	c.response <- result[[]tracker.Record]{value: records, err: err}
	return err
}

func (c *notesByRecipientCmd) fail(err error) { c.response <- result[[]tracker.Record]{err: err} }

type noteByPairCmd struct {
	issuer    sigma.PublicKey
	recipient sigma.PublicKey
	response  chan result[*note.Note]
}

func (c *noteByPairCmd) execute(a *Actor) error {
	n, err := a.notes.LookupNote(c.issuer, c.recipient)
	c.response <- result[*note.Note]{value: n, err: err}
	return err
}

func (c *noteByPairCmd) fail(err error) { c.response <- result[*note.Note]{err: err} }

type initiateRedemptionCmd struct {
	request  redemption.Request
	response chan result[redemption.Data]
}

func (c *initiateRedemptionCmd) execute(a *Actor) error {
	data, err := a.redemptions.Initiate(c.request)
	c.response <- result[redemption.Data]{value: data, err: err}
	return err
}

func (c *initiateRedemptionCmd) fail(err error) { c.response <- result[redemption.Data]{err: err} }

type completeRedemptionCmd struct {
	issuer    sigma.PublicKey
	recipient sigma.PublicKey
	amount    uint64
	response  chan result[*note.Note]
}

func (c *completeRedemptionCmd) execute(a *Actor) error {
	n, err := a.redemptions.Complete(c.issuer, c.recipient, c.amount)
	c.response <- result[*note.Note]{value: n, err: err}
	return err
}

func (c *completeRedemptionCmd) fail(err error) { c.response <- result[*note.Note]{err: err} }

type generateProofCmd struct {
	response chan result[*tree.Proof]
}

func (c *generateProofCmd) execute(a *Actor) error {
	p, err := a.notes.GenerateProof()
	c.response <- result[*tree.Proof]{value: p, err: err}
	return err
}

func (c *generateProofCmd) fail(err error) { c.response <- result[*tree.Proof]{err: err} }

type addDebtCmd struct {
	boxID    ids.ID
	amount   uint64
	response chan error
}

func (c *addDebtCmd) execute(a *Actor) error {
	err := a.reserves.AddDebt(c.boxID, c.amount)
	c.response <- err
	return err
}

func (c *addDebtCmd) fail(err error) { c.response <- err }

type applyReserveEventCmd struct {
	event    reserve.Event
	response chan error
}

func (c *applyReserveEventCmd) execute(a *Actor) error {
	err := a.reserves.ApplyEvent(c.event)
	c.response <- err
	return err
}

func (c *applyReserveEventCmd) fail(err error) { c.response <- err }

type getStateCmd struct {
	response chan result[tracker.State]
}

func (c *getStateCmd) execute(a *Actor) error {
	c.response <- result[tracker.State]{value: a.notes.GetState()}
	return nil
}

func (c *getStateCmd) fail(err error) { c.response <- result[tracker.State]{err: err} }
