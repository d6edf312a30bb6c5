// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tracker owns the persisted note ledger, the commitment tree
// and the published tracker state, and keeps the three mutually
// consistent: every applied mutation updates all of them or none.
package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/notechain/crypto/sigma"
	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/tree"
	"github.com/luxfi/notechain/utils/timeutil"
)

var (
	ErrDuplicateNote   = errors.New("note already exists for issuer and recipient")
	ErrNoteNotFound    = errors.New("note not found")
	ErrFutureTimestamp = errors.New("note timestamp too far in the future")
	ErrDuplicateNonce  = errors.New("signature nonce already used")

	notePrefix  = []byte("note")
	noncePrefix = []byte("nonce")
	treePrefix  = []byte("tree")
	oplogPrefix = []byte("oplog")
	statePrefix = []byte("state")

	stateKey = []byte("current")
)

// Record is a ledger entry together with its issuer and key.
type Record struct {
	Key    note.Key
	Issuer sigma.PublicKey
	Note   *note.Note
}

// Tracker is the sole owner of the note store, the commitment tree and
// the current State. Mutations are expected to arrive from a single
// writer (the command actor); the internal lock exists to give
// concurrent readers consistent snapshots, not to serialize writers.
type Tracker struct {
	log   log.Logger
	clock *timeutil.Clock
	cfg   Config

	db      *versiondb.Database
	noteDB  database.Database
	nonceDB database.Database
	treeDB  database.Database
	oplogDB database.Database
	stateDB database.Database

	tree *tree.Tree

	mu    sync.RWMutex
	state State
}

// New opens the tracker over the given database, recovering the
// commitment tree from its last checkpoint and replaying any logged
// post-checkpoint operations.
func New(db database.Database, clock *timeutil.Clock, cfg Config, logger log.Logger) (*Tracker, error) {
	vdb := versiondb.New(db)
	t := &Tracker{
		log:     logger,
		clock:   clock,
		cfg:     cfg,
		db:      vdb,
		noteDB:  prefixdb.New(notePrefix, vdb),
		nonceDB: prefixdb.New(noncePrefix, vdb),
		treeDB:  prefixdb.New(treePrefix, vdb),
		oplogDB: prefixdb.New(oplogPrefix, vdb),
		stateDB: prefixdb.New(statePrefix, vdb),
	}

	recovered, err := tree.Recover(t.treeDB, logger)
	switch {
	case errors.Is(err, tree.ErrNoCheckpoint):
		t.tree = tree.New(logger)
	case err != nil:
		return nil, err
	default:
		t.tree = recovered
	}

	if err := t.replayOpLog(); err != nil {
		return nil, err
	}

	stateBytes, err := t.stateDB.Get(stateKey)
	switch {
	case errors.Is(err, database.ErrNotFound):
		t.state = State{CommitmentRoot: t.tree.RootDigest()}
	case err != nil:
		return nil, fmt.Errorf("state read failed: %w", err)
	default:
		if t.state, err = parseState(stateBytes); err != nil {
			return nil, err
		}
	}

	// The tree is authoritative after replay; a stale persisted root
	// means the process died between tree and state writes.
	if root := t.tree.RootDigest(); t.state.CommitmentRoot != root {
		logger.Warn("persisted state root lagged tree; realigning",
			log.Uint64("seq", t.tree.Seq()),
		)
		t.state.CommitmentRoot = root
		t.state.LastCommitHeight = t.tree.Seq()
	}
	return t, nil
}

func (t *Tracker) replayOpLog() error {
	iter := t.oplogDB.NewIterator()
	defer iter.Release()

	replayed := 0
	for iter.Next() {
		seq := opSeq(iter.Key())
		if seq <= t.tree.Seq() {
			continue
		}
		op, err := parseOp(iter.Value())
		if err != nil {
			return err
		}
		if err := t.tree.Apply(op); err != nil {
			return fmt.Errorf("op log replay failed at seq %d: %w", seq, err)
		}
		replayed++
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("op log scan failed: %w", err)
	}
	if replayed > 0 {
		t.log.Info("replayed post-checkpoint tree operations",
			log.Int("ops", replayed),
			log.Uint64("seq", t.tree.Seq()),
		)
	}
	return nil
}

// AddNote validates and records a newly issued note. The note store,
// nonce index, commitment tree and published state advance as one
// logical unit; a failure leaves all of them unchanged.
func (t *Tracker) AddNote(issuer sigma.PublicKey, n *note.Note) error {
	if err := n.Verify(issuer); err != nil {
		return err
	}
	now := t.clock.Unix()
	skew := uint64(t.cfg.MaxTimestampSkew.Seconds())
	if n.Timestamp > now+skew {
		return ErrFutureTimestamp
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := note.NewKey(issuer, n.RecipientPubKey)
	switch has, err := t.noteDB.Has(key.Bytes()); {
	case err != nil:
		return fmt.Errorf("note store read failed: %w", err)
	case has:
		return ErrDuplicateNote
	}

	// The signature commitment doubles as a nonce: reusing it across
	// notes would leak the issuer's secret, so it is rejected outright.
	nonce := n.Signature[:sigma.PublicKeyLen]
	switch has, err := t.nonceDB.Has(nonce); {
	case err != nil:
		return fmt.Errorf("nonce index read failed: %w", err)
	case has:
		return ErrDuplicateNonce
	}

	// The issuer's cumulative collected amount must stay within u64.
	total := n.AmountCollected
	iter := t.noteDB.NewIteratorWithPrefix(key[:32])
	defer iter.Release()
	for iter.Next() {
		stored, _, err := note.ParseStored(iter.Value())
		if err != nil {
			return fmt.Errorf("note store scan failed: %w", err)
		}
		if total, err = safemath.Add64(total, stored.AmountCollected); err != nil {
			return note.ErrAmountOverflow
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("note store scan failed: %w", err)
	}

	snap := t.tree.Snapshot()
	if err := t.tree.Insert(key.Bytes(), n.TreeValue()); err != nil {
		return err
	}
	if err := t.persistNote(key, issuer, n, now, nonce); err != nil {
		t.tree.Rollback(snap)
		t.db.Abort()
		return err
	}
	t.log.Debug("note added",
		log.String("key", fmt.Sprintf("%x", key[:8])),
		log.Uint64("amount", n.AmountCollected),
	)
	return nil
}

// CompleteRedemption is the only operation that mutates a note's
// redeemed amount. The new redeemed total is clamped at the collected
// amount. It returns the updated note and the debt actually retired.
func (t *Tracker) CompleteRedemption(issuer, recipient sigma.PublicKey, amount uint64) (*note.Note, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := note.NewKey(issuer, recipient)
	raw, err := t.noteDB.Get(key.Bytes())
	if errors.Is(err, database.ErrNotFound) {
		return nil, 0, ErrNoteNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("note store read failed: %w", err)
	}
	n, _, err := note.ParseStored(raw)
	if err != nil {
		return nil, 0, err
	}

	newRedeemed, err := safemath.Add64(n.AmountRedeemed, amount)
	if err != nil || newRedeemed > n.AmountCollected {
		newRedeemed = n.AmountCollected
	}
	retired := newRedeemed - n.AmountRedeemed
	n.AmountRedeemed = newRedeemed

	now := t.clock.Unix()
	snap := t.tree.Snapshot()
	if err := t.tree.Update(key.Bytes(), n.TreeValue()); err != nil {
		return nil, 0, err
	}
	if err := t.persistNote(key, issuer, n, now, nil); err != nil {
		t.tree.Rollback(snap)
		t.db.Abort()
		return nil, 0, err
	}
	t.log.Debug("redemption applied",
		log.String("key", fmt.Sprintf("%x", key[:8])),
		log.Uint64("retired", retired),
		log.Uint64("outstanding", n.Outstanding()),
	)
	return n, retired, nil
}

// persistNote writes the note record, the op-log entry and the
// advanced state, committing them atomically. The caller has already
// applied the matching tree operation and rolls it back on error.
func (t *Tracker) persistNote(key note.Key, issuer sigma.PublicKey, n *note.Note, now uint64, nonce []byte) error {
	if err := t.noteDB.Put(key.Bytes(), n.StoredBytes(issuer)); err != nil {
		return fmt.Errorf("note store write failed: %w", err)
	}
	if nonce != nil {
		if err := t.nonceDB.Put(nonce, nil); err != nil {
			return fmt.Errorf("nonce index write failed: %w", err)
		}
	}

	opType := tree.OpUpdate
	if nonce != nil {
		opType = tree.OpInsert
	}
	op := tree.Op{Type: opType, Key: key.Bytes(), Value: n.TreeValue()}
	if err := t.oplogDB.Put(seqKey(t.tree.Seq()), encodeOp(op)); err != nil {
		return fmt.Errorf("op log write failed: %w", err)
	}

	t.state = State{
		CommitmentRoot:      t.tree.RootDigest(),
		LastCommitHeight:    t.tree.Seq(),
		LastUpdateTimestamp: now,
	}
	if err := t.stateDB.Put(stateKey, t.state.bytes()); err != nil {
		return fmt.Errorf("state write failed: %w", err)
	}
	if err := t.db.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// LookupNote returns the note for an (issuer, recipient) pair.
func (t *Tracker) LookupNote(issuer, recipient sigma.PublicKey) (*note.Note, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	raw, err := t.noteDB.Get(note.NewKey(issuer, recipient).Bytes())
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("note store read failed: %w", err)
	}
	n, _, err := note.ParseStored(raw)
	return n, err
}

// IssuerNotes returns every note issued by the given key.
func (t *Tracker) IssuerNotes(issuer sigma.PublicKey) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Ledger keys start with the issuer hash, so this is a prefix scan.
	probe := note.NewKey(issuer, sigma.PublicKey{})
	return t.scan(probe[:32], func(Record) bool { return true })
}

// RecipientNotes returns every note addressed to the given key.
func (t *Tracker) RecipientNotes(recipient sigma.PublicKey) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.scan(nil, func(r Record) bool {
		return r.Note.RecipientPubKey == recipient
	})
}

// AllNotes returns the full ledger.
func (t *Tracker) AllNotes() ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.scan(nil, func(Record) bool { return true })
}

func (t *Tracker) scan(prefix []byte, keep func(Record) bool) ([]Record, error) {
	iter := t.noteDB.NewIteratorWithPrefix(prefix)
	defer iter.Release()

	var records []Record
	for iter.Next() {
		key, err := note.ParseKey(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("note store scan failed: %w", err)
		}
		n, issuer, err := note.ParseStored(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("note store scan failed: %w", err)
		}
		r := Record{Key: key, Issuer: issuer, Note: n}
		if keep(r) {
			records = append(records, r)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("note store scan failed: %w", err)
	}
	return records, nil
}

// GetState returns a snapshot of the published tracker state.
func (t *Tracker) GetState() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// RootDigest returns the current commitment tree root.
func (t *Tracker) RootDigest() tree.RootDigest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.RootDigest()
}

// GenerateProof seals and returns the pending tree operation batch.
func (t *Tracker) GenerateProof() (*tree.Proof, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tree.GenerateProof()
}

// Checkpoint persists the full tree node set and clears the op log.
func (t *Tracker) Checkpoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.tree.Checkpoint(t.treeDB); err != nil {
		t.db.Abort()
		return err
	}

	iter := t.oplogDB.NewIterator()
	var stale [][]byte
	for iter.Next() {
		stale = append(stale, append([]byte(nil), iter.Key()...))
	}
	err := iter.Error()
	iter.Release()
	if err != nil {
		t.db.Abort()
		return fmt.Errorf("op log scan failed: %w", err)
	}
	for _, k := range stale {
		if err := t.oplogDB.Delete(k); err != nil {
			t.db.Abort()
			return fmt.Errorf("op log prune failed: %w", err)
		}
	}
	if err := t.db.Commit(); err != nil {
		return fmt.Errorf("checkpoint commit failed: %w", err)
	}
	return nil
}
