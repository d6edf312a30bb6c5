// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tree implements the authenticated AVL commitment tree over
// the note ledger. Nodes are immutable and content-addressed: every
// child reference is a digest resolved through the node store, so
// persisting and recovering the tree are structurally the same
// operation.
//
// The root digest commits to the exact sequence of applied operations.
// Replaying the same final key set in a different order may produce a
// different digest; only a fixed operation order is reproducible.
package tree

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/log"
)

var (
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrKeyNotFound    = errors.New("key not found")
	ErrInvalidProof   = errors.New("invalid proof")
	ErrTreeCorruption = errors.New("tree corruption")

	errInvalidKeyLen = errors.New("tree keys must be 64 bytes")
)

// OpType tags a tree mutation.
type OpType uint8

const (
	OpInsert OpType = iota + 1
	OpUpdate
	OpRemove
)

// Op records one applied mutation for batched proofs and the
// post-checkpoint replay log.
type Op struct {
	Type  OpType `serialize:"true" json:"type"`
	Key   []byte `serialize:"true" json:"key"`
	Value []byte `serialize:"true" json:"value"`
}

// Tree is the authenticated commitment tree. It is not safe for
// concurrent use; the command actor serializes all mutators.
type Tree struct {
	log   log.Logger
	store *nodeStore

	root       Digest
	rootHeight uint8

	// sealedRoot is the root at the last proof extraction; the next
	// generated proof covers every operation applied since.
	sealedRoot RootDigest
	pending    []Op
	visited    map[Digest][]byte

	seq       uint64
	corrupted bool
}

// New returns an empty in-memory tree.
func New(logger log.Logger) *Tree {
	return &Tree{
		log:        logger,
		store:      newNodeStore(nil),
		sealedRoot: EmptyRoot,
		visited:    make(map[Digest][]byte),
	}
}

// RootDigest returns the 33-byte commitment to the current tree state.
func (t *Tree) RootDigest() RootDigest {
	if t.root.isZero() {
		return EmptyRoot
	}
	return newRootDigest(t.root, t.rootHeight)
}

// Seq returns the number of operations applied over the tree's
// lifetime, including operations replayed during recovery.
func (t *Tree) Seq() uint64 {
	return t.seq
}

// Insert adds a new key. It fails with ErrDuplicateKey if the key is
// already present.
func (t *Tree) Insert(key, value []byte) error {
	if err := t.checkMutable(key); err != nil {
		return err
	}
	newRoot, err := t.insertAt(t.root, key, value)
	if err != nil {
		return err
	}
	return t.commit(newRoot, Op{Type: OpInsert, Key: cloneBytes(key), Value: cloneBytes(value)})
}

// Update replaces the value of an existing key. It fails with
// ErrKeyNotFound if the key is absent.
func (t *Tree) Update(key, value []byte) error {
	if err := t.checkMutable(key); err != nil {
		return err
	}
	newRoot, err := t.updateAt(t.root, key, value)
	if err != nil {
		return err
	}
	return t.commit(newRoot, Op{Type: OpUpdate, Key: cloneBytes(key), Value: cloneBytes(value)})
}

// Remove deletes a key. It fails with ErrKeyNotFound if the key is
// absent.
func (t *Tree) Remove(key []byte) error {
	if err := t.checkMutable(key); err != nil {
		return err
	}
	newRoot, err := t.removeAt(t.root, key)
	if err != nil {
		return err
	}
	return t.commit(newRoot, Op{Type: OpRemove, Key: cloneBytes(key)})
}

// Apply replays a logged operation, used during recovery.
func (t *Tree) Apply(op Op) error {
	switch op.Type {
	case OpInsert:
		return t.Insert(op.Key, op.Value)
	case OpUpdate:
		return t.Update(op.Key, op.Value)
	case OpRemove:
		return t.Remove(op.Key)
	default:
		return fmt.Errorf("%w: unknown op type %d", ErrInvalidProof, op.Type)
	}
}

// Snapshot captures the tree position so a caller coordinating writes
// across multiple stores can revert a mutation that could not be
// persisted elsewhere.
type Snapshot struct {
	root       Digest
	rootHeight uint8
	pendingLen int
	seq        uint64
}

func (t *Tree) Snapshot() Snapshot {
	return Snapshot{
		root:       t.root,
		rootHeight: t.rootHeight,
		pendingLen: len(t.pending),
		seq:        t.seq,
	}
}

// Rollback reverts to a snapshot taken during the current proof batch.
// Nodes created by the reverted operations stay in the arena as
// garbage until the next checkpoint prunes them.
func (t *Tree) Rollback(s Snapshot) {
	t.root = s.root
	t.rootHeight = s.rootHeight
	t.pending = t.pending[:s.pendingLen]
	t.seq = s.seq
}

func (t *Tree) commit(newRoot Digest, op Op) error {
	t.root = newRoot
	if newRoot.isZero() {
		t.rootHeight = 0
	} else {
		n, err := t.resolve(newRoot)
		if err != nil {
			return err
		}
		t.rootHeight = n.height
	}
	t.pending = append(t.pending, op)
	t.seq++
	return nil
}

func (t *Tree) checkMutable(key []byte) error {
	if t.corrupted {
		return ErrTreeCorruption
	}
	if len(key) != KeyLen {
		return errInvalidKeyLen
	}
	return nil
}

// resolve retrieves a node by digest, recording it for the pending
// proof batch. A resolver miss is fatal: the tree refuses further
// mutation until recovered from a checkpoint.
func (t *Tree) resolve(d Digest) (*node, error) {
	n, raw, err := t.store.resolve(d)
	if err != nil {
		if errors.Is(err, ErrTreeCorruption) {
			t.corrupted = true
			if t.log != nil {
				t.log.Error("tree node resolution failed",
					log.String("digest", fmt.Sprintf("%x", d[:8])),
				)
			}
		}
		return nil, err
	}
	if t.visited != nil {
		t.visited[d] = raw
	}
	return n, nil
}

func (t *Tree) heightOf(d Digest) (uint8, error) {
	if d.isZero() {
		return 0, nil
	}
	n, err := t.resolve(d)
	if err != nil {
		return 0, err
	}
	return n.height, nil
}

func (t *Tree) insertAt(d Digest, key, value []byte) (Digest, error) {
	if d.isZero() {
		return t.store.put(&node{
			height: 1,
			key:    cloneBytes(key),
			value:  cloneBytes(value),
		}), nil
	}
	n, err := t.resolve(d)
	if err != nil {
		return Digest{}, err
	}
	switch cmp := bytes.Compare(key, n.key); {
	case cmp == 0:
		return Digest{}, ErrDuplicateKey
	case cmp < 0:
		newLeft, err := t.insertAt(n.left, key, value)
		if err != nil {
			return Digest{}, err
		}
		return t.rebuild(n, newLeft, n.right)
	default:
		newRight, err := t.insertAt(n.right, key, value)
		if err != nil {
			return Digest{}, err
		}
		return t.rebuild(n, n.left, newRight)
	}
}

func (t *Tree) updateAt(d Digest, key, value []byte) (Digest, error) {
	if d.isZero() {
		return Digest{}, ErrKeyNotFound
	}
	n, err := t.resolve(d)
	if err != nil {
		return Digest{}, err
	}
	switch cmp := bytes.Compare(key, n.key); {
	case cmp == 0:
		return t.store.put(&node{
			height: n.height,
			key:    n.key,
			value:  cloneBytes(value),
			left:   n.left,
			right:  n.right,
		}), nil
	case cmp < 0:
		newLeft, err := t.updateAt(n.left, key, value)
		if err != nil {
			return Digest{}, err
		}
		return t.store.put(&node{
			height: n.height,
			key:    n.key,
			value:  n.value,
			left:   newLeft,
			right:  n.right,
		}), nil
	default:
		newRight, err := t.updateAt(n.right, key, value)
		if err != nil {
			return Digest{}, err
		}
		return t.store.put(&node{
			height: n.height,
			key:    n.key,
			value:  n.value,
			left:   n.left,
			right:  newRight,
		}), nil
	}
}

func (t *Tree) removeAt(d Digest, key []byte) (Digest, error) {
	if d.isZero() {
		return Digest{}, ErrKeyNotFound
	}
	n, err := t.resolve(d)
	if err != nil {
		return Digest{}, err
	}
	switch cmp := bytes.Compare(key, n.key); {
	case cmp < 0:
		newLeft, err := t.removeAt(n.left, key)
		if err != nil {
			return Digest{}, err
		}
		return t.rebuild(n, newLeft, n.right)
	case cmp > 0:
		newRight, err := t.removeAt(n.right, key)
		if err != nil {
			return Digest{}, err
		}
		return t.rebuild(n, n.left, newRight)
	default:
		switch {
		case n.left.isZero():
			return n.right, nil
		case n.right.isZero():
			return n.left, nil
		default:
			// Two children: replace with the in-order successor and
			// remove it from the right subtree.
			succ, err := t.minNode(n.right)
			if err != nil {
				return Digest{}, err
			}
			newRight, err := t.removeAt(n.right, succ.key)
			if err != nil {
				return Digest{}, err
			}
			return t.rebuild(&node{key: succ.key, value: succ.value}, n.left, newRight)
		}
	}
}

func (t *Tree) minNode(d Digest) (*node, error) {
	n, err := t.resolve(d)
	if err != nil {
		return nil, err
	}
	for !n.left.isZero() {
		n, err = t.resolve(n.left)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// rebuild recomputes the height of n with the given children and
// restores the AVL balance invariant.
func (t *Tree) rebuild(n *node, left, right Digest) (Digest, error) {
	lh, err := t.heightOf(left)
	if err != nil {
		return Digest{}, err
	}
	rh, err := t.heightOf(right)
	if err != nil {
		return Digest{}, err
	}
	nn := &node{
		height: max(lh, rh) + 1,
		key:    n.key,
		value:  n.value,
		left:   left,
		right:  right,
	}

	switch bf := int(lh) - int(rh); {
	case bf > 1:
		l, err := t.resolve(nn.left)
		if err != nil {
			return Digest{}, err
		}
		llh, err := t.heightOf(l.left)
		if err != nil {
			return Digest{}, err
		}
		lrh, err := t.heightOf(l.right)
		if err != nil {
			return Digest{}, err
		}
		if llh < lrh {
			// Left-right case: rotate the left child left first.
			newLeft, err := t.rotateLeft(l)
			if err != nil {
				return Digest{}, err
			}
			nn.left = newLeft
			l, err = t.resolve(newLeft)
			if err != nil {
				return Digest{}, err
			}
		}
		return t.rotateRightOf(nn, l)
	case bf < -1:
		r, err := t.resolve(nn.right)
		if err != nil {
			return Digest{}, err
		}
		rlh, err := t.heightOf(r.left)
		if err != nil {
			return Digest{}, err
		}
		rrh, err := t.heightOf(r.right)
		if err != nil {
			return Digest{}, err
		}
		if rlh > rrh {
			// Right-left case: rotate the right child right first.
			newRight, err := t.rotateRight(r)
			if err != nil {
				return Digest{}, err
			}
			nn.right = newRight
			r, err = t.resolve(newRight)
			if err != nil {
				return Digest{}, err
			}
		}
		return t.rotateLeftOf(nn, r)
	default:
		return t.store.put(nn), nil
	}
}

// rotateRightOf lifts l (the left child of n) to the subtree root.
func (t *Tree) rotateRightOf(n, l *node) (Digest, error) {
	lrh, err := t.heightOf(l.right)
	if err != nil {
		return Digest{}, err
	}
	rh, err := t.heightOf(n.right)
	if err != nil {
		return Digest{}, err
	}
	newRight := t.store.put(&node{
		height: max(lrh, rh) + 1,
		key:    n.key,
		value:  n.value,
		left:   l.right,
		right:  n.right,
	})
	llh, err := t.heightOf(l.left)
	if err != nil {
		return Digest{}, err
	}
	nrh, err := t.heightOf(newRight)
	if err != nil {
		return Digest{}, err
	}
	return t.store.put(&node{
		height: max(llh, nrh) + 1,
		key:    l.key,
		value:  l.value,
		left:   l.left,
		right:  newRight,
	}), nil
}

// rotateLeftOf lifts r (the right child of n) to the subtree root.
func (t *Tree) rotateLeftOf(n, r *node) (Digest, error) {
	rlh, err := t.heightOf(r.left)
	if err != nil {
		return Digest{}, err
	}
	lh, err := t.heightOf(n.left)
	if err != nil {
		return Digest{}, err
	}
	newLeft := t.store.put(&node{
		height: max(lh, rlh) + 1,
		key:    n.key,
		value:  n.value,
		left:   n.left,
		right:  r.left,
	})
	rrh, err := t.heightOf(r.right)
	if err != nil {
		return Digest{}, err
	}
	nlh, err := t.heightOf(newLeft)
	if err != nil {
		return Digest{}, err
	}
	return t.store.put(&node{
		height: max(nlh, rrh) + 1,
		key:    r.key,
		value:  r.value,
		left:   newLeft,
		right:  r.right,
	}), nil
}

// rotateLeft rotates a detached node left and returns the new subtree
// root digest.
func (t *Tree) rotateLeft(n *node) (Digest, error) {
	r, err := t.resolve(n.right)
	if err != nil {
		return Digest{}, err
	}
	return t.rotateLeftOf(n, r)
}

// rotateRight rotates a detached node right and returns the new
// subtree root digest.
func (t *Tree) rotateRight(n *node) (Digest, error) {
	l, err := t.resolve(n.left)
	if err != nil {
		return Digest{}, err
	}
	return t.rotateRightOf(n, l)
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
