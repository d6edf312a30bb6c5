// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/log"
)

// ErrNoCheckpoint is returned by Recover when the keyspace holds no
// checkpoint manifest.
var ErrNoCheckpoint = errors.New("no tree checkpoint")

var manifestKey = []byte("checkpoint")

type manifest struct {
	Root []byte `serialize:"true" json:"root"`
	Seq  uint64 `serialize:"true" json:"seq"`
}

// Checkpoint persists every node reachable from the current root plus
// a manifest, atomically, into the given keyspace. After a checkpoint
// the in-memory arena is pruned to the reachable set and backed by the
// database, so unreferenced nodes from rolled-back or superseded
// operations are dropped.
func (t *Tree) Checkpoint(db database.Database) error {
	if t.corrupted {
		return ErrTreeCorruption
	}

	reachable := make(map[Digest][]byte)
	if !t.root.isZero() {
		stack := []Digest{t.root}
		for len(stack) > 0 {
			d := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := reachable[d]; ok {
				continue
			}
			n, raw, err := t.store.resolve(d)
			if err != nil {
				t.corrupted = true
				return err
			}
			reachable[d] = raw
			if !n.left.isZero() {
				stack = append(stack, n.left)
			}
			if !n.right.isZero() {
				stack = append(stack, n.right)
			}
		}
	}

	batch := db.NewBatch()
	for d, raw := range reachable {
		if err := batch.Put(d[:], raw); err != nil {
			return fmt.Errorf("checkpoint write failed: %w", err)
		}
	}
	root := t.RootDigest()
	mBytes, err := Codec.Marshal(codecVersion, &manifest{
		Root: root.Bytes(),
		Seq:  t.seq,
	})
	if err != nil {
		return fmt.Errorf("checkpoint manifest encoding failed: %w", err)
	}
	if err := batch.Put(manifestKey, mBytes); err != nil {
		return fmt.Errorf("checkpoint write failed: %w", err)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("checkpoint write failed: %w", err)
	}

	t.store = &nodeStore{nodes: reachable, fallback: dbSource{db: db}}
	if t.log != nil {
		t.log.Info("tree checkpoint written",
			log.Int("nodes", len(reachable)),
			log.Uint64("seq", t.seq),
		)
	}
	return nil
}

// Recover rebuilds a tree exclusively from a checkpointed keyspace.
// With no operations replayed afterwards, the recovered root digest is
// bit-identical to the digest at checkpoint time; replaying the same
// logged operations in the same order reproduces the live digest.
func Recover(db database.Database, logger log.Logger) (*Tree, error) {
	raw, err := db.Get(manifestKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint manifest read failed: %w", err)
	}
	m := &manifest{}
	if _, err := Codec.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("checkpoint manifest decoding failed: %w", err)
	}
	root, err := parseRootDigest(m.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: bad manifest root", ErrTreeCorruption)
	}

	t := &Tree{
		log:        logger,
		store:      newNodeStore(dbSource{db: db}),
		root:       root.Hash(),
		rootHeight: root.Height(),
		sealedRoot: root,
		seq:        m.Seq,
		visited:    make(map[Digest][]byte),
	}
	if !t.root.isZero() {
		if _, _, err := t.store.resolve(t.root); err != nil {
			return nil, err
		}
	}
	if logger != nil {
		logger.Info("tree recovered from checkpoint",
			log.Uint64("seq", m.Seq),
			log.Int("height", int(root.Height())),
		)
	}
	return t, nil
}
