// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"golang.org/x/crypto/blake2b"
)

// nodeSource is a read-only fallback behind the in-memory node cache.
// It is how checkpointed nodes re-enter a recovered tree and how proof
// verification restricts resolution to the nodes a proof carries.
type nodeSource interface {
	get(d Digest) ([]byte, error)
}

// dbSource reads serialized nodes from a database keyspace keyed by
// digest.
type dbSource struct {
	db database.Database
}

func (s dbSource) get(d Digest) ([]byte, error) {
	b, err := s.db.Get(d[:])
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrTreeCorruption
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTreeCorruption, err)
	}
	return b, nil
}

// mapSource resolves only the node set a proof carries. A miss means
// the proof is incomplete, not that state is corrupted.
type mapSource struct {
	nodes map[Digest][]byte
}

func (s mapSource) get(d Digest) ([]byte, error) {
	b, ok := s.nodes[d]
	if !ok {
		return nil, ErrInvalidProof
	}
	return b, nil
}

// emptySource is used by fresh in-memory trees: every node is in the
// cache, so any miss is corruption.
type emptySource struct{}

func (emptySource) get(Digest) ([]byte, error) {
	return nil, ErrTreeCorruption
}

// nodeStore is the content-addressed node arena. All node retrieval
// goes through resolve; nodes are never referenced by pointer across
// operations.
type nodeStore struct {
	nodes    map[Digest][]byte
	fallback nodeSource
}

func newNodeStore(fallback nodeSource) *nodeStore {
	if fallback == nil {
		fallback = emptySource{}
	}
	return &nodeStore{
		nodes:    make(map[Digest][]byte),
		fallback: fallback,
	}
}

// resolve returns the node addressed by d together with its canonical
// serialization.
func (s *nodeStore) resolve(d Digest) (*node, []byte, error) {
	raw, ok := s.nodes[d]
	if !ok {
		var err error
		raw, err = s.fallback.get(d)
		if err != nil {
			return nil, nil, err
		}
		s.nodes[d] = raw
	}
	n, err := parseNode(raw)
	if err != nil {
		return nil, nil, err
	}
	return n, raw, nil
}

// put stores a node under its digest and returns the digest.
func (s *nodeStore) put(n *node) Digest {
	raw := n.bytes()
	d := Digest(blake2b.Sum256(raw))
	s.nodes[d] = raw
	return d
}
