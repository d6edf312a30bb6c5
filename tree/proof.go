// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
	"golang.org/x/crypto/blake2b"
)

const codecVersion = 0

var Codec codec.Manager

func init() {
	Codec = codec.NewManager(math.MaxInt)
	lc := linearcodec.NewDefault()

	err := errors.Join(
		lc.RegisterType(&Proof{}),
		lc.RegisterType(&manifest{}),
		Codec.RegisterCodec(codecVersion, lc),
	)
	if err != nil {
		panic(err)
	}
}

// Proof is one batched proof covering every operation applied between
// two proof extractions. It carries the pre-state nodes the prover
// touched; a verifier replays the operations over exactly that node
// set and must reproduce the post root.
type Proof struct {
	PrevRoot []byte   `serialize:"true" json:"prevRoot"`
	PostRoot []byte   `serialize:"true" json:"postRoot"`
	Ops      []Op     `serialize:"true" json:"ops"`
	Nodes    [][]byte `serialize:"true" json:"nodes"`
}

// GenerateProof seals the pending operation batch and returns its
// proof. Proof generation is stateful: the next call covers only
// operations applied after this one.
func (t *Tree) GenerateProof() (*Proof, error) {
	if t.corrupted {
		return nil, ErrTreeCorruption
	}

	digests := make([]Digest, 0, len(t.visited))
	for d := range t.visited {
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool {
		return bytes.Compare(digests[i][:], digests[j][:]) < 0
	})
	nodes := make([][]byte, len(digests))
	for i, d := range digests {
		nodes[i] = t.visited[d]
	}

	post := t.RootDigest()
	p := &Proof{
		PrevRoot: t.sealedRoot.Bytes(),
		PostRoot: post.Bytes(),
		Ops:      t.pending,
		Nodes:    nodes,
	}

	t.pending = nil
	t.visited = make(map[Digest][]byte)
	t.sealedRoot = post
	return p, nil
}

// Verify replays the proof's operations against the node set it
// carries, starting from PrevRoot, and checks that the replay
// reproduces PostRoot exactly.
func (p *Proof) Verify() error {
	prev, err := parseRootDigest(p.PrevRoot)
	if err != nil {
		return err
	}
	post, err := parseRootDigest(p.PostRoot)
	if err != nil {
		return err
	}

	nodes := make(map[Digest][]byte, len(p.Nodes))
	for _, raw := range p.Nodes {
		if _, err := parseNode(raw); err != nil {
			return fmt.Errorf("%w: malformed proof node", ErrInvalidProof)
		}
		nodes[Digest(blake2b.Sum256(raw))] = raw
	}

	replay := &Tree{
		store:      newNodeStore(mapSource{nodes: nodes}),
		root:       prev.Hash(),
		rootHeight: prev.Height(),
		sealedRoot: prev,
	}
	for _, op := range p.Ops {
		if err := replay.Apply(op); err != nil {
			return fmt.Errorf("%w: replay failed: %s", ErrInvalidProof, err)
		}
	}
	if replay.RootDigest() != post {
		return fmt.Errorf("%w: replayed root mismatch", ErrInvalidProof)
	}
	return nil
}

// CommitsTo reports whether the proof's operation batch binds key to
// value. Used to confirm a proof actually covers a claimed ledger
// entry before acting on it.
func (p *Proof) CommitsTo(key, value []byte) bool {
	for i := len(p.Ops) - 1; i >= 0; i-- {
		op := p.Ops[i]
		if !bytes.Equal(op.Key, key) {
			continue
		}
		return op.Type != OpRemove && bytes.Equal(op.Value, value)
	}
	return false
}

// Bytes serializes the proof.
func (p *Proof) Bytes() ([]byte, error) {
	return Codec.Marshal(codecVersion, p)
}

// ParseProof deserializes a proof.
func ParseProof(b []byte) (*Proof, error) {
	p := &Proof{}
	if _, err := Codec.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	return p, nil
}

func parseRootDigest(b []byte) (RootDigest, error) {
	var rd RootDigest
	if len(b) != RootDigestLen {
		return rd, fmt.Errorf("%w: root digest must be %d bytes", ErrInvalidProof, RootDigestLen)
	}
	copy(rd[:], b)
	return rd, nil
}
