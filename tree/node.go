// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

const (
	// KeyLen is the fixed tree key length.
	KeyLen = 64

	// DigestLen is the length of a node digest.
	DigestLen = 32

	// RootDigestLen is the length of a root digest: 32-byte hash plus
	// a 1-byte tree height.
	RootDigestLen = DigestLen + 1

	// Serialized node layout:
	// height(1) || key(64) || left(32) || right(32) || value
	nodeHeaderLen = 1 + KeyLen + DigestLen + DigestLen + 4
)

// Digest is the content address of a serialized node.
type Digest [DigestLen]byte

// RootDigest commits to the whole tree: root node hash plus tree
// height. The empty tree's digest is all zero.
type RootDigest [RootDigestLen]byte

// EmptyRoot is the sentinel digest of the empty tree.
var EmptyRoot RootDigest

// node is an AVL tree node. Children are referenced strictly by
// digest; a zero digest means no child.
type node struct {
	height uint8
	key    []byte
	value  []byte
	left   Digest
	right  Digest
}

// bytes returns the canonical serialization the node digest is
// computed over.
func (n *node) bytes() []byte {
	b := make([]byte, 0, nodeHeaderLen+len(n.value))
	b = append(b, n.height)
	b = append(b, n.key...)
	b = append(b, n.left[:]...)
	b = append(b, n.right[:]...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(n.value)))
	b = append(b, n.value...)
	return b
}

func (n *node) digest() Digest {
	return Digest(blake2b.Sum256(n.bytes()))
}

func parseNode(b []byte) (*node, error) {
	if len(b) < nodeHeaderLen {
		return nil, ErrTreeCorruption
	}
	n := &node{height: b[0]}
	off := 1
	n.key = append([]byte(nil), b[off:off+KeyLen]...)
	off += KeyLen
	copy(n.left[:], b[off:off+DigestLen])
	off += DigestLen
	copy(n.right[:], b[off:off+DigestLen])
	off += DigestLen
	valueLen := binary.BigEndian.Uint32(b[off:])
	off += 4
	if len(b) != off+int(valueLen) {
		return nil, ErrTreeCorruption
	}
	n.value = append([]byte(nil), b[off:]...)
	return n, nil
}

func (d Digest) isZero() bool {
	return d == Digest{}
}

// newRootDigest packs a root hash and tree height into the published
// 33-byte commitment.
func newRootDigest(root Digest, height uint8) RootDigest {
	var rd RootDigest
	copy(rd[:DigestLen], root[:])
	rd[DigestLen] = height
	return rd
}

// Hash returns the 32-byte root node hash.
func (rd RootDigest) Hash() Digest {
	var d Digest
	copy(d[:], rd[:DigestLen])
	return d
}

// Height returns the committed tree height.
func (rd RootDigest) Height() uint8 {
	return rd[DigestLen]
}

// Bytes returns the serialized root digest.
func (rd RootDigest) Bytes() []byte {
	return rd[:]
}
