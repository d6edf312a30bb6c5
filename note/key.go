// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package note

import (
	"golang.org/x/crypto/blake2b"

	"github.com/luxfi/notechain/crypto/sigma"
)

// Key is the 64-byte ledger and commitment-tree key for a note:
// Blake2b256(issuer pubkey) || Blake2b256(recipient pubkey). It is
// unique per (issuer, recipient) pair.
type Key [KeyLen]byte

// NewKey derives the deterministic ledger key for an issuer/recipient
// pair.
func NewKey(issuer, recipient sigma.PublicKey) Key {
	var k Key
	issuerHash := blake2b.Sum256(issuer[:])
	recipientHash := blake2b.Sum256(recipient[:])
	copy(k[:32], issuerHash[:])
	copy(k[32:], recipientHash[:])
	return k
}

// ParseKey validates the length of a serialized key.
func ParseKey(b []byte) (Key, error) {
	var k Key
	if len(b) != KeyLen {
		return k, ErrInvalidNoteBytes
	}
	copy(k[:], b)
	return k, nil
}

// Bytes returns the serialized key.
func (k Key) Bytes() []byte {
	return k[:]
}
