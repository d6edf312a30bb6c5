// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package note defines the IOU note ledger's value objects and their
// byte-exact wire encodings.
package note

import (
	"encoding/binary"
	"errors"

	safemath "github.com/luxfi/math"

	"github.com/luxfi/notechain/crypto/sigma"
)

const (
	// KeyLen is the length of a ledger key: hash(issuer) || hash(recipient).
	KeyLen = 64

	// StoredLen is the length of the persisted ledger value:
	// issuer(33) || collected(8) || timestamp(8) || signature(65) ||
	// recipient(33) || redeemed(8).
	StoredLen = sigma.PublicKeyLen + 8 + 8 + sigma.SignatureLen + sigma.PublicKeyLen + 8

	// TreeValueLen is the length of the commitment-tree value:
	// recipient(33) || collected(8) || redeemed(8) || timestamp(8) ||
	// signature(65).
	TreeValueLen = sigma.PublicKeyLen + 8 + 8 + 8 + sigma.SignatureLen

	// MessageLen is the length of the signing message:
	// recipient(33) || amount(8) || timestamp(8).
	MessageLen = sigma.PublicKeyLen + 8 + 8
)

var (
	ErrAmountOverflow   = errors.New("amount overflow")
	ErrRedeemedExceeds  = errors.New("amount redeemed exceeds amount collected")
	ErrInvalidNoteBytes = errors.New("invalid note encoding")
)

// Note is a signed claim that an issuer owes a recipient
// AmountCollected units, net of AmountRedeemed.
type Note struct {
	RecipientPubKey sigma.PublicKey
	AmountCollected uint64
	AmountRedeemed  uint64
	Timestamp       uint64
	Signature       sigma.Signature
}

// Outstanding returns the debt still owed: collected minus redeemed.
// The AmountRedeemed <= AmountCollected invariant is enforced at every
// mutation site, so underflow here indicates a corrupted note and is
// reported as zero outstanding debt rather than wrapping.
func (n *Note) Outstanding() uint64 {
	out, err := safemath.Sub(n.AmountCollected, n.AmountRedeemed)
	if err != nil {
		return 0
	}
	return out
}

// IsFullyRedeemed reports whether no debt remains.
func (n *Note) IsFullyRedeemed() bool {
	return n.AmountRedeemed >= n.AmountCollected
}

// Verify validates the note's internal invariant and its signature
// against the issuer's public key.
func (n *Note) Verify(issuer sigma.PublicKey) error {
	if n.AmountRedeemed > n.AmountCollected {
		return ErrRedeemedExceeds
	}
	return sigma.Verify(n.Signature, n.SigningMessage(), issuer)
}

// SigningMessage returns the byte-exact message the issuer signs:
// recipient(33) || amount(8 BE) || timestamp(8 BE). The layout must
// match the external verifying script's expected input.
func (n *Note) SigningMessage() []byte {
	msg := make([]byte, 0, MessageLen)
	msg = append(msg, n.RecipientPubKey[:]...)
	msg = binary.BigEndian.AppendUint64(msg, n.AmountCollected)
	msg = binary.BigEndian.AppendUint64(msg, n.Timestamp)
	return msg
}

// StoredBytes returns the persisted ledger value encoding.
func (n *Note) StoredBytes(issuer sigma.PublicKey) []byte {
	b := make([]byte, 0, StoredLen)
	b = append(b, issuer[:]...)
	b = binary.BigEndian.AppendUint64(b, n.AmountCollected)
	b = binary.BigEndian.AppendUint64(b, n.Timestamp)
	b = append(b, n.Signature[:]...)
	b = append(b, n.RecipientPubKey[:]...)
	b = binary.BigEndian.AppendUint64(b, n.AmountRedeemed)
	return b
}

// TreeValue returns the commitment-tree value encoding for this note.
func (n *Note) TreeValue() []byte {
	b := make([]byte, 0, TreeValueLen)
	b = append(b, n.RecipientPubKey[:]...)
	b = binary.BigEndian.AppendUint64(b, n.AmountCollected)
	b = binary.BigEndian.AppendUint64(b, n.AmountRedeemed)
	b = binary.BigEndian.AppendUint64(b, n.Timestamp)
	b = append(b, n.Signature[:]...)
	return b
}

// ParseStored decodes a persisted ledger value, returning the note and
// the issuer public key embedded in it.
func ParseStored(b []byte) (*Note, sigma.PublicKey, error) {
	var issuer sigma.PublicKey
	if len(b) != StoredLen {
		return nil, issuer, ErrInvalidNoteBytes
	}

	n := &Note{}
	off := 0
	copy(issuer[:], b[off:off+sigma.PublicKeyLen])
	off += sigma.PublicKeyLen
	n.AmountCollected = binary.BigEndian.Uint64(b[off:])
	off += 8
	n.Timestamp = binary.BigEndian.Uint64(b[off:])
	off += 8
	copy(n.Signature[:], b[off:off+sigma.SignatureLen])
	off += sigma.SignatureLen
	copy(n.RecipientPubKey[:], b[off:off+sigma.PublicKeyLen])
	off += sigma.PublicKeyLen
	n.AmountRedeemed = binary.BigEndian.Uint64(b[off:])

	if n.AmountRedeemed > n.AmountCollected {
		return nil, issuer, ErrRedeemedExceeds
	}
	return n, issuer, nil
}
