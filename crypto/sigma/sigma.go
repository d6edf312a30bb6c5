// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sigma implements the Schnorr-style signature scheme used to
// authenticate IOU notes. Signatures are 65 bytes: a 33-byte compressed
// curve-point commitment followed by a 32-byte scalar response. The
// challenge is derived with Blake2b-256 so that an external verifying
// script can recompute it byte-for-byte.
package sigma

import (
	"crypto/subtle"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"
)

const (
	// PublicKeyLen is the length of a compressed secp256k1 public key.
	PublicKeyLen = 33

	// SignatureLen is the length of a serialized signature: the
	// commitment point a (33) followed by the response scalar z (32).
	SignatureLen = 65
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidPublicKey       = errors.New("invalid public key")
	ErrInvalidSignatureFormat = errors.New("invalid signature format")
)

// PublicKey is a 33-byte compressed secp256k1 point.
type PublicKey [PublicKeyLen]byte

// Signature is a 65-byte Schnorr signature: a(33) || z(32).
type Signature [SignatureLen]byte

// PrivateKey wraps a secp256k1 secret scalar.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey returns a fresh random keypair.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes interprets b as a big-endian secret scalar.
func PrivateKeyFromBytes(b []byte) *PrivateKey {
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}
}

// Bytes returns the 32-byte big-endian secret scalar.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// PublicKey returns the compressed public key for this secret.
func (k *PrivateKey) PublicKey() PublicKey {
	var pub PublicKey
	copy(pub[:], k.key.PubKey().SerializeCompressed())
	return pub
}

// Bytes returns the serialized compressed point.
func (p PublicKey) Bytes() []byte {
	return p[:]
}

// Bytes returns the serialized signature.
func (s Signature) Bytes() []byte {
	return s[:]
}

// ParsePublicKey validates and parses a compressed public key. The
// leading byte must be 0x02 or 0x03; anything else (including the
// uncompressed 0x04 tag) is rejected before any curve arithmetic.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pub PublicKey
	if len(b) != PublicKeyLen {
		return pub, ErrInvalidPublicKey
	}
	if b[0] != 0x02 && b[0] != 0x03 {
		return pub, ErrInvalidPublicKey
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return pub, ErrInvalidPublicKey
	}
	copy(pub[:], b)
	return pub, nil
}

// ParseSignature validates the length of a serialized signature. Point
// and scalar canonicality are checked during Verify.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLen {
		return sig, ErrInvalidSignatureFormat
	}
	copy(sig[:], b)
	return sig, nil
}

// Sign produces a signature over msg. The nonce is random, so two
// signatures over identical input will differ, but both verify.
func Sign(msg []byte, priv *PrivateKey) (Signature, error) {
	var sig Signature

	// Fresh random nonce k and commitment a = kG.
	nonce, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return sig, err
	}
	aBytes := nonce.PubKey().SerializeCompressed()

	pub := priv.PublicKey()
	e := challenge(aBytes, msg, pub[:])

	// z = k + e*x (mod n)
	var z secp256k1.ModNScalar
	z.Mul2(&e, &priv.key.Key).Add(&nonce.Key)
	zBytes := z.Bytes()

	copy(sig[:PublicKeyLen], aBytes)
	copy(sig[PublicKeyLen:], zBytes[:])
	return sig, nil
}

// Verify checks the Schnorr verification equation zG == a + eP where
// e = Blake2b256(a || msg || pub). It returns nil only for a canonical,
// valid signature.
func Verify(sig Signature, msg []byte, pub PublicKey) error {
	// Commitment point must itself be a canonical compressed point.
	aBytes := sig[:PublicKeyLen]
	if aBytes[0] != 0x02 && aBytes[0] != 0x03 {
		return ErrInvalidSignatureFormat
	}
	aPub, err := secp256k1.ParsePubKey(aBytes)
	if err != nil {
		return ErrInvalidSignatureFormat
	}

	// Response scalar must be canonical (z < n).
	var z secp256k1.ModNScalar
	if overflow := z.SetByteSlice(sig[PublicKeyLen:]); overflow {
		return ErrInvalidSignatureFormat
	}
	if z.IsZero() {
		return ErrInvalidSignatureFormat
	}

	if pub[0] != 0x02 && pub[0] != 0x03 {
		return ErrInvalidPublicKey
	}
	pubKey, err := secp256k1.ParsePubKey(pub[:])
	if err != nil {
		return ErrInvalidPublicKey
	}

	e := challenge(aBytes, msg, pub[:])

	// left = zG
	var left secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&z, &left)

	// right = a + eP
	var p, ep, a, right secp256k1.JacobianPoint
	pubKey.AsJacobian(&p)
	secp256k1.ScalarMultNonConst(&e, &p, &ep)
	aPub.AsJacobian(&a)
	secp256k1.AddNonConst(&a, &ep, &right)

	left.ToAffine()
	right.ToAffine()
	leftKey := secp256k1.NewPublicKey(&left.X, &left.Y)
	rightKey := secp256k1.NewPublicKey(&right.X, &right.Y)
	if subtle.ConstantTimeCompare(
		leftKey.SerializeCompressed(),
		rightKey.SerializeCompressed(),
	) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// challenge derives the challenge scalar e = Blake2b256(a || msg || pub),
// reduced mod the group order.
func challenge(a, msg, pub []byte) secp256k1.ModNScalar {
	h, _ := blake2b.New256(nil)
	h.Write(a)
	h.Write(msg)
	h.Write(pub)
	digest := h.Sum(nil)

	var e secp256k1.ModNScalar
	e.SetByteSlice(digest)
	return e
}
