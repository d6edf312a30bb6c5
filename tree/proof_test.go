// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/log"
)

func TestProofRoundTrip(t *testing.T) {
	require := require.New(t)

	tr := New(log.NoLog{})
	for i := uint64(0); i < 16; i++ {
		require.NoError(tr.Insert(testKey(i), testValue(i)))
	}
	require.NoError(tr.Update(testKey(3), testValue(300)))
	require.NoError(tr.Remove(testKey(7)))

	p, err := tr.GenerateProof()
	require.NoError(err)
	require.Equal(EmptyRoot.Bytes(), p.PrevRoot)
	require.Equal(tr.RootDigest().Bytes(), p.PostRoot)
	require.Len(p.Ops, 18)
	require.NoError(p.Verify())

	// Serialized round trip verifies too.
	b, err := p.Bytes()
	require.NoError(err)
	parsed, err := ParseProof(b)
	require.NoError(err)
	require.NoError(parsed.Verify())
}

func TestProofBatchesAreStateful(t *testing.T) {
	require := require.New(t)

	tr := New(log.NoLog{})
	require.NoError(tr.Insert(testKey(1), testValue(1)))
	p1, err := tr.GenerateProof()
	require.NoError(err)
	require.NoError(p1.Verify())

	require.NoError(tr.Insert(testKey(2), testValue(2)))
	require.NoError(tr.Update(testKey(1), testValue(10)))
	p2, err := tr.GenerateProof()
	require.NoError(err)

	// The second proof covers only the second batch and chains off the
	// first proof's post root.
	require.Len(p2.Ops, 2)
	require.Equal(p1.PostRoot, p2.PrevRoot)
	require.NoError(p2.Verify())
}

func TestProofEmptyBatch(t *testing.T) {
	require := require.New(t)

	tr := New(log.NoLog{})
	p, err := tr.GenerateProof()
	require.NoError(err)
	require.Empty(p.Ops)
	require.Equal(p.PrevRoot, p.PostRoot)
	require.NoError(p.Verify())
}

func TestProofTamperDetection(t *testing.T) {
	require := require.New(t)

	tr := New(log.NoLog{})
	for i := uint64(0); i < 8; i++ {
		require.NoError(tr.Insert(testKey(i), testValue(i)))
	}
	p, err := tr.GenerateProof()
	require.NoError(err)

	// Tampered post root.
	tampered := *p
	tampered.PostRoot = append([]byte(nil), p.PostRoot...)
	tampered.PostRoot[0] ^= 0x01
	require.ErrorIs(tampered.Verify(), ErrInvalidProof)

	// Tampered operation value.
	tampered = *p
	tampered.Ops = append([]Op(nil), p.Ops...)
	tampered.Ops[3].Value = testValue(9999)
	require.ErrorIs(tampered.Verify(), ErrInvalidProof)

	// Truncated node set: drop all carried nodes from a proof whose
	// replay needs them.
	require.NoError(tr.Update(testKey(5), testValue(500)))
	p2, err := tr.GenerateProof()
	require.NoError(err)
	require.NotEmpty(p2.Nodes)
	p2.Nodes = nil
	require.ErrorIs(p2.Verify(), ErrInvalidProof)
}

func TestProofCommitsTo(t *testing.T) {
	require := require.New(t)

	tr := New(log.NoLog{})
	require.NoError(tr.Insert(testKey(1), testValue(1)))
	require.NoError(tr.Update(testKey(1), testValue(2)))
	p, err := tr.GenerateProof()
	require.NoError(err)

	// The latest op for the key wins.
	require.True(p.CommitsTo(testKey(1), testValue(2)))
	require.False(p.CommitsTo(testKey(1), testValue(1)))
	require.False(p.CommitsTo(testKey(2), testValue(2)))
}
