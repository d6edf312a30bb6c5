// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tracker

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/notechain/tree"
)

// stateLen is the persisted state encoding:
// commitment root(33) || last commit height(8 BE) || last update(8 BE).
const stateLen = tree.RootDigestLen + 8 + 8

var errInvalidState = errors.New("invalid tracker state encoding")

// State is the published tracker commitment: the ledger's root digest
// plus bookkeeping for external publishers that post it on-chain. It
// advances exactly once per applied ledger mutation.
type State struct {
	CommitmentRoot      tree.RootDigest
	LastCommitHeight    uint64
	LastUpdateTimestamp uint64
}

func (s State) bytes() []byte {
	b := make([]byte, 0, stateLen)
	b = append(b, s.CommitmentRoot[:]...)
	b = binary.BigEndian.AppendUint64(b, s.LastCommitHeight)
	b = binary.BigEndian.AppendUint64(b, s.LastUpdateTimestamp)
	return b
}

func parseState(b []byte) (State, error) {
	var s State
	if len(b) != stateLen {
		return s, errInvalidState
	}
	copy(s.CommitmentRoot[:], b[:tree.RootDigestLen])
	s.LastCommitHeight = binary.BigEndian.Uint64(b[tree.RootDigestLen:])
	s.LastUpdateTimestamp = binary.BigEndian.Uint64(b[tree.RootDigestLen+8:])
	return s, nil
}
