// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tracker

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/notechain/note"
	"github.com/luxfi/notechain/tree"
)

var errInvalidOpLogEntry = errors.New("invalid op log entry")

// seqKey orders op-log entries by their tree sequence number; the
// big-endian encoding makes iterator order match replay order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func opSeq(key []byte) uint64 {
	if len(key) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

// encodeOp lays an op out as type(1) || key(64) || value.
func encodeOp(op tree.Op) []byte {
	b := make([]byte, 0, 1+note.KeyLen+len(op.Value))
	b = append(b, byte(op.Type))
	b = append(b, op.Key...)
	b = append(b, op.Value...)
	return b
}

func parseOp(b []byte) (tree.Op, error) {
	if len(b) < 1+note.KeyLen {
		return tree.Op{}, errInvalidOpLogEntry
	}
	return tree.Op{
		Type:  tree.OpType(b[0]),
		Key:   append([]byte(nil), b[1:1+note.KeyLen]...),
		Value: append([]byte(nil), b[1+note.KeyLen:]...),
	}, nil
}
