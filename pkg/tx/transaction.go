// Package tx defines the opaque transaction shape the chain engine
// threads through to its UTXO hook. Script evaluation and UTXO
// validity are external concerns; this package only needs enough
// structure to hash, clone, and ask "is this final".
package tx

import (
	"encoding/binary"
	"math"

	"github.com/klingnet-chain/core/pkg/crypto"
	"github.com/klingnet-chain/core/pkg/types"
)

// Transaction represents a transaction as the chain engine sees it:
// enough shape to compute a stable hash and walk its inputs/outputs,
// nothing about how a script authorizes spending an input.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Input references a UTXO being spent. Witness is opaque data the UTXO
// hook interprets; the core never inspects it.
type Input struct {
	PrevOut  types.Outpoint `json:"prevout"`
	Sequence uint32         `json:"sequence"`
	Witness  []byte         `json:"witness,omitempty"`
}

// Output defines a new UTXO. Data is opaque locking-script bytes.
type Output struct {
	Value uint64 `json:"value"`
	Data  []byte `json:"data,omitempty"`
}

// Hash computes the transaction ID (BLAKE3 hash of the serialized
// signing data). Excludes witness data so ID is stable pre-signing.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for
// hashing: version | inputs (prevout, sequence) | outputs (value, data) | locktime.
func (t *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, t.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		buf = binary.LittleEndian.AppendUint32(buf, in.Sequence)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Data)))
		buf = append(buf, out.Data...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, t.LockTime)

	return buf
}

// IsCoinbase reports whether t has the zero-outpoint marker input.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()
}

// IsFinal reports whether the transaction may be included in a block
// at the given height with the given block timestamp. LockTime below
// a fixed threshold is interpreted as a block height, otherwise as a
// Unix timestamp — the conventional nLockTime split.
const lockTimeThreshold = 500_000_000

func (t *Transaction) IsFinal(height uint64, blockTime uint64) bool {
	if t.LockTime == 0 {
		return true
	}
	if t.LockTime < lockTimeThreshold {
		return t.LockTime < height
	}
	return t.LockTime < blockTime
}

// TotalOutputValue returns the sum of all output values, erroring on overflow.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, errOutputOverflow
		}
		total += out.Value
	}
	return total, nil
}

// Clone returns a deep copy of t, used by the observer dispatch path
// to prevent aliased mutation across observers sharing one notification.
func (t *Transaction) Clone() *Transaction {
	c := &Transaction{
		Version:  t.Version,
		LockTime: t.LockTime,
		Inputs:   make([]Input, len(t.Inputs)),
		Outputs:  make([]Output, len(t.Outputs)),
	}
	for i, in := range t.Inputs {
		c.Inputs[i] = in
		if in.Witness != nil {
			c.Inputs[i].Witness = append([]byte(nil), in.Witness...)
		}
	}
	for i, out := range t.Outputs {
		c.Outputs[i] = out
		if out.Data != nil {
			c.Outputs[i].Data = append([]byte(nil), out.Data...)
		}
	}
	return c
}
