package block

import (
	"encoding/binary"
	"time"

	"github.com/klingnet-chain/core/pkg/crypto"
	"github.com/klingnet-chain/core/pkg/types"
)

// Header contains the fields the chain engine treats as meaningful:
// link to parent, content commitment, timing, and compact PoW target.
// Height is not a header field — it is derived by the store when a
// header is linked to its parent's StoredBlock.
type Header struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Bits       uint32     `json:"bits"`
	Nonce      uint64     `json:"nonce"`
}

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes hashed to produce the
// header hash: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) | bits(4) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 88)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}

// VerifyPoW checks that the header hash, interpreted as a big-endian
// 256-bit integer, does not exceed the target encoded by Bits.
func (h *Header) VerifyPoW() error {
	target := CompactToBig(h.Bits)
	if target.Sign() <= 0 {
		return ErrBadBits
	}
	hashInt := hashToBig(h.Hash())
	if hashInt.Cmp(target) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// VerifyTimestampSanity checks the header timestamp is not unreasonably
// far in the future relative to now.
func (h *Header) VerifyTimestampSanity(maxFuture time.Duration, now time.Time) error {
	limit := uint64(now.Add(maxFuture).Unix())
	if h.Timestamp > limit {
		return ErrTimestampTooFuture
	}
	return nil
}
