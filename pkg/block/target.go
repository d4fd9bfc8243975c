package block

import (
	"errors"
	"math/big"

	"github.com/klingnet-chain/core/pkg/types"
)

// Compact target ("bits") encoding errors and proof-of-work sentinels.
var (
	ErrBadBits            = errors.New("block: bits encode a non-positive target")
	ErrInsufficientWork   = errors.New("block: header hash exceeds target")
	ErrTimestampTooFuture = errors.New("block: header timestamp too far in the future")
)

// twoTo256 is 2^256, the numerator of the cumulative-work formula.
var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CompactToBig decodes the classic 32-bit "bits" mantissa/exponent
// encoding into a 256-bit target. Bits 24-31 hold the exponent (byte
// length of the mantissa including the leading sign byte), bits 0-23
// hold the mantissa; bit 23 of the mantissa is a sign flag.
func CompactToBig(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff
	negative := bits&0x00800000 != 0

	var target *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target = new(big.Int).SetUint64(uint64(mantissa))
	} else {
		target = new(big.Int).SetUint64(uint64(mantissa))
		target.Lsh(target, 8*(uint(exponent)-3))
	}
	if negative && target.Sign() != 0 {
		target.Neg(target)
	}
	return target
}

// BigToCompact encodes a 256-bit target into the compact bits form.
func BigToCompact(target *big.Int) uint32 {
	if target.Sign() == 0 {
		return 0
	}
	negative := target.Sign() < 0
	abs := new(big.Int).Abs(target)

	exponent := uint(len(abs.Bytes()))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(abs.Uint64())
		mantissa <<= 8 * (3 - exponent)
	} else {
		shifted := new(big.Int).Rsh(abs, 8*(exponent-3))
		mantissa = uint32(shifted.Uint64())
	}

	// If the sign bit of the mantissa collides with the encoding's own
	// sign flag, renormalize by shifting one more byte into the exponent.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	bits := (uint32(exponent) << 24) | mantissa
	if negative {
		bits |= 0x00800000
	}
	return bits
}

// CumulativeWork returns the proof-of-work "work" contributed by a
// block with the given compact target: 2^256 / (target + 1).
func CumulativeWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	work := new(big.Int).Quo(twoTo256, denom)
	return work
}

// MantissaMask returns the mask that zeroes everything below the
// 3-byte mantissa precision the advertised bits claim, per the
// historical compact-target comparison rule.
func MantissaMask(bits uint32) *big.Int {
	accuracyBytes := int((bits>>24)&0xff) - 3
	mask := new(big.Int).SetUint64(0xFFFFFF)
	if accuracyBytes > 0 {
		mask.Lsh(mask, uint(accuracyBytes)*8)
	} else if accuracyBytes < 0 {
		mask.Rsh(mask, uint(-accuracyBytes)*8)
	}
	return mask
}

// EqualUnderMask reports whether a and b agree once masked down to
// the precision recvBits' exponent implies.
func EqualUnderMask(a, b *big.Int, recvBits uint32) bool {
	mask := MantissaMask(recvBits)
	am := new(big.Int).And(a, mask)
	bm := new(big.Int).And(b, mask)
	return am.Cmp(bm) == 0
}

func hashToBig(h types.Hash) *big.Int {
	// Hashes are compared as big-endian integers; block hashes are
	// conventionally displayed reversed, but the engine only needs a
	// total order plus the zero-hash sentinel, so raw bytes suffice.
	return new(big.Int).SetBytes(h[:])
}
