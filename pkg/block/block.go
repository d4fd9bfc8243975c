package block

import (
	"github.com/klingnet-chain/core/pkg/tx"
	"github.com/klingnet-chain/core/pkg/types"
)

// Block is a full block: a header plus every transaction it commits to.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// FilteredBlock is a header plus a partial transaction set: the full
// set of transaction hashes the block commits to (via its merkle
// root) and the subset of transactions actually known to the sender.
// Exactly one of Block or FilteredBlock is ever submitted for a given
// header — never both.
type FilteredBlock struct {
	Header       *Header           `json:"header"`
	TxHashes     []types.Hash      `json:"tx_hashes"`
	Transactions []*tx.Transaction `json:"transactions"`
}
