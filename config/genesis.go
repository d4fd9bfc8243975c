package config

import (
	"github.com/klingnet-chain/core/pkg/block"
	"github.com/klingnet-chain/core/pkg/tx"
	"github.com/klingnet-chain/core/pkg/types"
)

// =============================================================================
// Genesis block construction
//
// The chain engine treats the genesis block as just another StoredBlock,
// at height 0 with no parent (the sole exception to "every stored block
// has its parent present"). Building it is a config-layer concern — the
// engine only uses params.GenesisBlock.Header to build that height-0
// stored block.
// =============================================================================

// Denomination constants. 1 coin = 10^12 base units. All on-chain
// values are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs  = 500       // Max transactions per block (including coinbase)
	MaxTxInputs  = 2500      // Max inputs per transaction
	MaxTxOutputs = 2500      // Max outputs per transaction
)

// genesisCoinbase builds the single coinbase transaction sealed into a
// genesis block, crediting the given allocations. Script/address
// encoding is out of scope for this engine, so allocations are keyed by
// an opaque label carried in the output data rather than a real address.
func genesisCoinbase(extraData string, allocs map[string]uint64) *tx.Transaction {
	outputs := make([]tx.Output, 0, len(allocs))
	for label, value := range allocs {
		outputs = append(outputs, tx.Output{
			Value: value,
			Data:  []byte(label),
		})
	}
	return &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{{
			PrevOut: types.Outpoint{},
			Witness: []byte(extraData),
		}},
		Outputs: outputs,
	}
}

// buildGenesisBlock assembles the genesis block for a network: a single
// coinbase transaction, a merkle root over it, and a header with a
// zero prev-hash and bits set to the network's proof-of-work limit.
func buildGenesisBlock(timestamp uint64, bits uint32, extraData string, allocs map[string]uint64) *block.Block {
	coinbase := genesisCoinbase(extraData, allocs)
	merkleRoot := block.ComputeMerkleRoot([]types.Hash{coinbase.Hash()})

	header := &block.Header{
		Version:    block.CurrentVersion,
		PrevHash:   types.Hash{},
		MerkleRoot: merkleRoot,
		Timestamp:  timestamp,
		Bits:       bits,
	}

	return block.NewBlock(header, []*tx.Transaction{coinbase})
}

// mainnetPowLimit is the easiest allowed target on mainnet, encoded
// compact — comparable to early Bitcoin's genesis-era 0x1d00ffff.
const mainnetPowLimit uint32 = 0x1d00ffff

// testnetPowLimit is deliberately far easier than mainnet's so test
// blocks can be produced without real mining hardware.
const testnetPowLimit uint32 = 0x1f00ffff

// MainnetParams returns the consensus-critical network parameters for
// mainnet.
func MainnetParams() *NetworkParameters {
	genesisBlock := buildGenesisBlock(
		1770734103, // 2026-02-10
		mainnetPowLimit,
		"Klingnet Genesis",
		map[string]uint64{
			"kgx1a8tfl79jgres7t90tttkc7ytjmhs5lpdn5ag4l": 100_000 * Coin, // genesis allocation for ERC-20 KGX swap
		},
	)

	return &NetworkParameters{
		ID:               "klingnet-mainnet-1",
		Network:          Mainnet,
		GenesisBlock:     genesisBlock,
		ProofOfWorkLimit: mainnetPowLimit,
		Forks: ForkSchedule{
			JulyFork:      50_000,
			NovemberFork:  61_000,
			MayFork:       95_000,
			NovemberFork2: 97_785,
			JulyFork2:     120_000,
		},
		Checkpoints: []Checkpoint{
			{Height: 0, Hash: genesisBlock.Hash()},
		},
	}
}

// TestnetParams returns the consensus-critical network parameters for
// testnet. Forks activate at much lower heights so the full era
// progression is reachable on a short-lived test chain.
func TestnetParams() *NetworkParameters {
	genesisBlock := buildGenesisBlock(
		1770734103,
		testnetPowLimit,
		"Klingnet Testnet Genesis",
		map[string]uint64{
			TestnetAddress: 200_000 * Coin,
		},
	)

	return &NetworkParameters{
		ID:               "klingnet-testnet-1",
		Network:          Testnet,
		GenesisBlock:     genesisBlock,
		ProofOfWorkLimit: testnetPowLimit,
		Forks: ForkSchedule{
			JulyFork:      500,
			NovemberFork:  610,
			MayFork:       950,
			NovemberFork2: 978,
			JulyFork2:     1_200,
		},
		Checkpoints: []Checkpoint{
			{Height: 0, Hash: genesisBlock.Hash()},
		},
	}
}

// ParamsFor returns the network parameters for the given network.
func ParamsFor(network NetworkType) *NetworkParameters {
	switch network {
	case Testnet:
		return TestnetParams()
	default:
		return MainnetParams()
	}
}

// =============================================================================
// Testnet identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

// TestnetAddress labels the genesis allocation output on testnet.
const TestnetAddress = "tkgx13uayfwq9djh7cd5dagxtuzk3mx7r7sc9xv4h52"
