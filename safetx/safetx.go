// Package safetx builds the multisig ("Safe") transaction artifacts of the
// workflow: the to-be-signed transaction structure and its EIP-712 hash, the
// call-data encodings the contract consumes, the ordered signature blob, and
// the gas arithmetic for the final execution transaction.
//
// Everything here is a pure function of agreed period state, so any two
// agents holding the same snapshot compute byte-identical artifacts. Nothing
// in this package performs I/O.
package safetx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Operation selects how the Safe performs the inner call.
type Operation uint8

const (
	// OpCall is a plain CALL from the Safe to the target.
	OpCall Operation = 0
	// OpDelegateCall executes the target's code in the Safe's context.
	OpDelegateCall Operation = 1
)

// ExecPadGas is the safety margin added on top of the node's gas estimate
// for the execution transaction.
const ExecPadGas = 75000

// Intrinsic gas cost of a transaction plus EIP-2028 call-data pricing,
// used for the deterministic SafeTxGas default.
const (
	txBaseGas       = 21000
	dataZeroGas     = 4
	dataNonZeroGas  = 16
	execOverheadGas = 12000
)

// SafeTx is the to-be-signed multisig transaction. It mirrors the contract's
// signed struct field for field; the hash over these fields is what every
// agent signs during the signature phase.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      uint64
	BaseGas        uint64
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          uint64
}

// New builds a SafeTx for a plain call with deterministic gas fields derived
// from the call-data. All agents building from the same (to, data, nonce)
// produce the identical struct, which the tx-hash round relies on.
func New(to common.Address, data []byte, nonce uint64) SafeTx {
	return SafeTx{
		To:        to,
		Value:     new(big.Int),
		Data:      append([]byte(nil), data...),
		Operation: OpCall,
		SafeTxGas: DataGas(data),
		GasPrice:  new(big.Int),
		Nonce:     nonce,
	}
}

// DataGas prices call-data the way the chain does: a fixed intrinsic cost
// plus per-byte costs, cheaper for zero bytes.
func DataGas(data []byte) uint64 {
	gas := uint64(txBaseGas)
	for _, b := range data {
		if b == 0 {
			gas += dataZeroGas
		} else {
			gas += dataNonZeroGas
		}
	}
	return gas
}

// RecommendedGas is the deterministic lower bound for the execution
// transaction's gas limit: the inner call budget plus the contract's own
// signature-checking and bookkeeping overhead.
func (tx *SafeTx) RecommendedGas() uint64 {
	return tx.SafeTxGas + tx.BaseGas + execOverheadGas + ExecPadGas
}

// ExecGas returns the gas limit for the execution transaction:
// max(estimated + ExecPadGas, recommended).
func ExecGas(estimated, recommended uint64) uint64 {
	padded := estimated + ExecPadGas
	if padded > recommended {
		return padded
	}
	return recommended
}

// EIP-712 type hashes of the Safe's signing domain and transaction struct.
var (
	domainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash = crypto.Keccak256([]byte(
		"SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// Hash computes the EIP-712 digest of the transaction for the given Safe
// contract and chain id. The unprefixed hex form of this digest is the body
// of the TxHash payload and the message every agent signs.
func (tx *SafeTx) Hash(safe common.Address, chainID *big.Int) common.Hash {
	domainSeparator := crypto.Keccak256(
		domainTypeHash,
		common.LeftPadBytes(chainID.Bytes(), 32),
		common.LeftPadBytes(safe.Bytes(), 32),
	)
	structHash := crypto.Keccak256(
		safeTxTypeHash,
		common.LeftPadBytes(tx.To.Bytes(), 32),
		common.LeftPadBytes(tx.Value.Bytes(), 32),
		crypto.Keccak256(tx.Data),
		common.LeftPadBytes([]byte{byte(tx.Operation)}, 32),
		common.LeftPadBytes(new(big.Int).SetUint64(tx.SafeTxGas).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(tx.BaseGas).Bytes(), 32),
		common.LeftPadBytes(tx.GasPrice.Bytes(), 32),
		common.LeftPadBytes(tx.GasToken.Bytes(), 32),
		common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(tx.Nonce).Bytes(), 32),
	)
	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		domainSeparator,
		structHash,
	))
}
