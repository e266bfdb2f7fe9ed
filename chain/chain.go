// Package chain is the workflow's distributed-ledger client: multisig
// deployment, raw transaction submission (blocking until mined), and the gas
// and nonce lookups the finalization phase needs.
//
// Two implementations exist: RPCClient speaks JSON-RPC to a real node
// through go-ethereum's ethclient, and FakeClient is a deterministic
// in-memory chain that records every write so tests can prove which agent
// performed chain-writing calls.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxParams is the unsigned parameter set of one chain transaction, the shape
// handed to SendRawTransaction. A nil To is contract creation.
type TxParams struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Nonce    uint64
}

// Client is the ledger interface the workflow consumes. Write calls block
// until the transaction is mined; cancellation comes from the context, which
// matches the workflow's no-local-timeout discipline.
type Client interface {
	// BuildSafeDeploy prepares the multisig deployment transaction for
	// the given owners and threshold and predicts the contract address it
	// will create. The returned params still have to be submitted through
	// SendRawTransaction.
	BuildSafeDeploy(ctx context.Context, deployer common.Address, owners []common.Address, threshold int) (TxParams, common.Address, error)

	// SendRawTransaction signs and submits the transaction and blocks
	// until it is mined, returning the transaction hash.
	SendRawTransaction(ctx context.Context, p TxParams) (common.Hash, error)

	// EstimateGas asks the node for a gas estimate of the call.
	EstimateGas(ctx context.Context, p TxParams) (uint64, error)

	// GasPrice returns the node's suggested gas price.
	GasPrice(ctx context.Context) (*big.Int, error)

	// TransactionCount returns the account's next nonce.
	TransactionCount(ctx context.Context, addr common.Address) (uint64, error)
}
