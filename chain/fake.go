package chain

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/oraclemesh/go-oraclemesh/safetx"
)

// WriteCall records one chain-writing operation performed against the fake
// chain, with the account that performed it. Tests use the record to prove
// that only the designated sender ever writes.
type WriteCall struct {
	Kind string
	From common.Address
}

// FakeClient is a deterministic in-memory ledger. Transaction hashes are
// derived from the transaction content, contract addresses from the standard
// creation derivation, so repeated runs produce identical artifacts.
// Safe for concurrent use by the fakenet agents sharing it.
type FakeClient struct {
	mu sync.Mutex

	gasPrice *big.Int
	gasEst   uint64
	nonces   map[common.Address]uint64
	writes   []WriteCall
	mined    []TxParams
}

// NewFakeClient builds a fake chain with the given suggested gas price and
// fixed gas estimate.
func NewFakeClient(gasPrice *big.Int, gasEstimate uint64) *FakeClient {
	return &FakeClient{
		gasPrice: new(big.Int).Set(gasPrice),
		gasEst:   gasEstimate,
		nonces:   make(map[common.Address]uint64),
	}
}

// BuildSafeDeploy implements Client.
func (c *FakeClient) BuildSafeDeploy(ctx context.Context, deployer common.Address, owners []common.Address, threshold int) (TxParams, common.Address, error) {
	data, err := safetx.DeployData(owners, threshold)
	if err != nil {
		return TxParams{}, common.Address{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	nonce := c.nonces[deployer]
	params := TxParams{
		From:     deployer,
		Data:     data,
		Gas:      c.gasEst,
		GasPrice: new(big.Int).Set(c.gasPrice),
		Nonce:    nonce,
	}
	return params, crypto.CreateAddress(deployer, nonce), nil
}

// SendRawTransaction implements Client. Mining is immediate.
func (c *FakeClient) SendRawTransaction(ctx context.Context, p TxParams) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, WriteCall{Kind: "send_raw_transaction", From: p.From})
	c.mined = append(c.mined, p)
	c.nonces[p.From] = p.Nonce + 1

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], p.Nonce)
	return common.BytesToHash(crypto.Keccak256(p.From[:], nonceBytes[:], p.Data)), nil
}

// EstimateGas implements Client.
func (c *FakeClient) EstimateGas(ctx context.Context, p TxParams) (uint64, error) {
	return c.gasEst, nil
}

// GasPrice implements Client.
func (c *FakeClient) GasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.gasPrice), nil
}

// TransactionCount implements Client.
func (c *FakeClient) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[addr], nil
}

// SetTransactionCount seeds an account's nonce.
func (c *FakeClient) SetTransactionCount(addr common.Address, nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonces[addr] = nonce
}

// WriteCalls returns a copy of every chain-writing call performed so far.
func (c *FakeClient) WriteCalls() []WriteCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WriteCall(nil), c.writes...)
}

// MinedTransactions returns a copy of every transaction the fake chain mined,
// in submission order.
func (c *FakeClient) MinedTransactions() []TxParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TxParams(nil), c.mined...)
}
