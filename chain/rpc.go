package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/oraclemesh/go-oraclemesh/safetx"
)

// DefaultReceiptInterval is the pause between receipt polls while waiting
// for a submitted transaction to be mined.
const DefaultReceiptInterval = 2 * time.Second

// ErrTxReverted is returned when a mined transaction carries a failed
// receipt status.
var ErrTxReverted = errors.New("transaction reverted")

// RPCClient implements Client over a JSON-RPC node. It signs locally with
// the agent's chain key; only the transaction hash leaves the process.
type RPCClient struct {
	eth             *ethclient.Client
	key             *ecdsa.PrivateKey
	chainID         *big.Int
	receiptInterval time.Duration
	log             *logrus.Entry
}

// NewRPCClient dials the node and fixes the signing chain id.
func NewRPCClient(url string, key *ecdsa.PrivateKey, chainID *big.Int, log *logrus.Logger) (*RPCClient, error) {
	eth, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc %s: %w", url, err)
	}
	return &RPCClient{
		eth:             eth,
		key:             key,
		chainID:         chainID,
		receiptInterval: DefaultReceiptInterval,
		log:             log.WithField("component", "chain"),
	}, nil
}

// SetReceiptInterval overrides the receipt polling interval.
func (c *RPCClient) SetReceiptInterval(d time.Duration) {
	c.receiptInterval = d
}

// BuildSafeDeploy implements Client. The contract address is derived from
// the deployer account and its next nonce, the same derivation the chain
// applies on creation.
func (c *RPCClient) BuildSafeDeploy(ctx context.Context, deployer common.Address, owners []common.Address, threshold int) (TxParams, common.Address, error) {
	data, err := safetx.DeployData(owners, threshold)
	if err != nil {
		return TxParams{}, common.Address{}, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, deployer)
	if err != nil {
		return TxParams{}, common.Address{}, fmt.Errorf("deployer nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return TxParams{}, common.Address{}, fmt.Errorf("gas price: %w", err)
	}
	params := TxParams{
		From:     deployer,
		Data:     data,
		GasPrice: gasPrice,
		Nonce:    nonce,
	}
	gas, err := c.EstimateGas(ctx, params)
	if err != nil {
		return TxParams{}, common.Address{}, fmt.Errorf("deployment gas: %w", err)
	}
	params.Gas = gas
	return params, crypto.CreateAddress(deployer, nonce), nil
}

// SendRawTransaction implements Client: sign, broadcast, then poll for the
// receipt until the transaction is mined or the context is cancelled.
func (c *RPCClient) SendRawTransaction(ctx context.Context, p TxParams) (common.Hash, error) {
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	var tx *types.Transaction
	if p.To == nil {
		tx = types.NewContractCreation(p.Nonce, value, p.Gas, p.GasPrice, p.Data)
	} else {
		tx = types.NewTransaction(p.Nonce, *p.To, value, p.Gas, p.GasPrice, p.Data)
	}
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	hash := signed.Hash()
	c.log.WithField("tx", hash.Hex()).Info("transaction broadcast, awaiting receipt")
	if err := c.waitMined(ctx, hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (c *RPCClient) waitMined(ctx context.Context, hash common.Hash) error {
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("receipt for %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.receiptInterval):
		}
	}
}

// EstimateGas implements Client.
func (c *RPCClient) EstimateGas(ctx context.Context, p TxParams) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     p.From,
		To:       p.To,
		Value:    p.Value,
		Data:     p.Data,
		GasPrice: p.GasPrice,
	})
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

// GasPrice implements Client.
func (c *RPCClient) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return price, nil
}

// TransactionCount implements Client.
func (c *RPCClient) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("transaction count of %s: %w", addr.Hex(), err)
	}
	return nonce, nil
}
