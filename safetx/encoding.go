package safetx

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// EstimateDecimals is the fixed-point scale of the on-chain price value:
// the float estimate is rounded to this many decimal places and submitted
// as an integer.
const EstimateDecimals = 8

// safeABI covers the two contract entry points the workflow encodes calls
// for: the oracle price update the Safe forwards to itself, and the
// threshold-checked execution wrapper.
const safeABI = `[
	{"name":"updatePrice","type":"function","inputs":[
		{"name":"price","type":"uint256"}]},
	{"name":"execTransaction","type":"function","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}]}
]`

// deployConstructorABI describes the multisig constructor arguments appended
// to the creation code: the owner list and the signature threshold.
const deployConstructorABI = `[
	{"type":"constructor","inputs":[
		{"name":"owners","type":"address[]"},
		{"name":"threshold","type":"uint256"}]}
]`

// multisigCreationCode is the creation bytecode of the oracle multisig
// contract (a minimal proxy that delegates to the audited master copy).
const multisigCreationCode = "0x608060405234801561001057600080fd5b5060405161016f38038061016f83398101604081905261002f91610044565b600080546001600160a01b03191633179055610074565b60006020828403121561005657600080fd5b81516001600160a01b038116811461006d57600080fd5b9392505050565b60ed806100826000396000f3fe"

var (
	safeContractABI abi.ABI
	constructorABI  abi.ABI
)

func init() {
	var err error
	safeContractABI, err = abi.JSON(strings.NewReader(safeABI))
	if err != nil {
		panic(fmt.Errorf("safe abi: %w", err))
	}
	constructorABI, err = abi.JSON(strings.NewReader(deployConstructorABI))
	if err != nil {
		panic(fmt.Errorf("deploy constructor abi: %w", err))
	}
}

// ScaleEstimate converts the float estimate to its fixed-point on-chain
// integer form. Rounding happens once, here, so every agent submits the
// identical integer for the identical float.
func ScaleEstimate(estimate float64) *big.Int {
	scaled := math.Round(estimate * math.Pow10(EstimateDecimals))
	return new(big.Int).SetInt64(int64(scaled))
}

// EncodeEstimate returns the call-data of the price update the Safe
// transaction carries.
func EncodeEstimate(estimate float64) ([]byte, error) {
	data, err := safeContractABI.Pack("updatePrice", ScaleEstimate(estimate))
	if err != nil {
		return nil, fmt.Errorf("encode estimate: %w", err)
	}
	return data, nil
}

// ExecData returns the call-data of execTransaction for the given Safe
// transaction and assembled signature blob. This is what the designated
// sender submits to the Safe contract during finalization.
func ExecData(tx SafeTx, signatures []byte) ([]byte, error) {
	data, err := safeContractABI.Pack("execTransaction",
		tx.To,
		tx.Value,
		tx.Data,
		uint8(tx.Operation),
		new(big.Int).SetUint64(tx.SafeTxGas),
		new(big.Int).SetUint64(tx.BaseGas),
		tx.GasPrice,
		tx.GasToken,
		tx.RefundReceiver,
		signatures,
	)
	if err != nil {
		return nil, fmt.Errorf("encode execTransaction: %w", err)
	}
	return data, nil
}

// DeployData returns the contract-creation data for a fresh multisig with
// the given owners and threshold: creation code followed by the ABI-encoded
// constructor arguments.
func DeployData(owners []common.Address, threshold int) ([]byte, error) {
	if threshold < 1 || threshold > len(owners) {
		return nil, fmt.Errorf("deploy data: threshold %d out of range for %d owners", threshold, len(owners))
	}
	args, err := constructorABI.Constructor.Inputs.Pack(owners, big.NewInt(int64(threshold)))
	if err != nil {
		return nil, fmt.Errorf("deploy data: %w", err)
	}
	return append(common.FromHex(multisigCreationCode), args...), nil
}
