package period

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Wire sizes of the two hex-string payload bodies. A Safe transaction hash is
// a 32-byte digest (64 hex chars, no 0x prefix); a signature is a 65-byte
// ECDSA r||s||v blob (130 hex chars, no prefix).
const (
	TxHashHexLen    = 64
	SignatureHexLen = 130
)

var (
	// ErrMalformedHex is returned when a hex-string payload body does not
	// have the expected length or does not decode as hex. Such payloads
	// must never reach the substrate.
	ErrMalformedHex = errors.New("malformed hex payload body")
)

// Payload is a typed message one agent contributes for one phase. Payloads
// are immutable value objects uniquely identified by (Phase, Sender); the
// substrate ignores duplicates per phase.
type Payload interface {
	// Phase names the round this payload belongs to.
	Phase() Phase
	// Sender is the agent address that produced the payload.
	Sender() common.Address
}

// Registration announces an agent's intent to participate in the period.
type Registration struct {
	sender common.Address
}

// NewRegistration builds a Registration payload for the given agent.
func NewRegistration(sender common.Address) Registration {
	return Registration{sender: sender}
}

func (p Registration) Phase() Phase           { return PhaseRegistration }
func (p Registration) Sender() common.Address { return p.sender }

// DeploySafe carries the address of the freshly deployed multisig contract.
// Only the designated sender emits it.
type DeploySafe struct {
	sender      common.Address
	safeAddress common.Address
}

// NewDeploySafe builds a DeploySafe payload.
func NewDeploySafe(sender, safeAddress common.Address) DeploySafe {
	return DeploySafe{sender: sender, safeAddress: safeAddress}
}

func (p DeploySafe) Phase() Phase           { return PhaseDeploySafe }
func (p DeploySafe) Sender() common.Address { return p.sender }

// SafeAddress is the deployed contract address.
func (p DeploySafe) SafeAddress() common.Address { return p.safeAddress }

// Observation carries one agent's externally observed price value.
type Observation struct {
	sender common.Address
	value  float64
}

// NewObservation builds an Observation payload.
func NewObservation(sender common.Address, value float64) Observation {
	return Observation{sender: sender, value: value}
}

func (p Observation) Phase() Phase           { return PhaseCollectObservation }
func (p Observation) Sender() common.Address { return p.sender }

// Value is the observed price.
func (p Observation) Value() float64 { return p.value }

// Estimate carries the deterministic aggregate an agent computed over the
// agreed observation multiset. Every compliant agent emits a bit-identical
// value, which is what lets the round converge.
type Estimate struct {
	sender common.Address
	value  float64
}

// NewEstimate builds an Estimate payload.
func NewEstimate(sender common.Address, value float64) Estimate {
	return Estimate{sender: sender, value: value}
}

func (p Estimate) Phase() Phase           { return PhaseEstimateConsensus }
func (p Estimate) Sender() common.Address { return p.sender }

// Value is the aggregated estimate.
func (p Estimate) Value() float64 { return p.value }

// TxHash carries the unprefixed hex digest of the Safe transaction every
// agent must sign. Only the designated sender emits it.
type TxHash struct {
	sender  common.Address
	hashHex string
}

// NewTxHash builds a TxHash payload. The hash must be exactly 64 unprefixed
// hex characters; anything else is rejected with ErrMalformedHex.
func NewTxHash(sender common.Address, hashHex string) (TxHash, error) {
	if err := checkHexBody(hashHex, TxHashHexLen); err != nil {
		return TxHash{}, fmt.Errorf("tx hash payload: %w", err)
	}
	return TxHash{sender: sender, hashHex: strings.ToLower(hashHex)}, nil
}

func (p TxHash) Phase() Phase           { return PhaseTxHash }
func (p TxHash) Sender() common.Address { return p.sender }

// HashHex is the 64-char unprefixed hex digest.
func (p TxHash) HashHex() string { return p.hashHex }

// Signature carries one agent's 65-byte ECDSA signature over the agreed
// transaction hash, as 130 unprefixed hex characters.
type Signature struct {
	sender       common.Address
	signatureHex string
}

// NewSignature builds a Signature payload. The signature must be exactly 130
// unprefixed hex characters (65 bytes); a malformed signature fails the phase
// rather than reaching the substrate.
func NewSignature(sender common.Address, signatureHex string) (Signature, error) {
	if err := checkHexBody(signatureHex, SignatureHexLen); err != nil {
		return Signature{}, fmt.Errorf("signature payload: %w", err)
	}
	return Signature{sender: sender, signatureHex: strings.ToLower(signatureHex)}, nil
}

func (p Signature) Phase() Phase           { return PhaseCollectSignature }
func (p Signature) Sender() common.Address { return p.sender }

// SignatureHex is the 130-char unprefixed hex signature.
func (p Signature) SignatureHex() string { return p.signatureHex }

// FinalizationTx carries the hash of the mined multisig transaction. Only the
// designated sender emits it.
type FinalizationTx struct {
	sender common.Address
	txHash common.Hash
}

// NewFinalizationTx builds a FinalizationTx payload.
func NewFinalizationTx(sender common.Address, txHash common.Hash) FinalizationTx {
	return FinalizationTx{sender: sender, txHash: txHash}
}

func (p FinalizationTx) Phase() Phase           { return PhaseFinalization }
func (p FinalizationTx) Sender() common.Address { return p.sender }

// TxHash is the mined transaction hash.
func (p FinalizationTx) TxHash() common.Hash { return p.txHash }

func checkHexBody(body string, wantLen int) error {
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		return fmt.Errorf("%w: unexpected 0x prefix", ErrMalformedHex)
	}
	if len(body) != wantLen {
		return fmt.Errorf("%w: got %d chars, want %d", ErrMalformedHex, len(body), wantLen)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}
	return nil
}
