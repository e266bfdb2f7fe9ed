// Package signer is the workflow's signing oracle: it produces raw-hash
// ("legacy mode") ECDSA signatures over the agreed Safe transaction digest.
// Raw-hash mode signs the 32-byte digest directly, without the message
// prefix of the standard personal-sign scheme, because that is the form the
// multisig contract recovers on-chain.
//
// Local signs with an in-process secp256k1 key; Remote forwards the request
// to an off-process custody service over HTTP.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the byte length of a produced signature (r||s||v,
// with v in {27, 28}).
const SignatureLength = 65

// HashLength is the only digest size SignHash accepts.
const HashLength = common.HashLength

var (
	// ErrBadDigest is returned for a digest that is not exactly 32 bytes.
	ErrBadDigest = errors.New("digest must be 32 bytes")
)

// Signer produces a raw-hash signature over a 32-byte digest. One request is
// in flight per call; the call blocks until the oracle answers or the
// context is cancelled.
type Signer interface {
	SignHash(ctx context.Context, digest []byte) ([]byte, error)
}

// Local signs with an in-process private key.
type Local struct {
	key *ecdsa.PrivateKey
}

// NewLocal wraps the given key.
func NewLocal(key *ecdsa.PrivateKey) *Local {
	return &Local{key: key}
}

// Address returns the account address of the signing key.
func (s *Local) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignHash implements Signer. The recovery byte is shifted to the contract
// convention of 27/28.
func (s *Local) SignHash(ctx context.Context, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(digest) != HashLength {
		return nil, fmt.Errorf("%w: got %d", ErrBadDigest, len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	sig[SignatureLength-1] += 27
	return sig, nil
}
