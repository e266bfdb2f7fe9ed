package safetx

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// SignatureLength is the byte length of one ECDSA signature (r||s||v).
const SignatureLength = 65

// AssembleSignatures concatenates the recorded signatures in ascending
// signer-address order, the ordering the multisig contract verifies against.
// A participant with no recorded signature is skipped silently: the
// concatenation may carry fewer than N signatures, and it is the contract's
// own threshold check that decides whether that is enough.
func AssembleSignatures(st *period.State) ([]byte, error) {
	var out []byte
	for _, signer := range st.Participants() {
		sigHex, ok := st.SignatureOf(signer)
		if !ok {
			continue
		}
		sig, err := hex.DecodeString(sigHex)
		if err != nil {
			return nil, fmt.Errorf("signature of %s: %w", signer.Hex(), err)
		}
		if len(sig) != SignatureLength {
			return nil, fmt.Errorf("signature of %s: got %d bytes, want %d",
				signer.Hex(), len(sig), SignatureLength)
		}
		out = append(out, sig...)
	}
	return out, nil
}

// Signers returns the addresses whose signatures AssembleSignatures would
// include, in concatenation order.
func Signers(st *period.State) []common.Address {
	var out []common.Address
	for _, signer := range st.Participants() {
		if _, ok := st.SignatureOf(signer); ok {
			out = append(out, signer)
		}
	}
	return out
}
