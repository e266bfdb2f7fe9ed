package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMalformedSignature is returned when the oracle's response does not
// decode to a 65-byte signature. The phase fails rather than submitting a
// corrupt payload.
var ErrMalformedSignature = errors.New("malformed signature from signing oracle")

// Remote forwards signing requests to an off-process custody service over
// HTTP. The request always demands legacy raw-hash mode; a response signed
// any other way would not recover on-chain.
type Remote struct {
	url    string
	client *http.Client
}

// signRequest is the wire request of the oracle's /sign endpoint.
type signRequest struct {
	Hash       string `json:"hash"`
	LegacyMode bool   `json:"legacy_mode"`
}

// signResponse is the oracle's reply.
type signResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// NewRemote builds a client for the oracle at url. There is no local
// deadline: a silent oracle stalls the workflow until the context is
// cancelled, per the process-restart recovery model.
func NewRemote(url string) *Remote {
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: 0},
	}
}

// SignHash implements Signer. The response signature arrives as prefixed hex
// and is validated to exactly 65 bytes before it is returned.
func (s *Remote) SignHash(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != HashLength {
		return nil, fmt.Errorf("%w: got %d", ErrBadDigest, len(digest))
	}
	body, err := json.Marshal(signRequest{
		Hash:       hexutil.Encode(digest),
		LegacyMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode signing request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signing oracle: status %s", resp.Status)
	}
	var decoded signResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode signing response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("signing oracle: %s", decoded.Error)
	}
	return parseSignatureHex(decoded.Signature)
}

// parseSignatureHex strips the scheme prefix and enforces the 65-byte shape.
func parseSignatureHex(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(trimmed) != 2*SignatureLength {
		return nil, fmt.Errorf("%w: %d hex chars, want %d", ErrMalformedSignature, len(trimmed), 2*SignatureLength)
	}
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return sig, nil
}
