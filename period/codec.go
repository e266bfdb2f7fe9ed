package period

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Payload wire codec.
//
// Payloads travel to a remote substrate inside consensus transactions, so
// the encoding has to be deterministic and self-describing: one type tag,
// the 20-byte sender, then the phase-specific body. The decode side belongs
// to the substrate application on the other end of that transport; it
// re-validates hex-string bodies (carried as their decoded bytes) so a
// corrupt payload is rejected before it is merged. The in-process Substrate
// takes typed payloads directly and never crosses this boundary.
//
// Layout:
//
//	[1: type tag][20: sender][body...]
//
// Bodies: DeploySafe = 20-byte address; Observation/Estimate = 8-byte
// big-endian IEEE-754 bits; TxHash = 32 bytes; Signature = 65 bytes;
// FinalizationTx = 32 bytes; Registration has no body.

// Type tags of the wire encoding. The numbering is part of the wire format
// and must never be reordered.
const (
	tagRegistration byte = iota + 1
	tagDeploySafe
	tagObservation
	tagEstimate
	tagTxHash
	tagSignature
	tagFinalizationTx
)

var (
	// ErrMalformedEncoding is returned when a payload buffer is truncated,
	// carries trailing bytes, or has an unknown type tag.
	ErrMalformedEncoding = errors.New("malformed payload encoding")
)

// EncodePayload serializes p into its canonical wire form.
func EncodePayload(p Payload) ([]byte, error) {
	w := newWriter()
	switch v := p.(type) {
	case Registration:
		w.u8(tagRegistration)
		w.address(v.sender)
	case DeploySafe:
		w.u8(tagDeploySafe)
		w.address(v.sender)
		w.address(v.safeAddress)
	case Observation:
		w.u8(tagObservation)
		w.address(v.sender)
		w.f64(v.value)
	case Estimate:
		w.u8(tagEstimate)
		w.address(v.sender)
		w.f64(v.value)
	case TxHash:
		w.u8(tagTxHash)
		w.address(v.sender)
		w.hexBody(v.hashHex, TxHashHexLen/2)
	case Signature:
		w.u8(tagSignature)
		w.address(v.sender)
		w.hexBody(v.signatureHex, SignatureHexLen/2)
	case FinalizationTx:
		w.u8(tagFinalizationTx)
		w.address(v.sender)
		w.bytes(v.txHash[:])
	default:
		return nil, fmt.Errorf("%w: unknown payload type %T", ErrMalformedEncoding, p)
	}
	return w.finish()
}

// DecodePayload parses a canonical wire buffer back into a payload,
// re-validating hex bodies along the way.
func DecodePayload(raw []byte) (Payload, error) {
	r := newReader(raw)
	tag := r.u8()
	sender := r.address()
	var (
		p   Payload
		err error
	)
	switch tag {
	case tagRegistration:
		p = NewRegistration(sender)
	case tagDeploySafe:
		p = NewDeploySafe(sender, r.address())
	case tagObservation:
		p = NewObservation(sender, r.f64())
	case tagEstimate:
		p = NewEstimate(sender, r.f64())
	case tagTxHash:
		p, err = NewTxHash(sender, r.hexBody(TxHashHexLen/2))
	case tagSignature:
		p, err = NewSignature(sender, r.hexBody(SignatureHexLen/2))
	case tagFinalizationTx:
		p = NewFinalizationTx(sender, common.BytesToHash(r.bytes(common.HashLength)))
	default:
		return nil, fmt.Errorf("%w: unknown type tag 0x%02x", ErrMalformedEncoding, tag)
	}
	if r.err != nil {
		return nil, r.err
	}
	if err != nil {
		return nil, err
	}
	if len(r.rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedEncoding, len(r.rest))
	}
	return p, nil
}

// writer accumulates the wire buffer; errors surface once in finish.
type writer struct {
	buf []byte
	err error
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 128)}
}

func (w *writer) u8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) address(a common.Address) {
	w.buf = append(w.buf, a[:]...)
}

func (w *writer) f64(v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) hexBody(body string, wantBytes int) {
	decoded, err := hex.DecodeString(body)
	if err != nil {
		w.err = fmt.Errorf("%w: %v", ErrMalformedHex, err)
		return
	}
	if len(decoded) != wantBytes {
		w.err = fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedHex, len(decoded), wantBytes)
		return
	}
	w.buf = append(w.buf, decoded...)
}

func (w *writer) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// reader consumes the wire buffer; the first failure sticks and every later
// read becomes a no-op, so call sites only check once.
type reader struct {
	rest []byte
	err  error
}

func newReader(raw []byte) *reader {
	return &reader{rest: raw}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.rest) < n {
		r.err = fmt.Errorf("%w: truncated (need %d bytes, have %d)", ErrMalformedEncoding, n, len(r.rest))
		return nil
	}
	out := r.rest[:n]
	r.rest = r.rest[n:]
	return out
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) address() common.Address {
	return common.BytesToAddress(r.take(common.AddressLength))
}

func (r *reader) f64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (r *reader) bytes(n int) []byte {
	return r.take(n)
}

func (r *reader) hexBody(nBytes int) string {
	return hex.EncodeToString(r.take(nBytes))
}
