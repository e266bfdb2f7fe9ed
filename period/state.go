package period

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// State is a read-only snapshot of the agreed period state. Agents never
// mutate it: the substrate is the single writer, and rounds only ever append
// to it, so an agreed value never changes once recorded. Phase handlers
// receive a fresh snapshot after every round barrier.
//
// Optional values (safe address, estimate, tx hash, final tx hash) expose an
// ok flag; reading one before its phase closed returns ok == false.
type State struct {
	participants     []common.Address
	designatedSender common.Address
	hasDesignated    bool
	safeAddress      common.Address
	hasSafeAddress   bool
	observations     map[common.Address]float64
	estimate         float64
	hasEstimate      bool
	safeTxHash       string
	signatures       map[common.Address]string
	finalTxHash      common.Hash
	hasFinalTxHash   bool
}

// Participants returns the agreed participant set sorted in ascending
// address order. Empty until the registration round closed.
func (s *State) Participants() []common.Address {
	out := make([]common.Address, len(s.participants))
	copy(out, s.participants)
	return out
}

// DesignatedSender returns the agent authorized to perform chain writes.
// The substrate records it when the registration round closes.
func (s *State) DesignatedSender() (common.Address, bool) {
	return s.designatedSender, s.hasDesignated
}

// SafeAddress returns the agreed multisig contract address.
func (s *State) SafeAddress() (common.Address, bool) {
	return s.safeAddress, s.hasSafeAddress
}

// Observations returns a copy of the per-agent observation map agreed when
// the collection round closed.
func (s *State) Observations() map[common.Address]float64 {
	out := make(map[common.Address]float64, len(s.observations))
	for k, v := range s.observations {
		out[k] = v
	}
	return out
}

// ObservationValues returns the observation multiset ordered by observer
// address, which gives every agent the identical input sequence for the
// aggregator.
func (s *State) ObservationValues() []float64 {
	addrs := make([]common.Address, 0, len(s.observations))
	for a := range s.observations {
		addrs = append(addrs, a)
	}
	addrs = SortAddresses(addrs)
	out := make([]float64, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, s.observations[a])
	}
	return out
}

// Estimate returns the agreed aggregated price estimate.
func (s *State) Estimate() (float64, bool) {
	return s.estimate, s.hasEstimate
}

// SafeTxHash returns the agreed Safe transaction hash as 64 unprefixed hex
// characters, or "" before the tx-hash round closed.
func (s *State) SafeTxHash() string {
	return s.safeTxHash
}

// Signatures returns a copy of the per-agent signature map.
func (s *State) Signatures() map[common.Address]string {
	out := make(map[common.Address]string, len(s.signatures))
	for k, v := range s.signatures {
		out[k] = v
	}
	return out
}

// SignatureOf returns the recorded signature of one agent, if any.
func (s *State) SignatureOf(addr common.Address) (string, bool) {
	sig, ok := s.signatures[addr]
	return sig, ok
}

// FinalTxHash returns the hash of the mined multisig transaction.
func (s *State) FinalTxHash() (common.Hash, bool) {
	return s.finalTxHash, s.hasFinalTxHash
}

// Builder accumulates agreed values as rounds close and hands out immutable
// snapshots. Only the substrate holds one; it is not safe for concurrent use
// and callers are expected to guard it with their own lock.
type Builder struct {
	st State
}

// NewBuilder returns an empty period-state builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetParticipants records the agreed participant set (stored sorted) exactly
// once, when the registration round closes.
func (b *Builder) SetParticipants(addrs []common.Address) {
	b.st.participants = SortAddresses(addrs)
}

// SetDesignatedSender records the agreed designated sender.
func (b *Builder) SetDesignatedSender(addr common.Address) {
	b.st.designatedSender = addr
	b.st.hasDesignated = true
}

// SetSafeAddress records the agreed multisig contract address.
func (b *Builder) SetSafeAddress(addr common.Address) {
	b.st.safeAddress = addr
	b.st.hasSafeAddress = true
}

// SetObservations records the agreed observation map.
func (b *Builder) SetObservations(obs map[common.Address]float64) {
	cp := make(map[common.Address]float64, len(obs))
	for k, v := range obs {
		cp[k] = v
	}
	b.st.observations = cp
}

// SetEstimate records the agreed estimate.
func (b *Builder) SetEstimate(v float64) {
	b.st.estimate = v
	b.st.hasEstimate = true
}

// SetSafeTxHash records the agreed Safe transaction hash.
func (b *Builder) SetSafeTxHash(hashHex string) {
	b.st.safeTxHash = hashHex
}

// SetSignatures records the agreed signature map.
func (b *Builder) SetSignatures(sigs map[common.Address]string) {
	cp := make(map[common.Address]string, len(sigs))
	for k, v := range sigs {
		cp[k] = v
	}
	b.st.signatures = cp
}

// SetFinalTxHash records the hash of the mined multisig transaction.
func (b *Builder) SetFinalTxHash(h common.Hash) {
	b.st.finalTxHash = h
	b.st.hasFinalTxHash = true
}

// Snapshot returns an immutable copy of the accumulated state.
func (b *Builder) Snapshot() *State {
	cp := b.st
	cp.participants = append([]common.Address(nil), b.st.participants...)
	cp.observations = make(map[common.Address]float64, len(b.st.observations))
	for k, v := range b.st.observations {
		cp.observations[k] = v
	}
	cp.signatures = make(map[common.Address]string, len(b.st.signatures))
	for k, v := range b.st.signatures {
		cp.signatures[k] = v
	}
	return &cp
}

// stateWire is the JSON shape the remote substrate serves over ABCI queries.
type stateWire struct {
	Participants     []common.Address   `json:"participants"`
	DesignatedSender *common.Address    `json:"designated_sender,omitempty"`
	SafeAddress      *common.Address    `json:"safe_address,omitempty"`
	Observations     map[string]float64 `json:"observations,omitempty"`
	Estimate         *float64           `json:"estimate,omitempty"`
	SafeTxHash       string             `json:"safe_tx_hash,omitempty"`
	Signatures       map[string]string  `json:"signatures,omitempty"`
	FinalTxHash      *common.Hash       `json:"final_tx_hash,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s *State) MarshalJSON() ([]byte, error) {
	w := stateWire{
		Participants: s.participants,
		SafeTxHash:   s.safeTxHash,
	}
	if s.hasDesignated {
		d := s.designatedSender
		w.DesignatedSender = &d
	}
	if s.hasSafeAddress {
		a := s.safeAddress
		w.SafeAddress = &a
	}
	if len(s.observations) > 0 {
		w.Observations = make(map[string]float64, len(s.observations))
		for k, v := range s.observations {
			w.Observations[k.Hex()] = v
		}
	}
	if s.hasEstimate {
		e := s.estimate
		w.Estimate = &e
	}
	if len(s.signatures) > 0 {
		w.Signatures = make(map[string]string, len(s.signatures))
		for k, v := range s.signatures {
			w.Signatures[k.Hex()] = v
		}
	}
	if s.hasFinalTxHash {
		h := s.finalTxHash
		w.FinalTxHash = &h
	}
	return json.Marshal(&w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	var w stateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("period state: %w", err)
	}
	*s = State{
		participants: SortAddresses(w.Participants),
		safeTxHash:   w.SafeTxHash,
	}
	if w.DesignatedSender != nil {
		s.designatedSender = *w.DesignatedSender
		s.hasDesignated = true
	}
	if w.SafeAddress != nil {
		s.safeAddress = *w.SafeAddress
		s.hasSafeAddress = true
	}
	if len(w.Observations) > 0 {
		s.observations = make(map[common.Address]float64, len(w.Observations))
		for k, v := range w.Observations {
			if !common.IsHexAddress(k) {
				return fmt.Errorf("period state: invalid observer address %q", k)
			}
			s.observations[common.HexToAddress(k)] = v
		}
	}
	if w.Estimate != nil {
		s.estimate = *w.Estimate
		s.hasEstimate = true
	}
	if len(w.Signatures) > 0 {
		s.signatures = make(map[common.Address]string, len(w.Signatures))
		for k, v := range w.Signatures {
			if !common.IsHexAddress(k) {
				return fmt.Errorf("period state: invalid signer address %q", k)
			}
			s.signatures[common.HexToAddress(k)] = v
		}
	}
	if w.FinalTxHash != nil {
		s.finalTxHash = *w.FinalTxHash
		s.hasFinalTxHash = true
	}
	return nil
}
