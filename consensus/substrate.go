package consensus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// rounds is the substrate's round schedule: every phase that has a consensus
// round, in order. The initial-delay gate is local to each agent and never
// reaches the substrate.
var rounds = []period.Phase{
	period.PhaseRegistration,
	period.PhaseDeploySafe,
	period.PhaseCollectObservation,
	period.PhaseEstimateConsensus,
	period.PhaseTxHash,
	period.PhaseCollectSignature,
	period.PhaseFinalization,
	period.PhaseConsensusReached,
}

// Substrate is an in-process consensus substrate with the same observable
// contract as the real one: it deduplicates payloads by (phase, sender),
// closes each round by its quorum rule, performs the authoritative append-only
// merge into the period state, and then opens the next round. It backs
// fakenet runs and the test suite; it is safe for concurrent use by any
// number of agents in the same process.
//
// Round closure rules:
//   - registration closes when the configured number of agents registered;
//     closing fixes the participant set and records the designated sender
//     (the lexicographically first participant, standing in for the
//     externally agreed value)
//   - deploy_safe, tx_hash and finalization close on the designated
//     sender's payload
//   - collect_observation and collect_signature close when every
//     participant contributed
//   - estimate_consensus closes when ceil(2N/3) identical estimates arrived
type Substrate struct {
	mu       sync.Mutex
	expected int
	round    int // index into rounds
	received map[period.Phase]map[common.Address]period.Payload
	builder  *period.Builder
	log      *logrus.Entry
}

// NewSubstrate builds a substrate expecting the given number of agents to
// register.
func NewSubstrate(expectedAgents int, log *logrus.Logger) *Substrate {
	return &Substrate{
		expected: expectedAgents,
		received: make(map[period.Phase]map[common.Address]period.Payload),
		builder:  period.NewBuilder(),
		log:      log.WithField("component", "substrate"),
	}
}

// SubmitPayload implements Client. Delivery is synchronous, so the stop
// condition is never consulted: a payload is either admitted, deduplicated,
// or ignored because its round already closed.
func (s *Substrate) SubmitPayload(ctx context.Context, p period.Payload, stop StopCondition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := roundIndex(p.Phase())
	switch {
	case idx < 0:
		return fmt.Errorf("substrate: phase %q has no round", p.Phase())
	case idx < s.round:
		// Round already closed; a late resubmission is acknowledged and
		// dropped, never merged.
		return nil
	case idx > s.round:
		return fmt.Errorf("substrate: round %s not open (current %s)", p.Phase(), rounds[s.round])
	}

	if s.round > 0 && !s.isParticipant(p.Sender()) {
		return fmt.Errorf("substrate: %s is not a registered participant", p.Sender().Hex())
	}

	phase := p.Phase()
	if s.received[phase] == nil {
		s.received[phase] = make(map[common.Address]period.Payload)
	}
	if _, dup := s.received[phase][p.Sender()]; dup {
		// Dedupe by (phase, sender): the first payload wins.
		return nil
	}
	s.received[phase][p.Sender()] = p

	if s.quorumReached(phase) {
		s.closeRound(phase)
	}
	return nil
}

// CurrentRound implements Client.
func (s *Substrate) CurrentRound(ctx context.Context) (period.Phase, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return rounds[s.round], nil
}

// State implements Client.
func (s *Substrate) State(ctx context.Context) (*period.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.Snapshot(), nil
}

func roundIndex(p period.Phase) int {
	for i, r := range rounds {
		if r == p {
			return i
		}
	}
	return -1
}

func (s *Substrate) isParticipant(addr common.Address) bool {
	for _, a := range s.builder.Snapshot().Participants() {
		if a == addr {
			return true
		}
	}
	return false
}

func (s *Substrate) designated() (common.Address, bool) {
	return s.builder.Snapshot().DesignatedSender()
}

// quorumReached applies the per-round closure rule to the payloads received
// so far. Caller holds the lock.
func (s *Substrate) quorumReached(phase period.Phase) bool {
	got := s.received[phase]
	n := len(s.builder.Snapshot().Participants())
	switch phase {
	case period.PhaseRegistration:
		return len(got) >= s.expected
	case period.PhaseDeploySafe, period.PhaseTxHash, period.PhaseFinalization:
		d, ok := s.designated()
		if !ok {
			return false
		}
		_, present := got[d]
		return present
	case period.PhaseCollectObservation, period.PhaseCollectSignature:
		return len(got) >= n
	case period.PhaseEstimateConsensus:
		votes := make(map[float64]int)
		for _, p := range got {
			votes[p.(period.Estimate).Value()]++
		}
		threshold := period.Threshold(n)
		for _, count := range votes {
			if count >= threshold {
				return true
			}
		}
		return false
	}
	return false
}

// closeRound performs the authoritative merge of the closed round's payloads
// into the period state and opens the next round. Caller holds the lock.
func (s *Substrate) closeRound(phase period.Phase) {
	got := s.received[phase]
	switch phase {
	case period.PhaseRegistration:
		participants := make([]common.Address, 0, len(got))
		for addr := range got {
			participants = append(participants, addr)
		}
		participants = period.SortAddresses(participants)
		s.builder.SetParticipants(participants)
		s.builder.SetDesignatedSender(participants[0])
	case period.PhaseDeploySafe:
		d, _ := s.designated()
		s.builder.SetSafeAddress(got[d].(period.DeploySafe).SafeAddress())
	case period.PhaseCollectObservation:
		obs := make(map[common.Address]float64, len(got))
		for addr, p := range got {
			obs[addr] = p.(period.Observation).Value()
		}
		s.builder.SetObservations(obs)
	case period.PhaseEstimateConsensus:
		votes := make(map[float64]int)
		for _, p := range got {
			votes[p.(period.Estimate).Value()]++
		}
		threshold := period.Threshold(len(s.builder.Snapshot().Participants()))
		for value, count := range votes {
			if count >= threshold {
				s.builder.SetEstimate(value)
				break
			}
		}
	case period.PhaseTxHash:
		d, _ := s.designated()
		s.builder.SetSafeTxHash(got[d].(period.TxHash).HashHex())
	case period.PhaseCollectSignature:
		sigs := make(map[common.Address]string, len(got))
		for addr, p := range got {
			sigs[addr] = p.(period.Signature).SignatureHex()
		}
		s.builder.SetSignatures(sigs)
	case period.PhaseFinalization:
		d, _ := s.designated()
		s.builder.SetFinalTxHash(got[d].(period.FinalizationTx).TxHash())
	}

	s.round++
	s.log.WithFields(logrus.Fields{
		"closed": phase,
		"next":   rounds[s.round],
	}).Info("round closed")
}
