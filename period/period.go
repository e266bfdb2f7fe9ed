// Package period defines the replicated data model of one oracle period:
// the ordered set of workflow phases, the payload types one agent contributes
// per phase, and the agreed period state that the consensus substrate grows
// as rounds close.
//
// Key concepts:
//   - Phase: one step of the workflow; the substrate runs one round per phase
//   - Payload: a typed, immutable message keyed by (phase, sender)
//   - State: a read-only snapshot of everything agreed so far
//
// Nothing in this package talks to the network. The substrate (package
// consensus) is the only writer of period state; every other package only
// reads snapshots and proposes payloads.
package period

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Phase identifies one workflow step and the substrate round that agrees on
// its output. The set is closed: a phase outside this list is invalid and the
// chain of phases is strictly linear (see package workflow).
type Phase string

const (
	// PhaseInitialDelay is the local warm-up gate before any payload is
	// submitted. It has no substrate round.
	PhaseInitialDelay Phase = "initial_delay"

	// PhaseRegistration collects one Registration payload per agent and
	// fixes the participant set for the rest of the period.
	PhaseRegistration Phase = "registration"

	// PhaseDeploySafe agrees on the address of the freshly deployed
	// multisig contract.
	PhaseDeploySafe Phase = "deploy_safe"

	// PhaseCollectObservation collects one price observation per agent.
	PhaseCollectObservation Phase = "collect_observation"

	// PhaseEstimateConsensus agrees on the aggregated price estimate.
	PhaseEstimateConsensus Phase = "estimate_consensus"

	// PhaseTxHash agrees on the hash of the Safe transaction every agent
	// must sign.
	PhaseTxHash Phase = "tx_hash"

	// PhaseCollectSignature collects the agents' signatures over the
	// agreed transaction hash.
	PhaseCollectSignature Phase = "collect_signature"

	// PhaseFinalization agrees on the hash of the mined multisig
	// transaction.
	PhaseFinalization Phase = "finalization"

	// PhaseConsensusReached is the terminal phase; the period is complete.
	PhaseConsensusReached Phase = "consensus_reached"
)

// Phases lists every phase in workflow order. The workflow controller
// registers its handlers in exactly this order; the substrate advances its
// round id along the consensus suffix of this list (everything after
// PhaseInitialDelay).
var Phases = []Phase{
	PhaseInitialDelay,
	PhaseRegistration,
	PhaseDeploySafe,
	PhaseCollectObservation,
	PhaseEstimateConsensus,
	PhaseTxHash,
	PhaseCollectSignature,
	PhaseFinalization,
	PhaseConsensusReached,
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Threshold returns the quorum size ceil(2n/3) for n participants. The same
// number governs round closure in the substrate and the signature requirement
// of the deployed multisig contract.
func Threshold(n int) int {
	return (2*n + 2) / 3
}

// SortAddresses returns a copy of addrs in ascending byte order. Signature
// assembly and participant bookkeeping both rely on this ordering, so it
// lives in one place.
func SortAddresses(addrs []common.Address) []common.Address {
	sorted := make([]common.Address, len(addrs))
	copy(sorted, addrs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	return sorted
}
