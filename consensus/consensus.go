// Package consensus is the workflow's door to the replication substrate.
//
// The substrate itself (quorum counting, leader election, fault tolerance) is
// not implemented here: agents only submit payloads and read back the agreed
// round id and period state. Two implementations of the Client interface are
// provided: RemoteClient speaks to a Tendermint node over RPC, and Substrate
// is a single-process stand-in with the same observable behaviour, used for
// fakenet runs and tests.
package consensus

import (
	"context"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// StopCondition reports whether the round a payload was meant for has already
// closed. Submission loops consult it between retries so an agent stops
// resubmitting a payload that can no longer matter.
type StopCondition func() bool

// Client is the contract between the workflow and the consensus substrate.
// All three calls block; cancellation comes from the context.
type Client interface {
	// SubmitPayload proposes a payload for its phase's round, retrying
	// until the substrate acknowledges it or stop reports the round
	// closed. A payload the substrate has already seen for the same
	// (phase, sender) pair is acknowledged and ignored.
	SubmitPayload(ctx context.Context, p period.Payload, stop StopCondition) error

	// CurrentRound returns the phase id of the round currently open.
	CurrentRound(ctx context.Context) (period.Phase, error)

	// State returns a snapshot of the agreed period state.
	State(ctx context.Context) (*period.State, error)
}
