// Package workflow drives one agent through one oracle period: a strictly
// linear chain of phase handlers, each of which performs local work, proposes
// a payload to the consensus substrate, suspends until the substrate closes
// the phase's round, and then reads the updated period state.
//
// Key concepts:
//   - Controller: registers the ordered phase chain and runs it; holds no
//     domain state of its own
//   - Handler: one phase; a small state machine
//     Started -> AwaitingExternalReply -> AwaitingRoundClose -> Done
//   - round barrier: polling the substrate's current round until it moves
//     past the phase that just submitted
//
// Cross-agent coordination lives entirely in the substrate. The workflow
// never counts votes, never elects anyone, and never mutates period state
// directly.
package workflow

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/oraclemesh/go-oraclemesh/chain"
	"github.com/oraclemesh/go-oraclemesh/consensus"
	"github.com/oraclemesh/go-oraclemesh/journal"
	"github.com/oraclemesh/go-oraclemesh/period"
	"github.com/oraclemesh/go-oraclemesh/price"
	"github.com/oraclemesh/go-oraclemesh/signer"
)

// Params are the per-agent workflow knobs.
type Params struct {
	// InitialDelay is how long the initial-delay phase sleeps before the
	// first payload, giving the substrate transport time to come up.
	InitialDelay time.Duration

	// PollInterval is the pause between round-barrier polls.
	PollInterval time.Duration

	// CurrencyID / ConvertID form the observed currency pair.
	CurrencyID string
	ConvertID  string

	// ChainID is the EIP-155 chain id the Safe transaction hash is bound to.
	ChainID *big.Int
}

// Env bundles everything one agent's handlers need: its identity, the four
// external collaborators, and the knobs. Handlers only read it.
type Env struct {
	Agent      common.Address
	Consensus  consensus.Client
	Chain      chain.Client
	Signer     signer.Signer
	Price      price.Source
	Aggregator price.Aggregator
	// Journal is optional; when set, the controller records each completed
	// phase in it.
	Journal *journal.Journal
	Params  Params
	Log     *logrus.Entry
}

// HandlerState is the observable progress of one phase handler.
type HandlerState int32

const (
	// StateStarted means the handler's local computation is running.
	StateStarted HandlerState = iota
	// StateAwaitingExternalReply means the handler blocks on a single
	// external call (chain RPC, signing oracle, price source).
	StateAwaitingExternalReply
	// StateAwaitingRoundClose means the handler submitted its payload and
	// waits at the round barrier.
	StateAwaitingRoundClose
	// StateDone means the phase completed and the controller may activate
	// the successor.
	StateDone
)

// String implements fmt.Stringer.
func (s HandlerState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateAwaitingExternalReply:
		return "awaiting_external_reply"
	case StateAwaitingRoundClose:
		return "awaiting_round_close"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Handler is one phase of the workflow.
type Handler interface {
	// Phase names the phase the handler drives.
	Phase() period.Phase

	// Execute runs the phase to completion. It returns only after the
	// phase's round closed (for phases that have one), or with the error
	// that halted the attempt.
	Execute(ctx context.Context, env *Env) error

	// State reports the handler's current suspension point.
	State() HandlerState
}

// phaseBase carries the phase id and the observable state shared by every
// handler implementation.
type phaseBase struct {
	phase period.Phase
	state int32
}

func (b *phaseBase) Phase() period.Phase { return b.phase }

func (b *phaseBase) State() HandlerState {
	return HandlerState(atomic.LoadInt32(&b.state))
}

func (b *phaseBase) setState(s HandlerState) {
	atomic.StoreInt32(&b.state, int32(s))
}

// IsDesignatedSender is the single predicate deciding whether this agent
// performs the chain-writing branch of a phase. Every designated-sender
// check in the workflow goes through here, so the rule cannot drift between
// phases.
func IsDesignatedSender(st *period.State, self common.Address) bool {
	designated, ok := st.DesignatedSender()
	return ok && designated == self
}

// waitUntilRoundEnd blocks at the round barrier: it polls the substrate
// until the current round id has moved past the given phase, then returns a
// fresh period-state snapshot. Wall clocks never enter the decision; only the
// substrate's agreed round state does.
func waitUntilRoundEnd(ctx context.Context, env *Env, phase period.Phase) (*period.State, error) {
	for {
		current, err := env.Consensus.CurrentRound(ctx)
		if err != nil {
			return nil, err
		}
		if current != phase {
			return env.Consensus.State(ctx)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(env.Params.PollInterval):
		}
	}
}

// roundEnded builds the stop condition handed to the submission loop: once
// the round has closed, resubmitting the payload is pointless and the loop
// gives up.
func roundEnded(ctx context.Context, env *Env, phase period.Phase) consensus.StopCondition {
	return func() bool {
		current, err := env.Consensus.CurrentRound(ctx)
		return err == nil && current != phase
	}
}

// submitAndAwait proposes a payload for its phase's round and suspends at
// the round barrier, returning the post-round period state.
func submitAndAwait(ctx context.Context, env *Env, b *phaseBase, p period.Payload) (*period.State, error) {
	b.setState(StateAwaitingRoundClose)
	if err := env.Consensus.SubmitPayload(ctx, p, roundEnded(ctx, env, p.Phase())); err != nil {
		return nil, err
	}
	return waitUntilRoundEnd(ctx, env, p.Phase())
}
