package workflow

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oraclemesh/go-oraclemesh/chain"
	"github.com/oraclemesh/go-oraclemesh/consensus"
	"github.com/oraclemesh/go-oraclemesh/period"
	"github.com/oraclemesh/go-oraclemesh/price"
	"github.com/oraclemesh/go-oraclemesh/safetx"
	"github.com/oraclemesh/go-oraclemesh/signer"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestIsDesignatedSender(t *testing.T) {
	require := require.New(t)

	b := period.NewBuilder()
	b.SetParticipants([]common.Address{addr(2), addr(5)})
	require.False(IsDesignatedSender(b.Snapshot(), addr(2)))

	b.SetDesignatedSender(addr(2))
	st := b.Snapshot()
	require.True(IsDesignatedSender(st, addr(2)))
	require.False(IsDesignatedSender(st, addr(5)))
}

func TestHandlerStateString(t *testing.T) {
	require := require.New(t)

	require.Equal("started", StateStarted.String())
	require.Equal("awaiting_external_reply", StateAwaitingExternalReply.String())
	require.Equal("awaiting_round_close", StateAwaitingRoundClose.String())
	require.Equal("done", StateDone.String())
}

// stubClient serves a scripted round sequence; State returns a fixed
// snapshot.
type stubClient struct {
	mu     sync.Mutex
	rounds []period.Phase
	calls  int
	state  *period.State
}

func (c *stubClient) SubmitPayload(ctx context.Context, p period.Payload, stop consensus.StopCondition) error {
	return nil
}

func (c *stubClient) CurrentRound(ctx context.Context) (period.Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.rounds) {
		i = len(c.rounds) - 1
	}
	c.calls++
	return c.rounds[i], nil
}

func (c *stubClient) State(ctx context.Context) (*period.State, error) {
	return c.state, nil
}

func TestWaitUntilRoundEnd(t *testing.T) {
	require := require.New(t)

	b := period.NewBuilder()
	b.SetEstimate(42.5)
	client := &stubClient{
		// Two polls land in the awaited round before it closes.
		rounds: []period.Phase{
			period.PhaseCollectObservation,
			period.PhaseCollectObservation,
			period.PhaseEstimateConsensus,
		},
		state: b.Snapshot(),
	}
	env := &Env{
		Consensus: client,
		Params:    Params{PollInterval: time.Millisecond},
	}

	st, err := waitUntilRoundEnd(context.Background(), env, period.PhaseCollectObservation)
	require.NoError(err)
	v, ok := st.Estimate()
	require.True(ok)
	require.Equal(42.5, v)
	require.Equal(3, client.calls)
}

func TestRoundEndedStopCondition(t *testing.T) {
	require := require.New(t)

	client := &stubClient{
		rounds: []period.Phase{
			period.PhaseTxHash,
			period.PhaseCollectSignature,
		},
	}
	env := &Env{Consensus: client}

	stop := roundEnded(context.Background(), env, period.PhaseTxHash)
	require.False(stop())
	require.True(stop())
}

// TestFullPeriod runs four agents against a shared in-process substrate and
// fake chain, from the initial delay all the way to the finalized multisig
// transaction.
func TestFullPeriod(t *testing.T) {
	require := require.New(t)

	const agents = 4
	quotes := []float64{100.0, 101.0, 99.5, 100.5}
	const wantEstimate = 100.25 // mean of the quotes
	const gasEstimate = 100000

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	substrate := consensus.NewSubstrate(agents, log)
	fakeChain := chain.NewFakeClient(big.NewInt(1_000_000_000), gasEstimate)

	type agentRig struct {
		address common.Address
		env     *Env
		ctrl    *Controller
	}
	rigs := make([]*agentRig, agents)
	for i := range rigs {
		key, err := crypto.GenerateKey()
		require.NoError(err)
		local := signer.NewLocal(key)
		env := &Env{
			Agent:      local.Address(),
			Consensus:  substrate,
			Chain:      fakeChain,
			Signer:     local,
			Price:      price.NewStatic(map[string]float64{"BTC/USD": quotes[i]}),
			Aggregator: price.Mean(),
			Params: Params{
				InitialDelay: time.Millisecond,
				PollInterval: time.Millisecond,
				CurrencyID:   "BTC",
				ConvertID:    "USD",
				ChainID:      big.NewInt(1337),
			},
			Log: logrus.NewEntry(log),
		}
		ctrl := NewController()
		require.NoError(ctrl.RegisterPhases(DefaultPhases()...))
		rigs[i] = &agentRig{address: env.Agent, env: env, ctrl: ctrl}
	}

	// Seed non-zero account nonces so the finalize phase provably reads the
	// sender's transaction count instead of assuming a fresh account.
	const seedNonce = 7
	for _, rig := range rigs {
		fakeChain.SetTransactionCount(rig.address, seedNonce)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, agents)
	for i, rig := range rigs {
		wg.Add(1)
		go func(i int, rig *agentRig) {
			defer wg.Done()
			errs[i] = rig.ctrl.Run(ctx, rig.env)
		}(i, rig)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(err, "agent %d", i)
	}

	// Every agent walked the full phase chain.
	for _, rig := range rigs {
		require.Equal(period.Phases, rig.ctrl.Executed())
	}

	st, err := substrate.State(ctx)
	require.NoError(err)

	require.Equal(wantEstimate, mustEstimate(t, st))
	require.Len(st.Signatures(), agents)

	final, ok := st.FinalTxHash()
	require.True(ok)
	require.NotEqual(common.Hash{}, final)

	// Only the lowest-address participant, the designated sender, ever
	// wrote to the chain: once for the deployment, once for execution.
	// Byte order, not checksummed-hex order; the two diverge on mixed-case
	// nibbles.
	addrs := make([]common.Address, 0, agents)
	for _, rig := range rigs {
		addrs = append(addrs, rig.address)
	}
	designated := period.SortAddresses(addrs)[0]
	designatedFromState, ok := st.DesignatedSender()
	require.True(ok)
	require.Equal(designated, designatedFromState)

	writes := fakeChain.WriteCalls()
	require.Len(writes, 2)
	for _, w := range writes {
		require.Equal("send_raw_transaction", w.Kind)
		require.Equal(designated, w.From)
	}

	mined := fakeChain.MinedTransactions()
	require.Len(mined, 2)

	deployment, execution := mined[0], mined[1]
	require.Nil(deployment.To)
	require.Equal(uint64(seedNonce), deployment.Nonce)

	safe, ok := st.SafeAddress()
	require.True(ok)
	require.NotNil(execution.To)
	require.Equal(safe, *execution.To)
	require.Equal(uint64(seedNonce+1), execution.Nonce)
	require.Equal(uint64(gasEstimate+safetx.ExecPadGas), execution.Gas)

	// The executed call data embeds the signature blob in ascending signer
	// order, as assembled from the agreed state.
	blob, err := safetx.AssembleSignatures(st)
	require.NoError(err)
	require.Len(blob, agents*safetx.SignatureLength)
}

func mustEstimate(t *testing.T, st *period.State) float64 {
	t.Helper()
	v, ok := st.Estimate()
	require.True(t, ok)
	return v
}
