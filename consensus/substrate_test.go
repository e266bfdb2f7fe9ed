package consensus

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oraclemesh/go-oraclemesh/period"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func addr(b byte) common.Address {
	var a common.Address
	a[0] = b
	return a
}

// TestSubstrateRegistration verifies that the registration round closes
// exactly when the expected number of agents registered, fixes the sorted
// participant set, and records the designated sender.
func TestSubstrateRegistration(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(3, testLogger())

	round, err := s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseRegistration, round)

	// Register out of address order; the round stays open until the third.
	for _, b := range []byte{0x03, 0x01} {
		require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(b)), nil))
	}
	round, err = s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseRegistration, round)

	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x02)), nil))

	round, err = s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseDeploySafe, round)

	st, err := s.State(ctx)
	require.NoError(err)
	require.Equal([]common.Address{addr(0x01), addr(0x02), addr(0x03)}, st.Participants())

	designated, ok := st.DesignatedSender()
	require.True(ok)
	require.Equal(addr(0x01), designated, "designated sender is the first participant in address order")
}

// TestSubstrateDedupe checks the (phase, sender) dedupe: a resubmitted
// payload is acknowledged without being counted twice.
func TestSubstrateDedupe(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(2, testLogger())

	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x01)), nil))
	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x01)), nil))

	round, err := s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseRegistration, round, "duplicate registration must not close the round")
}

// TestSubstrateDesignatedRounds verifies that the deploy-safe round closes
// only on the designated sender's payload and records the safe address.
func TestSubstrateDesignatedRounds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(2, testLogger())
	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x01)), nil))
	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x02)), nil))

	safe := common.HexToAddress("0x5afe000000000000000000000000000000000001")

	// A payload from the non-designated agent does not close the round.
	require.NoError(s.SubmitPayload(ctx, period.NewDeploySafe(addr(0x02), safe), nil))
	round, err := s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseDeploySafe, round)

	require.NoError(s.SubmitPayload(ctx, period.NewDeploySafe(addr(0x01), safe), nil))
	round, err = s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseCollectObservation, round)

	st, err := s.State(ctx)
	require.NoError(err)
	got, ok := st.SafeAddress()
	require.True(ok)
	require.Equal(safe, got)
}

// TestSubstrateEstimateQuorum verifies the matching-value quorum of the
// estimate round: ceil(2N/3) identical estimates close it.
func TestSubstrateEstimateQuorum(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(3, testLogger())
	for _, b := range []byte{0x01, 0x02, 0x03} {
		require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(b)), nil))
	}
	safe := common.HexToAddress("0x5afe000000000000000000000000000000000001")
	require.NoError(s.SubmitPayload(ctx, period.NewDeploySafe(addr(0x01), safe), nil))
	for _, b := range []byte{0x01, 0x02, 0x03} {
		require.NoError(s.SubmitPayload(ctx, period.NewObservation(addr(b), 100.0), nil))
	}

	// One disagreeing estimate keeps the round open; two matching ones
	// (threshold for N=3) close it on the matching value.
	require.NoError(s.SubmitPayload(ctx, period.NewEstimate(addr(0x01), 99.0), nil))
	require.NoError(s.SubmitPayload(ctx, period.NewEstimate(addr(0x02), 100.0), nil))
	round, err := s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseEstimateConsensus, round)

	require.NoError(s.SubmitPayload(ctx, period.NewEstimate(addr(0x03), 100.0), nil))
	round, err = s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseTxHash, round)

	st, err := s.State(ctx)
	require.NoError(err)
	est, ok := st.Estimate()
	require.True(ok)
	require.Equal(100.0, est)
}

// TestSubstrateLatePayloadIgnored checks that a payload for an already
// closed round is acknowledged and dropped rather than merged.
func TestSubstrateLatePayloadIgnored(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(1, testLogger())
	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x01)), nil))

	// Registration is closed; a late registration is silently accepted.
	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x02)), nil))

	st, err := s.State(ctx)
	require.NoError(err)
	require.Equal([]common.Address{addr(0x01)}, st.Participants())
}

// TestSubstrateRejectsStrangersAndFutureRounds checks the two hard error
// paths: non-participants after registration, and payloads for rounds that
// have not opened yet.
func TestSubstrateRejectsStrangersAndFutureRounds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(1, testLogger())

	// Observation round is not open during registration.
	err := s.SubmitPayload(ctx, period.NewObservation(addr(0x01), 1.0), nil)
	require.Error(err)

	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(addr(0x01)), nil))

	// addr(0x09) never registered.
	safe := common.HexToAddress("0x5afe000000000000000000000000000000000001")
	err = s.SubmitPayload(ctx, period.NewDeploySafe(addr(0x09), safe), nil)
	require.Error(err)
}

// TestSubstrateSignatureCollection drives a full single-agent period up to
// signature collection and checks the recorded signature map.
func TestSubstrateSignatureCollection(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := NewSubstrate(1, testLogger())
	a := addr(0x01)
	safe := common.HexToAddress("0x5afe000000000000000000000000000000000001")

	require.NoError(s.SubmitPayload(ctx, period.NewRegistration(a), nil))
	require.NoError(s.SubmitPayload(ctx, period.NewDeploySafe(a, safe), nil))
	require.NoError(s.SubmitPayload(ctx, period.NewObservation(a, 100.0), nil))
	require.NoError(s.SubmitPayload(ctx, period.NewEstimate(a, 100.0), nil))

	txHash, err := period.NewTxHash(a, strings.Repeat("ab", 32))
	require.NoError(err)
	require.NoError(s.SubmitPayload(ctx, txHash, nil))

	sig, err := period.NewSignature(a, strings.Repeat("cd", 65))
	require.NoError(err)
	require.NoError(s.SubmitPayload(ctx, sig, nil))

	round, err := s.CurrentRound(ctx)
	require.NoError(err)
	require.Equal(period.PhaseFinalization, round)

	st, err := s.State(ctx)
	require.NoError(err)
	require.Equal(strings.Repeat("ab", 32), st.SafeTxHash())
	require.Equal(map[common.Address]string{a: strings.Repeat("cd", 65)}, st.Signatures())
}
