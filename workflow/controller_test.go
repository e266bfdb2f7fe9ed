package workflow

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oraclemesh/go-oraclemesh/period"
)

type recordingHandler struct {
	phaseBase
	trace *[]period.Phase
}

func (h *recordingHandler) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	*h.trace = append(*h.trace, h.phase)
	h.setState(StateDone)
	return nil
}

func silentEntry() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestControllerRejectsEmptyChain(t *testing.T) {
	require := require.New(t)

	c := NewController()
	require.ErrorIs(c.RegisterPhases(), ErrNoPhases)
	require.ErrorIs(c.Run(context.Background(), &Env{Log: silentEntry()}), ErrNoPhases)
}

func TestControllerRejectsDuplicatePhase(t *testing.T) {
	require := require.New(t)

	c := NewController()
	err := c.RegisterPhases(NewRegistration(), NewRegistration())
	require.ErrorIs(err, ErrDuplicatePhase)
	require.Contains(err.Error(), string(period.PhaseRegistration))
}

func TestControllerSuccessorChain(t *testing.T) {
	require := require.New(t)

	c := NewController()
	require.NoError(c.RegisterPhases(DefaultPhases()...))

	first, ok := c.InitialPhase()
	require.True(ok)
	require.Equal(period.PhaseInitialDelay, first)

	// Walking the successor map must reproduce the canonical phase order
	// and stop at the terminal phase.
	var walked []period.Phase
	for p, ok := first, true; ok; p, ok = c.Successor(p) {
		walked = append(walked, p)
	}
	require.Equal(period.Phases, walked)

	_, ok = c.Successor(period.PhaseConsensusReached)
	require.False(ok)
}

func TestControllerRunsPhasesInOrder(t *testing.T) {
	require := require.New(t)

	var trace []period.Phase
	c := NewController()
	require.NoError(c.RegisterPhases(
		&recordingHandler{phaseBase{phase: period.PhaseRegistration}, &trace},
		&recordingHandler{phaseBase{phase: period.PhaseCollectObservation}, &trace},
		&recordingHandler{phaseBase{phase: period.PhaseConsensusReached}, &trace},
	))
	require.NoError(c.Run(context.Background(), &Env{Log: silentEntry()}))
	require.Equal([]period.Phase{
		period.PhaseRegistration,
		period.PhaseCollectObservation,
		period.PhaseConsensusReached,
	}, trace)
	require.Equal(trace, c.Executed())
}
