package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// ErrNoPhases is returned when RegisterPhases is called with an empty chain.
var ErrNoPhases = errors.New("empty phase chain")

// ErrDuplicatePhase is returned when the same phase appears twice in the
// chain handed to RegisterPhases.
var ErrDuplicatePhase = errors.New("duplicate phase")

// Controller owns the phase chain: an ordered list of handlers where the
// completion of one phase is the only event that activates the next. It is
// pure wiring; all domain logic lives in the handlers.
type Controller struct {
	handlers  []Handler
	successor map[period.Phase]period.Phase
	executed  []period.Phase
}

// NewController returns an empty controller.
func NewController() *Controller {
	return &Controller{successor: make(map[period.Phase]period.Phase)}
}

// RegisterPhases installs the ordered phase chain. The first handler is the
// initial phase; every consecutive pair gets exactly one transition, fired by
// the predecessor completing. No other transition exists: the chain is a
// straight line, not a graph.
func (c *Controller) RegisterPhases(handlers ...Handler) error {
	if len(handlers) == 0 {
		return ErrNoPhases
	}
	seen := make(map[period.Phase]bool, len(handlers))
	for _, h := range handlers {
		if seen[h.Phase()] {
			return fmt.Errorf("%w: %s", ErrDuplicatePhase, h.Phase())
		}
		seen[h.Phase()] = true
	}
	c.handlers = append([]Handler(nil), handlers...)
	c.successor = make(map[period.Phase]period.Phase, len(handlers)-1)
	for i := 0; i+1 < len(handlers); i++ {
		c.successor[handlers[i].Phase()] = handlers[i+1].Phase()
	}
	return nil
}

// InitialPhase returns the first registered phase.
func (c *Controller) InitialPhase() (period.Phase, bool) {
	if len(c.handlers) == 0 {
		return "", false
	}
	return c.handlers[0].Phase(), true
}

// Successor returns the phase activated when p completes. The terminal phase
// has none.
func (c *Controller) Successor(p period.Phase) (period.Phase, bool) {
	next, ok := c.successor[p]
	return next, ok
}

// Executed returns the phases completed so far, in activation order.
func (c *Controller) Executed() []period.Phase {
	return append([]period.Phase(nil), c.executed...)
}

// Run drives the chain from the initial phase to the terminal one. A handler
// error halts the attempt immediately; nothing after the failed phase runs.
func (c *Controller) Run(ctx context.Context, env *Env) error {
	if len(c.handlers) == 0 {
		return ErrNoPhases
	}
	for _, h := range c.handlers {
		log := env.Log.WithField("phase", h.Phase())
		log.Info("entered phase")
		if err := h.Execute(ctx, env); err != nil {
			return fmt.Errorf("phase %s: %w", h.Phase(), err)
		}
		c.executed = append(c.executed, h.Phase())
		c.record(env, h.Phase())
		log.Info("phase done")
	}
	return nil
}

func (c *Controller) record(env *Env, phase period.Phase) {
	if env.Journal == nil {
		return
	}
	if err := env.Journal.Append(phase, "phase complete"); err != nil {
		// The journal is diagnostics, not state; losing an entry must not
		// halt the workflow.
		env.Log.WithError(err).WithField("phase", phase).Warn("journal append failed")
	}
}

// DefaultPhases returns the nine handlers of the price-oracle period in
// their canonical order.
func DefaultPhases() []Handler {
	return []Handler{
		NewInitialDelay(),
		NewRegistration(),
		NewDeploySafe(),
		NewObserve(),
		NewEstimate(),
		NewTxHash(),
		NewSignature(),
		NewFinalize(),
		NewEnd(),
	}
}
