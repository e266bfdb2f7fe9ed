package workflow

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/oraclemesh/go-oraclemesh/chain"
	"github.com/oraclemesh/go-oraclemesh/period"
	"github.com/oraclemesh/go-oraclemesh/safetx"
)

// ErrStateIncomplete is returned when a phase needs a value an earlier round
// should have agreed on and the snapshot does not carry it.
var ErrStateIncomplete = errors.New("period state missing an agreed value")

// initialDelay gives the substrate transport time to become reachable before
// any payload is submitted. Pure time gate; no payload, no round.
type initialDelay struct {
	phaseBase
}

// NewInitialDelay builds the initial-delay handler.
func NewInitialDelay() Handler {
	return &initialDelay{phaseBase{phase: period.PhaseInitialDelay}}
}

func (h *initialDelay) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	env.Log.WithField("delay", env.Params.InitialDelay).Info("waiting for substrate transport")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(env.Params.InitialDelay):
	}
	h.setState(StateDone)
	return nil
}

// registration announces the agent's participation and fixes the participant
// set when the round closes.
type registration struct {
	phaseBase
}

// NewRegistration builds the registration handler.
func NewRegistration() Handler {
	return &registration{phaseBase{phase: period.PhaseRegistration}}
}

func (h *registration) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := submitAndAwait(ctx, env, &h.phaseBase, period.NewRegistration(env.Agent))
	if err != nil {
		return err
	}
	env.Log.WithField("participants", len(st.Participants())).Info("registration round closed")
	h.setState(StateDone)
	return nil
}

// deploySafe deploys the multisig contract. Only the designated sender
// writes to the chain; everyone else waits for the agreed address.
type deploySafe struct {
	phaseBase
}

// NewDeploySafe builds the deploy-safe handler.
func NewDeploySafe() Handler {
	return &deploySafe{phaseBase{phase: period.PhaseDeploySafe}}
}

func (h *deploySafe) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := env.Consensus.State(ctx)
	if err != nil {
		return err
	}
	if IsDesignatedSender(st, env.Agent) {
		if err := h.deployerAct(ctx, env, st); err != nil {
			return err
		}
	} else {
		env.Log.Info("not the designated sender, waiting until next round")
	}
	h.setState(StateAwaitingRoundClose)
	st, err = waitUntilRoundEnd(ctx, env, h.phase)
	if err != nil {
		return err
	}
	safe, ok := st.SafeAddress()
	if !ok {
		return fmt.Errorf("%w: safe address", ErrStateIncomplete)
	}
	env.Log.WithField("safe", safe.Hex()).Info("safe contract address agreed")
	h.setState(StateDone)
	return nil
}

func (h *deploySafe) deployerAct(ctx context.Context, env *Env, st *period.State) error {
	env.Log.Info("designated sender, deploying the safe contract")
	participants := st.Participants()
	threshold := period.Threshold(len(participants))

	h.setState(StateAwaitingExternalReply)
	params, contractAddr, err := env.Chain.BuildSafeDeploy(ctx, env.Agent, participants, threshold)
	if err != nil {
		return err
	}
	txHash, err := env.Chain.SendRawTransaction(ctx, params)
	if err != nil {
		return err
	}
	env.Log.WithFields(logrus.Fields{
		"tx":        txHash.Hex(),
		"threshold": threshold,
		"owners":    len(participants),
	}).Info("deployment transaction mined")

	h.setState(StateAwaitingRoundClose)
	payload := period.NewDeploySafe(env.Agent, contractAddr)
	return env.Consensus.SubmitPayload(ctx, payload, roundEnded(ctx, env, h.phase))
}

// observe queries the external price source and contributes the observation.
type observe struct {
	phaseBase
}

// NewObserve builds the observation handler.
func NewObserve() Handler {
	return &observe{phaseBase{phase: period.PhaseCollectObservation}}
}

func (h *observe) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	h.setState(StateAwaitingExternalReply)
	value, err := env.Price.GetPrice(ctx, env.Params.CurrencyID, env.Params.ConvertID)
	if err != nil {
		return err
	}
	env.Log.WithFields(logrus.Fields{
		"currency": env.Params.CurrencyID,
		"convert":  env.Params.ConvertID,
		"api":      env.Price.APIID(),
		"value":    value,
	}).Info("got price observation")

	_, err = submitAndAwait(ctx, env, &h.phaseBase, period.NewObservation(env.Agent, value))
	if err != nil {
		return err
	}
	h.setState(StateDone)
	return nil
}

// estimate folds the agreed observation multiset into one value with the
// configured aggregator. Determinism matters here: the round only closes
// when enough agents submit the identical estimate.
type estimate struct {
	phaseBase
}

// NewEstimate builds the estimate handler.
func NewEstimate() Handler {
	return &estimate{phaseBase{phase: period.PhaseEstimateConsensus}}
}

func (h *estimate) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := env.Consensus.State(ctx)
	if err != nil {
		return err
	}
	observations := st.ObservationValues()
	value, err := env.Aggregator.Aggregate(observations)
	if err != nil {
		return err
	}
	env.Log.WithFields(logrus.Fields{
		"aggregator":   env.Aggregator.Name(),
		"observations": len(observations),
		"estimate":     value,
	}).Info("computed estimate")

	st, err = submitAndAwait(ctx, env, &h.phaseBase, period.NewEstimate(env.Agent, value))
	if err != nil {
		return err
	}
	agreed, ok := st.Estimate()
	if !ok {
		return fmt.Errorf("%w: estimate", ErrStateIncomplete)
	}
	env.Log.WithField("estimate", agreed).Info("estimate agreed")
	h.setState(StateDone)
	return nil
}

// txHash commits the digest of the Safe transaction every agent must sign.
// Designated sender only.
type txHash struct {
	phaseBase
}

// NewTxHash builds the tx-hash handler.
func NewTxHash() Handler {
	return &txHash{phaseBase{phase: period.PhaseTxHash}}
}

func (h *txHash) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := env.Consensus.State(ctx)
	if err != nil {
		return err
	}
	if IsDesignatedSender(st, env.Agent) {
		if err := h.senderAct(ctx, env, st); err != nil {
			return err
		}
	} else {
		env.Log.Info("not the designated sender, waiting until next round")
	}
	h.setState(StateAwaitingRoundClose)
	st, err = waitUntilRoundEnd(ctx, env, h.phase)
	if err != nil {
		return err
	}
	if st.SafeTxHash() == "" {
		return fmt.Errorf("%w: safe tx hash", ErrStateIncomplete)
	}
	h.setState(StateDone)
	return nil
}

func (h *txHash) senderAct(ctx context.Context, env *Env, st *period.State) error {
	env.Log.Info("designated sender, committing the transaction hash")
	tx, safe, err := buildAgreedSafeTx(st)
	if err != nil {
		return err
	}
	digest := tx.Hash(safe, env.Params.ChainID)
	// The payload carries the digest without the chain's 0x prefix.
	payload, err := period.NewTxHash(env.Agent, digest.Hex()[2:])
	if err != nil {
		return err
	}
	env.Log.WithField("safe_tx_hash", payload.HashHex()).Info("hash of the safe transaction")
	h.setState(StateAwaitingRoundClose)
	return env.Consensus.SubmitPayload(ctx, payload, roundEnded(ctx, env, h.phase))
}

// signature asks the signing oracle for a raw-hash signature over the agreed
// digest and contributes it.
type signature struct {
	phaseBase
}

// NewSignature builds the signature handler.
func NewSignature() Handler {
	return &signature{phaseBase{phase: period.PhaseCollectSignature}}
}

func (h *signature) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := env.Consensus.State(ctx)
	if err != nil {
		return err
	}
	hashHex := st.SafeTxHash()
	if hashHex == "" {
		return fmt.Errorf("%w: safe tx hash", ErrStateIncomplete)
	}
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return fmt.Errorf("agreed tx hash: %w", err)
	}

	h.setState(StateAwaitingExternalReply)
	sig, err := env.Signer.SignHash(ctx, digest)
	if err != nil {
		return err
	}
	payload, err := period.NewSignature(env.Agent, hex.EncodeToString(sig))
	if err != nil {
		return err
	}
	env.Log.WithField("signature", payload.SignatureHex()).Debug("signature obtained")

	_, err = submitAndAwait(ctx, env, &h.phaseBase, payload)
	if err != nil {
		return err
	}
	h.setState(StateDone)
	return nil
}

// finalize assembles the ordered signature blob, submits the execution
// transaction, and commits its mined hash. Designated sender only.
type finalize struct {
	phaseBase
}

// NewFinalize builds the finalization handler.
func NewFinalize() Handler {
	return &finalize{phaseBase{phase: period.PhaseFinalization}}
}

func (h *finalize) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := env.Consensus.State(ctx)
	if err != nil {
		return err
	}
	if IsDesignatedSender(st, env.Agent) {
		if err := h.senderAct(ctx, env, st); err != nil {
			return err
		}
	} else {
		env.Log.Info("not the designated sender, waiting until next round")
	}
	h.setState(StateAwaitingRoundClose)
	st, err = waitUntilRoundEnd(ctx, env, h.phase)
	if err != nil {
		return err
	}
	final, ok := st.FinalTxHash()
	if !ok {
		return fmt.Errorf("%w: final tx hash", ErrStateIncomplete)
	}
	env.Log.WithField("tx", final.Hex()).Info("final transaction agreed")
	h.setState(StateDone)
	return nil
}

func (h *finalize) senderAct(ctx context.Context, env *Env, st *period.State) error {
	env.Log.Info("designated sender, sending the safe transaction")
	signatures, err := safetx.AssembleSignatures(st)
	if err != nil {
		return err
	}
	env.Log.WithField("signers", len(safetx.Signers(st))).Info("assembled signatures")

	tx, safe, err := buildAgreedSafeTx(st)
	if err != nil {
		return err
	}
	execData, err := safetx.ExecData(tx, signatures)
	if err != nil {
		return err
	}

	h.setState(StateAwaitingExternalReply)
	gasPrice, err := env.Chain.GasPrice(ctx)
	if err != nil {
		return err
	}
	params := chain.TxParams{
		From:     env.Agent,
		To:       &safe,
		Data:     execData,
		GasPrice: gasPrice,
	}
	estimated, err := env.Chain.EstimateGas(ctx, params)
	if err != nil {
		return err
	}
	params.Gas = safetx.ExecGas(estimated, tx.RecommendedGas())
	params.Nonce, err = env.Chain.TransactionCount(ctx, env.Agent)
	if err != nil {
		return err
	}
	mined, err := env.Chain.SendRawTransaction(ctx, params)
	if err != nil {
		return err
	}
	env.Log.WithField("tx", mined.Hex()).Info("finalization transaction mined")

	h.setState(StateAwaitingRoundClose)
	payload := period.NewFinalizationTx(env.Agent, mined)
	return env.Consensus.SubmitPayload(ctx, payload, roundEnded(ctx, env, h.phase))
}

// end is the terminal phase: log the outcome, signal completion, done.
// It has no successor and no round.
type end struct {
	phaseBase
}

// NewEnd builds the terminal handler.
func NewEnd() Handler {
	return &end{phaseBase{phase: period.PhaseConsensusReached}}
}

func (h *end) Execute(ctx context.Context, env *Env) error {
	h.setState(StateStarted)
	st, err := env.Consensus.State(ctx)
	if err != nil {
		return err
	}
	agreed, _ := st.Estimate()
	final, _ := st.FinalTxHash()
	env.Log.WithFields(logrus.Fields{
		"estimate": agreed,
		"tx":       final.Hex(),
	}).Info("finalized estimate")
	env.Log.Info("period end")
	h.setState(StateDone)
	return nil
}

// buildAgreedSafeTx rebuilds the Safe transaction from agreed state only.
// Every agent that calls it with the same snapshot gets the byte-identical
// transaction, which is what lets the designated sender hash it in one phase
// and execute it in another.
func buildAgreedSafeTx(st *period.State) (safetx.SafeTx, common.Address, error) {
	agreed, ok := st.Estimate()
	if !ok {
		return safetx.SafeTx{}, common.Address{}, fmt.Errorf("%w: estimate", ErrStateIncomplete)
	}
	safe, ok := st.SafeAddress()
	if !ok {
		return safetx.SafeTx{}, common.Address{}, fmt.Errorf("%w: safe address", ErrStateIncomplete)
	}
	data, err := safetx.EncodeEstimate(agreed)
	if err != nil {
		return safetx.SafeTx{}, common.Address{}, err
	}
	return safetx.New(safe, data, 0), safe, nil
}
