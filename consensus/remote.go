package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	abcitypes "github.com/tendermint/tendermint/abci/types"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/oraclemesh/go-oraclemesh/period"
)

// ABCI query paths the substrate application answers.
const (
	queryRoundPath = "/round"
	queryStatePath = "/state"
)

// DefaultRetryInterval is the pause between payload resubmission attempts
// when the substrate has not acknowledged a payload yet.
const DefaultRetryInterval = time.Second

// RemoteClient talks to the consensus substrate through a Tendermint node's
// RPC endpoint. Payloads ride inside consensus transactions in their
// canonical wire encoding; round id and period state are read back through
// ABCI queries.
type RemoteClient struct {
	rpc           *rpchttp.HTTP
	retryInterval time.Duration
	log           *logrus.Entry
}

// NewRemoteClient dials the Tendermint RPC endpoint (e.g.
// "tcp://127.0.0.1:26657").
func NewRemoteClient(addr string, log *logrus.Logger) (*RemoteClient, error) {
	rpc, err := rpchttp.New(addr, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("dial substrate rpc %s: %w", addr, err)
	}
	return &RemoteClient{
		rpc:           rpc,
		retryInterval: DefaultRetryInterval,
		log:           log.WithField("component", "consensus"),
	}, nil
}

// SetRetryInterval overrides the pause between resubmission attempts.
func (c *RemoteClient) SetRetryInterval(d time.Duration) {
	c.retryInterval = d
}

// SubmitPayload implements Client. It resubmits the payload until the
// substrate checks it into its mempool, or until stop observes that the round
// has closed and the payload is superseded.
func (c *RemoteClient) SubmitPayload(ctx context.Context, p period.Payload, stop StopCondition) error {
	raw, err := period.EncodePayload(p)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Phase(), err)
	}
	for {
		res, err := c.rpc.BroadcastTxSync(ctx, tmtypes.Tx(raw))
		switch {
		case err == nil && res.Code == abcitypes.CodeTypeOK:
			return nil
		case err != nil:
			c.log.WithError(err).WithField("phase", p.Phase()).
				Warn("payload broadcast failed, retrying")
		default:
			c.log.WithFields(logrus.Fields{
				"phase": p.Phase(),
				"code":  res.Code,
				"log":   res.Log,
			}).Warn("payload rejected, retrying")
		}
		if stop != nil && stop() {
			// The round closed without this payload; resubmitting it
			// could only duplicate work.
			c.log.WithField("phase", p.Phase()).Info("round closed, dropping payload")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
}

// CurrentRound implements Client.
func (c *RemoteClient) CurrentRound(ctx context.Context) (period.Phase, error) {
	res, err := c.rpc.ABCIQuery(ctx, queryRoundPath, nil)
	if err != nil {
		return "", fmt.Errorf("query current round: %w", err)
	}
	if res.Response.Code != abcitypes.CodeTypeOK {
		return "", fmt.Errorf("query current round: code %d: %s", res.Response.Code, res.Response.Log)
	}
	phase := period.Phase(res.Response.Value)
	if !phase.Valid() {
		return "", fmt.Errorf("query current round: unknown phase %q", phase)
	}
	return phase, nil
}

// State implements Client.
func (c *RemoteClient) State(ctx context.Context) (*period.State, error) {
	res, err := c.rpc.ABCIQuery(ctx, queryStatePath, nil)
	if err != nil {
		return nil, fmt.Errorf("query period state: %w", err)
	}
	if res.Response.Code != abcitypes.CodeTypeOK {
		return nil, fmt.Errorf("query period state: code %d: %s", res.Response.Code, res.Response.Log)
	}
	var st period.State
	if err := json.Unmarshal(res.Response.Value, &st); err != nil {
		return nil, fmt.Errorf("decode period state: %w", err)
	}
	return &st, nil
}
