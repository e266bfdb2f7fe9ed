package launcher

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/oraclemesh/go-oraclemesh/chain"
	"github.com/oraclemesh/go-oraclemesh/consensus"
	"github.com/oraclemesh/go-oraclemesh/flags"
	"github.com/oraclemesh/go-oraclemesh/journal"
	"github.com/oraclemesh/go-oraclemesh/price"
	"github.com/oraclemesh/go-oraclemesh/signer"
	"github.com/oraclemesh/go-oraclemesh/workflow"
)

var app = flags.NewApp()

func init() {
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.AgentFlags()...)
	app.Flags = append(app.Flags, flags.ConsensusFlags()...)
	app.Flags = append(app.Flags, flags.ChainFlags()...)
	app.Flags = append(app.Flags, flags.PriceFlags()...)
	app.Flags = append(app.Flags, flags.FakenetFlags()...)
	app.Action = run
}

// Launch parses the command line and runs one oracle period to completion.
func Launch(args []string) error {
	return app.Run(args)
}

func run(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := makeLogger(cfg.Node)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Fakenet.Size > 0 {
		return runFakenet(runCtx, cfg, log)
	}
	return runAgent(runCtx, cfg, log)
}

// runAgent wires one real agent: remote substrate, real chain RPC, real
// price API, and runs the full phase chain once.
func runAgent(ctx context.Context, cfg Config, log *logrus.Logger) error {
	key, err := loadAgentKey(cfg.Agent)
	if err != nil {
		return err
	}
	agent := crypto.PubkeyToAddress(key.PublicKey)
	log.WithField("agent", agent.Hex()).Info("starting oracle agent")

	substrate, err := consensus.NewRemoteClient(cfg.Consensus.Addr, log)
	if err != nil {
		return err
	}
	substrate.SetRetryInterval(cfg.Consensus.RetryInterval)

	chainID := new(big.Int).SetUint64(cfg.Chain.ID)
	chainClient, err := chain.NewRPCClient(cfg.Chain.RPC, key, chainID, log)
	if err != nil {
		return err
	}
	chainClient.SetReceiptInterval(cfg.Chain.ReceiptInterval)

	var agentSigner signer.Signer
	if cfg.Agent.SignerURL != "" {
		agentSigner = signer.NewRemote(cfg.Agent.SignerURL)
	} else {
		agentSigner = signer.NewLocal(key)
	}

	if cfg.Price.Endpoint == "" {
		return fmt.Errorf("price endpoint is required (--price.endpoint)")
	}
	source := price.NewHTTPSource(cfg.Price.API, cfg.Price.Endpoint, cfg.Price.Timeout)

	aggregator, err := makeAggregator(cfg.Price.Aggregator)
	if err != nil {
		return err
	}

	env := &workflow.Env{
		Agent:      agent,
		Consensus:  substrate,
		Chain:      chainClient,
		Signer:     agentSigner,
		Price:      source,
		Aggregator: aggregator,
		Params:     makeParams(cfg, chainID),
		Log:        log.WithField("agent", agent.Hex()),
	}
	if cfg.Node.Journal {
		jr, err := journal.Open(cfg.Node.JournalDir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jr.Close()
		env.Journal = jr

		// Surface where the previous attempt stopped; restart is the only
		// recovery mechanism, so this is the operator's breadcrumb.
		if entries, err := jr.Entries(); err == nil && len(entries) > 0 {
			last := entries[len(entries)-1]
			log.WithFields(logrus.Fields{
				"phase": last.Phase,
				"at":    last.At,
			}).Info("journal: last completed phase of the previous attempt")
		}
	}

	ctrl := workflow.NewController()
	if err := ctrl.RegisterPhases(workflow.DefaultPhases()...); err != nil {
		return err
	}
	return ctrl.Run(ctx, env)
}

// runFakenet runs cfg.Fakenet.Size agents in-process against a shared
// in-memory substrate and a deterministic fake chain. No network, no keys on
// disk; starting quotes are spread around a base price so the aggregation is
// visible in the logs.
func runFakenet(ctx context.Context, cfg Config, log *logrus.Logger) error {
	n := cfg.Fakenet.Size
	log.WithField("agents", n).Info("starting fakenet")

	aggregator, err := makeAggregator(cfg.Price.Aggregator)
	if err != nil {
		return err
	}

	substrate := consensus.NewSubstrate(n, log)
	fakeChain := chain.NewFakeClient(big.NewInt(1_000_000_000), 100_000)
	pair := cfg.Price.Currency + "/" + cfg.Price.Convert

	envs := make([]*workflow.Env, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		local := signer.NewLocal(key)
		envs[i] = &workflow.Env{
			Agent:      local.Address(),
			Consensus:  substrate,
			Chain:      fakeChain,
			Signer:     local,
			Price:      price.NewStatic(map[string]float64{pair: 100 + float64(i)}),
			Aggregator: aggregator,
			Params:     makeParams(cfg, big.NewInt(int64(cfg.Chain.ID))),
			Log:        log.WithField("agent", local.Address().Hex()),
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, env := range envs {
		wg.Add(1)
		go func(i int, env *workflow.Env) {
			defer wg.Done()
			ctrl := workflow.NewController()
			if err := ctrl.RegisterPhases(workflow.DefaultPhases()...); err != nil {
				errs[i] = err
				return
			}
			errs[i] = ctrl.Run(ctx, env)
		}(i, env)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("fakenet agent %d: %w", i, err)
		}
	}
	log.Info("fakenet period complete")
	return nil
}

func makeParams(cfg Config, chainID *big.Int) workflow.Params {
	return workflow.Params{
		InitialDelay: cfg.Consensus.InitialDelay,
		PollInterval: cfg.Consensus.PollInterval,
		CurrencyID:   cfg.Price.Currency,
		ConvertID:    cfg.Price.Convert,
		ChainID:      chainID,
	}
}

func makeAggregator(name string) (price.Aggregator, error) {
	switch name {
	case "mean":
		return price.Mean(), nil
	case "median":
		return price.Median(), nil
	}
	return nil, fmt.Errorf("unknown aggregator %q", name)
}

// makeLogger builds the process logger: format and verbosity from config,
// plus a Sentry hook when a DSN is configured.
func makeLogger(cfg NodeConfig) (*logrus.Logger, error) {
	log := logrus.New()
	switch cfg.Logging.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:   cfg.Logging.Color,
			FullTimestamp: true,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Logging.Format)
	}
	log.SetLevel(verbosityToLevel(cfg.Logging.Verbosity))

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		log.AddHook(hook)
	}
	return log, nil
}

func verbosityToLevel(v int) logrus.Level {
	if v < int(logrus.PanicLevel) {
		return logrus.PanicLevel
	}
	if v > int(logrus.TraceLevel) {
		return logrus.TraceLevel
	}
	return logrus.Level(v)
}

// loadAgentKey reads the agent's private key from the inline hex or the key
// file; the inline value wins when both are set.
func loadAgentKey(cfg AgentConfig) (*ecdsa.PrivateKey, error) {
	raw := cfg.KeyHex
	if raw == "" && cfg.KeyFile != "" {
		data, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil, fmt.Errorf("agent key is required (--agent.key or --agent.keyfile)")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse agent key: %w", err)
	}
	return key, nil
}
