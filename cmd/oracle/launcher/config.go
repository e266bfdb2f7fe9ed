package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/urfave/cli.v1"

	"github.com/oraclemesh/go-oraclemesh/integration"
)

// Config aggregates every subsystem's configuration the launcher needs.
// Precedence, lowest first: defaults, config file, CLI flags.
type Config struct {
	Node      NodeConfig
	Agent     AgentConfig
	Consensus ConsensusConfig
	Chain     ChainConfig
	Price     PriceConfig
	Fakenet   FakenetConfig
}

type NodeConfig struct {
	DataDir    string
	JournalDir string
	Journal    bool
	Logging    LoggingConfig
	SentryDSN  string
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
}

type AgentConfig struct {
	// KeyHex / KeyFile are alternative sources of the agent's secp256k1
	// private key; KeyHex wins when both are set.
	KeyHex    string
	KeyFile   string
	SignerURL string
}

type ConsensusConfig struct {
	Addr          string
	RetryInterval time.Duration
	PollInterval  time.Duration
	InitialDelay  time.Duration
}

type ChainConfig struct {
	RPC             string
	ID              uint64
	ReceiptInterval time.Duration
}

type PriceConfig struct {
	API        string
	Endpoint   string
	Currency   string
	Convert    string
	Timeout    time.Duration
	Aggregator string
}

type FakenetConfig struct {
	// Size > 0 runs that many agents in-process against a fake chain.
	Size int
}

func defaultConfig() Config {
	def := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: def.Node.DataDir,
			Journal: def.Node.JournalEnabled,
			Logging: LoggingConfig{
				Verbosity: def.Logging.Verbosity,
				Format:    def.Logging.Format,
				Color:     def.Logging.Color,
			},
		},
		Consensus: ConsensusConfig{
			Addr:          def.Consensus.Addr,
			RetryInterval: def.Consensus.RetryInterval,
			PollInterval:  def.Consensus.PollInterval,
			InitialDelay:  def.Consensus.InitialDelay,
		},
		Chain: ChainConfig{
			RPC:             def.Chain.RPC,
			ID:              def.Chain.ID,
			ReceiptInterval: def.Chain.ReceiptInterval,
		},
		Price: PriceConfig{
			API:        def.Price.API,
			Currency:   def.Price.Currency,
			Convert:    def.Price.Convert,
			Timeout:    def.Price.Timeout,
			Aggregator: def.Price.Aggregator,
		},
	}
}

// MakeAllConfigs merges defaults, the optional config file, then CLI flag
// overrides into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if name := ctx.GlobalString("preset"); name != "" {
		preset, err := integration.GetPresetByName(name)
		if err != nil {
			return Config{}, err
		}
		applyPreset(&cfg, preset)
	}

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", file, err)
		}
	}

	applyCLIOverrides(ctx, &cfg)

	cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)
	if cfg.Node.JournalDir == "" {
		cfg.Node.JournalDir = filepath.Join(cfg.Node.DataDir, "journal")
	}
	if cfg.Fakenet.Size == 0 {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// applyPreset merges an environment preset into the config. Presets sit
// between the baked-in defaults and the config file in precedence.
func applyPreset(cfg *Config, p integration.PresetConfig) {
	cfg.Consensus.Addr = p.ConsensusAddr
	cfg.Consensus.RetryInterval = p.RetryInterval
	cfg.Consensus.PollInterval = p.PollInterval
	cfg.Consensus.InitialDelay = p.InitialDelay
	cfg.Chain.RPC = p.ChainRPC
	cfg.Chain.ID = p.ChainID
	cfg.Chain.ReceiptInterval = p.ReceiptInterval
	cfg.Price.Aggregator = p.Aggregator
	cfg.Fakenet.Size = p.FakenetSize
}

func loadConfigFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = ctx.GlobalString("datadir")
	}
	if ctx.GlobalIsSet("journal.dir") {
		cfg.Node.JournalDir = resolvePath(ctx.GlobalString("journal.dir"))
	}
	if ctx.GlobalBool("journal.disable") {
		cfg.Node.Journal = false
	}
	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Node.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if ctx.GlobalIsSet("agent.key") {
		cfg.Agent.KeyHex = ctx.GlobalString("agent.key")
	}
	if ctx.GlobalIsSet("agent.keyfile") {
		cfg.Agent.KeyFile = resolvePath(ctx.GlobalString("agent.keyfile"))
	}
	if ctx.GlobalIsSet("signer.url") {
		cfg.Agent.SignerURL = ctx.GlobalString("signer.url")
	}

	if ctx.GlobalIsSet("consensus.addr") {
		cfg.Consensus.Addr = ctx.GlobalString("consensus.addr")
	}
	if ctx.GlobalIsSet("consensus.retry") {
		cfg.Consensus.RetryInterval = ctx.GlobalDuration("consensus.retry")
	}
	if ctx.GlobalIsSet("consensus.poll") {
		cfg.Consensus.PollInterval = ctx.GlobalDuration("consensus.poll")
	}
	if ctx.GlobalIsSet("consensus.delay") {
		cfg.Consensus.InitialDelay = ctx.GlobalDuration("consensus.delay")
	}

	if ctx.GlobalIsSet("chain.rpc") {
		cfg.Chain.RPC = ctx.GlobalString("chain.rpc")
	}
	if ctx.GlobalIsSet("chain.id") {
		cfg.Chain.ID = ctx.GlobalUint64("chain.id")
	}
	if ctx.GlobalIsSet("chain.receiptpoll") {
		cfg.Chain.ReceiptInterval = ctx.GlobalDuration("chain.receiptpoll")
	}

	if ctx.GlobalIsSet("price.api") {
		cfg.Price.API = ctx.GlobalString("price.api")
	}
	if ctx.GlobalIsSet("price.endpoint") {
		cfg.Price.Endpoint = ctx.GlobalString("price.endpoint")
	}
	if ctx.GlobalIsSet("price.currency") {
		cfg.Price.Currency = ctx.GlobalString("price.currency")
	}
	if ctx.GlobalIsSet("price.convert") {
		cfg.Price.Convert = ctx.GlobalString("price.convert")
	}
	if ctx.GlobalIsSet("price.timeout") {
		cfg.Price.Timeout = ctx.GlobalDuration("price.timeout")
	}
	if ctx.GlobalIsSet("price.aggregator") {
		cfg.Price.Aggregator = ctx.GlobalString("price.aggregator")
	}

	if ctx.GlobalIsSet("fakenet") {
		cfg.Fakenet.Size = ctx.GlobalInt("fakenet")
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(guessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(guessWorkDir(), p)
}

func guessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func guessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
