package launcher

import "time"

// Defaults bundles the baseline configuration values the launcher uses
// before the config file and CLI flags override them.

type Defaults struct {
	Node      NodeDefaults
	Consensus ConsensusDefaults
	Chain     ChainDefaults
	Price     PriceDefaults
	Logging   LoggingDefaults
}

// NodeDefaults captures top-level agent settings (datadir, journal, etc).
type NodeDefaults struct {
	DataDir        string // Filesystem root where the agent keeps its phase journal and anything else it persists.
	JournalEnabled bool   // Whether completed phases are recorded in the on-disk journal.
}

// ConsensusDefaults holds the substrate connection baseline.
type ConsensusDefaults struct {
	Addr          string        // Tendermint RPC endpoint of the consensus substrate node.
	RetryInterval time.Duration // Pause between payload resubmission attempts.
	PollInterval  time.Duration // Pause between round-barrier polls.
	InitialDelay  time.Duration // Warm-up gate before the first payload, giving the substrate time to come up.
}

// ChainDefaults holds the Ethereum-side baseline.
type ChainDefaults struct {
	RPC             string        // JSON-RPC endpoint of the Ethereum-compatible node.
	ID              uint64        // EIP-155 chain id transactions and the Safe hash are bound to.
	ReceiptInterval time.Duration // Pause between receipt polls while waiting for a transaction to be mined.
}

// PriceDefaults holds the observation source baseline.
type PriceDefaults struct {
	API        string        // Identifier of the price API backend, carried into logs and diagnostics.
	Currency   string        // Observed currency identifier.
	Convert    string        // Conversion currency identifier.
	Timeout    time.Duration // Request timeout for the price API.
	Aggregator string        // Observation aggregation rule (mean or median).
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    // Log level numeric (0=panic .. 6=trace), mapped onto logrus levels.
	Format    string // Log output format (text vs json).
	Color     bool   // Whether to use ANSI color codes in logs.
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir:        "~/.oraclemesh",
			JournalEnabled: true,
		},
		Consensus: ConsensusDefaults{
			Addr:          "tcp://127.0.0.1:26657",
			RetryInterval: time.Second,
			PollInterval:  time.Second,
			InitialDelay:  5 * time.Second,
		},
		Chain: ChainDefaults{
			RPC:             "http://127.0.0.1:8545",
			ID:              1337,
			ReceiptInterval: 2 * time.Second,
		},
		Price: PriceDefaults{
			API:        "coingecko",
			Currency:   "BTC",
			Convert:    "USD",
			Timeout:    10 * time.Second,
			Aggregator: "mean",
		},
		Logging: LoggingDefaults{
			Verbosity: 4,
			Format:    "text",
			Color:     true,
		},
	}
}
