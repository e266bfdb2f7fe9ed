package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// ConsensusFlags covers the connection to the consensus substrate.

func ConsensusFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "consensus.addr",
			Usage: "Address of the consensus substrate node (Tendermint RPC)",
			Value: "tcp://127.0.0.1:26657",
		},
		cli.DurationFlag{
			Name:  "consensus.retry",
			Usage: "Pause between payload submission retries",
			Value: time.Second,
		},
		cli.DurationFlag{
			Name:  "consensus.poll",
			Usage: "Pause between round-barrier polls",
			Value: time.Second,
		},
		cli.DurationFlag{
			Name:  "consensus.delay",
			Usage: "Warm-up delay before the first payload is submitted",
			Value: 5 * time.Second,
		},
	}
}

// ChainFlags covers the Ethereum-compatible chain connection.
func ChainFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "chain.rpc",
			Usage: "HTTP(S) endpoint of the Ethereum-compatible JSON-RPC node",
			Value: "http://127.0.0.1:8545",
		},
		cli.Uint64Flag{
			Name:  "chain.id",
			Usage: "EIP-155 chain id the transactions are bound to",
			Value: 1337,
		},
		cli.DurationFlag{
			Name:  "chain.receiptpoll",
			Usage: "Pause between transaction receipt polls",
			Value: 2 * time.Second,
		},
	}
}

// PriceFlags covers the external price source and the aggregation rule.
func PriceFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "price.api",
			Usage: "Identifier of the price API backend",
			Value: "coingecko",
		},
		cli.StringFlag{
			Name:  "price.endpoint",
			Usage: "HTTP endpoint of the price API",
		},
		cli.StringFlag{
			Name:  "price.currency",
			Usage: "Observed currency identifier",
			Value: "BTC",
		},
		cli.StringFlag{
			Name:  "price.convert",
			Usage: "Conversion currency identifier",
			Value: "USD",
		},
		cli.DurationFlag{
			Name:  "price.timeout",
			Usage: "Request timeout for the price API",
			Value: 10 * time.Second,
		},
		cli.StringFlag{
			Name:  "price.aggregator",
			Usage: "Observation aggregation rule (mean|median)",
			Value: "mean",
		},
	}
}

// FakenetFlags isolates the deterministic in-process test network.
func FakenetFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "fakenet",
			Usage: "Run N agents in-process against a fake chain instead of connecting anywhere",
		},
	}
}
