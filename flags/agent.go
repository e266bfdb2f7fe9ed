package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// AgentFlags holds knobs specific to the local agent identity and its
// signing backend.

func AgentFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "agent.key",
			Usage: "Hex-encoded secp256k1 private key of the agent account",
		},
		cli.StringFlag{
			Name:  "agent.keyfile",
			Usage: "File holding the hex-encoded private key (alternative to --agent.key)",
		},
		cli.StringFlag{
			Name:  "signer.url",
			Usage: "Base URL of an external signing oracle (empty signs locally with the agent key)",
		},
	}
}
