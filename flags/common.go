package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the base set of CLI flags shared across commands.

func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML/TOML/JSON config file (flags override its values)",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Environment preset to start from (default|devnet|fakenet)",
		},
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the oracle agent",
			Value: "~/.oraclemesh",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=panic,1=fatal,2=error,3=warn,4=info,5=debug,6=trace)",
			Value: 4,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:  "sentry.dsn",
			Usage: "Sentry DSN for error reporting (empty disables the hook)",
		},
		cli.BoolFlag{
			Name:  "journal.disable",
			Usage: "Disable the on-disk phase journal",
		},
		cli.StringFlag{
			Name:  "journal.dir",
			Usage: "Override path to the phase journal DB (defaults to <datadir>/journal)",
		},
	}
}
