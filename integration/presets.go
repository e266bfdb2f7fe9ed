package integration

import (
	"fmt"
	"time"
)

// Package integration provides configuration presets for the oracle agent.
// Presets bundle the settings that vary between deployment environments
// (substrate endpoint, chain id, polling cadence) into named profiles so
// operators can point an agent at a known environment without tweaking a
// dozen flags.
//
// Usage:
//   cfg := integration.DevnetPreset()  // local development stack
//   cfg := integration.FakenetPreset() // fully in-process dry run
//
// Each preset returns a PresetConfig struct the launcher merges into its main
// config before the config file and CLI flags are applied.

// PresetConfig captures the tunable parameters that vary across environments.
// It intentionally excludes per-agent fields (keys, signer URL) so a preset
// never carries anything secret.
type PresetConfig struct {
	Name            string        // human-readable identifier (e.g., "devnet")
	ConsensusAddr   string        // Tendermint RPC endpoint of the substrate node
	ChainRPC        string        // JSON-RPC endpoint of the Ethereum-compatible node
	ChainID         uint64        // EIP-155 chain id of the target chain
	PollInterval    time.Duration // round-barrier polling cadence
	RetryInterval   time.Duration // payload resubmission cadence
	InitialDelay    time.Duration // warm-up gate before the first payload
	ReceiptInterval time.Duration // receipt polling cadence
	Aggregator      string        // observation aggregation rule
	FakenetSize     int           // >0 runs everything in-process with this many agents
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:            "default",
		ConsensusAddr:   "tcp://127.0.0.1:26657",
		ChainRPC:        "http://127.0.0.1:8545",
		ChainID:         1337,
		PollInterval:    time.Second,
		RetryInterval:   time.Second,
		InitialDelay:    5 * time.Second,
		ReceiptInterval: 2 * time.Second,
		Aggregator:      "mean",
	}
}

// DevnetPreset targets a local development stack: short intervals, no warm-up
// worth speaking of, everything on localhost.
func DevnetPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "devnet"
	cfg.PollInterval = 200 * time.Millisecond
	cfg.RetryInterval = 200 * time.Millisecond
	cfg.InitialDelay = time.Second
	cfg.ReceiptInterval = 500 * time.Millisecond
	return cfg
}

// FakenetPreset runs the whole period in-process: four agents, an in-memory
// substrate, and a deterministic fake chain. Nothing leaves the process, so
// it is safe to run anywhere.
func FakenetPreset() PresetConfig {
	cfg := DevnetPreset()
	cfg.Name = "fakenet"
	cfg.FakenetSize = 4
	cfg.InitialDelay = 100 * time.Millisecond
	return cfg
}

// GetPresetByName looks up a preset by its string identifier. This helper
// enables the --preset flag to select environments dynamically.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "default":
		return DefaultPreset(), nil
	case "devnet":
		return DevnetPreset(), nil
	case "fakenet":
		return FakenetPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: default, devnet, fakenet)", name)
	}
}
