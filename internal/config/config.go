// Package config loads the block driver's configuration the way the
// teacher's provers/types.Config does (env var, then flag, first match
// wins) plus a YAML file layer underneath for persisted operator settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the settings the CLI block driver (cmd/blockdriver) needs.
type Config struct {
	StatesDir            string `yaml:"statesDir"`
	ExchangeID           uint32 `yaml:"exchangeID"`
	OperatorAccountID    uint32 `yaml:"operatorAccountID"`
	ProtocolTakerFeeBips uint32 `yaml:"protocolTakerFeeBips"`
	ProtocolMakerFeeBips uint32 `yaml:"protocolMakerFeeBips"`
}

// defaults mirrors the teacher's pattern of a struct literal populated from
// getEnv-with-fallback before any flag overrides are applied.
func defaults() Config {
	return Config{
		StatesDir:            getEnv("STATES_DIR", "./states"),
		ExchangeID:           0,
		OperatorAccountID:    2,
		ProtocolTakerFeeBips: 0,
		ProtocolMakerFeeBips: 0,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load builds a Config from defaults, then an optional YAML file at path
// (skipped if path is empty or the file does not exist), then CLI args,
// in that override order.
func Load(path string, args ...string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := applyArgs(&cfg, args); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyArgs(cfg *Config, args []string) error {
	for i := 0; i < len(args); i++ {
		if len(args) <= i+1 {
			return fmt.Errorf("config: missing value for flag %s", args[i])
		}
		val := args[i+1]
		switch args[i] {
		case "--states-dir":
			cfg.StatesDir = val
		case "--exchange-id":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return fmt.Errorf("config: --exchange-id: %w", err)
			}
			cfg.ExchangeID = uint32(n)
		case "--operator-account-id":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return fmt.Errorf("config: --operator-account-id: %w", err)
			}
			cfg.OperatorAccountID = uint32(n)
		case "--protocol-taker-fee-bips":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return fmt.Errorf("config: --protocol-taker-fee-bips: %w", err)
			}
			cfg.ProtocolTakerFeeBips = uint32(n)
		case "--protocol-maker-fee-bips":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return fmt.Errorf("config: --protocol-maker-fee-bips: %w", err)
			}
			cfg.ProtocolMakerFeeBips = uint32(n)
		default:
			continue
		}
		i++
	}
	return nil
}
