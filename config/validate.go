package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for structural errors before the daemon
// commits to it. Amount and window semantics are validated by the conversion
// helpers; this catches everything that would otherwise fail at first use.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.VaultAddress) == "" {
		return fmt.Errorf("VaultAddress must be set")
	}
	if _, err := cfg.Vault(); err != nil {
		return err
	}
	if _, err := cfg.PoolParams(); err != nil {
		return err
	}
	if _, err := cfg.TimePolicy(); err != nil {
		return err
	}
	if _, err := cfg.RoleGrants(); err != nil {
		return err
	}
	if _, err := cfg.SeedBalances(); err != nil {
		return err
	}
	if cfg.RPC.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RPC.RateLimitPerMinute must be positive")
	}
	if cfg.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("RPC.RateLimitBurst must be positive")
	}
	return nil
}
