package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"givepool/crypto"
	"givepool/native/pool"

	"github.com/BurntSushi/toml"
)

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "RPCAuthToken" {
			return nil, fmt.Errorf("config file %s uses deprecated RPCAuthToken field; set RPC.AuthTokenEnv and move the secret into the environment", path)
		}
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "givepool-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./givepool-data"
	}
	if strings.TrimSpace(cfg.Server.RPCAddress) == "" {
		cfg.Server.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.Server.MetricsAddress) == "" {
		cfg.Server.MetricsAddress = ":9090"
	}
	if cfg.RPC.RateLimitPerMinute <= 0 {
		cfg.RPC.RateLimitPerMinute = 600
	}
	if cfg.RPC.RateLimitBurst <= 0 {
		cfg.RPC.RateLimitBurst = 20
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 30
	}
	if cfg.Balances == nil {
		cfg.Balances = map[string]string{}
	}
	defaults := defaultPoolSection()
	if cfg.Pool == (PoolSection{}) {
		cfg.Pool = defaults
	}
	if cfg.Window == (WindowSection{}) {
		cfg.Window = defaultWindowSection()
	}
}

func defaultPoolSection() PoolSection {
	p := pool.DefaultParams()
	return PoolSection{
		MinContributionWei:          p.MinContributionWei.String(),
		MaxContributionWei:          p.MaxContributionWei.String(),
		MaxDailyContributionWei:     p.MaxDailyContributionWei.String(),
		MinWithdrawalWei:            p.MinWithdrawalWei.String(),
		MinDistributableWei:         p.MinDistributableWei.String(),
		MaxReceivers:                p.MaxReceivers,
		BatchSize:                   p.BatchSize,
		MaxDailyTransactions:        p.MaxDailyTransactions,
		MaxDailyEntries:             p.MaxDailyEntries,
		MaxDailyExits:               p.MaxDailyExits,
		MaxDailyWithdrawals:         p.MaxDailyWithdrawals,
		ActionCooldownSeconds:       p.ActionCooldownSeconds,
		ReceiverPoolCooldownSeconds: p.ReceiverPoolCooldownSeconds,
		WithdrawalCooldownSeconds:   p.WithdrawalCooldownSeconds,
		RetryCooldownSeconds:        p.RetryCooldownSeconds,
		MaxRetries:                  p.MaxRetries,
		MaxAutoRetriesPerSweep:      p.MaxAutoRetriesPerSweep,
		PayoutBudgetMillis:          uint64(p.PayoutBudget / time.Millisecond),
	}
}

func defaultWindowSection() WindowSection {
	p := pool.DefaultTimePolicy()
	return WindowSection{
		DayLengthSeconds:      p.DayLengthSeconds,
		WindowOffsetSeconds:   p.WindowOffsetSeconds,
		WindowDurationSeconds: p.WindowDurationSeconds,
	}
}

// createDefault writes a fresh configuration file with a generated vault
// address and returns the parsed result.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		VaultAddress: key.PubKey().Address().String(),
		Balances:     map[string]string{},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func parseWei(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: empty amount", field)
	}
	out, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid wei amount %q", field, value)
	}
	return out, nil
}

func decodeAddr(field, value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("%s: %w", field, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// PoolParams converts the pool section into runtime parameters.
func (c *Config) PoolParams() (pool.Params, error) {
	p := pool.Params{
		MaxReceivers:                c.Pool.MaxReceivers,
		BatchSize:                   c.Pool.BatchSize,
		MaxDailyTransactions:        c.Pool.MaxDailyTransactions,
		MaxDailyEntries:             c.Pool.MaxDailyEntries,
		MaxDailyExits:               c.Pool.MaxDailyExits,
		MaxDailyWithdrawals:         c.Pool.MaxDailyWithdrawals,
		ActionCooldownSeconds:       c.Pool.ActionCooldownSeconds,
		ReceiverPoolCooldownSeconds: c.Pool.ReceiverPoolCooldownSeconds,
		WithdrawalCooldownSeconds:   c.Pool.WithdrawalCooldownSeconds,
		RetryCooldownSeconds:        c.Pool.RetryCooldownSeconds,
		MaxRetries:                  c.Pool.MaxRetries,
		MaxAutoRetriesPerSweep:      c.Pool.MaxAutoRetriesPerSweep,
		PayoutBudget:                time.Duration(c.Pool.PayoutBudgetMillis) * time.Millisecond,
	}
	var err error
	if p.MinContributionWei, err = parseWei("Pool.MinContributionWei", c.Pool.MinContributionWei); err != nil {
		return pool.Params{}, err
	}
	if p.MaxContributionWei, err = parseWei("Pool.MaxContributionWei", c.Pool.MaxContributionWei); err != nil {
		return pool.Params{}, err
	}
	if p.MaxDailyContributionWei, err = parseWei("Pool.MaxDailyContributionWei", c.Pool.MaxDailyContributionWei); err != nil {
		return pool.Params{}, err
	}
	if p.MinWithdrawalWei, err = parseWei("Pool.MinWithdrawalWei", c.Pool.MinWithdrawalWei); err != nil {
		return pool.Params{}, err
	}
	if p.MinDistributableWei, err = parseWei("Pool.MinDistributableWei", c.Pool.MinDistributableWei); err != nil {
		return pool.Params{}, err
	}
	if err := p.Validate(); err != nil {
		return pool.Params{}, err
	}
	return p, nil
}

// TimePolicy converts the window section into a runtime policy.
func (c *Config) TimePolicy() (pool.TimePolicy, error) {
	p := pool.TimePolicy{
		DayLengthSeconds:      c.Window.DayLengthSeconds,
		WindowOffsetSeconds:   c.Window.WindowOffsetSeconds,
		WindowDurationSeconds: c.Window.WindowDurationSeconds,
		TestMode:              c.Window.TestMode,
	}
	if err := p.Validate(); err != nil {
		return pool.TimePolicy{}, err
	}
	return p, nil
}

// Vault returns the decoded vault address.
func (c *Config) Vault() ([20]byte, error) {
	return decodeAddr("VaultAddress", c.VaultAddress)
}

// RoleGrants returns the decoded role table, role name to address list.
func (c *Config) RoleGrants() (map[string][][20]byte, error) {
	grants := map[string][][20]byte{}
	for i, raw := range c.Roles.Distributors {
		addr, err := decodeAddr(fmt.Sprintf("Roles.Distributors[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		grants[pool.RoleDistributor] = append(grants[pool.RoleDistributor], addr)
	}
	for i, raw := range c.Roles.Stewards {
		addr, err := decodeAddr(fmt.Sprintf("Roles.Stewards[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		grants[pool.RoleSteward] = append(grants[pool.RoleSteward], addr)
	}
	return grants, nil
}

// SeedBalances returns the decoded genesis balances.
func (c *Config) SeedBalances() (map[[20]byte]*big.Int, error) {
	out := make(map[[20]byte]*big.Int, len(c.Balances))
	for raw, amount := range c.Balances {
		addr, err := decodeAddr("Balances."+raw, raw)
		if err != nil {
			return nil, err
		}
		wei, err := parseWei("Balances."+raw, amount)
		if err != nil {
			return nil, err
		}
		out[addr] = wei
	}
	return out, nil
}

// AuthToken resolves the RPC bearer token from the environment. An empty
// return with a nil error means authentication is disabled.
func (c *Config) AuthToken() (string, error) {
	name := strings.TrimSpace(c.RPC.AuthTokenEnv)
	if name == "" {
		return "", nil
	}
	token := strings.TrimSpace(os.Getenv(name))
	if token == "" {
		return "", fmt.Errorf("RPC.AuthTokenEnv names %s but the variable is empty", name)
	}
	return token, nil
}
