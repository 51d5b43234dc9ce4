package config

// Server groups the listen addresses exposed by the daemon.
type Server struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
}

// Logging controls structured log output. When File is set, log lines are
// mirrored to a size-rotated file alongside stdout.
type Logging struct {
	Env        string `toml:"Env"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RPCSettings governs access to the JSON-RPC surface. The bearer token is read
// from the named environment variable so secrets stay out of the config file.
// An empty AuthTokenEnv disables authentication; only test networks should do
// that.
type RPCSettings struct {
	AuthTokenEnv       string `toml:"AuthTokenEnv"`
	RateLimitPerMinute int    `toml:"RateLimitPerMinute"`
	RateLimitBurst     int    `toml:"RateLimitBurst"`
}

// Roles lists the bech32 addresses granted each privileged role.
type Roles struct {
	Distributors []string `toml:"Distributors"`
	Stewards     []string `toml:"Stewards"`
}

// PoolSection carries the pool limits. Wei-denominated amounts are decimal
// strings because TOML integers cannot hold 18-decimal token values.
type PoolSection struct {
	MinContributionWei      string `toml:"MinContributionWei"`
	MaxContributionWei      string `toml:"MaxContributionWei"`
	MaxDailyContributionWei string `toml:"MaxDailyContributionWei"`
	MinWithdrawalWei        string `toml:"MinWithdrawalWei"`
	MinDistributableWei     string `toml:"MinDistributableWei"`

	MaxReceivers uint64 `toml:"MaxReceivers"`
	BatchSize    uint64 `toml:"BatchSize"`

	MaxDailyTransactions uint32 `toml:"MaxDailyTransactions"`
	MaxDailyEntries      uint32 `toml:"MaxDailyEntries"`
	MaxDailyExits        uint32 `toml:"MaxDailyExits"`
	MaxDailyWithdrawals  uint32 `toml:"MaxDailyWithdrawals"`

	ActionCooldownSeconds       uint64 `toml:"ActionCooldownSeconds"`
	ReceiverPoolCooldownSeconds uint64 `toml:"ReceiverPoolCooldownSeconds"`
	WithdrawalCooldownSeconds   uint64 `toml:"WithdrawalCooldownSeconds"`

	RetryCooldownSeconds   uint64 `toml:"RetryCooldownSeconds"`
	MaxRetries             uint32 `toml:"MaxRetries"`
	MaxAutoRetriesPerSweep uint32 `toml:"MaxAutoRetriesPerSweep"`

	PayoutBudgetMillis uint64 `toml:"PayoutBudgetMillis"`
}

// WindowSection places the daily distribution window inside the epoch day.
type WindowSection struct {
	DayLengthSeconds      uint64 `toml:"DayLengthSeconds"`
	WindowOffsetSeconds   uint64 `toml:"WindowOffsetSeconds"`
	WindowDurationSeconds uint64 `toml:"WindowDurationSeconds"`
	TestMode              bool   `toml:"TestMode"`
}

// Config bundles everything the daemon needs to run.
type Config struct {
	DataDir      string `toml:"DataDir"`
	NetworkName  string `toml:"NetworkName"`
	VaultAddress string `toml:"VaultAddress"`

	Server  Server        `toml:"Server"`
	Logging Logging       `toml:"Logging"`
	RPC     RPCSettings   `toml:"RPC"`
	Roles   Roles         `toml:"Roles"`
	Pool    PoolSection   `toml:"Pool"`
	Window  WindowSection `toml:"Window"`

	// Balances seeds ledger accounts on first boot of a test network,
	// bech32 address to wei amount.
	Balances map[string]string `toml:"Balances"`
}
