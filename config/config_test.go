package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"givepool/crypto"
	"givepool/native/pool"
)

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.PubKey().Address().String()
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file written: %v", err)
	}
	if cfg.NetworkName != "givepool-local" {
		t.Fatalf("unexpected network name %q", cfg.NetworkName)
	}
	if cfg.VaultAddress == "" {
		t.Fatal("expected generated vault address")
	}

	// A second load round-trips the persisted file.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.VaultAddress != cfg.VaultAddress {
		t.Fatalf("vault address changed across reload: %q != %q", reloaded.VaultAddress, cfg.VaultAddress)
	}
	params, err := reloaded.PoolParams()
	if err != nil {
		t.Fatalf("pool params: %v", err)
	}
	defaults := pool.DefaultParams()
	if params.MinContributionWei.Cmp(defaults.MinContributionWei) != 0 {
		t.Fatalf("expected default min contribution, got %s", params.MinContributionWei)
	}
	if params.BatchSize != defaults.BatchSize {
		t.Fatalf("expected default batch size, got %d", params.BatchSize)
	}
	policy, err := reloaded.TimePolicy()
	if err != nil {
		t.Fatalf("time policy: %v", err)
	}
	if policy.TestMode {
		t.Fatal("default config must not enable test mode")
	}
}

func TestLoadRejectsDeprecatedTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "RPCAuthToken = \"secret\"\nVaultAddress = \"" + testAddress(t) + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "deprecated RPCAuthToken") {
		t.Fatalf("expected deprecation error, got %v", err)
	}
}

func TestLoadRejectsInvalidVaultAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("VaultAddress = \"not-bech32\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected address decode error")
	}
}

func TestPoolParamsRejectsMalformedAmount(t *testing.T) {
	cfg := &Config{VaultAddress: testAddress(t)}
	applyDefaults(cfg)
	cfg.Pool.MaxContributionWei = "1.5e18"
	if _, err := cfg.PoolParams(); err == nil {
		t.Fatal("expected wei parse error")
	}
	cfg.Pool.MaxContributionWei = "-1"
	if _, err := cfg.PoolParams(); err == nil {
		t.Fatal("expected negative amount rejection")
	}
}

func TestRoleGrantsDecode(t *testing.T) {
	distributor := testAddress(t)
	steward := testAddress(t)
	cfg := &Config{VaultAddress: testAddress(t)}
	applyDefaults(cfg)
	cfg.Roles.Distributors = []string{distributor}
	cfg.Roles.Stewards = []string{steward}

	grants, err := cfg.RoleGrants()
	if err != nil {
		t.Fatalf("role grants: %v", err)
	}
	if len(grants[pool.RoleDistributor]) != 1 || len(grants[pool.RoleSteward]) != 1 {
		t.Fatalf("unexpected grants: %v", grants)
	}

	cfg.Roles.Stewards = []string{"bogus"}
	if _, err := cfg.RoleGrants(); err == nil {
		t.Fatal("expected decode error for bogus steward")
	}
}

func TestSeedBalancesDecode(t *testing.T) {
	user := testAddress(t)
	cfg := &Config{VaultAddress: testAddress(t)}
	applyDefaults(cfg)
	cfg.Balances = map[string]string{user: "1000000000000000000"}

	seeds, err := cfg.SeedBalances()
	if err != nil {
		t.Fatalf("seed balances: %v", err)
	}
	if len(seeds) != 1 {
		t.Fatalf("expected 1 seed, got %d", len(seeds))
	}
	for _, amount := range seeds {
		if amount.String() != "1000000000000000000" {
			t.Fatalf("unexpected amount %s", amount)
		}
	}

	cfg.Balances[user] = "lots"
	if _, err := cfg.SeedBalances(); err == nil {
		t.Fatal("expected amount parse error")
	}
}

func TestAuthTokenResolution(t *testing.T) {
	cfg := &Config{VaultAddress: testAddress(t)}
	applyDefaults(cfg)

	token, err := cfg.AuthToken()
	if err != nil || token != "" {
		t.Fatalf("expected disabled auth, got %q (%v)", token, err)
	}

	cfg.RPC.AuthTokenEnv = "GIVEPOOL_TEST_RPC_TOKEN"
	if _, err := cfg.AuthToken(); err == nil {
		t.Fatal("expected error for unset variable")
	}
	t.Setenv("GIVEPOOL_TEST_RPC_TOKEN", "secret")
	token, err = cfg.AuthToken()
	if err != nil || token != "secret" {
		t.Fatalf("expected resolved token, got %q (%v)", token, err)
	}
}
