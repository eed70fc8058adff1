package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AmountAutoMax is the sentinel amount meaning "mint the maximum currently
// permitted quantity", resolved against contract state at submission time.
const AmountAutoMax = -1

// WalletConfig identifies the signing wallet.
type WalletConfig struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

// NetworkConfig selects the target chain.
type NetworkConfig struct {
	Name      string `json:"name"`
	CustomRPC string `json:"custom_rpc"`
}

// ContractConfig locates the NFT contract and its ABI source.
type ContractConfig struct {
	Address        string `json:"address"`
	ABIPath        string `json:"abi_path"`
	ExplorerAPIKey string `json:"explorer_api_key"`
}

// MintingConfig holds the mint parameters for a run.
type MintingConfig struct {
	GroupID   int64  `json:"group_id"`
	Amount    int64  `json:"amount"`
	ToAddress string `json:"to_address"`
}

// RetryConfig bounds the orchestrator's retry loop.
type RetryConfig struct {
	MaxAttempts      int `json:"maxAttempts"`
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
}

// TimeoutConfig holds per-call and polling intervals.
type TimeoutConfig struct {
	RPCTimeoutMs      int `json:"rpcTimeoutMs"`
	ConfirmSecs       int `json:"confirmSeconds"`
	PollIntervalSecs  int `json:"pollIntervalSeconds"`
	EstimateStaleSecs int `json:"estimateStaleSeconds"`
}

// JournalConfig selects where run summaries are persisted.
type JournalConfig struct {
	Path        string `json:"path"`
	PostgresDSN string `json:"postgres_dsn"`
}

// MetricsConfig enables the optional prometheus listener.
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// Config is the full application configuration.
type Config struct {
	Wallet   WalletConfig   `json:"wallet"`
	Network  NetworkConfig  `json:"network"`
	Contract ContractConfig `json:"contract"`
	Minting  MintingConfig  `json:"minting"`
	Retry    RetryConfig    `json:"retry"`
	Timeouts TimeoutConfig  `json:"timeouts"`
	Journal  JournalConfig  `json:"journal"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// ValidationError aggregates every configuration problem found so the user
// can fix them in one pass.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "configuration validation failed:\n  - " + strings.Join(e.Issues, "\n  - ")
}

var supportedNetworks = []string{"ARBITRUM_ONE", "ARBITRUM_NOVA", "ARBITRUM_SEPOLIA", "BERACHAIN"}

func defaults() Config {
	return Config{
		Network: NetworkConfig{Name: "BERACHAIN"},
		Minting: MintingConfig{
			GroupID:   0,
			Amount:    1,
			ToAddress: "DEFAULT",
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMs: 2000,
			MaxBackoffMs:     30000,
		},
		Timeouts: TimeoutConfig{
			RPCTimeoutMs:      15000,
			ConfirmSecs:       300,
			PollIntervalSecs:  10,
			EstimateStaleSecs: 30,
		},
		Journal: JournalConfig{
			Path: filepath.Join(os.TempDir(), "mintforge-runs.json"),
		},
	}
}

// Load reads the config file if it exists, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Wallet.PrivateKey = envOr("WALLET_PRIVATE_KEY", cfg.Wallet.PrivateKey)
	cfg.Wallet.Address = envOr("WALLET_ADDRESS", cfg.Wallet.Address)
	cfg.Network.Name = envOr("NETWORK_NAME", cfg.Network.Name)
	cfg.Network.CustomRPC = envOr("NETWORK_RPC", cfg.Network.CustomRPC)
	cfg.Contract.Address = envOr("CONTRACT_ADDRESS", cfg.Contract.Address)
	cfg.Contract.ABIPath = envOr("CONTRACT_ABI_PATH", cfg.Contract.ABIPath)
	cfg.Contract.ExplorerAPIKey = envOr("EXPLORER_API_KEY", cfg.Contract.ExplorerAPIKey)
	cfg.Minting.GroupID = envOrInt64("MINTING_GROUP_ID", cfg.Minting.GroupID)
	cfg.Minting.Amount = envOrInt64("MINTING_AMOUNT", cfg.Minting.Amount)
	cfg.Minting.ToAddress = envOr("MINTING_TO_ADDRESS", cfg.Minting.ToAddress)
	cfg.Journal.PostgresDSN = envOr("JOURNAL_POSTGRES_DSN", cfg.Journal.PostgresDSN)
	cfg.Metrics.ListenAddr = envOr("METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)
}

var (
	addressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	privateKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// ValidAddress reports whether s looks like a 20-byte hex address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidPrivateKey reports whether s is a 32-byte hex key, 0x prefix optional.
func ValidPrivateKey(s string) bool {
	return privateKeyPattern.MatchString(strings.TrimPrefix(s, "0x"))
}

// Validate checks the loaded configuration and returns a ValidationError
// listing every problem found.
func (c *Config) Validate() error {
	var issues []string

	if c.Wallet.PrivateKey == "" {
		issues = append(issues, "wallet.private_key is required")
	} else if !ValidPrivateKey(c.Wallet.PrivateKey) {
		issues = append(issues, "wallet.private_key is not a valid hex key")
	}
	if c.Wallet.Address != "" && !ValidAddress(c.Wallet.Address) {
		issues = append(issues, fmt.Sprintf("invalid wallet address: %s", c.Wallet.Address))
	}

	if !supportedNetwork(c.Network.Name) {
		issues = append(issues, fmt.Sprintf("invalid network: %s, valid options: %s",
			c.Network.Name, strings.Join(supportedNetworks, ", ")))
	}

	if c.Contract.Address == "" {
		issues = append(issues, "contract.address is required")
	} else if !ValidAddress(c.Contract.Address) {
		issues = append(issues, fmt.Sprintf("invalid contract address: %s", c.Contract.Address))
	}
	if c.Contract.ABIPath == "" && c.Contract.ExplorerAPIKey == "" {
		issues = append(issues, "either contract.abi_path or contract.explorer_api_key must be provided")
	}

	if c.Minting.Amount != AmountAutoMax && c.Minting.Amount <= 0 {
		issues = append(issues, "minting.amount must be -1 (for max) or greater than 0")
	}
	if c.Minting.GroupID < 0 {
		issues = append(issues, "minting.group_id must be non-negative")
	}
	if to := c.Minting.ToAddress; to != "" && to != "DEFAULT" && !ValidAddress(to) {
		issues = append(issues, fmt.Sprintf("invalid minting.to_address: %s", to))
	}

	if c.Retry.MaxAttempts < 1 {
		issues = append(issues, "retry.maxAttempts must be at least 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func supportedNetwork(name string) bool {
	for _, n := range supportedNetworks {
		if n == name {
			return true
		}
	}
	return false
}

// RPCTimeout returns the per-call RPC timeout as a duration.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.Timeouts.RPCTimeoutMs) * time.Millisecond
}

// ConfirmTimeout bounds receipt polling for a single attempt.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Timeouts.ConfirmSecs) * time.Second
}

// PollInterval is the delay between mint-active and receipt checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timeouts.PollIntervalSecs) * time.Second
}

// EstimateStaleness is how long a cost estimate stays usable.
func (c *Config) EstimateStaleness() time.Duration {
	return time.Duration(c.Timeouts.EstimateStaleSecs) * time.Second
}

// InitialBackoff is the first retry delay.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff caps the doubled retry delay.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond
}

// WriteExample writes a starter configuration to path.
func WriteExample(path string) error {
	cfg := defaults()
	cfg.Wallet.PrivateKey = "YOUR_PRIVATE_KEY_HERE"
	cfg.Wallet.Address = "YOUR_WALLET_ADDRESS_HERE"
	cfg.Contract.Address = "CONTRACT_ADDRESS_HERE"
	cfg.Contract.ABIPath = "path/to/contract_abi.json"
	cfg.Contract.ExplorerAPIKey = "YOUR_API_KEY_HERE"

	blob, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, blob, 0o600)
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
