package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk daemon configuration.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`
	Environment string `toml:"Environment"`

	// Underlying is the hex address of the facade's underlying token.
	Underlying      string `toml:"Underlying"`
	UnderlyingLTBps uint16 `toml:"UnderlyingLTBps"`

	// Admin holds every governance role at boot.
	Admin string `toml:"Admin"`

	FeeInterestBps                uint16 `toml:"FeeInterestBps"`
	FeeLiquidationBps             uint16 `toml:"FeeLiquidationBps"`
	FeeLiquidationExpiredBps      uint16 `toml:"FeeLiquidationExpiredBps"`
	LiquidationDiscountBps        uint16 `toml:"LiquidationDiscountBps"`
	LiquidationDiscountExpiredBps uint16 `toml:"LiquidationDiscountExpiredBps"`

	// Debt bounds in underlying base units, decimal strings.
	MinDebt                   string `toml:"MinDebt"`
	MaxDebt                   string `toml:"MaxDebt"`
	MaxDebtPerBlockMultiplier uint8  `toml:"MaxDebtPerBlockMultiplier"`
	MaxCumulativeLoss         string `toml:"MaxCumulativeLoss"`

	// Reference pool parameters.
	PoolLiquidity string `toml:"PoolLiquidity"`
	PoolRateBps   uint64 `toml:"PoolRateBps"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "creditvault-local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine could not safely boot from.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	if !isHexAddress(c.Underlying) {
		return fmt.Errorf("config: Underlying must be a 0x-prefixed 20-byte address")
	}
	if !isHexAddress(c.Admin) {
		return fmt.Errorf("config: Admin must be a 0x-prefixed 20-byte address")
	}
	if c.UnderlyingLTBps == 0 || c.UnderlyingLTBps > 10_000 {
		return fmt.Errorf("config: UnderlyingLTBps must be in (0, 10000]")
	}
	minDebt, err := c.BigField("MinDebt", c.MinDebt)
	if err != nil {
		return err
	}
	maxDebt, err := c.BigField("MaxDebt", c.MaxDebt)
	if err != nil {
		return err
	}
	if minDebt.Sign() <= 0 || maxDebt.Cmp(minDebt) < 0 {
		return fmt.Errorf("config: MinDebt/MaxDebt bounds are inverted or zero")
	}
	if _, err := c.BigField("MaxCumulativeLoss", c.MaxCumulativeLoss); err != nil {
		return err
	}
	if _, err := c.BigField("PoolLiquidity", c.PoolLiquidity); err != nil {
		return err
	}
	if c.MaxDebtPerBlockMultiplier == 0 {
		return fmt.Errorf("config: MaxDebtPerBlockMultiplier must be at least 1")
	}
	return nil
}

// BigField parses a decimal big-integer field, naming the field on failure.
func (c *Config) BigField(name, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("config: %s must be a non-negative decimal integer", name)
	}
	return out, nil
}

func isHexAddress(value string) bool {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) != 42 || !strings.HasPrefix(trimmed, "0x") {
		return false
	}
	for _, r := range trimmed[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// createDefault writes and returns a runnable local-network configuration.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8080",
		DataDir:     "./creditvault-data",
		NetworkName: "creditvault-local",
		Environment: "local",

		Underlying:      "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		UnderlyingLTBps: 9_300,
		Admin:           "0x0000000000000000000000000000000000000Ad1",

		FeeInterestBps:                5_000,
		FeeLiquidationBps:             150,
		FeeLiquidationExpiredBps:      100,
		LiquidationDiscountBps:        9_600,
		LiquidationDiscountExpiredBps: 9_800,

		MinDebt:                   "100000000000000000000",
		MaxDebt:                   "100000000000000000000000",
		MaxDebtPerBlockMultiplier: 2,
		MaxCumulativeLoss:         "10000000000000000000000",

		PoolLiquidity: "1000000000000000000000000",
		PoolRateBps:   250,
	}
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
