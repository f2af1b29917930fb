package env

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/klend"
)

type Program struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	File    string `yaml:"file"`
}

type Snapshot struct {
	Address  string `yaml:"address"`
	Owner    string `yaml:"owner"`
	Lamports uint64 `yaml:"lamports"`
	File     string `yaml:"file"`
	// TakeMintAuthority rewrites the snapshot, a mint, so the harness admin
	// can mint it.
	TakeMintAuthority bool `yaml:"take_mint_authority"`
}

type ReserveConfig struct {
	Address           string `yaml:"address"`
	LiquidityMint     string `yaml:"liquidity_mint"`
	LiquiditySupply   string `yaml:"liquidity_supply"`
	LiquidityFeeVault string `yaml:"liquidity_fee_vault"`
	CollateralMint    string `yaml:"collateral_mint"`
	CollateralSupply  string `yaml:"collateral_supply"`
	FarmState         string `yaml:"farm_state"`
}

type MarketConfig struct {
	Program      string                   `yaml:"program"`
	FarmsProgram string                   `yaml:"farms_program"`
	Address      string                   `yaml:"address"`
	Authority    string                   `yaml:"authority"`
	ScopePrices  string                   `yaml:"scope_prices"`
	Reserves     map[string]ReserveConfig `yaml:"reserves"`
}

type Manifest struct {
	Programs     []Program    `yaml:"programs"`
	MarketConfig MarketConfig `yaml:"market"`
	Accounts     []Snapshot   `yaml:"accounts"`
}

func parseKey(field, value string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: bad address %q: %w", field, value, err)
	}
	return key, nil
}

func (m *Manifest) validate() error {
	for _, p := range m.Programs {
		if _, err := parseKey("program "+p.Name, p.Address); err != nil {
			return err
		}
		if p.File == "" {
			return fmt.Errorf("program %s: no file", p.Name)
		}
	}
	for _, a := range m.Accounts {
		if _, err := parseKey("account", a.Address); err != nil {
			return err
		}
		if _, err := parseKey("account owner", a.Owner); err != nil {
			return err
		}
		if a.File == "" {
			return fmt.Errorf("account %s: no file", a.Address)
		}
	}
	for symbol := range m.MarketConfig.Reserves {
		if _, err := klend.ParseAsset(symbol); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manifest) account(address solana.PublicKey) (*Snapshot, bool) {
	for k := range m.Accounts {
		if m.Accounts[k].Address == address.String() {
			return &m.Accounts[k], true
		}
	}
	return nil, false
}

// override replaces *dst with the parsed value when value is set.
func override(dst *solana.PublicKey, field, value string) error {
	if value == "" {
		return nil
	}
	key, err := parseKey(field, value)
	if err != nil {
		return err
	}
	*dst = key
	return nil
}

// Market returns the main market with the manifest's overrides applied.
func (m *Manifest) Market() (*klend.Market, error) {
	market := klend.MainMarket()
	cfg := m.MarketConfig
	for _, o := range []struct {
		dst   *solana.PublicKey
		field string
		value string
	}{
		{&market.Program, "market.program", cfg.Program},
		{&market.FarmsProgram, "market.farms_program", cfg.FarmsProgram},
		{&market.Address, "market.address", cfg.Address},
		{&market.Authority, "market.authority", cfg.Authority},
		{&market.ScopePrices, "market.scope_prices", cfg.ScopePrices},
	} {
		if err := override(o.dst, o.field, o.value); err != nil {
			return nil, err
		}
	}
	if cfg.Address != "" && cfg.Authority == "" {
		authority, err := klend.MarketAuthorityAddress(market.Program, market.Address)
		if err != nil {
			return nil, err
		}
		market.Authority = authority
	}
	for symbol, r := range cfg.Reserves {
		asset, err := klend.ParseAsset(symbol)
		if err != nil {
			return nil, err
		}
		reserve, ok := market.Reserves[asset]
		if !ok {
			reserve = &klend.Reserve{Asset: asset}
			market.Reserves[asset] = reserve
		}
		field := "market.reserves." + symbol
		for _, o := range []struct {
			dst   *solana.PublicKey
			name  string
			value string
		}{
			{&reserve.Address, "address", r.Address},
			{&reserve.LiquidityMint, "liquidity_mint", r.LiquidityMint},
			{&reserve.LiquiditySupply, "liquidity_supply", r.LiquiditySupply},
			{&reserve.LiquidityFeeVault, "liquidity_fee_vault", r.LiquidityFeeVault},
			{&reserve.CollateralMint, "collateral_mint", r.CollateralMint},
			{&reserve.CollateralSupply, "collateral_supply", r.CollateralSupply},
			{&reserve.FarmState, "farm_state", r.FarmState},
		} {
			if err := override(o.dst, field+"."+o.name, o.value); err != nil {
				return nil, err
			}
		}
	}
	return market, nil
}
