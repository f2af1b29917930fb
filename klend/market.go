package klend

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
)

var (
	MainMarketAddress   = solana.MustPublicKeyFromBase58("7u3HeHxYDLhnCoErrtycNokbQYbWGzLs6JSDqGAv5PfF")
	MainMarketAuthority = solana.MustPublicKeyFromBase58("9DrvZvyWh1HuAoZxvYWMvkf2XCzryCpGgHqrMjyDWpmo")
	MainScopePrices     = solana.MustPublicKeyFromBase58("3NJYftD5sjVfxSnUdZ1wVML8f3aC6mp1CXCL6L7TnU8C")
)

// Reserve is the static account set of one reserve. A zero key means the
// reserve does not have that account.
type Reserve struct {
	Asset             Asset
	Address           solana.PublicKey
	LiquidityMint     solana.PublicKey
	LiquiditySupply   solana.PublicKey
	LiquidityFeeVault solana.PublicKey
	CollateralMint    solana.PublicKey
	CollateralSupply  solana.PublicKey
	FarmState         solana.PublicKey
}

type Market struct {
	Program      solana.PublicKey
	FarmsProgram solana.PublicKey
	Address      solana.PublicKey
	Authority    solana.PublicKey
	ScopePrices  solana.PublicKey
	Reserves     map[Asset]*Reserve
}

// MainMarket returns the mainnet main market as captured by the fixtures.
func MainMarket() *Market {
	return &Market{
		Program:      program.KLend,
		FarmsProgram: program.KFarm,
		Address:      MainMarketAddress,
		Authority:    MainMarketAuthority,
		ScopePrices:  MainScopePrices,
		Reserves: map[Asset]*Reserve{
			AssetSOL: {
				Asset:             AssetSOL,
				Address:           solana.MustPublicKeyFromBase58("d4A2prbA2whesmvHaL88BH6Ewn5N4bTSU2Ze8P6Bc4Q"),
				LiquidityMint:     program.WSOL,
				LiquiditySupply:   solana.MustPublicKeyFromBase58("GafNuUXj9rxGLn4y79dPu6MHSuPWeJR6UtTWuexpGh3U"),
				LiquidityFeeVault: solana.MustPublicKeyFromBase58("3JNof8s453bwG5UqiXBLJc77NRQXezYYEBbk3fqnoKph"),
				CollateralMint:    solana.MustPublicKeyFromBase58("2UywZrUdyqs5vDchy7fKQJKau2RVyuzBev2XKGPDSiX1"),
				FarmState:         solana.MustPublicKeyFromBase58("955xWFhSDcDiUgUr4sBRtCpTLiMd4H5uZLAmgtP3R3sX"),
			},
			AssetUSDC: {
				Asset:             AssetUSDC,
				Address:           solana.MustPublicKeyFromBase58("D6q6wuQSrifJKZYpR1M8R4YawnLDtDsMmWM1NbBmgJ59"),
				LiquidityMint:     program.USDC,
				LiquiditySupply:   solana.MustPublicKeyFromBase58("Bgq7trRgVMeq33yt235zM2onQ4bRDBsY5EWiTetF4qw6"),
				LiquidityFeeVault: solana.MustPublicKeyFromBase58("BbDUrk1bVtSixgQsPLBJFZEF7mwGstnD5joA1WzYvYFX"),
			},
			AssetJitoSOL: {
				Asset:            AssetJitoSOL,
				Address:          solana.MustPublicKeyFromBase58("EVbyPKrHG6WBfm4dLxLMJpUDY43cCAcHSpV3KYjKsktW"),
				LiquidityMint:    program.JitoSOL,
				LiquiditySupply:  solana.MustPublicKeyFromBase58("6sga1yRArgQRqa8Darhm54EBromEpV3z8iDAvMTVYXB3"),
				CollateralMint:   solana.MustPublicKeyFromBase58("9ucQp7thL38MDDTSER5ou24QnVSTZFLevDsZC1cAFkKy"),
				CollateralSupply: solana.MustPublicKeyFromBase58("7y5Nko765HcZiTd2gFtxorELuJZcbQqmrmTbUVoiwGyS"),
			},
		},
	}
}

func (m *Market) Reserve(asset Asset) (*Reserve, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}
	reserve, ok := m.Reserves[asset]
	if !ok || reserve.Address.IsZero() {
		return nil, fmt.Errorf("%w: no %s reserve in market %s", ErrUnsupportedAsset, asset, m.Address)
	}
	return reserve, nil
}

// AssetOf maps a reserve address back to its asset.
func (m *Market) AssetOf(reserve solana.PublicKey) (Asset, error) {
	for asset, r := range m.Reserves {
		if r.Address.Equals(reserve) {
			return asset, nil
		}
	}
	return 0, fmt.Errorf("%w: no reserve for key: %s", ErrUnsupportedAsset, reserve)
}

// need returns the named reserve account or a configuration error when the
// reserve does not carry it.
func (r *Reserve) need(name string, key solana.PublicKey) (solana.PublicKey, error) {
	if key.IsZero() {
		return key, fmt.Errorf("%w: %s reserve has no %s", ErrMissingAccount, r.Asset, name)
	}
	return key, nil
}
