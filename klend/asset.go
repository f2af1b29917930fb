package klend

import (
	"fmt"
	"strings"
)

// Asset is the closed set of assets the harness can route through a reserve.
type Asset uint8

const (
	AssetSOL Asset = iota + 1
	AssetUSDC
	AssetJitoSOL
)

var assetSymbols = map[Asset]string{
	AssetSOL:     "SOL",
	AssetUSDC:    "USDC",
	AssetJitoSOL: "JitoSOL",
}

func Assets() []Asset {
	return []Asset{AssetSOL, AssetUSDC, AssetJitoSOL}
}

func (a Asset) String() string {
	symbol, ok := assetSymbols[a]
	if !ok {
		return fmt.Sprintf("Asset(%d)", uint8(a))
	}
	return symbol
}

// Native reports whether the asset is moved through a wrapped SOL account.
func (a Asset) Native() bool {
	return a == AssetSOL
}

func (a Asset) Valid() bool {
	_, ok := assetSymbols[a]
	return ok
}

func ParseAsset(symbol string) (Asset, error) {
	for _, asset := range Assets() {
		if strings.EqualFold(asset.String(), symbol) {
			return asset, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAsset, symbol)
}
