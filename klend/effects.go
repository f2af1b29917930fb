package klend

import (
	"math/big"

	"github.com/shopspring/decimal"
)

type Leg uint8

const (
	LegCollateral Leg = iota + 1
	LegDebt
	LegFlash
	LegFee
)

func (l Leg) String() string {
	switch l {
	case LegCollateral:
		return "collateral"
	case LegDebt:
		return "debt"
	case LegFlash:
		return "flash"
	case LegFee:
		return "fee"
	}
	return "unknown"
}

// LineItem is one movement a sequence causes on a position leg. Protocol fees
// are their own items and never folded into collateral or debt.
type LineItem struct {
	Asset  Asset
	Leg    Leg
	Amount uint64
	Credit bool
}

// Sentinel reports whether the amount is left for the lending program to
// resolve.
func (l LineItem) Sentinel() bool {
	return l.Amount == MaxAmount
}

// Net sums the items for one asset and leg. The second result is false when a
// sentinel amount takes part, since only the lending program knows its value.
func Net(items []LineItem, asset Asset, leg Leg) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, item := range items {
		if item.Asset != asset || item.Leg != leg {
			continue
		}
		if item.Sentinel() {
			return decimal.Zero, false
		}
		amount := decimalFromUint64(item.Amount)
		if item.Credit {
			total = total.Add(amount)
		} else {
			total = total.Sub(amount)
		}
	}
	return total, true
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
