package klend

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
	"github.com/shopspring/decimal"
)

var (
	ObligationDiscriminator = []byte{168, 206, 141, 106, 88, 76, 172, 167}
	// ObligationPrefixSize covers the fields up to the value summaries.
	ObligationPrefixSize = 8 + 8 + 16 + 32 + 32 + 8*136 + 8 + 16 + 5*200 + 4*16

	ErrNotObligation = errors.New("account is not an obligation")
)

var fractionScale = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 60), 0)

// Fraction is the lending program's u68.60 fixed point number, stored little
// endian.
type Fraction [16]uint8

func (f Fraction) BigInt() *big.Int {
	be := make([]byte, len(f))
	for i := range f {
		be[len(f)-1-i] = f[i]
	}
	return new(big.Int).SetBytes(be)
}

func (f Fraction) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(f.BigInt(), 0).Div(fractionScale)
}

type LastUpdateLayout struct {
	Slot        uint64
	Stale       uint8
	PriceStatus uint8
	Placeholder [6]uint8
}

type ObligationCollateralLayout struct {
	DepositReserve     solana.PublicKey
	DepositedAmount    uint64
	MarketValueSf      Fraction
	BorrowedInElevated uint64
	Padding            [9]uint64
}

type BigFractionLayout struct {
	Value   [4]uint64
	Padding [2]uint64
}

type ObligationLiquidityLayout struct {
	BorrowReserve                     solana.PublicKey
	CumulativeBorrowRateBsf           BigFractionLayout
	Padding                           uint64
	BorrowedAmountSf                  Fraction
	MarketValueSf                     Fraction
	BorrowFactorAdjustedMarketValueSf Fraction
	BorrowedOutsideElevationGroups    uint64
	Padding2                          [7]uint64
}

type ObligationLayout struct {
	Tag                             uint64
	LastUpdate                      LastUpdateLayout
	LendingMarket                   solana.PublicKey
	Owner                           solana.PublicKey
	Deposits                        [8]ObligationCollateralLayout
	LowestDepositLiquidationLtv     uint64
	DepositedValueSf                Fraction
	Borrows                         [5]ObligationLiquidityLayout
	BorrowFactorAdjustedDebtValueSf Fraction
	BorrowedAssetsMarketValueSf     Fraction
	AllowedBorrowValueSf            Fraction
	UnhealthyBorrowValueSf          Fraction
}

func DecodeObligation(data []byte) (obligation *ObligationLayout, err error) {
	if len(data) < ObligationPrefixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotObligation, len(data))
	}
	if !bytes.Equal(data[:8], ObligationDiscriminator) {
		return nil, fmt.Errorf("%w: discriminator %v", ErrNotObligation, data[:8])
	}
	defer func() {
		if r := recover(); r != nil {
			obligation = nil
			err = fmt.Errorf("decode obligation: %v", r)
		}
	}()
	var layout ObligationLayout
	if err := borsh.Deserialize(&layout, data[8:ObligationPrefixSize]); err != nil {
		return nil, fmt.Errorf("decode obligation: %w", err)
	}
	return &layout, nil
}

// State lists the occupied deposit and borrow slots in slot order.
func (o *ObligationLayout) State(m *Market) (PositionState, error) {
	state := PositionState{Deposits: []Asset{}, Borrows: []Asset{}}
	for _, deposit := range o.Deposits {
		if deposit.DepositReserve.IsZero() {
			continue
		}
		asset, err := m.AssetOf(deposit.DepositReserve)
		if err != nil {
			return PositionState{}, err
		}
		state.Deposits = append(state.Deposits, asset)
	}
	for _, borrow := range o.Borrows {
		if borrow.BorrowReserve.IsZero() {
			continue
		}
		asset, err := m.AssetOf(borrow.BorrowReserve)
		if err != nil {
			return PositionState{}, err
		}
		state.Borrows = append(state.Borrows, asset)
	}
	return state, nil
}

func (o *ObligationLayout) Deposited(reserve solana.PublicKey) uint64 {
	for _, deposit := range o.Deposits {
		if deposit.DepositReserve.Equals(reserve) {
			return deposit.DepositedAmount
		}
	}
	return 0
}

func (o *ObligationLayout) Borrowed(reserve solana.PublicKey) decimal.Decimal {
	for _, borrow := range o.Borrows {
		if borrow.BorrowReserve.Equals(reserve) {
			return borrow.BorrowedAmountSf.Decimal()
		}
	}
	return decimal.Zero
}
