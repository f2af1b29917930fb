package klend

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leverageFixture(t *testing.T) (*Sequencer, *Position, LeverageParams, LeverageAccounts) {
	s := NewSequencer(MainMarket(), testOwner)
	pos := newTestPosition(t, s)
	params := LeverageParams{
		FlashAsset:       AssetSOL,
		CollateralAsset:  AssetJitoSOL,
		FlashAmount:      8_000_000_000_000,
		DepositAmount:    6_666_666_666_666,
		CollateralAmount: 6_600_000_000_000,
		BorrowAmount:     8_000_000_000_000,
		SlippageBps:      12000,
	}
	accounts := LeverageAccounts{
		FlashHolding:        solana.NewWallet().PublicKey(),
		SwapIntermediate:    solana.NewWallet().PublicKey(),
		CollateralLiquidity: solana.NewWallet().PublicKey(),
		CollateralTokens:    solana.NewWallet().PublicKey(),
	}
	return s, pos, params, accounts
}

func TestLeverageBundle(t *testing.T) {
	s, pos, params, accounts := leverageFixture(t)
	b, err := s.Leverage(pos, params, accounts)
	require.NoError(t, err)

	names := make([]string, 0, len(b.Stages))
	for _, stage := range b.Stages {
		names = append(names, stage.Name)
	}
	assert.Equal(t, []string{
		StageFlashBorrow, StageSwap, StageDepositLiquidity, StageDepositCollateral, StageBorrow, StageFlashRepay,
	}, names)

	steps := b.Steps()
	require.Len(t, steps, 13)
	assert.Equal(t, program.OpFlashBorrow, steps[0].Op)
	assert.Equal(t, program.OpTokenTransfer, steps[1].Op)
	assert.Equal(t, program.OpMintTo, steps[2].Op)
	assert.Equal(t, program.OpFlashRepay, steps[12].Op)
	for _, step := range b.Stages[4].Sequence.Steps {
		assert.NotEqual(t, program.OpCloseAccount, step.Op)
	}
	assert.Equal(t, 0, b.BorrowIndex)
	assert.Equal(t, accounts.FlashHolding, b.Holding)
	assert.Equal(t, byte(0), steps[12].IsData[16])
	assert.NoError(t, CheckOrdering(steps))

	borrowed, _ := b.Stages[4].Sequence.Steps[3].Role("user_destination_liquidity")
	assert.Equal(t, accounts.FlashHolding, borrowed)

	stage, ok := b.StageOf(0)
	assert.True(t, ok)
	assert.Equal(t, StageFlashBorrow, stage)
	stage, _ = b.StageOf(7)
	assert.Equal(t, StageDepositCollateral, stage)
	stage, _ = b.StageOf(11)
	assert.Equal(t, StageBorrow, stage)
	_, ok = b.StageOf(13)
	assert.False(t, ok)

	assert.Equal(t, []Asset{AssetJitoSOL}, b.State.Deposits)
	assert.Equal(t, []Asset{AssetSOL}, b.State.Borrows)
	assert.True(t, pos.State.Empty())
	b.Apply(pos)
	assert.Equal(t, []Asset{AssetSOL}, pos.State.Borrows)

	collateral, ok := Net(b.Effects(), AssetJitoSOL, LegCollateral)
	require.True(t, ok)
	assert.Equal(t, "6600000000000", collateral.String())
	debt, _ := Net(b.Effects(), AssetSOL, LegDebt)
	assert.Equal(t, "8000000000000", debt.String())
}

func TestLeverageRejectsForeignRepaySource(t *testing.T) {
	s, pos, params, accounts := leverageFixture(t)
	accounts.RepaySource = solana.NewWallet().PublicKey()
	b, err := s.Leverage(pos, params, accounts)
	assert.ErrorIs(t, err, ErrHoldingAccountMismatch)
	assert.Nil(t, b)
}

func TestLeverageOffsetMovesBorrowIndex(t *testing.T) {
	s, pos, params, accounts := leverageFixture(t)
	params.Offset = 2
	b, err := s.Leverage(pos, params, accounts)
	require.NoError(t, err)
	assert.Equal(t, 2, b.BorrowIndex)
	assert.Equal(t, byte(2), b.Steps()[12].IsData[16])
	stage, _ := b.StageOf(2)
	assert.Equal(t, StageFlashBorrow, stage)
	_, ok := b.StageOf(1)
	assert.False(t, ok)
}

func TestLeverageBorrowMustCoverFlash(t *testing.T) {
	s, pos, params, accounts := leverageFixture(t)
	params.BorrowAmount = params.FlashAmount - 1
	_, err := s.Leverage(pos, params, accounts)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, pos, params, accounts = leverageFixture(t)
	params.FlashFee = 10
	_, err = s.Leverage(pos, params, accounts)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	params.BorrowAmount = params.FlashAmount + 10
	b, err := s.Leverage(pos, params, accounts)
	require.NoError(t, err)
	fee, _ := Net(b.Effects(), AssetSOL, LegFee)
	assert.Equal(t, "-10", fee.String())
}

func TestNewBundleShape(t *testing.T) {
	s, pos, _, accounts := leverageFixture(t)
	holding := accounts.FlashHolding
	flash, err := s.FlashBorrow(AssetSOL, holding, 100)
	require.NoError(t, err)
	borrow, err := s.Borrow(pos, AssetUSDC, solana.NewWallet().PublicKey(), 5)
	require.NoError(t, err)
	repay, err := s.FlashRepay(AssetSOL, holding, 100, 0)
	require.NoError(t, err)

	_, err = NewBundle(0, Stage{Name: StageFlashBorrow, Sequence: flash})
	assert.ErrorIs(t, err, ErrBundleShape)

	_, err = NewBundle(0,
		Stage{Name: StageFlashBorrow, Sequence: flash},
		Stage{Name: StageFlashRepay, Sequence: repay},
		Stage{Name: StageBorrow, Sequence: borrow},
	)
	assert.ErrorIs(t, err, ErrBundleShape)

	wrongIndex, err := s.FlashRepay(AssetSOL, holding, 100, 1)
	require.NoError(t, err)
	_, err = NewBundle(0,
		Stage{Name: StageFlashBorrow, Sequence: flash},
		Stage{Name: StageFlashRepay, Sequence: wrongIndex},
	)
	assert.ErrorIs(t, err, ErrBundleShape)

	other, err := s.FlashRepay(AssetSOL, solana.NewWallet().PublicKey(), 100, 0)
	require.NoError(t, err)
	_, err = NewBundle(0,
		Stage{Name: StageFlashBorrow, Sequence: flash},
		Stage{Name: StageFlashRepay, Sequence: other},
	)
	assert.ErrorIs(t, err, ErrHoldingAccountMismatch)
}
