package klend

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/mockswap"
	"github.com/klend-harness/program"
)

const (
	StageFlashBorrow       = "flash-borrow"
	StageSwap              = "swap"
	StageDepositLiquidity  = "deposit-liquidity"
	StageDepositCollateral = "deposit-collateral"
	StageBorrow            = "borrow"
	StageFlashRepay        = "flash-repay"
)

type Stage struct {
	Name     string
	Sequence *Sequence
}

// Bundle is a leverage transaction: stages run in order inside one
// transaction and land or fail together.
type Bundle struct {
	Stages   []Stage
	Fees     []LineItem
	Position solana.PublicKey
	State    PositionState
	// Offset is the number of instructions placed in front of the bundle in
	// the transaction.
	Offset      int
	BorrowIndex int
	Holding     solana.PublicKey
}

// NewBundle validates the flash legs of the stages. It rejects a bundle
// without exactly one flash borrow and one terminal flash repay, a repay
// drawing from a different account than the borrow funded, a repay pointing
// at the wrong instruction index or reserve, and borrows that cannot cover
// the flash amount.
func NewBundle(offset int, stages ...Stage) (*Bundle, error) {
	b := &Bundle{Stages: stages, Offset: offset}
	steps := b.Steps()
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrBundleShape)
	}
	borrowAt, repayAt := -1, -1
	for i, step := range steps {
		switch step.Op {
		case program.OpFlashBorrow:
			if borrowAt >= 0 {
				return nil, fmt.Errorf("%w: second flash borrow at %d", ErrBundleShape, i)
			}
			borrowAt = i
		case program.OpFlashRepay:
			if repayAt >= 0 {
				return nil, fmt.Errorf("%w: second flash repay at %d", ErrBundleShape, i)
			}
			repayAt = i
		}
	}
	if borrowAt < 0 || repayAt < 0 {
		return nil, fmt.Errorf("%w: flash borrow at %d, flash repay at %d", ErrBundleShape, borrowAt, repayAt)
	}
	if repayAt != len(steps)-1 {
		return nil, fmt.Errorf("%w: flash repay at %d is not the last of %d instructions", ErrBundleShape, repayAt, len(steps))
	}
	borrow, repay := steps[borrowAt], steps[repayAt]
	holding, _ := borrow.Role("user_destination_liquidity")
	source, _ := repay.Role("user_source_liquidity")
	if !holding.Equals(source) {
		return nil, fmt.Errorf("%w: borrowed into %s, repaying from %s", ErrHoldingAccountMismatch, holding, source)
	}
	borrowReserve, _ := borrow.Role("reserve")
	repayReserve, _ := repay.Role("reserve")
	if !borrowReserve.Equals(repayReserve) {
		return nil, fmt.Errorf("%w: flash borrow reserve %s, flash repay reserve %s", ErrBundleShape, borrowReserve, repayReserve)
	}
	if len(repay.IsData) != 17 || int(repay.IsData[16]) != offset+borrowAt {
		return nil, fmt.Errorf("%w: flash repay must point at instruction %d", ErrBundleShape, offset+borrowAt)
	}
	if err := b.checkCoverage(); err != nil {
		return nil, err
	}
	if err := CheckOrdering(steps); err != nil {
		return nil, err
	}
	b.BorrowIndex = offset + borrowAt
	b.Holding = holding
	for _, stage := range stages {
		if !stage.Sequence.Position.IsZero() {
			b.Position = stage.Sequence.Position
			b.State = stage.Sequence.State.Clone()
		}
	}
	return b, nil
}

// checkCoverage compares the flash legs and the debt drawn in the flash asset.
func (b *Bundle) checkCoverage() error {
	var flashAsset Asset
	for _, stage := range b.Stages {
		if stage.Sequence.Goal == program.OpFlashBorrow {
			flashAsset = stage.Sequence.Asset
		}
	}
	items := b.Effects()
	flash, _ := Net(items, flashAsset, LegFlash)
	if !flash.IsZero() {
		return fmt.Errorf("%w: flash legs of %s do not net to zero (%s)", ErrBundleShape, flashAsset, flash)
	}
	owed := uint64(0)
	for _, item := range items {
		if item.Asset == flashAsset && item.Leg == LegFlash && !item.Credit {
			owed = item.Amount
		}
		if item.Asset == flashAsset && item.Leg == LegFee && !item.Credit {
			owed += item.Amount
		}
	}
	debt, ok := Net(items, flashAsset, LegDebt)
	if !ok || debt.LessThan(decimalFromUint64(owed)) {
		return fmt.Errorf("%w: %s borrowed in %s does not cover %d owed", ErrInvalidAmount, debt, flashAsset, owed)
	}
	return nil
}

func (b *Bundle) Steps() []*program.Instruction {
	steps := make([]*program.Instruction, 0)
	for _, stage := range b.Stages {
		steps = append(steps, stage.Sequence.Steps...)
	}
	return steps
}

func (b *Bundle) Instructions() []solana.Instruction {
	steps := b.Steps()
	ins := make([]solana.Instruction, 0, len(steps))
	for _, step := range steps {
		ins = append(ins, step)
	}
	return ins
}

func (b *Bundle) Effects() []LineItem {
	items := make([]LineItem, 0)
	for _, stage := range b.Stages {
		items = append(items, stage.Sequence.Effects...)
	}
	return append(items, b.Fees...)
}

// StageOf maps an instruction index inside the transaction to its stage.
func (b *Bundle) StageOf(index int) (string, bool) {
	at := b.Offset
	for _, stage := range b.Stages {
		n := len(stage.Sequence.Steps)
		if index >= at && index < at+n {
			return stage.Name, true
		}
		at += n
	}
	return "", false
}

// Apply moves the position to the bundle's projected state once it landed.
func (b *Bundle) Apply(pos *Position) {
	if pos.Address.Equals(b.Position) {
		pos.State = b.State.Clone()
	}
}

type LeverageParams struct {
	FlashAsset       Asset
	CollateralAsset  Asset
	FlashAmount      uint64
	DepositAmount    uint64
	CollateralAmount uint64
	BorrowAmount     uint64
	SlippageBps      uint64
	// FlashFee is the fee the lending program takes on the flash loan. It is
	// reported as its own line item.
	FlashFee uint64
	Offset   int
}

type LeverageAccounts struct {
	// FlashHolding receives the flash loan and the borrow that pays it back.
	FlashHolding        solana.PublicKey
	SwapIntermediate    solana.PublicKey
	CollateralLiquidity solana.PublicKey
	CollateralTokens    solana.PublicKey
	// RepaySource defaults to FlashHolding.
	RepaySource   solana.PublicKey
	SwapAuthority solana.PublicKey
}

// Leverage builds the six stage leverage bundle for pos. pos itself is left
// untouched; the bundle carries the projected state.
func (s *Sequencer) Leverage(pos *Position, p LeverageParams, a LeverageAccounts) (*Bundle, error) {
	if p.FlashAmount == 0 || p.BorrowAmount == 0 || p.DepositAmount == 0 || p.CollateralAmount == 0 {
		return nil, fmt.Errorf("%w: leverage amounts must be positive", ErrInvalidAmount)
	}
	if p.FlashAmount == MaxAmount || p.BorrowAmount == MaxAmount {
		return nil, fmt.Errorf("%w: flash and borrow amounts must be explicit", ErrInvalidAmount)
	}
	flashReserve, err := s.market.Reserve(p.FlashAsset)
	if err != nil {
		return nil, err
	}
	collateralReserve, err := s.market.Reserve(p.CollateralAsset)
	if err != nil {
		return nil, err
	}
	if a.FlashHolding.IsZero() {
		return nil, fmt.Errorf("%w: flash holding account", ErrMissingAccount)
	}
	repaySource := a.RepaySource
	if repaySource.IsZero() {
		repaySource = a.FlashHolding
	}
	swapAuthority := a.SwapAuthority
	if swapAuthority.IsZero() {
		swapAuthority = s.owner
	}
	flash, err := s.FlashBorrow(p.FlashAsset, a.FlashHolding, p.FlashAmount)
	if err != nil {
		return nil, err
	}
	swapSteps, _, err := mockswap.Compose(mockswap.Params{
		Owner:         s.owner,
		Source:        a.FlashHolding,
		Intermediate:  a.SwapIntermediate,
		Mint:          collateralReserve.LiquidityMint,
		Destination:   a.CollateralLiquidity,
		MintAuthority: swapAuthority,
		Amount:        p.FlashAmount,
		SlippageBps:   p.SlippageBps,
	})
	if err != nil {
		return nil, err
	}
	swap := &Sequence{Goal: program.OpMintTo, Asset: p.CollateralAsset, Steps: swapSteps}
	deposit, err := s.DepositLiquidity(p.CollateralAsset, a.CollateralLiquidity, a.CollateralTokens, p.DepositAmount)
	if err != nil {
		return nil, err
	}
	collateral, err := s.DepositCollateral(pos, p.CollateralAsset, a.CollateralTokens, p.CollateralAmount)
	if err != nil {
		return nil, err
	}
	projected := *pos
	projected.State = collateral.State
	borrow, err := s.borrow(&projected, p.FlashAsset, a.FlashHolding, p.BorrowAmount, false)
	if err != nil {
		return nil, err
	}
	index := p.Offset + len(flash.Steps) + len(swap.Steps) + len(deposit.Steps) + len(collateral.Steps) + len(borrow.Steps)
	if index > 255 {
		return nil, fmt.Errorf("%w: %d instructions", ErrBundleShape, index+1)
	}
	repay, err := s.FlashRepay(p.FlashAsset, repaySource, p.FlashAmount, uint8(p.Offset))
	if err != nil {
		return nil, err
	}
	stages := []Stage{
		{Name: StageFlashBorrow, Sequence: flash},
		{Name: StageSwap, Sequence: swap},
		{Name: StageDepositLiquidity, Sequence: deposit},
		{Name: StageDepositCollateral, Sequence: collateral},
		{Name: StageBorrow, Sequence: borrow},
		{Name: StageFlashRepay, Sequence: repay},
	}
	b, err := NewBundle(p.Offset, stages...)
	if err != nil {
		return nil, err
	}
	if p.FlashFee > 0 {
		b.Fees = append(b.Fees, LineItem{Asset: flashReserve.Asset, Leg: LegFee, Amount: p.FlashFee})
		if err := b.checkCoverage(); err != nil {
			return nil, err
		}
	}
	return b, nil
}
