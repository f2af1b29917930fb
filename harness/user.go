package harness

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/backend"
	"github.com/klend-harness/klend"
	"github.com/klend-harness/mockswap"
	"github.com/klend-harness/program"
	"go.uber.org/zap"
)

// SwapSlippageBps is the rate the mock swap mints the collateral asset at:
// 10000 in for every 12000 bps, i.e. 1 SOL buys 0.8333 jitoSOL.
const SwapSlippageBps = 12000

// User drives the lending program for one wallet. Every operation composes
// its sequence first, so configuration errors surface before anything is
// submitted, then creates the token accounts it needs and submits the
// sequence as one transaction.
type User struct {
	exec   Executor
	market *klend.Market
	seq    *klend.Sequencer
	wallet solana.PrivateKey
	logger *zap.SugaredLogger
	dryRun bool
}

func (u *User) PublicKey() solana.PublicKey {
	return u.wallet.PublicKey()
}

func (u *User) Sequencer() *klend.Sequencer {
	return u.seq
}

// SetDryRun makes the user simulate its transactions instead of sending them.
func (u *User) SetDryRun(dryRun bool) {
	u.dryRun = dryRun
}

func (u *User) signers(extra ...solana.PrivateKey) []solana.PrivateKey {
	return append([]solana.PrivateKey{u.wallet}, extra...)
}

func failedAccount(err error) solana.PublicKey {
	var serr *backend.SubmissionError
	if errors.As(err, &serr) {
		return serr.Account
	}
	return solana.PublicKey{}
}

func toInstructions(steps []*program.Instruction) []solana.Instruction {
	ins := make([]solana.Instruction, 0, len(steps))
	for _, step := range steps {
		ins = append(ins, step)
	}
	return ins
}

// send hands ins to the executor and advances the clock once they landed.
func (u *User) send(ctx context.Context, label string, ins []solana.Instruction, extra ...solana.PrivateKey) (*backend.Receipt, error) {
	if u.dryRun {
		return u.exec.Simulate(ctx, label, u.signers(extra...), ins)
	}
	receipt, err := u.exec.Submit(ctx, label, u.signers(extra...), ins)
	if err != nil {
		return nil, err
	}
	if err := u.exec.AdvanceClock(ctx); err != nil {
		return nil, fmt.Errorf("advance clock: %w", err)
	}
	return receipt, nil
}

func (u *User) submit(ctx context.Context, stage string, steps []*program.Instruction, extra ...solana.PrivateKey) (*backend.Receipt, error) {
	if err := klend.CheckOrdering(steps); err != nil {
		return nil, klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	u.logger.Infof("%s %s: %v", u.PublicKey(), stage, opNames(steps))
	receipt, err := u.send(ctx, stage, toInstructions(steps), extra...)
	if err != nil {
		return nil, klend.NewStageError(stage, failedAccount(err), err)
	}
	return receipt, nil
}

func opNames(steps []*program.Instruction) []program.Op {
	ops := make([]program.Op, 0, len(steps))
	for _, step := range steps {
		ops = append(ops, step.Op)
	}
	return ops
}

func (u *User) submitSequence(ctx context.Context, seq *klend.Sequence, extra ...solana.PrivateKey) error {
	_, err := u.submit(ctx, string(seq.Goal), seq.Steps, extra...)
	return err
}

// Balance is the wallet's lamport balance.
func (u *User) Balance(ctx context.Context) (uint64, error) {
	account, err := u.exec.GetAccount(ctx, u.PublicKey())
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	return account.Lamports, nil
}

// TokenBalance is the amount in the wallet's associated account for mint.
func (u *User) TokenBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	address, err := klend.TokenAddress(u.PublicKey(), mint)
	if err != nil {
		return 0, err
	}
	return u.balance(ctx, address)
}

// InitMetadata creates the user metadata account. Its lookup table address
// is derived from the slot the clock sysvar reports.
func (u *User) InitMetadata(ctx context.Context) error {
	stage := string(program.OpInitMetadata)
	clock, err := u.exec.GetAccount(ctx, program.SysClock)
	if err != nil {
		return klend.NewStageError(stage, program.SysClock, err)
	}
	if clock == nil || len(clock.Data) < 8 {
		return klend.NewStageError(stage, program.SysClock, fmt.Errorf("%w: clock sysvar", klend.ErrMissingAccount))
	}
	slot := binary.LittleEndian.Uint64(clock.Data[:8])
	lookupTable, err := klend.LookupTableAddress(u.PublicKey(), slot)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	seq, err := u.seq.InitMetadata(lookupTable)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	return u.submitSequence(ctx, seq)
}

// InitPosition opens the position (tag, id) with default seed accounts.
func (u *User) InitPosition(ctx context.Context, tag, id uint8) (*klend.Position, error) {
	pos, seq, err := u.seq.InitPosition(tag, id, solana.PublicKey{}, solana.PublicKey{})
	if err != nil {
		return nil, klend.NewStageError(string(program.OpInitPosition), solana.PublicKey{}, err)
	}
	if err := u.submitSequence(ctx, seq); err != nil {
		return nil, err
	}
	return pos, nil
}

func (u *User) RefreshReserve(ctx context.Context, asset klend.Asset) error {
	seq, err := u.seq.RefreshReserve(asset)
	if err != nil {
		return klend.NewStageError(string(program.OpRefreshReserve), solana.PublicKey{}, err)
	}
	return u.submitSequence(ctx, seq)
}

func (u *User) RefreshPosition(ctx context.Context, pos *klend.Position) error {
	seq, err := u.seq.RefreshPosition(pos)
	if err != nil {
		return klend.NewStageError(string(program.OpRefreshPosition), pos.Address, err)
	}
	return u.submitSequence(ctx, seq)
}

// DepositLiquidity turns amount of the asset into reserve collateral tokens
// held in the user's associated collateral account.
func (u *User) DepositLiquidity(ctx context.Context, asset klend.Asset, amount uint64) error {
	stage := string(program.OpDepositLiquidity)
	reserve, err := u.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	source, err := u.liquidity(reserve, amount)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	destination, err := u.associated(u.PublicKey(), reserve.CollateralMint)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	seq, err := u.seq.DepositLiquidity(asset, source.address, destination.address, amount)
	if err != nil {
		return klend.NewStageError(stage, reserve.Address, err)
	}
	if err := u.open(ctx, stage, source, destination); err != nil {
		return err
	}
	return u.submitSequence(ctx, seq)
}

// RedeemCollateral redeems every collateral token the user holds for the
// asset.
func (u *User) RedeemCollateral(ctx context.Context, asset klend.Asset) error {
	stage := string(program.OpRedeemCollateral)
	reserve, err := u.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	source, err := u.associated(u.PublicKey(), reserve.CollateralMint)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	destination, err := u.liquidity(reserve, 0)
	if err != nil {
		return klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	amount, err := u.balance(ctx, source.address)
	if err != nil {
		return klend.NewStageError(stage, source.address, err)
	}
	if amount == 0 {
		return klend.NewStageError(stage, source.address, fmt.Errorf("%w: no %s collateral to redeem", klend.ErrInvalidAmount, asset))
	}
	seq, err := u.seq.RedeemCollateral(asset, source.address, destination.address, amount)
	if err != nil {
		return klend.NewStageError(stage, reserve.Address, err)
	}
	if err := u.open(ctx, stage, destination); err != nil {
		return err
	}
	return u.submitSequence(ctx, seq)
}

// DepositCollateral moves the whole collateral token balance into pos and
// checks nothing was left behind.
func (u *User) DepositCollateral(ctx context.Context, pos *klend.Position, asset klend.Asset) error {
	stage := string(program.OpDepositCollateral)
	reserve, err := u.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	source, err := u.associated(u.PublicKey(), reserve.CollateralMint)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	amount, err := u.balance(ctx, source.address)
	if err != nil {
		return klend.NewStageError(stage, source.address, err)
	}
	if amount == 0 {
		return klend.NewStageError(stage, source.address, fmt.Errorf("%w: no %s collateral to deposit", klend.ErrInvalidAmount, asset))
	}
	seq, err := u.seq.DepositCollateral(pos, asset, source.address, amount)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	if err := u.submitSequence(ctx, seq); err != nil {
		return err
	}
	pos.Apply(seq)
	if u.dryRun {
		return nil
	}
	left, err := u.balance(ctx, source.address)
	if err != nil {
		return klend.NewStageError(stage, source.address, err)
	}
	if left != 0 {
		return klend.NewStageError(stage, source.address, fmt.Errorf("%d collateral tokens left after deposit", left))
	}
	return nil
}

// WithdrawCollateral withdraws everything the position holds of asset.
func (u *User) WithdrawCollateral(ctx context.Context, pos *klend.Position, asset klend.Asset) error {
	stage := string(program.OpWithdrawCollateral)
	reserve, err := u.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	destination, err := u.associated(u.PublicKey(), reserve.CollateralMint)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	seq, err := u.seq.WithdrawCollateral(pos, asset, destination.address, klend.MaxAmount)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	if err := u.open(ctx, stage, destination); err != nil {
		return err
	}
	if err := u.submitSequence(ctx, seq); err != nil {
		return err
	}
	pos.Apply(seq)
	return nil
}

// Borrow borrows amount of the asset named by symbol. Borrowed SOL ends up
// in the wallet as lamports.
func (u *User) Borrow(ctx context.Context, pos *klend.Position, symbol string, amount uint64) error {
	stage := string(program.OpBorrow)
	asset, err := klend.ParseAsset(symbol)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	reserve, err := u.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	destination, err := u.liquidity(reserve, 0)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	seq, err := u.seq.Borrow(pos, asset, destination.address, amount)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	if err := u.open(ctx, stage, destination); err != nil {
		return err
	}
	if err := u.submitSequence(ctx, seq); err != nil {
		return err
	}
	pos.Apply(seq)
	return nil
}

// Repay pays back amount of the asset named by symbol. SOL is wrapped from
// the wallet first, so it cannot repay MaxAmount.
func (u *User) Repay(ctx context.Context, pos *klend.Position, symbol string, amount uint64) error {
	stage := string(program.OpRepay)
	asset, err := klend.ParseAsset(symbol)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	if asset.Native() && amount == klend.MaxAmount {
		return klend.NewStageError(stage, pos.Address, fmt.Errorf("%w: cannot wrap %d lamports", klend.ErrInvalidAmount, amount))
	}
	reserve, err := u.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	source, err := u.liquidity(reserve, amount)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	seq, err := u.seq.Repay(pos, asset, source.address, amount)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	if err := u.open(ctx, stage, source); err != nil {
		return err
	}
	if err := u.submitSequence(ctx, seq); err != nil {
		return err
	}
	pos.Apply(seq)
	return nil
}

// MockSwap swaps amount lamports for jitoSOL through the mock swap. The user
// must hold the jitoSOL mint authority. It returns the amount minted.
func (u *User) MockSwap(ctx context.Context, amount uint64) (uint64, error) {
	stage := klend.StageSwap
	reserve, err := u.market.Reserve(klend.AssetJitoSOL)
	if err != nil {
		return 0, klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	source := u.fresh(program.WSOL, amount)
	intermediate := u.fresh(program.WSOL, 0)
	destination, err := u.associated(u.PublicKey(), reserve.LiquidityMint)
	if err != nil {
		return 0, klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	steps, out, err := mockswap.Compose(mockswap.Params{
		Owner:         u.PublicKey(),
		Source:        source.address,
		Intermediate:  intermediate.address,
		Mint:          reserve.LiquidityMint,
		Destination:   destination.address,
		MintAuthority: u.PublicKey(),
		Amount:        amount,
		SlippageBps:   SwapSlippageBps,
	})
	if err != nil {
		return 0, klend.NewStageError(stage, solana.PublicKey{}, err)
	}
	if err := u.open(ctx, stage, source, intermediate, destination); err != nil {
		return 0, err
	}
	if _, err := u.submit(ctx, stage, steps); err != nil {
		return 0, err
	}
	return out, nil
}

// DefaultLeverage flashes 20 SOL, swaps it for jitoSOL, deposits 51.6
// jitoSOL and borrows the 20 SOL back. It expects about 35 jitoSOL in the
// wallet beforehand.
func DefaultLeverage() klend.LeverageParams {
	return klend.LeverageParams{
		FlashAsset:       klend.AssetSOL,
		CollateralAsset:  klend.AssetJitoSOL,
		FlashAmount:      20000000000,
		DepositAmount:    51600000000,
		CollateralAmount: 51600000000 * 10000 / 10100,
		BorrowAmount:     20000000000,
		SlippageBps:      SwapSlippageBps,
	}
}

// EnterLeverage submits the leverage bundle for pos as a single
// transaction. A rejection names the bundle stage that failed.
func (u *User) EnterLeverage(ctx context.Context, pos *klend.Position, p klend.LeverageParams) (*klend.Bundle, error) {
	flashReserve, err := u.market.Reserve(p.FlashAsset)
	if err != nil {
		return nil, klend.NewStageError(klend.StageFlashBorrow, pos.Address, err)
	}
	collateralReserve, err := u.market.Reserve(p.CollateralAsset)
	if err != nil {
		return nil, klend.NewStageError(klend.StageDepositLiquidity, pos.Address, err)
	}
	flashHolding := u.fresh(flashReserve.LiquidityMint, 0)
	intermediate := u.fresh(flashReserve.LiquidityMint, 0)
	collateralLiquidity, err := u.associated(u.PublicKey(), collateralReserve.LiquidityMint)
	if err != nil {
		return nil, klend.NewStageError(klend.StageSwap, pos.Address, err)
	}
	collateralTokens, err := u.associated(u.PublicKey(), collateralReserve.CollateralMint)
	if err != nil {
		return nil, klend.NewStageError(klend.StageDepositLiquidity, pos.Address, err)
	}
	p.Offset = 0
	bundle, err := u.seq.Leverage(pos, p, klend.LeverageAccounts{
		FlashHolding:        flashHolding.address,
		SwapIntermediate:    intermediate.address,
		CollateralLiquidity: collateralLiquidity.address,
		CollateralTokens:    collateralTokens.address,
	})
	if err != nil {
		return nil, klend.NewStageError("leverage", pos.Address, err)
	}
	if err := u.open(ctx, "leverage", flashHolding, intermediate, collateralLiquidity, collateralTokens); err != nil {
		return nil, err
	}
	u.logger.Infof("%s leverage: %d instructions in %d stages", u.PublicKey(), len(bundle.Steps()), len(bundle.Stages))
	if _, err := u.send(ctx, "leverage", bundle.Instructions()); err != nil {
		stage := "leverage"
		var serr *backend.SubmissionError
		if errors.As(err, &serr) {
			if name, ok := bundle.StageOf(serr.Index); ok {
				stage = name
			}
		}
		return nil, klend.NewStageError(stage, failedAccount(err), err)
	}
	bundle.Apply(pos)
	return bundle, nil
}

// InitFarmLink links pos to the farm of the reserve named by symbol.
func (u *User) InitFarmLink(ctx context.Context, pos *klend.Position, symbol string) error {
	stage := string(program.OpInitFarmLink)
	asset, err := klend.ParseAsset(symbol)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	seq, err := u.seq.InitFarmLink(pos, asset, 0)
	if err != nil {
		return klend.NewStageError(stage, pos.Address, err)
	}
	return u.submitSequence(ctx, seq)
}

// ReloadPosition replaces the position's state with what the obligation
// account holds on the ledger.
func (u *User) ReloadPosition(ctx context.Context, pos *klend.Position) (*klend.ObligationLayout, error) {
	account, err := u.exec.GetAccount(ctx, pos.Address)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: position %s", klend.ErrMissingAccount, pos.Address)
	}
	obligation, err := klend.DecodeObligation(account.Data)
	if err != nil {
		return nil, err
	}
	state, err := obligation.State(u.market)
	if err != nil {
		return nil, err
	}
	pos.State = state
	return obligation, nil
}
