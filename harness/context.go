package harness

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/klend-harness/klend"
	"github.com/klend-harness/program"
	"github.com/klend-harness/utils"
	"go.uber.org/zap"
)

// Context is one test run against a ledger: the market under test and an
// admin wallet that holds the mint authorities taken over by the fixtures.
type Context struct {
	exec   Executor
	market *klend.Market
	admin  *User
	logger *zap.SugaredLogger
}

func NewContext(exec Executor, market *klend.Market, admin solana.PrivateKey, logger *zap.SugaredLogger) *Context {
	if logger == nil {
		logger = utils.NopLog()
	}
	c := &Context{
		exec:   exec,
		market: market,
		logger: logger,
	}
	c.admin = c.NewUser(admin)
	return c
}

func (c *Context) Market() *klend.Market {
	return c.market
}

func (c *Context) Admin() *User {
	return c.admin
}

func (c *Context) NewUser(wallet solana.PrivateKey) *User {
	return &User{
		exec:   c.exec,
		market: c.market,
		seq:    klend.NewSequencer(c.market, wallet.PublicKey()),
		wallet: wallet,
		logger: c.logger,
	}
}

// Fund gives user amount of asset: lamports transferred from the admin, or
// tokens minted by the admin into the user's associated account.
func (c *Context) Fund(ctx context.Context, user *User, asset klend.Asset, amount uint64) error {
	stage := "fund"
	if asset.Native() {
		ix, err := system.NewTransferInstruction(amount, c.admin.PublicKey(), user.PublicKey()).ValidateAndBuild()
		if err != nil {
			return klend.NewStageError(stage, user.PublicKey(), err)
		}
		step, err := program.Wrap(program.OpTransfer, ix, "funding", "recipient")
		if err != nil {
			return klend.NewStageError(stage, user.PublicKey(), err)
		}
		_, err = c.admin.submit(ctx, stage, []*program.Instruction{step})
		return err
	}
	reserve, err := c.market.Reserve(asset)
	if err != nil {
		return klend.NewStageError(stage, user.PublicKey(), err)
	}
	destination, err := c.admin.associated(user.PublicKey(), reserve.LiquidityMint)
	if err != nil {
		return klend.NewStageError(stage, user.PublicKey(), err)
	}
	ix, err := token.NewMintToInstruction(amount, reserve.LiquidityMint, destination.address, c.admin.PublicKey(), []solana.PublicKey{}).ValidateAndBuild()
	if err != nil {
		return klend.NewStageError(stage, destination.address, err)
	}
	step, err := program.Wrap(program.OpMintTo, ix, "mint", "destination", "authority")
	if err != nil {
		return klend.NewStageError(stage, destination.address, err)
	}
	if err := c.admin.open(ctx, stage, destination); err != nil {
		return err
	}
	_, err = c.admin.submit(ctx, stage, []*program.Instruction{step})
	return err
}
