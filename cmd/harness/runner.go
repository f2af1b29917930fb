package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/backend"
	"github.com/klend-harness/config"
	"github.com/klend-harness/env"
	"github.com/klend-harness/harness"
	"github.com/klend-harness/klend"
	"github.com/klend-harness/store"
	"github.com/klend-harness/utils"
	"go.uber.org/zap"
)

const (
	ScenarioLending  = "lending"
	ScenarioSwap     = "swap"
	ScenarioLeverage = "leverage"
)

var scenarios = []string{ScenarioLending, ScenarioSwap, ScenarioLeverage}

type Runner struct {
	ctx     context.Context
	logger  *zap.SugaredLogger
	config  *config.Config
	backend *backend.Backend
	store   *store.Store
	env     *env.Env
	harness *harness.Context
	user    *harness.User
}

func loadKey(path string) (solana.PrivateKey, error) {
	if path == "" {
		return solana.NewWallet().PrivateKey, nil
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return key, nil
}

func NewRunner(ctx context.Context, cfg *config.Config, dryRun bool) (*Runner, error) {
	runner := &Runner{
		ctx:    ctx,
		config: cfg,
	}
	utils.SetLogOption(cfg.Log.ToLogOption())
	runner.logger = utils.NewLog(cfg.Log.LogDir, utils.HarnessLog)

	e := env.NewEnv(utils.NewLog(cfg.Log.LogDir, utils.EnvLog))
	if err := e.Load(cfg.Manifest); err != nil {
		return nil, err
	}
	runner.env = e
	market, err := e.Manifest().Market()
	if err != nil {
		return nil, err
	}

	be := backend.NewRPCBackend(cfg.Rpc, cfg.Ws, cfg.CommitmentType())
	be.SetLogger(utils.NewLog(cfg.Log.LogDir, utils.BackendLog))
	be.SetConfirm(cfg.ConfirmAttempts, time.Duration(cfg.ConfirmDelayMs)*time.Millisecond)
	if cfg.DBUrl != "" {
		s, err := store.NewStore(cfg.DBUrl, runner.logger)
		if err != nil {
			return nil, err
		}
		be.SetStore(s)
		runner.store = s
	}
	runner.backend = be

	admin, err := loadKey(cfg.AdminKey)
	if err != nil {
		return nil, err
	}
	wallet, err := loadKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	runner.harness = harness.NewContext(be, market, admin, runner.logger)
	runner.harness.Admin().SetDryRun(dryRun)
	runner.user = runner.harness.NewUser(wallet)
	runner.user.SetDryRun(dryRun)
	return runner, nil
}

func (runner *Runner) Run(names ...string) error {
	if len(names) == 0 {
		names = scenarios
	}
	runner.logger.Infof("harness has started: admin %s, user %s", runner.harness.Admin().PublicKey(), runner.user.PublicKey())
	for _, name := range names {
		var err error
		switch name {
		case ScenarioLending:
			err = runner.lending()
		case ScenarioSwap:
			err = runner.swap()
		case ScenarioLeverage:
			err = runner.leverage()
		default:
			err = fmt.Errorf("unknown scenario %q, want one of %v", name, scenarios)
		}
		if err != nil {
			runner.logger.Errorf("scenario %s failed: %s", name, err)
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		runner.logger.Infof("scenario %s passed", name)
	}
	return nil
}

func (runner *Runner) Stop() {
	runner.backend.Stop()
	runner.logger.Infof("harness has stopped......")
	runner.logger.Sync()
}

func (runner *Runner) expectTokenBalance(user *harness.User, mint solana.PublicKey, expect uint64) error {
	balance, err := user.TokenBalance(runner.ctx, mint)
	if err != nil {
		return err
	}
	if balance != expect {
		return fmt.Errorf("%s balance of %s: got %d, want %d", mint, user.PublicKey(), balance, expect)
	}
	return nil
}

// lending deposits jitoSOL as collateral, borrows and repays SOL against it
// and takes everything back out.
func (runner *Runner) lending() error {
	ctx, user := runner.ctx, runner.user
	jito, err := runner.harness.Market().Reserve(klend.AssetJitoSOL)
	if err != nil {
		return err
	}
	if err := runner.harness.Fund(ctx, user, klend.AssetSOL, 30000000000); err != nil {
		return err
	}
	if err := user.InitMetadata(ctx); err != nil {
		return err
	}
	pos, err := user.InitPosition(ctx, 0, 0)
	if err != nil {
		return err
	}
	if err := user.RefreshReserve(ctx, klend.AssetJitoSOL); err != nil {
		return err
	}
	if err := user.RefreshPosition(ctx, pos); err != nil {
		return err
	}
	if err := runner.harness.Fund(ctx, user, klend.AssetJitoSOL, 50000000000); err != nil {
		return err
	}
	if err := runner.expectTokenBalance(user, jito.LiquidityMint, 50000000000); err != nil {
		return err
	}
	if err := user.DepositLiquidity(ctx, klend.AssetJitoSOL, 50000000000); err != nil {
		return err
	}
	if err := user.DepositCollateral(ctx, pos, klend.AssetJitoSOL); err != nil {
		return err
	}
	before, err := user.Balance(ctx)
	if err != nil {
		return err
	}
	if err := user.Borrow(ctx, pos, "SOL", 20000000000); err != nil {
		return err
	}
	after, err := user.Balance(ctx)
	if err != nil {
		return err
	}
	runner.logger.Infof("sol balance before borrowing %d, after %d", before, after)
	if err := user.Repay(ctx, pos, "SOL", 20000000000); err != nil {
		return err
	}
	if err := user.WithdrawCollateral(ctx, pos, klend.AssetJitoSOL); err != nil {
		return err
	}
	if err := user.RedeemCollateral(ctx, klend.AssetJitoSOL); err != nil {
		return err
	}
	redeemed, err := user.TokenBalance(ctx, jito.LiquidityMint)
	if err != nil {
		return err
	}
	runner.logger.Infof("redeemed jitosol balance: %d", redeemed)
	return nil
}

// swap runs the mock SOL to jitoSOL swap from the admin, which holds the
// jitoSOL mint authority.
func (runner *Runner) swap() error {
	ctx, admin := runner.ctx, runner.harness.Admin()
	jito, err := runner.harness.Market().Reserve(klend.AssetJitoSOL)
	if err != nil {
		return err
	}
	before, err := admin.TokenBalance(ctx, jito.LiquidityMint)
	if err != nil {
		return err
	}
	out, err := admin.MockSwap(ctx, 8000000000000)
	if err != nil {
		return err
	}
	return runner.expectTokenBalance(admin, jito.LiquidityMint, before+out)
}

// leverage opens a leveraged jitoSOL position for the admin in one
// transaction.
func (runner *Runner) leverage() error {
	ctx, admin := runner.ctx, runner.harness.Admin()
	if err := admin.InitMetadata(ctx); err != nil {
		return err
	}
	pos, err := admin.InitPosition(ctx, 0, 0)
	if err != nil {
		return err
	}
	if err := runner.harness.Fund(ctx, admin, klend.AssetJitoSOL, 35000000000); err != nil {
		return err
	}
	bundle, err := admin.EnterLeverage(ctx, pos, harness.DefaultLeverage())
	if err != nil {
		return err
	}
	for _, item := range bundle.Effects() {
		runner.logger.Infof("leverage %s %s %d credit=%v", item.Asset, item.Leg, item.Amount, item.Credit)
	}
	if _, err := admin.ReloadPosition(ctx, pos); err != nil {
		return err
	}
	runner.logger.Infof("position %s deposits %v borrows %v", pos.Address, pos.State.Deposits, pos.State.Borrows)
	return nil
}
