package harness

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/klend-harness/klend"
	"github.com/klend-harness/program"
)

// holding is a token account an operation is about to use: an associated
// account, or a fresh keypair account (wrapped SOL) that does not exist yet.
type holding struct {
	address  solana.PublicKey
	owner    solana.PublicKey
	mint     solana.PublicKey
	key      solana.PrivateKey
	lamports uint64
}

func (u *User) associated(owner, mint solana.PublicKey) (*holding, error) {
	address, err := klend.TokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	return &holding{address: address, owner: owner, mint: mint}, nil
}

// fresh returns a new token account for mint. For the native mint amount
// lamports are wrapped into it on creation.
func (u *User) fresh(mint solana.PublicKey, amount uint64) *holding {
	key := solana.NewWallet().PrivateKey
	lamports := uint64(program.TokenAccountRent)
	if mint.Equals(program.WSOL) {
		lamports += amount
	}
	return &holding{
		address:  key.PublicKey(),
		owner:    u.PublicKey(),
		mint:     mint,
		key:      key,
		lamports: lamports,
	}
}

// liquidity is where the reserve's liquidity token comes from or goes to:
// a fresh wrapped account for SOL, the associated account otherwise.
func (u *User) liquidity(reserve *klend.Reserve, amount uint64) (*holding, error) {
	if reserve.Asset.Native() {
		return u.fresh(program.WSOL, amount), nil
	}
	return u.associated(u.PublicKey(), reserve.LiquidityMint)
}

func (u *User) createSteps(h *holding) ([]*program.Instruction, error) {
	if h.key == nil {
		ix, err := associatedtokenaccount.NewCreateInstruction(u.PublicKey(), h.owner, h.mint).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("create associated account %s: %w", h.address, err)
		}
		step, err := program.Wrap(program.OpCreateATA, ix, "payer", "account", "wallet", "mint")
		if err != nil {
			return nil, err
		}
		return []*program.Instruction{step}, nil
	}
	create, err := system.NewCreateAccountInstruction(h.lamports, program.TokenAccountSize, program.Token, u.PublicKey(), h.address).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", h.address, err)
	}
	init, err := token.NewInitializeAccountInstruction(h.address, h.mint, h.owner, program.SysRent).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("init token account %s: %w", h.address, err)
	}
	createStep, err := program.Wrap(program.OpCreateAccount, create, "funding", "account")
	if err != nil {
		return nil, err
	}
	initStep, err := program.Wrap(program.OpInitTokenAccount, init, "account", "mint", "owner", "rent")
	if err != nil {
		return nil, err
	}
	return []*program.Instruction{createStep, initStep}, nil
}

// open creates the holdings that do not exist yet in one transaction paid by
// the user.
func (u *User) open(ctx context.Context, stage string, holdings ...*holding) error {
	steps := make([]*program.Instruction, 0)
	signers := make([]solana.PrivateKey, 0)
	seen := make(map[solana.PublicKey]bool)
	for _, h := range holdings {
		if h == nil || seen[h.address] {
			continue
		}
		seen[h.address] = true
		if h.key == nil {
			account, err := u.exec.GetAccount(ctx, h.address)
			if err != nil {
				return klend.NewStageError(stage, h.address, err)
			}
			if account != nil {
				continue
			}
		} else {
			signers = append(signers, h.key)
		}
		more, err := u.createSteps(h)
		if err != nil {
			return klend.NewStageError(stage, h.address, err)
		}
		steps = append(steps, more...)
	}
	if len(steps) == 0 {
		return nil
	}
	_, err := u.submit(ctx, stage+"-accounts", steps, signers...)
	return err
}

// balance returns the token amount in address, zero when it does not exist.
func (u *User) balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	account, err := u.exec.GetAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	return u.exec.GetTokenBalance(ctx, address)
}
