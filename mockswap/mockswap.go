package mockswap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/klend-harness/program"
	"github.com/shopspring/decimal"
)

const BpsDenominator = 10000

var ErrSlippage = errors.New("slippage bps must be positive")

// Params describes one mock swap. The source asset leaves Source for
// Intermediate and the destination asset is minted into Destination by
// MintAuthority, so the fixtures must hand the mint authority to the caller.
type Params struct {
	Owner         solana.PublicKey
	Source        solana.PublicKey
	Intermediate  solana.PublicKey
	Mint          solana.PublicKey
	Destination   solana.PublicKey
	MintAuthority solana.PublicKey
	Amount        uint64
	SlippageBps   uint64
}

// Quote returns amount*10000/slippageBps rounded down.
func Quote(amount, slippageBps uint64) (uint64, error) {
	if slippageBps == 0 {
		return 0, ErrSlippage
	}
	in := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
	out, _ := in.Mul(decimal.NewFromInt(BpsDenominator)).QuoRem(decimal.NewFromBigInt(new(big.Int).SetUint64(slippageBps), 0), 0)
	value := out.BigInt()
	if !value.IsUint64() {
		return 0, fmt.Errorf("swap output %s overflows u64", out)
	}
	return value.Uint64(), nil
}

// Compose returns the transfer and mint steps of the swap and the amount the
// destination is credited with.
func Compose(p Params) ([]*program.Instruction, uint64, error) {
	out, err := Quote(p.Amount, p.SlippageBps)
	if err != nil {
		return nil, 0, err
	}
	transfer, err := token.NewTransferInstruction(p.Amount, p.Source, p.Intermediate, p.Owner, []solana.PublicKey{}).ValidateAndBuild()
	if err != nil {
		return nil, 0, fmt.Errorf("swap transfer: %w", err)
	}
	mint, err := token.NewMintToInstruction(out, p.Mint, p.Destination, p.MintAuthority, []solana.PublicKey{}).ValidateAndBuild()
	if err != nil {
		return nil, 0, fmt.Errorf("swap mint: %w", err)
	}
	steps := make([]*program.Instruction, 0, 2)
	ix, err := program.Wrap(program.OpTokenTransfer, transfer, "source", "destination", "owner")
	if err != nil {
		return nil, 0, err
	}
	steps = append(steps, ix)
	ix, err = program.Wrap(program.OpMintTo, mint, "mint", "destination", "authority")
	if err != nil {
		return nil, 0, err
	}
	steps = append(steps, ix)
	return steps, out, nil
}
