package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type Account struct {
	PubKey     solana.PublicKey
	Lamports   uint64
	Owner      solana.PublicKey
	Data       []byte
	Executable bool
	Height     uint64
}

// GetAccount returns nil without an error when the account does not exist.
func (backend *Backend) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	result, err := backend.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: backend.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if result == nil || result.Value == nil {
		return nil, nil
	}
	account := &Account{
		PubKey:     address,
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
		Height:     result.Context.Slot,
	}
	if result.Value.Data != nil {
		account.Data = result.Value.Data.GetBinary()
	}
	return account, nil
}

func (backend *Backend) GetTokenBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	result, err := backend.rpcClient.GetTokenAccountBalance(ctx, address, backend.commitment)
	if err != nil {
		return 0, fmt.Errorf("get token balance %s: %w", address, err)
	}
	if result == nil || result.Value == nil {
		return 0, fmt.Errorf("get token balance %s: empty response", address)
	}
	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("get token balance %s: %w", address, err)
	}
	return amount, nil
}
