package harness

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/backend"
)

// Executor is the ledger the harness drives. backend.Backend is the RPC
// implementation; tests use an in-memory fake.
type Executor interface {
	Submit(ctx context.Context, label string, signers []solana.PrivateKey, ins []solana.Instruction) (*backend.Receipt, error)
	Simulate(ctx context.Context, label string, signers []solana.PrivateKey, ins []solana.Instruction) (*backend.Receipt, error)
	AdvanceClock(ctx context.Context) error
	GetAccount(ctx context.Context, address solana.PublicKey) (*backend.Account, error)
	GetTokenBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
}

var _ Executor = (*backend.Backend)(nil)
