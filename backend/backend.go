package backend

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/klend-harness/store"
	"github.com/klend-harness/utils"
	"go.uber.org/zap"
)

const (
	ConfirmAttempts = 30
	ConfirmDelay    = 500 * time.Millisecond
	SlotTimeout     = 10 * time.Second
)

// RPCClient is the part of rpc.Client the backend talks to.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	SimulateTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

// Backend submits transactions to a validator and reads accounts back. It
// never retries a rejected transaction.
type Backend struct {
	lock         sync.Mutex
	logger       *zap.SugaredLogger
	rpcClient    RPCClient
	wsEndpoint   string
	wsClient     *ws.Client
	commitment   rpc.CommitmentType
	attempts     int
	confirmDelay time.Duration
	slotTimeout  time.Duration
	store        *store.Store
	lastBH       solana.Hash
}

func NewBackend(client RPCClient, wsEndpoint string, commitment rpc.CommitmentType) *Backend {
	return &Backend{
		logger:       utils.NopLog(),
		rpcClient:    client,
		wsEndpoint:   wsEndpoint,
		commitment:   commitment,
		attempts:     ConfirmAttempts,
		confirmDelay: ConfirmDelay,
		slotTimeout:  SlotTimeout,
	}
}

func NewRPCBackend(rpcEndpoint string, wsEndpoint string, commitment rpc.CommitmentType) *Backend {
	return NewBackend(rpc.New(rpcEndpoint), wsEndpoint, commitment)
}

func (backend *Backend) SetLogger(logger *zap.SugaredLogger) {
	backend.logger = logger
}

func (backend *Backend) SetStore(s *store.Store) {
	backend.store = s
}

func (backend *Backend) SetConfirm(attempts int, delay time.Duration) {
	backend.attempts = attempts
	backend.confirmDelay = delay
}

func (backend *Backend) SetSlotTimeout(timeout time.Duration) {
	backend.slotTimeout = timeout
}

func (backend *Backend) Stop() {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	if backend.wsClient != nil {
		backend.wsClient.Close()
		backend.wsClient = nil
	}
}
