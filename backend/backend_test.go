package backend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/klend-harness/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSignature = solana.MustSignatureFromBase58("5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW")

type mockRPCClient struct {
	sendTransactionFunc      func(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	simulateFunc             func(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	getSignatureStatusesFunc func(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	getTransactionFunc       func(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	getAccountInfoFunc       func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	tokenBalance             string
	slots                    []uint64
	sentTransactions         []*solana.Transaction
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash: solana.MustHashFromBase58("4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM"),
		},
	}, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.sentTransactions = append(m.sentTransactions, transaction)
	if m.sendTransactionFunc != nil {
		return m.sendTransactionFunc(ctx, transaction, opts)
	}
	return testSignature, nil
}

func (m *mockRPCClient) SimulateTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	return m.simulateFunc(ctx, transaction, opts)
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.getSignatureStatusesFunc != nil {
		return m.getSignatureStatusesFunc(ctx, searchTransactionHistory, transactionSignatures...)
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{
			{Slot: 77, ConfirmationStatus: rpc.ConfirmationStatusFinalized},
		},
	}, nil
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if m.getTransactionFunc != nil {
		return m.getTransactionFunc(ctx, txSig, opts)
	}
	return nil, rpc.ErrNotFound
}

func (m *mockRPCClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	return m.getAccountInfoFunc(ctx, account, opts)
}

func (m *mockRPCClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: m.tokenBalance}}, nil
}

func (m *mockRPCClient) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	if len(m.slots) == 0 {
		return 0, errors.New("no slot")
	}
	slot := m.slots[0]
	if len(m.slots) > 1 {
		m.slots = m.slots[1:]
	}
	return slot, nil
}

func testInstructions(t *testing.T, owner solana.PublicKey) []solana.Instruction {
	reserve := solana.NewWallet().PublicKey()
	refresh := &program.Instruction{
		Op:          program.OpRefreshReserve,
		IsProgramID: program.KLend,
		IsRoles:     []program.Role{program.Writable("reserve", reserve)},
		IsData:      []byte{1},
	}
	obligation := solana.NewWallet().PublicKey()
	borrow := &program.Instruction{
		Op:          program.OpBorrow,
		IsProgramID: program.KLend,
		IsRoles: []program.Role{
			program.Signer("owner", owner, true),
			program.Writable("obligation", obligation),
		},
		IsData: []byte{2},
	}
	return []solana.Instruction{refresh, borrow}
}

func instructionError(index interface{}, detail interface{}) map[string]interface{} {
	return map[string]interface{}{
		"InstructionError": []interface{}{index, detail},
	}
}

func TestDecodeTransactionError(t *testing.T) {
	index, detail := decodeTransactionError(instructionError(json.Number("3"), map[string]interface{}{"Custom": json.Number("6018")}))
	assert.Equal(t, 3, index)
	assert.Equal(t, `{"Custom":6018}`, detail)

	index, detail = decodeTransactionError(instructionError(float64(1), "InvalidAccountData"))
	assert.Equal(t, 1, index)
	assert.Equal(t, "InvalidAccountData", detail)

	index, detail = decodeTransactionError("BlockhashNotFound")
	assert.Equal(t, -1, index)
	assert.Equal(t, "BlockhashNotFound", detail)

	index, detail = decodeTransactionError(map[string]interface{}{"InsufficientFundsForRent": map[string]interface{}{"account_index": float64(2)}})
	assert.Equal(t, -1, index)
	assert.Equal(t, `{"InsufficientFundsForRent":{"account_index":2}}`, detail)
}

func TestSubmitPreflightRejection(t *testing.T) {
	wallet := solana.NewWallet()
	ins := testInstructions(t, wallet.PublicKey())
	client := &mockRPCClient{
		sendTransactionFunc: func(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
			return solana.Signature{}, &jsonrpc.RPCError{
				Code:    -32002,
				Message: "Transaction simulation failed",
				Data: map[string]interface{}{
					"err":  instructionError(json.Number("1"), map[string]interface{}{"Custom": json.Number("6018")}),
					"logs": []interface{}{"Program KLend invoke [1]", "Program log: Error: ReserveStale"},
				},
			}
		},
	}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	_, err := be.Submit(context.Background(), "borrow", []solana.PrivateKey{wallet.PrivateKey}, ins)

	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Index)
	assert.Equal(t, program.OpBorrow, serr.Op)
	obligation, _ := ins[1].(*program.Instruction).Role("obligation")
	assert.Equal(t, obligation, serr.Account)
	assert.Equal(t, `{"Custom":6018}`, serr.Detail)
	assert.Len(t, serr.Logs, 2)
	code, ok := serr.CustomCode()
	assert.True(t, ok)
	assert.Equal(t, uint32(6018), code)
	assert.Contains(t, serr.Error(), "instruction 1 (borrow")
	assert.Len(t, client.sentTransactions, 1)
}

func TestSubmitTransportError(t *testing.T) {
	wallet := solana.NewWallet()
	client := &mockRPCClient{
		sendTransactionFunc: func(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
			return solana.Signature{}, errors.New("connection refused")
		},
	}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	_, err := be.Submit(context.Background(), "refresh", []solana.PrivateKey{wallet.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, -1, serr.Index)
	assert.ErrorContains(t, err, "connection refused")
	_, ok := serr.CustomCode()
	assert.False(t, ok)
}

func TestSubmitConfirms(t *testing.T) {
	wallet := solana.NewWallet()
	calls := 0
	client := &mockRPCClient{
		getSignatureStatusesFunc: func(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			calls++
			if calls < 3 {
				return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
			}
			return &rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{{Slot: 91, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}},
			}, nil
		},
	}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	be.SetConfirm(5, time.Millisecond)
	receipt, err := be.Submit(context.Background(), "deposit", []solana.PrivateKey{wallet.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, testSignature, receipt.Signature)
	assert.Equal(t, uint64(91), receipt.Slot)
	assert.Equal(t, 3, calls)

	require.Len(t, client.sentTransactions, 1)
	trx := client.sentTransactions[0]
	assert.Equal(t, wallet.PublicKey(), trx.Message.AccountKeys[0])
	assert.Len(t, trx.Signatures, 1)
	assert.Len(t, trx.Message.Instructions, 2)
}

func TestSubmitLandedWithError(t *testing.T) {
	wallet := solana.NewWallet()
	client := &mockRPCClient{
		getSignatureStatusesFunc: func(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{{
					Slot:               12,
					ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
					Err:                instructionError(float64(0), "InvalidAccountData"),
				}},
			}, nil
		},
		getTransactionFunc: func(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
			return &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{LogMessages: []string{"Program log: bad reserve"}}}, nil
		},
	}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	_, err := be.Submit(context.Background(), "refresh", []solana.PrivateKey{wallet.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 0, serr.Index)
	assert.Equal(t, program.OpRefreshReserve, serr.Op)
	assert.Equal(t, testSignature, serr.Signature)
	assert.Equal(t, []string{"Program log: bad reserve"}, serr.Logs)
}

func TestSubmitNotConfirmed(t *testing.T) {
	wallet := solana.NewWallet()
	client := &mockRPCClient{
		getSignatureStatusesFunc: func(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusProcessed}},
			}, nil
		},
	}
	be := NewBackend(client, "", rpc.CommitmentFinalized)
	be.SetConfirm(2, time.Millisecond)
	_, err := be.Submit(context.Background(), "refresh", []solana.PrivateKey{wallet.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Len(t, client.sentTransactions, 1)
}

func TestSubmitNeedsSigner(t *testing.T) {
	wallet := solana.NewWallet()
	be := NewBackend(&mockRPCClient{}, "", rpc.CommitmentConfirmed)
	_, err := be.Submit(context.Background(), "borrow", nil, testInstructions(t, wallet.PublicKey()))
	assert.ErrorContains(t, err, "no signers")

	other := solana.NewWallet()
	_, err = be.Submit(context.Background(), "borrow", []solana.PrivateKey{other.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	assert.ErrorContains(t, err, "sign transaction")
}

func TestSimulate(t *testing.T) {
	wallet := solana.NewWallet()
	units := uint64(5000)
	client := &mockRPCClient{
		simulateFunc: func(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
			assert.True(t, opts.ReplaceRecentBlockhash)
			return &rpc.SimulateTransactionResponse{
				Value: &rpc.SimulateTransactionResult{Logs: []string{"ok"}, UnitsConsumed: &units},
			}, nil
		},
	}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	receipt, err := be.Simulate(context.Background(), "borrow", []solana.PrivateKey{wallet.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), receipt.UnitsConsumed)
	assert.Empty(t, client.sentTransactions)

	client.simulateFunc = func(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
		return &rpc.SimulateTransactionResponse{
			Value: &rpc.SimulateTransactionResult{
				Err:  instructionError(float64(1), map[string]interface{}{"Custom": float64(6003)}),
				Logs: []string{"Program log: Error: ObligationStale"},
			},
		}, nil
	}
	_, err = be.Simulate(context.Background(), "borrow", []solana.PrivateKey{wallet.PrivateKey}, testInstructions(t, wallet.PublicKey()))
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	code, _ := serr.CustomCode()
	assert.Equal(t, uint32(6003), code)
	assert.Equal(t, program.OpBorrow, serr.Op)
}

func TestGetAccount(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	client := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
			if !account.Equals(address) {
				return nil, rpc.ErrNotFound
			}
			return &rpc.GetAccountInfoResult{
				Value: &rpc.Account{
					Lamports: 2039280,
					Owner:    program.Token,
					Data:     rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3}),
				},
			}, nil
		},
		tokenBalance: "6666666666666",
	}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	account, err := be.GetAccount(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, uint64(2039280), account.Lamports)
	assert.Equal(t, program.Token, account.Owner)
	assert.Equal(t, []byte{1, 2, 3}, account.Data)

	missing, err := be.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Nil(t, missing)

	balance, err := be.GetTokenBalance(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, uint64(6666666666666), balance)
}

func TestAdvanceClockPolls(t *testing.T) {
	client := &mockRPCClient{slots: []uint64{10, 10, 10, 11}}
	be := NewBackend(client, "", rpc.CommitmentConfirmed)
	require.NoError(t, be.AdvanceClock(context.Background()))

	stuck := &mockRPCClient{slots: []uint64{10}}
	be = NewBackend(stuck, "", rpc.CommitmentConfirmed)
	be.SetSlotTimeout(300 * time.Millisecond)
	assert.ErrorContains(t, be.AdvanceClock(context.Background()), "clock stuck at slot 10")
}
