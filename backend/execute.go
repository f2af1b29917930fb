package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/klend-harness/store"
)

var ErrNotConfirmed = errors.New("transaction not confirmed")

// Receipt describes a landed or simulated transaction.
type Receipt struct {
	Signature     solana.Signature
	Slot          uint64
	Logs          []string
	UnitsConsumed uint64
}

// buildTransaction signs ins with signers. The first signer pays the fees.
func (backend *Backend) buildTransaction(ctx context.Context, signers []solana.PrivateKey, ins []solana.Instruction) (*solana.Transaction, error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("build transaction: no instructions")
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("build transaction: no signers")
	}
	bh, err := backend.GetRecentBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	builder := solana.NewTransactionBuilder()
	for _, i := range ins {
		builder.AddInstruction(i)
	}
	builder.SetRecentBlockHash(bh)
	builder.SetFeePayer(signers[0].PublicKey())
	trx, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	keys := make(map[solana.PublicKey]*solana.PrivateKey, len(signers))
	for k := range signers {
		keys[signers[k].PublicKey()] = &signers[k]
	}
	_, err = trx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		return keys[key]
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return trx, nil
}

// Submit sends ins as one transaction and waits until it reaches the
// backend's commitment. A rejection comes back as *SubmissionError and is not
// retried.
func (backend *Backend) Submit(ctx context.Context, label string, signers []solana.PrivateKey, ins []solana.Instruction) (*Receipt, error) {
	submission := store.NewSubmission(label, opsOf(ins), false)
	defer backend.journal(submission)
	trx, err := backend.buildTransaction(ctx, signers, ins)
	if err != nil {
		submission.Fail(-1, err)
		return nil, err
	}
	backend.logger.Infof("submit %s: %d instructions %v", label, len(ins), submission.Ops)
	signature, err := backend.rpcClient.SendTransactionWithOpts(ctx, trx, rpc.TransactionOpts{
		PreflightCommitment: backend.commitment,
	})
	if err != nil {
		serr := fromSendError(err, ins)
		backend.logger.Errorf("submit %s rejected: %s", label, serr)
		for _, line := range serr.Logs {
			backend.logger.Debugf("  %s", line)
		}
		submission.Fail(serr.Index, serr)
		return nil, serr
	}
	receipt, err := backend.confirm(ctx, signature, ins)
	if err != nil {
		var serr *SubmissionError
		if errors.As(err, &serr) {
			submission.Signature = signature.String()
			submission.Fail(serr.Index, serr)
		} else {
			submission.Fail(-1, err)
		}
		backend.logger.Errorf("submit %s (%s) failed: %s", label, signature, err)
		return nil, err
	}
	submission.Finish(signature.String(), receipt.Slot)
	backend.logger.Infof("submit %s landed: %s at slot %d", label, signature, receipt.Slot)
	return receipt, nil
}

func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch commitment {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentConfirmed:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
	return status != ""
}

// confirm polls the signature status. It only waits, the transaction is sent
// once.
func (backend *Backend) confirm(ctx context.Context, signature solana.Signature, ins []solana.Instruction) (*Receipt, error) {
	for counter := 0; counter < backend.attempts; counter++ {
		if counter > 0 {
			select {
			case <-time.After(backend.confirmDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		result, err := backend.rpcClient.GetSignatureStatuses(ctx, true, signature)
		if err != nil {
			backend.logger.Warnf("signature status %s: %s", signature, err)
			continue
		}
		if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
			continue
		}
		status := result.Value[0]
		if status.Err != nil {
			serr := newSubmissionError(status.Err, ins, backend.transactionLogs(ctx, signature))
			serr.Signature = signature
			return nil, serr
		}
		if reached(status.ConfirmationStatus, backend.commitment) {
			return &Receipt{Signature: signature, Slot: status.Slot}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrNotConfirmed, signature, backend.attempts)
}

func (backend *Backend) transactionLogs(ctx context.Context, signature solana.Signature) []string {
	result, err := backend.rpcClient.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil || result == nil || result.Meta == nil {
		return nil
	}
	return result.Meta.LogMessages
}

// Simulate runs ins against the current bank without landing them.
func (backend *Backend) Simulate(ctx context.Context, label string, signers []solana.PrivateKey, ins []solana.Instruction) (*Receipt, error) {
	submission := store.NewSubmission(label, opsOf(ins), true)
	defer backend.journal(submission)
	trx, err := backend.buildTransaction(ctx, signers, ins)
	if err != nil {
		submission.Fail(-1, err)
		return nil, err
	}
	response, err := backend.rpcClient.SimulateTransactionWithOpts(ctx, trx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		Commitment:             backend.commitment,
		ReplaceRecentBlockhash: true,
	})
	if err != nil {
		serr := fromSendError(err, ins)
		submission.Fail(serr.Index, serr)
		return nil, serr
	}
	if response == nil || response.Value == nil {
		err := fmt.Errorf("simulate %s: empty response", label)
		submission.Fail(-1, err)
		return nil, err
	}
	result := response.Value
	for _, line := range result.Logs {
		backend.logger.Debugf("  %s", line)
	}
	if result.Err != nil {
		serr := newSubmissionError(result.Err, ins, result.Logs)
		backend.logger.Errorf("simulate %s failed: %s", label, serr)
		submission.Fail(serr.Index, serr)
		return nil, serr
	}
	receipt := &Receipt{Slot: response.Context.Slot, Logs: result.Logs}
	if result.UnitsConsumed != nil {
		receipt.UnitsConsumed = *result.UnitsConsumed
	}
	submission.Finish("", receipt.Slot)
	return receipt, nil
}

func (backend *Backend) journal(submission *store.Submission) {
	if backend.store != nil {
		backend.store.StoreSubmission(submission)
	}
}
