package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// AdvanceClock waits until the ledger produced a slot after the current one,
// so the next transaction sees a new clock. It uses the slot subscription
// when a websocket endpoint is set and falls back to polling.
func (backend *Backend) AdvanceClock(ctx context.Context) error {
	current, err := backend.rpcClient.GetSlot(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, backend.slotTimeout)
	defer cancel()
	if backend.wsEndpoint != "" {
		err := backend.waitSlot(ctx, current)
		if err == nil {
			return nil
		}
		backend.logger.Warnf("slot subscription: %s, polling instead", err)
	}
	return backend.pollSlot(ctx, current)
}

func (backend *Backend) subscribeSlot(ctx context.Context) (*ws.SlotSubscription, error) {
	backend.lock.Lock()
	defer backend.lock.Unlock()
	if backend.wsClient == nil {
		client, err := ws.Connect(ctx, backend.wsEndpoint)
		if err != nil {
			return nil, err
		}
		backend.wsClient = client
	}
	sub, err := backend.wsClient.SlotSubscribe()
	if err != nil {
		backend.wsClient.Close()
		backend.wsClient = nil
		return nil, err
	}
	return sub, nil
}

func (backend *Backend) waitSlot(ctx context.Context, current uint64) error {
	sub, err := backend.subscribeSlot(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		if got == nil {
			return fmt.Errorf("slot subscription closed")
		}
		if got.Slot > current {
			backend.logger.Debugf("clock advanced %d -> %d", current, got.Slot)
			return nil
		}
	}
}

func (backend *Backend) pollSlot(ctx context.Context, current uint64) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("clock stuck at slot %d: %w", current, ctx.Err())
		case <-ticker.C:
		}
		slot, err := backend.rpcClient.GetSlot(ctx, rpc.CommitmentProcessed)
		if err != nil {
			backend.logger.Warnf("get slot: %s", err)
			continue
		}
		if slot > current {
			backend.logger.Debugf("clock advanced %d -> %d", current, slot)
			return nil
		}
	}
}
