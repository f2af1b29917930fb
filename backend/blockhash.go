package backend

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// GetRecentBlockHash fetches the latest blockhash and remembers it for the
// submission log.
func (backend *Backend) GetRecentBlockHash(ctx context.Context) (solana.Hash, error) {
	result, err := backend.rpcClient.GetLatestBlockhash(ctx, backend.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if result == nil || result.Value == nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: empty response")
	}
	backend.lock.Lock()
	if backend.lastBH == result.Value.Blockhash {
		backend.logger.Debugf("blockhash %s reused, identical transactions will collide", result.Value.Blockhash)
	}
	backend.lastBH = result.Value.Blockhash
	backend.lock.Unlock()
	return result.Value.Blockhash, nil
}
