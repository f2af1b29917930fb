package klend

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrUnsupportedAsset       = errors.New("unsupported asset")
	ErrMissingAccount         = errors.New("missing account")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrHoldingAccountMismatch = errors.New("flash repay source is not the flash borrow holding account")
	ErrBundleShape            = errors.New("malformed leverage bundle")
	ErrOrdering               = errors.New("refresh ordering violated")
)

// StageError tells the caller which stage failed and which account it was
// working on when it did.
type StageError struct {
	Stage   string
	Account solana.PublicKey
	Err     error
}

func (e *StageError) Error() string {
	if e.Account.IsZero() {
		return fmt.Sprintf("stage %s: %s", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s (account %s): %s", e.Stage, e.Account, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage string, account solana.PublicKey, err error) error {
	if err == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return err
	}
	return &StageError{Stage: stage, Account: account, Err: err}
}
