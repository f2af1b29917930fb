package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/klend-harness/program"
)

// SubmissionError reports a transaction the ledger rejected. Detail is the
// ledger's failure reason as it was sent, e.g. {"Custom":6018}.
type SubmissionError struct {
	Signature solana.Signature
	// Index is the failing instruction, -1 when the rejection is not tied to
	// one instruction.
	Index   int
	Op      program.Op
	Account solana.PublicKey
	Detail  string
	Logs    []string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Index < 0 {
		if e.Err != nil && e.Detail == "" {
			return fmt.Sprintf("transaction rejected: %s", e.Err)
		}
		return fmt.Sprintf("transaction rejected: %s", e.Detail)
	}
	op := e.Op
	if op == "" {
		op = "unknown"
	}
	return fmt.Sprintf("instruction %d (%s, account %s) failed: %s", e.Index, op, e.Account, e.Detail)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// CustomCode returns the program's custom error code when the failure carries
// one.
func (e *SubmissionError) CustomCode() (uint32, bool) {
	var detail map[string]json.Number
	if err := json.Unmarshal([]byte(e.Detail), &detail); err != nil {
		return 0, false
	}
	code, ok := detail["Custom"]
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseUint(code.String(), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(value), true
}

// newSubmissionError points the ledger's transaction error at the failing
// instruction of ins.
func newSubmissionError(raw interface{}, ins []solana.Instruction, logs []string) *SubmissionError {
	index, detail := decodeTransactionError(raw)
	e := &SubmissionError{Index: index, Detail: detail, Logs: logs}
	if index >= 0 && index < len(ins) {
		e.Op, e.Account = describe(ins[index])
	}
	return e
}

// fromSendError turns a send failure into a SubmissionError. Preflight
// rejections carry the transaction error and logs in the rpc error data.
func fromSendError(err error, ins []solana.Instruction) *SubmissionError {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if data, ok := rpcErr.Data.(map[string]interface{}); ok {
			if raw, ok := data["err"]; ok && raw != nil {
				e := newSubmissionError(raw, ins, stringSlice(data["logs"]))
				e.Err = err
				return e
			}
		}
	}
	return &SubmissionError{Index: -1, Err: err}
}

func decodeTransactionError(raw interface{}) (int, string) {
	if m, ok := raw.(map[string]interface{}); ok {
		if pair, ok := m["InstructionError"].([]interface{}); ok && len(pair) == 2 {
			if index, ok := toInt(pair[0]); ok {
				return index, verbatim(pair[1])
			}
		}
	}
	return -1, verbatim(raw)
}

func describe(ix solana.Instruction) (program.Op, solana.PublicKey) {
	if described, ok := ix.(*program.Instruction); ok {
		return described.Op, described.FirstWritable()
	}
	for _, meta := range ix.Accounts() {
		if meta.IsWritable && !meta.IsSigner {
			return "", meta.PublicKey
		}
	}
	return "", solana.PublicKey{}
}

func opsOf(ins []solana.Instruction) []string {
	ops := make([]string, 0, len(ins))
	for _, ix := range ins {
		op, _ := describe(ix)
		if op == "" {
			op = program.Op(ix.ProgramID().String())
		}
		ops = append(ops, string(op))
	}
	return ops
}

func verbatim(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func stringSlice(v interface{}) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
