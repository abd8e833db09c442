package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

// RPC error code the node uses for a failed send preflight.
const codeSendTransactionPreflightFailure = -32002

// Checkpoint is a recent blockhash and the last block height at which a
// transaction stamped with it is still valid.
type Checkpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// AccountInfo is the on-ledger state of an address.
type AccountInfo struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Executable bool
	Data       []byte
}

// SimulationResult is the outcome of a dry run.
type SimulationResult struct {
	Err           json.RawMessage
	Logs          []string
	UnitsConsumed uint64
}

// Failed reports whether the dry run was rejected.
func (r *SimulationResult) Failed() bool {
	return len(r.Err) > 0
}

// SignatureStatus is the ledger's view of a submitted signature.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	Err                json.RawMessage
	ConfirmationStatus string
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0
}

// Reached reports whether the status is at least the given commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	if s == nil || s.Failed() {
		return false
	}
	return commitmentRank(s.ConfirmationStatus) >= commitmentRank(commitment)
}

func commitmentRank(c string) int {
	switch c {
	case CommitmentFinalized:
		return 2
	case CommitmentConfirmed:
		return 1
	case CommitmentProcessed:
		return 0
	default:
		return -1
	}
}

// TransactionError reports an on-ledger execution failure. It is terminal:
// resubmitting the same instructions will fail the same way.
type TransactionError struct {
	Signature string
	Err       json.RawMessage
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Signature, string(e.Err))
}

// nonNullRaw returns the raw JSON of r, or nil for absent/null values.
func nonNullRaw(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// =============================================================================
// Reads
// =============================================================================

// GetAccountInfo returns the account at pk, or nil when no account exists.
func (c *Client) GetAccountInfo(ctx context.Context, pk solana.PublicKey) (*AccountInfo, error) {
	result, err := c.Call(ctx, "getAccountInfo", []interface{}{
		pk.String(),
		map[string]interface{}{"encoding": "base64", "commitment": c.commitment},
	})
	if err != nil {
		return nil, err
	}

	value := gjson.GetBytes(result, "value")
	if !value.Exists() || value.Type == gjson.Null {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   value.Get("lamports").Uint(),
		Executable: value.Get("executable").Bool(),
	}
	if owner := value.Get("owner").String(); owner != "" {
		if info.Owner, err = solana.PublicKeyFromBase58(owner); err != nil {
			return nil, errors.RPC("getAccountInfo: owner", err)
		}
	}
	if data := value.Get("data.0").String(); data != "" {
		if info.Data, err = base64.StdEncoding.DecodeString(data); err != nil {
			return nil, errors.RPC("getAccountInfo: data", err)
		}
	}
	return info, nil
}

// AccountExists reports whether pk currently holds an account.
func (c *Client) AccountExists(ctx context.Context, pk solana.PublicKey) (bool, error) {
	info, err := c.GetAccountInfo(ctx, pk)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// GetLatestBlockhash fetches a fresh checkpoint.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Checkpoint, error) {
	result, err := c.Call(ctx, "getLatestBlockhash", []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	})
	if err != nil {
		return Checkpoint{}, err
	}

	hash, err := solana.HashFromBase58(gjson.GetBytes(result, "value.blockhash").String())
	if err != nil {
		return Checkpoint{}, errors.RPC("getLatestBlockhash", err)
	}
	return Checkpoint{
		Blockhash:            hash,
		LastValidBlockHeight: gjson.GetBytes(result, "value.lastValidBlockHeight").Uint(),
	}, nil
}

// GetBlockHeight returns the current block height.
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getBlockHeight", []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	})
	if err != nil {
		return 0, err
	}

	var height uint64
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, errors.RPC("getBlockHeight", err)
	}
	return height, nil
}

// GetSignatureStatuses returns one status per signature; unknown signatures
// map to nil.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	result, err := c.Call(ctx, "getSignatureStatuses", []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	})
	if err != nil {
		return nil, err
	}

	values := gjson.GetBytes(result, "value").Array()
	statuses := make([]*SignatureStatus, len(signatures))
	for i := range signatures {
		if i >= len(values) || values[i].Type == gjson.Null {
			continue
		}
		v := values[i]
		st := &SignatureStatus{
			Slot:               v.Get("slot").Uint(),
			Err:                nonNullRaw(v.Get("err")),
			ConfirmationStatus: v.Get("confirmationStatus").String(),
		}
		if conf := v.Get("confirmations"); conf.Exists() && conf.Type != gjson.Null {
			n := conf.Uint()
			st.Confirmations = &n
		}
		statuses[i] = st
	}
	return statuses, nil
}

// GetSignatureStatus returns the status of one signature, or nil if unknown.
func (c *Client) GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	statuses, err := c.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return nil, err
	}
	return statuses[0], nil
}

// =============================================================================
// Writes
// =============================================================================

// SimulateTransaction dry-runs a signed transaction.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	encoded, err := tx.Base64()
	if err != nil {
		return nil, errors.Validation("serialize transaction: %v", err)
	}

	result, err := c.Call(ctx, "simulateTransaction", []interface{}{
		encoded,
		map[string]interface{}{
			"encoding":   "base64",
			"sigVerify":  false,
			"commitment": c.commitment,
		},
	})
	if err != nil {
		return nil, err
	}

	sim := &SimulationResult{
		Err:           nonNullRaw(gjson.GetBytes(result, "value.err")),
		UnitsConsumed: gjson.GetBytes(result, "value.unitsConsumed").Uint(),
	}
	for _, line := range gjson.GetBytes(result, "value.logs").Array() {
		sim.Logs = append(sim.Logs, line.String())
	}
	return sim, nil
}

// SendTransaction broadcasts a signed transaction directly and returns its
// signature. An unknown blockhash maps to CheckpointExpired; other preflight
// rejections are terminal simulation failures.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	encoded, err := tx.Base64()
	if err != nil {
		return "", errors.Validation("serialize transaction: %v", err)
	}

	result, err := c.Call(ctx, "sendTransaction", []interface{}{
		encoded,
		map[string]interface{}{
			"encoding":            "base64",
			"preflightCommitment": c.commitment,
		},
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			if rpcErr.IsBlockhashNotFound() {
				return "", errors.CheckpointExpired("blockhash not found", rpcErr)
			}
			if rpcErr.Code == codeSendTransactionPreflightFailure {
				var logs []string
				for _, line := range gjson.GetBytes(rpcErr.Data, "logs").Array() {
					logs = append(logs, line.String())
				}
				return "", errors.Simulation(rpcErr.Message, logs)
			}
		}
		return "", err
	}

	var signature string
	if err := json.Unmarshal(result, &signature); err != nil {
		return "", errors.RPC("sendTransaction: decode signature", err)
	}
	return signature, nil
}
