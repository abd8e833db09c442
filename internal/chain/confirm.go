package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/launch_layer/internal/errors"
)

// A blockhash is valid for 150 blocks of roughly 400ms each.
const (
	checkpointValidBlocks = 150
	slotDuration          = 400 * time.Millisecond
)

// ConfirmPollLimit is the number of status polls spaced by poll that covers
// one blockhash validity window, plus one.
func ConfirmPollLimit(poll time.Duration) int {
	if poll <= 0 {
		poll = time.Millisecond
	}
	window := checkpointValidBlocks * slotDuration
	return int((window+poll-1)/poll) + 1
}

// ConfirmTransaction waits until signature reaches the client's commitment
// level. It stops with CheckpointExpired once the block height passes the
// checkpoint's last valid height or the poll cap is spent, and with
// Unconfirmed wrapping a TransactionError if the transaction executed and
// failed. When a websocket endpoint is configured, signatureSubscribe races
// the status polling.
func (c *Client) ConfirmTransaction(ctx context.Context, signature string, cp Checkpoint) (*SignatureStatus, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var notify <-chan json.RawMessage
	if c.wsURL != "" {
		notify = c.subscribeSignature(ctx, signature)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		status, err := c.GetSignatureStatus(ctx, signature)
		if err != nil && ctx.Err() != nil {
			return nil, errors.Unconfirmed("confirmation cancelled", ctx.Err())
		}
		if err == nil {
			if status.Failed() {
				return status, errors.Unconfirmed("transaction failed on ledger",
					&TransactionError{Signature: signature, Err: status.Err})
			}
			if status.Reached(c.commitment) {
				return status, nil
			}
		}

		height, err := c.GetBlockHeight(ctx)
		if err == nil && height > cp.LastValidBlockHeight {
			return status, errors.CheckpointExpired(
				fmt.Sprintf("block height %d exceeded last valid height %d", height, cp.LastValidBlockHeight), nil)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Unconfirmed("confirmation cancelled", ctx.Err())
		case txErr, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			st := &SignatureStatus{Err: txErr, ConfirmationStatus: c.commitment}
			if st.Failed() {
				return st, errors.Unconfirmed("transaction failed on ledger",
					&TransactionError{Signature: signature, Err: txErr})
			}
			return st, nil
		case <-ticker.C:
			if polls >= c.maxPolls {
				return status, errors.CheckpointExpired(
					fmt.Sprintf("not confirmed after %d status polls", polls), nil)
			}
		}
	}
}

// subscribeSignature opens a signatureSubscribe stream and delivers the
// notification's err value (nil on success). The channel closes without a
// value if the socket fails; polling continues in that case.
func (c *Client) subscribeSignature(ctx context.Context, signature string) <-chan json.RawMessage {
	out := make(chan json.RawMessage, 1)

	go func() {
		defer close(out)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		sub := RPCRequest{
			JSONRPC: "2.0",
			Method:  "signatureSubscribe",
			Params:  []interface{}{signature, map[string]interface{}{"commitment": c.commitment}},
			ID:      1,
		}
		if err := conn.WriteJSON(sub); err != nil {
			return
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if gjson.GetBytes(msg, "method").String() != "signatureNotification" {
				continue
			}
			out <- nonNullRaw(gjson.GetBytes(msg, "params.result.value.err"))
			return
		}
	}()

	return out
}
