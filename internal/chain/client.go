// Package chain provides Solana ledger JSON-RPC access for the launch pipeline.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/httputil"
)

// Commitment levels understood by the ledger.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// maxResponseBytes bounds a single RPC response.
const maxResponseBytes = 8 << 20

// Client provides Solana RPC client functionality.
type Client struct {
	rpcURL       string
	wsURL        string
	commitment   string
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
	nextID       uint64
}

// Config holds client configuration.
type Config struct {
	RPCURL string
	// WSURL enables signatureSubscribe during confirmation. Optional.
	WSURL      string
	Commitment string
	Timeout    time.Duration
	// PollInterval is the status polling period inside ConfirmTransaction.
	PollInterval time.Duration
	// MaxConfirmPolls caps status polls per confirmation. Zero derives the
	// cap from the blockhash validity window and PollInterval.
	MaxConfirmPolls int
	HTTPClient      *http.Client
}

// NewClient creates a new ledger client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	maxPolls := cfg.MaxConfirmPolls
	if maxPolls <= 0 {
		maxPolls = ConfirmPollLimit(poll)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		rpcURL:       cfg.RPCURL,
		wsURL:        cfg.WSURL,
		commitment:   commitment,
		pollInterval: poll,
		maxPolls:     maxPolls,
		httpClient:   httpClient,
	}, nil
}

// Commitment returns the commitment level used for reads and confirmation.
func (c *Client) Commitment() string {
	return c.commitment
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
	ID      uint64        `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsBlockhashNotFound reports whether the node rejected a transaction because
// its recent blockhash is unknown or expired.
func (e *RPCError) IsBlockhashNotFound() bool {
	return strings.Contains(strings.ToLower(e.Message), "blockhash not found") ||
		strings.Contains(string(e.Data), "BlockhashNotFound")
}

// Call makes an RPC call to the ledger node. Transport failures and node
// errors are both returned as RPC service errors.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&c.nextID, 1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.RPC(method+": execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, errors.RPC(method+": read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.RPC(method, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, errors.RPC(method+": unmarshal response", err)
	}

	if rpcResp.Error != nil {
		return nil, errors.RPC(method, rpcResp.Error)
	}

	return rpcResp.Result, nil
}
