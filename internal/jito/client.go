// Package jito talks to a Jito block engine: bundle submission and bundle
// status lookups.
package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/httputil"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

// MaxBundleSize is the largest number of transactions a bundle may carry.
const MaxBundleSize = 5

// DefaultTipAccounts are the block engine's published tip receivers.
var DefaultTipAccounts = []string{
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
}

// Config holds relay client configuration.
type Config struct {
	// BundleURL is the full bundles endpoint, e.g.
	// https://mainnet.block-engine.jito.wtf/api/v1/bundles.
	BundleURL string
	// AuthUUID is sent as x-jito-auth when set.
	AuthUUID    string
	TipAccounts []string
	Timeout     time.Duration
	HTTPClient  *http.Client
	// Rand picks tip accounts. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Client submits bundles to the block engine.
type Client struct {
	bundleURL   string
	authUUID    string
	tipAccounts []solana.PublicKey
	httpClient  *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

// BundleStatus is the block engine's view of a landed bundle.
type BundleStatus struct {
	BundleID           string          `json:"bundle_id"`
	Transactions       []string        `json:"transactions"`
	Slot               uint64          `json:"slot"`
	ConfirmationStatus string          `json:"confirmation_status"`
	Err                json.RawMessage `json:"err,omitempty"`
}

// NewClient creates a new relay client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BundleURL == "" {
		return nil, fmt.Errorf("block engine URL required")
	}

	accounts := cfg.TipAccounts
	if len(accounts) == 0 {
		accounts = DefaultTipAccounts
	}
	tips := make([]solana.PublicKey, 0, len(accounts))
	for _, a := range accounts {
		pk, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("tip account: %w", err)
		}
		tips = append(tips, pk)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Client{
		bundleURL:   cfg.BundleURL,
		authUUID:    cfg.AuthUUID,
		tipAccounts: tips,
		httpClient:  httpClient,
		rnd:         rnd,
	}, nil
}

// TipAccounts returns the configured tip receivers.
func (c *Client) TipAccounts() []solana.PublicKey {
	out := make([]solana.PublicKey, len(c.tipAccounts))
	copy(out, c.tipAccounts)
	return out
}

// RandomTipAccount picks a tip receiver uniformly at random.
func (c *Client) RandomTipAccount() solana.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipAccounts[c.rnd.Intn(len(c.tipAccounts))]
}

// SendBundle submits base58-encoded signed transactions as one atomic bundle
// and returns the bundle ID. Every failure, including an empty ID, is a
// RelayTransport error.
func (c *Client) SendBundle(ctx context.Context, transactions []string) (string, error) {
	if len(transactions) == 0 || len(transactions) > MaxBundleSize {
		return "", errors.Validation("bundle must carry 1..%d transactions, got %d", MaxBundleSize, len(transactions))
	}

	result, err := c.call(ctx, "sendBundle", []interface{}{transactions})
	if err != nil {
		return "", err
	}

	bundleID := gjson.ParseBytes(result).String()
	if bundleID == "" {
		return "", errors.RelayTransport("sendBundle returned no bundle id", nil)
	}
	return bundleID, nil
}

// GetBundleStatuses returns the landed status of each bundle. Bundles the
// engine has not seen are omitted.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]BundleStatus, error) {
	result, err := c.call(ctx, "getBundleStatuses", []interface{}{bundleIDs})
	if err != nil {
		return nil, err
	}

	var statuses []BundleStatus
	for _, v := range gjson.GetBytes(result, "value").Array() {
		if v.Type == gjson.Null {
			continue
		}
		st := BundleStatus{
			BundleID:           v.Get("bundle_id").String(),
			Slot:               v.Get("slot").Uint(),
			ConfirmationStatus: v.Get("confirmation_status").String(),
		}
		for _, tx := range v.Get("transactions").Array() {
			st.Transactions = append(st.Transactions, tx.String())
		}
		if e := v.Get("err.Ok"); !e.Exists() {
			if raw := v.Get("err"); raw.Exists() && raw.Type != gjson.Null {
				st.Err = json.RawMessage(raw.Raw)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bundleURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authUUID != "" {
		req.Header.Set("x-jito-auth", c.authUUID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.RelayTransport(method+": execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return nil, errors.RelayTransport(method+": read response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.RelayTransport(method,
			fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	parsed := gjson.ParseBytes(respBody)
	if e := parsed.Get("error"); e.Exists() && e.Type != gjson.Null {
		return nil, errors.RelayTransport(method,
			fmt.Errorf("relay error %d: %s", e.Get("code").Int(), e.Get("message").String()))
	}
	result := parsed.Get("result")
	if !result.Exists() {
		return nil, errors.RelayTransport(method+": response has no result", nil)
	}
	return json.RawMessage(result.Raw), nil
}
