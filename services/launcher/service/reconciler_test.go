package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/services/launcher/store"
)

func seedPending(t *testing.T, repo *store.MockRepository, mint, sig string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.RecordAsset(ctx, &store.Token{Mint: mint, Program: "pumpfun"}))
	require.NoError(t, repo.UpdateSignature(ctx, mint, sig))
}

func TestNewReconciler(t *testing.T) {
	_, err := NewReconciler(nil, newFakeChain(), ReconcilerConfig{})
	assert.Error(t, err)

	_, err = NewReconciler(store.NewMockRepository(), newFakeChain(), ReconcilerConfig{Schedule: "every minute"})
	assert.Error(t, err)

	r, err := NewReconciler(store.NewMockRepository(), newFakeChain(), ReconcilerConfig{Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Equal(t, DefaultReconcileSchedule, r.cfg.Schedule)
	assert.Equal(t, DefaultMaxPendingAge, r.cfg.MaxPendingAge)
}

func TestReconciler_RunOnce(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMockRepository()
	ledger := newFakeChain()
	ledger.unconfirmed = true
	ledger.statuses["sig-landed"] = &chain.SignatureStatus{Slot: 5, ConfirmationStatus: chain.CommitmentFinalized}
	ledger.statuses["sig-failed"] = &chain.SignatureStatus{Slot: 6, Err: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)}
	ledger.statuses["sig-processed"] = &chain.SignatureStatus{Slot: 7, ConfirmationStatus: chain.CommitmentProcessed}

	seedPending(t, repo, "mint-landed", "sig-landed")
	seedPending(t, repo, "mint-failed", "sig-failed")
	seedPending(t, repo, "mint-processed", "sig-processed")
	seedPending(t, repo, "mint-unknown", "sig-unknown")
	require.NoError(t, repo.RecordAsset(ctx, &store.Token{Mint: "mint-unsigned"}))

	r, err := NewReconciler(repo, ledger, ReconcilerConfig{Logger: logging.Discard()})
	require.NoError(t, err)

	summary, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 5, Activated: 1, Failed: 1}, summary)

	landed, err := repo.GetByMint(ctx, "mint-landed")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, landed.Status)

	failed, err := repo.GetByMint(ctx, "mint-failed")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "InstructionError")

	for _, mint := range []string{"mint-processed", "mint-unknown", "mint-unsigned"} {
		tok, err := repo.GetByMint(ctx, mint)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, tok.Status, mint)
	}

	// Past the pending age an unknown signature and an unsigned record are
	// given up on; a processed one is still waiting on commitment.
	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	summary, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 3, Failed: 2}, summary)

	unknown, err := repo.GetByMint(ctx, "mint-unknown")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, unknown.Status)
	assert.Equal(t, "signature never landed", unknown.Error)

	unsigned, err := repo.GetByMint(ctx, "mint-unsigned")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, unsigned.Status)
	assert.Equal(t, "never submitted", unsigned.Error)

	processed, err := repo.GetByMint(ctx, "mint-processed")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, processed.Status)
}

func TestReconciler_UnsignedOnlySkipsLedger(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMockRepository()
	require.NoError(t, repo.RecordAsset(ctx, &store.Token{Mint: "mint-unsigned"}))

	r, err := NewReconciler(repo, failingLedger{}, ReconcilerConfig{Logger: logging.Discard()})
	require.NoError(t, err)

	summary, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 1}, summary)
}

// failingLedger rejects every status lookup.
type failingLedger struct{}

func (failingLedger) GetLatestBlockhash(context.Context) (chain.Checkpoint, error) {
	return chain.Checkpoint{}, assert.AnError
}

func (failingLedger) GetSignatureStatuses(context.Context, ...string) ([]*chain.SignatureStatus, error) {
	return nil, assert.AnError
}

func TestReconciler_RunOnceEmpty(t *testing.T) {
	r, err := NewReconciler(store.NewMockRepository(), newFakeChain(), ReconcilerConfig{Logger: logging.Discard()})
	require.NoError(t, err)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
}

func TestReconciler_StartStop(t *testing.T) {
	repo := store.NewMockRepository()
	seedPending(t, repo, "mint-landed", "sig-landed")

	r, err := NewReconciler(repo, newFakeChain(), ReconcilerConfig{Schedule: "@every 1s", Logger: logging.Discard()})
	require.NoError(t, err)
	r.Start()

	assert.Eventually(t, func() bool {
		tok, err := repo.GetByMint(context.Background(), "mint-landed")
		return err == nil && tok.Status == store.StatusActive
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}
