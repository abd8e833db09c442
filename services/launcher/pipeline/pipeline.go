// Package pipeline commits signed transactions to the ledger: a tipped
// bundle through the block engine first, then direct broadcast with
// checkpoint refresh when the bundle does not confirm.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/jito"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/internal/retry"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

// Defaults for the submission paths.
const (
	DefaultTipLamports       uint64 = 1_000_000
	DefaultBundleAttempts           = 3
	DefaultBundleBackoffBase        = time.Second
	DefaultBundleBackoffMax         = 5 * time.Second
	DefaultConfirmAttempts          = 5
	DefaultConfirmInterval          = 10 * time.Second
	DefaultDirectAttempts           = 3
)

// Path identifies which submission route produced an outcome.
type Path string

const (
	PathBundle Path = "bundle"
	PathDirect Path = "direct"
)

// Ledger is the ledger access the pipeline needs.
type Ledger interface {
	GetLatestBlockhash(ctx context.Context) (chain.Checkpoint, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*chain.SignatureStatus, error)
	ConfirmTransaction(ctx context.Context, signature string, cp chain.Checkpoint) (*chain.SignatureStatus, error)
}

// Relay is the block engine access the pipeline needs.
type Relay interface {
	SendBundle(ctx context.Context, transactions []string) (string, error)
	GetBundleStatuses(ctx context.Context, bundleIDs []string) ([]jito.BundleStatus, error)
	RandomTipAccount() solana.PublicKey
}

// Metrics receives per-path submission results.
type Metrics interface {
	RecordSubmission(path, result string, duration time.Duration)
	RecordRetry(path string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(string, string, time.Duration) {}
func (noopMetrics) RecordRetry(string)                              {}

// Outcome is the result of one Submit call. Err is non-nil iff Confirmed is
// false.
type Outcome struct {
	Confirmed bool
	Signature string
	Path      Path
	Attempts  int
	Err       error
}

// Config configures retry bounds and the relay tip.
type Config struct {
	TipLamports       uint64
	BundleAttempts    int
	BundleBackoffBase time.Duration
	BundleBackoffMax  time.Duration
	ConfirmAttempts   int
	ConfirmInterval   time.Duration
	DirectAttempts    int
	Commitment        string
	Logger            *logging.Logger
	Metrics           Metrics
}

// Pipeline submits transactions.
type Pipeline struct {
	ledger Ledger
	relay  Relay
	cfg    Config
	logger *logging.Logger
}

// New creates a pipeline. A nil relay disables the bundle path.
func New(ledger Ledger, relay Relay, cfg Config) *Pipeline {
	if cfg.TipLamports == 0 {
		cfg.TipLamports = DefaultTipLamports
	}
	if cfg.BundleAttempts <= 0 {
		cfg.BundleAttempts = DefaultBundleAttempts
	}
	if cfg.BundleBackoffBase <= 0 {
		cfg.BundleBackoffBase = DefaultBundleBackoffBase
	}
	if cfg.BundleBackoffMax <= 0 {
		cfg.BundleBackoffMax = DefaultBundleBackoffMax
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = DefaultConfirmAttempts
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = DefaultConfirmInterval
	}
	if cfg.DirectAttempts <= 0 {
		cfg.DirectAttempts = DefaultDirectAttempts
	}
	if cfg.Commitment == "" {
		cfg.Commitment = chain.CommitmentConfirmed
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Pipeline{ledger: ledger, relay: relay, cfg: cfg, logger: cfg.Logger}
}

// BundleEnabled reports whether a relay is configured.
func (p *Pipeline) BundleEnabled() bool {
	return p.relay != nil
}

// Submit commits tx, signed by feePayer and extraSigners against cp. The
// first confirmed path wins; otherwise the last unconfirmed outcome is
// returned with an Unconfirmed error wrapping its cause.
func (p *Pipeline) Submit(ctx context.Context, tx *solana.Transaction, feePayer solana.Signer, cp chain.Checkpoint, extraSigners ...solana.Signer) Outcome {
	var prior string

	if p.relay != nil {
		out := p.submitBundle(ctx, tx, feePayer, cp)
		if out.Confirmed || isTerminal(out.Err) {
			return finalize(out)
		}
		p.logger.Warn(ctx, "bundle path did not confirm, falling back to direct broadcast", map[string]interface{}{
			"signature": out.Signature,
			"error":     errString(out.Err),
		})
		prior = tx.Signature().String()
	}

	return finalize(p.submitDirect(ctx, tx, prior, feePayer, cp, extraSigners))
}

// =============================================================================
// Bundle path
// =============================================================================

func (p *Pipeline) submitBundle(ctx context.Context, tx *solana.Transaction, feePayer solana.Signer, cp chain.Checkpoint) Outcome {
	start := time.Now()
	mainSig := tx.Signature().String()
	out := Outcome{Path: PathBundle, Signature: mainSig}

	tipTx, err := p.buildTip(feePayer, cp)
	if err != nil {
		out.Err = err
		p.cfg.Metrics.RecordSubmission(string(PathBundle), "error", time.Since(start))
		return out
	}
	tipEncoded, err := tipTx.Base58()
	if err != nil {
		out.Err = errors.Internal("serialize tip transaction", err)
		return out
	}
	mainEncoded, err := tx.Base58()
	if err != nil {
		out.Err = errors.Internal("serialize transaction", err)
		return out
	}

	var bundleID string
	policy := retry.Policy{
		MaxAttempts: p.cfg.BundleAttempts,
		Backoff:     retry.Exponential(p.cfg.BundleBackoffBase, p.cfg.BundleBackoffMax),
		Retryable:   errors.IsRecoverable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			p.cfg.Metrics.RecordRetry(string(PathBundle))
			p.logger.Warn(ctx, "bundle submission failed", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": p.cfg.BundleAttempts,
				"wait":         wait.String(),
				"error":        err.Error(),
			})
		},
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		out.Attempts = attempt
		id, err := p.relay.SendBundle(ctx, []string{tipEncoded, mainEncoded})
		if err != nil {
			return err
		}
		bundleID = id
		return nil
	})
	if err != nil {
		out.Err = err
		p.cfg.Metrics.RecordSubmission(string(PathBundle), "rejected", time.Since(start))
		return out
	}

	p.logger.Info(ctx, "bundle accepted", map[string]interface{}{
		"bundle_id":     bundleID,
		"signature":     mainSig,
		"tip_signature": tipTx.Signature().String(),
	})
	p.inspectBundle(ctx, bundleID)

	var mainConfirmed, tipConfirmed bool
	var mainErr error
	var g errgroup.Group
	g.Go(func() error {
		mainConfirmed, mainErr = p.pollSignature(ctx, mainSig)
		return nil
	})
	g.Go(func() error {
		tipConfirmed, _ = p.pollSignature(ctx, tipTx.Signature().String())
		return nil
	})
	_ = g.Wait()

	if mainConfirmed {
		out.Confirmed = true
		p.cfg.Metrics.RecordSubmission(string(PathBundle), "confirmed", time.Since(start))
		p.logger.Info(ctx, "bundle confirmed", map[string]interface{}{
			"bundle_id":     bundleID,
			"signature":     mainSig,
			"tip_confirmed": tipConfirmed,
		})
		return out
	}

	if mainErr == nil {
		mainErr = errors.Unconfirmed(fmt.Sprintf("bundle %s not confirmed after %d status checks", bundleID, p.cfg.ConfirmAttempts), nil)
	}
	out.Err = mainErr
	p.cfg.Metrics.RecordSubmission(string(PathBundle), "unconfirmed", time.Since(start))
	return out
}

func (p *Pipeline) buildTip(feePayer solana.Signer, cp chain.Checkpoint) (*solana.Transaction, error) {
	tip := p.relay.RandomTipAccount()
	ix := solana.NewTransferInstruction(feePayer.PublicKey(), tip, p.cfg.TipLamports)
	tipTx, err := solana.NewTransaction(feePayer.PublicKey(), []solana.Instruction{ix}, cp.Blockhash)
	if err != nil {
		return nil, errors.Internal("build tip transaction", err)
	}
	if err := tipTx.Sign(feePayer); err != nil {
		return nil, errors.Internal("sign tip transaction", err)
	}
	return tipTx, nil
}

// inspectBundle logs the block engine's view of the bundle. Advisory only.
func (p *Pipeline) inspectBundle(ctx context.Context, bundleID string) {
	statuses, err := p.relay.GetBundleStatuses(ctx, []string{bundleID})
	if err != nil {
		p.logger.Debug(ctx, "bundle status lookup failed", map[string]interface{}{
			"bundle_id": bundleID,
			"error":     err.Error(),
		})
		return
	}
	fields := map[string]interface{}{"bundle_id": bundleID, "known": len(statuses) > 0}
	if len(statuses) > 0 {
		fields["confirmation_status"] = statuses[0].ConfirmationStatus
		fields["slot"] = statuses[0].Slot
	}
	p.logger.Debug(ctx, "bundle status", fields)
}

// pollSignature checks the signature status every ConfirmInterval, up to
// ConfirmAttempts times. An execution failure stops polling with a terminal
// error.
func (p *Pipeline) pollSignature(ctx context.Context, signature string) (bool, error) {
	for attempt := 1; attempt <= p.cfg.ConfirmAttempts; attempt++ {
		if err := retry.Sleep(ctx, p.cfg.ConfirmInterval); err != nil {
			return false, nil
		}

		status, err := p.ledger.GetSignatureStatus(ctx, signature)
		if err != nil {
			p.logger.Debug(ctx, "signature status check failed", map[string]interface{}{
				"signature": signature,
				"attempt":   attempt,
				"error":     err.Error(),
			})
			continue
		}
		if status.Failed() {
			return false, errors.Unconfirmed("transaction failed on ledger",
				&chain.TransactionError{Signature: signature, Err: status.Err})
		}
		if status.Reached(p.cfg.Commitment) {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// Direct path
// =============================================================================

// submitDirect broadcasts tx and waits for confirmation. On a recoverable
// failure the checkpoint is refreshed and the transaction re-signed. Before
// every attempt each signature handed to the ledger so far is checked, so a
// late landing is reported instead of superseded. A signature counts as
// handed over before its send returns: a send that errors may still reach
// the leader.
func (p *Pipeline) submitDirect(ctx context.Context, tx *solana.Transaction, prior string, feePayer solana.Signer, cp chain.Checkpoint, extraSigners []solana.Signer) Outcome {
	start := time.Now()
	out := Outcome{Path: PathDirect}
	signers := append([]solana.Signer{feePayer}, extraSigners...)

	current, checkpoint := tx, cp
	var broadcast []string
	if prior != "" {
		broadcast = append(broadcast, prior)
	}

	policy := retry.Policy{
		MaxAttempts: p.cfg.DirectAttempts,
		Retryable:   errors.IsRecoverable,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			p.cfg.Metrics.RecordRetry(string(PathDirect))
			p.logger.Warn(ctx, "direct submission failed", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": p.cfg.DirectAttempts,
				"signature":    out.Signature,
				"error":        err.Error(),
			})
		},
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		out.Attempts = attempt

		for _, sig := range broadcast {
			if status, err := p.ledger.GetSignatureStatus(ctx, sig); err == nil && status.Reached(p.cfg.Commitment) {
				out.Signature = sig
				return nil
			}
		}

		if attempt > 1 {
			fresh, err := p.ledger.GetLatestBlockhash(ctx)
			if err != nil {
				return err
			}
			next := tx.WithBlockhash(fresh.Blockhash)
			if err := next.Sign(signers...); err != nil {
				return errors.Internal("re-sign transaction", err)
			}
			current, checkpoint = next, fresh
		}

		sig := current.Signature().String()
		if len(broadcast) == 0 || broadcast[len(broadcast)-1] != sig {
			broadcast = append(broadcast, sig)
		}
		out.Signature = sig
		if _, err := p.ledger.SendTransaction(ctx, current); err != nil {
			return err
		}

		if _, err := p.ledger.ConfirmTransaction(ctx, sig, checkpoint); err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		out.Err = err
		p.cfg.Metrics.RecordSubmission(string(PathDirect), "unconfirmed", time.Since(start))
		return out
	}

	out.Confirmed = true
	p.cfg.Metrics.RecordSubmission(string(PathDirect), "confirmed", time.Since(start))
	p.logger.Info(ctx, "direct submission confirmed", map[string]interface{}{
		"signature": out.Signature,
		"attempts":  out.Attempts,
	})
	return out
}

// =============================================================================
// Helpers
// =============================================================================

// isTerminal reports whether err must not fall through to another path.
func isTerminal(err error) bool {
	var txErr *chain.TransactionError
	return errors.As(err, &txErr) || errors.Is(err, errors.ErrSimulation)
}

func finalize(out Outcome) Outcome {
	if out.Confirmed {
		out.Err = nil
		return out
	}
	if out.Err == nil {
		out.Err = errors.Unconfirmed("transaction not confirmed", nil)
	} else if !errors.Is(out.Err, errors.ErrUnconfirmed) {
		out.Err = errors.Unconfirmed("transaction not confirmed", out.Err)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
