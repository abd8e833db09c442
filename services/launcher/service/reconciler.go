package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/services/launcher/store"
)

// Reconciler defaults.
const (
	DefaultReconcileSchedule = "@every 1m"
	DefaultMaxPendingAge     = 10 * time.Minute
	DefaultReconcileBatch    = 100
	reconcileTimeout         = 30 * time.Second
)

// ReconcilerConfig configures the pending-launch reconciler.
type ReconcilerConfig struct {
	Schedule string
	// MaxPendingAge is how long a signature may stay unknown to the ledger
	// before the launch is marked failed.
	MaxPendingAge time.Duration
	BatchSize     int
	Commitment    string
	Logger        *logging.Logger
}

// ReconcileSummary counts the transitions of one pass.
type ReconcileSummary struct {
	Checked   int
	Activated int
	Failed    int
}

// Reconciler re-checks launches whose submission ended unconfirmed.
type Reconciler struct {
	repo   store.Repository
	ledger Ledger
	cfg    ReconcilerConfig
	logger *logging.Logger
	cron   *cron.Cron
	now    func() time.Time
}

// NewReconciler validates the schedule and builds a reconciler.
func NewReconciler(repo store.Repository, ledger Ledger, cfg ReconcilerConfig) (*Reconciler, error) {
	if repo == nil || ledger == nil {
		return nil, fmt.Errorf("reconciler: repository and ledger are required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultReconcileSchedule
	}
	if cfg.MaxPendingAge <= 0 {
		cfg.MaxPendingAge = DefaultMaxPendingAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultReconcileBatch
	}
	if cfg.Commitment == "" {
		cfg.Commitment = chain.CommitmentConfirmed
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("reconciler: invalid schedule %q: %w", cfg.Schedule, err)
	}

	r := &Reconciler{
		repo:   repo,
		ledger: ledger,
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
	logger := cronLogger{r.logger}
	r.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	r.cron.Schedule(schedule, cron.FuncJob(r.tick))
	return r, nil
}

// Start begins the scheduled passes.
func (r *Reconciler) Start() {
	r.cron.Start()
	r.logger.Info(context.Background(), "reconciler started", map[string]interface{}{
		"schedule": r.cfg.Schedule,
	})
}

// Stop halts scheduling and waits for a running pass, bounded by ctx.
func (r *Reconciler) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	summary, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error(ctx, "reconcile pass failed", err, nil)
		return
	}
	if summary.Checked > 0 {
		r.logger.Info(ctx, "reconcile pass complete", map[string]interface{}{
			"checked":   summary.Checked,
			"activated": summary.Activated,
			"failed":    summary.Failed,
		})
	}
}

// RunOnce reconciles one batch of pending launches. Records that never got a
// signature are only aged out.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	pending, err := r.repo.ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}
	if len(pending) == 0 {
		return summary, nil
	}

	var sigs []string
	for _, t := range pending {
		if t.Signature != "" {
			sigs = append(sigs, t.Signature)
		}
	}
	bySig := make(map[string]*chain.SignatureStatus, len(sigs))
	if len(sigs) > 0 {
		statuses, err := r.ledger.GetSignatureStatuses(ctx, sigs...)
		if err != nil {
			return summary, fmt.Errorf("signature statuses: %w", err)
		}
		for i, sig := range sigs {
			if i < len(statuses) {
				bySig[sig] = statuses[i]
			}
		}
	}

	now := r.now()
	for _, t := range pending {
		summary.Checked++
		st := bySig[t.Signature]
		expired := now.Sub(t.CreatedAt) > r.cfg.MaxPendingAge

		var status store.Status
		reason := ""
		switch {
		case t.Signature == "":
			if !expired {
				continue
			}
			status, reason = store.StatusFailed, "never submitted"
		case st.Failed():
			status, reason = store.StatusFailed, "transaction failed: "+string(st.Err)
		case st.Reached(r.cfg.Commitment):
			status = store.StatusActive
		case st == nil && expired:
			status, reason = store.StatusFailed, "signature never landed"
		default:
			continue
		}

		if err := r.repo.UpdateStatus(ctx, t.Mint, status, reason); err != nil {
			r.logger.Warn(ctx, "reconcile update failed", map[string]interface{}{
				"mint":  t.Mint,
				"error": err.Error(),
			})
			continue
		}
		if status == store.StatusActive {
			summary.Activated++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(context.Background(), "cron: "+msg, err, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
