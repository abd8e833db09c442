// Package service is the launch orchestrator and its HTTP surface. CreateToken
// runs validation, metadata resolution, allocation, encoding, assembly and
// submission in order and converts every failure into a uniform Result.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/R3E-Network/launch_layer/internal/cache"
	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/internal/metrics"
	"github.com/R3E-Network/launch_layer/internal/pinning"
	"github.com/R3E-Network/launch_layer/internal/solana"
	"github.com/R3E-Network/launch_layer/services/launcher/allocator"
	"github.com/R3E-Network/launch_layer/services/launcher/pipeline"
	"github.com/R3E-Network/launch_layer/services/launcher/programs"
	"github.com/R3E-Network/launch_layer/services/launcher/store"
)

const (
	ServiceName = "launcher"
	Version     = "1.0.0"

	// persistTimeout bounds each record write. Writes run detached from the
	// request so an expired request still leaves its signature behind.
	persistTimeout = 10 * time.Second
)

// =============================================================================
// Collaborators
// =============================================================================

// Allocator finds vacant asset accounts.
type Allocator interface {
	Allocate(ctx context.Context, prog programs.Program) (*allocator.AccountSet, error)
	Verify(ctx context.Context, set *allocator.AccountSet) error
}

// Assembler compiles, signs and dry-runs transactions.
type Assembler interface {
	Assemble(instructions []solana.Instruction, feePayer solana.PublicKey, cp chain.Checkpoint, signers ...solana.Signer) (*solana.Transaction, error)
	Simulate(ctx context.Context, tx *solana.Transaction) error
}

// Submitter commits signed transactions.
type Submitter interface {
	Submit(ctx context.Context, tx *solana.Transaction, feePayer solana.Signer, cp chain.Checkpoint, extraSigners ...solana.Signer) pipeline.Outcome
}

// Ledger is the ledger access the orchestrator and reconciler need.
type Ledger interface {
	GetLatestBlockhash(ctx context.Context) (chain.Checkpoint, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*chain.SignatureStatus, error)
}

// =============================================================================
// Service Definition
// =============================================================================

// Service orchestrates token launches.
type Service struct {
	registry  *programs.Registry
	allocator Allocator
	assembler Assembler
	submitter Submitter
	ledger    Ledger
	pinner    pinning.Service
	cache     cache.Cache
	repo      store.Repository
	logger    *logging.Logger

	requestTimeout time.Duration
	commitment     string
	startTime      time.Time
}

// Config wires the service. Pinner and Repository are optional: without a
// pinner every request must carry a metadata URI, without a repository
// launches are not persisted.
type Config struct {
	Registry       *programs.Registry
	Allocator      Allocator
	Assembler      Assembler
	Submitter      Submitter
	Ledger         Ledger
	Pinner         pinning.Service
	Cache          cache.Cache
	Repository     store.Repository
	Logger         *logging.Logger
	RequestTimeout time.Duration
	Commitment     string
}

// New creates the launch service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Registry == nil:
		return nil, fmt.Errorf("launcher: program registry is required")
	case cfg.Allocator == nil:
		return nil, fmt.Errorf("launcher: allocator is required")
	case cfg.Assembler == nil:
		return nil, fmt.Errorf("launcher: assembler is required")
	case cfg.Submitter == nil:
		return nil, fmt.Errorf("launcher: submitter is required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("launcher: ledger is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = chain.CommitmentConfirmed
	}

	return &Service{
		registry:       cfg.Registry,
		allocator:      cfg.Allocator,
		assembler:      cfg.Assembler,
		submitter:      cfg.Submitter,
		ledger:         cfg.Ledger,
		pinner:         cfg.Pinner,
		cache:          cfg.Cache,
		repo:           cfg.Repository,
		logger:         cfg.Logger,
		requestTimeout: cfg.RequestTimeout,
		commitment:     cfg.Commitment,
		startTime:      time.Now(),
	}, nil
}

// =============================================================================
// CreateToken
// =============================================================================

// CreateToken launches one token. It never panics and never returns a raw
// lower-layer error: failures come back as Result{Success: false}.
func (s *Service) CreateToken(ctx context.Context, req CreateTokenRequest) (res Result) {
	program := string(req.Program)
	if program == "" {
		program = string(programs.KindPumpFun)
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.logger.Error(ctx, "launch panicked", err, map[string]interface{}{"program": program})
			res = failure(errors.Internal("internal error", err))
		}
		result := "success"
		if !res.Success {
			result = "failed"
		}
		metrics.RecordLaunch(program, result)
	}()

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	sig, mint, err := s.launch(ctx, &req)
	if err != nil {
		s.logger.Error(ctx, "token launch failed", err, map[string]interface{}{
			"program": program,
			"symbol":  req.Symbol,
			"mint":    mint,
		})
		res = failure(err)
		res.MintAddress = mint
		res.Signature = sig
		return res
	}
	return Result{Success: true, Signature: sig, MintAddress: mint}
}

func (s *Service) launch(ctx context.Context, req *CreateTokenRequest) (string, string, error) {
	if err := req.Validate(); err != nil {
		return "", "", err
	}
	prog, err := s.registry.Lookup(req.Program)
	if err != nil {
		return "", "", err
	}
	if prog.Kind() == programs.KindPumpFun && req.Decimals != nil && *req.Decimals != DefaultDecimals {
		return "", "", errors.InvalidFormat("decimals", fmt.Sprintf("pumpfun tokens use %d decimals", DefaultDecimals))
	}
	creator, err := req.Creator()
	if err != nil {
		return "", "", err
	}
	program := string(prog.Kind())

	meta, err := s.resolveMetadata(ctx, req, program, creator.PublicKey().String())
	if err != nil {
		return "", "", err
	}

	set, err := s.allocator.Allocate(ctx, prog)
	if err != nil {
		return "", "", err
	}
	metrics.RecordAllocation(set.Attempts)
	mint := set.Mint.String()

	ixs, err := s.encode(prog, set, creator.PublicKey(), req, meta.URI)
	if err != nil {
		return "", mint, err
	}

	cp, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", mint, err
	}
	tx, err := s.assembler.Assemble(ixs, creator.PublicKey(), cp, creator, set.Asset)
	if err != nil {
		return "", mint, err
	}
	if err := s.allocator.Verify(ctx, set); err != nil {
		return "", mint, err
	}
	if err := s.assembler.Simulate(ctx, tx); err != nil {
		return "", mint, err
	}

	signature := tx.Signature().String()
	s.record(ctx, req, prog.Kind(), creator.PublicKey(), set, meta, signature)

	s.logger.Info(ctx, "submitting launch", map[string]interface{}{
		"program":      program,
		"mint":         mint,
		"signature":    signature,
		"instructions": len(ixs),
	})
	out := s.submitter.Submit(ctx, tx, creator, cp, set.Asset)
	s.settle(ctx, mint, out)
	if !out.Confirmed {
		return out.Signature, mint, out.Err
	}

	s.logger.Info(ctx, "token launched", map[string]interface{}{
		"program":   program,
		"mint":      mint,
		"signature": out.Signature,
		"path":      string(out.Path),
		"attempts":  out.Attempts,
	})
	return out.Signature, mint, nil
}

// encode builds the create instruction and, for a positive amount, the
// initial purchase instructions.
func (s *Service) encode(prog programs.Program, set *allocator.AccountSet, creator solana.PublicKey, req *CreateTokenRequest, uri string) ([]solana.Instruction, error) {
	meta := programs.Metadata{
		Name:     req.Name,
		Symbol:   req.Symbol,
		URI:      uri,
		Decimals: req.TokenDecimals(),
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	create, err := prog.EncodeCreate(set.Accounts, creator, meta)
	if err != nil {
		return nil, err
	}
	ixs := []solana.Instruction{create}

	if req.InitialPurchaseAmount > 0 {
		buy, err := prog.EncodeInitialPurchase(set.Accounts, creator, req.InitialPurchaseAmount)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, buy...)
	}
	return ixs, nil
}

// =============================================================================
// Persistence
// =============================================================================

// persistContext detaches ctx from cancellation while keeping its values.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

// record stores the pending launch with the signature of the signed
// transaction. Failures are logged; the launch goes on.
func (s *Service) record(ctx context.Context, req *CreateTokenRequest, kind programs.Kind, creator solana.PublicKey, set *allocator.AccountSet, meta ResolvedMetadata, signature string) {
	if s.repo == nil {
		return
	}
	ctx, cancel := persistContext(ctx)
	defer cancel()
	var attrs json.RawMessage
	if len(req.Attributes) > 0 || len(req.Socials()) > 0 {
		raw, err := json.Marshal(map[string]interface{}{
			"traits":  req.Attributes,
			"socials": req.Socials(),
		})
		if err == nil {
			attrs = raw
		}
	}
	tok := &store.Token{
		Mint:                    set.Mint.String(),
		Program:                 string(kind),
		Name:                    req.Name,
		Symbol:                  req.Symbol,
		Creator:                 creator.String(),
		MetadataURI:             meta.URI,
		ImageURI:                meta.ImageURI,
		Description:             req.Description,
		Attributes:              attrs,
		CurveAddress:            set.Curve.String(),
		CurveVaultAddress:       set.CurveVault.String(),
		MetadataAddress:         set.Metadata.String(),
		InitialPurchaseLamports: int64(req.InitialPurchaseAmount),
		Signature:               signature,
		Status:                  store.StatusPending,
	}
	if err := s.repo.RecordAsset(ctx, tok); err != nil {
		s.logger.Warn(ctx, "failed to record launch", map[string]interface{}{
			"mint":  tok.Mint,
			"error": err.Error(),
		})
	}
}

// settle writes the submission outcome. A broadcast that did not confirm
// keeps its signature and stays pending for the reconciler, unless the
// ledger reported an execution failure.
func (s *Service) settle(ctx context.Context, mint string, out pipeline.Outcome) {
	if s.repo == nil {
		return
	}
	ctx, cancel := persistContext(ctx)
	defer cancel()
	if out.Signature != "" {
		if err := s.repo.UpdateSignature(ctx, mint, out.Signature); err != nil {
			s.logger.Warn(ctx, "reconciliation gap: signature not stored", map[string]interface{}{
				"mint":      mint,
				"signature": out.Signature,
				"error":     err.Error(),
			})
		}
	}

	var status store.Status
	reason := ""
	var txErr *chain.TransactionError
	switch {
	case out.Confirmed:
		status = store.StatusActive
	case errors.As(out.Err, &txErr), errors.Is(out.Err, errors.ErrSimulation):
		status, reason = store.StatusFailed, out.Err.Error()
	case out.Signature == "":
		status, reason = store.StatusFailed, errString(out.Err)
	default:
		return
	}
	if err := s.repo.UpdateStatus(ctx, mint, status, reason); err != nil {
		s.logger.Warn(ctx, "reconciliation gap: status not stored", map[string]interface{}{
			"mint":   mint,
			"status": string(status),
			"error":  err.Error(),
		})
	}
}

// Token returns the stored launch record for mint.
func (s *Service) Token(ctx context.Context, mint string) (*store.Token, error) {
	if s.repo == nil {
		return nil, errors.NotFound("token", mint)
	}
	return s.repo.GetByMint(ctx, mint)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
