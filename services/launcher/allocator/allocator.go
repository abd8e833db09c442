// Package allocator finds a fresh asset keypair whose derived accounts are
// all vacant on the ledger.
package allocator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/internal/solana"
	"github.com/R3E-Network/launch_layer/services/launcher/programs"
)

// DefaultMaxAttempts bounds the number of keypairs tried per allocation.
const DefaultMaxAttempts = 20

// Ledger is the account lookup the allocator needs.
type Ledger interface {
	GetAccountInfo(ctx context.Context, pk solana.PublicKey) (*chain.AccountInfo, error)
}

// KeyGenerator produces candidate asset keypairs.
type KeyGenerator func() (*solana.Keypair, error)

// AccountSet is a vacant asset keypair plus its derived addresses.
type AccountSet struct {
	Asset *solana.Keypair
	programs.Accounts

	// Attempts is the number of candidates drawn, including this one.
	Attempts int
}

// Config configures the allocator.
type Config struct {
	MaxAttempts  int
	KeyGenerator KeyGenerator
	Logger       *logging.Logger
}

// Allocator derives and vacancy-checks asset accounts.
type Allocator struct {
	ledger      Ledger
	maxAttempts int
	keygen      KeyGenerator
	logger      *logging.Logger
}

// New creates an allocator backed by ledger.
func New(ledger Ledger, cfg Config) *Allocator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = solana.NewKeypair
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Allocator{
		ledger:      ledger,
		maxAttempts: cfg.MaxAttempts,
		keygen:      cfg.KeyGenerator,
		logger:      cfg.Logger,
	}
}

// Allocate generates keypairs until one yields four vacant addresses under
// prog. Lookup failures abort the allocation; they are not collisions.
func (a *Allocator) Allocate(ctx context.Context, prog programs.Program) (*AccountSet, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		kp, err := a.keygen()
		if err != nil {
			return nil, errors.Internal("generate asset keypair", err)
		}

		accounts, err := prog.DeriveAccounts(kp.PublicKey())
		if err != nil {
			return nil, errors.Internal("derive asset accounts", err)
		}
		if !distinct(accounts.All()) {
			continue
		}

		occupied, err := a.firstOccupied(ctx, accounts.All())
		if err != nil {
			return nil, fmt.Errorf("allocation lookup: %w", err)
		}
		if occupied == nil {
			a.logger.Debug(ctx, "allocated asset accounts", map[string]interface{}{
				"program":  string(prog.Kind()),
				"mint":     accounts.Mint.String(),
				"curve":    accounts.Curve.String(),
				"attempts": attempt,
			})
			return &AccountSet{Asset: kp, Accounts: accounts, Attempts: attempt}, nil
		}

		a.logger.Debug(ctx, "asset account occupied, retrying", map[string]interface{}{
			"address": occupied.String(),
			"attempt": attempt,
		})
	}

	return nil, errors.AllocationExhausted(a.maxAttempts)
}

// Verify re-checks that every address in set is still vacant.
func (a *Allocator) Verify(ctx context.Context, set *AccountSet) error {
	occupied, err := a.firstOccupied(ctx, set.All())
	if err != nil {
		return fmt.Errorf("vacancy check: %w", err)
	}
	if occupied != nil {
		return errors.AccountOccupied(occupied.String())
	}
	return nil
}

// firstOccupied looks up every address in parallel and returns one that
// holds data, or nil.
func (a *Allocator) firstOccupied(ctx context.Context, addrs []solana.PublicKey) (*solana.PublicKey, error) {
	taken := make([]bool, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range addrs {
		i := i
		g.Go(func() error {
			info, err := a.ledger.GetAccountInfo(gctx, addrs[i])
			if err != nil {
				return err
			}
			taken[i] = info != nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, t := range taken {
		if t {
			return &addrs[i], nil
		}
	}
	return nil, nil
}

func distinct(addrs []solana.PublicKey) bool {
	seen := make(map[solana.PublicKey]struct{}, len(addrs))
	for _, pk := range addrs {
		if _, ok := seen[pk]; ok {
			return false
		}
		seen[pk] = struct{}{}
	}
	return true
}
