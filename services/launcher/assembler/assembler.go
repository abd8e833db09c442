// Package assembler compiles encoded instructions into a signed legacy
// transaction and dry-runs it before anything is broadcast.
package assembler

import (
	"context"

	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

// Simulator dry-runs transactions.
type Simulator interface {
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*chain.SimulationResult, error)
}

// Assembler builds and simulates transactions.
type Assembler struct {
	sim    Simulator
	logger *logging.Logger
}

// New creates an assembler.
func New(sim Simulator, logger *logging.Logger) *Assembler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Assembler{sim: sim, logger: logger}
}

// Assemble compiles instructions paid by feePayer, stamps the checkpoint's
// blockhash and signs with every signer. A signer the message does not need,
// or a required signer that is missing, is an error.
func (a *Assembler) Assemble(instructions []solana.Instruction, feePayer solana.PublicKey, cp chain.Checkpoint, signers ...solana.Signer) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, errors.Validation("transaction has no instructions")
	}

	tx, err := solana.NewTransaction(feePayer, instructions, cp.Blockhash)
	if err != nil {
		return nil, errors.Validation("compile transaction: %v", err)
	}
	if err := tx.Sign(signers...); err != nil {
		return nil, errors.Internal("sign transaction", err)
	}
	if _, err := tx.Serialize(); err != nil {
		return nil, errors.Validation("%v", err)
	}
	return tx, nil
}

// Simulate dry-runs tx. A rejected run is a terminal Simulation error
// carrying the program logs.
func (a *Assembler) Simulate(ctx context.Context, tx *solana.Transaction) error {
	res, err := a.sim.SimulateTransaction(ctx, tx)
	if err != nil {
		return err
	}
	if res.Failed() {
		a.logger.Warn(ctx, "transaction simulation failed", map[string]interface{}{
			"signature": tx.Signature().String(),
			"err":       string(res.Err),
			"logs":      len(res.Logs),
		})
		return errors.Simulation(string(res.Err), res.Logs)
	}

	a.logger.Debug(ctx, "transaction simulation passed", map[string]interface{}{
		"signature":      tx.Signature().String(),
		"units_consumed": res.UnitsConsumed,
	})
	return nil
}
