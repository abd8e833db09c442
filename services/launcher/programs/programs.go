// Package programs encodes the create and initial-purchase instructions of
// the supported launch programs. Each program is a table of addresses,
// seeds and discriminators behind the Program interface; the pipeline above
// it is program-agnostic.
package programs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

// Field limits enforced by the token metadata program.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 8
	MaxURILength    = 200
)

// Kind names a supported launch program.
type Kind string

const (
	KindPumpFun   Kind = "pumpfun"
	KindLaunchLab Kind = "launchlab"
)

// Metadata is the on-ledger token metadata written by the create instruction.
type Metadata struct {
	Name     string
	Symbol   string
	URI      string
	Decimals uint8
}

// Validate checks the byte-length limits of every field.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.InvalidFormat("name", "required")
	}
	if strings.TrimSpace(m.Symbol) == "" {
		return errors.InvalidFormat("symbol", "required")
	}
	if len(m.Name) > MaxNameLength {
		return errors.InvalidFormat("name", fmt.Sprintf("must be %d bytes or less", MaxNameLength))
	}
	if len(m.Symbol) > MaxSymbolLength {
		return errors.InvalidFormat("symbol", fmt.Sprintf("must be %d bytes or less", MaxSymbolLength))
	}
	if m.URI == "" {
		return errors.InvalidFormat("uri", "required")
	}
	if len(m.URI) > MaxURILength {
		return errors.InvalidFormat("uri", fmt.Sprintf("must be %d bytes or less", MaxURILength))
	}
	return nil
}

// Accounts are the addresses derived from a fresh asset (mint) key.
type Accounts struct {
	Mint       solana.PublicKey
	Curve      solana.PublicKey
	CurveVault solana.PublicKey
	Metadata   solana.PublicKey
}

// All returns the addresses in lookup order.
func (a Accounts) All() []solana.PublicKey {
	return []solana.PublicKey{a.Mint, a.Curve, a.CurveVault, a.Metadata}
}

// CreateArgs is the decoded form of a create instruction.
type CreateArgs struct {
	Metadata Metadata
	Creator  solana.PublicKey
	Curve    *CurveParams
}

// Program encodes instructions for one launch program.
type Program interface {
	Kind() Kind
	ID() solana.PublicKey
	// DeriveAccounts computes the curve, vault and metadata addresses for mint.
	DeriveAccounts(mint solana.PublicKey) (Accounts, error)
	// EncodeCreate builds the asset creation instruction.
	EncodeCreate(acc Accounts, creator solana.PublicKey, meta Metadata) (solana.Instruction, error)
	// EncodeInitialPurchase builds the instructions that buy lamports worth of
	// the new asset for buyer right after creation.
	EncodeInitialPurchase(acc Accounts, buyer solana.PublicKey, lamports uint64) ([]solana.Instruction, error)
	// DecodeCreate parses create instruction data.
	DecodeCreate(data []byte) (*CreateArgs, error)
}

// Registry maps program kinds to their encoders.
type Registry struct {
	programs map[Kind]Program
}

// NewRegistry builds a registry from the given programs.
func NewRegistry(progs ...Program) *Registry {
	r := &Registry{programs: make(map[Kind]Program, len(progs))}
	for _, p := range progs {
		r.programs[p.Kind()] = p
	}
	return r
}

// Lookup returns the program for kind. An empty kind selects pumpfun.
func (r *Registry) Lookup(kind Kind) (Program, error) {
	if kind == "" {
		kind = KindPumpFun
	}
	p, ok := r.programs[kind]
	if !ok {
		return nil, errors.InvalidFormat("program", fmt.Sprintf("unsupported program %q (supported: %s)", kind, strings.Join(r.kinds(), ", ")))
	}
	return p, nil
}

func (r *Registry) kinds() []string {
	out := make([]string, 0, len(r.programs))
	for k := range r.programs {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Shared derivations
// =============================================================================

// MetadataAddress derives the token metadata account of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), solana.TokenMetadataProgramID[:], mint[:]},
		solana.TokenMetadataProgramID,
	)
	return addr, err
}

func mustFind(seeds [][]byte, program solana.PublicKey) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		panic(fmt.Sprintf("derive program address: %v", err))
	}
	return addr
}
