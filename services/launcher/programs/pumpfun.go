package programs

import (
	"math/big"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

var (
	pumpCreateDiscriminator = Discriminator{24, 30, 200, 40, 5, 28, 7, 119}
	pumpBuyDiscriminator    = Discriminator{102, 6, 61, 18, 1, 218, 235, 234}
)

// PumpFun defaults for a freshly created bonding curve.
const (
	DefaultPumpFunProgramID    = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	DefaultPumpFunFeeRecipient = "CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"

	DefaultVirtualSolReserves   uint64 = 30 * solana.LamportsPerSOL
	DefaultVirtualTokenReserves uint64 = 1_073_000_000_000_000
	DefaultRealTokenReserves    uint64 = 793_100_000_000_000
	DefaultSlippageBps          uint64 = 1000
)

// PumpFunConfig overrides the bonding-curve program table.
type PumpFunConfig struct {
	ProgramID            string `yaml:"program_id"`
	FeeRecipient         string `yaml:"fee_recipient"`
	SlippageBps          uint64 `yaml:"slippage_bps"`
	VirtualSolReserves   uint64 `yaml:"virtual_sol_reserves"`
	VirtualTokenReserves uint64 `yaml:"virtual_token_reserves"`
	RealTokenReserves    uint64 `yaml:"real_token_reserves"`
}

// PumpFun encodes instructions for the bonding-curve launch program.
type PumpFun struct {
	id             solana.PublicKey
	feeRecipient   solana.PublicKey
	global         solana.PublicKey
	mintAuthority  solana.PublicKey
	eventAuthority solana.PublicKey
	slippageBps    uint64
	virtualSol     uint64
	virtualToken   uint64
	realToken      uint64
}

// NewPumpFun builds the program table, filling defaults for zero fields.
func NewPumpFun(cfg PumpFunConfig) (*PumpFun, error) {
	if cfg.ProgramID == "" {
		cfg.ProgramID = DefaultPumpFunProgramID
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = DefaultPumpFunFeeRecipient
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.VirtualSolReserves == 0 {
		cfg.VirtualSolReserves = DefaultVirtualSolReserves
	}
	if cfg.VirtualTokenReserves == 0 {
		cfg.VirtualTokenReserves = DefaultVirtualTokenReserves
	}
	if cfg.RealTokenReserves == 0 {
		cfg.RealTokenReserves = DefaultRealTokenReserves
	}

	id, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, errors.InvalidFormat("pumpfun.program_id", err.Error())
	}
	fee, err := solana.PublicKeyFromBase58(cfg.FeeRecipient)
	if err != nil {
		return nil, errors.InvalidFormat("pumpfun.fee_recipient", err.Error())
	}

	return &PumpFun{
		id:             id,
		feeRecipient:   fee,
		global:         mustFind([][]byte{[]byte("global")}, id),
		mintAuthority:  mustFind([][]byte{[]byte("mint-authority")}, id),
		eventAuthority: mustFind([][]byte{[]byte("__event_authority")}, id),
		slippageBps:    cfg.SlippageBps,
		virtualSol:     cfg.VirtualSolReserves,
		virtualToken:   cfg.VirtualTokenReserves,
		realToken:      cfg.RealTokenReserves,
	}, nil
}

func (p *PumpFun) Kind() Kind { return KindPumpFun }

func (p *PumpFun) ID() solana.PublicKey { return p.id }

// Global returns the program's global state address.
func (p *PumpFun) Global() solana.PublicKey { return p.global }

// DeriveAccounts computes the bonding curve, its token vault and the
// metadata account for mint.
func (p *PumpFun) DeriveAccounts(mint solana.PublicKey) (Accounts, error) {
	curve, _, err := solana.FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, p.id)
	if err != nil {
		return Accounts{}, err
	}
	vault, err := solana.FindAssociatedTokenAddress(curve, mint, solana.TokenProgramID)
	if err != nil {
		return Accounts{}, err
	}
	meta, err := MetadataAddress(mint)
	if err != nil {
		return Accounts{}, err
	}
	return Accounts{Mint: mint, Curve: curve, CurveVault: vault, Metadata: meta}, nil
}

// EncodeCreate builds the create instruction: name, symbol, uri, creator.
func (p *PumpFun) EncodeCreate(acc Accounts, creator solana.PublicKey, meta Metadata) (solana.Instruction, error) {
	if err := meta.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := NewWriter(pumpCreateDiscriminator).
		Str(meta.Name).
		Str(meta.Symbol).
		Str(meta.URI).
		PublicKey(creator).
		Bytes()

	return solana.Instruction{
		ProgramID: p.id,
		Accounts: []solana.AccountMeta{
			solana.Meta(acc.Mint, true, true),
			solana.Meta(p.mintAuthority, false, false),
			solana.Meta(acc.Curve, false, true),
			solana.Meta(acc.CurveVault, false, true),
			solana.Meta(p.global, false, false),
			solana.Meta(solana.TokenMetadataProgramID, false, false),
			solana.Meta(acc.Metadata, false, true),
			solana.Meta(creator, true, true),
			solana.Meta(solana.SystemProgramID, false, false),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(solana.AssociatedTokenProgramID, false, false),
			solana.Meta(solana.SysvarRentID, false, false),
			solana.Meta(p.eventAuthority, false, false),
			solana.Meta(p.id, false, false),
		},
		Data: data,
	}, nil
}

// DecodeCreate parses create instruction data.
func (p *PumpFun) DecodeCreate(data []byte) (*CreateArgs, error) {
	r, err := NewReader(data, pumpCreateDiscriminator)
	if err != nil {
		return nil, err
	}
	args := &CreateArgs{}
	args.Metadata.Name = r.Str()
	args.Metadata.Symbol = r.Str()
	args.Metadata.URI = r.Str()
	args.Creator = r.PublicKey()
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return args, nil
}

// QuoteTokens returns the tokens lamports buys from a fresh curve, capped at
// the curve's real token reserves.
func (p *PumpFun) QuoteTokens(lamports uint64) uint64 {
	in := new(big.Int).SetUint64(lamports)
	num := new(big.Int).Mul(in, new(big.Int).SetUint64(p.virtualToken))
	den := new(big.Int).Add(new(big.Int).SetUint64(p.virtualSol), in)
	out := num.Div(num, den)
	if !out.IsUint64() || out.Uint64() > p.realToken {
		return p.realToken
	}
	return out.Uint64()
}

// MaxSolCost adds the slippage allowance to lamports.
func (p *PumpFun) MaxSolCost(lamports uint64) uint64 {
	extra := new(big.Int).Mul(new(big.Int).SetUint64(lamports), new(big.Int).SetUint64(p.slippageBps))
	extra.Div(extra, big.NewInt(10_000))
	total := extra.Add(extra, new(big.Int).SetUint64(lamports))
	if !total.IsUint64() {
		return ^uint64(0)
	}
	return total.Uint64()
}

// CreatorVault derives the fee vault of creator.
func (p *PumpFun) CreatorVault(creator solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("creator-vault"), creator[:]}, p.id)
	return addr, err
}

// EncodeInitialPurchase opens the buyer's token account and buys from the
// new curve. Zero lamports yields no instructions.
func (p *PumpFun) EncodeInitialPurchase(acc Accounts, buyer solana.PublicKey, lamports uint64) ([]solana.Instruction, error) {
	if lamports == 0 {
		return nil, nil
	}

	buyerATA, err := solana.FindAssociatedTokenAddress(buyer, acc.Mint, solana.TokenProgramID)
	if err != nil {
		return nil, err
	}
	creatorVault, err := p.CreatorVault(buyer)
	if err != nil {
		return nil, err
	}

	data := NewWriter(pumpBuyDiscriminator).
		U64(p.QuoteTokens(lamports)).
		U64(p.MaxSolCost(lamports)).
		Bytes()

	buy := solana.Instruction{
		ProgramID: p.id,
		Accounts: []solana.AccountMeta{
			solana.Meta(p.global, false, false),
			solana.Meta(p.feeRecipient, false, true),
			solana.Meta(acc.Mint, false, false),
			solana.Meta(acc.Curve, false, true),
			solana.Meta(acc.CurveVault, false, true),
			solana.Meta(buyerATA, false, true),
			solana.Meta(buyer, true, true),
			solana.Meta(solana.SystemProgramID, false, false),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(creatorVault, false, true),
			solana.Meta(p.eventAuthority, false, false),
			solana.Meta(p.id, false, false),
		},
		Data: data,
	}

	return []solana.Instruction{
		solana.NewCreateAssociatedTokenAccountInstruction(buyer, buyerATA, buyer, acc.Mint),
		buy,
	}, nil
}

// DecodeBuy parses buy instruction data into token amount and max SOL cost.
func (p *PumpFun) DecodeBuy(data []byte) (amount, maxSolCost uint64, err error) {
	r, err := NewReader(data, pumpBuyDiscriminator)
	if err != nil {
		return 0, 0, err
	}
	amount = r.U64()
	maxSolCost = r.U64()
	return amount, maxSolCost, r.Finish()
}
