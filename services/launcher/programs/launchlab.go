package programs

import (
	"fmt"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

var launchLabInitializeDiscriminator = Discriminator{175, 175, 109, 31, 13, 152, 155, 237}

// LaunchLab defaults (LetsBonk platform, constant-product curve).
const (
	DefaultLaunchLabProgramID      = "LanMV9sAd7wArD4vJFi2qDdfnVhFxYSUg6eADduJ3uj"
	DefaultLaunchLabPlatformConfig = "FfYek5vEz23cMkWsdJwG2oa6EphsvXSHrGpdALN4g6W1"

	DefaultDecimals              uint8  = 6
	DefaultSupply                uint64 = 1_000_000_000_000_000
	DefaultTotalBaseSell         uint64 = 793_100_000_000_000
	DefaultTotalQuoteFundRaising uint64 = 85 * solana.LamportsPerSOL

	maxDecimals = 9
)

// Migration targets once the curve completes.
const (
	MigrateAMM  uint8 = 0
	MigrateCPMM uint8 = 1
)

// curveConstant is the CurveParams enum tag of the constant-product curve.
const curveConstant uint8 = 0

// CurveParams configures a constant-product launch curve.
type CurveParams struct {
	Supply                uint64 `yaml:"supply"`
	TotalBaseSell         uint64 `yaml:"total_base_sell"`
	TotalQuoteFundRaising uint64 `yaml:"total_quote_fund_raising"`
	MigrateType           uint8  `yaml:"migrate_type"`
}

// VestingParams configures creator token vesting. Zero disables vesting.
type VestingParams struct {
	TotalLockedAmount uint64 `yaml:"total_locked_amount"`
	CliffPeriod       uint64 `yaml:"cliff_period"`
	UnlockPeriod      uint64 `yaml:"unlock_period"`
}

// LaunchLabConfig overrides the launchpad program table.
type LaunchLabConfig struct {
	ProgramID      string        `yaml:"program_id"`
	PlatformConfig string        `yaml:"platform_config"`
	QuoteMint      string        `yaml:"quote_mint"`
	Curve          CurveParams   `yaml:"curve"`
	Vesting        VestingParams `yaml:"vesting"`
}

// LaunchLab encodes instructions for the Raydium launchpad program.
type LaunchLab struct {
	id             solana.PublicKey
	platformConfig solana.PublicKey
	quoteMint      solana.PublicKey
	globalConfig   solana.PublicKey
	authority      solana.PublicKey
	eventAuthority solana.PublicKey
	curve          CurveParams
	vesting        VestingParams
}

// NewLaunchLab builds the program table, filling defaults for zero fields.
func NewLaunchLab(cfg LaunchLabConfig) (*LaunchLab, error) {
	if cfg.ProgramID == "" {
		cfg.ProgramID = DefaultLaunchLabProgramID
	}
	if cfg.PlatformConfig == "" {
		cfg.PlatformConfig = DefaultLaunchLabPlatformConfig
	}
	if cfg.QuoteMint == "" {
		cfg.QuoteMint = solana.WrappedSOLMint.String()
	}
	if cfg.Curve.Supply == 0 {
		cfg.Curve.Supply = DefaultSupply
	}
	if cfg.Curve.TotalBaseSell == 0 {
		cfg.Curve.TotalBaseSell = DefaultTotalBaseSell
	}
	if cfg.Curve.TotalQuoteFundRaising == 0 {
		cfg.Curve.TotalQuoteFundRaising = DefaultTotalQuoteFundRaising
	}
	if cfg.Curve.TotalBaseSell > cfg.Curve.Supply {
		return nil, errors.Validation("launchlab curve: total_base_sell %d exceeds supply %d", cfg.Curve.TotalBaseSell, cfg.Curve.Supply)
	}
	if cfg.Curve.MigrateType > MigrateCPMM {
		return nil, errors.Validation("launchlab curve: unknown migrate_type %d", cfg.Curve.MigrateType)
	}

	id, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, errors.InvalidFormat("launchlab.program_id", err.Error())
	}
	platform, err := solana.PublicKeyFromBase58(cfg.PlatformConfig)
	if err != nil {
		return nil, errors.InvalidFormat("launchlab.platform_config", err.Error())
	}
	quote, err := solana.PublicKeyFromBase58(cfg.QuoteMint)
	if err != nil {
		return nil, errors.InvalidFormat("launchlab.quote_mint", err.Error())
	}

	// global_config is keyed by quote mint, curve type and config index 0.
	global := mustFind([][]byte{[]byte("global_config"), quote[:], {curveConstant}, {0, 0}}, id)

	return &LaunchLab{
		id:             id,
		platformConfig: platform,
		quoteMint:      quote,
		globalConfig:   global,
		authority:      mustFind([][]byte{[]byte("vault_auth_seed")}, id),
		eventAuthority: mustFind([][]byte{[]byte("__event_authority")}, id),
		curve:          cfg.Curve,
		vesting:        cfg.Vesting,
	}, nil
}

func (l *LaunchLab) Kind() Kind { return KindLaunchLab }

func (l *LaunchLab) ID() solana.PublicKey { return l.id }

// GlobalConfig returns the derived global config address.
func (l *LaunchLab) GlobalConfig() solana.PublicKey { return l.globalConfig }

// Authority returns the vault authority address.
func (l *LaunchLab) Authority() solana.PublicKey { return l.authority }

// DeriveAccounts computes the pool state, its base vault and the metadata
// account for mint.
func (l *LaunchLab) DeriveAccounts(mint solana.PublicKey) (Accounts, error) {
	pool, _, err := solana.FindProgramAddress([][]byte{[]byte("pool"), mint[:], l.quoteMint[:]}, l.id)
	if err != nil {
		return Accounts{}, err
	}
	vault, err := l.poolVault(pool, mint)
	if err != nil {
		return Accounts{}, err
	}
	meta, err := MetadataAddress(mint)
	if err != nil {
		return Accounts{}, err
	}
	return Accounts{Mint: mint, Curve: pool, CurveVault: vault, Metadata: meta}, nil
}

func (l *LaunchLab) poolVault(pool, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("pool_vault"), pool[:], mint[:]}, l.id)
	return addr, err
}

// EncodeCreate builds the initialize instruction. The creator pays for and
// signs the launch.
func (l *LaunchLab) EncodeCreate(acc Accounts, creator solana.PublicKey, meta Metadata) (solana.Instruction, error) {
	if err := meta.Validate(); err != nil {
		return solana.Instruction{}, err
	}
	if meta.Decimals > maxDecimals {
		return solana.Instruction{}, errors.InvalidFormat("decimals", fmt.Sprintf("must be between 0 and %d", maxDecimals))
	}

	quoteVault, err := l.poolVault(acc.Curve, l.quoteMint)
	if err != nil {
		return solana.Instruction{}, err
	}

	data := NewWriter(launchLabInitializeDiscriminator).
		U8(meta.Decimals).
		Str(meta.Name).
		Str(meta.Symbol).
		Str(meta.URI).
		U8(curveConstant).
		U64(l.curve.Supply).
		U64(l.curve.TotalBaseSell).
		U64(l.curve.TotalQuoteFundRaising).
		U8(l.curve.MigrateType).
		U64(l.vesting.TotalLockedAmount).
		U64(l.vesting.CliffPeriod).
		U64(l.vesting.UnlockPeriod).
		Bytes()

	return solana.Instruction{
		ProgramID: l.id,
		Accounts: []solana.AccountMeta{
			solana.Meta(creator, true, true),
			solana.Meta(creator, true, false),
			solana.Meta(l.globalConfig, false, false),
			solana.Meta(l.platformConfig, false, false),
			solana.Meta(l.authority, false, false),
			solana.Meta(acc.Curve, false, true),
			solana.Meta(acc.Mint, true, true),
			solana.Meta(l.quoteMint, false, false),
			solana.Meta(acc.CurveVault, false, true),
			solana.Meta(quoteVault, false, true),
			solana.Meta(acc.Metadata, false, true),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(solana.TokenProgramID, false, false),
			solana.Meta(solana.TokenMetadataProgramID, false, false),
			solana.Meta(solana.SystemProgramID, false, false),
			solana.Meta(solana.SysvarRentID, false, false),
			solana.Meta(l.eventAuthority, false, false),
			solana.Meta(l.id, false, false),
		},
		Data: data,
	}, nil
}

// DecodeCreate parses initialize instruction data.
func (l *LaunchLab) DecodeCreate(data []byte) (*CreateArgs, error) {
	r, err := NewReader(data, launchLabInitializeDiscriminator)
	if err != nil {
		return nil, err
	}
	args := &CreateArgs{Curve: &CurveParams{}}
	args.Metadata.Decimals = r.U8()
	args.Metadata.Name = r.Str()
	args.Metadata.Symbol = r.Str()
	args.Metadata.URI = r.Str()
	if tag := r.U8(); tag != curveConstant {
		return nil, fmt.Errorf("unsupported curve variant %d", tag)
	}
	args.Curve.Supply = r.U64()
	args.Curve.TotalBaseSell = r.U64()
	args.Curve.TotalQuoteFundRaising = r.U64()
	args.Curve.MigrateType = r.U8()
	r.U64()
	r.U64()
	r.U64()
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return args, nil
}

// EncodeInitialPurchase is only defined for zero lamports: launches on this
// program are create-only.
func (l *LaunchLab) EncodeInitialPurchase(_ Accounts, _ solana.PublicKey, lamports uint64) ([]solana.Instruction, error) {
	if lamports == 0 {
		return nil, nil
	}
	return nil, errors.InvalidFormat("initialPurchaseAmount", "initial purchase is not supported for launchlab")
}
