package programs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/solana"
)

var (
	testMint = func() solana.PublicKey {
		var pk solana.PublicKey
		for i := range pk {
			pk[i] = byte(i + 1)
		}
		return pk
	}()
	testCreator = solana.PublicKey(bytes.Repeat([]byte{9}, 32))
)

func newPumpFun(t *testing.T) *PumpFun {
	t.Helper()
	p, err := NewPumpFun(PumpFunConfig{})
	require.NoError(t, err)
	return p
}

func newLaunchLab(t *testing.T) *LaunchLab {
	t.Helper()
	l, err := NewLaunchLab(LaunchLabConfig{})
	require.NoError(t, err)
	return l
}

// =============================================================================
// Writer / Reader
// =============================================================================

func TestWriterReaderRoundTrip(t *testing.T) {
	d := Discriminator{1, 2, 3, 4, 5, 6, 7, 8}
	data := NewWriter(d).U8(7).U16(0x0102).U32(9).U64(1 << 40).Str("hello").PublicKey(testMint).Bytes()

	r, err := NewReader(data, d)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), r.U8())
	assert.Equal(t, uint16(0x0102), r.U16())
	assert.Equal(t, uint32(9), r.U32())
	assert.Equal(t, uint64(1<<40), r.U64())
	assert.Equal(t, "hello", r.Str())
	assert.Equal(t, testMint, r.PublicKey())
	assert.NoError(t, r.Finish())
}

func TestReaderErrors(t *testing.T) {
	d := Discriminator{1, 2, 3, 4, 5, 6, 7, 8}

	_, err := NewReader([]byte{1, 2}, d)
	assert.Error(t, err)

	_, err = NewReader(NewWriter(Discriminator{9}).Bytes(), d)
	assert.Error(t, err)

	r, err := NewReader(NewWriter(d).U32(100).Bytes(), d)
	require.NoError(t, err)
	r.Str()
	assert.Error(t, r.Finish(), "truncated string")

	r, err = NewReader(NewWriter(d).U8(1).U8(2).Bytes(), d)
	require.NoError(t, err)
	r.U8()
	assert.Error(t, r.Finish(), "trailing byte")
}

// =============================================================================
// Metadata
// =============================================================================

func TestMetadataValidate(t *testing.T) {
	base := Metadata{Name: strings.Repeat("n", 32), Symbol: strings.Repeat("s", 8), URI: strings.Repeat("u", 200)}
	assert.NoError(t, base.Validate())

	tests := []struct {
		name  string
		mod   func(m *Metadata)
		field string
	}{
		{"name 33 bytes", func(m *Metadata) { m.Name += "n" }, "name"},
		{"name multibyte over limit", func(m *Metadata) { m.Name = strings.Repeat("é", 17) }, "name"},
		{"symbol 9 bytes", func(m *Metadata) { m.Symbol += "s" }, "symbol"},
		{"uri 201 bytes", func(m *Metadata) { m.URI += "u" }, "uri"},
		{"empty name", func(m *Metadata) { m.Name = " " }, "name"},
		{"empty uri", func(m *Metadata) { m.URI = "" }, "uri"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base
			tt.mod(&m)
			err := m.Validate()
			require.True(t, errors.Is(err, errors.ErrValidation), "err = %v", err)
			assert.Equal(t, tt.field, errors.GetServiceError(err).Details["field"])
		})
	}
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(newPumpFun(t), newLaunchLab(t))

	p, err := reg.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, KindPumpFun, p.Kind())

	p, err = reg.Lookup(KindLaunchLab)
	require.NoError(t, err)
	assert.Equal(t, KindLaunchLab, p.Kind())

	_, err = reg.Lookup("moonshot")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

// =============================================================================
// PumpFun
// =============================================================================

func TestPumpFunDerivedAddresses(t *testing.T) {
	p := newPumpFun(t)
	assert.Equal(t, "4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf", p.Global().String())

	acc, err := p.DeriveAccounts(testMint)
	require.NoError(t, err)
	assert.Equal(t, testMint, acc.Mint)
	assert.Equal(t, "HycbmCe1QKCrobbdjZf7NGicxYPV6NRCQZYwGJv8u54d", acc.Curve.String())
	assert.Equal(t, "Dz5jz6VywMrrKprTEkwAfF32rP9FSTFmpwVHgP8mUJAh", acc.CurveVault.String())
	assert.Equal(t, "2wuFUBCTExNgjJBjgGvpVkWpuSTgcRr4umSxUzPidNmG", acc.Metadata.String())

	vault, err := p.CreatorVault(testCreator)
	require.NoError(t, err)
	assert.Equal(t, "EnyUWwh6v3VmiBxbnyRWXGhJgoNEzGRTWFqeJGRg1YtN", vault.String())
}

func TestPumpFunEncodeCreate(t *testing.T) {
	p := newPumpFun(t)
	acc, err := p.DeriveAccounts(testMint)
	require.NoError(t, err)

	ix, err := p.EncodeCreate(acc, solana.PublicKey{}, Metadata{Name: "Ab", Symbol: "C", URI: "u"})
	require.NoError(t, err)

	want := []byte{24, 30, 200, 40, 5, 28, 7, 119, 2, 0, 0, 0, 'A', 'b', 1, 0, 0, 0, 'C', 1, 0, 0, 0, 'u'}
	want = append(want, make([]byte, 32)...)
	assert.Equal(t, want, ix.Data)

	require.Len(t, ix.Accounts, 14)
	assert.Equal(t, solana.Meta(testMint, true, true), ix.Accounts[0])
	assert.Equal(t, "TSLvdd1pWpHVjahSpsvCXUbgwsL3JAcvokwaKt1eokM", ix.Accounts[1].PublicKey.String())
	assert.Equal(t, solana.Meta(acc.Curve, false, true), ix.Accounts[2])
	assert.Equal(t, solana.Meta(acc.CurveVault, false, true), ix.Accounts[3])
	assert.Equal(t, solana.Meta(solana.TokenMetadataProgramID, false, false), ix.Accounts[5])
	assert.Equal(t, solana.Meta(acc.Metadata, false, true), ix.Accounts[6])
	assert.True(t, ix.Accounts[7].IsSigner)
	assert.Equal(t, solana.SysvarRentID, ix.Accounts[11].PublicKey)
	assert.Equal(t, "Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1", ix.Accounts[12].PublicKey.String())
	assert.Equal(t, p.ID(), ix.Accounts[13].PublicKey)
}

func TestPumpFunEncodeCreate_DeterministicAndDecodable(t *testing.T) {
	p := newPumpFun(t)
	acc, err := p.DeriveAccounts(testMint)
	require.NoError(t, err)
	meta := Metadata{Name: "Launch Token", Symbol: "LNCH", URI: "https://gateway.example/ipfs/bafy"}

	first, err := p.EncodeCreate(acc, testCreator, meta)
	require.NoError(t, err)
	second, err := p.EncodeCreate(acc, testCreator, meta)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	args, err := p.DecodeCreate(first.Data)
	require.NoError(t, err)
	assert.Equal(t, meta.Name, args.Metadata.Name)
	assert.Equal(t, meta.Symbol, args.Metadata.Symbol)
	assert.Equal(t, meta.URI, args.Metadata.URI)
	assert.Equal(t, testCreator, args.Creator)
}

func TestPumpFunEncodeCreate_RejectsLongName(t *testing.T) {
	p := newPumpFun(t)
	acc, err := p.DeriveAccounts(testMint)
	require.NoError(t, err)

	_, err = p.EncodeCreate(acc, testCreator, Metadata{Name: strings.Repeat("x", 33), Symbol: "X", URI: "u"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestPumpFunQuote(t *testing.T) {
	p := newPumpFun(t)
	assert.Equal(t, uint64(34_612_903_225_806), p.QuoteTokens(solana.LamportsPerSOL))
	assert.Equal(t, uint64(0), p.QuoteTokens(0))
	assert.Equal(t, DefaultRealTokenReserves, p.QuoteTokens(1_000_000*solana.LamportsPerSOL))

	assert.Equal(t, uint64(1_100_000_000), p.MaxSolCost(solana.LamportsPerSOL))
	assert.Equal(t, ^uint64(0), p.MaxSolCost(^uint64(0)))
}

func TestPumpFunEncodeInitialPurchase(t *testing.T) {
	p := newPumpFun(t)
	acc, err := p.DeriveAccounts(testMint)
	require.NoError(t, err)

	ixs, err := p.EncodeInitialPurchase(acc, testCreator, 0)
	require.NoError(t, err)
	assert.Empty(t, ixs)

	ixs, err = p.EncodeInitialPurchase(acc, testCreator, solana.LamportsPerSOL)
	require.NoError(t, err)
	require.Len(t, ixs, 2)

	ata := ixs[0]
	assert.Equal(t, solana.AssociatedTokenProgramID, ata.ProgramID)
	assert.Empty(t, ata.Data)
	assert.Equal(t, "4xpteu1g8oU4XSsVkokoNyhsABXHXDw64oZ3GSCeLfj8", ata.Accounts[1].PublicKey.String())

	buy := ixs[1]
	require.Len(t, buy.Accounts, 12)
	assert.Equal(t, solana.Meta(p.Global(), false, false), buy.Accounts[0])
	assert.Equal(t, DefaultPumpFunFeeRecipient, buy.Accounts[1].PublicKey.String())
	assert.True(t, buy.Accounts[1].IsWritable)
	assert.Equal(t, ata.Accounts[1].PublicKey, buy.Accounts[5].PublicKey)
	assert.Equal(t, solana.Meta(testCreator, true, true), buy.Accounts[6])
	assert.Equal(t, "EnyUWwh6v3VmiBxbnyRWXGhJgoNEzGRTWFqeJGRg1YtN", buy.Accounts[9].PublicKey.String())

	amount, maxCost, err := p.DecodeBuy(buy.Data)
	require.NoError(t, err)
	assert.Equal(t, p.QuoteTokens(solana.LamportsPerSOL), amount)
	assert.Equal(t, uint64(1_100_000_000), maxCost)
}

// =============================================================================
// LaunchLab
// =============================================================================

func TestLaunchLabDerivedAddresses(t *testing.T) {
	l := newLaunchLab(t)
	assert.Equal(t, "6s1xP3hpbAfFoNtUNF8mfHsjr2Bd97JxFJRWLbL6aHuX", l.GlobalConfig().String())
	assert.Equal(t, "WLHv2UAZm6z4KyaaELi5pjdbJh6RESMva1Rnn8pJVVh", l.Authority().String())

	acc, err := l.DeriveAccounts(testMint)
	require.NoError(t, err)
	assert.Equal(t, "59TxM328NDatMWLerDFZdAhdCyZXgW2odAtSwEUkKnoS", acc.Curve.String())
	assert.Equal(t, "7cuT1EESLfW45AWiazaCLGfQBK3DdJSZS5TgrBbpGzi7", acc.CurveVault.String())
	assert.Equal(t, "2wuFUBCTExNgjJBjgGvpVkWpuSTgcRr4umSxUzPidNmG", acc.Metadata.String())
}

func TestLaunchLabEncodeCreate(t *testing.T) {
	l := newLaunchLab(t)
	acc, err := l.DeriveAccounts(testMint)
	require.NoError(t, err)
	meta := Metadata{Name: "Bonk Child", Symbol: "BC", URI: "https://x/ipfs/y", Decimals: 6}

	ix, err := l.EncodeCreate(acc, testCreator, meta)
	require.NoError(t, err)
	assert.Equal(t, []byte{175, 175, 109, 31, 13, 152, 155, 237}, ix.Data[:8])

	require.Len(t, ix.Accounts, 18)
	assert.Equal(t, solana.Meta(testCreator, true, true), ix.Accounts[0])
	assert.Equal(t, solana.Meta(testCreator, true, false), ix.Accounts[1])
	assert.Equal(t, DefaultLaunchLabPlatformConfig, ix.Accounts[3].PublicKey.String())
	assert.Equal(t, solana.Meta(acc.Curve, false, true), ix.Accounts[5])
	assert.Equal(t, solana.Meta(testMint, true, true), ix.Accounts[6])
	assert.Equal(t, solana.WrappedSOLMint, ix.Accounts[7].PublicKey)
	assert.Equal(t, "D7n5MWkNjFjsjTWPw56jZGXgbruWk32G2VFUF6nqLHd1", ix.Accounts[9].PublicKey.String())
	assert.Equal(t, l.ID(), ix.Accounts[17].PublicKey)

	args, err := l.DecodeCreate(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, meta, args.Metadata)
	require.NotNil(t, args.Curve)
	assert.Equal(t, CurveParams{
		Supply:                DefaultSupply,
		TotalBaseSell:         DefaultTotalBaseSell,
		TotalQuoteFundRaising: DefaultTotalQuoteFundRaising,
		MigrateType:           MigrateAMM,
	}, *args.Curve)

	// 8 disc + 1 decimals + 3 strings + 1 tag + 3 u64 + 1 migrate + 3 u64 vesting
	wantLen := 8 + 1 + (4 + len(meta.Name)) + (4 + len(meta.Symbol)) + (4 + len(meta.URI)) + 1 + 24 + 1 + 24
	assert.Len(t, ix.Data, wantLen)
}

func TestLaunchLabRejectsBadInput(t *testing.T) {
	l := newLaunchLab(t)
	acc, err := l.DeriveAccounts(testMint)
	require.NoError(t, err)

	_, err = l.EncodeCreate(acc, testCreator, Metadata{Name: "A", Symbol: "B", URI: "u", Decimals: 10})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	ixs, err := l.EncodeInitialPurchase(acc, testCreator, 0)
	require.NoError(t, err)
	assert.Empty(t, ixs)

	_, err = l.EncodeInitialPurchase(acc, testCreator, 1)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = NewLaunchLab(LaunchLabConfig{Curve: CurveParams{Supply: 10, TotalBaseSell: 11}})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
