package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/launch_layer/internal/cache"
	"github.com/R3E-Network/launch_layer/internal/chain"
	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/jito"
	"github.com/R3E-Network/launch_layer/internal/logging"
	"github.com/R3E-Network/launch_layer/internal/pinning"
	"github.com/R3E-Network/launch_layer/internal/solana"
	"github.com/R3E-Network/launch_layer/services/launcher/allocator"
	"github.com/R3E-Network/launch_layer/services/launcher/assembler"
	"github.com/R3E-Network/launch_layer/services/launcher/pipeline"
	"github.com/R3E-Network/launch_layer/services/launcher/programs"
	"github.com/R3E-Network/launch_layer/services/launcher/store"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeChain serves every ledger call the orchestration stack makes.
type fakeChain struct {
	mu          sync.Mutex
	lookups     int
	blockhashes int
	simErr      json.RawMessage
	sent        []*solana.Transaction
	unconfirmed bool
	statuses    map[string]*chain.SignatureStatus
}

func newFakeChain() *fakeChain {
	return &fakeChain{statuses: make(map[string]*chain.SignatureStatus)}
}

func (f *fakeChain) GetAccountInfo(context.Context, solana.PublicKey) (*chain.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return nil, nil
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (chain.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashes++
	return chain.Checkpoint{Blockhash: solana.Hash{7, byte(f.blockhashes)}, LastValidBlockHeight: 1000}, nil
}

func (f *fakeChain) SimulateTransaction(context.Context, *solana.Transaction) (*chain.SimulationResult, error) {
	return &chain.SimulationResult{Err: f.simErr, Logs: []string{"Program log: test"}}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return tx.Signature().String(), nil
}

func (f *fakeChain) GetSignatureStatus(_ context.Context, sig string) (*chain.SignatureStatus, error) {
	st, err := f.GetSignatureStatuses(context.Background(), sig)
	if err != nil {
		return nil, err
	}
	return st[0], nil
}

func (f *fakeChain) GetSignatureStatuses(_ context.Context, sigs ...string) ([]*chain.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*chain.SignatureStatus, len(sigs))
	for i, s := range sigs {
		if st, ok := f.statuses[s]; ok {
			out[i] = st
		} else if !f.unconfirmed {
			out[i] = &chain.SignatureStatus{Slot: 10, ConfirmationStatus: chain.CommitmentConfirmed}
		}
	}
	return out, nil
}

func (f *fakeChain) ConfirmTransaction(_ context.Context, sig string, _ chain.Checkpoint) (*chain.SignatureStatus, error) {
	if f.unconfirmed {
		return nil, errors.CheckpointExpired("block height exceeded", nil)
	}
	return &chain.SignatureStatus{ConfirmationStatus: chain.CommitmentConfirmed}, nil
}

func (f *fakeChain) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRelay struct {
	mu      sync.Mutex
	bundles [][]string
}

func (r *fakeRelay) SendBundle(_ context.Context, txs []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, txs)
	return "bundle-1", nil
}

func (r *fakeRelay) GetBundleStatuses(context.Context, []string) ([]jito.BundleStatus, error) {
	return nil, nil
}

func (r *fakeRelay) RandomTipAccount() solana.PublicKey {
	return solana.MustPublicKey(jito.DefaultTipAccounts[0])
}

type fakePinner struct {
	mu        sync.Mutex
	images    int
	filenames []string
	docs      []TokenMetadata
}

func (p *fakePinner) UploadImage(_ context.Context, data []byte, filename string) (pinning.Pinned, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images++
	p.filenames = append(p.filenames, filename)
	ct, err := pinning.DetectImage(data)
	if err != nil {
		return pinning.Pinned{}, err
	}
	return pinning.Pinned{CID: "bafkimage", URI: "https://gw.test/ipfs/bafkimage", ContentType: ct}, nil
}

func (p *fakePinner) UploadJSON(_ context.Context, _ string, v interface{}) (pinning.Pinned, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := v.(TokenMetadata)
	if ok {
		p.docs = append(p.docs, doc)
	}
	return pinning.Pinned{CID: "bafkjson", URI: "https://gw.test/ipfs/bafkjson", ContentType: "application/json"}, nil
}

type panicSubmitter struct{}

func (panicSubmitter) Submit(context.Context, *solana.Transaction, solana.Signer, chain.Checkpoint, ...solana.Signer) pipeline.Outcome {
	panic("relay exploded")
}

type stubSubmitter struct {
	out pipeline.Outcome
}

func (s stubSubmitter) Submit(context.Context, *solana.Transaction, solana.Signer, chain.Checkpoint, ...solana.Signer) pipeline.Outcome {
	return s.out
}

// =============================================================================
// Harness
// =============================================================================

var pngImage = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type harness struct {
	svc      *Service
	chain    *fakeChain
	relay    *fakeRelay
	pinner   *fakePinner
	repo     *store.MockRepository
	registry *programs.Registry
	asset    *solana.Keypair
	creator  *solana.Keypair
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	pump, err := programs.NewPumpFun(programs.PumpFunConfig{})
	require.NoError(t, err)
	lab, err := programs.NewLaunchLab(programs.LaunchLabConfig{})
	require.NoError(t, err)

	h := &harness{
		chain:    newFakeChain(),
		relay:    &fakeRelay{},
		pinner:   &fakePinner{},
		repo:     store.NewMockRepository(),
		registry: programs.NewRegistry(pump, lab),
	}
	h.asset, err = solana.KeypairFromSeed(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	h.creator, err = solana.KeypairFromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	logger := logging.Discard()
	cfg := Config{
		Registry: h.registry,
		Allocator: allocator.New(h.chain, allocator.Config{
			KeyGenerator: func() (*solana.Keypair, error) { return h.asset, nil },
			Logger:       logger,
		}),
		Assembler: assembler.New(h.chain, logger),
		Submitter: pipeline.New(h.chain, h.relay, pipeline.Config{
			BundleBackoffBase: time.Millisecond,
			BundleBackoffMax:  time.Millisecond,
			ConfirmAttempts:   2,
			ConfirmInterval:   time.Millisecond,
			Logger:            logger,
		}),
		Ledger:     h.chain,
		Pinner:     h.pinner,
		Cache:      cache.NewMemory(),
		Repository: h.repo,
		Logger:     logger,
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.svc, err = New(cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) secret() string {
	return base58.Encode(h.creator.SecretKey())
}

func (h *harness) demoRequest() CreateTokenRequest {
	return CreateTokenRequest{
		Name:          "Demo",
		Symbol:        "DMO",
		CreatorSecret: h.secret(),
		MetadataURI:   "https://x/y.json",
	}
}

// bundledMain returns the main transaction of the first bundle sent.
func (h *harness) bundledMain(t *testing.T) *solana.Transaction {
	t.Helper()
	h.relay.mu.Lock()
	defer h.relay.mu.Unlock()
	require.NotEmpty(t, h.relay.bundles)
	require.Len(t, h.relay.bundles[0], 2)
	tx, err := solana.ParseTransactionBase58(h.relay.bundles[0][1])
	require.NoError(t, err)
	return tx
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCreateToken_EndToEnd(t *testing.T) {
	h := newHarness(t)

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, h.asset.PublicKey().String(), res.MintAddress)

	main := h.bundledMain(t)
	assert.Equal(t, main.Signature().String(), res.Signature)
	assert.True(t, main.VerifySignatures())
	assert.Equal(t, 0, h.chain.sentCount(), "no direct broadcast after a bundled confirm")
	assert.Equal(t, 0, h.pinner.images, "pinning skipped when a URI is supplied")

	// Zero purchase: one program instruction and nothing else.
	require.Len(t, main.Message.Instructions, 1)
	ix := main.Message.Instructions[0]
	assert.Equal(t, solana.MustPublicKey(programs.DefaultPumpFunProgramID), main.Message.AccountKeys[ix.ProgramIDIndex])

	tok, err := h.repo.GetByMint(context.Background(), res.MintAddress)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, tok.Status)
	assert.Equal(t, res.Signature, tok.Signature)
	assert.Equal(t, "https://x/y.json", tok.MetadataURI)
	assert.Equal(t, h.creator.PublicKey().String(), tok.Creator)
}

func TestCreateToken_LaunchLab(t *testing.T) {
	h := newHarness(t)
	req := h.demoRequest()
	req.Program = programs.KindLaunchLab
	nine := uint8(9)
	req.Decimals = &nine

	res := h.svc.CreateToken(context.Background(), req)
	require.True(t, res.Success, "error: %s", res.Error)

	main := h.bundledMain(t)
	require.Len(t, main.Message.Instructions, 1)
	ix := main.Message.Instructions[0]
	assert.Equal(t, solana.MustPublicKey(programs.DefaultLaunchLabProgramID), main.Message.AccountKeys[ix.ProgramIDIndex])

	lab, err := h.registry.Lookup(programs.KindLaunchLab)
	require.NoError(t, err)
	args, err := lab.DecodeCreate(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), args.Metadata.Decimals)
}

func TestCreateToken_InitialPurchaseAddsInstructions(t *testing.T) {
	h := newHarness(t)
	req := h.demoRequest()
	req.InitialPurchaseAmount = solana.LamportsPerSOL

	res := h.svc.CreateToken(context.Background(), req)
	require.True(t, res.Success, "error: %s", res.Error)

	main := h.bundledMain(t)
	assert.Len(t, main.Message.Instructions, 3, "create, associated account, buy")
}

func TestCreateToken_NameLengthBoundary(t *testing.T) {
	h := newHarness(t)

	req := h.demoRequest()
	req.Name = strings.Repeat("a", 32)
	res := h.svc.CreateToken(context.Background(), req)
	assert.True(t, res.Success, "32-byte name: %s", res.Error)

	h = newHarness(t)
	req = h.demoRequest()
	req.Name = strings.Repeat("a", 33)
	res = h.svc.CreateToken(context.Background(), req)
	assert.False(t, res.Success)
	assert.Equal(t, string(errors.CodeValidation), res.Code)
	assert.Equal(t, 0, h.chain.lookups, "rejected before any ledger call")
	assert.Equal(t, 0, h.chain.blockhashes)
	assert.Empty(t, h.relay.bundles)
}

func TestCreateToken_RejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	ten := uint8(10)
	nine := uint8(9)

	tests := []struct {
		name   string
		mutate func(*CreateTokenRequest)
	}{
		{"missing name", func(r *CreateTokenRequest) { r.Name = " " }},
		{"long symbol", func(r *CreateTokenRequest) { r.Symbol = "ABCDEFGHI" }},
		{"long uri", func(r *CreateTokenRequest) { r.MetadataURI = "https://x/" + strings.Repeat("y", 200) }},
		{"no uri or image", func(r *CreateTokenRequest) { r.MetadataURI = "" }},
		{"uri and image", func(r *CreateTokenRequest) { r.Image = pngImage }},
		{"oversized image", func(r *CreateTokenRequest) {
			r.MetadataURI = ""
			r.Image = make([]byte, MaxImageBytes+1)
		}},
		{"bad external url", func(r *CreateTokenRequest) { r.ExternalURL = "ftp://x" }},
		{"bad twitter", func(r *CreateTokenRequest) { r.Twitter = "x.com/demo" }},
		{"long description", func(r *CreateTokenRequest) { r.Description = strings.Repeat("d", 201) }},
		{"bad secret", func(r *CreateTokenRequest) { r.CreatorSecret = "not-base58!" }},
		{"short secret", func(r *CreateTokenRequest) { r.CreatorSecret = base58.Encode([]byte{1, 2, 3}) }},
		{"unknown program", func(r *CreateTokenRequest) { r.Program = "moonshot" }},
		{"launchlab decimals", func(r *CreateTokenRequest) {
			r.Program = programs.KindLaunchLab
			r.Decimals = &ten
		}},
		{"pumpfun decimals", func(r *CreateTokenRequest) { r.Decimals = &nine }},
		{"launchlab purchase", func(r *CreateTokenRequest) {
			r.Program = programs.KindLaunchLab
			r.InitialPurchaseAmount = 1
		}},
		{"not an image", func(r *CreateTokenRequest) {
			r.MetadataURI = ""
			r.Image = []byte("plain text, not an image")
		}},
		{"empty trait", func(r *CreateTokenRequest) { r.Attributes = []Attribute{{Value: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.demoRequest()
			tt.mutate(&req)
			res := h.svc.CreateToken(context.Background(), req)
			assert.False(t, res.Success)
			assert.Equal(t, string(errors.CodeValidation), res.Code, "error: %s", res.Error)
			assert.NotEmpty(t, res.Error)
		})
	}
	assert.Empty(t, h.relay.bundles)
}

func TestCreateToken_PinsImageOncePerFingerprint(t *testing.T) {
	h := newHarness(t)
	req := h.demoRequest()
	req.MetadataURI = ""
	req.Image = pngImage
	req.ImageFilename = "demo.png"
	req.Attributes = []Attribute{{TraitType: "tier", Value: "gold"}}
	req.Website = "https://demo.example"

	res := h.svc.CreateToken(context.Background(), req)
	require.True(t, res.Success, "error: %s", res.Error)

	// Identical second request: served from the cache.
	again := h.svc.CreateToken(context.Background(), req)
	require.True(t, again.Success, "error: %s", again.Error)

	assert.Equal(t, 1, h.pinner.images)
	require.Len(t, h.pinner.docs, 1)
	assert.Equal(t, []string{"demo.png"}, h.pinner.filenames)

	doc := h.pinner.docs[0]
	assert.Equal(t, "Demo", doc.Name)
	assert.Equal(t, "A pumpfun token", doc.Description)
	assert.Equal(t, "https://gw.test/ipfs/bafkimage", doc.Image)
	assert.Equal(t, "image/png", doc.Properties.Files[0].Type)
	assert.Equal(t, "image", doc.Properties.Category)
	assert.Equal(t, []Creator{{Address: h.creator.PublicKey().String(), Share: 100}}, doc.Properties.Creators)
	assert.Equal(t, map[string]string{"website": "https://demo.example"}, doc.Extensions)
	assert.Equal(t, 0, doc.SellerFeeBasisPoints)

	main := h.bundledMain(t)
	pump, err := h.registry.Lookup(programs.KindPumpFun)
	require.NoError(t, err)
	args, err := pump.DecodeCreate(main.Message.Instructions[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "https://gw.test/ipfs/bafkjson", args.Metadata.URI)

	tok, err := h.repo.GetByMint(context.Background(), res.MintAddress)
	require.NoError(t, err)
	assert.JSONEq(t, `{"traits":[{"trait_type":"tier","value":"gold"}],"socials":{"website":"https://demo.example"}}`, string(tok.Attributes))
}

func TestCreateToken_WithoutPinnerRequiresURI(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Pinner = nil })
	req := h.demoRequest()
	req.MetadataURI = ""
	req.Image = pngImage

	res := h.svc.CreateToken(context.Background(), req)
	assert.False(t, res.Success)
	assert.Equal(t, string(errors.CodeValidation), res.Code)
}

func TestCreateToken_SimulationFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.chain.simErr = json.RawMessage(`{"InstructionError":[0,{"Custom":6000}]}`)

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	assert.False(t, res.Success)
	assert.Equal(t, string(errors.CodeSimulation), res.Code)
	assert.Equal(t, h.asset.PublicKey().String(), res.MintAddress)
	assert.Empty(t, h.relay.bundles)
	assert.Equal(t, 0, h.chain.sentCount())

	_, err := h.repo.GetByMint(context.Background(), res.MintAddress)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "nothing recorded before simulation passes")
}

func TestCreateToken_UnconfirmedStaysPending(t *testing.T) {
	h := newHarness(t)
	h.chain.unconfirmed = true

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	assert.False(t, res.Success)
	assert.Equal(t, string(errors.CodeUnconfirmed), res.Code)
	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, pipeline.DefaultDirectAttempts, h.chain.sentCount())

	tok, err := h.repo.GetByMint(context.Background(), res.MintAddress)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, tok.Status)
	assert.Equal(t, res.Signature, tok.Signature)
}

func TestCreateToken_ExecutionFailureMarksFailed(t *testing.T) {
	txErr := &chain.TransactionError{Signature: "sig-1", Err: json.RawMessage(`{"InstructionError":[0,"Custom"]}`)}
	h := newHarness(t, func(c *Config) {
		c.Submitter = stubSubmitter{out: pipeline.Outcome{
			Signature: "sig-1",
			Path:      pipeline.PathBundle,
			Err:       errors.Unconfirmed("transaction failed on ledger", txErr),
		}}
	})

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	assert.False(t, res.Success)
	assert.Equal(t, "sig-1", res.Signature)

	tok, err := h.repo.GetByMint(context.Background(), res.MintAddress)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, tok.Status)
	assert.Equal(t, "sig-1", tok.Signature)
	assert.Contains(t, tok.Error, "transaction failed on ledger")
}

func TestCreateToken_RecoversPanics(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Submitter = panicSubmitter{} })

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	assert.False(t, res.Success)
	assert.Equal(t, string(errors.CodeInternal), res.Code)
	assert.Contains(t, res.Error, "relay exploded")
}

func TestCreateToken_PersistenceFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.repo.Err = errors.New("database down")

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	assert.True(t, res.Success, "error: %s", res.Error)
}

func TestCreateToken_WithoutRelayGoesDirect(t *testing.T) {
	h := newHarness(t)
	h.svc.submitter = pipeline.New(h.chain, nil, pipeline.Config{Logger: logging.Discard()})

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, 1, h.chain.sentCount())
	assert.Equal(t, h.chain.sent[0].Signature().String(), res.Signature)
}

// ctxRepository rejects writes on a done context, as a SQL driver does.
type ctxRepository struct {
	*store.MockRepository
}

func (r ctxRepository) RecordAsset(ctx context.Context, t *store.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MockRepository.RecordAsset(ctx, t)
}

func (r ctxRepository) UpdateSignature(ctx context.Context, mint, signature string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MockRepository.UpdateSignature(ctx, mint, signature)
}

func (r ctxRepository) UpdateStatus(ctx context.Context, mint string, status store.Status, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MockRepository.UpdateStatus(ctx, mint, status, reason)
}

// stalledSubmitter broadcasts, then waits out the request before giving up.
type stalledSubmitter struct{}

func (stalledSubmitter) Submit(ctx context.Context, tx *solana.Transaction, _ solana.Signer, _ chain.Checkpoint, _ ...solana.Signer) pipeline.Outcome {
	<-ctx.Done()
	return pipeline.Outcome{
		Signature: tx.Signature().String(),
		Path:      pipeline.PathDirect,
		Err:       errors.Unconfirmed("confirmation interrupted", ctx.Err()),
	}
}

func TestCreateToken_RequestTimeoutKeepsSignature(t *testing.T) {
	repo := ctxRepository{store.NewMockRepository()}
	h := newHarness(t, func(c *Config) {
		c.Repository = repo
		c.Submitter = stalledSubmitter{}
		c.RequestTimeout = 50 * time.Millisecond
	})

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Signature)

	tok, err := repo.GetByMint(context.Background(), res.MintAddress)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, tok.Status)
	assert.Equal(t, res.Signature, tok.Signature)

	pending, err := repo.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.MintAddress, pending[0].Mint)

	// The reconciler picks it up once the transaction lands.
	h.chain.statuses[res.Signature] = &chain.SignatureStatus{Slot: 11, ConfirmationStatus: chain.CommitmentFinalized}
	r, err := NewReconciler(repo, h.chain, ReconcilerConfig{Logger: logging.Discard()})
	require.NoError(t, err)
	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Activated)
}

func TestCreateToken_RecordCarriesSignatureBeforeSubmit(t *testing.T) {
	var seen string
	h := newHarness(t)
	h.svc.submitter = submitFunc(func(ctx context.Context, tx *solana.Transaction) pipeline.Outcome {
		tok, err := h.repo.GetByMint(ctx, h.asset.PublicKey().String())
		require.NoError(t, err)
		seen = tok.Signature
		return pipeline.Outcome{Confirmed: true, Signature: tx.Signature().String(), Path: pipeline.PathDirect}
	})

	res := h.svc.CreateToken(context.Background(), h.demoRequest())
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, res.Signature, seen)
}

type submitFunc func(ctx context.Context, tx *solana.Transaction) pipeline.Outcome

func (f submitFunc) Submit(ctx context.Context, tx *solana.Transaction, _ solana.Signer, _ chain.Checkpoint, _ ...solana.Signer) pipeline.Outcome {
	return f(ctx, tx)
}

func TestResolveMetadata_CacheHitKeepsImageURI(t *testing.T) {
	h := newHarness(t)
	req := h.demoRequest()
	req.MetadataURI = ""
	req.Image = pngImage
	creator := h.creator.PublicKey().String()

	first, err := h.svc.resolveMetadata(context.Background(), &req, "pumpfun", creator)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	again, err := h.svc.resolveMetadata(context.Background(), &req, "pumpfun", creator)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, "https://gw.test/ipfs/bafkjson", again.URI)
	assert.Equal(t, "https://gw.test/ipfs/bafkimage", again.ImageURI)
	assert.Equal(t, 1, h.pinner.images)
}

func TestResolveMetadata_BareCachedURI(t *testing.T) {
	mem := cache.NewMemory()
	h := newHarness(t, func(c *Config) { c.Cache = mem })
	req := h.demoRequest()
	req.MetadataURI = ""
	req.Image = pngImage
	creator := h.creator.PublicKey().String()

	key, err := metadataFingerprint(&req, "pumpfun", creator)
	require.NoError(t, err)
	_, err = mem.PutIfAbsent(context.Background(), key, "https://gw.test/ipfs/older")
	require.NoError(t, err)

	got, err := h.svc.resolveMetadata(context.Background(), &req, "pumpfun", creator)
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, "https://gw.test/ipfs/older", got.URI)
	assert.Empty(t, got.ImageURI)
	assert.Zero(t, h.pinner.images)
}
