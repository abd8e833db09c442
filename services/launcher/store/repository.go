// Package store persists launched token records.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/launch_layer/internal/errors"
)

// Status is the lifecycle state of a launched token.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusFailed  Status = "failed"
)

// Token is one launched_tokens row.
type Token struct {
	ID                      int64           `db:"id"`
	Mint                    string          `db:"mint"`
	Program                 string          `db:"program"`
	Name                    string          `db:"name"`
	Symbol                  string          `db:"symbol"`
	Creator                 string          `db:"creator"`
	MetadataURI             string          `db:"metadata_uri"`
	ImageURI                string          `db:"image_uri"`
	Description             string          `db:"description"`
	Attributes              json.RawMessage `db:"attributes"`
	CurveAddress            string          `db:"curve_address"`
	CurveVaultAddress       string          `db:"curve_vault_address"`
	MetadataAddress         string          `db:"metadata_address"`
	InitialPurchaseLamports int64           `db:"initial_purchase_lamports"`
	Signature               string          `db:"signature"`
	Status                  Status          `db:"status"`
	Error                   string          `db:"error"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
}

// =============================================================================
// Repository Interface
// =============================================================================

// Repository defines the launched token operations.
type Repository interface {
	// RecordAsset inserts a pending record and fills its ID and timestamps.
	// A signature known before broadcast is stored with it.
	RecordAsset(ctx context.Context, t *Token) error

	// UpdateSignature stores the signature the pipeline last broadcast.
	UpdateSignature(ctx context.Context, mint, signature string) error

	// UpdateStatus moves a record to a new status. reason is kept for failures.
	UpdateStatus(ctx context.Context, mint string, status Status, reason string) error

	// GetByMint retrieves a record by mint address.
	GetByMint(ctx context.Context, mint string) (*Token, error)

	// ListPending lists pending records, signed or not, oldest first.
	ListPending(ctx context.Context, limit int) ([]*Token, error)
}

// =============================================================================
// Postgres Repository Implementation
// =============================================================================

const selectColumns = `id, mint, program, name, symbol, creator, metadata_uri,
	COALESCE(image_uri, '') AS image_uri, COALESCE(description, '') AS description,
	COALESCE(attributes, '[]'::jsonb) AS attributes, curve_address, curve_vault_address, metadata_address,
	initial_purchase_lamports, COALESCE(signature, '') AS signature, status,
	COALESCE(error, '') AS error, created_at, updated_at`

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewRepository wraps an open database.
func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Open connects to PostgreSQL.
func Open(ctx context.Context, url string, maxOpen int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	return db, nil
}

// RecordAsset inserts a pending record.
func (r *PostgresRepository) RecordAsset(ctx context.Context, t *Token) error {
	if t.Mint == "" {
		return fmt.Errorf("mint is required")
	}
	if t.Status == "" {
		t.Status = StatusPending
	}

	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO launched_tokens (mint, program, name, symbol, creator, metadata_uri,
			image_uri, description, attributes, curve_address, curve_vault_address,
			metadata_address, initial_purchase_lamports, signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`,
		t.Mint, t.Program, t.Name, t.Symbol, t.Creator, t.MetadataURI,
		nullString(t.ImageURI), nullString(t.Description), nullJSON(t.Attributes),
		t.CurveAddress, t.CurveVaultAddress, t.MetadataAddress,
		t.InitialPurchaseLamports, nullString(t.Signature), string(t.Status),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("token %s already recorded: %w", t.Mint, err)
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// UpdateSignature stores the main transaction signature.
func (r *PostgresRepository) UpdateSignature(ctx context.Context, mint, signature string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE launched_tokens SET signature = $2, updated_at = now() WHERE mint = $1`,
		mint, signature)
	if err != nil {
		return fmt.Errorf("update signature: %w", err)
	}
	return requireRow(res, mint)
}

// UpdateStatus moves a record to status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, mint string, status Status, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE launched_tokens SET status = $2, error = $3, updated_at = now() WHERE mint = $1`,
		mint, string(status), nullString(reason))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRow(res, mint)
}

// GetByMint retrieves a record by mint address.
func (r *PostgresRepository) GetByMint(ctx context.Context, mint string) (*Token, error) {
	var t Token
	err := r.db.GetContext(ctx, &t, `SELECT `+selectColumns+` FROM launched_tokens WHERE mint = $1`, mint)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("token", mint)
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// ListPending lists pending records, oldest first.
func (r *PostgresRepository) ListPending(ctx context.Context, limit int) ([]*Token, error) {
	if limit <= 0 {
		limit = 100
	}
	var tokens []*Token
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT `+selectColumns+` FROM launched_tokens
		WHERE status = 'pending'
		ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return tokens, nil
}

func requireRow(res sql.Result, mint string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errors.NotFound("token", mint)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// =============================================================================
// Mock Repository for Testing
// =============================================================================

// MockRepository is an in-memory Repository.
type MockRepository struct {
	mu     sync.Mutex
	tokens map[string]*Token
	nextID int64

	// Err, when set, is returned by every call.
	Err error
}

// NewMockRepository creates a new mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{tokens: make(map[string]*Token)}
}

func (m *MockRepository) RecordAsset(ctx context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.tokens[t.Mint]; ok {
		return fmt.Errorf("token %s already recorded", t.Mint)
	}
	m.nextID++
	now := time.Now()
	t.ID, t.CreatedAt, t.UpdatedAt = m.nextID, now, now
	if t.Status == "" {
		t.Status = StatusPending
	}
	cp := *t
	m.tokens[t.Mint] = &cp
	return nil
}

func (m *MockRepository) UpdateSignature(ctx context.Context, mint, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	t, ok := m.tokens[mint]
	if !ok {
		return errors.NotFound("token", mint)
	}
	t.Signature, t.UpdatedAt = signature, time.Now()
	return nil
}

func (m *MockRepository) UpdateStatus(ctx context.Context, mint string, status Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	t, ok := m.tokens[mint]
	if !ok {
		return errors.NotFound("token", mint)
	}
	t.Status, t.Error, t.UpdatedAt = status, reason, time.Now()
	return nil
}

func (m *MockRepository) GetByMint(ctx context.Context, mint string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	t, ok := m.tokens[mint]
	if !ok {
		return nil, errors.NotFound("token", mint)
	}
	cp := *t
	return &cp, nil
}

func (m *MockRepository) ListPending(ctx context.Context, limit int) ([]*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*Token
	for _, t := range m.tokens {
		if t.Status == StatusPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ensure both implementations satisfy Repository
var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MockRepository)(nil)
)
