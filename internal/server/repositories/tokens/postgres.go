package tokens

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

const pgUniqueViolation = "23505"

const tokenColumns = `token_id, owner_id, name, claims, issuer, audience, key_id,
		issued_at, expires_at, status, revoked_at, revocation_reason, version`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db         dbx.DBTX
	maxRetries int
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, maxRetries int) *PostgresRepository {
	return &PostgresRepository{db: db, maxRetries: maxRetries}
}

// Create inserts a new record with version 1.
func (r *PostgresRepository) Create(ctx context.Context, t *models.Token) error {
	claims, audience, err := encodeJSONColumns(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
	`
	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.Name, claims, t.Issuer, audience, t.KeyID,
		t.IssuedAt, t.ExpiresAt, string(t.Status), t.RevokedAt, t.RevocationReason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrDuplicateTokenID
		}
		return fmt.Errorf("error performing sql request: %w", err)
	}
	t.Version = 1
	return nil
}

// Get returns the record with the given id or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE token_id = $1
	`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// ListByOwner returns all records of ownerID, most recent first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE owner_id = $1
		ORDER BY issued_at DESC, token_id ASC
	`
	return r.queryTokens(ctx, r.db, query, ownerID)
}

// Update applies mutate under optimistic concurrency.
func (r *PostgresRepository) Update(ctx context.Context, id string, mutate MutateFunc) (*models.Token, error) {
	return casUpdate(ctx, r, r.maxRetries, id, mutate)
}

func (r *PostgresRepository) load(ctx context.Context, id string) (*models.Token, error) {
	return r.Get(ctx, id)
}

func (r *PostgresRepository) swap(ctx context.Context, prev int64, next *models.Token) error {
	claims, audience, err := encodeJSONColumns(next)
	if err != nil {
		return err
	}

	query := `
		UPDATE tokens
		SET name = $1, claims = $2, issuer = $3, audience = $4, key_id = $5,
			issued_at = $6, expires_at = $7, status = $8, revoked_at = $9,
			revocation_reason = $10, version = $11
		WHERE token_id = $12 AND version = $13
	`
	n, err := dbx.ExecAffected(ctx, r.db, query,
		next.Name, claims, next.Issuer, audience, next.KeyID,
		next.IssuedAt, next.ExpiresAt, string(next.Status), next.RevokedAt,
		next.RevocationReason, next.Version, next.ID, prev)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

// MarkExpired flips overdue active rows to expired in one transaction when
// the repository is bound to a *sql.DB, or inside the caller's transaction
// otherwise.
func (r *PostgresRepository) MarkExpired(ctx context.Context, now time.Time) ([]*models.Token, error) {
	query := `
		UPDATE tokens
		SET status = 'expired', version = version + 1
		WHERE status = 'active' AND expires_at <= $1
		RETURNING ` + tokenColumns

	db, ok := r.db.(*sql.DB)
	if !ok {
		return r.queryTokens(ctx, r.db, query, now)
	}

	var out []*models.Token
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = r.queryTokens(ctx, tx, query, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) queryTokens(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]*models.Token, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.Token, error) {
	var (
		t         models.Token
		claims    []byte
		audience  []byte
		status    string
		revokedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &claims, &t.Issuer, &audience, &t.KeyID,
		&t.IssuedAt, &t.ExpiresAt, &status, &revokedAt, &t.RevocationReason, &t.Version); err != nil {
		return nil, err
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &t.Claims); err != nil {
			return nil, fmt.Errorf("decode claims: %w", err)
		}
	}
	if len(audience) > 0 {
		if err := json.Unmarshal(audience, &t.Audience); err != nil {
			return nil, fmt.Errorf("decode audience: %w", err)
		}
	}
	t.Status = models.Status(status)
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return &t, nil
}

func encodeJSONColumns(t *models.Token) ([]byte, []byte, error) {
	claims := t.Claims
	if claims == nil {
		claims = models.Claims{}
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return nil, nil, fmt.Errorf("encode claims: %w", err)
	}
	audience := t.Audience
	if audience == nil {
		audience = []string{}
	}
	a, err := json.Marshal(audience)
	if err != nil {
		return nil, nil, fmt.Errorf("encode audience: %w", err)
	}
	return c, a, nil
}
