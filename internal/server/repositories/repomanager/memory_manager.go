package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/tokens"
)

// MemoryRepositoryManager hands out one shared in-memory store regardless
// of the DBTX passed in.
type MemoryRepositoryManager struct {
	tokens *tokens.MemoryRepository
}

// NewMemoryRepositoryManager constructs a manager around a fresh store.
func NewMemoryRepositoryManager(maxRetries int) RepositoryManager {
	return &MemoryRepositoryManager{tokens: tokens.NewMemoryRepository(maxRetries)}
}

// Tokens returns the shared store.
func (m *MemoryRepositoryManager) Tokens(dbx.DBTX) tokens.Repository {
	return m.tokens
}

// RunMigrations is a no-op.
func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}
