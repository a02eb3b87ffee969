// Package repomanager vends token repositories for the configured backend
// and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/tokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Tokens(db dbx.DBTX) tokens.Repository
}
