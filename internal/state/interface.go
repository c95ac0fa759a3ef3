package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// SessionStore handles session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]models.Session, error)
}

// RunStore handles run history persistence.
type RunStore interface {
	SaveRun(ctx context.Context, r *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.RunRecord, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store is the full persistence surface used by the CLI.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ RunStore     = (*DB)(nil)
)
