package state

import (
	"io"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(s models.RunSnapshot) error
}

// RunHistory reads recorded runs back for display.
type RunHistory interface {
	RecentRuns(n int) ([]models.RunSnapshot, error)
	GetRun(runID string) (*models.RunSnapshot, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Journal is the full run journal.
type Journal interface {
	io.Closer
	Migrator
	RunRecorder
	RunHistory
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Journal     = (*DB)(nil)
	_ RunRecorder = (*DB)(nil)
	_ RunHistory  = (*DB)(nil)
)
