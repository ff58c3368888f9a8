package interfaces

import (
	"context"

	"huddle/pkg/types"
)

// ProjectDirectory resolves project ids for admission
// FUNCTIONAL DISCOVERY: Lookup returns ErrProjectNotFound for unknown ids so
// callers can tell a missing project apart from an unreachable directory
type ProjectDirectory interface {
	Lookup(ctx context.Context, projectID string) (*types.Project, error)
}

// ProjectStore is the SQLite-backed directory plus the write operations used
// to provision it
type ProjectStore interface {
	ProjectDirectory

	// CreateProject inserts a project and its initial members atomically
	CreateProject(ctx context.Context, project *types.Project) error

	// AddProjectMember attaches a user to an existing project; adding an
	// existing member is a no-op
	AddProjectMember(ctx context.Context, projectID, userID string) error

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close releases the underlying database handle
	Close() error
}
