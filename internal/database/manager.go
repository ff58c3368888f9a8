package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"huddle/internal/backoff"
	"huddle/internal/metrics"
	dbconfig "huddle/pkg/database"
	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

// Manager implements the ProjectStore interface
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	writeRetry   backoff.Policy
	logger       zerolog.Logger
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	ctx       context.Context
	operation func(*sql.DB) error
	result    chan error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithWriteRetry replaces the retry policy applied to busy/locked writes.
func WithWriteRetry(policy backoff.Policy) Option {
	return func(m *Manager) { m.writeRetry = policy }
}

// NewManager opens the database and starts the writer goroutine. Call
// Migrate before serving lookups.
func NewManager(config *dbconfig.Config, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer for write operations prevents blocking
		// FUNCTIONAL DISCOVERY: Retry a contended write exactly once after 5 seconds
		writeRetry: backoff.Fixed{Attempts: 2, Interval: 5 * time.Second},
		logger:     logger.With().Str("component", "database").Logger(),
		shutdown:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(manager)
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies pending migrations and validates the resulting schema.
func (m *Manager) Migrate() error {
	source := dbconfig.MigrationSource(m.config.MigrationsPath)
	if err := dbconfig.NewMigrationManager(m.db, source).ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(m.db).Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	m.logger.Info().Str("path", m.config.DatabasePath).Msg("database migrations applied")
	return nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			retrier := backoff.Retrier{
				Policy:    m.writeRetry,
				Retryable: isContention,
				OnRetry: func(retry int, delay time.Duration, err error) {
					m.logger.Warn().Err(err).Dur("delay", delay).Msg("database write contended, retrying")
				},
			}
			err := retrier.Do(op.ctx, func(ctx context.Context, attempt int) error {
				return op.operation(m.db)
			})
			if err != nil {
				m.logger.Error().Err(err).Msg("database write failed")
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug().Msg("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
		return <-result
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// CreateProject inserts a project and its initial members atomically. An
// empty ID is assigned a fresh object id.
func (m *Manager) CreateProject(ctx context.Context, project *types.Project) error {
	if project.ID == "" {
		project.ID = types.NewProjectID()
	}
	project.ID = types.NormalizeProjectID(project.ID)
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	if err := project.Validate(); err != nil {
		return err
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		_, err = tx.ExecContext(ctx,
			`INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
			project.ID, project.Name, project.CreatedAt,
		)
		if err != nil {
			if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
				return interfaces.ErrProjectExists
			}
			return fmt.Errorf("failed to insert project: %w", err)
		}

		for _, userID := range project.Members {
			if strings.TrimSpace(userID) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)`,
				project.ID, userID,
			); err != nil {
				return fmt.Errorf("failed to insert project member: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit project creation: %w", err)
		}
		return nil
	})
}

// AddProjectMember attaches userID to an existing project.
func (m *Manager) AddProjectMember(ctx context.Context, projectID, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	projectID = types.NormalizeProjectID(projectID)

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrProjectNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query project: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO project_members (project_id, user_id) VALUES (?, ?)`,
			projectID, userID,
		); err != nil {
			return fmt.Errorf("failed to insert project member: %w", err)
		}

		return tx.Commit()
	})
}

// Lookup retrieves a project and its members by id
// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
func (m *Manager) Lookup(ctx context.Context, projectID string) (*types.Project, error) {
	start := time.Now()
	defer func() { metrics.SQLiteLatency.Observe(time.Since(start).Seconds()) }()
	projectID = types.NormalizeProjectID(projectID)

	var project types.Project
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, projectID,
	).Scan(&project.ID, &project.Name, &project.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// FUNCTIONAL DISCOVERY: Return specific error type for project not found
			return nil, interfaces.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to query project: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT user_id FROM project_members WHERE project_id = ? ORDER BY added_at, user_id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query project members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	project.Members = []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		project.Members = append(project.Members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return &project, nil
}

// ListProjects returns projects newest first.
func (m *Manager) ListProjects(ctx context.Context, limit int) ([]*types.Project, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM projects ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := []*types.Project{}
	for rows.Next() {
		var project types.Project
		if err := rows.Scan(&project.ID, &project.Name, &project.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrency
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA cache_size = -16000",  // 16MB, the directory is small
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000", // 5 second timeout for write coordination
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}

// isContention reports SQLITE_BUSY and SQLITE_LOCKED, the only write
// failures worth retrying.
func isContention(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
