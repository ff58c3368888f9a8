package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"huddle/internal/app"
	"huddle/internal/config"
	"huddle/internal/database"
	"huddle/internal/identity"
	"huddle/internal/logging"
	"huddle/internal/project"
	pkgdatabase "huddle/pkg/database"
	"huddle/pkg/types"
)

const usage = `usage: huddle <command> [flags]

commands:
  serve                 run the chat server (default)
  project create        provision a project: -name, [-id], [-members a,b]
  project add-member    attach a user to a project: -project, -user
  project list          print provisioned projects, newest first: [-limit n]
  token                 issue a signed test credential: -user, -email, [-ttl]

every command accepts -config <file> (defaults to $HUDDLE_CONFIG_FILE)
`

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "huddle:", err)
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return serve(ctx, args)
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "project":
		if len(args) < 2 {
			return errors.New("project needs a subcommand: create, add-member or list")
		}
		switch args[1] {
		case "create":
			return createProject(ctx, args[2:], stdout)
		case "add-member":
			return addMember(ctx, args[2:], stdout)
		case "list":
			return listProjects(ctx, args[2:], stdout)
		}
		return fmt.Errorf("unknown project subcommand %q", args[1])
	case "token":
		return issueToken(args[1:], stdout)
	case "help", "-h", "--help":
		_, _ = io.WriteString(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "JSON config file")
	return fs, configPath
}

func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.IsDevelopment(),
		Output:      os.Stderr,
	})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func serve(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// STEP 1: Load configuration with precedence (file > env > defaults)
	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 3: Wait for shutdown signal
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// openStore opens and migrates the project store without starting the server.
func openStore(cfg *config.Config, logger zerolog.Logger) (*database.Manager, error) {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.MigrationsPath = cfg.Database.MigrationsPath

	manager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, err
	}
	if err := manager.Migrate(); err != nil {
		_ = manager.Close()
		return nil, err
	}
	return manager, nil
}

// invalidate drops a cached lookup so provisioning is visible immediately.
func invalidate(ctx context.Context, cfg *config.Config, manager *database.Manager, logger zerolog.Logger, projectID string) {
	if cfg.Redis.URL == "" {
		return
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid redis url, cache not invalidated")
		return
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	cache := project.NewCache(manager, client, logger)
	if err := cache.Invalidate(ctx, projectID); err != nil {
		logger.Warn().Err(err).Str("project_id", projectID).Msg("cache not invalidated")
	}
}

func createProject(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("project create")
	name := fs.String("name", "", "project name")
	id := fs.String("id", "", "24-hex project id (generated when empty)")
	members := fs.String("members", "", "comma-separated user ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	manager, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	p := &types.Project{ID: *id, Name: *name}
	for _, member := range strings.Split(*members, ",") {
		if member = strings.TrimSpace(member); member != "" {
			p.Members = append(p.Members, member)
		}
	}
	if err := manager.CreateProject(ctx, p); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	// an earlier lookup of a chosen id may have cached "not found"
	invalidate(ctx, cfg, manager, logger, p.ID)

	_, err = fmt.Fprintln(stdout, p.ID)
	return err
}

func addMember(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("project add-member")
	projectID := fs.String("project", "", "project id")
	userID := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	manager, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	if err := manager.AddProjectMember(ctx, *projectID, *userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	invalidate(ctx, cfg, manager, logger, *projectID)

	_, err = fmt.Fprintf(stdout, "added %s to %s\n", *userID, *projectID)
	return err
}

func listProjects(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("project list")
	limit := fs.Int("limit", 100, "maximum number of projects")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	manager, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	projects, err := manager.ListProjects(ctx, *limit)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if _, err := fmt.Fprintf(stdout, "%s\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func issueToken(args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("token")
	userID := fs.String("user", "", "user id")
	email := fs.String("email", "", "user email")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return config.ErrMissingJWTSecret
	}
	if *userID == "" || *email == "" {
		return errors.New("token needs -user and -email")
	}

	token, err := identity.IssueToken(cfg.Auth.JWTSecret, types.Identity{UserID: *userID, Email: *email}, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
