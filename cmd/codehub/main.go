package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/odvcencio/codehub/internal/api"
	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/config"
	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/service"
	"github.com/odvcencio/codehub/internal/storage"
)

const usage = `Usage: codehub <command> [flags]

Commands:
  serve                Start the server
  migrate              Run database migrations
  reconcile            Recompute cached counters and report repairs
  import <owner/repo>  Import a GitHub repository's metadata
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = cmdServe(os.Args[2:])
	case "migrate":
		err = cmdMigrate(os.Args[2:])
	case "reconcile":
		err = cmdReconcile(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared -config flag, loads the configuration and
// installs the JSON logger at the configured level.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))
	return cfg, nil
}

func cmdServe(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("serve", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := initTracing(ctx)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			slog.Error("shutdown tracing", "error", err)
		}
	}()

	db, err := openMigratedDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	gh, err := service.NewGitHubClient(cfg.GitHub)
	if err != nil {
		return err
	}

	authSvc := auth.NewService(cfg.Auth.JWTSecret, tokenDuration(cfg))
	server := api.NewServer(db, authSvc, service.New(db, authSvc, blobs, gh), serverOptions(cfg))
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("codehub listening", "addr", cfg.Addr(), "database", cfg.Database.Driver, "storage", cfg.Storage.Driver)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func cmdMigrate(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("migrate", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	db, err := openMigratedDB(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("migrations complete")
	return nil
}

func cmdReconcile(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("reconcile", flag.ExitOnError), args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := openMigratedDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := service.NewReconcileService(db).ReconcileAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("reconcile complete",
		"users_checked", report.UsersChecked,
		"repositories_checked", report.RepositoriesChecked,
		"repairs", len(report.Repairs))
	return printJSON(report)
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	as := fs.String("as", "", "local username that will own the imported repository")
	org := fs.String("org", "", "create the repository under this organization")
	name := fs.String("name", "", "local repository name (defaults to the source name)")
	commits := fs.Int("commits", 0, "commits to import per branch")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 || *as == "" {
		return fmt.Errorf("usage: codehub import -as <username> [-org <org>] [-name <name>] <owner/repo>")
	}

	ctx := context.Background()
	db, err := openMigratedDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	blobs, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	gh, err := service.NewGitHubClient(cfg.GitHub)
	if err != nil {
		return err
	}
	svc := service.New(db, auth.NewService(cfg.Auth.JWTSecret, tokenDuration(cfg)), blobs, gh)

	user, err := svc.Users.Get(ctx, *as)
	if err != nil {
		return err
	}
	res, err := svc.Import.Import(ctx, &service.Actor{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}, service.ImportInput{
		Source:  fs.Arg(0),
		Name:    *name,
		Org:     *org,
		Commits: *commits,
	})
	if err != nil {
		return err
	}
	slog.Info("import complete", "repository", res.Repository.FullName(), "branches", res.Branches, "commits", res.Commits, "labels", res.Labels)
	return printJSON(res)
}

func openDB(cfg *config.Config) (database.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return database.OpenSQLite(cfg.Database.DSN)
	case "postgres":
		return database.OpenPostgres(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func openMigratedDB(ctx context.Context, cfg *config.Config) (database.DB, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func serverOptions(cfg *config.Config) api.ServerOptions {
	return api.ServerOptions{
		TrustedProxies:     cfg.Server.TrustedProxies,
		AdminCIDRs:         cfg.Server.AdminCIDRs,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimitRPS:       cfg.Server.RateLimitRPS,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		EnablePprof:        cfg.Server.EnablePprof,
	}
}

func tokenDuration(cfg *config.Config) time.Duration {
	dur, err := time.ParseDuration(cfg.Auth.TokenDuration)
	if err != nil || dur <= 0 {
		return 24 * time.Hour
	}
	return dur
}

func parseLogLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
