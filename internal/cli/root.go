// Package cli wires configuration, the database, and the HTTP server behind
// a small cobra command tree: `serve` (also the root default) runs the
// backend, `useradd` provisions accounts.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"file-share/internal/db"
	"file-share/internal/server"
)

// VersionInfo identifies the build; set from main via ldflags or env.
type VersionInfo struct {
	Version string
	Commit  string
}

func NewRootCmd(v VersionInfo) *cobra.Command {
	root := &cobra.Command{
		Use:           "backend",
		Short:         "IP-scoped file sharing backend",
		Version:       fmt.Sprintf("%s (%s)", v.Version, v.Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}

	root.AddCommand(serveCmd)
	root.AddCommand(newUserAddCmd())
	return root
}

// loadEnv reads a .env file when present, then builds the explicit server
// config from the environment. Nothing downstream reads env vars directly.
func loadEnv() {
	_ = godotenv.Load()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openDatabase() (*server.Config, error) {
	dsn := getenvDefault("FS_DATABASE_URL", os.Getenv("DATABASE_URL"))
	conn, err := server.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("database connect: %w", err)
	}
	if err := db.RunMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	cfg := &server.Config{
		DB:    conn,
		Users: server.NewUserStore(conn),
		Files: server.NewFileRegistry(conn),
	}
	return cfg, nil
}

func buildConfig(v VersionInfo) (*server.Config, error) {
	secret := os.Getenv("FS_JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("FS_JWT_SECRET is required")
	}

	cfg, err := openDatabase()
	if err != nil {
		return nil, err
	}

	cfg.Addr = getenvDefault("FS_ADDR", ":8080")
	cfg.Build = server.BuildInfo{Version: v.Version, Commit: v.Commit}
	cfg.Auth = server.AuthConfig{Secret: []byte(secret), TokenTTL: 24 * time.Hour}
	if ttl := os.Getenv("FS_TOKEN_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("FS_TOKEN_TTL: %w", err)
		}
		cfg.Auth.TokenTTL = d
	}

	cfg.Policy = server.DefaultPolicy()
	if os.Getenv("FS_ADMIN_DELETE_OVERRIDE") == "true" {
		cfg.Policy.AdminCanDeleteAny = true
	}

	if raw := os.Getenv("FS_MAX_UPLOAD_BYTES"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("FS_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = limit
	}

	cfg.Log = server.NewLogger(server.LogOptions{
		Level:      getenvDefault("FS_LOG_LEVEL", "info"),
		Format:     os.Getenv("FS_LOG_FORMAT"),
		File:       os.Getenv("FS_LOG_FILE"),
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})

	// Blob backend: S3-compatible when configured, local disk otherwise.
	if endpoint := os.Getenv("FS_S3_ENDPOINT"); endpoint != "" {
		store, err := server.NewMinioStore(server.MinioConfig{
			Endpoint:  endpoint,
			AccessKey: os.Getenv("FS_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("FS_S3_SECRET_KEY"),
			Bucket:    os.Getenv("FS_S3_BUCKET"),
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		cfg.Blobs = store
	} else {
		cfg.Blobs = server.NewDiskStore(getenvDefault("FS_UPLOAD_DIR", "uploads"))
	}
	if err := cfg.Blobs.Check(context.Background()); err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	return cfg, nil
}

func runServe(v VersionInfo) error {
	loadEnv()

	cfg, err := buildConfig(v)
	if err != nil {
		return err
	}
	defer func() { _ = cfg.DB.Close() }()

	// Rows from before the size column exist without a size; measure their
	// blobs once at boot.
	if _, err := server.BackfillSizes(context.Background(), cfg.Files, cfg.Blobs, cfg.Log); err != nil {
		cfg.Log.Error("size backfill failed", nil, err)
	}

	srv := server.New(*cfg)

	errCh := make(chan error, 1)
	go func() {
		cfg.Log.Info("starting", map[string]any{
			"addr":    cfg.Addr,
			"version": v.Version,
			"commit":  v.Commit,
		})
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		cfg.Log.Info("shutting down", map[string]any{"signal": sig.String()})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		cfg.Log.Info("shutdown complete", nil)
		return nil
	case err := <-errCh:
		return err
	}
}
