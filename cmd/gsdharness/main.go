package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandoak/gsdharness/pkg/config"
	"github.com/sandoak/gsdharness/pkg/credentials"
	"github.com/sandoak/gsdharness/pkg/harness"
	"github.com/sandoak/gsdharness/pkg/log"
	"github.com/sandoak/gsdharness/pkg/scheduler"
	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gsdharness",
	Short:   "Orchestration harness for parallel AI coding-agent subprocesses",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gsdharness version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	startCmd.Flags().String("project", "", "Project name (required)")
	startCmd.Flags().String("project-root", ".", "Project root directory (contains .orchestration/ and the spec directory)")
	startCmd.Flags().String("data-dir", "./data", "Directory for the SQLite store")
	startCmd.Flags().String("agent-bin", "claude", "Agent CLI binary invoked to execute each plan")
	_ = startCmd.MarkFlagRequired("project")

	migrateCmd.Flags().String("data-dir", "./data", "Directory for the SQLite store")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the harness: dashboard socket, tool-call endpoint, and the scheduler",
	RunE:  runStart,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

// envOrDefault reads an environment variable, falling back to def when unset
// or empty, matching the CLI surface's documented environment variables.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runStart(cmd *cobra.Command, args []string) error {
	// GSD_HARNESS_CHILD=1 marks a process re-invoked from inside a spawned
	// worker's inherited environment. Such a re-invocation must not start a
	// second harness; it exits cleanly instead.
	if os.Getenv("GSD_HARNESS_CHILD") == "1" {
		log.Logger.Info().Msg("detected inherited child environment, exiting without starting a nested harness")
		return nil
	}

	project, _ := cmd.Flags().GetString("project")
	projectRoot, _ := cmd.Flags().GetString("project-root")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	agentBin, _ := cmd.Flags().GetString("agent-bin")

	credsDir := envOrDefault("HARNESS_CREDENTIALS_DIR", credentials.DefaultDir)
	if _, err := os.ReadDir(credsDir); err != nil {
		log.Logger.Fatal().Err(err).Str("dir", credsDir).Msg("credential directory unreadable")
	}

	port := envOrDefault("GSD_HARNESS_PORT", "3333")
	addr := ":" + port

	cfgPath := filepath.Join(projectRoot, ".orchestration", "config.yaml")
	orchCfg, err := config.Load(cfgPath)
	if err != nil {
		log.Logger.Fatal().Err(err).Str("path", cfgPath).Msg("load orchestration config")
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err == nil {
		_ = config.Save(cfgPath, orchCfg)
	}

	buildCommand := func(_ string, id types.PlanID) (workDir, command string) {
		return projectRoot, fmt.Sprintf("%s --phase %d --plan %d", agentBin, id.Phase, id.Plan)
	}

	h, err := harness.New(harness.Config{
		Project:      project,
		ProjectRoot:  projectRoot,
		DataDir:      dataDir,
		Addr:         addr,
		Config:       orchCfg,
		BuildCommand: scheduler.CommandBuilder(buildCommand),
	}, log.Logger)
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("wire harness")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := h.Start(ctx); err != nil {
		log.Logger.Fatal().Err(err).Msg("start harness")
	}
	log.Logger.Info().Str("addr", addr).Str("project", project).Msg("harness started")

	<-ctx.Done()
	log.Logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), harness.ShutdownGrace+5*time.Second)
	defer shutdownCancel()
	return h.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	defer store.Close()

	log.Logger.Info().Str("data_dir", dataDir).Msg("migrations applied")
	return nil
}
