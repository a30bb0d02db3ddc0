package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/the-dev-tools/recordsync/internal/app"
	"github.com/the-dev-tools/recordsync/internal/config"
	"github.com/the-dev-tools/recordsync/internal/settings"
	"github.com/the-dev-tools/recordsync/pkg/errmap"
)

var rootCmd = &cobra.Command{
	Use:   "recordsync",
	Short: "Keep local company records in sync and share them",
	Long: `recordsync manages companies and their employees in a local store,
merges companies other users shared with you into one sectioned view,
and shares your own companies through the sync service.

Configuration comes from RECORDSYNC_* environment variables
(RECORDSYNC_BACKEND, RECORDSYNC_DB_PATH, RECORDSYNC_KEY_KIND, ...).
  `,
	SilenceUsage: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var (
	settingsPath string
	dbPath       string
	backendName  string

	application *app.App
	settingsMgr *settings.Manager
	workflow    = newCLIWorkflow()
)

func init() {
	rootCmd.PersistentPreRunE = openApp
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default is $HOME/.recordsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (overrides RECORDSYNC_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "backend: sqlite or memory (overrides RECORDSYNC_BACKEND)")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := closeApp(); err == nil {
		err = closeErr
	}
	stop()
	if err != nil {
		log.Fatalf("recordsync: %s", errmap.Friendly(err))
	}
}

func openApp(cmd *cobra.Command, args []string) error {
	if application != nil || !needsApp(cmd) {
		return nil
	}

	v := config.New()
	if dbPath != "" {
		v.Set(config.KeyDBPath, dbPath)
	}
	if backendName != "" {
		v.Set(config.KeyBackend, backendName)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	settingsMgr, err = settings.Open(settingsPath, settings.WithLogger(logger))
	if err != nil {
		return err
	}
	application, err = app.New(cmd.Context(), cfg, logger, settingsMgr, workflow)
	if err != nil {
		settingsMgr.Close()
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return nil
}

func closeApp() error {
	if application == nil {
		return nil
	}
	err := application.Close()
	settingsMgr.Close()
	application, settingsMgr = nil, nil
	return err
}

// needsApp is false for commands that never touch the store.
func needsApp(cmd *cobra.Command) bool {
	return cmd != versionCmd && cmd != rootCmd
}
