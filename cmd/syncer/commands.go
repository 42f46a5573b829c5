package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notion_sync/internal/scheduler"
	"notion_sync/internal/server"
	"notion_sync/internal/storage/postgres/migrations"
)

const shutdownTimeout = 15 * time.Second

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "syncer",
		Short: "Mirror published Notion pages into the local article store",
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))

	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the webhook endpoint and the periodic sync",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts.configPath, appOptions{migrateOnStart: true, publish: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.service, server.Config{
		Addr:              a.cfg.HTTP.Addr,
		Path:              a.cfg.HTTP.Path,
		VerificationToken: a.cfg.Webhook.VerificationToken,
		Secret:            a.cfg.Webhook.Secret,
		SyncTimeout:       a.cfg.Sync.Timeout,
	}, a.logger)

	sched := scheduler.NewScheduler(a.service, a.cfg.Sync.Interval, a.cfg.Sync.Timeout, a.logger)

	a.logger.Info("starting notion syncer",
		"addr", a.cfg.HTTP.Addr,
		"interval", a.cfg.Sync.Interval,
		"data_source_configured", a.cfg.Notion.DataSourceID != "",
	)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()
	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var pageID string

	cmd := &cobra.Command{
		Use:          "sync",
		Short:        "Run one full sync, or reconcile a single page with --page",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.configPath, appOptions{publish: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Sync.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.Timeout)
				defer cancel()
			}

			if pageID != "" {
				result, syncErr := a.service.SyncPage(ctx, pageID)
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				return syncErr
			}

			report, err := a.service.SyncAll(ctx)
			if report != nil {
				if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&pageID, "page", "", "Notion page id to reconcile")

	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending database migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}

			db, err := connectDB(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.MigrateUp(db.DB); err != nil {
				return err
			}

			st, err := migrations.GetStatus(db.DB)
			if err != nil {
				return err
			}
			logger.Info("database migrated", "version", st.Version, "latest", st.Latest)
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "status",
		Short:        "Print synced article statistics",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.configPath, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.service.Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
