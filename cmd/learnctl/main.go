// Command learnctl administers the learning service: schema migration,
// catalog seeding, vocabulary extraction and rollup repair.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-lingo/internal/platform/config"
	"github.com/p-n-ai/pai-lingo/internal/platform/database"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(newApp()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app carries what subcommands share. openStore is swapped out in tests.
type app struct {
	cfg       *config.Config
	openStore func(ctx context.Context) (store.Store, func(), error)
	migrate   func(ctx context.Context) error
}

func newApp() *app {
	a := &app{}
	a.openStore = func(ctx context.Context) (store.Store, func(), error) {
		db, err := a.openDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		st, err := store.NewPostgresStore(db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, db.Close, nil
	}
	a.migrate = func(ctx context.Context) error {
		db, err := a.openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate(ctx)
	}
	return a
}

// openDB opens a small pool; one command needs only a few connections.
func (a *app) openDB(ctx context.Context) (*database.DB, error) {
	return database.New(ctx, a.cfg.Database.URL, min(a.cfg.Database.MaxConns, 4), 1)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "learnctl",
		Short:        "Administer the language learning service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newSeedCmd(a))
	root.AddCommand(newExtractCmd(a))
	root.AddCommand(newRebuildCmd(a))
	root.AddCommand(newTokenCmd(a))
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

// withStore opens the store for one command run.
func (a *app) withStore(ctx context.Context, fn func(store.Store) error) error {
	st, closeFn, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(st)
}
