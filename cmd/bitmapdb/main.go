// Command bitmapdb is a small operational CLI for a bitmapdb table: it
// opens the engine, runs one maintenance command, and exits. It is
// deliberately not a query REPL; the select/insert/update/delete/count
// grammar is a separate concern left to an embedding application.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/takoyaki-db/bitmapdb/config"
	"github.com/takoyaki-db/bitmapdb/dblog"
	"github.com/takoyaki-db/bitmapdb/engine"
	"github.com/takoyaki-db/bitmapdb/schema/demo"
	"github.com/takoyaki-db/bitmapdb/storage/buffer"
	"github.com/takoyaki-db/bitmapdb/storage/filestore"
	"github.com/takoyaki-db/bitmapdb/storage/replacer"
)

var (
	configPath string
	tableFlag  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bitmapdb",
		Short: "Operational commands for a bitmapdb table",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")
	root.PersistentFlags().StringVar(&tableFlag, "table", "", "table name, overrides config")

	root.AddCommand(newStatsCmd())
	root.AddCommand(newVacuumCmd())
	return root
}

func openTable() (*engine.IndexManager, *buffer.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if tableFlag != "" {
		cfg.TableName = tableFlag
	}
	log := dblog.New(cfg.LogLevel)

	store, err := filestore.Open(cfg.TableName)
	if err != nil {
		return nil, nil, err
	}
	pool := buffer.New(buffer.Config{
		PoolSize:         cfg.PoolSize,
		Store:            store,
		Replacer:         replacer.NewLRU(),
		WaitOnExhaustion: cfg.WaitOnExhaustion,
		Logger:           log,
	})
	mgr, err := engine.Open(cfg.TableName, demo.Record{}, pool, log)
	if err != nil {
		return nil, nil, err
	}
	return mgr, pool, nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report record count and per-attribute distinct-value counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, pool, err := openTable()
			if err != nil {
				return err
			}
			defer mgr.Close()
			defer pool.FlushAllPages()

			count, err := mgr.Count(nil)
			if err != nil {
				return err
			}
			fmt.Printf("records: %d\n", count)
			for name, distinct := range mgr.AttributeStats() {
				fmt.Printf("  %s: %d distinct values\n", name, distinct)
			}
			return nil
		},
	}
}

func newVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Round-trip a table's metadata and heap pages to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, pool, err := openTable()
			if err != nil {
				return err
			}
			if err := pool.FlushAllPages(); err != nil {
				return err
			}
			return mgr.Close()
		},
	}
}
