// Package cli implements the recall CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/recallmem/recall/internal/config"
	"github.com/recallmem/recall/internal/embedding"
	"github.com/recallmem/recall/internal/engine"
	"github.com/recallmem/recall/internal/model"
	"github.com/recallmem/recall/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Semantic memory for conversational agents",
	Long: "recall stores facts as embedding-indexed records and retrieves the most\n" +
		"relevant ones for a query, with structured filters on type, time, and\n" +
		"attributes. SQLite-backed by default; Postgres/pgvector optional.",
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.recall/config.yml)")
	RootCmd.PersistentFlags().StringP("db", "d", "", "SQLite database path")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

func initConfig() {
	c, err := config.Load(cfgFile)
	if err != nil {
		exitErr("load config", err)
	}
	cfg = c

	if db, _ := RootCmd.PersistentFlags().GetString("db"); db != "" {
		cfg.Store.SQLitePath = db
	}
	if lvl, _ := RootCmd.PersistentFlags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if parsed, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(parsed)
	}
}

// openEngine builds the embedder and store from config and binds them.
// The returned func closes the store.
func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	emb, err := embedding.New(embedding.Options{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		Dims:      cfg.Embedder.Dims,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		CacheSize: cfg.Embedder.CacheSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}

	opts := store.Options{
		EmbedderModel: emb.Model(),
		Dims:          emb.Dims(),
		Index: store.IndexOptions{
			Kind:           cfg.Index.Kind,
			Threshold:      cfg.Index.Threshold,
			Metric:         model.Metric(cfg.Search.Metric),
			TargetAccuracy: cfg.Index.TargetAccuracy,
			M:              cfg.Index.M,
			EfConstruction: cfg.Index.EfConstruction,
		},
	}

	var st store.Store
	switch cfg.Store.Backend {
	case "", "sqlite":
		st, err = store.NewSQLiteStore(cfg.Store.SQLitePath, opts)
	case "postgres":
		st, err = store.NewPostgresStore(ctx, cfg.Store.PostgresDSN, opts)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	e := engine.New(st, emb, engine.Options{
		DefaultK: cfg.Search.K,
		Timeout:  cfg.Timeout,
	})
	return e, func() { st.Close() }, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
