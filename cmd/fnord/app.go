package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/config"
	"github.com/ananasregina/fnord/internal/core"
	"github.com/ananasregina/fnord/internal/embedding"
	"github.com/ananasregina/fnord/internal/fnord"
	"github.com/ananasregina/fnord/internal/storage"
)

// app holds everything a command needs: config, logger and the engine.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	engine *core.Engine
}

// newApp loads configuration and opens the configured backend.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg.LogLevel)
	embedder := newEmbedder(cfg)

	store, err := openStore(ctx, cfg, cfg.Backend, embedder, log)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		log:    log,
		engine: core.New(store, embedder, log),
	}, nil
}

func (a *app) Close() error {
	return a.engine.Close()
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func newEmbedder(cfg *config.Config) *embedding.Client {
	return embedding.NewClient(
		embedding.WithBaseURL(cfg.Embedding.URL),
		embedding.WithModel(cfg.Embedding.Model),
		embedding.WithDimension(cfg.Embedding.Dimension),
	)
}

// openStore opens the named backend. The migrate command uses it to open
// a backend other than the configured one.
func openStore(ctx context.Context, cfg *config.Config, backend string, embedder storage.Embedder, log *logrus.Logger) (storage.Store, error) {
	chance := storage.NewChance(time.Now().UnixNano())

	switch backend {
	case config.BackendSQLite:
		return storage.NewSQLiteStore(cfg.DBPath, chance, log)
	case config.BackendPostgres:
		return storage.NewPostgresStore(ctx, cfg.PostgresURL, cfg.Embedding.Dimension, embedder, chance, log)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printSighting renders one record for human eyes.
func printSighting(s *fnord.Sighting) {
	fmt.Printf("#%d  %s", s.ID, s.When.Format(time.RFC3339))
	if s.WherePlaceName != "" {
		fmt.Printf("  @ %s", s.WherePlaceName)
	}
	fmt.Println()
	fmt.Printf("   %s\n", s.Summary)
	fmt.Printf("   source: %s\n", s.Source)
	if len(s.LogicalFallacies) > 0 {
		fmt.Printf("   fallacies: %s\n", strings.Join(s.LogicalFallacies, ", "))
	}
	if len(s.Notes) > 0 {
		notes, _ := json.Marshal(s.Notes)
		fmt.Printf("   notes: %s\n", notes)
	}
}
