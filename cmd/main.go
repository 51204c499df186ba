package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"prepvista-rag/internal/chromemdb"
	"prepvista-rag/internal/config"
	"prepvista-rag/internal/db"
	"prepvista-rag/internal/embedding"
	"prepvista-rag/internal/helper"
	"prepvista-rag/internal/llmservice"
	"prepvista-rag/internal/logger"
	"prepvista-rag/internal/rag"
	"prepvista-rag/internal/store"
	"prepvista-rag/internal/store/memory"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "prepvista-rag",
	Short:         "Ingest study material and answer questions from it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to config.yaml")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Console)
	log.Debug().Str("config", configPath).Str("database", cfg.Database.Type).Str("index", cfg.VectorIndex.Type).Msg("Loaded config")
	return cfg, nil
}

// openDatabase returns nil for the in-memory database type
func openDatabase(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	if cfg.Database.Type == "memory" {
		return nil, nil
	}
	bunDB, err := db.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.InitDB(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, err
	}
	return bunDB, nil
}

// app holds the pipeline and what must be closed after a command
type app struct {
	rag  *rag.RAG
	repo store.Repository
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close repository")
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.New(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	generator, err := llmservice.New(ctx, &cfg.InferenceLLM)
	if err != nil {
		return nil, fmt.Errorf("initializing generator: %w", err)
	}
	model := embedder.ModelName()
	dim := embedding.Dimension(model, cfg.EmbedLLM.Dimension)

	bunDB, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var repo store.Repository
	if bunDB == nil {
		repo = memory.NewRepository()
	} else {
		repo = db.NewRepository(bunDB)
	}

	index, err := openIndex(ctx, cfg, repo, bunDB, model, dim)
	if err != nil {
		repo.Close()
		return nil, err
	}

	r, err := rag.NewRAG(cfg, rag.Dependencies{
		Repository: repo,
		Index:      index,
		Embedder:   embedder,
		Generator:  generator,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}
	log.Debug().Str("embed_model", model).Int("dimension", dim).Str("llm", generator.ModelName()).Msg("Pipeline ready")
	return &app{rag: r, repo: repo}, nil
}

// openIndex builds the configured vector index and loads the embeddings it lacks
func openIndex(ctx context.Context, cfg *config.Config, repo store.Repository, bunDB *bun.DB, model string, dim int) (store.VectorIndex, error) {
	switch cfg.VectorIndex.Type {
	case "pgvector":
		pg := db.NewPGVectorIndex(bunDB)
		if err := pg.EnsureIndex(ctx, model, dim); err != nil {
			return nil, err
		}
		return pg, nil
	case "chromem":
		if cfg.VectorIndex.Path != "" {
			if err := helper.CreateFolder(cfg.VectorIndex.Path); err != nil {
				return nil, err
			}
		}
		cx, err := chromemdb.New(cfg.VectorIndex.Path, cfg.VectorIndex.Compress)
		if err != nil {
			return nil, err
		}
		if _, err := cx.Reindex(ctx, repo, model); err != nil {
			return nil, err
		}
		return cx, nil
	default:
		mem := memory.NewIndex()
		entries, err := repo.ListIndexEntries(ctx, model)
		if err != nil {
			return nil, err
		}
		if err := mem.Add(ctx, entries); err != nil {
			return nil, err
		}
		return mem, nil
	}
}

// withApp loads config, builds the pipeline and runs fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
