package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"prepvista-rag/internal/db"
	"prepvista-rag/internal/helper"
	"prepvista-rag/internal/rag"
	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/schedule"
)

var (
	ingestFile       string
	ingestAgent      string
	ingestDocumentID string
	ingestName       string

	queryAgent      string
	queryDocument   string
	queryText       string
	queryMaxContext int
	querySources    bool

	searchAgent    string
	searchDocument string
	searchText     string
	searchLimit    int

	statsAgent string

	resumeWatch bool
	dropTables  bool
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Type == "memory" {
			return fmt.Errorf("database type memory has no schema")
		}
		bunDB, err := db.Open(&cfg.Database)
		if err != nil {
			return err
		}
		defer bunDB.Close()
		if dropTables {
			if err := db.DropTables(cmd.Context(), bunDB); err != nil {
				return err
			}
		}
		if err := db.InitDB(cmd.Context(), bunDB); err != nil {
			return err
		}
		log.Info().Str("database", cfg.Database.Type).Msg("Database initialized")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract, chunk and embed a PDF for an agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return err
		}
		name := ingestName
		if name == "" {
			name = filepath.Base(ingestFile)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.rag.IngestDocument(ctx, rag.IngestRequest{
				Data:       data,
				AgentID:    ingestAgent,
				FileName:   name,
				DocumentID: ingestDocumentID,
			})
			if res != nil {
				helper.PrettyPrint(res)
			}
			return explain(err)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show ingestion progress of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			status, err := a.rag.GetIngestionStatus(ctx, args[0])
			if err != nil {
				return explain(err)
			}
			helper.PrettyPrint(status)
			return nil
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a question from an agent's or a document's material",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			resp, err := a.rag.Query(ctx, rag.QueryRequest{
				Text:             queryText,
				AgentID:          queryAgent,
				DocumentID:       queryDocument,
				MaxContextChunks: queryMaxContext,
				IncludeSources:   querySources,
			})
			if err != nil {
				return explain(err)
			}
			helper.PrettyPrint(resp)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List the passages that best match a text without generating an answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			results, err := a.rag.Search(ctx, rag.SearchRequest{
				Text:       searchText,
				AgentID:    searchAgent,
				DocumentID: searchDocument,
				MaxResults: searchLimit,
			})
			if err != nil {
				return explain(err)
			}
			helper.PrettyPrint(results)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count an agent's documents, chunks and embeddings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			stats, err := a.rag.Stats(ctx, statsAgent)
			if err != nil {
				return explain(err)
			}
			helper.PrettyPrint(stats)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document with its chunks and embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return explain(a.rag.DeleteDocument(ctx, args[0]))
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Finish documents left PENDING or PROCESSING",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		job := schedule.NewResumeJob(a.rag)
		if !resumeWatch {
			return job.Run(ctx)
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		s := schedule.NewCronScheduler()
		if err := s.AddJob(job, cfg.Schedule.ResumeSpec); err != nil {
			return err
		}
		s.Start(ctx)
		<-ctx.Done()
		log.Info().Msg("Stopping scheduler")
		s.Stop()
		return nil
	},
}

var reembedCmd = &cobra.Command{
	Use:   "reembed [document-id...]",
	Short: "Embed documents with the configured model next to existing vectors",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			for _, id := range args {
				status, err := a.rag.ReembedDocument(ctx, id)
				if status != nil {
					helper.PrettyPrint(status)
				}
				if err != nil {
					return explain(err)
				}
			}
			return nil
		})
	},
}

// explain attaches the user facing advice for classified errors
func explain(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := ragerr.As(err); ok {
		return fmt.Errorf("%w (%s: %s)", err, e.Code, ragerr.Advice(err))
	}
	return err
}

func init() {
	initDBCmd.Flags().BoolVar(&dropTables, "drop", false, "drop existing tables first")

	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "path to the PDF")
	ingestCmd.Flags().StringVarP(&ingestAgent, "agent", "a", "", "agent the document belongs to")
	ingestCmd.Flags().StringVar(&ingestDocumentID, "document-id", "", "resume or create the document with this id")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "display name, defaults to the file name")
	_ = ingestCmd.MarkFlagRequired("file")
	_ = ingestCmd.MarkFlagRequired("agent")

	queryCmd.Flags().StringVarP(&queryText, "text", "t", "", "question to answer")
	queryCmd.Flags().StringVarP(&queryAgent, "agent", "a", "", "search all documents of this agent")
	queryCmd.Flags().StringVarP(&queryDocument, "document", "d", "", "search only this document")
	queryCmd.Flags().IntVar(&queryMaxContext, "max-context", 0, "chunks of context, at most 10")
	queryCmd.Flags().BoolVar(&querySources, "sources", true, "include sources in the response")
	_ = queryCmd.MarkFlagRequired("text")

	searchCmd.Flags().StringVarP(&searchText, "text", "t", "", "text to search for")
	searchCmd.Flags().StringVarP(&searchAgent, "agent", "a", "", "search all documents of this agent")
	searchCmd.Flags().StringVarP(&searchDocument, "document", "d", "", "search only this document")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", rag.DefaultSearchResults, "maximum number of results")
	_ = searchCmd.MarkFlagRequired("text")

	statsCmd.Flags().StringVarP(&statsAgent, "agent", "a", "", "agent to summarise")
	_ = statsCmd.MarkFlagRequired("agent")

	resumeCmd.Flags().BoolVarP(&resumeWatch, "watch", "w", false, "keep running and sweep on the configured schedule")

	rootCmd.AddCommand(initDBCmd, ingestCmd, statusCmd, queryCmd, searchCmd, statsCmd, deleteCmd, resumeCmd, reembedCmd)
}
