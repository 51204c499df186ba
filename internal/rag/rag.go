package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"prepvista-rag/internal/config"
	"prepvista-rag/internal/embedding"
	"prepvista-rag/internal/helper"
	"prepvista-rag/internal/llmservice"
	"prepvista-rag/internal/models"
	"prepvista-rag/internal/parser"
	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/retry"
	"prepvista-rag/internal/store"
	"prepvista-rag/internal/vectorstore"
)

// Dependencies are the external services the pipeline runs on
type Dependencies struct {
	Repository store.Repository
	Index      store.VectorIndex
	Embedder   embedding.Embedder
	Generator  llmservice.Generator
	// Extractor defaults to the PDF extractor
	Extractor parser.Extractor
}

type IngestRequest struct {
	Data       []byte
	AgentID    string
	FileName   string
	DocumentID string
}

// Search result limits
const (
	DefaultSearchResults = 10
	MaxSearchResults     = 50
)

type SearchRequest struct {
	Text       string
	AgentID    string
	DocumentID string
	MaxResults int
}

type QueryRequest struct {
	Text             string
	AgentID          string
	DocumentID       string
	MaxContextChunks int
	IncludeSources   bool
}

// RAG is the boundary of the ingestion and query pipeline
type RAG struct {
	cfg       *config.Config
	repo      store.Repository
	store     *vectorstore.Store
	extractor parser.Extractor
	chunker   *parser.Chunker
	embedder  *embedding.Generator
	retriever *Retriever
	composer  *Composer
	model     string
}

func NewRAG(cfg *config.Config, deps Dependencies) (*RAG, error) {
	if deps.Repository == nil || deps.Index == nil || deps.Embedder == nil || deps.Generator == nil {
		return nil, fmt.Errorf("repository, index, embedder and generator are required")
	}
	chunker, err := parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = parser.NewPDFExtractor()
	}

	model := deps.Embedder.ModelName()
	dim := embedding.Dimension(model, cfg.EmbedLLM.Dimension)
	vs := vectorstore.New(deps.Repository, deps.Index, map[string]int{model: dim})

	gen := embedding.NewGenerator(deps.Embedder,
		embedding.WithDimension(dim),
		embedding.WithBatchSize(cfg.RAG.BatchSize),
		embedding.WithBatchDelay(cfg.RAG.BatchDelay),
		embedding.WithRetryPolicy(retry.Policy{
			MaxAttempts: cfg.RAG.Retry.MaxAttempts,
			BaseDelay:   cfg.RAG.Retry.BaseDelay,
			MaxDelay:    cfg.RAG.Retry.MaxDelay,
		}),
	)
	queryEmbedder := embedding.WithCache(deps.Embedder, cfg.RAG.QueryCacheSize, cfg.RAG.QueryCacheTTL)

	return &RAG{
		cfg:       cfg,
		repo:      deps.Repository,
		store:     vs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  gen,
		retriever: NewRetriever(queryEmbedder, vs, cfg.RAG.MinSimilarity, cfg.RAG.DedupeSimilarity, cfg.RAG.SearchTimeout),
		composer:  NewComposer(deps.Generator, cfg.RAG.ComposeTimeout, cfg.RAG.ExcerptLength),
		model:     model,
	}, nil
}

// Model is the embedding model new vectors are written with
func (r *RAG) Model() string {
	return r.model
}

// IngestDocument extracts, chunks and embeds a PDF for an agent. Calling it
// again with the same bytes or document id resumes the same document and
// only embeds chunks that still lack a vector.
func (r *RAG) IngestDocument(ctx context.Context, req IngestRequest) (*models.IngestResult, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, fmt.Errorf("agent id is required: %w", ragerr.ErrInvalidRequest)
	}
	if limit := r.cfg.RAG.MaxFileBytes; limit > 0 && int64(len(req.Data)) > limit {
		return nil, fmt.Errorf("%d bytes exceeds %d: %w", len(req.Data), limit, ragerr.ErrFileTooLarge)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RAG.IngestTimeout)
	defer cancel()

	hash := helper.ContentHash(req.Data)
	existing, err := r.findExisting(ctx, req, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info().Str("document_id", existing.ID).Str("status", string(existing.Status)).Msg("Resuming document")
		return r.resume(ctx, existing, req.Data)
	}

	pages, err := r.extractor.Extract(ctx, req.Data)
	if err != nil {
		return nil, r.timeoutOr(ctx, err)
	}

	id := req.DocumentID
	if id == "" {
		if id, err = helper.GenerateUUID(); err != nil {
			return nil, err
		}
	}
	doc := &models.Document{
		ID:          id,
		AgentID:     req.AgentID,
		Name:        req.FileName,
		ContentHash: hash,
		SizeBytes:   int64(len(req.Data)),
		Status:      models.StatusPending,
	}

	chunks, err := r.split(doc.ID, pages)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		doc.Status = models.StatusFailed
		doc.FailureReason = ragerr.ErrEmptyDocument.Error()
		if err := r.repo.CreateDocument(ctx, doc, nil); err != nil {
			return nil, err
		}
		log.Warn().Str("document_id", doc.ID).Msg("Document has no extractable text")
		return &models.IngestResult{DocumentID: doc.ID, Status: models.StatusFailed}, fmt.Errorf("document %s: %w", doc.ID, ragerr.ErrEmptyDocument)
	}

	if err := r.repo.CreateDocument(ctx, doc, chunks); err != nil {
		return nil, r.timeoutOr(ctx, err)
	}
	log.Info().Str("document_id", doc.ID).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Stored chunks")

	return r.embedDocument(ctx, doc, len(chunks))
}

// findExisting returns the document an ingest call refers to, or nil for a new one
func (r *RAG) findExisting(ctx context.Context, req IngestRequest, hash string) (*models.Document, error) {
	var doc *models.Document
	var err error
	if req.DocumentID != "" {
		doc, err = r.repo.GetDocument(ctx, req.DocumentID)
	} else {
		doc, err = r.repo.FindDocumentByHash(ctx, req.AgentID, hash)
	}
	if errors.Is(err, ragerr.ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.AgentID != req.AgentID {
		return nil, fmt.Errorf("document %s belongs to another agent: %w", doc.ID, ragerr.ErrInvalidRequest)
	}
	return doc, nil
}

func (r *RAG) split(documentID string, pages []models.Page) ([]models.Chunk, error) {
	chunks := r.chunker.Split(pages)
	for i := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		chunks[i].ID = id
		chunks[i].DocumentID = documentID
	}
	return chunks, nil
}

// resume continues an existing document. data may be nil, in which case a
// document without chunks cannot be re-chunked.
func (r *RAG) resume(ctx context.Context, doc *models.Document, data []byte) (*models.IngestResult, error) {
	total, err := r.repo.CountChunks(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusProcessed {
		return &models.IngestResult{DocumentID: doc.ID, ChunkCount: total, Status: doc.Status}, nil
	}

	if total == 0 {
		if data == nil {
			return &models.IngestResult{DocumentID: doc.ID, Status: doc.Status}, nil
		}
		pages, err := r.extractor.Extract(ctx, data)
		if err != nil {
			r.markFailed(ctx, doc.ID, err)
			return &models.IngestResult{DocumentID: doc.ID, Status: models.StatusFailed}, r.timeoutOr(ctx, err)
		}
		chunks, err := r.split(doc.ID, pages)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			r.markFailed(ctx, doc.ID, ragerr.ErrEmptyDocument)
			return &models.IngestResult{DocumentID: doc.ID, Status: models.StatusFailed}, fmt.Errorf("document %s: %w", doc.ID, ragerr.ErrEmptyDocument)
		}
		if err := r.repo.InsertChunks(ctx, chunks); err != nil {
			return nil, err
		}
		if total, err = r.repo.CountChunks(ctx, doc.ID); err != nil {
			return nil, err
		}
	}
	return r.embedDocument(ctx, doc, total)
}

// embedDocument moves the document to PROCESSING, embeds its pending chunks
// and marks it PROCESSED once every chunk has a vector for the model
func (r *RAG) embedDocument(ctx context.Context, doc *models.Document, total int) (*models.IngestResult, error) {
	if doc.Status != models.StatusProcessing {
		if err := r.repo.UpdateDocumentStatus(ctx, doc.ID, models.StatusProcessing, ""); err != nil {
			return nil, err
		}
	}
	result := &models.IngestResult{DocumentID: doc.ID, ChunkCount: total, Status: models.StatusProcessing}

	embedErr := r.embedPending(ctx, doc.ID)

	// status bookkeeping must survive an expired ingest deadline
	bg := context.WithoutCancel(ctx)
	if errors.Is(embedErr, ragerr.ErrDimensionMismatch) {
		r.markFailed(bg, doc.ID, embedErr)
		result.Status = models.StatusFailed
		return result, embedErr
	}

	status, err := r.finalize(bg, doc.ID)
	if err != nil {
		return result, err
	}
	result.Status = status
	if embedErr != nil && status != models.StatusProcessed {
		return result, r.timeoutOr(ctx, embedErr)
	}
	return result, nil
}

func (r *RAG) embedPending(ctx context.Context, documentID string) error {
	pending, err := r.repo.ListChunksWithoutEmbedding(ctx, documentID, r.model)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Content
	}

	res, err := r.embedder.Generate(ctx, texts, func(ctx context.Context, start int, vectors [][]float32) error {
		persistCtx := context.WithoutCancel(ctx)
		for j, vec := range vectors {
			if vec == nil {
				continue
			}
			if err := r.store.UpsertEmbedding(persistCtx, pending[start+j].ID, vec, r.model); err != nil {
				return err
			}
		}
		return nil
	})
	if res != nil {
		log.Info().
			Str("document_id", documentID).
			Int("pending", len(pending)).
			Int("embedded", res.Succeeded()).
			Int("failed", len(res.Failures)).
			Msg("Embedded chunks")
	}
	return err
}

// finalize writes PROCESSED only when chunk and embedding counts match and
// every embedding is in the vector index
func (r *RAG) finalize(ctx context.Context, documentID string) (models.DocumentStatus, error) {
	total, err := r.repo.CountChunks(ctx, documentID)
	if err != nil {
		return "", err
	}
	done, err := r.repo.CountEmbeddings(ctx, documentID, r.model)
	if err != nil {
		return "", err
	}
	if total == 0 || done < total {
		return models.StatusProcessing, nil
	}
	if _, err := r.store.SyncIndex(ctx, documentID, r.model); err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("Vector index incomplete")
		return models.StatusProcessing, err
	}
	if err := r.repo.UpdateDocumentStatus(ctx, documentID, models.StatusProcessed, ""); err != nil {
		return "", err
	}
	log.Info().Str("document_id", documentID).Int("chunks", total).Msg("Document processed")
	return models.StatusProcessed, nil
}

func (r *RAG) markFailed(ctx context.Context, documentID string, cause error) {
	if err := r.repo.UpdateDocumentStatus(context.WithoutCancel(ctx), documentID, models.StatusFailed, cause.Error()); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("Failed to mark document failed")
	}
}

func (r *RAG) timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, ragerr.ErrIngestTimeout)
	}
	return err
}

// GetIngestionStatus reports the stored status with derived progress counts
func (r *RAG) GetIngestionStatus(ctx context.Context, documentID string) (*models.IngestionStatus, error) {
	doc, err := r.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	total, err := r.repo.CountChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	done, err := r.repo.CountEmbeddings(ctx, documentID, r.model)
	if err != nil {
		return nil, err
	}
	return &models.IngestionStatus{
		DocumentID:         doc.ID,
		Status:             doc.Status,
		ChunksTotal:        total,
		EmbeddingsComplete: done,
		FailureReason:      doc.FailureReason,
	}, nil
}

// Query answers text from the chunks of one document, or of one agent when
// no document is given
func (r *RAG) Query(ctx context.Context, req QueryRequest) (*models.QueryResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("query text is required: %w", ragerr.ErrInvalidRequest)
	}
	scope, err := r.scope(ctx, req.AgentID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	retrieval, err := r.retriever.Retrieve(ctx, text, scope, r.contextLimit(req.MaxContextChunks))
	if err != nil {
		return nil, err
	}
	answer, err := r.composer.Compose(ctx, text, retrieval, req.IncludeSources)
	if err != nil {
		return nil, err
	}
	return &models.QueryResponse{
		Answer:           answer.Text,
		AnswerHTML:       answer.HTML,
		Sources:          answer.Sources,
		ContextUsed:      retrieval.ContextUsed,
		SimilarityScores: answer.Similarity,
	}, nil
}

// scope resolves the search scope of a request. A document named together
// with an agent must belong to that agent.
func (r *RAG) scope(ctx context.Context, agentID, documentID string) (models.Scope, error) {
	switch {
	case documentID != "" && agentID != "":
		doc, err := r.repo.GetDocument(ctx, documentID)
		if err != nil {
			return models.Scope{}, err
		}
		if doc.AgentID != agentID {
			return models.Scope{}, fmt.Errorf("document %s of agent %s: %w", documentID, agentID, ragerr.ErrDocumentNotFound)
		}
		return models.DocumentScope(documentID), nil
	case documentID != "":
		return models.DocumentScope(documentID), nil
	case agentID != "":
		return models.AgentScope(agentID), nil
	}
	return models.Scope{}, fmt.Errorf("agent id or document id is required: %w", ragerr.ErrInvalidRequest)
}

func (r *RAG) contextLimit(requested int) int {
	if requested <= 0 {
		requested = r.cfg.RAG.MaxContextChunks
	}
	return min(requested, config.MaxContextChunksLimit)
}

// Search returns the passages of a scope that best match text without
// generating an answer
func (r *RAG) Search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("search text is required: %w", ragerr.ErrInvalidRequest)
	}
	scope, err := r.scope(ctx, req.AgentID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultSearchResults
	}
	limit = min(limit, MaxSearchResults)

	retrieval, err := r.retriever.Retrieve(ctx, text, scope, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, len(retrieval.Chunks))
	for i, c := range retrieval.Chunks {
		results[i] = models.SearchResult{
			DocumentID:    c.DocumentID,
			FileName:      c.DocumentName,
			PageNumber:    c.PageNumber,
			SequenceIndex: c.SequenceIndex,
			Content:       c.Content,
			Relevance:     c.Similarity,
			Metadata:      c.Metadata,
		}
	}
	log.Info().Str("scope", scope.String()).Int("results", len(results)).Msg("Searched documents")
	return results, nil
}

// Stats summarises the documents, chunks and embeddings of an agent
func (r *RAG) Stats(ctx context.Context, agentID string) (*models.AgentStats, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("agent id is required: %w", ragerr.ErrInvalidRequest)
	}
	return r.repo.AgentStats(ctx, agentID)
}

// DeleteDocument removes a document with all its chunks and embeddings
func (r *RAG) DeleteDocument(ctx context.Context, documentID string) error {
	if err := r.store.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	log.Info().Str("document_id", documentID).Msg("Deleted document")
	return nil
}

// ResumePending retries every document left PENDING or PROCESSING and
// returns how many of them reached PROCESSED
func (r *RAG) ResumePending(ctx context.Context) (int, error) {
	var docs []models.Document
	for _, status := range []models.DocumentStatus{models.StatusPending, models.StatusProcessing} {
		found, err := r.repo.ListDocumentsByStatus(ctx, status)
		if err != nil {
			return 0, err
		}
		docs = append(docs, found...)
	}

	processed := 0
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		doc := &docs[i]
		docCtx, cancel := context.WithTimeout(ctx, r.cfg.RAG.IngestTimeout)
		res, err := r.resume(docCtx, doc, nil)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID).Str("advice", ragerr.Advice(err)).Msg("Resume failed")
			continue
		}
		if res.Status == models.StatusProcessed {
			processed++
		}
	}
	log.Info().Int("documents", len(docs)).Int("processed", processed).Msg("Resume sweep finished")
	return processed, nil
}

// ReembedDocument adds embeddings for the current model next to existing
// ones. The document status is left alone unless the document is now
// complete for the current model.
func (r *RAG) ReembedDocument(ctx context.Context, documentID string) (*models.IngestionStatus, error) {
	doc, err := r.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RAG.IngestTimeout)
	defer cancel()

	embedErr := r.embedPending(ctx, doc.ID)
	if embedErr == nil && doc.Status != models.StatusFailed {
		if _, err := r.finalize(context.WithoutCancel(ctx), doc.ID); err != nil {
			return nil, err
		}
	}
	status, err := r.GetIngestionStatus(context.WithoutCancel(ctx), doc.ID)
	if err != nil {
		return nil, err
	}
	if embedErr != nil {
		return status, r.timeoutOr(ctx, embedErr)
	}
	return status, nil
}
