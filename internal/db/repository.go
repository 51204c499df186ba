package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/store"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string     `bun:"id,pk"`
	AgentID       string     `bun:"agent_id,notnull"`
	Name          string     `bun:"name,notnull"`
	ContentHash   string     `bun:"content_hash,notnull"`
	SizeBytes     int64      `bun:"size_bytes,notnull"`
	Status        string     `bun:"status,notnull"`
	FailureReason string     `bun:"failure_reason,nullzero"`
	ProcessedAt   *time.Time `bun:"processed_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
}

type Chunk struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            string            `bun:"id,pk"`
	DocumentID    string            `bun:"document_id,notnull"`
	SequenceIndex int               `bun:"sequence_index,notnull"`
	PageNumber    *int              `bun:"page_number"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata"`
}

type Embedding struct {
	bun.BaseModel `bun:"table:embeddings,alias:e"`
	ID            string          `bun:"id,pk"`
	ChunkID       string          `bun:"chunk_id,notnull"`
	Model         string          `bun:"model,notnull"`
	Dimension     int             `bun:"dimension,notnull"`
	Vector        pgvector.Vector `bun:"vector,notnull"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
}

type chunkWithDocument struct {
	Chunk        `bun:",extend"`
	DocumentName string `bun:"document_name"`
}

type indexRow struct {
	ChunkID       string          `bun:"chunk_id"`
	DocumentID    string          `bun:"document_id"`
	AgentID       string          `bun:"agent_id"`
	SequenceIndex int             `bun:"sequence_index"`
	Model         string          `bun:"model"`
	Vector        pgvector.Vector `bun:"vector"`
}

type modelCount struct {
	Model string `bun:"model"`
	N     int    `bun:"n"`
}

const indexEntrySelect = `SELECT e.chunk_id, c.document_id, d.agent_id, c.sequence_index, e.model, e.vector
FROM embeddings AS e
JOIN chunks AS c ON c.id = e.chunk_id
JOIN documents AS d ON d.id = c.document_id`

// Repository implements store.Repository on bun
type Repository struct {
	db *bun.DB
}

var _ store.Repository = (*Repository)(nil)

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *bun.DB {
	return r.db
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func toDocumentRow(d *models.Document) *Document {
	return &Document{
		ID:            d.ID,
		AgentID:       d.AgentID,
		Name:          d.Name,
		ContentHash:   d.ContentHash,
		SizeBytes:     d.SizeBytes,
		Status:        string(d.Status),
		FailureReason: d.FailureReason,
		ProcessedAt:   d.ProcessedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (d *Document) toModel() *models.Document {
	return &models.Document{
		ID:            d.ID,
		AgentID:       d.AgentID,
		Name:          d.Name,
		ContentHash:   d.ContentHash,
		SizeBytes:     d.SizeBytes,
		Status:        models.DocumentStatus(d.Status),
		FailureReason: d.FailureReason,
		ProcessedAt:   d.ProcessedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func toChunkRows(chunks []models.Chunk) []Chunk {
	rows := make([]Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = Chunk{
			ID:            c.ID,
			DocumentID:    c.DocumentID,
			SequenceIndex: c.SequenceIndex,
			PageNumber:    c.PageNumber,
			Content:       c.Content,
			Metadata:      c.Metadata,
		}
	}
	return rows
}

func (c *Chunk) toModel() models.Chunk {
	return models.Chunk{
		ID:            c.ID,
		DocumentID:    c.DocumentID,
		SequenceIndex: c.SequenceIndex,
		PageNumber:    c.PageNumber,
		Content:       c.Content,
		Metadata:      c.Metadata,
	}
}

func (r *Repository) CreateDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	row := toDocumentRow(doc)
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		return insertChunks(ctx, tx, chunks)
	})
}

func insertChunks(ctx context.Context, db bun.IDB, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := toChunkRows(chunks)
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (document_id, sequence_index) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := new(Document)
	err := r.db.NewSelect().Model(row).Where("d.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ragerr.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toModel(), nil
}

func (r *Repository) FindDocumentByHash(ctx context.Context, agentID, hash string) (*models.Document, error) {
	row := new(Document)
	err := r.db.NewSelect().
		Model(row).
		Where("d.agent_id = ?", agentID).
		Where("d.content_hash = ?", hash).
		Order("d.created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document with hash %s: %w", hash, ragerr.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return row.toModel(), nil
}

func (r *Repository) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error {
	now := time.Now().UTC()
	q := r.db.NewUpdate().
		Model((*Document)(nil)).
		Set("status = ?", string(status)).
		Set("failure_reason = ?", sql.NullString{String: reason, Valid: reason != ""}).
		Set("updated_at = ?", now).
		Where("id = ?", id)
	if status == models.StatusProcessed {
		q = q.Set("processed_at = ?", now)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", id, ragerr.ErrDocumentNotFound)
	}
	return nil
}

func (r *Repository) ListDocumentsByStatus(ctx context.Context, status models.DocumentStatus) ([]models.Document, error) {
	var rows []Document
	err := r.db.NewSelect().
		Model(&rows).
		Where("d.status = ?", string(status)).
		Order("d.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	out := make([]models.Document, len(rows))
	for i := range rows {
		out[i] = *rows[i].toModel()
	}
	return out, nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*Document)(nil)).Where("d.id = ?", id).Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to look up document: %w", err)
		}
		if !exists {
			return fmt.Errorf("document %s: %w", id, ragerr.ErrDocumentNotFound)
		}
		stmts := []string{
			"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
			"DELETE FROM chunks WHERE document_id = ?",
			"DELETE FROM documents WHERE id = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	return insertChunks(ctx, r.db, chunks)
}

func (r *Repository) ListChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	var rows []Chunk
	err := r.db.NewSelect().
		Model(&rows).
		Where("c.document_id = ?", documentID).
		Order("c.sequence_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunkModels(rows), nil
}

func (r *Repository) ListChunksWithoutEmbedding(ctx context.Context, documentID, model string) ([]models.Chunk, error) {
	var rows []Chunk
	err := r.db.NewSelect().
		Model(&rows).
		Where("c.document_id = ?", documentID).
		Where("NOT EXISTS (SELECT 1 FROM embeddings AS e WHERE e.chunk_id = c.id AND e.model = ?)", model).
		Order("c.sequence_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chunks: %w", err)
	}
	return chunkModels(rows), nil
}

func chunkModels(rows []Chunk) []models.Chunk {
	out := make([]models.Chunk, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}

func (r *Repository) GetChunks(ctx context.Context, ids []string) ([]models.ScoredChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []chunkWithDocument
	err := r.db.NewSelect().
		Model(&rows).
		ColumnExpr("c.*").
		ColumnExpr("d.name AS document_name").
		Join("JOIN documents AS d ON d.id = c.document_id").
		Where("c.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	out := make([]models.ScoredChunk, len(rows))
	for i := range rows {
		out[i] = models.ScoredChunk{Chunk: rows[i].toModel(), DocumentName: rows[i].DocumentName}
	}
	return out, nil
}

func (r *Repository) CountChunks(ctx context.Context, documentID string) (int, error) {
	n, err := r.db.NewSelect().Model((*Chunk)(nil)).Where("c.document_id = ?", documentID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (r *Repository) InsertEmbedding(ctx context.Context, e *models.Embedding) (bool, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := &Embedding{
		ID:        e.ID,
		ChunkID:   e.ChunkID,
		Model:     e.Model,
		Dimension: len(e.Vector),
		Vector:    pgvector.NewVector(e.Vector),
		CreatedAt: createdAt,
	}
	res, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (chunk_id, model) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert embedding: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) CountEmbeddings(ctx context.Context, documentID, model string) (int, error) {
	n, err := r.db.NewSelect().
		Model((*Embedding)(nil)).
		Join("JOIN chunks AS c ON c.id = e.chunk_id").
		Where("c.document_id = ?", documentID).
		Where("e.model = ?", model).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

func (r *Repository) ListIndexEntries(ctx context.Context, model string) ([]store.IndexEntry, error) {
	var rows []indexRow
	if err := r.db.NewRaw(indexEntrySelect+" WHERE e.model = ?", model).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	out := make([]store.IndexEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toEntry()
	}
	return out, nil
}

func (r *Repository) ListDocumentIndexEntries(ctx context.Context, documentID, model string) ([]store.IndexEntry, error) {
	var rows []indexRow
	err := r.db.NewRaw(indexEntrySelect+" WHERE c.document_id = ? AND e.model = ? ORDER BY c.sequence_index ASC", documentID, model).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list document embeddings: %w", err)
	}
	out := make([]store.IndexEntry, len(rows))
	for i, row := range rows {
		out[i] = row.toEntry()
	}
	return out, nil
}

func (r *Repository) GetIndexEntry(ctx context.Context, chunkID, model string) (*store.IndexEntry, error) {
	var rows []indexRow
	err := r.db.NewRaw(indexEntrySelect+" WHERE e.chunk_id = ? AND e.model = ?", chunkID, model).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("embedding for chunk %s and model %s not found", chunkID, model)
	}
	entry := rows[0].toEntry()
	return &entry, nil
}

func (row indexRow) toEntry() store.IndexEntry {
	return store.IndexEntry{
		ChunkID:       row.ChunkID,
		DocumentID:    row.DocumentID,
		AgentID:       row.AgentID,
		SequenceIndex: row.SequenceIndex,
		Model:         row.Model,
		Vector:        row.Vector.Slice(),
	}
}

// scopeColumn is the column a scope filters on in the embeddings join
func scopeColumn(scope models.Scope) (string, error) {
	switch scope.Kind {
	case models.ScopeDocument:
		return "c.document_id", nil
	case models.ScopeAgent:
		return "d.agent_id", nil
	default:
		return "", fmt.Errorf("unknown scope kind %q: %w", scope.Kind, ragerr.ErrInvalidRequest)
	}
}

func (r *Repository) ScopeModels(ctx context.Context, scope models.Scope) (map[string]int, error) {
	col, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	var rows []modelCount
	err = r.db.NewRaw(`SELECT e.model, COUNT(*) AS n
FROM embeddings AS e
JOIN chunks AS c ON c.id = e.chunk_id
JOIN documents AS d ON d.id = c.document_id
WHERE ? = ?
GROUP BY e.model`, bun.Safe(col), scope.ID).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to count scope embeddings: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Model] = row.N
	}
	return out, nil
}

func (r *Repository) ModelDimension(ctx context.Context, model string) (int, error) {
	var dims []int
	err := r.db.NewSelect().
		Model((*Embedding)(nil)).
		ColumnExpr("e.dimension").
		Where("e.model = ?", model).
		Limit(1).
		Scan(ctx, &dims)
	if err != nil {
		return 0, fmt.Errorf("failed to look up model dimension: %w", err)
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}

type statusCount struct {
	Status string `bun:"status"`
	N      int    `bun:"n"`
}

type modelStatsRow struct {
	Model     string `bun:"model"`
	N         int    `bun:"n"`
	Dimension int    `bun:"dimension"`
}

func (r *Repository) AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error) {
	stats := &models.AgentStats{AgentID: agentID, ByStatus: make(map[models.DocumentStatus]int)}

	var statuses []statusCount
	err := r.db.NewSelect().
		Model((*Document)(nil)).
		ColumnExpr("d.status, COUNT(*) AS n").
		Where("d.agent_id = ?", agentID).
		Group("d.status").
		Scan(ctx, &statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	for _, row := range statuses {
		stats.ByStatus[models.DocumentStatus(row.Status)] = row.N
		stats.Documents += row.N
	}

	stats.Chunks, err = r.db.NewSelect().
		Model((*Chunk)(nil)).
		Join("JOIN documents AS d ON d.id = c.document_id").
		Where("d.agent_id = ?", agentID).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	var rows []modelStatsRow
	err = r.db.NewRaw(`SELECT e.model, COUNT(*) AS n, MAX(e.dimension) AS dimension
FROM embeddings AS e
JOIN chunks AS c ON c.id = e.chunk_id
JOIN documents AS d ON d.id = c.document_id
WHERE d.agent_id = ?
GROUP BY e.model
ORDER BY e.model ASC`, agentID).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	for _, row := range rows {
		stats.Models = append(stats.Models, models.ModelStats{Model: row.Model, Embeddings: row.N, Dimension: row.Dimension})
	}
	return stats, nil
}
