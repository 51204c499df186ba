package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/store"
)

// HNSW build parameters
const (
	hnswM              = 16
	hnswEfConstruction = 64
)

var identUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// PGVectorIndex searches the embeddings table directly. Embedding rows are
// the index, so Add only makes sure an HNSW index exists for the model.
type PGVectorIndex struct {
	db      *bun.DB
	mu      sync.Mutex
	ensured map[string]bool
	version *string
}

var _ store.VectorIndex = (*PGVectorIndex)(nil)

func NewPGVectorIndex(db *bun.DB) *PGVectorIndex {
	return &PGVectorIndex{db: db, ensured: make(map[string]bool)}
}

func hnswIndexName(model string, dim int) string {
	name := strings.Trim(identUnsafe.ReplaceAllString(strings.ToLower(model), "_"), "_")
	return fmt.Sprintf("embeddings_hnsw_%s_%d", name, dim)
}

// EnsureIndex creates a partial HNSW cosine index for one model
func (x *PGVectorIndex) EnsureIndex(ctx context.Context, model string, dim int) error {
	name := hnswIndexName(model, dim)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ensured[name] {
		return nil
	}
	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS ? ON embeddings USING hnsw ((vector::vector(%d)) vector_cosine_ops) WITH (m = %d, ef_construction = %d) WHERE model = ?",
		dim, hnswM, hnswEfConstruction)
	if _, err := x.db.ExecContext(ctx, stmt, bun.Ident(name), model); err != nil {
		return fmt.Errorf("failed to create vector index %s: %w", name, err)
	}
	log.Debug().Str("index", name).Msg("Ensured vector index")
	x.ensured[name] = true
	return nil
}

func (x *PGVectorIndex) Add(ctx context.Context, entries []store.IndexEntry) error {
	for _, e := range entries {
		if err := x.EnsureIndex(ctx, e.Model, len(e.Vector)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocument is a no-op, the repository removes the rows
func (x *PGVectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return nil
}

// Missing is always empty, every stored embedding row is searchable
func (x *PGVectorIndex) Missing(ctx context.Context, model string, chunkIDs []string) ([]string, error) {
	return nil, nil
}

// Search runs in its own transaction so the planner settings stay local to it.
// Small scopes are scanned exactly; larger ones widen the HNSW candidate list
// so that the scope filter applied after the index scan still leaves k rows.
func (x *PGVectorIndex) Search(ctx context.Context, query []float32, scope models.Scope, model string, k int) ([]store.Hit, error) {
	col, err := scopeColumn(scope)
	if err != nil {
		return nil, err
	}
	dim := len(query)
	iterative, err := x.iterativeScan(ctx)
	if err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(query)
	var rows []searchRow
	err = x.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		var n int
		if err := tx.NewRaw(scopeCountStatement(col), model, dim, scope.ID).Scan(ctx, &n); err != nil {
			return err
		}
		for _, setting := range searchSettings(n, k, iterative) {
			if _, err := tx.ExecContext(ctx, setting); err != nil {
				return err
			}
		}
		return tx.NewRaw(searchStatement(col, dim), vec, model, dim, scope.ID, vec, k).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	hits := make([]store.Hit, len(rows))
	for i, row := range rows {
		hits[i] = store.Hit{ChunkID: row.ChunkID, SequenceIndex: row.SequenceIndex, Similarity: row.Similarity}
	}
	return hits, nil
}

type searchRow struct {
	ChunkID       string  `bun:"chunk_id"`
	SequenceIndex int     `bun:"sequence_index"`
	Similarity    float64 `bun:"similarity"`
}

const searchJoin = `FROM embeddings AS e
JOIN chunks AS c ON c.id = e.chunk_id
JOIN documents AS d ON d.id = c.document_id
WHERE e.model = ? AND e.dimension = ? AND %s = ?`

func scopeCountStatement(col string) string {
	return "SELECT COUNT(*)\n" + fmt.Sprintf(searchJoin, col)
}

// searchStatement orders by distance alone so the HNSW index stays usable.
// Callers break ties.
func searchStatement(col string, dim int) string {
	distance := fmt.Sprintf("(e.vector::vector(%d)) <=> ?::vector(%d)", dim, dim)
	return fmt.Sprintf("SELECT e.chunk_id, c.sequence_index, 1 - (%s) AS similarity\n", distance) +
		fmt.Sprintf(searchJoin, col) +
		fmt.Sprintf("\nORDER BY %s\nLIMIT ?", distance)
}

// Scan tuning
const (
	exactScanRows  = 10000
	minEfSearch    = 40
	maxEfSearch    = 1000
	efSearchPerHit = 4
)

// searchSettings returns the SET LOCAL statements for a search over
// scopeRows embeddings returning k hits
func searchSettings(scopeRows, k int, iterative bool) []string {
	if scopeRows <= exactScanRows {
		return []string{"SET LOCAL enable_indexscan = off"}
	}
	ef := min(max(minEfSearch, efSearchPerHit*k), maxEfSearch)
	settings := []string{fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", ef)}
	if iterative {
		settings = append(settings, "SET LOCAL hnsw.iterative_scan = strict_order")
	}
	return settings
}

// iterativeScan reports whether the installed pgvector can resume an HNSW
// scan until enough filtered rows are found
func (x *PGVectorIndex) iterativeScan(ctx context.Context) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.version != nil {
		return supportsIterativeScan(*x.version), nil
	}
	var versions []string
	err := x.db.NewRaw("SELECT extversion FROM pg_extension WHERE extname = 'vector'").Scan(ctx, &versions)
	if err != nil {
		return false, fmt.Errorf("failed to read pgvector version: %w", err)
	}
	v := ""
	if len(versions) > 0 {
		v = versions[0]
	}
	x.version = &v
	log.Debug().Str("version", v).Msg("Detected pgvector")
	return supportsIterativeScan(v), nil
}

// supportsIterativeScan is true from pgvector 0.8
func supportsIterativeScan(version string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return major > 0 || minor >= 8
}
