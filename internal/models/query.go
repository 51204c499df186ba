package models

import "fmt"

// ScopeKind selects what a retrieval is restricted to
type ScopeKind string

const (
	ScopeAgent    ScopeKind = "agent"
	ScopeDocument ScopeKind = "document"
)

// Scope bounds a similarity search to one agent or one document
type Scope struct {
	Kind ScopeKind
	ID   string
}

func AgentScope(id string) Scope    { return Scope{Kind: ScopeAgent, ID: id} }
func DocumentScope(id string) Scope { return Scope{Kind: ScopeDocument, ID: id} }

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Metric is the similarity function used for search
type Metric string

const MetricCosine Metric = "cosine"

// ScoredChunk is a retrieved chunk with its similarity to the query
type ScoredChunk struct {
	Chunk
	DocumentName string
	Similarity   float64
}

// Source attributes part of an answer to a chunk
type Source struct {
	DocumentID    string  `json:"document_id"`
	FileName      string  `json:"file_name"`
	PageNumber    *int    `json:"page_number,omitempty"`
	SequenceIndex int     `json:"sequence_index"`
	Similarity    float64 `json:"similarity"`
	Excerpt       string  `json:"excerpt"`
}

// Answer is the composed reply to a query
type Answer struct {
	Text       string    `json:"answer"`
	HTML       string    `json:"answer_html,omitempty"`
	Grounded   bool      `json:"grounded"`
	Sources    []Source  `json:"sources"`
	Similarity []float64 `json:"similarity_scores"`
}

// QueryResponse is returned to callers of Query
type QueryResponse struct {
	Answer           string    `json:"answer"`
	AnswerHTML       string    `json:"answer_html,omitempty"`
	Sources          []Source  `json:"sources"`
	ContextUsed      bool      `json:"context_used"`
	SimilarityScores []float64 `json:"similarity_scores"`
}

// IngestResult summarises an ingestion call
type IngestResult struct {
	DocumentID string         `json:"document_id"`
	ChunkCount int            `json:"chunk_count"`
	Status     DocumentStatus `json:"status"`
}

// IngestionStatus reports derived progress of a document
type IngestionStatus struct {
	DocumentID         string         `json:"document_id"`
	Status             DocumentStatus `json:"status"`
	ChunksTotal        int            `json:"chunks_total"`
	EmbeddingsComplete int            `json:"embeddings_complete"`
	FailureReason      string         `json:"failure_reason,omitempty"`
}

// SearchResult is one passage returned by a retrieval-only search
type SearchResult struct {
	DocumentID    string            `json:"document_id"`
	FileName      string            `json:"file_name"`
	PageNumber    *int              `json:"page_number,omitempty"`
	SequenceIndex int               `json:"chunk_index"`
	Content       string            `json:"content"`
	Relevance     float64           `json:"relevance_score"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ModelStats counts the embeddings stored under one model
type ModelStats struct {
	Model      string `json:"model"`
	Embeddings int    `json:"embeddings"`
	Dimension  int    `json:"dimension"`
}

// AgentStats summarises what an agent has stored
type AgentStats struct {
	AgentID   string                 `json:"agent_id"`
	Documents int                    `json:"documents"`
	ByStatus  map[DocumentStatus]int `json:"by_status"`
	Chunks    int                    `json:"chunks"`
	Models    []ModelStats           `json:"models"`
}
