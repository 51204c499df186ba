package models

import "time"

// DocumentStatus is the lifecycle state of an uploaded document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusProcessed  DocumentStatus = "PROCESSED"
	StatusFailed     DocumentStatus = "FAILED"
)

// Document is one uploaded file owned by an agent
type Document struct {
	ID            string
	AgentID       string
	Name          string
	ContentHash   string
	SizeBytes     int64
	Status        DocumentStatus
	FailureReason string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Page is the extracted text of one PDF page, numbered from 1
type Page struct {
	Number int
	Text   string
}

// Chunk represents a contiguous span of document text
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	PageNumber    *int
	Content       string
	Metadata      map[string]string
}

// Chunk metadata keys
const (
	MetaPageStart = "page_start"
	MetaPageEnd   = "page_end"
	MetaCharStart = "char_start"
	MetaCharEnd   = "char_end"
)

// Embedding is an immutable vector for one chunk under one model
type Embedding struct {
	ID        string
	ChunkID   string
	Model     string
	Vector    []float32
	CreatedAt time.Time
}

// Dimension of the stored vector
func (e Embedding) Dimension() int {
	return len(e.Vector)
}
