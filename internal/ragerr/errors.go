// Package ragerr defines the typed failures of the ingestion and query pipeline.
package ragerr

import "errors"

// Kind classifies an error for callers deciding what to do next
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindTransient
	KindConsistency
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTransient:
		return "transient"
	case KindConsistency:
		return "consistency"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a sentinel carrying a stable code and its kind
type Error struct {
	Code string
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, msg: msg}
}

var (
	// Input errors. The caller must change the upload or the request.

	// ErrUnsupportedFormat indicates the bytes are not a PDF.
	ErrUnsupportedFormat = newError("unsupported_format", KindInput, "unsupported format")

	// ErrExtractionFailed indicates the PDF is corrupt, encrypted or unreadable.
	ErrExtractionFailed = newError("extraction_failed", KindInput, "text extraction failed")

	// ErrEmptyDocument indicates extraction produced no text at all.
	ErrEmptyDocument = newError("empty_document", KindInput, "document contains no extractable text")

	// ErrFileTooLarge indicates the upload exceeds the configured size limit.
	ErrFileTooLarge = newError("file_too_large", KindInput, "file too large")

	ErrInvalidChunkConfig = newError("invalid_chunk_config", KindInput, "invalid chunk configuration")

	ErrInvalidRequest = newError("invalid_request", KindInput, "invalid request")

	ErrUnsupportedMetric = newError("unsupported_metric", KindInput, "unsupported similarity metric")

	// Transient errors. Retrying later may succeed.

	// ErrEmbeddingServiceUnavailable indicates a whole batch failed against the provider.
	ErrEmbeddingServiceUnavailable = newError("embedding_service_unavailable", KindTransient, "embedding service unavailable")

	ErrIngestTimeout = newError("ingest_timeout", KindTransient, "ingestion timed out")

	ErrSearchTimeout = newError("search_timeout", KindTransient, "search timed out")

	// ErrGenerationFailed indicates the inference model failed or returned nothing.
	ErrGenerationFailed = newError("generation_failed", KindTransient, "answer generation failed")

	// Consistency errors. Configuration or stored data disagree.

	// ErrDimensionMismatch indicates a vector length differs from the model dimension.
	ErrDimensionMismatch = newError("dimension_mismatch", KindConsistency, "embedding dimension mismatch")

	// ErrModelMismatch indicates the scope only holds embeddings from other models.
	ErrModelMismatch = newError("model_mismatch", KindConsistency, "embedding model mismatch")

	// ErrScopeNotFound indicates the scope holds no embeddings at all.
	ErrScopeNotFound = newError("scope_not_found", KindNotFound, "scope has no embeddings")

	ErrDocumentNotFound = newError("document_not_found", KindNotFound, "document not found")
)

// As returns the sentinel wrapped in err, if any
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err. Untyped errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the same call may succeed later
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Advice maps err to the action a user should take
func Advice(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindInput:
		return "fix the file or request and try again"
	case KindTransient:
		return "retry later"
	case KindNotFound:
		return "check the identifier"
	default:
		return "contact support"
	}
}
