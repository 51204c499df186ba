package embedding

import "strings"

var knownDimensions = map[string]int{
	"text-embedding-004":     768,
	"embedding-001":          768,
	"gemini-embedding-001":   3072,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// Dimension returns the vector length of model. An explicit override wins;
// 0 means unknown.
func Dimension(model string, override int) int {
	if override > 0 {
		return override
	}
	name := strings.TrimPrefix(model, "models/")
	if i := strings.Index(name, ":"); i > 0 {
		name = name[:i]
	}
	return knownDimensions[name]
}
