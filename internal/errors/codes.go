// Package errors provides structured error handling for LexFuse.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store errors (sqlite, bleve, vectors)
//   - 3XX: External-service errors (embedding, knowledge graph, keyword)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates document/index store errors.
	CategoryStore Category = "STORE"
	// CategoryService indicates external-service errors.
	CategoryService Category = "SERVICE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreOpen      = "ERR_201_STORE_OPEN"
	ErrCodeStoreLocked    = "ERR_202_STORE_LOCKED"
	ErrCodeStoreQuery     = "ERR_203_STORE_QUERY"
	ErrCodeVectorsCorrupt = "ERR_204_VECTORS_CORRUPT"

	// External-service errors (300-399)
	ErrCodeEncoding          = "ERR_301_ENCODING_FAILED"
	ErrCodeKnowledgeGraph    = "ERR_302_KNOWLEDGE_GRAPH_UNAVAILABLE"
	ErrCodeKeywordIndex      = "ERR_303_KEYWORD_INDEX_UNAVAILABLE"
	ErrCodeContentResolution = "ERR_304_CONTENT_RESOLUTION_MISS"
	ErrCodeServiceTimeout    = "ERR_305_SERVICE_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidCount = "ERR_403_INVALID_COUNT"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryService
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeVectorsCorrupt, ErrCodeStoreLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Recoverable service degradations are retryable; the caller falls back
// to the base retrieval path instead of failing the query.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeKnowledgeGraph, ErrCodeKeywordIndex, ErrCodeServiceTimeout:
		return true
	}
	return false
}
