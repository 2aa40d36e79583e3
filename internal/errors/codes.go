// Package errors provides structured error handling for docchat.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index)
//   - 3XX: Network errors (embedder, chat model, transcriber)
//   - 4XX: Validation errors (client input)
//   - 5XX: Internal errors
package errors

import "net/http"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates errors talking to model backends.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates client input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound    = "ERR_201_FILE_NOT_FOUND"
	ErrCodeLoaderFailed    = "ERR_202_LOADER_FAILED"
	ErrCodeCorruptIndex    = "ERR_203_CORRUPT_INDEX"
	ErrCodeSessionNotFound = "ERR_204_SESSION_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeEmbedFailed      = "ERR_301_EMBED_FAILED"
	ErrCodeChatModelFailed  = "ERR_302_CHAT_MODEL_FAILED"
	ErrCodeTranscribeFailed = "ERR_303_TRANSCRIBE_FAILED"

	// Validation errors (400-499)
	ErrCodeEmptyQuery          = "ERR_401_EMPTY_QUERY"
	ErrCodeEmptySessionID      = "ERR_402_EMPTY_SESSION_ID"
	ErrCodeUnsupportedFileType = "ERR_403_UNSUPPORTED_FILE_TYPE"
	ErrCodeContentTypeMismatch = "ERR_404_CONTENT_TYPE_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeReconcileFailed = "ERR_502_RECONCILE_FAILED"
)

// categoryFromCode derives the category from the code's number range.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// httpStatusByCode maps codes that do not follow the category default.
var httpStatusByCode = map[string]int{
	ErrCodeFileNotFound:    http.StatusNotFound,
	ErrCodeSessionNotFound: http.StatusNotFound,
}

// httpStatusForCategory maps categories to their default HTTP status.
func httpStatusForCategory(c Category) int {
	switch c {
	case CategoryValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
