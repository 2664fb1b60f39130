package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Module returns the family prefix of the code ("DOC" for "DOC_002").
func (c ErrorCode) Module() string {
	s := string(c)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeMessagingError     ErrorCode = "COMMON_016"

	CodeOK ErrorCode = "OK"
)

// Document decoding error codes
const (
	ErrCodeUnsupportedFormat ErrorCode = "DOC_001"
	ErrCodeDecodeFailed      ErrorCode = "DOC_002"
	ErrCodeOCRUnavailable    ErrorCode = "DOC_003"
	ErrCodeEmptyDocument     ErrorCode = "DOC_004"
)

// Extraction error codes
const (
	ErrCodeNoEntityMatch     ErrorCode = "EXT_001"
	ErrCodeCatalogInvalid    ErrorCode = "EXT_002"
	ErrCodeEntityNotFound    ErrorCode = "EXT_003"
	ErrCodeExtractionAborted ErrorCode = "EXT_004"
)

// Aggregation error codes
const (
	ErrCodeNoCandidates      ErrorCode = "AGG_001"
	ErrCodeArbitrationFailed ErrorCode = "AGG_002"
	ErrCodeThresholdInvalid  ErrorCode = "AGG_003"
)

// Persistence error codes
const (
	ErrCodeFieldConflict   ErrorCode = "STO_001"
	ErrCodeBackupFailed    ErrorCode = "STO_002"
	ErrCodeRecordNotFound  ErrorCode = "STO_003"
	ErrCodeTableCorrupt    ErrorCode = "STO_004"
	ErrCodeCategoryInvalid ErrorCode = "STO_005"
)

// LLM collaborator error codes
const (
	ErrCodeLLMRequestFailed ErrorCode = "LLM_001"
	ErrCodeLLMRateLimited   ErrorCode = "LLM_002"
	ErrCodeLLMMalformedJSON ErrorCode = "LLM_003"
	ErrCodeLLMNotConfigured ErrorCode = "LLM_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeUnsupportedFormat: http.StatusUnsupportedMediaType,
	ErrCodeDecodeFailed:      http.StatusUnprocessableEntity,
	ErrCodeOCRUnavailable:    http.StatusServiceUnavailable,
	ErrCodeEmptyDocument:     http.StatusUnprocessableEntity,

	ErrCodeNoEntityMatch:     http.StatusNotFound,
	ErrCodeCatalogInvalid:    http.StatusBadRequest,
	ErrCodeEntityNotFound:    http.StatusNotFound,
	ErrCodeExtractionAborted: http.StatusInternalServerError,

	ErrCodeNoCandidates:      http.StatusNotFound,
	ErrCodeArbitrationFailed: http.StatusBadGateway,
	ErrCodeThresholdInvalid:  http.StatusBadRequest,

	ErrCodeFieldConflict:   http.StatusConflict,
	ErrCodeBackupFailed:    http.StatusInternalServerError,
	ErrCodeRecordNotFound:  http.StatusNotFound,
	ErrCodeTableCorrupt:    http.StatusInternalServerError,
	ErrCodeCategoryInvalid: http.StatusBadRequest,

	ErrCodeLLMRequestFailed: http.StatusBadGateway,
	ErrCodeLLMRateLimited:   http.StatusTooManyRequests,
	ErrCodeLLMMalformedJSON: http.StatusBadGateway,
	ErrCodeLLMNotConfigured: http.StatusServiceUnavailable,
}

// HTTPStatus returns the HTTP status associated with code, defaulting to 500.
func (c ErrorCode) HTTPStatus() int {
	if s, ok := ErrorCodeHTTPStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}
