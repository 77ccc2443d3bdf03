// 错误分类与处理
package errors

import (
	"context"
	"errors"
)

// ErrorLevel 错误级别
type ErrorLevel int

const (
	// L1Recoverable 可恢复错误 - 自动重试
	L1Recoverable ErrorLevel = iota + 1
	// L2Intervention 需要人工处理输入
	L2Intervention
	// L3Fatal 致命错误 - 停止处理
	L3Fatal
)

func (l ErrorLevel) String() string {
	switch l {
	case L1Recoverable:
		return "L1_RECOVERABLE"
	case L2Intervention:
		return "L2_INTERVENTION"
	case L3Fatal:
		return "L3_FATAL"
	default:
		return "UNKNOWN"
	}
}

// 预定义错误类型
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrMalformedResponse = errors.New("malformed model response")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrCacheUnavailable  = errors.New("cache unavailable")
	ErrLLMUnavailable    = errors.New("LLM service unavailable")
	ErrOutputFailed      = errors.New("output generation failed")
	ErrNotFound          = errors.New("not found")
)

// Temporal ApplicationError 类型名，与工作流 RetryPolicy 的 NonRetryableErrorTypes 对应
const (
	TypeValidationError = "ValidationError"
	TypeFatalError      = "FatalError"
)

// ClassifiedError 分类后的错误
type ClassifiedError struct {
	Level      ErrorLevel
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	MaxRetries int
	Metadata   map[string]interface{}
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// TemporalType 返回用于 temporal.NewApplicationError 的类型名
func (e *ClassifiedError) TemporalType() string {
	switch {
	case e.Level == L3Fatal:
		return TypeFatalError
	case e.Level == L2Intervention && !e.Retryable:
		return TypeValidationError
	default:
		return e.Code
	}
}

// ClassifyError 对错误进行分类
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// 检查是否已经是 ClassifiedError
	var classifiedErr *ClassifiedError
	if errors.As(err, &classifiedErr) {
		return classifiedErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "TIMEOUT",
			Message:    "Operation timed out",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrRateLimited):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "RATE_LIMITED",
			Message:    "Rate limit exceeded",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 5,
			Metadata:   map[string]interface{}{"backoff": "exponential"},
		}

	case errors.Is(err, ErrCacheUnavailable):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "CACHE_UNAVAILABLE",
			Message:    "Cache service unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrValidationFailed):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "VALIDATION_FAILED",
			Message:   "Financial data validation failed",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrInvalidDocument):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "INVALID_DOCUMENT",
			Message:   "Input document rejected",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrMalformedResponse):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "MALFORMED_RESPONSE",
			Message:    "Model response could not be parsed",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 2,
		}

	case errors.Is(err, ErrExtractionFailed):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "EXTRACTION_FAILED",
			Message:    "Financial data extraction failed",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 2,
		}

	case errors.Is(err, ErrLLMUnavailable):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "LLM_UNAVAILABLE",
			Message:    "LLM service unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
			Metadata:   map[string]interface{}{"try_fallback": true},
		}

	case errors.Is(err, ErrOutputFailed):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "OUTPUT_FAILED",
			Message:    "Output generation failed",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 2,
		}

	case errors.Is(err, ErrConfigInvalid), errors.Is(err, ErrAuthFailed):
		return &ClassifiedError{
			Level:     L3Fatal,
			Code:      "FATAL_CONFIG",
			Message:   "Fatal configuration or authentication error",
			Cause:     err,
			Retryable: false,
		}

	default:
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "UNKNOWN",
			Message:    "Unknown error",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 1,
		}
	}
}

// NewClassifiedError 创建分类错误
func NewClassifiedError(level ErrorLevel, code, message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Level:   level,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithLevel 包装错误并指定级别
func WrapWithLevel(err error, level ErrorLevel, message string) *ClassifiedError {
	classified := ClassifyError(err)
	classified.Level = level
	if message != "" {
		classified.Message = message
	}
	return classified
}
