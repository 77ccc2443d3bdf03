package record

import (
	"fmt"
	"strings"

	apperrors "github.com/autofund-ai/autofund/pkg/errors"
)

// Violation 单个字段的校验失败
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError 记录构建失败，包含全部违规项而不仅是第一个
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("financial record validation failed: %s", strings.Join(parts, "; "))
}

// Unwrap 使 errors.Is(err, apperrors.ErrValidationFailed) 成立
func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidationFailed
}

// Fields 返回违规字段名，按出现顺序
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Field)
	}
	return out
}

// Has 判断某字段是否违规
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}
