package util

import (
	"errors"
	"fmt"
)

// 错误种类，控制器据此映射 HTTP 状态码
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUpstream         = errors.New("upstream failure")
)

var (
	ErrTestNotFound     = fmt.Errorf("%w: test not found", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("%w: question not found", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("%w: attempt not found", ErrNotFound)
	ErrAnswerNotFound   = fmt.Errorf("%w: answer not found", ErrNotFound)
	ErrNoQuestions      = fmt.Errorf("%w: test has no questions", ErrNotFound)

	ErrAttemptCompleted  = fmt.Errorf("%w: attempt already completed", ErrInvalidState)
	ErrAttemptInProgress = fmt.Errorf("%w: attempt is still in progress", ErrInvalidState)
	ErrQuestionLocked    = fmt.Errorf("%w: question already answered and can no longer be changed", ErrInvalidState)
	ErrTestNotReady      = fmt.Errorf("%w: test not published or has no questions", ErrInvalidState)

	ErrStaleAnswer = fmt.Errorf("%w: answer was changed by another request", ErrConflict)
)

// Validationf 构造可以直接返回给客户端的校验错误
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Upstreamf 构造外部依赖（LLM、存储）失败的错误
func Upstreamf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}
