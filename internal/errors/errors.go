// Package errors 定义 RecruitChain 的统一错误码。错误码决定默认的严重程度、
// 是否可重试以及是否需要告警，调用方通过 CodeOf 或 errors.Is 判断失败类别。
package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sort"
)

// Code 表示失败类别。
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConnectivity          Code = "CONNECTIVITY_FAILURE"
	CodeNoAccounts            Code = "NO_ACCOUNTS"
	CodeBinding               Code = "BINDING_FAILURE"
	CodeContractNotDeployed   Code = "CONTRACT_NOT_DEPLOYED"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
)

// Severity 用于日志级别和告警分级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type class struct {
	message   string
	severity  Severity
	retryable bool
	alert     bool
}

var classes = map[Code]class{
	CodeUnknown:               {"unknown error", SeverityCritical, false, true},
	CodeInvalidArgument:       {"invalid argument", SeverityInfo, false, false},
	CodeNotFound:              {"resource not found", SeverityInfo, false, false},
	CodeConnectivity:          {"node connectivity failure", SeverityWarning, true, true},
	CodeNoAccounts:            {"no accounts available", SeverityWarning, false, true},
	CodeBinding:               {"contract binding failure", SeverityCritical, false, true},
	CodeContractNotDeployed:   {"contract not deployed", SeverityCritical, false, true},
	CodeInitializationFailure: {"session not initialized", SeverityWarning, true, false},
	CodeStorageFailure:        {"storage failure", SeverityCritical, true, true},
	CodeQueueFailure:          {"queue failure", SeverityCritical, true, true},
}

// classOf 对未登记的错误码回退到 UNKNOWN。
func classOf(code Code) class {
	if c, ok := classes[code]; ok {
		return c
	}
	return classes[CodeUnknown]
}

// Error 携带错误码、描述、底层原因和附加字段。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 在构造时修改错误。
type Option func(*Error)

// WithMetadata 附加一个键值对，日志中以 metadata 分组输出。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 1)
		}
		e.metadata[key] = value
	}
}

// New 创建错误。message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = classOf(code).message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 创建错误并保留 cause，cause 可通过 errors.Unwrap 取回。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码匹配，因此 New(code, "") 可以作为哨兵错误使用。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含 cause 的描述。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加字段的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

func (e *Error) Retryable() bool { return e != nil && classOf(e.code).retryable }
func (e *Error) ShouldAlert() bool { return e != nil && classOf(e.code).alert }
func (e *Error) Severity() Severity { return classOf(e.Code()).severity }

// LogValue 以结构化分组输出错误。
func (e *Error) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("")
	}
	attrs := []slog.Attr{
		slog.String("code", string(e.code)),
		slog.String("message", e.message),
		slog.String("severity", string(e.Severity())),
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	if len(e.metadata) > 0 {
		keys := make([]string, 0, len(e.metadata))
		for k := range e.metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		meta := make([]any, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, slog.String(k, e.metadata[k]))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}
	return slog.GroupValue(attrs...)
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链中的错误码，普通错误视为 UNKNOWN，nil 返回空串。
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	e, ok := From(err)
	return ok && e.Retryable()
}

// ShouldAlert 判断任意 error 是否需要告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	return ok && e.ShouldAlert()
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return classOf(CodeUnknown).severity
}
