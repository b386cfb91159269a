// Package apperr 定义了应用的结构化错误分类。
// 每种错误携带固定的 HTTP 状态码，由中间件统一渲染为 JSON 响应体，
// 保证任何错误都不会以裸异常的形式到达传输层。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 标识错误的类别，同时作为响应体中的 type 字段。
type Kind string

const (
	KindMissingCredential       Kind = "missing_credential"
	KindInvalidCredentialFormat Kind = "invalid_credential_format"
	KindAuthenticationFailed    Kind = "authentication_failed"
	KindOriginNotAllowed        Kind = "origin_not_allowed"
	KindRateLimitExceeded       Kind = "rate_limit_exceeded"
	KindValidationFailed        Kind = "validation_failed"
	KindConfigNotFound          Kind = "config_not_found"
	KindUpstreamTimeout         Kind = "upstream_timeout"
	KindUpstreamUnavailable     Kind = "upstream_unavailable"
	KindInternal                Kind = "internal_error"
)

// Error 是贯穿整个请求链路的结构化错误类型。
type Error struct {
	Kind    Kind
	Status  int
	Message string

	// Field 仅在参数校验失败时填充。
	Field string
	// Window 与 RetryAfter 仅在限流拒绝时填充。
	Window     string
	RetryAfter int

	cause error
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回底层错误，支持 errors.Is / errors.As。
func (e *Error) Unwrap() error {
	return e.cause
}

// MissingCredential 表示请求未携带任何 API 凭证。
func MissingCredential() *Error {
	return &Error{
		Kind:    KindMissingCredential,
		Status:  http.StatusUnauthorized,
		Message: "missing API key: pass it via the X-API-Key header or an Authorization: Bearer token",
	}
}

// InvalidCredentialFormat 表示凭证不符合固定的词法格式。
// 这种请求在任何存储查询之前就被拒绝。
func InvalidCredentialFormat() *Error {
	return &Error{
		Kind:    KindInvalidCredentialFormat,
		Status:  http.StatusUnauthorized,
		Message: "malformed API key",
	}
}

// AuthenticationFailed 表示凭证格式合法但未命中任何激活租户。
func AuthenticationFailed() *Error {
	return &Error{
		Kind:    KindAuthenticationFailed,
		Status:  http.StatusUnauthorized,
		Message: "invalid API key",
	}
}

// OriginNotAllowed 表示请求的 Origin 不在租户的来源白名单内。
func OriginNotAllowed(origin string) *Error {
	return &Error{
		Kind:    KindOriginNotAllowed,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("origin %q is not allowed for this tenant", origin),
	}
}

// RateLimitExceeded 表示固定窗口配额已用尽。
// window 取值 "hourly" 或 "daily"，retryAfter 为当前窗口的剩余秒数。
func RateLimitExceeded(window string, retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimitExceeded,
		Status:     http.StatusTooManyRequests,
		Message:    fmt.Sprintf("%s rate limit exceeded", window),
		Window:     window,
		RetryAfter: retryAfter,
	}
}

// Validation 表示请求体不符合约束。
func Validation(field, reason string) *Error {
	return &Error{
		Kind:    KindValidationFailed,
		Status:  http.StatusBadRequest,
		Message: reason,
		Field:   field,
	}
}

// ConfigNotFound 表示租户缺少挂件配置记录。
// 这是数据完整性问题而非调用方错误，因此归为 500。
func ConfigNotFound(tenantID string) *Error {
	return &Error{
		Kind:    KindConfigNotFound,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("widget config missing for tenant %s", tenantID),
	}
}

// UpstreamTimeout 表示某个外部调用超出了自身的时间预算。
// 该错误只用于内部记录，不会作为错误状态返回给聊天调用方。
func UpstreamTimeout(op string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamTimeout,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf("%s timed out", op),
		cause:   cause,
	}
}

// UpstreamUnavailable 表示外部依赖返回错误或不可达。
// 与 UpstreamTimeout 一样仅用于内部观测。
func UpstreamUnavailable(op string, cause error) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf("%s unavailable", op),
		cause:   cause,
	}
}

// Internal 包装一个未预期的错误。
func Internal(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		cause:   cause,
	}
}

// From 将任意 error 规整为 *Error，未知错误按 Internal 处理。
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
