package quill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned when a provider answers without any choice
// or candidate.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// ConfigurationError reports a call that cannot be attempted, such as a
// missing credential or endpoint. It is never retried.
type ConfigurationError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigurationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("quill: %s: %s", e.Provider, e.Message)
	}
	return "quill: " + e.Message
}

func configErr(provider, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NetworkError reports a connection-level failure: the request never got an
// HTTP response.
type NetworkError struct {
	Provider string
	URL      string
	Attempts int
	Cause    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("quill: %s: cannot reach %s after %d attempt(s): %v", e.Provider, e.URL, e.Attempts, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// UpstreamError reports a non-2xx answer, or an error payload, from the
// backend or a provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	// Body is a truncated copy of the response body.
	Body     string
	Attempts int
	Cause    error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("quill: %s: http %d", e.Provider, e.StatusCode)
	if text := http.StatusText(e.StatusCode); text != "" {
		msg += " " + text
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.ServerSide() {
		msg += " (the service failed internally, try again later)"
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// ServerSide reports whether the status is in the 5xx range.
func (e *UpstreamError) ServerSide() bool {
	return e.StatusCode >= 500 && e.StatusCode <= 599
}

// retryable reports whether err belongs to the classes the backend retry
// loop re-attempts.
func retryable(err error) bool {
	var ne *NetworkError
	var ue *UpstreamError
	return errors.As(err, &ne) || errors.As(err, &ue)
}

// Locale selects the language of Describe messages.
type Locale int

const (
	LocaleEnglish Locale = iota
	LocaleChinese
)

// Describe turns any error returned by this package into a short
// human-readable message suitable for display. It never returns a raw
// error chain.
func Describe(err error, loc Locale) string {
	if err == nil {
		return ""
	}
	zh := loc == LocaleChinese

	var ce *ConfigurationError
	var ne *NetworkError
	var ue *UpstreamError
	switch {
	case errors.Is(err, context.Canceled):
		if zh {
			return "请求已取消。"
		}
		return "The request was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		if zh {
			return "请求超时，请稍后重试。"
		}
		return "The request timed out. Please try again."
	case errors.As(err, &ce):
		if zh {
			return fmt.Sprintf("配置错误（%s）：%s。请检查 API 密钥和接口地址。", ce.Provider, ce.Message)
		}
		return fmt.Sprintf("Configuration problem (%s): %s. Check the API key and endpoint.", ce.Provider, ce.Message)
	case errors.As(err, &ne):
		if zh {
			return "无法连接到服务，请检查网络连接或确认后端服务已启动。"
		}
		return "Cannot connect to the service. Check your network connection and that the backend is running."
	case errors.As(err, &ue):
		if ue.ServerSide() {
			if zh {
				return fmt.Sprintf("服务返回错误（状态码 %d），服务器内部出现问题，请稍后重试。", ue.StatusCode)
			}
			return fmt.Sprintf("The service returned an error (status %d). The server had an internal problem, please try again later.", ue.StatusCode)
		}
		if zh {
			return fmt.Sprintf("服务返回错误（状态码 %d）。", ue.StatusCode)
		}
		return fmt.Sprintf("The service returned an error (status %d).", ue.StatusCode)
	case errors.Is(err, ErrEmptyResponse):
		if zh {
			return "模型没有返回任何内容，请重试。"
		}
		return "The model returned an empty answer. Please try again."
	case errors.Is(err, ErrIssueFormat):
		if zh {
			return "模型返回的结果格式不正确。"
		}
		return "The model answer was not in the expected format."
	default:
		if zh {
			return "发生未知错误，请重试。"
		}
		return "Something went wrong. Please try again."
	}
}
