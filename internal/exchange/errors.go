package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/adshao/go-binance/v2/common"

	"github.com/newplayman/futures-tradebot/internal/order"
)

// ErrorKind 失败分类，每种对应一个进程退出码。
type ErrorKind string

const (
	KindValidation ErrorKind = "ValidationError"
	KindSigning    ErrorKind = "SigningError"
	KindTransport  ErrorKind = "TransportError"
	// 下单/撤单超时：请求可能已被交易所接受，也可能没有
	KindAmbiguous  ErrorKind = "AmbiguousOutcome"
	KindRejection  ErrorKind = "ExchangeRejection"
	KindServer     ErrorKind = "ServerError"
	KindUnexpected ErrorKind = "UnexpectedResponse"
)

// ExitCode 命令行退出码
func (k ErrorKind) ExitCode() int {
	switch k {
	case KindValidation:
		return 2
	case KindSigning:
		return 3
	case KindTransport:
		return 4
	case KindAmbiguous:
		return 5
	case KindRejection:
		return 6
	case KindServer:
		return 7
	case KindUnexpected:
		return 8
	default:
		return 1
	}
}

// Reason 交易所拒绝的细分原因
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonAuth          Reason = "auth_error"
	ReasonRateLimited   Reason = "rate_limit"
	ReasonBadParameters Reason = "bad_parameters"
	ReasonRejectedOrder Reason = "rejected_order"
	ReasonClient        Reason = "client_error"
	ReasonTimeout       Reason = "timeout"
)

// OperationError 组件边界上统一的失败结构，不含任何凭证信息。
type OperationError struct {
	Op           Operation
	Kind         ErrorKind
	Reason       Reason
	HTTPStatus   *int
	ExchangeCode *int64
	Message      string
	Violations   []order.Violation
	Err          error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Reason != ReasonNone {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.HTTPStatus != nil {
		fmt.Fprintf(&b, " http=%d", *e.HTTPStatus)
	}
	if e.ExchangeCode != nil {
		fmt.Fprintf(&b, " code=%d", *e.ExchangeCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *OperationError) Unwrap() error { return e.Err }

// AsOperationError 把任意 error 归一成 *OperationError；
// 校验错误转成 KindValidation，其余未知错误按 UnexpectedResponse 处理。
func AsOperationError(err error) *OperationError {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr
	}
	var verr *order.ValidationError
	if errors.As(err, &verr) {
		return &OperationError{
			Kind:       KindValidation,
			Message:    verr.Error(),
			Violations: verr.Violations,
			Err:        err,
		}
	}
	return &OperationError{Kind: KindUnexpected, Message: err.Error(), Err: err}
}

func invalidf(op Operation, format string, args ...any) *OperationError {
	return &OperationError{Op: op, Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// classifyTransport 网络层失败：连接/DNS 错误为 TransportError，
// 可变更操作的超时为 AmbiguousOutcome。
func classifyTransport(op Operation, method, path string, err error) *OperationError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	canceled := errors.Is(err, context.Canceled)

	cause := transportCause(err)
	detail := fmt.Sprintf("%s %s: %v", method, path, cause)
	e := &OperationError{Op: op, Kind: KindTransport, Message: detail, Err: cause}
	switch {
	case timeout && op.Mutating():
		e.Kind = KindAmbiguous
		e.Reason = ReasonTimeout
		e.Message = "request timed out, the order may or may not have been accepted; check open orders or order status: " + detail
	case canceled && op.Mutating():
		e.Kind = KindAmbiguous
		e.Message = "request canceled in flight, the outcome is unknown: " + detail
	case timeout:
		e.Reason = ReasonTimeout
		e.Message = "request timed out: " + detail
	}
	return e
}

// transportCause 去掉 *url.Error 外壳，它的文本带完整 URL（含 signature）。
func transportCause(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

// classifyResponse 根据状态码和 {code,msg} 载荷分类；成功返回 nil。
func classifyResponse(op Operation, status int, body []byte) *OperationError {
	apiErr, hasPayload := parseAPIError(body)

	if status >= 200 && status < 300 {
		// 2xx 但带负数 code，视为拒绝
		if hasPayload && apiErr.Code < 0 {
			return rejection(op, status, apiErr)
		}
		return nil
	}

	switch {
	case status >= 500:
		e := &OperationError{Op: op, Kind: KindServer, HTTPStatus: intPtr(status), Message: http.StatusText(status)}
		if hasPayload {
			e.ExchangeCode = int64Ptr(apiErr.Code)
			if apiErr.Message != "" {
				e.Message = apiErr.Message
			}
		} else if s := trimBody(body); s != "" {
			e.Message = s
		}
		return e
	case status >= 400:
		if hasPayload {
			return rejection(op, status, apiErr)
		}
		msg := trimBody(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &OperationError{Op: op, Kind: KindRejection, Reason: rejectionReason(status, 0), HTTPStatus: intPtr(status), Message: msg}
	default:
		return &OperationError{Op: op, Kind: KindUnexpected, HTTPStatus: intPtr(status), Message: fmt.Sprintf("unexpected status %d: %s", status, trimBody(body))}
	}
}

func rejection(op Operation, status int, apiErr *common.APIError) *OperationError {
	return &OperationError{
		Op:           op,
		Kind:         KindRejection,
		Reason:       rejectionReason(status, apiErr.Code),
		HTTPStatus:   intPtr(status),
		ExchangeCode: int64Ptr(apiErr.Code),
		Message:      apiErr.Message,
	}
}

// rejectionReason 参考 Binance 错误码分段：
// -1003 限流；-1021/-1022/-2014/-2015 时间戳或签名/key 问题；
// -11xx、-4xxx 参数错误；-2xxx、-5xxx 订单被拒。
func rejectionReason(status int, code int64) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return ReasonRateLimited
	}
	switch {
	case code == -1003 || code == -1015:
		return ReasonRateLimited
	case code == -1002 || code == -1021 || code == -1022 || code == -2014 || code == -2015:
		return ReasonAuth
	case code <= -1100 && code >= -1199, code <= -4000 && code >= -4999:
		return ReasonBadParameters
	case code <= -2000 && code >= -2999, code <= -5000 && code >= -5999:
		return ReasonRejectedOrder
	}
	return ReasonClient
}

// parseAPIError 只认 JSON 对象且带 code 的载荷。
func parseAPIError(body []byte) (*common.APIError, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"code"`) {
		return nil, false
	}
	var apiErr common.APIError
	if err := json.Unmarshal([]byte(trimmed), &apiErr); err != nil {
		return nil, false
	}
	return &apiErr, true
}

const maxBodyLen = 256

// trimBody 截断过长的响应体，保证不切开多字节字符
func trimBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyLen {
		cut := maxBodyLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
