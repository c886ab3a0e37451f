// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrorKind はドメインエラーの種別。値はそのままAPIのエラーコードとして使う。
type ErrorKind string

// 定義済みエラー種別
const (
	KindConfiguration     ErrorKind = "CONFIGURATION_ERROR"
	KindMissingCode       ErrorKind = "MISSING_CODE"
	KindAuthExchange      ErrorKind = "AUTH_EXCHANGE_FAILED"
	KindRefresh           ErrorKind = "REFRESH_FAILED"
	KindInvalidToken      ErrorKind = "INVALID_TOKEN"
	KindRateLimit         ErrorKind = "RATE_LIMITED"
	KindInsufficientScope ErrorKind = "INSUFFICIENT_SCOPE"
	KindUpstream          ErrorKind = "UPSTREAM_ERROR"
	KindUnauthenticated   ErrorKind = "UNAUTHENTICATED"
	KindInvalidParameter  ErrorKind = "INVALID_PARAMETER"
)

// Error はOAuthフローとFitbit API呼び出しで発生するドメインエラー。
// Statusとbodyは上流のHTTPレスポンスがある場合のみ設定される。
type Error struct {
	Kind       ErrorKind
	Message    string
	Status     int           // 上流のHTTPステータス
	Body       string        // 上流のレスポンスボディ（生）
	RetryAfter time.Duration // 429の場合のみ
	Timeout    bool
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is は種別が一致する場合にtrueを返す。
// errors.Is(err, model.ErrInvalidToken) の形で判定する。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 種別判定用のセンチネル
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrMissingCode       = &Error{Kind: KindMissingCode}
	ErrAuthExchange      = &Error{Kind: KindAuthExchange}
	ErrRefresh           = &Error{Kind: KindRefresh}
	ErrInvalidToken      = &Error{Kind: KindInvalidToken}
	ErrRateLimit         = &Error{Kind: KindRateLimit}
	ErrInsufficientScope = &Error{Kind: KindInsufficientScope}
	ErrUpstream          = &Error{Kind: KindUpstream}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrInvalidParameter  = &Error{Kind: KindInvalidParameter}
)

// NewError はドメインエラーを生成する。
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// NewUpstreamStatusError は上流のステータスとボディを保持するエラーを生成する。
func NewUpstreamStatusError(kind ErrorKind, status int, body string) *Error {
	return &Error{
		Kind:    kind,
		Message: "upstream returned non-2xx",
		Status:  status,
		Body:    body,
	}
}

// KindOf はエラーチェーンからドメインエラーの種別を取り出す。
// ドメインエラーでない場合は空文字を返す。
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewUnauthorizedAPIError は未認証エラーを生成する。
func NewUnauthorizedAPIError() *APIError {
	return &APIError{
		Code:     string(KindUnauthenticated),
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Fitbitアカウントで再度ログインしてください。",
	}
}

// ToAPIError はドメインエラーをAPIErrorに変換する。
// 上流のボディなど内部情報はメッセージに含めない。
func ToAPIError(err error) *APIError {
	var e *Error
	if !errors.As(err, &e) {
		return NewInternalAPIError()
	}

	switch e.Kind {
	case KindConfiguration:
		return &APIError{
			Code:     string(e.Kind),
			Message:  "Fitbit APIの設定が不足しています。",
			Category: "system",
			Action:   "クライアントID・シークレット・リダイレクトURLを設定してください。",
		}
	case KindUnauthenticated, KindRefresh:
		return &APIError{
			Code:     string(e.Kind),
			Message:  "認証の有効期限が切れました。",
			Category: "auth",
			Action:   "Fitbitアカウントで再度ログインしてください。",
		}
	case KindInvalidToken:
		return &APIError{
			Code:     string(e.Kind),
			Message:  "アクセストークンが無効です。",
			Category: "auth",
			Action:   "Fitbitアカウントで再度ログインしてください。",
		}
	case KindRateLimit:
		return &APIError{
			Code:     string(e.Kind),
			Message:  "Fitbit APIのリクエスト上限に達しました。",
			Category: "upstream",
			Action:   "しばらく時間をおいてから再度お試しください。",
		}
	case KindInsufficientScope:
		return &APIError{
			Code:     string(e.Kind),
			Message:  "このデータへのアクセスが許可されていません。",
			Category: "auth",
			Action:   "必要なスコープを許可して再度ログインしてください。",
		}
	case KindInvalidParameter:
		return &APIError{
			Code:     string(e.Kind),
			Message:  fmt.Sprintf("無効なパラメータです: %s", e.Message),
			Category: "validation",
			Action:   "パラメータの値を確認してください。",
		}
	case KindUpstream, KindAuthExchange:
		return &APIError{
			Code:     string(e.Kind),
			Message:  "Fitbit APIからデータを取得できませんでした。",
			Category: "upstream",
			Action:   "しばらく待ってから再度お試しください。",
		}
	default:
		return NewInternalAPIError()
	}
}

// NewInternalAPIError は内部エラーを生成する。
func NewInternalAPIError() *APIError {
	return &APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
