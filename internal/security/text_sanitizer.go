// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はFitbit APIから取得した表示用文字列（表示名、デバイス名など）を
// ダッシュボードに渡す前に無害化する。ダッシュボードはこれらをHTMLとして埋め込むため、
// bluemondayのStrictPolicyで全タグを除去し、特殊文字をエスケープする。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は上流由来の文字列を無害化する。
type TextSanitizer interface {
	// Text は全てのHTMLタグを除去し、特殊文字をエスケープした文字列を返す。
	Text(s string) string
	// ImageURL はhttpsの絶対URLのみを返す。それ以外は空文字列を返す。
	ImageURL(s string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text は全てのHTMLタグを除去する。
func (s *textSanitizer) Text(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// ImageURL はアバター画像URLを検証する。
func (s *textSanitizer) ImageURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}
