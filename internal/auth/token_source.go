package auth

import (
	"net/http"
	"strings"
)

// TokenSource はリクエストに直接付与されたアクセストークンを取り出す。
// セッションに依存しないホスティング環境向けの代替経路。
type TokenSource interface {
	// Name はログとメトリクスに使う識別子。
	Name() string
	// Token はトークンが見つかった場合にtrueを返す。
	Token(r *http.Request) (string, bool)
}

// BearerHeaderSource は Authorization: Bearer ヘッダーからトークンを取り出す。
type BearerHeaderSource struct{}

// Name はTokenSourceを実装する。
func (BearerHeaderSource) Name() string { return "bearer_header" }

// Token はTokenSourceを実装する。
func (BearerHeaderSource) Token(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// QueryParamSource はURLパラメータからトークンを取り出す。
// URLはアクセスログやRefererに残るため、明示的に有効化した場合のみ使う。
type QueryParamSource struct {
	Param string
}

// Name はTokenSourceを実装する。
func (s QueryParamSource) Name() string { return "query_param" }

// Token はTokenSourceを実装する。
func (s QueryParamSource) Token(r *http.Request) (string, bool) {
	param := s.Param
	if param == "" {
		param = "access_token"
	}
	token := r.URL.Query().Get(param)
	return token, token != ""
}

// DefaultTokenSources はGateが参照するトークンソースを優先順に返す。
func DefaultTokenSources(allowQuery bool) []TokenSource {
	sources := []TokenSource{BearerHeaderSource{}}
	if allowQuery {
		sources = append(sources, QueryParamSource{Param: "access_token"})
	}
	return sources
}
