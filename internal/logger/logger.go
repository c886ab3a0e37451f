// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys はログに値を出力しない属性キー。
var redactedKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"client_secret": {},
	"authorization": {},
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// levelがnilの場合はInfoレベルで出力する。
func Setup(w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 返されたLevelVarで設定読み込み後にログレベルを変更できる。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) *slog.LevelVar {
	if w == nil {
		w = os.Stdout
	}
	level := new(slog.LevelVar)
	slog.SetDefault(Setup(w, level))
	return level
}

// ParseLevel はLOG_LEVEL形式の文字列をslog.Levelに変換する。
// 不明な値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
