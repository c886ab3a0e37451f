package app

import (
	"fmt"
	"io"

	"github.com/yukke-bit/fitbit-data-connector/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はOAuthフローとダッシュボードAPIのサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除を行う。PostgreSQLセッションストア専用。
	CommandWorker Command = "worker"
	// CommandMigrate はsessionsテーブルのマイグレーションを適用する。DATABASE_URLが必要。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

// commands は表示順のサブコマンド一覧と説明。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "OAuthフローとダッシュボードAPIを提供する（デフォルト）"},
	{CommandWorker, "期限切れセッションを定期削除する（SESSION_STORE=postgres のみ）"},
	{CommandMigrate, "sessionsテーブルのマイグレーションを適用する（DATABASE_URL が必要）"},
	{CommandHealthcheck, "起動中のサーバーの /health を確認する"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "help", "-h", "--help":
		return CommandHelp
	default:
		return CommandServe
	}
}

// SupportsStore はコマンドが指定のセッションストアで実行できるかを返す。
// メモリストアはプロセス内、Redisはキーの TTL で失効するため、workerは不要。
func (c Command) SupportsStore(store string) bool {
	if c == CommandWorker {
		return store == config.SessionStorePostgres
	}
	return true
}

// PrintUsage はサブコマンドの一覧を書き出す。
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: fitbit-connector [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.desc)
	}
}
