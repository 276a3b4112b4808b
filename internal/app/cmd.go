package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバー（ページ・ライブ更新・書き込みAPI）として起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除ワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

// commands はサブコマンドと説明の一覧。表示順を保つためスライスで持つ。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "HTTPサーバーを起動する（デフォルト）"},
	{CommandWorker, "期限切れセッションを定期的に削除する"},
	{CommandMigrate, "未適用のマイグレーションを適用する"},
	{CommandHealthcheck, "/health に問い合わせて終了コードで結果を返す"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	for _, c := range commands {
		if string(c.cmd) == args[0] {
			return c.cmd
		}
	}
	return CommandServe
}

// writeUsage はサブコマンドの一覧をwに書き込む。
func writeUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: semesterswap [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.desc)
	}
}
