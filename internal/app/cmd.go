package app

import (
	"fmt"

	"github.com/hitoshi/autosign/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandSignIn は出勤打刻を1回実行することを示す。
	CommandSignIn Command = "signin"
	// CommandSignOut は退勤打刻を1回実行することを示す。
	CommandSignOut Command = "signout"
	// CommandLoop は週次スケジューラを常駐させることを示す。
	CommandLoop Command = "loop"
	// CommandCheck は当日の打刻記録を確認することを示す。
	CommandCheck Command = "check"
	// CommandHealthcheck は運用エンドポイントのヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Commands はサポートするすべてのコマンド。
var Commands = []Command{CommandSignIn, CommandSignOut, CommandLoop, CommandCheck, CommandHealthcheck}

// ParseCommand はコマンドライン引数からコマンドを解析する。
// 引数が空の場合はCommandLoopを返す。サポート外のコマンドはエラーとする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandLoop, nil
	}

	for _, c := range Commands {
		if string(c) == args[0] {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (expected one of %v)", args[0], Commands)
}

// ActionKind は打刻コマンドに対応するアクション種別を返す。
func (c Command) ActionKind() (model.ActionKind, bool) {
	switch c {
	case CommandSignIn:
		return model.SignIn, true
	case CommandSignOut:
		return model.SignOut, true
	default:
		return 0, false
	}
}
