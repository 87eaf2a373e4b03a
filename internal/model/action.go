// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"log/slog"
	"time"
)

// ActionKind は打刻アクションの種類を表す。
type ActionKind int

const (
	// SignIn は出勤打刻。
	SignIn ActionKind = iota + 1
	// SignOut は退勤打刻。
	SignOut
)

// String はCLIやログで使用するアクション名を返す。
func (k ActionKind) String() string {
	switch k {
	case SignIn:
		return "signin"
	case SignOut:
		return "signout"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Label は通知本文向けの表記を返す（"Sign in" / "Sign out"）。
func (k ActionKind) Label() string {
	switch k {
	case SignIn:
		return "Sign in"
	case SignOut:
		return "Sign out"
	default:
		return k.String()
	}
}

// Code はポータルの打刻APIに送るtパラメータの値を返す。
func (k ActionKind) Code() int {
	return int(k)
}

// ParseActionKind は文字列からActionKindを解析する。
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "signin":
		return SignIn, nil
	case "signout":
		return SignOut, nil
	default:
		return 0, fmt.Errorf("unknown action: %q", s)
	}
}

// Credentials はポータルのログイン認証情報。
// 起動時に1回読み込み、以降は変更しない。ログには出力しない。
type Credentials struct {
	Username string
	Password string
}

// String はパスワードを伏せた表現を返す。
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %s, Password: ***}", maskUsername(c.Username))
}

// LogValue はslog出力時に認証情報を伏せる。
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", maskUsername(c.Username)),
		slog.String("password", "***"),
	)
}

// maskUsername は先頭2文字（ルーン単位）だけを残して伏せる。
func maskUsername(u string) string {
	r := []rune(u)
	if len(r) <= 2 {
		return "***"
	}
	return string(r[:2]) + "***"
}

// ScheduledEvent はスケジューラが計画した1回分の打刻予定。
// 計画時に生成され、発火時に1回だけ消費される。
type ScheduledEvent struct {
	At   time.Time
	Kind ActionKind
}
