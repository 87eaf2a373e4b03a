// Package notify は打刻結果をオペレーターに届ける通知手段を提供する。
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier はタイトルと本文からなるメッセージを配信する。
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// LogNotifier は通知内容を構造化ログに出力する。
// メール設定がない環境や、メール送信と併用する記録用に使う。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify は通知内容をINFOレベルで出力する。
func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Info("notification",
		slog.String("title", title),
		slog.String("body", body),
	)
	return nil
}

// Multi は複数のNotifierに同じメッセージを配信する。
// 一部が失敗しても残りへの配信は継続し、失敗をまとめて返す。
type Multi []Notifier

// Notify はすべてのNotifierに配信する。
func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
