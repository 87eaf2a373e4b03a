// Package signer は1回分の打刻・確認アクションをログインから通知まで実行する。
// 各実行は専用のセッションを持ち、失敗は1件の通知にまとめてスケジューラには伝播させない。
package signer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/autosign/internal/metrics"
	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/notify"
	"github.com/hitoshi/autosign/internal/timetable"
)

const (
	// DefaultTitlePrefix は通知タイトルの接頭辞。
	DefaultTitlePrefix = "[NTU Auto Signing]"

	defaultActionTimeout = 2 * time.Minute
	notifyTimeout        = 30 * time.Second
)

// Session はポータルとの1回分の認証セッション。
type Session interface {
	Login(ctx context.Context) error
	VerifyLogin(ctx context.Context) (bool, error)
	Sign(ctx context.Context, kind model.ActionKind) (*model.SignResult, error)
	CheckRecords(ctx context.Context) ([]model.AttendanceRecord, error)
	Close() error
}

// SessionFactory は実行ごとに新しいSessionを生成する。
type SessionFactory func() (Session, error)

// TextSanitizer はリモート由来のテキストを通知本文向けに整形する。
type TextSanitizer interface {
	Sanitize(text string) string
}

// Config はRunnerの動作設定。
type Config struct {
	// ActionTimeout は1回の実行（ログインから打刻まで）の上限時間。
	ActionTimeout time.Duration
	// TitlePrefix は通知タイトルの接頭辞。
	TitlePrefix string
	// SendWarningMail がfalseの場合、確認アクションの未打刻警告を通知しない。
	SendWarningMail bool
}

// Runner はAction Runner。
type Runner struct {
	newSession SessionFactory
	notifier   notify.Notifier
	metrics    metrics.Recorder
	sanitizer  TextSanitizer
	logger     *slog.Logger
	config     Config
	now        func() time.Time
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// metricsとsanitizerはnilでもよい。
func NewRunner(
	newSession SessionFactory,
	notifier notify.Notifier,
	recorder metrics.Recorder,
	sanitizer TextSanitizer,
	logger *slog.Logger,
	config Config,
) *Runner {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = defaultActionTimeout
	}
	if config.TitlePrefix == "" {
		config.TitlePrefix = DefaultTitlePrefix
	}
	return &Runner{
		newSession: newSession,
		notifier:   notifier,
		metrics:    recorder,
		sanitizer:  sanitizer,
		logger:     logger,
		config:     config,
		now:        timetable.Now,
	}
}

// SignOnce はログイン→ログイン確認→打刻→結果分類→通知を1回実行する。
// どの段階で失敗しても1件の失敗通知にまとめ、結果をOutcomeとして返す。
func (r *Runner) SignOnce(ctx context.Context, kind model.ActionKind) (out model.Outcome) {
	start := time.Now()
	logger := r.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("action", kind.String()),
	)
	logger.Info("打刻を開始します")

	defer func() {
		if p := recover(); p != nil {
			logger.Error("打刻中にpanicが発生しました", slog.Any("panic", p))
			out = model.OutcomeFromError(kind, fmt.Errorf("panic: %v", p))
			r.reportRecovered(ctx, logger, out)
		}
		r.metrics.RecordAction(kind.String(), out.Kind.String(), time.Since(start))
	}()

	actionCtx, cancel := context.WithTimeout(ctx, r.config.ActionTimeout)
	defer cancel()

	result, err := r.sign(actionCtx, logger, kind)
	if err != nil {
		out = model.OutcomeFromError(kind, err)
	} else {
		out = model.Outcome{Kind: model.OutcomeSuccess, Action: kind, Result: result}
	}

	r.report(ctx, logger, out)
	return out
}

func (r *Runner) sign(ctx context.Context, logger *slog.Logger, kind model.ActionKind) (*model.SignResult, error) {
	session, err := r.openVerifiedSession(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	result, err := session.Sign(ctx, kind)
	if err != nil {
		return nil, err
	}

	logger.Info("打刻APIの応答を受信しました",
		slog.Int("status", result.Status),
		slog.String("message", result.Message),
	)

	if !result.Succeeded() {
		return nil, model.NewDomainError(result)
	}
	return result, nil
}

// openVerifiedSession は新しいセッションでログインし、ログイン状態を確認する。
// 失敗した場合はpanicを含めてセッションを閉じてから返す。
func (r *Runner) openVerifiedSession(ctx context.Context, logger *slog.Logger) (Session, error) {
	session, err := r.newSession()
	if err != nil {
		return nil, model.NewTransportError("session", err)
	}

	verified := false
	defer func() {
		if !verified {
			session.Close()
		}
	}()

	if err := session.Login(ctx); err != nil {
		return nil, err
	}
	logger.Debug("ログインチェーンが完了しました")

	ok, err := session.VerifyLogin(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewAuthError()
	}

	verified = true
	return session, nil
}

// report は実行結果を通知する。通知の失敗はログに記録し、呼び出し元には返さない。
func (r *Runner) report(ctx context.Context, logger *slog.Logger, out model.Outcome) {
	var title, body string
	if out.OK() {
		logger.Info("打刻に成功しました", slog.String("result", out.Result.String()))
		title = fmt.Sprintf("%s Sign %s success", r.config.TitlePrefix, out.Action)
		body = out.Result.String()
	} else {
		logger.Error("打刻に失敗しました",
			slog.String("outcome", out.Kind.String()),
			slog.String("error", errorString(out.Err)),
		)
		title, body = r.formatFailure(out)
	}
	r.send(ctx, logger, title, body)
}

// reportRecovered はpanic捕捉後の通知を行う。
// 通知処理自体がpanicしてもプロセスを停止させない。
func (r *Runner) reportRecovered(ctx context.Context, logger *slog.Logger, out model.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.RecordNotifyFailure()
			logger.Error("失敗通知の送信中にpanicが発生しました", slog.Any("panic", p))
		}
	}()
	r.report(ctx, logger, out)
}

func (r *Runner) send(ctx context.Context, logger *slog.Logger, title, body string) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := r.notifier.Notify(nctx, title, body); err != nil {
		r.metrics.RecordNotifyFailure()
		logger.Error("通知の送信に失敗しました",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
