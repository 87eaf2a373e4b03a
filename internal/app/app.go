// Package app は設定の読み込みと依存関係のワイヤリングを行い、コマンドを実行する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/autosign/internal/config"
	"github.com/hitoshi/autosign/internal/handler"
	"github.com/hitoshi/autosign/internal/logger"
	"github.com/hitoshi/autosign/internal/metrics"
	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/notify"
	"github.com/hitoshi/autosign/internal/portal"
	"github.com/hitoshi/autosign/internal/scheduler"
	"github.com/hitoshi/autosign/internal/security"
	"github.com/hitoshi/autosign/internal/signer"
)

const (
	shutdownTimeout = 30 * time.Second
	defaultOpsAddr  = "127.0.0.1:9090"
)

// App は設定から組み立てた実行時の依存関係を保持する。
type App struct {
	config   *config.Config
	logger   *slog.Logger
	creds    model.Credentials
	registry *prometheus.Registry
	metrics  *metrics.Collector
	notifier notify.Notifier

	runner    *signer.Runner
	scheduler *scheduler.Scheduler
	checkJob  *scheduler.CheckJob

	// httpClient はポータル通信用のHTTPクライアントを生成する。
	httpClient func(timeout time.Duration) *http.Client
}

// Init はアプリケーションの初期化を行う。
// 設定ファイルと環境変数からConfigを読み込み、設定に従った構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, configPath string) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 設定を読み込む
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってロガーを再構成する
	l, err := logger.New(w, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	slog.SetDefault(l)

	return cfg, l, nil
}

// New は設定から全依存関係をワイヤリングしたAppを生成する。
func New(cfg *config.Config, l *slog.Logger, creds model.Credentials) (*App, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var notifier notify.Notifier = notify.NewLogNotifier(l)
	if cfg.Mail.Host != "" {
		notifier = notify.Multi{
			notifier,
			notify.NewMailNotifier(notify.MailConfig{
				Host:      cfg.Mail.Host,
				Port:      cfg.Mail.Port,
				User:      cfg.Mail.User,
				Password:  cfg.Mail.Password,
				From:      cfg.Mail.From,
				Recipient: cfg.Mail.Recipient,
			}),
		}
	}

	a := &App{
		config:     cfg,
		logger:     l,
		creds:      creds,
		registry:   registry,
		metrics:    collector,
		notifier:   notifier,
		httpClient: security.NewPortalHTTPClient,
	}

	a.runner = signer.NewRunner(
		a.newSession,
		notifier,
		collector,
		security.NewTextSanitizer(),
		l,
		signer.Config{
			ActionTimeout:   cfg.Schedule.ActionTimeout,
			SendWarningMail: cfg.Mail.SendWarningMail,
		},
	)

	a.scheduler = scheduler.NewScheduler(a.runner, notifier, collector, l, scheduler.Config{
		LookaheadDays: cfg.Schedule.LookaheadDays,
		Candidates:    cfg.Schedule.Candidates,
	})

	checkJob, err := scheduler.NewCheckJob(a.runner, cfg.Check.Schedules, l)
	if err != nil {
		return nil, err
	}
	a.checkJob = checkJob

	return a, nil
}

// newSession は打刻1回分の新しいポータルセッションを生成する。
func (a *App) newSession() (signer.Session, error) {
	endpoints := portal.Endpoints{
		PortalURL: a.config.Portal.BaseURL,
		LoginURL:  a.config.Portal.LoginURL,
	}
	return portal.New(a.creds, portal.Options{
		HTTPClient:      a.httpClient(a.config.Portal.Timeout),
		Timeout:         a.config.Portal.Timeout,
		Endpoints:       endpoints,
		UserAgent:       a.config.Portal.UserAgent,
		RequestInterval: a.config.Portal.RequestInterval,
		RedirectGuard:   security.NewRedirectGuard(endpoints.PortalURL, endpoints.LoginURL),
		Metrics:         a.metrics,
		Logger:          a.logger,
	})
}

// Run はアプリケーションのメインエントリーポイント。
// SIGINTまたはSIGTERMシグナルを受信するとコンテキストをキャンセルし、実行中の処理を終えて戻る。
func Run(ctx context.Context, w io.Writer, cmd Command, configPath string) error {
	// healthcheck は軽量コマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		addr := os.Getenv("AUTOSIGN_METRICS_ADDR")
		if addr == "" {
			addr = defaultOpsAddr
		}
		return runHealthcheck(ctx, addr)
	}

	cfg, l, err := Init(w, configPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	creds := model.Credentials{Username: cfg.User.Username, Password: cfg.User.Password}
	if creds.Password == "" {
		pw, err := promptPassword(os.Stderr, creds.Username)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		creds.Password = pw
	}

	a, err := New(cfg, l, creds)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l.Info("starting application", slog.String("command", string(cmd)))
	return a.Execute(ctx, cmd)
}

// Execute はコマンドに対応する処理を実行する。
// 打刻・確認の失敗は通知済みのためエラーとしては返さない。
func (a *App) Execute(ctx context.Context, cmd Command) error {
	if kind, ok := cmd.ActionKind(); ok {
		out := a.runner.SignOnce(ctx, kind)
		a.logger.Info("打刻コマンドが完了しました",
			slog.String("action", kind.String()),
			slog.String("outcome", out.Kind.String()),
		)
		return nil
	}

	switch cmd {
	case CommandCheck:
		out := a.runner.CheckOnce(ctx)
		a.logger.Info("確認コマンドが完了しました",
			slog.String("target", out.Action.String()),
			slog.String("outcome", out.Kind.String()),
		)
		return nil
	case CommandLoop:
		return a.runLoop(ctx)
	default:
		return fmt.Errorf("unsupported command: %q", cmd)
	}
}

// runLoop は打刻スケジューラ、確認ジョブ、運用エンドポイントを起動し、
// コンテキストがキャンセルされるまでブロックする。
func (a *App) runLoop(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Start(gctx)
	})
	g.Go(func() error {
		a.checkJob.Run(gctx)
		return nil
	})
	if a.config.Metrics.Addr != "" {
		g.Go(func() error {
			return a.serveOps(gctx, a.config.Metrics.Addr)
		})
	}

	err := g.Wait()
	a.logger.Info("scheduler stopped gracefully")
	return err
}

// serveOps は運用エンドポイントのHTTPサーバーを起動する。
// コンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func (a *App) serveOps(ctx context.Context, addr string) error {
	router := handler.NewRouter(&handler.RouterDeps{
		Schedule: a.scheduler,
		Metrics:  metrics.Handler(a.registry),
		Logger:   a.logger,
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("ops server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("ops server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown failed: %w", err)
	}
	a.logger.Info("ops server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用コマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, addr string) error {
	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
