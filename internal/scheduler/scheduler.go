package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/autosign/internal/metrics"
	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/notify"
	"github.com/hitoshi/autosign/internal/timetable"
)

const (
	summaryTitleSuffix = "Scheduled Sign-in/out"
	summaryTimeLayout  = "2006-01-02 15:04:05"
	notifyTimeout      = 30 * time.Second
)

// ActionRunner は1回分の打刻を実行するインターフェース。
type ActionRunner interface {
	SignOnce(ctx context.Context, kind model.ActionKind) model.Outcome
}

// WaitFunc はuntilまで待機する。ctxがキャンセルされた場合はctx.Err()を返す。
type WaitFunc func(ctx context.Context, until time.Time) error

// Config はSchedulerの動作設定。
type Config struct {
	// LookaheadDays は1回の計画で対象とする暦日数。
	LookaheadDays int
	// Candidates は1日あたり・アクションあたりの候補数。
	Candidates int
	// TitlePrefix はサマリー通知タイトルの接頭辞。
	TitlePrefix string
}

// Cycle は1回の計画サイクルの結果。
type Cycle struct {
	Events   []model.ScheduledEvent
	Outcomes []model.Outcome
}

// Scheduler は打刻計画の立案と実行を行う。
type Scheduler struct {
	runner   ActionRunner
	notifier notify.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	config   Config

	now  func() time.Time
	wait WaitFunc

	mu      sync.Mutex
	pending []model.ScheduledEvent
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// LookaheadDaysとCandidatesが0以下の場合はデフォルト値を使用する。
func NewScheduler(
	runner ActionRunner,
	notifier notify.Notifier,
	recorder metrics.Recorder,
	logger *slog.Logger,
	config Config,
) *Scheduler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if config.LookaheadDays <= 0 {
		config.LookaheadDays = DefaultLookaheadDays
	}
	if config.Candidates <= 0 {
		config.Candidates = timetable.DefaultCandidates
	}
	if config.TitlePrefix == "" {
		config.TitlePrefix = "[NTU Auto Signing]"
	}
	return &Scheduler{
		runner:   runner,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger,
		config:   config,
		now:      timetable.Now,
		wait:     sleepUntil,
	}
}

// Start はコンテキストがキャンセルされるまで計画サイクルを繰り返す。
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("打刻スケジューラを開始しました",
		slog.Int("lookahead_days", s.config.LookaheadDays),
		slog.Int("candidates", s.config.Candidates),
	)

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("打刻スケジューラを停止しました")
				return nil
			}
			return err
		}
	}
}

// RunCycle は1回分の計画サイクル（Planning → Awaiting）を実行する。
// 予定時刻になった打刻はそれぞれ別のgoroutineで実行し、
// すべての実行が終わってからサマリーを通知する。
// 予定が1件もない場合は翌日0時（UTC+8）まで待機して戻る。
func (s *Scheduler) RunCycle(ctx context.Context) (Cycle, error) {
	now := s.now()
	events, err := Plan(now, s.config.LookaheadDays, s.config.Candidates)
	if err != nil {
		return Cycle{}, fmt.Errorf("failed to plan schedule: %w", err)
	}

	cycle := Cycle{Events: events}

	if len(events) == 0 {
		next := timetable.NextMidnight(now)
		s.logger.Info("打刻予定はありません。翌日まで待機します",
			slog.Time("until", next),
		)
		return cycle, s.wait(ctx, next)
	}

	s.setPending(events)
	for _, ev := range events {
		s.logger.Info("打刻を予約しました",
			slog.String("action", ev.Kind.String()),
			slog.Time("at", ev.At),
		)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		waitErr error
	)
	outcomes := make([]model.Outcome, 0, len(events))

	for i, ev := range events {
		if err := s.wait(ctx, ev.At); err != nil {
			waitErr = err
			break
		}
		s.setPending(events[i+1:])

		wg.Add(1)
		go func(ev model.ScheduledEvent) {
			defer wg.Done()
			// 実行中の打刻は停止要求を受けても完了まで待つ
			out := s.runner.SignOnce(context.WithoutCancel(ctx), ev.Kind)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(ev)
	}

	wg.Wait()
	s.setPending(nil)
	cycle.Outcomes = outcomes

	if waitErr != nil {
		return cycle, waitErr
	}

	s.logger.Info("計画サイクルが完了しました",
		slog.Int("event_count", len(events)),
		slog.Int("failed_count", countFailures(outcomes)),
	)
	s.sendSummary(ctx, events)
	return cycle, nil
}

// Snapshot は現在のサイクルで未実行の打刻予定を返す。
func (s *Scheduler) Snapshot() []model.ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScheduledEvent, len(s.pending))
	copy(out, s.pending)
	return out
}

func (s *Scheduler) setPending(events []model.ScheduledEvent) {
	s.mu.Lock()
	s.pending = events
	s.mu.Unlock()
	s.metrics.SetScheduledEvents(len(events))
}

func (s *Scheduler) sendSummary(ctx context.Context, events []model.ScheduledEvent) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	title := s.config.TitlePrefix + " " + summaryTitleSuffix
	if err := s.notifier.Notify(nctx, title, FormatSummary(events)); err != nil {
		s.metrics.RecordNotifyFailure()
		s.logger.Error("サマリー通知の送信に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// FormatSummary はサイクル内の予定一覧を通知本文に整形する。
func FormatSummary(events []model.ScheduledEvent) string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, fmt.Sprintf("%s scheduled at %s",
			ev.Kind.Label(), ev.At.In(timetable.Location()).Format(summaryTimeLayout)))
	}
	return strings.Join(lines, "\n")
}

func countFailures(outcomes []model.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// sleepUntil はuntilまでタイマーで待機する。
func sleepUntil(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
