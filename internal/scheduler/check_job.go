package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/timetable"
)

// DefaultCheckSpecs は打刻確認の既定スケジュール（UTC+8、平日）。
var DefaultCheckSpecs = []string{"30 12 * * 1-5", "30 21 * * 1-5"}

// Checker は打刻記録の確認を行うインターフェース。
type Checker interface {
	CheckOnce(ctx context.Context) model.Outcome
}

// CheckJob はcron式に従って打刻確認を定期実行する。
type CheckJob struct {
	checker   Checker
	schedules []cron.Schedule
	logger    *slog.Logger
}

// NewCheckJob はcron式（標準5フィールド）を検証してCheckJobを生成する。
// specsが空の場合、Runは何もせずにキャンセルを待つ。
func NewCheckJob(checker Checker, specs []string, logger *slog.Logger) (*CheckJob, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedules := make([]cron.Schedule, 0, len(specs))
	for _, spec := range specs {
		sched, err := parser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid check schedule %q: %w", spec, err)
		}
		schedules = append(schedules, sched)
	}

	return &CheckJob{checker: checker, schedules: schedules, logger: logger}, nil
}

// Next はfrom以降の各スケジュールの次回実行時刻（UTC+8）を返す。
func (j *CheckJob) Next(from time.Time) []time.Time {
	out := make([]time.Time, 0, len(j.schedules))
	for _, sched := range j.schedules {
		out = append(out, sched.Next(from.In(timetable.Location())))
	}
	return out
}

// Run はコンテキストがキャンセルされるまで確認ジョブを実行する。
// 実行中の確認は停止時に完了まで待つ。
func (j *CheckJob) Run(ctx context.Context) {
	if len(j.schedules) == 0 {
		<-ctx.Done()
		return
	}

	c := cron.New(
		cron.WithLocation(timetable.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	for _, sched := range j.schedules {
		c.Schedule(sched, cron.FuncJob(func() {
			out := j.checker.CheckOnce(context.WithoutCancel(ctx))
			j.logger.Info("打刻確認を実行しました",
				slog.String("target", out.Action.String()),
				slog.String("outcome", out.Kind.String()),
			)
		}))
	}

	j.logger.Info("打刻確認ジョブを開始しました", slog.Int("schedules", len(j.schedules)))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("打刻確認ジョブを停止しました")
}
