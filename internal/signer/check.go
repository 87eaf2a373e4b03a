package signer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/portal"
	"github.com/hitoshi/autosign/internal/timetable"
)

// CheckKind は現在時刻（UTC+8）から確認対象のアクションを決める。
// 17時より前は出勤、以降は退勤を確認する。
func CheckKind(now time.Time) model.ActionKind {
	if now.In(timetable.Location()).Hour() < timetable.SignOutHour {
		return model.SignIn
	}
	return model.SignOut
}

// CheckOnce は直近の打刻記録を取得し、当日の打刻が記録されているかを確認する。
// 記録が見つからない場合、SendWarningMailが有効なら警告を通知する。
func (r *Runner) CheckOnce(ctx context.Context) (out model.Outcome) {
	start := time.Now()
	now := r.now().In(timetable.Location())
	kind := CheckKind(now)
	date := now.Format("2006-01-02")

	logger := r.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("action", "check"),
		slog.String("target", kind.String()),
		slog.String("date", date),
	)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("確認中にpanicが発生しました", slog.Any("panic", p))
			out = model.OutcomeFromError(kind, fmt.Errorf("panic: %v", p))
			r.reportRecovered(ctx, logger, out)
		}
		r.metrics.RecordAction("check_"+kind.String(), out.Kind.String(), time.Since(start))
	}()

	actionCtx, cancel := context.WithTimeout(ctx, r.config.ActionTimeout)
	defer cancel()

	records, err := r.fetchRecords(actionCtx, logger)
	if err != nil {
		out = model.OutcomeFromError(kind, err)
		r.report(ctx, logger, out)
		return out
	}

	if portal.Signed(kind, records, date) {
		logger.Info("打刻記録を確認しました")
		return model.Outcome{Kind: model.OutcomeSuccess, Action: kind}
	}

	logger.Error("打刻記録が見つかりません", slog.Int("records", len(records)))
	out = model.Outcome{
		Kind:   model.OutcomeDomainFailure,
		Action: kind,
		Err: &model.SignError{
			Kind:    model.FailureDomain,
			Op:      "check",
			Message: fmt.Sprintf("no %s record for %s", kind, date),
		},
	}
	if r.config.SendWarningMail {
		title := fmt.Sprintf("%s Check %s failed", r.config.TitlePrefix, kind)
		r.send(ctx, logger, title, formatMissingRecord(kind, date, records))
	}
	return out
}

func (r *Runner) fetchRecords(ctx context.Context, logger *slog.Logger) ([]model.AttendanceRecord, error) {
	session, err := r.openVerifiedSession(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.CheckRecords(ctx)
}

func formatMissingRecord(kind model.ActionKind, date string, records []model.AttendanceRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "No valid %s record found for %s.\n\nRecent records:\n", strings.ToLower(kind.Label()), date)
	if len(records) == 0 {
		b.WriteString("(none)\n")
	}
	for _, rec := range records {
		fmt.Fprintf(&b, "%s  in: %s  out: %s\n", rec.SignDate, orDash(rec.StartTime), orDash(rec.EndTime))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
