// Package scheduler は週単位の打刻計画を立て、予定時刻にAction Runnerを起動する。
// 計画は Planning と Awaiting の2状態を繰り返し、サイクルごとに7日先まで再計算する。
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/autosign/internal/model"
	"github.com/hitoshi/autosign/internal/timetable"
)

// DefaultLookaheadDays は1回の計画で対象とする暦日数。
const DefaultLookaheadDays = 7

// Plan はnowの暦日（UTC+8）からdays日分の平日について打刻予定を算出する。
// now以前の時刻は含めない。結果は時刻順で、同時刻の場合は出勤が先になる。
func Plan(now time.Time, days, candidates int) ([]model.ScheduledEvent, error) {
	if days < 1 {
		return nil, fmt.Errorf("lookahead days must be positive: %d", days)
	}

	today := now.In(timetable.Location())
	var events []model.ScheduledEvent

	for i := 0; i < days; i++ {
		date := time.Date(today.Year(), today.Month(), today.Day()+i, 0, 0, 0, 0, timetable.Location())
		if timetable.IsWeekend(date) {
			continue
		}

		day, err := timetable.Times(date, candidates)
		if err != nil {
			return nil, fmt.Errorf("failed to compute timetable for %s: %w", date.Format("2006-01-02"), err)
		}

		for _, at := range day.SignIn {
			if at.After(now) {
				events = append(events, model.ScheduledEvent{At: at, Kind: model.SignIn})
			}
		}
		for _, at := range day.SignOut {
			if at.After(now) {
				events = append(events, model.ScheduledEvent{At: at, Kind: model.SignOut})
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return events[i].Kind < events[j].Kind
	})

	return events, nil
}
