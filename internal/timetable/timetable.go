// Package timetable は日付から打刻時刻を決定的に算出する。
// 同じ日付からは常に同じ時刻が得られるため、プロセス再起動後も同一の計画を再構築できる。
package timetable

import (
	"fmt"
	"time"
)

const (
	// WindowSize は1候補あたりのオフセット窓の幅（秒）。
	WindowSize = 599
	// SignInHour は出勤打刻の基準時刻（時）。
	SignInHour = 8
	// SignOutHour は退勤打刻の基準時刻（時）。
	SignOutHour = 17
	// MaxCandidates は1アクションあたりの最大候補数。
	// 出勤候補がすべて8時台に収まる上限。
	MaxCandidates = 6
	// DefaultCandidates は1アクションあたりの既定候補数。
	DefaultCandidates = 2

	// signOutBaseWindows は退勤候補の最初のサブ窓の開始位置（窓数）。
	signOutBaseWindows = 4
)

// primes は各出力に割り当てる乗数の基数。出勤候補が先頭から、退勤候補がその後に続く。
var primes = [2 * MaxCandidates]int64{41, 43, 47, 53, 59, 61, 67, 71, 73, 79, 83, 89}

var location = time.FixedZone("UTC+8", 8*60*60)

// Location は打刻時刻の基準となる固定タイムゾーン（UTC+8）を返す。
// ホストのタイムゾーン設定には依存しない。
func Location() *time.Location {
	return location
}

// Now は現在時刻をUTC+8で返す。
func Now() time.Time {
	return time.Now().In(location)
}

// Day は1日分の打刻候補時刻。
type Day struct {
	Date    time.Time // UTC+8の0時
	SignIn  []time.Time
	SignOut []time.Time
}

// Times はdateのUTC+8における暦日について、出勤・退勤それぞれn個の候補時刻を返す。
func Times(date time.Time, n int) (Day, error) {
	if n < 1 || n > MaxCandidates {
		return Day{}, fmt.Errorf("candidates must be between 1 and %d: %d", MaxCandidates, n)
	}

	local := date.In(location)
	y, m, d := local.Date()
	day := Day{
		Date:    time.Date(y, m, d, 0, 0, 0, 0, location),
		SignIn:  make([]time.Time, 0, n),
		SignOut: make([]time.Time, 0, n),
	}

	signInBase := time.Date(y, m, d, SignInHour, 0, 0, 0, location)
	signOutBase := time.Date(y, m, d, SignOutHour, 0, 0, 0, location)

	for i := 0; i < n; i++ {
		in := Offset(y, int(m), d, primes[i]) + int64(i)*WindowSize
		day.SignIn = append(day.SignIn, signInBase.Add(time.Duration(in)*time.Second))

		out := Offset(y, int(m), d, primes[n+i]) + int64(signOutBaseWindows+2*i)*WindowSize
		day.SignOut = append(day.SignOut, signOutBase.Add(time.Duration(out)*time.Second))
	}

	return day, nil
}

// Offset は年月日とprimeから [0, WindowSize) のオフセット秒を算出する。
func Offset(year, month, day int, prime int64) int64 {
	y, m, d := int64(year), int64(month), int64(day)
	return (y*prime + m*prime*prime + d*prime*prime*prime) % WindowSize
}

// IsWeekend はtがUTC+8で土曜日または日曜日かを返す。
func IsWeekend(t time.Time) bool {
	switch t.In(location).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// NextMidnight はtの翌日0時（UTC+8）を返す。
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.In(location).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, location)
}
