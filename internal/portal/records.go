package portal

import (
	"regexp"
	"strings"

	"github.com/hitoshi/autosign/internal/model"
)

// overtimeMarker は退勤時に残業申請が必要であることを示すメッセージ中の文言。
// ポータルの文言が変わった場合はここだけを変更する。
const overtimeMarker = "加班"

// NeedsOvertimeApplication は打刻結果のメッセージが残業申請を求めているかを返す。
func NeedsOvertimeApplication(msg string) bool {
	return strings.Contains(msg, overtimeMarker)
}

var (
	signInTimePattern  = regexp.MustCompile(`^08:\d{2}:\d{2}$`)
	signOutTimePattern = regexp.MustCompile(`^(1[7-9]|2[01]):\d{2}:\d{2}$`)
)

// SignedIn は指定日（YYYY-MM-DD）に8時台の出勤記録があるかを返す。
func SignedIn(records []model.AttendanceRecord, date string) bool {
	for _, r := range records {
		if r.SignDate == date && signInTimePattern.MatchString(r.StartTime) {
			return true
		}
	}
	return false
}

// SignedOut は指定日（YYYY-MM-DD）に17〜21時台の退勤記録があるかを返す。
func SignedOut(records []model.AttendanceRecord, date string) bool {
	for _, r := range records {
		if r.SignDate == date && signOutTimePattern.MatchString(r.EndTime) {
			return true
		}
	}
	return false
}

// Signed はkindに応じてSignedInまたはSignedOutを返す。
func Signed(kind model.ActionKind, records []model.AttendanceRecord, date string) bool {
	if kind == model.SignOut {
		return SignedOut(records, date)
	}
	return SignedIn(records, date)
}
