package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimes_MatchesKnownSchedule(t *testing.T) {
	tests := []struct {
		date    time.Time
		signIn  []string
		signOut []string
	}{
		{
			date:    time.Date(2025, 4, 18, 12, 0, 0, 0, Location()),
			signIn:  []string{"08:09:07", "08:19:02"},
			signOut: []string{"17:45:14", "18:06:52"},
		},
		{
			date:    time.Date(2024, 12, 31, 0, 0, 0, 0, Location()),
			signIn:  []string{"08:00:46", "08:10:33"},
			signOut: []string{"17:42:01", "18:01:41"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.date.Format("2006-01-02"), func(t *testing.T) {
			day, err := Times(tt.date, DefaultCandidates)
			require.NoError(t, err)
			require.Len(t, day.SignIn, 2)
			require.Len(t, day.SignOut, 2)

			for i, want := range tt.signIn {
				assert.Equal(t, want, day.SignIn[i].Format("15:04:05"))
			}
			for i, want := range tt.signOut {
				assert.Equal(t, want, day.SignOut[i].Format("15:04:05"))
			}
		})
	}
}

func TestTimes_Deterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, Location())
	for i := 0; i < 400; i++ {
		date := start.AddDate(0, 0, i)
		first, err := Times(date, MaxCandidates)
		require.NoError(t, err)
		second, err := Times(date.Add(13*time.Hour), MaxCandidates)
		require.NoError(t, err)
		assert.Equal(t, first, second, "date %s", date.Format("2006-01-02"))
	}
}

func TestTimes_WithinWindowsOnSameDay(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, Location())
	for i := 0; i < 3*366; i++ {
		date := start.AddDate(0, 0, i)
		for n := 1; n <= MaxCandidates; n++ {
			day, err := Times(date, n)
			require.NoError(t, err)

			for _, ts := range day.SignIn {
				assert.Equal(t, date.Day(), ts.Day())
				assert.Equal(t, SignInHour, ts.Hour(), "sign-in %s", ts)
			}
			for _, ts := range day.SignOut {
				assert.Equal(t, date.Day(), ts.Day())
				assert.GreaterOrEqual(t, ts.Hour(), SignOutHour)
				assert.Less(t, ts.Hour(), 20, "sign-out %s", ts)
			}
		}
	}
}

func TestTimes_CandidatesDoNotCollide(t *testing.T) {
	date := time.Date(2025, 2, 3, 0, 0, 0, 0, Location())
	day, err := Times(date, MaxCandidates)
	require.NoError(t, err)

	for i := 1; i < len(day.SignIn); i++ {
		assert.True(t, day.SignIn[i].After(day.SignIn[i-1]))
	}
	for i := 1; i < len(day.SignOut); i++ {
		assert.GreaterOrEqual(t, day.SignOut[i].Sub(day.SignOut[i-1]), time.Duration(WindowSize)*time.Second)
	}
}

func TestTimes_UsesUTCPlus8CalendarDate(t *testing.T) {
	// UTC 2025-04-17 20:00 は UTC+8 では 2025-04-18 04:00
	utc := time.Date(2025, 4, 17, 20, 0, 0, 0, time.UTC)
	day, err := Times(utc, DefaultCandidates)
	require.NoError(t, err)

	assert.Equal(t, "2025-04-18", day.Date.Format("2006-01-02"))
	assert.Equal(t, "2025-04-18 08:09:07", day.SignIn[0].Format("2006-01-02 15:04:05"))
	assert.Equal(t, Location(), day.SignIn[0].Location())
}

func TestTimes_RejectsInvalidCandidateCount(t *testing.T) {
	_, err := Times(time.Now(), 0)
	assert.Error(t, err)

	_, err = Times(time.Now(), MaxCandidates+1)
	assert.Error(t, err)
}

func TestIsWeekend(t *testing.T) {
	// 2025-04-19 は土曜日
	sat := time.Date(2025, 4, 19, 10, 0, 0, 0, Location())
	assert.True(t, IsWeekend(sat))
	assert.True(t, IsWeekend(sat.AddDate(0, 0, 1)))
	assert.False(t, IsWeekend(sat.AddDate(0, 0, 2)))
	assert.False(t, IsWeekend(sat.AddDate(0, 0, -1)))
}

func TestNextMidnight(t *testing.T) {
	now := time.Date(2025, 4, 18, 23, 59, 0, 0, Location())
	got := NextMidnight(now)
	assert.Equal(t, time.Date(2025, 4, 19, 0, 0, 0, 0, Location()), got)
}
