package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/autosign/internal/model"
)

// --- モック定義 ---

type mockRunner struct {
	mu    sync.Mutex
	kinds []model.ActionKind
	fail  bool
}

func (m *mockRunner) SignOnce(_ context.Context, kind model.ActionKind) model.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	if m.fail {
		return model.OutcomeFromError(kind, errors.New("boom"))
	}
	return model.Outcome{Kind: model.OutcomeSuccess, Action: kind}
}

func (m *mockRunner) calls() []model.ActionKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActionKind(nil), m.kinds...)
}

type mockNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (m *mockNotifier) Notify(_ context.Context, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	m.bodies = append(m.bodies, body)
	return nil
}

// fakeClock は待機するたびに指定時刻まで進む時計。
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Time
	onWait func(n int) error
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Wait(ctx context.Context, until time.Time) error {
	c.mu.Lock()
	n := len(c.waits)
	c.waits = append(c.waits, until)
	c.mu.Unlock()

	if c.onWait != nil {
		if err := c.onWait(n); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if until.After(c.now) {
		c.now = until
	}
	c.mu.Unlock()
	return nil
}

func newTestScheduler(t *testing.T, clock *fakeClock, runner *mockRunner, notifier *mockNotifier, days int) *Scheduler {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	s := NewScheduler(runner, notifier, nil, logger, Config{LookaheadDays: days, Candidates: 2})
	s.now = clock.Now
	s.wait = clock.Wait
	return s
}

// --- テスト ---

func TestRunCycle_RunsEveryEventThenSendsSummary(t *testing.T) {
	clock := &fakeClock{now: at(2025, 4, 18, 0, 0, 0)}
	runner := &mockRunner{}
	notifier := &mockNotifier{}
	s := newTestScheduler(t, clock, runner, notifier, 1)

	cycle, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, cycle.Events, 4)
	assert.Len(t, cycle.Outcomes, 4)
	assert.ElementsMatch(t,
		[]model.ActionKind{model.SignIn, model.SignIn, model.SignOut, model.SignOut},
		runner.calls())
	assert.Empty(t, s.Snapshot())

	require.Len(t, notifier.titles, 1, "サマリーは1回だけ")
	assert.Equal(t, "[NTU Auto Signing] Scheduled Sign-in/out", notifier.titles[0])
	assert.Equal(t,
		"Sign in scheduled at 2025-04-18 08:09:07\n"+
			"Sign in scheduled at 2025-04-18 08:19:02\n"+
			"Sign out scheduled at 2025-04-18 17:45:14\n"+
			"Sign out scheduled at 2025-04-18 18:06:52",
		notifier.bodies[0])

	require.Len(t, clock.waits, 4)
	for i, ev := range cycle.Events {
		assert.True(t, clock.waits[i].Equal(ev.At))
	}
}

func TestRunCycle_FailuresDoNotStopTheCycle(t *testing.T) {
	clock := &fakeClock{now: at(2025, 4, 18, 0, 0, 0)}
	runner := &mockRunner{fail: true}
	notifier := &mockNotifier{}
	s := newTestScheduler(t, clock, runner, notifier, 1)

	cycle, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, runner.calls(), 4)
	assert.Len(t, cycle.Outcomes, 4)
	assert.Len(t, notifier.titles, 1)
}

func TestRunCycle_SnapshotShrinksAsEventsFire(t *testing.T) {
	clock := &fakeClock{now: at(2025, 4, 18, 0, 0, 0)}
	s := newTestScheduler(t, clock, &mockRunner{}, &mockNotifier{}, 1)

	var sizes []int
	clock.onWait = func(int) error {
		sizes = append(sizes, len(s.Snapshot()))
		return nil
	}

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 1}, sizes)
}

func TestRunCycle_CancellationStopsWaiting(t *testing.T) {
	clock := &fakeClock{now: at(2025, 4, 18, 0, 0, 0)}
	runner := &mockRunner{}
	notifier := &mockNotifier{}
	s := newTestScheduler(t, clock, runner, notifier, 1)

	ctx, cancel := context.WithCancel(context.Background())
	clock.onWait = func(n int) error {
		if n == 1 {
			cancel()
		}
		return nil
	}

	_, err := s.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []model.ActionKind{model.SignIn}, runner.calls())
	assert.Empty(t, notifier.titles, "中断時はサマリーを送らない")
	assert.Empty(t, s.Snapshot())
}

func TestRunCycle_EmptyPlanWaitsUntilMidnight(t *testing.T) {
	// 土曜日は予定なし
	clock := &fakeClock{now: at(2025, 4, 19, 10, 0, 0)}
	notifier := &mockNotifier{}
	s := newTestScheduler(t, clock, &mockRunner{}, notifier, 1)

	cycle, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cycle.Events)
	require.Len(t, clock.waits, 1)
	assert.True(t, clock.waits[0].Equal(at(2025, 4, 20, 0, 0, 0)))
	assert.Empty(t, notifier.titles)
}

func TestStart_ReplansUntilCancelled(t *testing.T) {
	// 金曜 18:30 開始。1サイクル目は翌週月〜木の予定
	clock := &fakeClock{now: at(2025, 4, 18, 18, 30, 0)}
	runner := &mockRunner{}
	notifier := &mockNotifier{}
	s := newTestScheduler(t, clock, runner, notifier, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.onWait = func(n int) error {
		// 1サイクル目の16件を消化し、2サイクル目の途中で停止する
		if n == 16+2 {
			cancel()
		}
		return nil
	}

	err := s.Start(ctx)
	require.NoError(t, err)
	assert.Len(t, runner.calls(), 16+2)
	assert.Len(t, notifier.titles, 1)
}

func TestSleepUntil(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepUntil(context.Background(), start.Add(20*time.Millisecond)))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, sleepUntil(context.Background(), start.Add(-time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepUntil(ctx, time.Now().Add(time.Hour)), context.Canceled)
}

func TestFormatSummary_UsesUTC8(t *testing.T) {
	events := []model.ScheduledEvent{
		{At: time.Date(2025, 4, 18, 0, 9, 7, 0, time.UTC), Kind: model.SignIn},
	}
	assert.Equal(t, "Sign in scheduled at 2025-04-18 08:09:07", FormatSummary(events))
	assert.Equal(t, "", FormatSummary(nil))
}
