package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriyop/enteraksi/pkg/logger"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newScheduler() *Scheduler {
	return New(Config{Logger: logger.Nop(), Tick: 5 * time.Millisecond})
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newScheduler()
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	infos := s.Jobs()
	require.Len(t, infos, 1)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(2))
	assert.Equal(t, "@every 10ms", infos[0].Schedule)
}

func TestScheduler_JobDoesNotOverlapItself(t *testing.T) {
	s := newScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNowRecordsResult(t *testing.T) {
	s := newScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.Register(&countingJob{name: "ok"}, Every(time.Hour)))
	require.NoError(t, s.Register(&countingJob{name: "bad", err: boom}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].JobName)
	assert.Equal(t, "bad", history[1].JobName)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.001)

	infos := s.Jobs()
	assert.Equal(t, "bad", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].FailCount)
}

func TestScheduler_Registration(t *testing.T) {
	s := newScheduler()
	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, Every(time.Second)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, Every(time.Second)), ErrJobAlreadyExists)

	require.NoError(t, s.SetEnabled("a", false))
	assert.False(t, s.Jobs()[0].Enabled)
	assert.ErrorIs(t, s.SetEnabled("b", true), ErrJobNotFound)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := newScheduler()
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Zero(t, job.runs.Load())
}

func TestParseCron(t *testing.T) {
	at := time.Date(2026, time.March, 4, 10, 17, 30, 0, time.UTC) // Wednesday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, time.March, 4, 10, 18, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, time.March, 5, 3, 0, 0, 0, time.UTC)},
		{"30 9-17/2 * * *", time.Date(2026, time.March, 4, 11, 30, 0, 0, time.UTC)},
		{"0 0 * * 0", time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)},
		{"0 0 1 1,7 *", time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)},
		{"5,45 10 * * 1-5", time.Date(2026, time.March, 4, 10, 45, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseCron(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Next(at))
			assert.Equal(t, tt.expr, c.String())
		})
	}
}

func TestParseCron_TimeZonePrefix(t *testing.T) {
	c, err := ParseCron("CRON_TZ=Asia/Jakarta 0 3 * * *")
	require.NoError(t, err)

	at := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	// 03:00 in Jakarta (UTC+7) is 20:00 UTC on the previous day.
	assert.Equal(t, time.Date(2026, time.March, 4, 20, 0, 0, 0, time.UTC), c.Next(at))
}

func TestParseCron_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"a * * * *",
		"5-1 * * * *",
	} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestCron_NeverMatches(t *testing.T) {
	c := MustParseCron("0 0 31 2 *")
	assert.True(t, c.Next(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 5m")
	require.NoError(t, err)
	assert.Equal(t, Every(5*time.Minute), s)

	s, err = ParseSchedule("0 3 * * *")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", s.String())

	_, err = ParseSchedule("@every -1s")
	assert.Error(t, err)
	_, err = ParseSchedule("@every soon")
	assert.Error(t, err)
}
