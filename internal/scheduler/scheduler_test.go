package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/curator/internal/models"
)

func TestNextWeekly(t *testing.T) {
	fri := models.Schedule{Frequency: models.FrequencyWeekly, Day: "Friday", Hour: 9}

	// Wednesday 2025-03-12 10:00 -> Friday 09:00 the same week.
	got := Next(fri, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), got)

	// Friday after the hour -> next Friday.
	got = Next(fri, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC), got)

	// Friday before the hour -> today.
	got = Next(fri, time.Date(2025, 3, 14, 8, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), got)
}

func TestNextDaily(t *testing.T) {
	daily := models.Schedule{Frequency: models.FrequencyDaily, Hour: 18, Minute: 30}

	got := Next(daily, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC), got)

	got = Next(daily, time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 15, 18, 30, 0, 0, time.UTC), got)

	// Month rollover.
	got = Next(daily, time.Date(2025, 3, 31, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 4, 1, 18, 30, 0, 0, time.UTC), got)
}

type staticSettings struct {
	schedule models.Schedule
}

func (s staticSettings) Get(context.Context) (models.Settings, error) {
	return models.Settings{Schedule: s.schedule}, nil
}

// fakeClock advances to whatever the runner waits for.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func TestRunnerRunsOnSchedule(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs []time.Time
	r := NewRunner(staticSettings{schedule: models.Schedule{Frequency: models.FrequencyDaily, Hour: 9}}, func(context.Context) error {
		runs = append(runs, clock.Now())
		if len(runs) == 2 {
			cancel()
		}
		return nil
	})
	r.Now = clock.Now
	r.After = clock.After

	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, runs, 2)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), runs[0])
	assert.Equal(t, time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC), runs[1])
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(staticSettings{schedule: models.Schedule{Frequency: models.FrequencyDaily}}, func(context.Context) error {
		t.Error("job should not run")
		return nil
	})
	r.After = func(time.Duration) <-chan time.Time { return make(chan time.Time) }
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}
