package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_pipeline_project/config"
)

func at(t *testing.T, day time.Time, hour, minute int) time.Time {
	t.Helper()
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func TestRegistryFiresAtScheduledTime(t *testing.T) {
	reg := NewScheduleRegistry()
	monday := mustMonday(t, 0, 0)

	require.NoError(t, reg.Register("screening", PhaseScreening, Weekdays(),
		config.TimeOfDay{Hour: 8, Minute: 15}, func() {}))
	reg.Prime(at(t, monday, 8, 0))

	assert.Empty(t, reg.DueJobs(at(t, monday, 8, 14)))

	due := reg.DueJobs(at(t, monday, 8, 15))
	require.Len(t, due, 1)
	assert.Equal(t, "screening", due[0].JobID)

	// Already advanced: the same instant does not fire twice.
	assert.Empty(t, reg.DueJobs(at(t, monday, 8, 15)))
	assert.Empty(t, reg.DueJobs(at(t, monday, 8, 16)))
}

func TestRegistryFiresOnceWhenPollsAreLate(t *testing.T) {
	reg := NewScheduleRegistry()
	monday := mustMonday(t, 0, 0)

	require.NoError(t, reg.Register("health_check", PhaseHealthCheck, Weekdays(),
		config.TimeOfDay{Hour: 11, Minute: 30}, func() {}))
	reg.Prime(at(t, monday, 11, 0))

	// The poll that finally arrives 20 minutes late still fires exactly once.
	due := reg.DueJobs(at(t, monday, 11, 50))
	require.Len(t, due, 1)
	assert.Empty(t, reg.DueJobs(at(t, monday, 11, 51)))
}

func TestRegistryPrimeSkipsPastTimes(t *testing.T) {
	reg := NewScheduleRegistry()
	monday := mustMonday(t, 0, 0)

	require.NoError(t, reg.Register("screening", PhaseScreening, Weekdays(),
		config.TimeOfDay{Hour: 8, Minute: 15}, func() {}))

	// Primed after today's time has passed: the dispatch loop must not fire
	// it today. The past belongs to the recovery pass.
	reg.Prime(at(t, monday, 9, 0))
	assert.Empty(t, reg.DueJobs(at(t, monday, 9, 30)))
	assert.Empty(t, reg.DueJobs(at(t, monday, 23, 59)))

	tuesday := monday.AddDate(0, 0, 1)
	due := reg.DueJobs(at(t, tuesday, 8, 15))
	assert.Len(t, due, 1)
}

func TestRegistryWeekdayJobSkipsWeekend(t *testing.T) {
	reg := NewScheduleRegistry()
	// 2026-01-02 is a Friday.
	friday := time.Date(2026, 1, 2, 0, 0, 0, 0, time.Local)
	require.Equal(t, time.Friday, friday.Weekday())

	require.NoError(t, reg.Register("screening", PhaseScreening, Weekdays(),
		config.TimeOfDay{Hour: 8, Minute: 15}, func() {}))
	reg.Prime(at(t, friday, 9, 0))

	saturday := friday.AddDate(0, 0, 1)
	sunday := friday.AddDate(0, 0, 2)
	monday := friday.AddDate(0, 0, 3)

	assert.Empty(t, reg.DueJobs(at(t, saturday, 8, 15)))
	assert.Empty(t, reg.DueJobs(at(t, sunday, 8, 15)))
	assert.Len(t, reg.DueJobs(at(t, monday, 8, 15)), 1)
}

func TestRegistrySaturdayOnlyJob(t *testing.T) {
	reg := NewScheduleRegistry()
	monday := mustMonday(t, 0, 0)

	require.NoError(t, reg.Register("fundamentals_pull", PhaseFundamentals,
		[]time.Weekday{time.Saturday}, config.TimeOfDay{Hour: 10, Minute: 0}, func() {}))
	reg.Prime(at(t, monday, 0, 0))

	for offset := 0; offset < 5; offset++ {
		day := monday.AddDate(0, 0, offset)
		assert.Empty(t, reg.DueJobs(at(t, day, 10, 0)), "weekday %s", day.Weekday())
	}

	saturday := monday.AddDate(0, 0, 5)
	require.Equal(t, time.Saturday, saturday.Weekday())
	assert.Len(t, reg.DueJobs(at(t, saturday, 10, 0)), 1)
}

func TestRegistryUnprimedEntryDoesNotFire(t *testing.T) {
	reg := NewScheduleRegistry()
	monday := mustMonday(t, 0, 0)

	require.NoError(t, reg.Register("screening", PhaseScreening, nil,
		config.TimeOfDay{Hour: 8, Minute: 15}, func() {}))

	// First DueJobs call primes instead of firing.
	assert.Empty(t, reg.DueJobs(at(t, monday, 9, 0)))

	tuesday := monday.AddDate(0, 0, 1)
	assert.Len(t, reg.DueJobs(at(t, tuesday, 8, 15)), 1)
}

func TestRegistryClear(t *testing.T) {
	reg := NewScheduleRegistry()
	require.NoError(t, reg.Register("a", PhaseCacheClear, nil, config.TimeOfDay{Hour: 8}, func() {}))
	require.NoError(t, reg.Register("b", PhaseAISync, nil, config.TimeOfDay{Hour: 16}, func() {}))
	assert.Equal(t, 2, reg.Len())

	reg.Clear()
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Snapshot())
}

func TestRegistrySnapshotSorted(t *testing.T) {
	reg := NewScheduleRegistry()
	require.NoError(t, reg.Register("screening", PhaseScreening, Weekdays(), config.TimeOfDay{Hour: 8, Minute: 15}, func() {}))
	require.NoError(t, reg.Register("cache_clear", PhaseCacheClear, nil, config.TimeOfDay{Hour: 8}, func() {}))
	reg.Prime(mustMonday(t, 0, 0))

	jobs := reg.Snapshot()
	require.Len(t, jobs, 2)
	assert.Equal(t, "cache_clear", jobs[0].JobID)
	assert.Equal(t, "screening", jobs[1].JobID)
	assert.Equal(t, "daily", jobs[0].Days)
	assert.Equal(t, "Mon,Tue,Wed,Thu,Fri", jobs[1].Days)
	assert.False(t, jobs[0].NextRun.IsZero())
}
