package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"go_pipeline_project/config"
)

// Callback is a job action. Callbacks are synchronous by contract; anything
// asynchronous underneath is driven to completion through the scheduler's
// invoke bridge.
type Callback func()

// ScheduleEntry is one registered job: a weekday set (nil means every day),
// a time of day and an action. Immutable once registered.
type ScheduleEntry struct {
	JobID    string
	Phase    Phase
	Weekdays []time.Weekday
	At       config.TimeOfDay
	Action   Callback

	schedule cron.Schedule
	nextRun  time.Time
}

// JobInfo is a read-only view of an entry for the status API.
type JobInfo struct {
	JobID   string    `json:"job_id"`
	Phase   string    `json:"phase"`
	At      string    `json:"at"`
	Days    string    `json:"days"`
	NextRun time.Time `json:"next_run"`
}

// ScheduleRegistry is the job table: it maps (weekday-set, time-of-day) to
// callbacks and answers which jobs are due at a given instant. Schedule
// arithmetic is delegated to robfig/cron; the registry owns the due-job
// bookkeeping so dispatch stays clock-injectable.
type ScheduleRegistry struct {
	mu      sync.Mutex
	entries []*ScheduleEntry
}

// NewScheduleRegistry creates an empty job table.
func NewScheduleRegistry() *ScheduleRegistry {
	return &ScheduleRegistry{}
}

// Register adds a job to the table. Weekdays nil registers a daily job.
func (r *ScheduleRegistry) Register(jobID string, phase Phase, weekdays []time.Weekday, at config.TimeOfDay, action Callback) error {
	schedule, err := cron.ParseStandard(cronSpec(at, weekdays))
	if err != nil {
		return fmt.Errorf("failed to build schedule for %s: %w", jobID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &ScheduleEntry{
		JobID:    jobID,
		Phase:    phase,
		Weekdays: weekdays,
		At:       at,
		Action:   action,
		schedule: schedule,
	})
	return nil
}

// Prime computes every entry's first fire time strictly after now. Jobs
// whose time already passed today are not fired by the dispatch loop; the
// recovery pass owns the past.
func (r *ScheduleRegistry) Prime(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		entry.nextRun = entry.schedule.Next(now)
	}
}

// DueJobs returns the entries due at or before now and advances their next
// fire times. Unprimed entries are primed in place rather than fired.
func (r *ScheduleRegistry) DueJobs(now time.Time) []*ScheduleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*ScheduleEntry
	for _, entry := range r.entries {
		if entry.nextRun.IsZero() {
			entry.nextRun = entry.schedule.Next(now)
			continue
		}
		if !entry.nextRun.After(now) {
			due = append(due, entry)
			entry.nextRun = entry.schedule.Next(now)
		}
	}
	return due
}

// Clear empties the job table.
func (r *ScheduleRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Len returns the number of registered jobs.
func (r *ScheduleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns a sorted view of the job table for the status API.
func (r *ScheduleRegistry) Snapshot() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]JobInfo, 0, len(r.entries))
	for _, entry := range r.entries {
		jobs = append(jobs, JobInfo{
			JobID:   entry.JobID,
			Phase:   entry.Phase.String(),
			At:      entry.At.String(),
			Days:    weekdaysLabel(entry.Weekdays),
			NextRun: entry.nextRun,
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobID < jobs[j].JobID })
	return jobs
}

// cronSpec renders a (time-of-day, weekday-set) trigger as a standard cron
// expression.
func cronSpec(at config.TimeOfDay, weekdays []time.Weekday) string {
	dow := "*"
	if len(weekdays) > 0 {
		parts := make([]string, 0, len(weekdays))
		for _, day := range weekdays {
			parts = append(parts, fmt.Sprintf("%d", int(day)))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", at.Minute, at.Hour, dow)
}

// weekdaysLabel formats a weekday set for display.
func weekdaysLabel(weekdays []time.Weekday) string {
	if len(weekdays) == 0 {
		return "daily"
	}
	parts := make([]string, 0, len(weekdays))
	for _, day := range weekdays {
		parts = append(parts, day.String()[:3])
	}
	return strings.Join(parts, ",")
}

// Weekdays is the Monday through Friday weekday set used by the market
// phase jobs.
func Weekdays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}
