// Package planner implements the stress-aware allocation of active tasks
// into free windows on a managed calendar for a single day.
package planner

import (
	"sort"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// Constraints bounds the Planner's placement decisions for one day.
type Constraints struct {
	WorkdayStart            time.Time
	WorkdayEnd              time.Time
	AvoidAfter              time.Time // e.g. a configured "no deep work after" cutoff
	BreakEveryMinutes       int
	BreakDurationMinutes    int
	MaxDeepWorkMinutesPerDay int
	FreeSpaceBufferMinutes  int
	SleepStart              time.Time
	SleepEnd                time.Time // on the following day
}

// Result is the Planner's output for one regeneration.
type Result struct {
	Blocks             []model.CalendarBlock
	FeasibilityState   model.FeasibilityState
	UnscheduledTaskIDs []string
}

// window is one contiguous stretch of free time, shrinking as chunks are
// placed into it.
type window struct {
	start time.Time
	end   time.Time
}

func (w window) minutes() int {
	return int(w.end.Sub(w.start).Minutes())
}

// Plan computes blocks for date, given the currently active tasks and the
// blocks already on the managed calendar for that date, honoring cs.
func Plan(date time.Time, tasks []model.Task, existingBlocks []model.CalendarBlock, cs Constraints, planRevision int64) Result {
	var sleepBlocks []model.CalendarBlock
	if !cs.SleepStart.IsZero() && !cs.SleepStart.Equal(cs.SleepEnd) {
		sleepBlocks = append(sleepBlocks, synthesizeSleepBlock(cs, planRevision))
	}
	obstacles := append(append([]model.CalendarBlock(nil), existingBlocks...), sleepBlocks...)
	windows := buildWindows(cs, obstacles)

	scored := scoreTasks(tasks, date)

	available := 0
	for _, w := range windows {
		available += w.minutes()
	}
	available -= cs.FreeSpaceBufferMinutes

	required := 0
	demand := make(map[string]int, len(scored))
	for _, st := range scored {
		d := dailyDemand(st.task, date)
		demand[st.task.TaskID] = d
		required += d
	}

	feasibility := feasibilityState(required, available)

	var blocks []model.CalendarBlock
	var unscheduled []string
	deepWorkUsed := 0
	chunkSize := cs.BreakEveryMinutes
	if chunkSize < 30 {
		chunkSize = 30
	}

	for _, st := range scored {
		remaining := demand[st.task.TaskID]
		for remaining > 0 {
			if deepWorkUsed >= cs.MaxDeepWorkMinutesPerDay {
				unscheduled = append(unscheduled, st.task.TaskID)
				remaining = 0
				break
			}

			chunk := remaining
			if chunk > chunkSize {
				chunk = chunkSize
			}
			budget := cs.MaxDeepWorkMinutesPerDay - deepWorkUsed
			if chunk > budget {
				chunk = budget
			}

			idx, w := firstWindowWithCapacity(windows, chunk)
			if idx < 0 {
				unscheduled = append(unscheduled, st.task.TaskID)
				break
			}
			if chunk < 25 {
				// A sliver too small to be a useful deep-work chunk; the
				// remaining demand for this task becomes unscheduled.
				unscheduled = append(unscheduled, st.task.TaskID)
				break
			}

			blockStart := w.start
			blockEnd := blockStart.Add(time.Duration(chunk) * time.Minute)
			blocks = append(blocks, model.CalendarBlock{
				BlockID:        newBlockID(),
				TaskID:         st.task.TaskID,
				Title:          st.task.Title,
				StartLocal:     blockStart,
				EndLocal:       blockEnd,
				ManagedByAgent: true,
				LockLevel:      model.LockFlexible,
				PlanRevision:   planRevision,
			})

			gapEnd := blockEnd
			if cs.BreakDurationMinutes > 0 {
				gapEnd = gapEnd.Add(time.Duration(cs.BreakDurationMinutes) * time.Minute)
			}
			windows[idx].start = gapEnd
			if windows[idx].start.After(windows[idx].end) {
				windows[idx].start = windows[idx].end
			}

			deepWorkUsed += chunk
			remaining -= chunk
		}
	}

	blocks = append(blocks, sleepBlocks...)

	return Result{Blocks: blocks, FeasibilityState: feasibility, UnscheduledTaskIDs: unscheduled}
}

// buildWindows subtracts every locked or non-agent-managed block from
// [workday_start, min(workday_end, avoid_after)], returning the remaining
// free stretches sorted by start time.
func buildWindows(cs Constraints, existingBlocks []model.CalendarBlock) []window {
	end := cs.WorkdayEnd
	if cs.AvoidAfter.Before(end) {
		end = cs.AvoidAfter
	}
	free := []window{{start: cs.WorkdayStart, end: end}}

	var obstacles []model.CalendarBlock
	for _, b := range existingBlocks {
		if b.LockLevel == model.LockLocked || !b.ManagedByAgent {
			obstacles = append(obstacles, b)
		}
	}
	sort.Slice(obstacles, func(i, j int) bool { return obstacles[i].StartLocal.Before(obstacles[j].StartLocal) })

	for _, obstacle := range obstacles {
		free = subtractFromWindows(free, obstacle.StartLocal, obstacle.EndLocal)
	}
	return free
}

func subtractFromWindows(windows []window, obstacleStart, obstacleEnd time.Time) []window {
	var out []window
	for _, w := range windows {
		if obstacleEnd.Before(w.start) || !obstacleStart.Before(w.end) {
			out = append(out, w)
			continue
		}
		if obstacleStart.After(w.start) {
			out = append(out, window{start: w.start, end: obstacleStart})
		}
		if obstacleEnd.Before(w.end) {
			out = append(out, window{start: obstacleEnd, end: w.end})
		}
	}
	return out
}

func firstWindowWithCapacity(windows []window, minutes int) (int, window) {
	for i, w := range windows {
		if w.minutes() >= minutes {
			return i, w
		}
	}
	return -1, window{}
}

// dailyDemand implements the §4.8 formula:
//
//	min(max(30, estimated_minutes), max(min_daily_minutes_effective, base_by_urgency))
func dailyDemand(t model.Task, date time.Time) int {
	baseByUrgency := 0
	if t.DueAtLocal != nil {
		days := daysUntilDue(*t.DueAtLocal, date)
		switch {
		case days <= 1:
			baseByUrgency = 120
		case days <= 3:
			baseByUrgency = 90
		}
	}

	estimatedFloor := t.EstimatedMinutes
	if estimatedFloor < 30 {
		estimatedFloor = 30
	}

	minDailyEffective := t.MinDailyMinutes
	if baseByUrgency > minDailyEffective {
		minDailyEffective = baseByUrgency
	}

	if estimatedFloor < minDailyEffective {
		return estimatedFloor
	}
	return minDailyEffective
}

func daysUntilDue(due, date time.Time) int {
	d := due.Truncate(24 * time.Hour).Sub(date.Truncate(24 * time.Hour))
	return int(d.Hours() / 24)
}

func feasibilityState(required, available int) model.FeasibilityState {
	switch {
	case required > available:
		return model.FeasibilityInfeasible
	case float64(required) > 0.9*float64(available):
		return model.FeasibilityAtRisk
	default:
		return model.FeasibilityOnTrack
	}
}

type scoredTask struct {
	task  model.Task
	score float64
}

// scoreTasks ranks tasks highest-score-first, breaking ties by task_id for
// determinism.
func scoreTasks(tasks []model.Task, date time.Time) []scoredTask {
	scored := make([]scoredTask, len(tasks))
	for i, t := range tasks {
		days := 999
		if t.DueAtLocal != nil {
			days = daysUntilDue(*t.DueAtLocal, date)
			if days < 0 {
				days = 0
			}
		}
		urgency := 200.0 / float64(days+1)
		score := urgency + 20*float64(t.Priority) + 0.05*float64(t.EstimatedMinutes) - 10*t.StressWeight
		scored[i] = scoredTask{task: t, score: score}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].task.TaskID < scored[j].task.TaskID
	})
	return scored
}

func synthesizeSleepBlock(cs Constraints, planRevision int64) model.CalendarBlock {
	return model.CalendarBlock{
		BlockID:        newBlockID(),
		Title:          "Sleep",
		StartLocal:     cs.SleepStart,
		EndLocal:       cs.SleepEnd,
		ManagedByAgent: true,
		LockLevel:      model.LockLocked,
		PlanRevision:   planRevision,
	}
}
