package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// Defaults holds the planner/sync knobs shipped in config/defaults.yaml,
// used to seed the preferences table the first time a database is opened.
type Defaults struct {
	Planner struct {
		WorkdayStart             string  `yaml:"workday_start"`
		WorkdayEnd               string  `yaml:"workday_end"`
		AvoidDeepWorkAfter       string  `yaml:"avoid_deep_work_after"`
		SleepStart               string  `yaml:"sleep_start"`
		SleepEnd                 string  `yaml:"sleep_end"`
		BreakEveryMinutes        int     `yaml:"break_every_minutes"`
		BreakDurationMinutes     int     `yaml:"break_duration_minutes"`
		MaxDeepWorkMinutesPerDay int     `yaml:"max_deep_work_minutes_per_day"`
		FreeSpaceBufferMinutes   int     `yaml:"free_space_buffer_minutes"`
		StressThreshold          float64 `yaml:"stress_threshold"`
	} `yaml:"planner"`
	LLM struct {
		Model            string `yaml:"model"`
		RateLimit        int    `yaml:"rate_limit"`
		DailyTokenBudget int    `yaml:"daily_token_budget"`
	} `yaml:"llm"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	CalendarName    string  `yaml:"calendar_name"`
}

// LoadDefaultsFile parses a YAML defaults file (see Defaults for the
// expected shape). A missing file is not an error: SeedIfEmpty then leaves
// the preferences table as whatever the environment-sourced Config
// provides.
func LoadDefaultsFile(fsys fs.FS, path string) (*Defaults, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read defaults file %q: %w", path, err)
	}
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("config: parse defaults file %q: %w", path, err)
	}
	return &d, nil
}

// SeedIfEmpty writes every non-zero field of d into store, but only for
// keys that are not already set -- a value an operator has since tuned
// through a chat command or the preferences table directly is never
// overwritten by the on-disk defaults on a later restart.
func SeedIfEmpty(ctx context.Context, store Store, d *Defaults) error {
	if d == nil {
		return nil
	}
	seed := map[string]string{}
	putString := func(key, value string) {
		if value != "" {
			seed[key] = value
		}
	}
	putInt := func(key string, value int) {
		if value != 0 {
			seed[key] = fmt.Sprintf("%d", value)
		}
	}
	putFloat := func(key string, value float64) {
		if value != 0 {
			seed[key] = fmt.Sprintf("%g", value)
		}
	}

	putString("planner.workday_start", d.Planner.WorkdayStart)
	putString("planner.workday_end", d.Planner.WorkdayEnd)
	putString("planner.avoid_deep_work_after", d.Planner.AvoidDeepWorkAfter)
	putString("planner.sleep_start", d.Planner.SleepStart)
	putString("planner.sleep_end", d.Planner.SleepEnd)
	putInt("planner.break_every_minutes", d.Planner.BreakEveryMinutes)
	putInt("planner.break_duration_minutes", d.Planner.BreakDurationMinutes)
	putInt("planner.max_deep_work_minutes_per_day", d.Planner.MaxDeepWorkMinutesPerDay)
	putInt("planner.free_space_buffer_minutes", d.Planner.FreeSpaceBufferMinutes)
	putFloat("planner.stress_threshold", d.Planner.StressThreshold)
	putString("llm.model", d.LLM.Model)
	putInt("llm.rate_limit", d.LLM.RateLimit)
	putInt("llm.daily_token_budget", d.LLM.DailyTokenBudget)
	putFloat("confidence_floor", d.ConfidenceFloor)
	putString("calendar_name", d.CalendarName)

	for key, value := range seed {
		if _, err := store.Get(ctx, key); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("config: seed check %q: %w", key, err)
		}
		if err := store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("config: seed %q: %w", key, err)
		}
	}
	return nil
}
