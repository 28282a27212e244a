package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soraya-vance/daymind/common/crypto"
	"github.com/soraya-vance/daymind/common/environment"
	"github.com/soraya-vance/daymind/common/redact"
	"github.com/soraya-vance/daymind/common/version"
	"github.com/soraya-vance/daymind/internal/daymind/app"
	"github.com/soraya-vance/daymind/internal/daymind/calendarstore"
	"github.com/soraya-vance/daymind/internal/daymind/llm"
	"github.com/soraya-vance/daymind/internal/daymind/planner"
	"github.com/soraya-vance/daymind/internal/daymind/scheduler"
	"github.com/soraya-vance/daymind/internal/daymind/store"
	"github.com/soraya-vance/daymind/internal/daymind/transport/matrix"
)

func main() {
	healthCheck := flag.Bool("health-check", false, "open the database, verify migrations, and exit")
	planText := flag.String("plan", "", "run one command (today/add/move/undo/help) through the command service and print the result as JSON")
	syncOnce := flag.Bool("sync-live-once", false, "run one coordinator sync pass across every enabled account and exit")
	flag.Parse()

	fmt.Printf("daymind\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	if *healthCheck {
		os.Exit(runHealthCheck())
	}

	config := loadConfig()

	// The master key protects credentials.FileStore; validated here so a
	// missing key fails fast before any subsystem starts, even though no
	// concrete provider client wired into this build consumes it yet.
	if _, err := crypto.LoadMasterKey(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nGenerate a key with: openssl rand -hex 32\n", err)
		os.Exit(1)
	}

	if *planText != "" {
		os.Exit(runPlanOnce(config, *planText))
	}
	if *syncOnce {
		os.Exit(runSyncOnce(config))
	}

	daemon, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize daymind: %v\n", err)
		os.Exit(1)
	}
	defer daemon.Stop()

	if err := daemon.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running daymind: %v\n", err)
		os.Exit(1)
	}
}

// runHealthCheck opens the database (running migrations) and reports
// success without starting any background loop.
func runHealthCheck() int {
	dbPath := environment.StringOr("DATABASE_PATH", "./daymind.db")
	db, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		return 1
	}
	db.Close()
	fmt.Println("ok")
	return 0
}

// runPlanOnce builds the same service graph as the daemon, runs one command
// through CommandService, and prints the result as JSON. Exit codes follow
// §6: 0 success, 2 requires_confirmation, 1 failure.
func runPlanOnce(config *app.Config, text string) int {
	daemon, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize daymind: %v\n", err)
		return 1
	}
	defer daemon.Stop()

	result, err := daemon.HandleCommand(context.Background(), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if result.RequiresConfirmation {
		return 2
	}
	return 0
}

// runSyncOnce builds the same service graph as the daemon, runs one
// coordinator pass across every enabled account, and prints the resulting
// summary as JSON.
func runSyncOnce(config *app.Config) int {
	daemon, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize daymind: %v\n", err)
		return 1
	}
	defer daemon.Stop()

	summary, err := daemon.SyncOnce(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))

	if len(summary.Failures) > 0 {
		return 1
	}
	return 0
}

// loadConfig loads configuration from environment variables.
func loadConfig() *app.Config {
	dbPath := environment.StringOr("DATABASE_PATH", "./daymind.db")

	homeserver := environment.StringOr("MATRIX_HOMESERVER", "")
	userID := environment.StringOr("MATRIX_USER_ID", "")
	accessToken := environment.StringOr("MATRIX_ACCESS_TOKEN", "")
	adminRooms := environment.StringSliceOr("MATRIX_ADMIN_ROOMS", nil)
	auditRoom := environment.StringOr("AUDIT_ROOM_ID", "")

	var tp *matrix.Transport
	var auditSender *matrix.Transport
	if homeserver != "" && userID != "" && accessToken != "" {
		db, err := store.New(dbPath)
		if err == nil {
			var mErr error
			tp, mErr = matrix.New(&matrix.Config{
				Homeserver:  homeserver,
				UserID:      userID,
				AccessToken: accessToken,
				AdminRooms:  adminRooms,
				DB:          db.DB(),
			})
			if mErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: matrix transport unavailable: %v\n", redact.String(mErr.Error(), accessToken))
			} else {
				auditSender = tp
			}
		}
	}

	llmAPIKey := environment.StringOr("LLM_API_KEY", "")
	llmClient := llm.NewOpenAIClient(llm.Config{
		APIKey:  llmAPIKey,
		BaseURL: environment.StringOr("LLM_BASE_URL", ""),
		Model:   environment.StringOr("LLM_MODEL", ""),
	}, llm.NewRateLimiter(environment.IntOr("LLM_RATE_LIMIT", 20), time.Minute), llm.NewTokenBudget(environment.IntOr("LLM_DAILY_TOKEN_BUDGET", 200000)))

	cfg := &app.Config{
		DatabasePath:    dbPath,
		TrustedSenders:  environment.StringSliceOr("TRUSTED_SENDERS", nil),
		LLM:             llmClient,
		ConfidenceFloor: getEnvFloat("CONFIDENCE_FLOOR", 0.6),
		Calendar:        calendarstore.NewMemory(),
		CalendarName:    environment.StringOr("CALENDAR_NAME", "daymind"),
		AuditRoomID:     auditRoom,
		Constraints:     loadConstraints(),
		Scheduler: scheduler.Config{
			ActiveMinutes:     environment.IntOr("SCHEDULER_ACTIVE_MINUTES", 5),
			NormalMinutes:     environment.IntOr("SCHEDULER_NORMAL_MINUTES", 15),
			IdleMinutes:       environment.IntOr("SCHEDULER_IDLE_MINUTES", 60),
			MaxBackoffMinutes: environment.IntOr("SCHEDULER_MAX_BACKOFF_MINUTES", 120),
		},
		HTTPAddr:     environment.StringOr("CONTROL_ADDR", ""),
		DefaultsFile: environment.StringOr("DEFAULTS_FILE", "config/defaults.yaml"),
	}
	if tp != nil {
		cfg.Transport = tp
	}
	if auditSender != nil {
		cfg.AuditSender = auditSender
	}
	return cfg
}

func loadConstraints() planner.Constraints {
	today := time.Now()
	workdayStart := clockOn(today, environment.StringOr("WORKDAY_START", "09:00"))
	workdayEnd := clockOn(today, environment.StringOr("WORKDAY_END", "18:00"))
	avoidAfter := clockOn(today, environment.StringOr("AVOID_DEEP_WORK_AFTER", "21:00"))
	sleepStart := clockOn(today, environment.StringOr("SLEEP_START", "23:00"))
	sleepEnd := clockOn(today.AddDate(0, 0, 1), environment.StringOr("SLEEP_END", "07:00"))

	return planner.Constraints{
		WorkdayStart:             workdayStart,
		WorkdayEnd:               workdayEnd,
		AvoidAfter:               avoidAfter,
		BreakEveryMinutes:        environment.IntOr("BREAK_EVERY_MINUTES", 90),
		BreakDurationMinutes:     environment.IntOr("BREAK_DURATION_MINUTES", 10),
		MaxDeepWorkMinutesPerDay: environment.IntOr("MAX_DEEP_WORK_MINUTES", 300),
		FreeSpaceBufferMinutes:   environment.IntOr("FREE_SPACE_BUFFER_MINUTES", 15),
		SleepStart:               sleepStart,
		SleepEnd:                 sleepEnd,
	}
}

func clockOn(day time.Time, hhmm string) time.Time {
	parts := strings.Split(hhmm, ":")
	hour, minute := 9, 0
	if len(parts) == 2 {
		if h, err := strconv.Atoi(parts[0]); err == nil {
			hour = h
		}
		if m, err := strconv.Atoi(parts[1]); err == nil {
			minute = m
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// getEnvFloat loads a float64 config value; environment has no FloatOr.
func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
