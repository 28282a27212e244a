// Package app wires together every daymind component into the running
// daemon: ingestion, plan regeneration, the chat command surface, and the
// operator-facing control HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/audit"
	"github.com/soraya-vance/daymind/internal/daymind/calendarstore"
	"github.com/soraya-vance/daymind/internal/daymind/commands"
	daymindconfig "github.com/soraya-vance/daymind/internal/daymind/config"
	"github.com/soraya-vance/daymind/internal/daymind/control"
	"github.com/soraya-vance/daymind/internal/daymind/coordinator"
	"github.com/soraya-vance/daymind/internal/daymind/ingestion"
	"github.com/soraya-vance/daymind/internal/daymind/llm"
	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/parser"
	"github.com/soraya-vance/daymind/internal/daymind/planapply"
	"github.com/soraya-vance/daymind/internal/daymind/planner"
	"github.com/soraya-vance/daymind/internal/daymind/rules"
	"github.com/soraya-vance/daymind/internal/daymind/scheduler"
	"github.com/soraya-vance/daymind/internal/daymind/store"
	"github.com/soraya-vance/daymind/internal/daymind/transport"
)

// Config holds everything needed to build an App. Provider HTTP clients,
// the calendar backend, the chat transport, and the LLM client are all
// consumed as interfaces (spec §6): this package never reaches across the
// network itself.
type Config struct {
	DatabasePath string

	// TrustedSenders feeds ParserPipeline's rule-based extraction path.
	TrustedSenders []string

	// ProviderClients supplies one ProviderClient per source the operator
	// has configured credentials for (gmail, outlook, ...). An account whose
	// provider has no entry here fails to build its ingestion service; the
	// coordinator records that as a per-account failure and goes on with the
	// other accounts.
	ProviderClients map[model.Source]ingestion.ProviderClient
	CursorCodecs    map[model.Source]ingestion.CursorCodec

	LLM             llm.Client
	ConfidenceFloor float64

	Calendar     calendarstore.Store
	CalendarName string

	Transport transport.Transport
	// AuditSender optionally mirrors select audit events to a chat room;
	// nil disables room notifications without disabling the durable log.
	AuditSender audit.Sender
	AuditRoomID string

	Constraints planner.Constraints
	Scheduler   scheduler.Config

	// HTTPAddr is the TCP address for the operator control surface (e.g.
	// ":8080"). Empty disables it.
	HTTPAddr string

	// DefaultsFile optionally points at a YAML file (config.Defaults shape)
	// used to seed the preferences table the first time it is empty. A
	// missing path or file is not an error.
	DefaultsFile string
}

// App is the running daymind agent: one store, one coordinator, one
// plan-apply service, one command service, one transport.
type App struct {
	config      *Config
	store       *store.Store
	coordinator *coordinator.Coordinator
	planapply   *planapply.Service
	commands    *commands.Service
	notifier    audit.Notifier
	control     *control.Server
	cancel      context.CancelFunc
}

// New wires every component. Accounts are read from the store, not from
// Config, so enabling/disabling an account never requires a restart.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cfgStore := daymindconfig.New(db)
	if config.DefaultsFile != "" {
		dir, file := filepath.Split(config.DefaultsFile)
		if dir == "" {
			dir = "."
		}
		if defaults, err := daymindconfig.LoadDefaultsFile(os.DirFS(dir), file); err != nil {
			slog.Warn("failed to load config defaults file", "path", config.DefaultsFile, "err", err)
		} else if err := daymindconfig.SeedIfEmpty(context.Background(), cfgStore, defaults); err != nil {
			slog.Warn("failed to seed preferences from defaults file", "err", err)
		}
	}
	applyPreferenceOverrides(cfgStore, config)

	engine := rules.New()
	pipeline := parser.New(config.TrustedSenders)

	regen := planapply.IngestionRegenerator{}

	factory := func(account model.Account) (*ingestion.Service, error) {
		client, ok := config.ProviderClients[account.Provider]
		if !ok {
			return nil, fmt.Errorf("no provider client configured for %s", account.Provider)
		}
		codec, ok := config.CursorCodecs[account.Provider]
		if !ok {
			return nil, fmt.Errorf("no cursor codec configured for %s", account.Provider)
		}
		return ingestion.New(
			string(account.Provider), account.AccountID,
			client, codec, pipeline, engine, config.LLM, db, regen, config.ConfidenceFloor,
		), nil
	}
	coord := coordinator.New(db, factory)

	var calendarAdapter planapply.CalendarStore
	if config.Calendar != nil {
		calendarAdapter = &calendarstore.CreateEventAdapter{Store: config.Calendar, CalendarName: config.CalendarName}
	}
	applyService := planapply.New(db, calendarAdapter, config.Constraints, time.Now)
	regen.Service = applyService

	cmdService := commands.New(db, calendarAdapter, engine)

	var notifier audit.Notifier = audit.Noop{}
	if config.AuditSender != nil && config.AuditRoomID != "" {
		notifier = audit.NewRoomNotifier(config.AuditSender, config.AuditRoomID)
		slog.Info("audit room notifier ready", "room", config.AuditRoomID)
	}

	var controlServer *control.Server
	if config.HTTPAddr != "" {
		controlServer = control.New(config.HTTPAddr, cmdService, db)
		slog.Info("control server configured", "addr", config.HTTPAddr)
	}

	return &App{
		config:      config,
		store:       db,
		coordinator: coord,
		planapply:   applyService,
		commands:    cmdService,
		notifier:    notifier,
		control:     controlServer,
	}, nil
}

// Run starts the transport, the periodic sync loop, and the control server,
// then blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	if a.control != nil {
		if err := a.control.Start(ctx); err != nil {
			slog.Warn("control server failed to start; continuing without it", "err", err)
		}
	}

	if a.config.Transport != nil {
		slog.Info("starting chat transport")
		if err := a.config.Transport.Start(ctx, a.handleCommand); err != nil {
			return fmt.Errorf("failed to start chat transport: %w", err)
		}
	}

	go a.syncLoop(ctx)

	slog.Info("daymind is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop tears down every running subsystem.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.config.Transport != nil {
		slog.Info("stopping chat transport")
		a.config.Transport.Stop()
	}
	if a.control != nil {
		slog.Info("stopping control server")
		a.control.Stop()
	}
	slog.Info("closing database")
	a.store.Close()
}

// HandleCommand runs one chat-style command (today/add/move/undo/help)
// through CommandService, for the --plan one-shot CLI mode and the control
// HTTP server.
func (a *App) HandleCommand(ctx context.Context, text string) (commands.Result, error) {
	return a.commands.Handle(ctx, text, time.Now())
}

// SyncOnce runs one coordinator pass across every enabled account, for the
// --sync-live-once one-shot CLI mode.
func (a *App) SyncOnce(ctx context.Context) (coordinator.Summary, error) {
	return a.coordinator.SyncAll(ctx)
}

// syncLoop drives the AdaptiveScheduler: sync every enabled account, fold
// the result into the scheduler state, sleep, repeat.
func (a *App) syncLoop(ctx context.Context) {
	state := scheduler.State{Name: scheduler.StateNormal}
	for {
		summary, err := a.coordinator.SyncAll(ctx)
		fetched := 0
		for _, r := range summary.Results {
			fetched += r.Fetched
		}
		for _, f := range summary.Failures {
			slog.Warn("account sync failed", "provider", f.Provider, "account", f.AccountID, "reason", f.Reason)
			a.notifier.Notify(ctx, audit.Event{
				Kind:      audit.KindProviderAuthFailed,
				AccountID: f.AccountID,
				Target:    f.Provider,
				Message:   f.Reason,
			})
		}
		state = scheduler.Advance(fetched, err, state.RetryCount)

		interval := scheduler.NextInterval(state, a.config.Scheduler, time.Now().UnixNano())
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval.Sleep()):
		}
	}
}

// handleCommand adapts a transport.Envelope into a CommandService call and
// replies through the envelope's callback.
func (a *App) handleCommand(ctx context.Context, env transport.Envelope, reply transport.ReplyFunc) {
	result, err := a.commands.Handle(ctx, env.Text, time.Now())
	if err != nil {
		if replyErr := reply(ctx, fmt.Sprintf("error: %s", err)); replyErr != nil {
			slog.Error("failed to send error reply", "conversation", env.ConversationID, "err", replyErr)
		}
		return
	}

	text := markdownToHTML(result.Text)
	if err := reply(ctx, text); err != nil {
		slog.Error("failed to send reply", "conversation", env.ConversationID, "err", err)
	}

	kind := audit.KindCommandApplied
	if result.RequiresConfirmation {
		kind = audit.KindCommandRejected
	}
	a.notifier.Notify(ctx, audit.Event{
		Kind:    kind,
		Target:  env.ConversationID,
		Message: result.Text,
	})
}

// applyPreferenceOverrides pulls operator-tunable knobs out of the
// preferences table and layers them over the startup Config, so a value
// changed through the config store takes effect on the next restart without
// an environment variable edit.
func applyPreferenceOverrides(cfgStore daymindconfig.Store, cfg *Config) {
	ctx := context.Background()
	if raw, err := cfgStore.Get(ctx, "confidence_floor"); err == nil {
		if v, parseErr := strconv.ParseFloat(raw, 64); parseErr == nil {
			cfg.ConfidenceFloor = v
		}
	} else if !errors.Is(err, daymindconfig.ErrNotFound) {
		slog.Warn("app: failed to read confidence_floor preference", "err", err)
	}
	if raw, err := cfgStore.Get(ctx, "calendar_name"); err == nil && raw != "" {
		cfg.CalendarName = raw
	} else if err != nil && !errors.Is(err, daymindconfig.ErrNotFound) {
		slog.Warn("app: failed to read calendar_name preference", "err", err)
	}
}

// markdownToHTML converts the small subset of Markdown produced by
// CommandService replies into HTML, for chat transports that render
// formatted messages (e.g. Matrix's org.matrix.custom.html).
//
// Supported constructs (in order of processing):
//   - Fenced code blocks  ```…```  → <pre><code>…</code></pre>
//   - Inline code  `…`             → <code>…</code>
//   - Bold  **…**                  → <strong>…</strong>
//   - Newlines                     → <br/>
func markdownToHTML(md string) string {
	var out strings.Builder
	lines := strings.Split(md, "\n")
	inCode := false
	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if !inCode {
				out.WriteString("<pre><code>")
				inCode = true
			} else {
				out.WriteString("</code></pre>")
				inCode = false
			}
			continue
		}
		if inCode {
			escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(line)
			out.WriteString(escaped)
			out.WriteString("\n")
		} else {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	result := out.String()

	result = replaceDelimited(result, "`", "<code>", "</code>")
	result = replaceDelimited(result, "**", "<strong>", "</strong>")
	result = strings.ReplaceAll(result, "\n", "<br/>")

	return result
}

// replaceDelimited replaces occurrences of delim…delim with open+content+close.
// Only complete pairs are replaced; an unmatched opener is left as-is.
func replaceDelimited(s, delim, open, closeTag string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start + len(delim)
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(closeTag)
		s = s[end+len(delim):]
	}
	return b.String()
}
