// Package ingestion implements one IngestionService per (provider, account):
// cursor-based incremental fetch, parse, rules gate, LLM extraction, and
// atomic upsert.
package ingestion

import (
	"context"
	"fmt"
	"sort"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/parser"
	"github.com/soraya-vance/daymind/internal/daymind/rules"
)

// ProviderClient abstracts the provider HTTP surface (Gmail REST, Microsoft
// Graph). It is consumed, never implemented, by this package.
type ProviderClient interface {
	FetchMessages(ctx context.Context, cursor Cursor) (messages []parser.InboundMessage, nextCursor Cursor, err error)
}

// Cursor is the opaque, provider-defined resumption point. CursorCodec
// implementations know how to compare and order it.
type Cursor struct {
	Primary   string
	Secondary string
}

// CursorCodec orders and compares cursors per the provider's tuple
// semantics (Gmail: internalDateSeconds+message_id; Outlook: ISO-8601
// receivedDateTime+message_id).
type CursorCodec interface {
	// Of derives the (primary, secondary) tuple for one fetched message,
	// used both to sort a page and to compute the next cursor.
	Of(msg parser.InboundMessage) Cursor
	// Less reports whether a sorts before b under this provider's tuple
	// ordering.
	Less(a, b Cursor) bool
}

// Store is the subset of store.Store this service needs.
type Store interface {
	GetCursor(ctx context.Context, provider, accountID string) (*model.ProviderCursor, error)
	UpsertCursor(ctx context.Context, c model.ProviderCursor) error
	// UpsertUpdatesAndTasks commits allParsedCards and the tasks extracted
	// from them in one transaction, so a failure partway through never
	// leaves update rows committed without their tasks.
	UpsertUpdatesAndTasks(ctx context.Context, cards []model.UpdateCard, tasks []model.Task) (int, error)
}

// Extractor is the LLMClient capability this service needs: turning
// approved update cards into Tasks.
type Extractor interface {
	ExtractTasks(ctx context.Context, cards []model.UpdateCard) ([]model.Task, error)
}

// Regenerator is invoked after a successful sync that produced at least one
// update, so the plan reflects newly ingested tasks without waiting for the
// next scheduled tick.
type Regenerator interface {
	Regenerate(ctx context.Context, trigger string) error
}

// Result is the per-account outcome of one sync() call.
type Result struct {
	Fetched       int
	Parsed        int
	StoredUpdates int
	TouchedTasks  int
	NextCursor    Cursor
}

// Service is one IngestionService instance, scoped to a single (provider,
// account) pair. A Service processes at most one sync() call at a time; the
// caller is responsible for not invoking Sync concurrently on the same
// instance.
type Service struct {
	provider  string
	accountID string
	client    ProviderClient
	codec     CursorCodec
	pipeline  *parser.Pipeline
	engine    *rules.Engine
	extractor Extractor
	store     Store
	regen     Regenerator

	confidenceThreshold float64
}

// New builds a Service for one (provider, account). regen may be nil if the
// caller wants to trigger regeneration itself.
func New(provider, accountID string, client ProviderClient, codec CursorCodec, pipeline *parser.Pipeline, engine *rules.Engine, extractor Extractor, store Store, regen Regenerator, confidenceThreshold float64) *Service {
	return &Service{
		provider:            provider,
		accountID:           accountID,
		client:              client,
		codec:               codec,
		pipeline:            pipeline,
		engine:              engine,
		extractor:           extractor,
		store:               store,
		regen:               regen,
		confidenceThreshold: confidenceThreshold,
	}
}

// Sync performs one ingestion pass for one account. Updates and the tasks
// extracted from them are stored in one transaction, and the cursor is
// advanced only after that transaction commits, so a stored cursor never runs
// ahead of the rows it covers. The cursor write and the plan regeneration
// that follows are separate steps; a failure in either returns an error and
// leaves the rows already stored in place.
func (s *Service) Sync(ctx context.Context) (Result, error) {
	cursorRow, err := s.store.GetCursor(ctx, s.provider, s.accountID)
	cursor := Cursor{}
	if err == nil {
		cursor = Cursor{Primary: cursorRow.Primary, Secondary: cursorRow.Secondary}
	}

	messages, nextCursor, err := s.client.FetchMessages(ctx, cursor)
	if err != nil {
		return Result{}, fmt.Errorf("fetch messages for %s/%s: %w", s.provider, s.accountID, err)
	}
	messages = dedupeByProviderMessageID(messages)
	sort.Slice(messages, func(i, j int) bool {
		return s.codec.Less(s.codec.Of(messages[i]), s.codec.Of(messages[j]))
	})

	var allCards []model.UpdateCard
	var approvedCards []model.UpdateCard
	for _, msg := range messages {
		msg.AccountID = s.accountID
		parsed := s.pipeline.Parse(msg)
		for _, p := range parsed {
			allCards = append(allCards, p.Card)
			result := s.engine.ValidateUpdate(p.Card, rules.UpdateContext{Threshold: s.confidenceThreshold})
			if result.Decision == rules.DecisionApproved {
				approvedCards = append(approvedCards, p.Card)
			}
		}
	}

	var tasks []model.Task
	if len(approvedCards) > 0 {
		tasks, err = s.extractor.ExtractTasks(ctx, approvedCards)
		if err != nil {
			return Result{}, fmt.Errorf("extract tasks for %s/%s: %w", s.provider, s.accountID, err)
		}
	}

	storedUpdates := 0
	if len(allCards) > 0 || len(tasks) > 0 {
		storedUpdates, err = s.store.UpsertUpdatesAndTasks(ctx, allCards, tasks)
		if err != nil {
			return Result{}, fmt.Errorf("upsert updates and tasks for %s/%s: %w", s.provider, s.accountID, err)
		}
	}

	if err := s.store.UpsertCursor(ctx, model.ProviderCursor{
		Provider:  s.provider,
		AccountID: s.accountID,
		Primary:   nextCursor.Primary,
		Secondary: nextCursor.Secondary,
	}); err != nil {
		return Result{}, fmt.Errorf("advance cursor for %s/%s: %w", s.provider, s.accountID, err)
	}

	if len(messages) > 0 && s.regen != nil {
		if err := s.regen.Regenerate(ctx, s.provider+"_sync"); err != nil {
			return Result{}, fmt.Errorf("regenerate plan after %s/%s sync: %w", s.provider, s.accountID, err)
		}
	}

	return Result{
		Fetched:       len(messages),
		Parsed:        len(allCards),
		StoredUpdates: storedUpdates,
		TouchedTasks:  len(tasks),
		NextCursor:    nextCursor,
	}, nil
}

func dedupeByProviderMessageID(messages []parser.InboundMessage) []parser.InboundMessage {
	seen := make(map[string]bool, len(messages))
	out := make([]parser.InboundMessage, 0, len(messages))
	for _, m := range messages {
		if seen[m.ProviderMessageID] {
			continue
		}
		seen[m.ProviderMessageID] = true
		out = append(out, m)
	}
	return out
}

