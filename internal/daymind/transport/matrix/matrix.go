// Package matrix is a transport.Transport implementation backed by a Matrix
// homeserver. It only ever forwards plain-text messages received in one of
// its configured admin rooms; everything else (encryption, presence,
// reactions, non-text content) is out of scope.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/soraya-vance/daymind/internal/daymind/transport"
)

// Config configures Transport.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	AdminRooms  []string // room IDs the transport accepts commands from

	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and all room history is replayed on every restart.
	DB *sql.DB
}

// Transport implements transport.Transport against a Matrix homeserver.
type Transport struct {
	client *mautrix.Client
	config *Config
	stopCh chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Transport. It does not contact the homeserver until Start is
// called.
func New(config *Config) (*Transport, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	t := &Transport{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}

	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("matrix: using persistent sync store")
	} else {
		slog.Warn("matrix: no DB configured, using in-memory sync store (history replays on restart)")
	}

	return t, nil
}

// Start implements transport.Transport. It joins every configured admin
// room, then begins syncing in the background with exponential backoff --
// without retries a transient homeserver error would silently kill the sync
// goroutine and leave the transport deaf to all new messages.
func (t *Transport) Start(ctx context.Context, handler transport.Handler) error {
	slog.Warn("matrix: end-to-end encryption is not enabled; messages are transmitted in plaintext")

	syncer := t.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		t.handleEvent(ctx, evt, handler)
	})

	for _, roomID := range t.config.AdminRooms {
		if err := t.joinRoom(id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join admin room %s: %w", roomID, err)
		}
	}

	go t.syncLoop()
	return nil
}

func (t *Transport) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		if err := t.client.Sync(); err != nil {
			select {
			case <-t.stopCh:
				return
			default:
			}
			slog.Error("matrix: sync stopped, reconnecting", "err", err, "backoff", backoff)
			select {
			case <-t.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		// Sync returned nil -- only happens after a clean StopSync() call.
		return
	}
}

// Stop implements transport.Transport.
func (t *Transport) Stop() {
	close(t.stopCh)
	t.client.StopSync()
}

// Notify posts a one-off notice to roomID, independent of any in-flight
// command exchange. The audit package uses this to push event notifications
// to an admin room.
func (t *Transport) Notify(roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	_, err := t.client.SendMessageEvent(context.Background(), id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

func (t *Transport) handleEvent(ctx context.Context, evt *event.Event, handler transport.Handler) {
	if evt.Sender == id.UserID(t.config.UserID) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}

	if !t.isAdminRoom(evt.RoomID.String()) {
		return
	}

	if handler == nil {
		return
	}

	roomID := evt.RoomID
	env := transport.Envelope{
		ConversationID: roomID.String(),
		SenderID:       evt.Sender.String(),
		Text:           msgContent.Body,
	}
	handler(ctx, env, func(ctx context.Context, text string) error {
		return t.sendMessage(ctx, roomID, text)
	})
}

func (t *Transport) sendMessage(ctx context.Context, roomID id.RoomID, message string) error {
	_, err := t.client.SendText(ctx, roomID, message)
	if err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

func (t *Transport) isAdminRoom(roomID string) bool {
	for _, adminRoom := range t.config.AdminRooms {
		if adminRoom == roomID {
			return true
		}
	}
	return false
}

func (t *Transport) joinRoom(roomID id.RoomID) error {
	_, err := t.client.JoinRoomByID(context.Background(), roomID)
	if err != nil {
		// Homeservers return M_FORBIDDEN when the bot is already a member of
		// the room.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
