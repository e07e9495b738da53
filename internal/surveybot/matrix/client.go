// Package matrix connects the bot to Matrix rooms. Direct rooms (two joined
// members) are personal chats; every other room is a group chat. The room ID
// doubles as the reply token.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/money626/epidemic-servey-chatbot/common/trace"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/commands"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/observability"
)

// maxImageBytes caps images downloaded for re-upload.
const maxImageBytes = 10 << 20

// responder is the part of the command dispatcher the client needs.
type responder interface {
	Respond(ctx context.Context, m chat.Messenger, src chat.Source, text string) (*commands.Result, error)
}

type deliveryObserver interface {
	ObserveDelivery(transport, status string)
}

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined at start and receive a startup notice.
	Rooms []string
	// StartupNotice is sent to Rooms after joining; empty disables it.
	StartupNotice string
	// DB persists the sync position. When nil, every restart begins with an
	// initial sync whose history is skipped.
	DB         *sql.DB
	Dispatcher responder
	Observer   deliveryObserver
	// HTTPClient downloads images before they are uploaded to the homeserver.
	HTTPClient *http.Client
}

// Client wraps the Matrix client and implements chat.Messenger.
type Client struct {
	client     *mautrix.Client
	config     *Config
	httpClient *http.Client
	stopCh     chan struct{}
	done       chan struct{}
	started    bool
}

// New creates a new Matrix client
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}

	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
	} else {
		slog.Warn("matrix: no DB configured, sync position is not kept across restarts")
	}

	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		client:     client,
		config:     config,
		httpClient: hc,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start joins the configured rooms, announces the bot and syncs in the
// background until Stop is called or ctx is done.
func (c *Client) Start(ctx context.Context) error {
	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	c.registerHandlers(syncer)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
		if c.config.StartupNotice != "" {
			if err := c.SendNotice(ctx, roomID, c.config.StartupNotice); err != nil {
				slog.Warn("matrix: startup notice failed", "room", roomID, "err", err)
			}
		}
	}

	c.started = true
	go c.syncLoop(ctx)
	return nil
}

func (c *Client) registerHandlers(syncer *mautrix.DefaultSyncer) {
	syncer.OnSync(c.skipBacklog)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMembership)
}

// skipBacklog keeps commands already in room history from running again.
// The initial sync (no since token) only carries history, so its joined-room
// timelines are dropped; invites still go through.
func (c *Client) skipBacklog(ctx context.Context, resp *mautrix.RespSync, since string) bool {
	if since == "" {
		for _, room := range resp.Rooms.Join {
			room.Timeline.Events = nil
		}
		return true
	}
	return c.client.DontProcessOldEvents(ctx, resp, since)
}

func (c *Client) syncLoop(ctx context.Context) {
	defer close(c.done)
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.client.SyncWithContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		slog.Error("matrix: sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop stops syncing and waits for the sync loop to exit.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	close(c.stopCh)
	if !c.started {
		return
	}
	c.client.StopSync()
	<-c.done
}

// SendNotice sends a notice message (less intrusive than normal messages)
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// Reply sends msgs to the room named by replyToken, in order.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs []chat.Message) error {
	roomID := id.RoomID(replyToken)
	for _, m := range msgs {
		if m.Image == nil {
			if _, err := c.client.SendText(ctx, roomID, m.Text); err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}
			continue
		}
		if err := c.sendImage(ctx, roomID, m.Image.OriginalURL); err != nil {
			return err
		}
	}
	return nil
}

// sendImage re-hosts an image on the homeserver and posts it as m.image.
func (c *Client) sendImage(ctx context.Context, roomID id.RoomID, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	up, err := c.client.UploadBytes(ctx, data, contentType)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	content := event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    "image",
		URL:     up.ContentURI.CUString(),
		Info:    &event.FileInfo{MimeType: contentType, Size: len(data)},
	}
	if _, err := c.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content); err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	return nil
}

// contextFor classifies a room by its joined member count.
func (c *Client) contextFor(ctx context.Context, roomID id.RoomID) (chat.ContextType, error) {
	members, err := c.client.JoinedMembers(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("failed to list room members: %w", err)
	}
	if len(members.Joined) <= 2 {
		return chat.Personal, nil
	}
	return chat.Group, nil
}

func (c *Client) observe(status string) {
	if c.config.Observer != nil {
		c.config.Observer.ObserveDelivery("matrix", status)
	}
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}

	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := observability.WithTrace(ctx).With("room", evt.RoomID, "sender", evt.Sender)

	ctxType, err := c.contextFor(ctx, evt.RoomID)
	if err != nil {
		log.Error("matrix: cannot classify room", "err", err)
		c.observe("error")
		return
	}
	src := chat.Source{
		ChatUserID: evt.Sender.String(),
		Type:       ctxType,
		ReplyToken: evt.RoomID.String(),
	}
	if _, err := c.config.Dispatcher.Respond(ctx, c, src, msg.Body); err != nil {
		log.Error("matrix: event handling failed", "err", err)
		c.observe("error")
		return
	}
	c.observe("ok")
}

// handleMembership accepts invitations so users can open direct chats.
func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.config.UserID {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		slog.Warn("matrix: failed to accept invite", "room", evt.RoomID, "err", err)
	}
}

// joinRoom attempts to join a room
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
