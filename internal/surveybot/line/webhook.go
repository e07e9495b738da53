// Package line connects the bot to the LINE Messaging API: an HTTP handler
// for signed webhook callbacks and a Messenger that answers through the
// reply endpoint.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/money626/epidemic-servey-chatbot/common/trace"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/commands"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/observability"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the request body.
const SignatureHeader = "X-Line-Signature"

// maxBodyBytes caps inbound callback bodies.
const maxBodyBytes = 1 * 1024 * 1024 // 1 MiB

// responder is the part of the command dispatcher the webhook needs.
type responder interface {
	Respond(ctx context.Context, m chat.Messenger, src chat.Source, text string) (*commands.Result, error)
}

// deliveryObserver counts processed callbacks.
type deliveryObserver interface {
	ObserveDelivery(transport, status string)
}

// WebhookConfig holds the dependencies of a Webhook.
type WebhookConfig struct {
	// ChannelSecret keys the callback signature. When empty, every callback
	// is rejected.
	ChannelSecret string
	Dispatcher    responder
	Messenger     chat.Messenger
	Observer      deliveryObserver
}

// Webhook handles POST callbacks from the LINE platform.
type Webhook struct {
	secret     string
	dispatcher responder
	messenger  chat.Messenger
	observer   deliveryObserver
}

// NewWebhook creates a Webhook.
func NewWebhook(cfg WebhookConfig) *Webhook {
	return &Webhook{
		secret:     cfg.ChannelSecret,
		dispatcher: cfg.Dispatcher,
		messenger:  cfg.Messenger,
		observer:   cfg.Observer,
	}
}

func (w *Webhook) observe(status string) {
	if w.observer != nil {
		w.observer.ObserveDelivery("line", status)
	}
}

// ServeHTTP verifies, validates and dispatches one callback. Text message
// events are handled in order; the first handler error stops processing and
// answers 500.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, _ := trace.Ensure(r.Context())
	log := observability.WithTrace(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("line: failed to read request body", "err", err)
		http.Error(rw, "failed to read request body", http.StatusBadRequest)
		w.observe("bad_request")
		return
	}

	cb, err := w.parse(r, body)
	if errors.Is(err, webhook.ErrInvalidSignature) {
		log.Info("line: signature check failed")
		http.Error(rw, "Invalid signature. Please check your channel access token/channel secret.", http.StatusBadRequest)
		w.observe("bad_signature")
		return
	}
	if err != nil {
		log.Info("line: malformed callback", "err", err)
		http.Error(rw, "malformed callback", http.StatusBadRequest)
		w.observe("bad_request")
		return
	}

	for i, ev := range cb.Events {
		src, text, ok := textMessage(ev)
		if !ok {
			log.Debug("line: skipping event", "index", i, "type", ev.GetType())
			continue
		}
		res, err := w.dispatcher.Respond(ctx, w.messenger, src, text)
		if err != nil {
			log.Error("line: event handling failed", "index", i, "sender", src.ChatUserID, "err", err)
			http.Error(rw, "internal server error", http.StatusInternalServerError)
			w.observe("error")
			return
		}
		if res.Matched {
			log.Debug("line: event handled", "index", i, "command", res.Command)
		}
	}

	log.Debug("line: callback processed", "events", len(cb.Events))
	w.observe("ok")
	rw.Write([]byte("OK"))
}

// parse checks the signature of body and decodes it. Callbacks the SDK
// accepts but the bot cannot answer, such as message events without a reply
// token, fail schema validation.
func (w *Webhook) parse(r *http.Request, body []byte) (*webhook.CallbackRequest, error) {
	if w.secret == "" {
		return nil, webhook.ErrInvalidSignature
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	cb, err := webhook.ParseRequest(w.secret, r)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if err := callbackValidator.Validate(raw); err != nil {
		return nil, fmt.Errorf("validate callback: %w", err)
	}
	return cb, nil
}

// textMessage extracts the sender and text of a text message event. User
// sources are personal chats; groups and rooms are group chats.
func textMessage(ev webhook.EventInterface) (chat.Source, string, bool) {
	e, ok := ev.(webhook.MessageEvent)
	if !ok {
		return chat.Source{}, "", false
	}
	msg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return chat.Source{}, "", false
	}
	src := chat.Source{Type: chat.Group, ReplyToken: e.ReplyToken}
	switch s := e.Source.(type) {
	case webhook.UserSource:
		src.ChatUserID, src.Type = s.UserId, chat.Personal
	case webhook.GroupSource:
		src.ChatUserID = s.UserId
	case webhook.RoomSource:
		src.ChatUserID = s.UserId
	default:
		return chat.Source{}, "", false
	}
	return src, msg.Text, true
}
