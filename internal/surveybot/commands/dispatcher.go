// Package commands turns inbound chat text into roster operations.
//
// The Dispatcher classifies text against an ordered table of command
// literals. Each table entry carries a Handler that may be wrapped in one or
// more guards (see guards.go); the Dispatcher itself never checks roles or
// contexts.
package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/observability"
)

// DefaultMarker is the leading character that turns a message into a command.
const DefaultMarker = "@"

// Name identifies a command.
type Name string

const (
	CmdQuickReply   Name = "quick-reply"
	CmdReplyByName  Name = "reply-by-name"
	CmdGetChatID    Name = "get-chat-id"
	CmdAuth         Name = "authenticate-as-admin"
	CmdBind         Name = "bind-name"
	CmdHelp         Name = "help"
	CmdAddUser      Name = "add-user"
	CmdRemoveUser   Name = "remove-user"
	CmdAddAdmin     Name = "add-admin"
	CmdListUsers    Name = "list-users"
	CmdReport       Name = "generate-report"
	CmdClearReplies Name = "clear-replies"
	CmdFootprint    Name = "fetch-footprint"
	CmdStatistics   Name = "generate-chart"
	cmdEasterEgg    Name = "easter-egg"
)

// Command literals, matched case-insensitively after the marker.
const (
	litYes        = "y"
	litNo         = "n"
	litYesPrefix  = "y@"
	litNoPrefix   = "n@"
	litID         = "id"
	litAuth       = "auth@"
	litBind       = "bind@"
	litHelp       = "help"
	litAddUser    = "adduser@"
	litRemoveUser = "removeuser@"
	litAddAdmin   = "addadmin@"
	litList       = "list"
	litReport     = "report"
	litClear      = "clear"
	litFootprint  = "footprint"
	litStatistics = "statistics"
)

// Request is a classified command handed to a Handler.
type Request struct {
	Source  chat.Source
	Command Name
	// Body is the trimmed text after the marker, in the sender's casing.
	Body string
	// Arg is the part of Body after a prefix literal; empty for equality matches.
	Arg string

	// rejection is set by a guard that refused the request.
	rejection error
}

// Handler runs one command and returns the replies to send.
type Handler func(ctx context.Context, req *Request) ([]chat.Message, error)

// Observer receives one notification per dispatched command.
type Observer interface {
	ObserveCommand(command, outcome string)
}

type matchKind int

const (
	matchEquals matchKind = iota
	matchPrefix
)

type route struct {
	kind    matchKind
	literal string
	name    Name
	handler Handler
}

// match compares the lower-cased body with the literal. Only simple case
// mapping is applied, so "ſ" does not stand in for "s".
func (r route) match(body string) (arg string, ok bool) {
	switch r.kind {
	case matchEquals:
		return "", strings.ToLower(body) == r.literal
	case matchPrefix:
		return cutLowerPrefix(body, r.literal)
	}
	return "", false
}

// cutLowerPrefix strips prefix from body when body lower-cased starts with it
// and returns the rest in its original case.
func cutLowerPrefix(body, prefix string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(body), prefix) {
		return "", false
	}
	n := 0
	for i, r := range body {
		if n == len(prefix) {
			return body[i:], true
		}
		if n > len(prefix) {
			return "", false
		}
		n += len(strings.ToLower(string(r)))
	}
	return "", n == len(prefix)
}

// Result describes what Dispatch did with a message.
type Result struct {
	// Matched is false when the text was ignored.
	Matched bool
	Command Name
	Replies []chat.Message
	// Rejection is the guard refusal, if any: ErrPermissionDenied,
	// ErrWrongContext or store.ErrNotBound.
	Rejection error
}

// Dispatcher routes inbound text to command handlers.
type Dispatcher struct {
	marker   string
	routes   []route
	observer Observer
}

// NewDispatcher builds the command table over h. An empty marker means
// DefaultMarker; observer may be nil.
func NewDispatcher(marker string, h *Handlers, observer Observer) *Dispatcher {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Dispatcher{
		marker:   marker,
		routes:   h.routes(),
		observer: observer,
	}
}

// Classify returns the command and argument for text without running
// anything. ok is false for non-commands and unknown commands.
func (d *Dispatcher) Classify(text string) (name Name, arg string, ok bool) {
	r, _, arg, ok := d.lookup(text)
	return r.name, arg, ok
}

func (d *Dispatcher) lookup(text string) (r route, body, arg string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, d.marker) {
		return route{}, "", "", false
	}
	body = strings.TrimSpace(strings.TrimPrefix(trimmed, d.marker))
	for _, r := range d.routes {
		if arg, ok := r.match(body); ok {
			return r, body, arg, true
		}
	}
	return route{}, body, "", false
}

// Dispatch classifies text and runs the matching handler. Unknown commands
// and ordinary chat produce an unmatched Result and no error. Handler errors
// are returned as-is; guard refusals are not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, src chat.Source, text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, d.marker) {
		if strings.EqualFold(trimmed, easterEggTrigger) {
			return &Result{
				Matched: true,
				Command: cmdEasterEgg,
				Replies: []chat.Message{chat.Text(easterEggReply)},
			}, nil
		}
		return &Result{}, nil
	}

	r, body, arg, ok := d.lookup(trimmed)
	if !ok {
		return &Result{}, nil
	}
	name := r.name
	req := &Request{Source: src, Command: name, Body: body, Arg: arg}
	log := observability.WithTrace(ctx)

	replies, err := r.handler(ctx, req)
	res := &Result{Matched: true, Command: name, Replies: replies, Rejection: req.rejection}

	switch {
	case err != nil:
		log.Error("command failed", "command", name, "sender", src.ChatUserID, "err", err)
		d.observe(name, "error")
		return res, err
	case req.rejection != nil:
		log.Info("command rejected", "command", name, "sender", src.ChatUserID, "reason", req.rejection)
		d.observe(name, rejectionOutcome(req.rejection))
	default:
		log.Info("command handled", "command", name, "sender", src.ChatUserID, "replies", len(replies))
		d.observe(name, "ok")
	}
	return res, nil
}

// Respond dispatches text and delivers any replies through m. Handler errors
// are returned without a reply being sent.
func (d *Dispatcher) Respond(ctx context.Context, m chat.Messenger, src chat.Source, text string) (*Result, error) {
	res, err := d.Dispatch(ctx, src, text)
	if err != nil {
		return res, err
	}
	if len(res.Replies) == 0 {
		return res, nil
	}
	if err := m.Reply(ctx, src.ReplyToken, res.Replies); err != nil {
		return res, err
	}
	return res, nil
}

func (d *Dispatcher) observe(name Name, outcome string) {
	if d.observer != nil {
		d.observer.ObserveCommand(string(name), outcome)
	}
}

func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrWrongContext):
		return "wrong_context"
	default:
		return "not_bound"
	}
}
