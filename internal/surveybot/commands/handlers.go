package commands

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/store"
)

// DefaultFootprintOrigin is prepended to the relative image paths returned by
// the footprint fetcher.
const DefaultFootprintOrigin = "https://www.cdc.gov.tw"

// RosterStore is the roster the handlers read and mutate.
type RosterStore interface {
	IsAdmin(ctx context.Context, chatUserID string) (bool, error)
	AddAdmin(ctx context.Context, chatUserID string) error
	ListUsers(ctx context.Context) ([]*store.User, error)
	AddUser(ctx context.Context, name string) error
	RemoveUser(ctx context.Context, name string) error
	IsBound(ctx context.Context, chatUserID string) (bool, error)
	BindUser(ctx context.Context, chatUserID, name string) error
	BoundKey(ctx context.Context, chatUserID string) (string, error)
	NameForKey(ctx context.Context, key string) (string, error)
	SetOverlapByName(ctx context.Context, name string, overlap bool) error
	SetOverlapByKey(ctx context.Context, key string, overlap bool) error
	ClearAllOverlap(ctx context.Context) error
}

// FootprintFetcher returns the image paths of the newest footprint bulletin.
type FootprintFetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// ChartRenderer draws the reply statistics and returns the public image URL.
type ChartRenderer interface {
	Render(ctx context.Context, overlap, noOverlap, notReplied int) (string, error)
}

// HandlersConfig holds the dependencies of Handlers.
type HandlersConfig struct {
	Store     RosterStore
	Footprint FootprintFetcher
	Chart     ChartRenderer
	// AdminSecret is the password accepted by the auth command. When empty,
	// authentication always fails.
	AdminSecret string
	// FootprintOrigin defaults to DefaultFootprintOrigin.
	FootprintOrigin string
}

// Handlers holds all command handlers and dependencies
type Handlers struct {
	store           RosterStore
	footprint       FootprintFetcher
	chart           ChartRenderer
	adminSecret     string
	footprintOrigin string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(cfg HandlersConfig) *Handlers {
	origin := strings.TrimRight(cfg.FootprintOrigin, "/")
	if origin == "" {
		origin = DefaultFootprintOrigin
	}
	return &Handlers{
		store:           cfg.Store,
		footprint:       cfg.Footprint,
		chart:           cfg.Chart,
		adminSecret:     cfg.AdminSecret,
		footprintOrigin: origin,
	}
}

// routes is the ordered command table. Order matters: the bare y/n forms
// must be tried before the y@/n@ prefixes.
func (h *Handlers) routes() []route {
	admin := func(next Handler) Handler { return AdminOnly(h.store, next) }
	return []route{
		{matchEquals, litYes, CmdQuickReply, BoundOnly(h.store, h.HandleQuickReply)},
		{matchEquals, litNo, CmdQuickReply, BoundOnly(h.store, h.HandleQuickReply)},
		{matchPrefix, litYesPrefix, CmdReplyByName, h.HandleReplyByName},
		{matchPrefix, litNoPrefix, CmdReplyByName, h.HandleReplyByName},
		{matchEquals, litID, CmdGetChatID, PersonalOnly(h.HandleGetChatID)},
		{matchPrefix, litAuth, CmdAuth, PersonalOnly(h.HandleAuth)},
		{matchPrefix, litBind, CmdBind, GroupOnly(h.HandleBind)},
		{matchEquals, litHelp, CmdHelp, h.HandleHelp},
		{matchPrefix, litAddUser, CmdAddUser, admin(h.HandleAddUser)},
		{matchPrefix, litRemoveUser, CmdRemoveUser, admin(h.HandleRemoveUser)},
		{matchPrefix, litAddAdmin, CmdAddAdmin, admin(h.HandleAddAdmin)},
		{matchEquals, litList, CmdListUsers, admin(h.HandleListUsers)},
		{matchEquals, litReport, CmdReport, admin(h.HandleReport)},
		{matchEquals, litClear, CmdClearReplies, admin(h.HandleClearReplies)},
		{matchEquals, litFootprint, CmdFootprint, admin(h.HandleFootprint)},
		{matchEquals, litStatistics, CmdStatistics, admin(h.HandleStatistics)},
	}
}

func text(s string) []chat.Message {
	return []chat.Message{chat.Text(s)}
}

func replyf(format string, args ...any) []chat.Message {
	return text(fmt.Sprintf(format, args...))
}

// answer reports whether a reply command body starts with "y".
func answer(body string) bool {
	return len(body) > 0 && (body[0] == 'y' || body[0] == 'Y')
}

func overlapReply(name string, overlap bool) []chat.Message {
	if overlap {
		return replyf(overlapMessageFormat, name)
	}
	return replyf(noOverlapMessageFormat, name)
}

// HandleAddUser puts a name on the roster. Adding an existing name still
// reports success.
func (h *Handlers) HandleAddUser(ctx context.Context, req *Request) ([]chat.Message, error) {
	if err := h.store.AddUser(ctx, req.Arg); err != nil {
		return nil, err
	}
	return replyf(addUserMessageFormat, req.Arg), nil
}

// HandleRemoveUser removes a name from the roster. An unknown name is
// returned as an error and nothing is sent back to the chat.
func (h *Handlers) HandleRemoveUser(ctx context.Context, req *Request) ([]chat.Message, error) {
	if err := h.store.RemoveUser(ctx, req.Arg); err != nil {
		return nil, fmt.Errorf("remove user: %w", err)
	}
	return replyf(removeUserMessageFormat, req.Arg), nil
}

// HandleAddAdmin promotes the chat identity given as argument.
func (h *Handlers) HandleAddAdmin(ctx context.Context, req *Request) ([]chat.Message, error) {
	if err := h.store.AddAdmin(ctx, req.Arg); err != nil {
		return nil, err
	}
	return text(AddAdminMessage), nil
}

// HandleListUsers lists roster names, one per line.
func (h *Handlers) HandleListUsers(ctx context.Context, req *Request) ([]chat.Message, error) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return text(listUsersHeader + strings.Join(names, "\n")), nil
}

// tally counts replies in roster order.
type tally struct {
	overlap    int
	noOverlap  int
	notReplied []string
}

func (h *Handlers) tally(ctx context.Context) (*tally, error) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	t := &tally{}
	for _, u := range users {
		switch {
		case !u.Overlap.Valid:
			t.notReplied = append(t.notReplied, u.Name)
		case u.Overlap.Bool:
			t.overlap++
		default:
			t.noOverlap++
		}
	}
	return t, nil
}

// HandleReport summarises replies without changing anything.
func (h *Handlers) HandleReport(ctx context.Context, req *Request) ([]chat.Message, error) {
	t, err := h.tally(ctx)
	if err != nil {
		return nil, err
	}
	lines := []string{
		fmt.Sprintf("無足跡重疊：%d人", t.noOverlap),
		fmt.Sprintf("有足跡重疊：%d人", t.overlap),
		"",
		"-------------------------",
		fmt.Sprintf("尚未回覆：%d人", len(t.notReplied)),
		strings.Join(t.notReplied, ","),
		"-------------------------",
	}
	return text(strings.Join(lines, "\n")), nil
}

// HandleClearReplies resets every reply to "not replied".
func (h *Handlers) HandleClearReplies(ctx context.Context, req *Request) ([]chat.Message, error) {
	if err := h.store.ClearAllOverlap(ctx); err != nil {
		return nil, err
	}
	return text(ClearRepliesMessage), nil
}

// HandleReplyByName records a reply for the name given after "y@" or "n@".
func (h *Handlers) HandleReplyByName(ctx context.Context, req *Request) ([]chat.Message, error) {
	overlap := answer(req.Body)
	if err := h.store.SetOverlapByName(ctx, req.Arg, overlap); err != nil {
		return nil, fmt.Errorf("reply by name: %w", err)
	}
	return overlapReply(req.Arg, overlap), nil
}

// HandleHelp shows available commands
func (h *Handlers) HandleHelp(ctx context.Context, req *Request) ([]chat.Message, error) {
	return text(helpText), nil
}

// HandleAuth promotes the sender when the argument equals the admin secret.
func (h *Handlers) HandleAuth(ctx context.Context, req *Request) ([]chat.Message, error) {
	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Arg), []byte(h.adminSecret)) != 1 {
		return text(AuthFailureMessage), nil
	}
	if err := h.store.AddAdmin(ctx, req.Source.ChatUserID); err != nil {
		return nil, err
	}
	return text(AuthSuccessMessage), nil
}

// HandleGetChatID echoes the sender's chat identity.
func (h *Handlers) HandleGetChatID(ctx context.Context, req *Request) ([]chat.Message, error) {
	return text(req.Source.ChatUserID), nil
}

// HandleBind binds the sender to a roster name. Unknown names get a friendly
// reply instead of an error.
func (h *Handlers) HandleBind(ctx context.Context, req *Request) ([]chat.Message, error) {
	err := h.store.BindUser(ctx, req.Source.ChatUserID, req.Arg)
	if errors.Is(err, store.ErrNotFound) {
		return replyf(bindNotFoundMessageFormat, req.Arg), nil
	}
	if err != nil {
		return nil, err
	}
	return replyf(bindSuccessMessageFormat, req.Arg), nil
}

// HandleQuickReply records a reply for the user the sender is bound to.
func (h *Handlers) HandleQuickReply(ctx context.Context, req *Request) ([]chat.Message, error) {
	overlap := answer(req.Body)
	key, err := h.store.BoundKey(ctx, req.Source.ChatUserID)
	if err != nil {
		return nil, fmt.Errorf("quick reply: %w", err)
	}
	name, err := h.store.NameForKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("quick reply: %w", err)
	}
	if err := h.store.SetOverlapByKey(ctx, key, overlap); err != nil {
		return nil, fmt.Errorf("quick reply: %w", err)
	}
	return overlapReply(name, overlap), nil
}

// HandleFootprint sends the newest footprint bulletin images.
func (h *Handlers) HandleFootprint(ctx context.Context, req *Request) ([]chat.Message, error) {
	if h.footprint == nil {
		return nil, errors.New("footprint: no fetcher configured")
	}
	paths, err := h.footprint.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("footprint: %w", err)
	}
	if len(paths) == 0 {
		return text(FootprintUnavailableMessage), nil
	}
	msgs := make([]chat.Message, 0, len(paths))
	for _, p := range paths {
		msgs = append(msgs, chat.ImageURL(h.footprintOrigin+p))
	}
	return msgs, nil
}

// HandleStatistics renders the reply pie chart and sends it as an image.
func (h *Handlers) HandleStatistics(ctx context.Context, req *Request) ([]chat.Message, error) {
	if h.chart == nil {
		return nil, errors.New("statistics: no chart renderer configured")
	}
	t, err := h.tally(ctx)
	if err != nil {
		return nil, err
	}
	url, err := h.chart.Render(ctx, t.overlap, t.noOverlap, len(t.notReplied))
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return []chat.Message{chat.ImageURL(url)}, nil
}
