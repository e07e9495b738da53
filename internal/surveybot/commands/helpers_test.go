package commands_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/commands"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/store"
)

const (
	adminID  = "Uadmin"
	memberID = "Umember"
	secret   = "open-sesame"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "commands-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.AddAdmin(context.Background(), adminID); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return s
}

type fakeFootprint struct {
	paths []string
	err   error
}

func (f *fakeFootprint) Fetch(ctx context.Context) ([]string, error) {
	return f.paths, f.err
}

type fakeChart struct {
	url        string
	err        error
	calls      int
	overlap    int
	noOverlap  int
	notReplied int
}

func (f *fakeChart) Render(ctx context.Context, overlap, noOverlap, notReplied int) (string, error) {
	f.calls++
	f.overlap, f.noOverlap, f.notReplied = overlap, noOverlap, notReplied
	return f.url, f.err
}

type sentReply struct {
	token string
	msgs  []chat.Message
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (m *fakeMessenger) Reply(ctx context.Context, token string, msgs []chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentReply{token: token, msgs: msgs})
	return nil
}

type fakeObserver struct {
	outcomes []string
}

func (o *fakeObserver) ObserveCommand(command, outcome string) {
	o.outcomes = append(o.outcomes, command+":"+outcome)
}

type fixture struct {
	store     *store.Store
	footprint *fakeFootprint
	chart     *fakeChart
	observer  *fakeObserver
	d         *commands.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newTestStore(t),
		footprint: &fakeFootprint{},
		chart:     &fakeChart{url: "https://bot.example/static/statistic.png"},
		observer:  &fakeObserver{},
	}
	h := commands.NewHandlers(commands.HandlersConfig{
		Store:       f.store,
		Footprint:   f.footprint,
		Chart:       f.chart,
		AdminSecret: secret,
	})
	f.d = commands.NewDispatcher("", h, f.observer)
	return f
}

func personal(id string) chat.Source {
	return chat.Source{ChatUserID: id, Type: chat.Personal, ReplyToken: "rt-" + id}
}

func group(id string) chat.Source {
	return chat.Source{ChatUserID: id, Type: chat.Group, ReplyToken: "rt-group"}
}

// dispatch runs text and fails the test on a handler error.
func (f *fixture) dispatch(t *testing.T, src chat.Source, text string) *commands.Result {
	t.Helper()
	res, err := f.d.Dispatch(context.Background(), src, text)
	if err != nil {
		t.Fatalf("Dispatch(%q): %v", text, err)
	}
	return res
}

func (f *fixture) addUsers(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := f.store.AddUser(context.Background(), n); err != nil {
			t.Fatalf("AddUser(%q): %v", n, err)
		}
	}
}

func texts(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func singleText(t *testing.T, res *commands.Result) string {
	t.Helper()
	if len(res.Replies) != 1 || res.Replies[0].Image != nil {
		t.Fatalf("expected exactly one text reply, got %+v", res.Replies)
	}
	return res.Replies[0].Text
}
