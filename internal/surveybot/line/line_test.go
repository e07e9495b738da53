package line_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/chat"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/commands"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/line"
	"github.com/money626/epidemic-servey-chatbot/internal/surveybot/store"
)

const (
	channelSecret = "test-channel-secret"
	accessToken   = "test-access-token"
	adminID       = "Uadmin"
)

type sentReply struct {
	ReplyToken string `json:"replyToken"`
	Messages   []struct {
		Type               string `json:"type"`
		Text               string `json:"text"`
		OriginalContentURL string `json:"originalContentUrl"`
		PreviewImageURL    string `json:"previewImageUrl"`
	} `json:"messages"`
}

// fakeAPI records calls to the reply endpoint.
type fakeAPI struct {
	mu      sync.Mutex
	replies []sentReply
	auth    []string
	status  int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			http.NotFound(w, r)
			return
		}
		var body sentReply
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		api.replies = append(api.replies, body)
		api.auth = append(api.auth, r.Header.Get("Authorization"))
		status := api.status
		api.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "line-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type harness struct {
	store   *store.Store
	api     *fakeAPI
	webhook *line.Webhook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithSecret(t, channelSecret)
}

func newHarnessWithSecret(t *testing.T, secret string) *harness {
	t.Helper()
	st := newTestStore(t)
	if err := st.AddAdmin(context.Background(), adminID); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	api, srv := newFakeAPI(t)
	client := newTestClient(t, srv)
	d := commands.NewDispatcher("", commands.NewHandlers(commands.HandlersConfig{Store: st}), nil)
	wh := line.NewWebhook(line.WebhookConfig{
		ChannelSecret: secret,
		Dispatcher:    d,
		Messenger:     client,
	})
	return &harness{store: st, api: api, webhook: wh}
}

func newTestClient(t *testing.T, srv *httptest.Server) *line.Client {
	t.Helper()
	c, err := line.NewClient(line.ClientConfig{
		ChannelAccessToken: accessToken,
		APIBase:            srv.URL,
		HTTPClient:         srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// sign returns the signature LINE sends for body.
func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func textEvent(sourceType, userID, token, text string) string {
	src := map[string]string{"type": sourceType, "userId": userID}
	switch sourceType {
	case "group":
		src["groupId"] = "Cgroup"
	case "room":
		src["roomId"] = "Rroom"
	}
	ev := map[string]any{
		"type":       "message",
		"replyToken": token,
		"source":     src,
		"message":    map[string]string{"id": "1", "type": "text", "text": text},
	}
	b, _ := json.Marshal(ev)
	return string(b)
}

func callbackBody(events ...string) string {
	return `{"destination":"Ubot","events":[` + strings.Join(events, ",") + `]}`
}

func (h *harness) post(body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(line.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.webhook.ServeHTTP(rec, req)
	return rec
}

func (h *harness) postSigned(body string) *httptest.ResponseRecorder {
	return h.post(body, sign(channelSecret, body))
}

func TestWebhook_Signature(t *testing.T) {
	body := callbackBody(textEvent("user", "U1", "rt1", "@id"))

	tests := []struct {
		name      string
		secret    string
		signature string
		wantCode  int
	}{
		{"valid", channelSecret, sign(channelSecret, body), http.StatusOK},
		{"wrong secret", channelSecret, sign("wrong", body), http.StatusBadRequest},
		{"missing", channelSecret, "", http.StatusBadRequest},
		{"not base64", channelSecret, "%%%", http.StatusBadRequest},
		{"empty secret", "", sign("", body), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarnessWithSecret(t, tt.secret)
			rec := h.post(body, tt.signature)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			wantReplies := 0
			if tt.wantCode == http.StatusOK {
				wantReplies = 1
			}
			if len(h.api.replies) != wantReplies {
				t.Errorf("replies = %d, want %d", len(h.api.replies), wantReplies)
			}
		})
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.webhook.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestWebhook_PersonalMessage(t *testing.T) {
	h := newHarness(t)

	rec := h.postSigned(callbackBody(textEvent("user", "U1", "rt1", "@id")))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if len(h.api.replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(h.api.replies))
	}
	got := h.api.replies[0]
	if got.ReplyToken != "rt1" || len(got.Messages) != 1 || got.Messages[0].Text != "U1" {
		t.Errorf("reply = %+v", got)
	}
	if h.api.auth[0] != "Bearer "+accessToken {
		t.Errorf("authorization = %q", h.api.auth[0])
	}
}

func TestWebhook_GroupAndRoomAreGroupContext(t *testing.T) {
	for _, sourceType := range []string{"group", "room"} {
		t.Run(sourceType, func(t *testing.T) {
			h := newHarness(t)
			if err := h.store.AddUser(context.Background(), "Alice"); err != nil {
				t.Fatal(err)
			}

			rec := h.postSigned(callbackBody(textEvent(sourceType, "U1", "rt1", "@bind@Alice")))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if bound, _ := h.store.IsBound(context.Background(), "U1"); !bound {
				t.Error("bind from group context did not bind")
			}
		})
	}
}

func TestWebhook_SkipsNonTextEvents(t *testing.T) {
	h := newHarness(t)
	follow := `{"type":"follow","replyToken":"rt0","source":{"type":"user","userId":"U1"}}`
	sticker := `{"type":"message","replyToken":"rt2","source":{"type":"user","userId":"U1"},"message":{"id":"2","type":"sticker"}}`

	rec := h.postSigned(callbackBody(follow, sticker, textEvent("user", "U1", "rt3", "hello")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.api.replies) != 0 {
		t.Errorf("unexpected replies: %+v", h.api.replies)
	}
}

func TestWebhook_EventsHandledInOrder(t *testing.T) {
	h := newHarness(t)

	rec := h.postSigned(callbackBody(
		textEvent("user", "U1", "rt1", "@id"),
		textEvent("user", "U2", "rt2", "@id"),
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.api.replies) != 2 || h.api.replies[0].ReplyToken != "rt1" || h.api.replies[1].ReplyToken != "rt2" {
		t.Errorf("replies = %+v", h.api.replies)
	}
}

func TestWebhook_MalformedCallback(t *testing.T) {
	h := newHarness(t)

	for name, body := range map[string]string{
		"not json":           `{"events":`,
		"missing events":     `{"destination":"Ubot"}`,
		"missing replyToken": `{"events":[{"type":"message","source":{"type":"user","userId":"U1"},"message":{"type":"text","text":"@id"}}]}`,
	} {
		rec := h.postSigned(body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestWebhook_HandlerErrorIs500(t *testing.T) {
	h := newHarness(t)

	rec := h.postSigned(callbackBody(textEvent("group", adminID, "rt1", "@removeUser@Ghost")))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if len(h.api.replies) != 0 {
		t.Errorf("unexpected replies: %+v", h.api.replies)
	}
}

func TestClient_Reply(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(t, srv)

	msgs := []chat.Message{chat.Text("hi"), chat.ImageURL("https://img.example/a.png")}
	if err := c.Reply(context.Background(), "rt", msgs); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	got := api.replies[0].Messages
	if len(got) != 2 {
		t.Fatalf("messages = %+v", got)
	}
	if got[0].Type != "text" || got[0].Text != "hi" {
		t.Errorf("text message = %+v", got[0])
	}
	if got[1].Type != "image" || got[1].OriginalContentURL != "https://img.example/a.png" || got[1].PreviewImageURL != "https://img.example/a.png" {
		t.Errorf("image message = %+v", got[1])
	}
}

func TestClient_ReplyTruncates(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := newTestClient(t, srv)

	var msgs []chat.Message
	for range 7 {
		msgs = append(msgs, chat.Text("x"))
	}
	if err := c.Reply(context.Background(), "rt", msgs); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if n := len(api.replies[0].Messages); n != line.MaxReplyMessages {
		t.Errorf("sent %d messages, want %d", n, line.MaxReplyMessages)
	}
}

func TestClient_ReplyErrorStatus(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.status = http.StatusBadRequest
	c := newTestClient(t, srv)

	err := c.Reply(context.Background(), "rt", []chat.Message{chat.Text("x")})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}
