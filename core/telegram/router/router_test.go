package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tg "github.com/m3rciful/currencybot/core/telegram"
	"github.com/m3rciful/currencybot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

type recorder struct {
	mu      sync.Mutex
	methods []string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.methods = append(r.methods, req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:])
	r.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
}

func (r *recorder) calls() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.methods, ",")
}

func newBot(t *testing.T) (*tele.Bot, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	b, err := tele.NewBot(tele.Settings{Token: "T", URL: srv.URL, Offline: true, Synchronous: true})
	if err != nil {
		t.Fatal(err)
	}
	return b, rec
}

func callback(b *tele.Bot, data string) tele.Context {
	return b.NewContext(tele.Update{Callback: &tele.Callback{ID: "1", Data: data, Sender: &tele.User{ID: 5}}})
}

func message(b *tele.Bot, from int64, text string) tele.Context {
	return b.NewContext(tele.Update{Message: &tele.Message{
		Text: text, Sender: &tele.User{ID: from}, Chat: &tele.Chat{ID: from},
	}})
}

func TestCallbackRouteKnownKey(t *testing.T) {
	b, rec := newBot(t)
	reg := tg.NewRegistry()
	var got string
	_ = reg.RegisterCallback("yes", func(c tele.Context) error {
		got = c.Callback().Data
		return nil
	})

	route := CallbackRoute(reg, CallbackOptions{})
	if err := route.Handler(callback(b, "yes")); err != nil {
		t.Fatal(err)
	}
	if got != "yes" || rec.calls() != "answerCallbackQuery" {
		t.Fatalf("handler data = %q, api calls = %s", got, rec.calls())
	}
}

func TestCallbackRouteNotFound(t *testing.T) {
	b, rec := newBot(t)
	reg := tg.NewRegistry()

	if err := CallbackRoute(reg, CallbackOptions{}).Handler(callback(b, "\fmissing|x")); err != nil {
		t.Fatal(err)
	}
	if rec.calls() != "answerCallbackQuery" {
		t.Fatalf("api calls = %s, want a single answer", rec.calls())
	}

	custom := false
	route := CallbackRoute(reg, CallbackOptions{NotFound: func(tele.Context) error { custom = true; return nil }})
	_ = route.Handler(callback(b, "missing"))
	if !custom {
		t.Fatal("custom not-found handler not used")
	}
}

type stubConversation struct {
	active  bool
	err     error
	handled []string
}

func (s *stubConversation) InProgress(tele.Context) (bool, error) { return s.active, s.err }

func (s *stubConversation) HandleText(c tele.Context) error {
	s.handled = append(s.handled, c.Text())
	return nil
}

func TestTextRoutes(t *testing.T) {
	b, _ := newBot(t)
	conv := &stubConversation{}
	unknown := 0
	h := TextRoutes(conv, TextOptions{UnknownText: func(tele.Context) error { unknown++; return nil }})[0].Handler

	_ = h(message(b, 1, "hello"))
	conv.active = true
	_ = h(message(b, 1, "🇪🇺 Euro"))
	if unknown != 1 || len(conv.handled) != 1 || conv.handled[0] != "🇪🇺 Euro" {
		t.Fatalf("unknown=%d handled=%v", unknown, conv.handled)
	}

	conv.err = errors.New("store down")
	if err := h(message(b, 1, "x")); !errors.Is(err, conv.err) {
		t.Fatalf("err = %v", err)
	}

	if err := TextRoutes(nil, TextOptions{})[0].Handler(message(b, 1, "x")); err != nil {
		t.Fatalf("ignored text returned %v", err)
	}
}

func TestCommandRoutesAdminOnly(t *testing.T) {
	b, _ := newBot(t)
	reg := tg.NewRegistry()
	var ran []string
	handler := func(name string) tele.HandlerFunc {
		return func(tele.Context) error { ran = append(ran, name); return nil }
	}
	reg.RegisterCommand("/start", commands.Command{Handler: handler("start"), Description: "Start"})
	reg.RegisterCommand("/stats", commands.Command{Handler: handler("stats"), Description: "Stats", AdminOnly: true})

	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 9})
	if len(routes) != 2 || routes[0].Endpoint != "/start" || routes[1].Endpoint != "/stats" {
		t.Fatalf("routes = %+v", routes)
	}
	_ = routes[0].Handler(message(b, 1, "/start"))
	_ = routes[1].Handler(message(b, 1, "/stats"))
	_ = routes[1].Handler(message(b, 9, "/stats"))
	if strings.Join(ran, ",") != "start,stats" {
		t.Fatalf("ran = %v", ran)
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "lookup_failed" }

func TestErrorCode(t *testing.T) {
	if got := errorCode(errors.New("plain")); got != "ERRORSTRING" {
		t.Fatalf("plain error code = %q", got)
	}
	if got := errorCode(fmt.Errorf("wrap: %w", codedErr{})); got != "LOOKUP_FAILED" {
		t.Fatalf("coded error code = %q", got)
	}
	if errorCode(nil) != "" {
		t.Fatal("nil error should have no code")
	}
}
