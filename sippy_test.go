package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/sippy/deck"
	"github.com/Seednode/sippy/games"
)

// serverMessage holds either kind of message a hub sends.
type serverMessage struct {
	Type    string    `json:"type"`
	GameID  string    `json:"game_id"`
	View    deck.View `json:"view"`
	Message string    `json:"message"`
}

type gameServer struct {
	url string
	gm  *GameManager
	b   *Backends
}

func newGameServer(t *testing.T, b *Backends) *gameServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	cfg := testConfig()
	mux := httprouter.New()
	errs := make(chan error, 16)

	gm := registerSippyGame(ctx, cfg, "/play", mux, b, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &gameServer{url: srv.URL, gm: gm, b: b}
}

func (s *gameServer) dial(t *testing.T, gameID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(s.url, "http") + "/play/" + gameID + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func read(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg serverMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

// readState skips messages until a state matching ok arrives.
func readState(t *testing.T, conn *websocket.Conn, ok func(deck.View) bool) deck.View {
	t.Helper()

	for {
		msg := read(t, conn)
		if msg.Type == "state" && ok(msg.View) {
			return msg.View
		}
	}
}

func hasStatus(s deck.Status) func(deck.View) bool {
	return func(v deck.View) bool { return v.Status == s }
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
}

func TestHubDealsPartyDeck(t *testing.T) {
	s := newGameServer(t, testBackends())
	conn := s.dial(t, "party1")

	first := read(t, conn)
	require.Equal(t, "state", first.Type)
	assert.Equal(t, "party1", first.GameID)
	assert.Equal(t, deck.StatusWaitingForPlayers, first.View.Status)
	assert.Empty(t, first.View.Players)

	send(t, conn, ClientMessage{Type: "add_player", Name: "Ann"})
	v := read(t, conn).View
	assert.Equal(t, []string{"Ann"}, v.Players)
	assert.Equal(t, deck.StatusWaitingForPlayers, v.Status)

	send(t, conn, ClientMessage{Type: "add_player", Name: "Bob"})
	v = read(t, conn).View
	assert.Equal(t, deck.StatusChooseCategory, v.Status)

	send(t, conn, ClientMessage{Type: "select_category", Category: "party"})
	v = read(t, conn).View
	assert.Equal(t, deck.StatusLoading, v.Status)
	assert.False(t, v.CanDraw)

	v = readState(t, conn, hasStatus(deck.StatusReady))
	assert.Equal(t, 10, v.DeckSize)
	assert.Equal(t, 10, v.Remaining)
	assert.True(t, v.CanDraw)

	seen := make(map[string]bool)
	for i := range 10 {
		send(t, conn, ClientMessage{Type: "draw"})
		v = read(t, conn).View

		require.Equal(t, deck.StatusShowing, v.Status)
		require.NotNil(t, v.Card)
		assert.Equal(t, []string{"Ann", "Bob"}[i%2], v.Card.Player)
		assert.Equal(t, deck.Party, v.Card.Task.Category)
		assert.False(t, seen[v.Card.Task.ID], "task %s dealt twice", v.Card.Task.ID)
		seen[v.Card.Task.ID] = true
		assert.Equal(t, (i+1)%2, v.Turn)
	}
	assert.False(t, v.CanDraw)
	assert.True(t, v.CanRequest, "the draw button stays live for the exhausted marker")

	send(t, conn, ClientMessage{Type: "draw"})
	v = read(t, conn).View
	assert.Equal(t, deck.StatusExhausted, v.Status)
	require.NotNil(t, v.Card)
	assert.True(t, v.Card.Exhausted)
	assert.Equal(t, 0, v.Turn, "exhausted draw does not move the turn")

	g, err := s.b.Games.Get(context.Background(), "party1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bob"}, g.Players)
	assert.Equal(t, 0, g.CurrentPlayerIndex)
	assert.Equal(t, deck.Party, g.Category)
}

func TestHubErrorsGoOnlyToSender(t *testing.T) {
	s := newGameServer(t, testBackends())

	alice := s.dial(t, "shared")
	read(t, alice)
	bob := s.dial(t, "shared")
	read(t, bob)

	send(t, alice, ClientMessage{Type: "add_player", Name: "Ann"})
	assert.Equal(t, []string{"Ann"}, read(t, alice).View.Players)
	assert.Equal(t, []string{"Ann"}, read(t, bob).View.Players)

	send(t, bob, ClientMessage{Type: "add_player", Name: " Ann "})
	msg := read(t, bob)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "That player is already in the game.", msg.Message)

	send(t, alice, ClientMessage{Type: "draw"})
	msg = read(t, alice)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "Add at least 2 players to start.", msg.Message)

	// Bob's next message is the broadcast for this change, not Alice's error.
	send(t, alice, ClientMessage{Type: "add_player", Name: "Cid"})
	assert.Equal(t, "state", read(t, alice).Type)
	msg = read(t, bob)
	assert.Equal(t, "state", msg.Type)
	assert.Equal(t, []string{"Ann", "Cid"}, msg.View.Players)
}

func TestHubRejectsBadRequests(t *testing.T) {
	s := newGameServer(t, testBackends())
	conn := s.dial(t, "bad")
	read(t, conn)

	tests := []struct {
		msg  ClientMessage
		want string
	}{
		{ClientMessage{Type: "add_player", Name: "   "}, "Enter a player name."},
		{ClientMessage{Type: "remove_player"}, "That player is not in the game."},
		{ClientMessage{Type: "remove_player", Index: new(int)}, "That player is not in the game."},
		{ClientMessage{Type: "select_category", Category: "boring"}, "Invalid category"},
		{ClientMessage{Type: "draw"}, "Add at least 2 players to start."},
		{ClientMessage{Type: "dance"}, "Unknown request"},
	}

	for _, tt := range tests {
		send(t, conn, tt.msg)
		msg := read(t, conn)
		assert.Equal(t, "error", msg.Type, tt.msg.Type)
		assert.Equal(t, tt.want, msg.Message, tt.msg.Type)
	}

	send(t, conn, ClientMessage{Type: "add_player", Name: "Ann"})
	send(t, conn, ClientMessage{Type: "add_player", Name: "Bob"})
	read(t, conn)
	read(t, conn)

	send(t, conn, ClientMessage{Type: "draw"})
	msg := read(t, conn)
	assert.Equal(t, "Choose a category first.", msg.Message)
}

func TestHubEmptyCategory(t *testing.T) {
	s := newGameServer(t, testBackends())
	conn := s.dial(t, "empty")
	read(t, conn)

	send(t, conn, ClientMessage{Type: "add_player", Name: "Ann"})
	send(t, conn, ClientMessage{Type: "add_player", Name: "Bob"})
	send(t, conn, ClientMessage{Type: "select_category", Category: "extreme"})

	v := readState(t, conn, hasStatus(deck.StatusEmptyCategory))
	assert.Equal(t, 0, v.DeckSize)
	assert.False(t, v.CanDraw)

	send(t, conn, ClientMessage{Type: "draw"})
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "There are no tasks in this category.", msg.Message)
}

func TestHubRemovePlayerClampsTurn(t *testing.T) {
	s := newGameServer(t, testBackends())
	conn := s.dial(t, "remove")
	read(t, conn)

	for _, name := range []string{"Ann", "Bob", "Cid"} {
		send(t, conn, ClientMessage{Type: "add_player", Name: name})
		read(t, conn)
	}

	send(t, conn, ClientMessage{Type: "select_category", Category: "spicy"})
	readState(t, conn, hasStatus(deck.StatusReady))

	send(t, conn, ClientMessage{Type: "draw"})
	read(t, conn)
	send(t, conn, ClientMessage{Type: "draw"})
	v := read(t, conn).View
	require.Equal(t, 2, v.Turn)
	require.Equal(t, "Cid", v.CurrentPlayer)

	last := 2
	send(t, conn, ClientMessage{Type: "remove_player", Index: &last})
	v = read(t, conn).View
	assert.Equal(t, []string{"Ann", "Bob"}, v.Players)
	assert.Equal(t, 0, v.Turn)
	assert.Equal(t, "Ann", v.CurrentPlayer)
}

type failingCatalog struct{}

func (failingCatalog) TasksByCategory(context.Context, deck.Category) ([]deck.Task, error) {
	return nil, errors.New("database is down")
}

func (failingCatalog) RandomTask(context.Context, deck.Category) (deck.Task, error) {
	return deck.Task{}, errors.New("database is down")
}

func TestHubFetchFailure(t *testing.T) {
	b := testBackends()
	b.Catalog = failingCatalog{}

	s := newGameServer(t, b)
	conn := s.dial(t, "broken")
	read(t, conn)

	send(t, conn, ClientMessage{Type: "add_player", Name: "Ann"})
	send(t, conn, ClientMessage{Type: "add_player", Name: "Bob"})
	send(t, conn, ClientMessage{Type: "select_category", Category: "funny"})

	v := readState(t, conn, hasStatus(deck.StatusUnavailable))
	assert.False(t, v.CanDraw)

	send(t, conn, ClientMessage{Type: "draw"})
	msg := read(t, conn)
	assert.Equal(t, "Tasks for this category could not be loaded.", msg.Message)
}

func TestHubRestoresSavedGame(t *testing.T) {
	b := testBackends()
	require.NoError(t, b.Games.Save(context.Background(), games.Game{
		ID:                 "saved",
		Players:            []string{"Ann", "Bob", "Cid"},
		CurrentPlayerIndex: 2,
		Category:           deck.Funny,
	}))

	s := newGameServer(t, b)
	conn := s.dial(t, "saved")

	v := readState(t, conn, hasStatus(deck.StatusReady))
	assert.Equal(t, []string{"Ann", "Bob", "Cid"}, v.Players)
	assert.Equal(t, 2, v.Turn)
	assert.Equal(t, deck.Funny, v.Category)
	assert.Equal(t, 10, v.DeckSize)

	send(t, conn, ClientMessage{Type: "draw"})
	v = read(t, conn).View
	require.NotNil(t, v.Card)
	assert.Equal(t, "Cid", v.Card.Player)
	assert.Equal(t, 0, v.Turn)
}

func TestReapedHubDisconnectsClients(t *testing.T) {
	s := newGameServer(t, testBackends())
	conn := s.dial(t, "idle")
	read(t, conn)

	s.gm.reap(time.Now().Add(time.Hour))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	s.gm.mu.Lock()
	assert.Empty(t, s.gm.hubs)
	s.gm.mu.Unlock()
}

func TestRedirectNewGame(t *testing.T) {
	s := newGameServer(t, testBackends())

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.Get(s.url + "/play")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/play/"), loc)
	assert.Regexp(t, `^[A-Za-z0-9]{8}$`, strings.TrimPrefix(loc, "/play/"))
}

func TestGameIndexSetsPlayerCookie(t *testing.T) {
	s := newGameServer(t, testBackends())

	resp, err := http.Get(s.url + "/play/abc123")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName {
			found = true
			assert.Len(t, c.Value, 32)
		}
	}
	assert.True(t, found, "player cookie not set")
}

func TestGameAssets(t *testing.T) {
	s := newGameServer(t, testBackends())

	for path, contentType := range map[string]string{
		"/assets/play/app.css": "text/css; charset=utf-8",
		"/assets/play/app.js":  "application/javascript; charset=utf-8",
	} {
		resp, err := http.Get(s.url + path)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, contentType, resp.Header.Get("Content-Type"), path)
	}
}

func TestQRCode(t *testing.T) {
	s := newGameServer(t, testBackends())

	resp, err := http.Get(s.url + "/play/abc123/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	buf := make([]byte, 8)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG\r\n\x1a\n", string(buf))
}

func TestInvalidGameID(t *testing.T) {
	s := newGameServer(t, testBackends())

	for _, path := range []string{"/play/bad!id", "/play/bad!id/ws", "/play/bad!id/qr"} {
		resp, err := http.Get(s.url + path)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, resp.StatusCode, path)
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Tasks are still loading.", userMessage(deck.ErrLoading))
	assert.Equal(t, "Invalid category", userMessage(errors.Join(errors.New("ctx"), deck.ErrInvalidCategory)))
	assert.Equal(t, "Unknown request", userMessage(errors.New("other")))
}

func TestLoadSummary(t *testing.T) {
	ok := loadResult{category: deck.Party, tasks: make([]deck.Task, 10)}
	assert.Equal(t, "Loaded 10 party tasks", loadSummary(ok, 10))

	failed := loadResult{category: deck.Funny, err: errors.New("database is down")}
	got := loadSummary(failed, 0)
	assert.Equal(t, "funny tasks unavailable: database is down", got)
	assert.NotContains(t, got, "Loaded")
}
