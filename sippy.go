// Sippy Game
//
// Players sit around one table and share a game link. Everyone connected to
// the same game sees the same state: the player list, whose turn it is, the
// chosen category, and the last card drawn.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - Players are added and removed by name; at least two are needed to draw
// - Picking a category reshuffles a fresh deck; only the latest pick counts
// - Cards are dealt without repeats until the deck runs out
// - Errors are sent only to the client that caused them
// - Game records are saved after every change and restored when a hub restarts
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/sippy/catalog"
	"github.com/Seednode/sippy/deck"
	"github.com/Seednode/sippy/games"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "add_player", "remove_player", "select_category", "draw"
	Name     string `json:"name,omitempty"`     // add_player
	Index    *int   `json:"index,omitempty"`    // remove_player
	Category string `json:"category,omitempty"` // select_category
}

// StateMessage is broadcast to every client after each change.
type StateMessage struct {
	Type   string    `json:"type"` // "state"
	GameID string    `json:"game_id"`
	View   deck.View `json:"view"`
}

// ErrorMessage goes only to the client whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type action struct {
	client *Client
	msg    ClientMessage
}

type loadResult struct {
	ticket   deck.Ticket
	category deck.Category
	tasks    []deck.Task
	err      error
}

func loadSummary(res loadResult, n int) string {
	if res.err != nil {
		return fmt.Sprintf("%s tasks unavailable: %v", res.category, res.err)
	}

	return fmt.Sprintf("Loaded %d %s tasks", n, res.category)
}

type Hub struct {
	id  string
	cfg *Config

	catalog catalog.Catalog
	store   games.Store

	ctx  context.Context
	stop context.CancelFunc

	session *deck.Session
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	actions  chan action
	loaded   chan loadResult

	mu         sync.RWMutex
	lastActive time.Time
}

func newHub(ctx context.Context, cfg *Config, gameID string, cat catalog.Catalog, store games.Store) *Hub {
	ctx, stop := context.WithCancel(ctx)

	return &Hub{
		id:         gameID,
		cfg:        cfg,
		catalog:    cat,
		store:      store,
		ctx:        ctx,
		stop:       stop,
		session:    deck.NewSession(nil),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan action),
		loaded:     make(chan loadResult),
		lastActive: time.Now(),
	}
}

// run owns the session. Nothing else reads or writes it.
func (h *Hub) run() {
	defer h.closeAll()

	h.restore()

	for {
		select {
		case <-h.ctx.Done():
			return

		case c := <-h.register:
			h.touch()
			h.clients[c] = true
			h.sendTo(c, h.state())

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case a := <-h.actions:
			h.touch()
			h.handle(a)

		case res := <-h.loaded:
			if !h.session.LoadDeck(res.ticket, res.tasks, res.err) {
				logf(h.cfg, "GAMES: Discarded stale %s deck in %s", res.category, h.id)
				continue
			}
			logf(h.cfg, "GAMES: %s in %s", loadSummary(res, h.session.Deck().Len()), h.id)
			h.broadcast(h.state())
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

// restore rebuilds the session from a saved game record, if there is one.
func (h *Hub) restore() {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.fetchTimeout)
	defer cancel()

	g, err := h.store.Get(ctx, h.id)
	switch {
	case errors.Is(err, games.ErrNotFound):
		return
	case err != nil:
		log.WithError(err).WithField("game", h.id).Warn("loading game record failed")
		return
	}

	if err := h.session.Restore(g.Players, g.CurrentPlayerIndex); err != nil {
		log.WithError(err).WithField("game", h.id).Warn("game record is invalid")
		return
	}

	if g.Category != "" {
		if err := h.selectCategory(g.Category); err != nil {
			log.WithError(err).WithField("game", h.id).Warn("game record has an invalid category")
		}
	}

	logf(h.cfg, "GAMES: Restored %s with %d players", h.id, len(g.Players))
}

func (h *Hub) handle(a action) {
	var err error

	switch a.msg.Type {
	case "add_player":
		err = h.session.AddPlayer(a.msg.Name)
		if err == nil {
			logf(h.cfg, "GAMES: Player %q joined %s", strings.TrimSpace(a.msg.Name), h.id)
		}

	case "remove_player":
		if a.msg.Index == nil {
			err = deck.ErrNoSuchPlayer
			break
		}
		var name string
		name, err = h.session.RemovePlayer(*a.msg.Index)
		if err == nil {
			logf(h.cfg, "GAMES: Player %q left %s", name, h.id)
		}

	case "select_category":
		var c deck.Category
		c, err = deck.ParseCategory(a.msg.Category)
		if err == nil {
			err = h.selectCategory(c)
		}

	case "draw":
		var card deck.Card
		card, err = h.session.DrawAndAdvance()
		if err == nil && card.Exhausted {
			logf(h.cfg, "GAMES: %s deck exhausted in %s", h.session.Category(), h.id)
		}

	default:
		err = errUnknownMessage
	}

	if err != nil {
		h.sendTo(a.client, ErrorMessage{Type: "error", Message: userMessage(err)})
		return
	}

	h.save()
	h.broadcast(h.state())
}

// selectCategory starts a fetch whose result comes back through h.loaded.
func (h *Hub) selectCategory(c deck.Category) error {
	ticket, err := h.session.SelectCategory(c)
	if err != nil {
		return err
	}

	go h.fetch(ticket, c)

	return nil
}

func (h *Hub) fetch(ticket deck.Ticket, c deck.Category) {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.fetchTimeout)
	defer cancel()

	tasks, err := h.catalog.TasksByCategory(ctx, c)
	if err != nil {
		log.WithError(err).WithField("game", h.id).WithField("category", c).Warn("loading tasks failed")
	}

	select {
	case h.loaded <- loadResult{ticket: ticket, category: c, tasks: tasks, err: err}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) save() {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.fetchTimeout)
	defer cancel()

	err := h.store.Save(ctx, games.Game{
		ID:                 h.id,
		Players:            h.session.Players(),
		CurrentPlayerIndex: h.session.Turn(),
		Category:           h.session.Category(),
	})
	if err != nil {
		log.WithError(err).WithField("game", h.id).Warn("saving game record failed")
	}
}

func (h *Hub) state() StateMessage {
	return StateMessage{
		Type:   "state",
		GameID: h.id,
		View:   h.session.View(),
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		h.sendTo(client, msg)
	}
}

// closeAll disconnects all clients of this hub. Each write pump closes its
// connection once its send channel is closed.
func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

var errUnknownMessage = errors.New("unknown message type")

func userMessage(err error) string {
	switch {
	case errors.Is(err, deck.ErrEmptyName):
		return "Enter a player name."
	case errors.Is(err, deck.ErrDuplicatePlayer):
		return "That player is already in the game."
	case errors.Is(err, deck.ErrNoSuchPlayer):
		return "That player is not in the game."
	case errors.Is(err, deck.ErrNotEnoughPlayers):
		return "Add at least 2 players to start."
	case errors.Is(err, deck.ErrNoCategory):
		return "Choose a category first."
	case errors.Is(err, deck.ErrLoading):
		return "Tasks are still loading."
	case errors.Is(err, deck.ErrUnavailable):
		return "Tasks for this category could not be loaded."
	case errors.Is(err, deck.ErrEmptyCategory):
		return "There are no tasks in this category."
	case errors.Is(err, deck.ErrInvalidCategory):
		return "Invalid category"
	}
	return "Unknown request"
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	playerCookieName = "sippy_id"
	maxMessageSize   = 4096
)

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.WithError(err).Error("generating player id failed")
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	ctx context.Context
	cfg *Config

	catalog catalog.Catalog
	store   games.Store

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(ctx context.Context, cfg *Config, cat catalog.Catalog, store games.Store) *GameManager {
	gm := &GameManager{
		ctx:         ctx,
		cfg:         cfg,
		catalog:     cat,
		store:       store,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}
	if gm.idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gm.ctx, gm.cfg, gameID, gm.catalog, gm.store)
	gm.hubs[gameID] = hub
	go hub.run()
	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout. A reaped game can be reopened from its saved record.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-gm.ctx.Done():
			return
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		}
	}
}

func (gm *GameManager) reap(cutoff time.Time) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.stop()
			logf(gm.cfg, "GAMES: Reaped idle game %s", id)
		}
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if !gameIDPattern.MatchString(gameID) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).WithField("game", gameID).Warn("websocket upgrade failed")
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Client %s connected to %s from %s", playerID, gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case h.actions <- action{client: c, msg: msg}:
		case <-h.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// qrHandler generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !gameIDPattern.MatchString(ps.ByName("gameid")) {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

//go:embed play/index.html
var indexHTML []byte

//go:embed play/app.css
var sippyCSS []byte

//go:embed play/app.js
var sippyJS []byte

func serveIndex(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !gameIDPattern.MatchString(ps.ByName("gameid")) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(cfg, w, r)

		if _, err := w.Write(indexHTML); err != nil {
			errs <- err
		}
	}
}

func serveAsset(cfg *Config, contentType string, data []byte, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		if _, err := w.Write(data); err != nil {
			errs <- err
		}
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerSippyGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerSippyGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, b *Backends, errs chan<- error) *GameManager {
	gm := newGameManager(ctx, cfg, b.Catalog, b.Games)

	path = cfg.prefix + path

	mux.GET(path, redirectNewGame(cfg, path, gm))

	mux.GET(path+"/:gameid", serveIndex(cfg, errs))

	mux.GET(cfg.prefix+"/assets/play/app.css", serveAsset(cfg, "text/css; charset=utf-8", sippyCSS, errs))
	mux.GET(cfg.prefix+"/assets/play/app.js", serveAsset(cfg, "application/javascript; charset=utf-8", sippyJS, errs))

	mux.GET(path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(path+"/:gameid/qr", qrHandler(cfg, errs))

	return gm
}
