// Trick or Treat
//
// Players take turns around a table. On each turn the current player picks
// one quiz and plays it either as a trick, which earns a point at the start
// of every later turn of theirs while it stays active, or as a treat, which
// pays once when completed and costs a point when deserted.
//
// Features:
// - One Session Store per session, loaded on first use and unloaded when idle
// - WebSocket per session at /api/sessions/:sessionid/ws pushing state snapshots
// - JSON api for every turn and scoring action
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/trickortreat/games/trickortreat"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StateMessage is pushed to every websocket client after each change.
type StateMessage struct {
	Type  string             `json:"type"` // "state"
	State trickortreat.State `json:"state"`
}

// ClientMessage is what a websocket client may send.
type ClientMessage struct {
	Type string `json:"type"` // "refresh"
}

type Client struct {
	conn *websocket.Conn
	send chan any
}

// Hub couples one session's store with the websocket clients watching it.
type Hub struct {
	id     string
	store  *trickortreat.SessionStore
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*Client]bool
	closed  bool

	unsubscribe func()
}

func newHub(id string, store *trickortreat.SessionStore, logger *slog.Logger) *Hub {
	h := &Hub{
		id:      id,
		store:   store,
		logger:  logger,
		clients: make(map[*Client]bool),
	}

	h.unsubscribe = store.Subscribe(h.broadcast)

	return h
}

// broadcast hands a snapshot to every client, dropping the ones that are too
// slow to keep up.
func (h *Hub) broadcast(state trickortreat.State) {
	msg := StateMessage{Type: "state", State: state}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// register adds c and queues the current snapshot for it. The send buffer
// is empty at this point, so the send cannot block. It reports false once
// the hub has been retired, and the caller should look the session up again.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = true
	c.send <- StateMessage{Type: "state", State: h.store.State()}

	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c] {
		close(c.send)
		delete(h.clients, c)
	}
}

// retire closes an unwatched hub to new clients. It reports false, and
// changes nothing, while anyone is still connected.
func (h *Hub) retire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) > 0 {
		return false
	}

	h.closed = true

	return true
}

// closeAll disconnects all clients of this hub.
func (h *Hub) closeAll() {
	h.unsubscribe()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

// SessionManager holds one hub per loaded session, so every request for a
// session goes through the same Session Store.
type SessionManager struct {
	repo   trickortreat.Repository
	rules  trickortreat.Rules
	turns  *trickortreat.TurnEngine
	logger *slog.Logger

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newSessionManager(ctx context.Context, repo trickortreat.Repository, rules trickortreat.Rules, idleTimeout time.Duration, logger *slog.Logger) *SessionManager {
	sm := &SessionManager{
		repo:        repo,
		rules:       rules,
		turns:       trickortreat.NewTurnEngine(repo, logger),
		logger:      logger,
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go sm.reaperLoop(ctx)
	}
	return sm
}

// hub returns the hub of sessionID, loading the session from storage on
// first use. Loading happens outside the lock; when two requests race, the
// first hub stored wins.
func (sm *SessionManager) hub(ctx context.Context, sessionID string) (*Hub, error) {
	sm.mu.Lock()
	hub, ok := sm.hubs[sessionID]
	sm.mu.Unlock()

	if ok {
		return hub, nil
	}

	store := trickortreat.NewSessionStore(sm.repo, sm.rules, sm.logger)
	if err := store.Load(ctx, sessionID); err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if hub, ok := sm.hubs[sessionID]; ok {
		return hub, nil
	}

	hub = newHub(sessionID, store, sm.logger)
	sm.hubs[sessionID] = hub

	sm.logger.Debug("session loaded", "session", sessionID)

	return hub, nil
}

func (sm *SessionManager) store(ctx context.Context, sessionID string) (*trickortreat.SessionStore, error) {
	hub, err := sm.hub(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return hub.store, nil
}

// create starts a new session and keeps its store loaded.
func (sm *SessionManager) create(ctx context.Context, name string, players []string) (*trickortreat.SessionStore, error) {
	store := trickortreat.NewSessionStore(sm.repo, sm.rules, sm.logger)

	session, err := store.CreateSession(ctx, name, players)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	sm.hubs[session.ID] = newHub(session.ID, store, sm.logger)
	sm.mu.Unlock()

	return store, nil
}

func (sm *SessionManager) ping(ctx context.Context) error {
	if p, ok := sm.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}

	return nil
}

func (sm *SessionManager) loaded() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return len(sm.hubs)
}

// reap unloads sessions idle since before cutoff that nobody is watching.
// Nothing in storage changes.
func (sm *SessionManager) reap(cutoff time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, hub := range sm.hubs {
		if hub.store.LastActive().After(cutoff) || !hub.retire() {
			continue
		}

		delete(sm.hubs, id)
		go hub.closeAll()

		sm.logger.Debug("session unloaded", "session", id)
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (sm *SessionManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(sm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.reap(time.Now().Add(-sm.idleTimeout))
		case <-ctx.Done():
			return
		}
	}
}

func (sm *SessionManager) closeAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, hub := range sm.hubs {
		delete(sm.hubs, id)
		hub.closeAll()
	}
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			u, err := url.Parse(origin)
			if err != nil {
				return false
			}

			return strings.EqualFold(u.Host, r.Host) || slices.Contains(cfg.corsOrigins, origin)
		},
	}
}

// serveWS streams state snapshots of :sessionid to the client.
func serveWS(cfg *Config, sm *SessionManager) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub, err := sm.hub(r.Context(), ps.ByName("sessionid"))
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "WS: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		// The reaper may have retired the hub during the handshake.
		for !hub.register(client) {
			hub, err = sm.hub(r.Context(), ps.ByName("sessionid"))
			if err != nil {
				sm.logger.Warn("session vanished during websocket handshake", "session", ps.ByName("sessionid"), "error", err)
				_ = conn.Close()

				return
			}
		}

		logf(cfg, "WS: %s watching session %s", realIP(r), hub.id)

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "refresh":
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			if err := h.store.Refresh(ctx); err != nil && !errors.Is(err, trickortreat.ErrNoSession) {
				h.logger.Warn("refresh failed", "session", h.id, "error", err)
			}
			cancel()
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionURL is the address players open to join :sessionid.
func sessionURL(cfg *Config, r *http.Request, sessionID string) string {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/trickortreat/" + url.PathEscape(sessionID)
}

// qrHandler generates a PNG QR code for the session's client page.
func qrHandler(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")

		if _, err := sm.hub(r.Context(), sessionID); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(sessionURL(cfg, r, sessionID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// getIndexHandler serves the browser client. The same page creates a session
// when no :sessionid is given.
func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		page, err := assets.ReadFile("assets/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}

		page = bytes.ReplaceAll(page, []byte("{{PREFIX}}"), []byte(cfg.prefix))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_, _ = io.Copy(w, bytes.NewReader(page))
	}
}

// registerTrickOrTreat sets up routes so that:
//   - $path                       → client, session setup
//   - $path/:sessionid            → client for that session
//   - /api/sessions/:sessionid/ws → WebSocket for that session
//   - /api/sessions/:sessionid/qr → PNG QR code for the client URL
func registerTrickOrTreat(cfg *Config, path string, sm *SessionManager, mux *httprouter.Router) {
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:sessionid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+"/api/sessions/:sessionid/ws", serveWS(cfg, sm))

	mux.GET(cfg.prefix+"/api/sessions/:sessionid/qr", qrHandler(cfg, sm))

	logf(cfg, "GAMES: Registered trick or treat at %s%s", cfg.prefix, path)
}
