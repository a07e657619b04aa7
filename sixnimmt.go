// Sixnimmt
//
// Up to ten players each hold ten numbered cards. Every round, all players
// secretly commit one card; the cards are then laid out lowest first, each
// onto the row whose last card is closest below it. Whoever adds the sixth
// card to a row takes the other five as penalties, and whoever plays a card
// too low for every row must take a row of their choice. Fewest bull heads
// after ten rounds wins.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - Players identified by cookie (playerID), rejoining keeps their seat
// - Any seated player can deal once the minimum player count is reached
// - The lobby closes when the cards are dealt
// - Illegal actions are answered only to the offending client
// - Rounds resolve as soon as every seated player has committed a card
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Seednode/sixnimmt/games/sixnimmt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const maxUsernameLength = 24

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "join", "start", "play", "select"
	Username string `json:"username,omitempty"` // join
	Card     int    `json:"card,omitempty"`     // play
	Row      *int   `json:"row,omitempty"`      // select
}

// SessionInfoMessage is sent immediately on connect so the client knows
// whether it already holds a seat.
type SessionInfoMessage struct {
	Type       string    `json:"type"` // "session_info"
	GameID     string    `json:"game_id"`
	IsExisting bool      `json:"is_existing"`
	Username   string    `json:"username,omitempty"`
	Started    bool      `json:"started"`
	CreatedAt  time.Time `json:"created_at"`
}

type LobbyPlayer struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Played   bool   `json:"played"`
}

// LobbyMessage lists the seated players and the round progress.
type LobbyMessage struct {
	Type       string        `json:"type"` // "lobby"
	Players    []LobbyPlayer `json:"players"`
	Started    bool          `json:"started"`
	MinPlayers int           `json:"min_players"`
	MaxPlayers int           `json:"max_players"`
}

// HandMessage is sent to one player only.
type HandMessage struct {
	Type  string `json:"type"` // "hand"
	Cards []int  `json:"cards"`
}

type BoardMessage struct {
	Type string  `json:"type"` // "board"
	Rows [][]int `json:"rows"`
}

// SmallestMessage names whoever currently holds the lowest committed card.
type SmallestMessage struct {
	Type   string `json:"type"` // "smallest"
	Player string `json:"player"`
}

// SelectRowMessage asks Player to pick a row to take.
type SelectRowMessage struct {
	Type   string `json:"type"` // "select_row"
	Player string `json:"player"`
}

type PlayResult struct {
	Player string `json:"player"`
	Card   int    `json:"card"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

type ScoreEntry struct {
	Player string `json:"player"`
	Score  int    `json:"score"`
}

// RoundResultMessage is broadcast once a round has been laid out.
type RoundResultMessage struct {
	Type   string       `json:"type"` // "round_result"
	Plays  []PlayResult `json:"plays"`
	Rows   [][]int      `json:"rows"`
	Scores []ScoreEntry `json:"scores"`
}

// GameOverMessage carries the final ranking, lowest score first.
type GameOverMessage struct {
	Type      string       `json:"type"` // "game_over"
	Standings []ScoreEntry `json:"standings"`
}

// RejectedMessage tells a single client why its action was refused.
type RejectedMessage struct {
	Type    string `json:"type"` // "rejected"
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Client is one websocket. Its playerID is all the rules ever see of it.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

func (c *Client) ID() string {
	return c.playerID
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool
	session *sixnimmt.Session

	usernames map[string]string // playerID -> username

	register chan *Client
	unreg    chan *Client
	joins    chan actionRequest
	starts   chan actionRequest
	moves    chan actionRequest
	removals chan string
	done     chan struct{}

	mu        sync.RWMutex
	closeOnce sync.Once

	createdAt    time.Time
	lastActive   time.Time
	lastSmallest string
	minPlayers   int
	maxPlayers   int
}

func newHub(cfg *Config, gameID string, opts ...sixnimmt.Option) *Hub {
	now := time.Now()
	return &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		session:    sixnimmt.NewSession(gameID, cfg.minPlayers, cfg.maxPlayers, opts...),
		usernames:  make(map[string]string),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		joins:      make(chan actionRequest),
		starts:     make(chan actionRequest),
		moves:      make(chan actionRequest),
		removals:   make(chan string),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
		minPlayers: cfg.minPlayers,
		maxPlayers: cfg.maxPlayers,
	}
}

// run is the only goroutine that mutates the session, so every action is
// applied whole and in arrival order.
func (h *Hub) run(cfg *Config) {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			select {
			case <-h.done:
				close(c.send)
				return
			default:
			}

			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true

			username, isExisting := h.usernames[c.playerID]

			h.sendLocked(c, SessionInfoMessage{
				Type:       "session_info",
				GameID:     h.id,
				IsExisting: isExisting,
				Username:   username,
				Started:    h.session.Started(),
				CreatedAt:  h.createdAt,
			})

			h.broadcastLobbyLocked()
			if h.session.Started() {
				h.sendLocked(c, BoardMessage{Type: "board", Rows: h.session.Board().Values()})
				if p := h.session.Player(c.playerID); p != nil {
					h.sendLocked(c, HandMessage{Type: "hand", Cards: p.Hand().Values()})
				}
				if h.session.ShouldEnd() {
					h.sendLocked(c, h.gameOverLocked())
				}
				if smallest := h.session.SmallestCardPlayer(); smallest != nil {
					h.sendLocked(c, SmallestMessage{Type: "smallest", Player: h.usernames[smallest.ID()]})
					if h.session.Ready() && h.session.NeedsSelection() {
						h.sendLocked(c, SelectRowMessage{Type: "select_row", Player: h.usernames[smallest.ID()]})
					}
				}
			}

			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			_, seated := h.usernames[c.playerID]
			started := h.session.Started()
			h.mu.Unlock()

			// Seats are only released while the lobby is still open.
			if seated && !started {
				go h.scheduleRemoval(c.playerID, cfg.playerTimeout)
			}

		case playerID := <-h.removals:
			h.handleRemoval(cfg, playerID)

		case jr := <-h.joins:
			h.handleJoin(cfg, jr)

		case sr := <-h.starts:
			h.handleStart(cfg, sr)

		case mr := <-h.moves:
			h.handleMove(cfg, mr)
		}
	}
}

// scheduleRemoval waits for d, then asks the hub to drop playerID unless
// they have reconnected in the meantime.
func (h *Hub) scheduleRemoval(playerID string, d time.Duration) {
	select {
	case <-time.After(d):
	case <-h.done:
		return
	}

	select {
	case h.removals <- playerID:
	case <-h.done:
	}
}

func (h *Hub) handleRemoval(cfg *Config, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.playerID == playerID {
			return
		}
	}

	p := h.session.Player(playerID)
	if p == nil || h.session.Started() {
		return
	}

	if !h.session.Remove(p) {
		return
	}

	logf(cfg, "GAMES: Player %q left %s", h.usernames[playerID], h.id)
	delete(h.usernames, playerID)

	h.lastActive = time.Now()
	h.broadcastLobbyLocked()
}

// handleJoin processes "join" messages.
func (h *Hub) handleJoin(cfg *Config, jr actionRequest) {
	c := jr.client
	username := strings.TrimSpace(jr.msg.Username)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		h.rejectLocked(c, "join", fmt.Sprintf("Usernames must be between 1 and %d characters.", maxUsernameLength))
		return
	}

	for id, name := range h.usernames {
		if id != c.playerID && strings.EqualFold(name, username) {
			h.rejectLocked(c, "join", "That username is already taken. Please choose a different username.")
			return
		}
	}

	if _, ok := h.usernames[c.playerID]; ok {
		h.usernames[c.playerID] = username
		h.broadcastLobbyLocked()
		return
	}

	if h.session.Started() {
		h.rejectLocked(c, "join", "This game has already started; no new players may join.")
		return
	}

	if !h.session.Add(sixnimmt.NewPlayer(c)) {
		h.rejectLocked(c, "join", "This game is full.")
		return
	}

	h.usernames[c.playerID] = username
	logf(cfg, "GAMES: Player %q joined %s", username, h.id)

	h.broadcastLobbyLocked()
}

// handleStart deals the cards.
func (h *Hub) handleStart(cfg *Config, sr actionRequest) {
	c := sr.client

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if h.session.Player(c.playerID) == nil {
		h.rejectLocked(c, "start", "Only seated players may start the game.")
		return
	}

	if !h.session.Start() {
		h.rejectLocked(c, "start", fmt.Sprintf("The game needs between %d and %d players and can only be dealt once.", h.minPlayers, h.maxPlayers))
		return
	}

	gamesStarted.Inc()
	logf(cfg, "GAMES: Dealt %s to %d players", h.id, len(h.session.Players()))

	h.broadcastLobbyLocked()
	h.broadcastLocked(BoardMessage{Type: "board", Rows: h.session.Board().Values()})
	h.sendHandsLocked()
}

// handleMove processes "play" and "select" messages.
func (h *Hub) handleMove(cfg *Config, mr actionRequest) {
	c := mr.client
	msg := mr.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	p := h.session.Player(c.playerID)
	if p == nil {
		h.rejectLocked(c, msg.Type, "You are not seated in this game.")
		return
	}

	switch msg.Type {
	case "play":
		if !h.session.Play(p, msg.Card) {
			h.rejectLocked(c, "play", "That card cannot be played right now.")
			return
		}

		logf(cfg, "GAMES: %q committed a card in %s", h.usernames[p.ID()], h.id)

		h.broadcastLobbyLocked()
		h.sendLocked(c, HandMessage{Type: "hand", Cards: p.Hand().Values()})

		if smallest := h.session.SmallestCardPlayer(); smallest != nil && smallest.ID() != h.lastSmallest {
			h.lastSmallest = smallest.ID()
			h.broadcastLocked(SmallestMessage{Type: "smallest", Player: h.usernames[smallest.ID()]})
		}

	case "select":
		if msg.Row == nil || !h.session.Select(p, *msg.Row) {
			h.rejectLocked(c, "select", "You cannot take that row right now.")
			return
		}

		logf(cfg, "GAMES: %q takes row %d in %s", h.usernames[p.ID()], *msg.Row, h.id)

	default:
		return
	}

	h.advanceLocked(cfg)
}

// advanceLocked resolves the round once every player has committed, unless
// the lowest card still needs a row chosen for it.
func (h *Hub) advanceLocked(cfg *Config) {
	if !h.session.Ready() {
		return
	}

	if h.session.NeedsSelection() {
		h.broadcastLocked(SelectRowMessage{
			Type:   "select_row",
			Player: h.usernames[h.session.SmallestCardPlayer().ID()],
		})
		return
	}

	if !h.session.Progress() {
		logf(cfg, "GAMES: Round in %s could not be resolved", h.id)
		return
	}
	roundsProgressed.Inc()

	h.broadcastLocked(h.roundResultLocked())

	h.session.Reset()
	h.lastSmallest = ""

	if h.session.ShouldEnd() {
		gamesFinished.Inc()
		result := h.gameOverLocked()
		logf(cfg, "GAMES: %s finished, %q won with %d", h.id, result.Standings[0].Player, result.Standings[0].Score)
		h.broadcastLocked(result)
		return
	}

	h.broadcastLobbyLocked()
	h.sendHandsLocked()
}

func (h *Hub) roundResultLocked() RoundResultMessage {
	played := h.session.CardsPlayed()

	msg := RoundResultMessage{
		Type: "round_result",
		Rows: h.session.Board().Values(),
	}

	for _, p := range h.session.Players() {
		if play, ok := played[p.ID()]; ok {
			msg.Plays = append(msg.Plays, PlayResult{
				Player: h.usernames[p.ID()],
				Card:   play.Card.Value(),
				Row:    play.Position.Row,
				Col:    play.Position.Col,
			})
		}
		msg.Scores = append(msg.Scores, ScoreEntry{Player: h.usernames[p.ID()], Score: p.Score()})
	}

	return msg
}

func (h *Hub) gameOverLocked() GameOverMessage {
	standings := h.session.Standings()

	msg := GameOverMessage{
		Type:      "game_over",
		Standings: make([]ScoreEntry, 0, len(standings)),
	}
	for _, s := range standings {
		msg.Standings = append(msg.Standings, ScoreEntry{Player: h.usernames[s.PlayerID], Score: s.Score})
	}

	return msg
}

func (h *Hub) broadcastLobbyLocked() {
	msg := LobbyMessage{
		Type:       "lobby",
		Players:    make([]LobbyPlayer, 0, len(h.usernames)),
		Started:    h.session.Started(),
		MinPlayers: h.minPlayers,
		MaxPlayers: h.maxPlayers,
	}

	for _, p := range h.session.Players() {
		msg.Players = append(msg.Players, LobbyPlayer{
			Username: h.usernames[p.ID()],
			Score:    p.Score(),
			Played:   h.session.Committed(p),
		})
	}

	h.broadcastLocked(msg)
}

func (h *Hub) sendHandsLocked() {
	for client := range h.clients {
		if p := h.session.Player(client.playerID); p != nil {
			h.sendLocked(client, HandMessage{Type: "hand", Cards: p.Hand().Values()})
		}
	}
}

func (h *Hub) rejectLocked(c *Client, action, text string) {
	actionsRejected.WithLabelValues(action).Inc()

	h.sendLocked(c, RejectedMessage{
		Type:    "rejected",
		Action:  action,
		Message: text,
	})
}

// sendLocked drops clients that are not keeping up.
func (h *Hub) sendLocked(c *Client, msg any) {
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

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

// closeAll disconnects all clients of this hub and stops its loop.
func (h *Hub) closeAll() {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "sixnimmt_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	options     []sixnimmt.Option
}

func newGameManager(idleTimeout time.Duration, opts ...sixnimmt.Option) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		options:     opts,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(cfg, gameID, gm.options...)
	gm.hubs[gameID] = hub
	gamesCreated.Inc()
	gamesActive.Inc()
	go hub.run(cfg)
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

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				gamesActive.Dec()
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s from %s failed: %v", gameID, realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		var dst chan actionRequest
		switch msg.Type {
		case "join":
			dst = h.joins
		case "start":
			dst = h.starts
		case "play", "select":
			dst = h.moves
		default:
			continue
		}

		select {
		case dst <- actionRequest{client: c, msg: msg}:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveGameClient(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/sixnimmt/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerSixNimmtGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerSixNimmtGame(cfg *Config, path string, mux *httprouter.Router, opts ...sixnimmt.Option) *GameManager {
	gm := newGameManager(cfg.sessionTimeout, opts...)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveGameClient(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	return gm
}
