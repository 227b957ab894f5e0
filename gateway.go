package main

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client -> server intents. One flat shape; unused fields stay empty.
type intentMessage struct {
	Type            string        `json:"type"`
	Nickname        string        `json:"nickname,omitempty"`
	RoomCode        string        `json:"roomCode,omitempty"`
	Answer          string        `json:"answer,omitempty"`
	VotedPlayerID   *string       `json:"votedPlayerId,omitempty"`
	PlayerID        string        `json:"playerId,omitempty"`
	Message         string        `json:"message,omitempty"`
	ForcedRole      string        `json:"forcedRole,omitempty"`
	CustomQuestions []Question    `json:"customQuestions,omitempty"`
	GameSettings    *GameSettings `json:"gameSettings,omitempty"`
	IncludeDefaults *bool         `json:"includeDefaults,omitempty"`
}

// Server -> client events.
type connectedMessage struct {
	Type string `json:"type"` // "connected"
	ID   string `json:"id"`
}

type stateMessage struct {
	Type  string       `json:"type"` // "updateGameState"
	State roomSnapshot `json:"state"`
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type kickedMessage struct {
	Type string `json:"type"` // "kicked"
}

// conn is one connected client. roomCode is guarded by the gateway mutex;
// everything else is set once at connect time.
type conn struct {
	id       string
	send     chan any
	sock     *websocket.Conn
	roomCode string
}

// Gateway receives client intents, resolves the target room through the
// store, applies the mutation under the room's lock, and broadcasts the
// authoritative snapshot to every connection subscribed to that room.
type Gateway struct {
	cfg   *Config
	store *RoomStore
	deck  []Question
	log   zerolog.Logger

	mu    sync.Mutex
	conns map[*conn]bool
	subs  map[string]map[*conn]bool
}

func NewGateway(cfg *Config, store *RoomStore, deck []Question) *Gateway {
	return &Gateway{
		cfg:   cfg,
		store: store,
		deck:  deck,
		log:   log.With().Str("component", "gateway").Logger(),
		conns: make(map[*conn]bool),
		subs:  make(map[string]map[*conn]bool),
	}
}

func (g *Gateway) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return g.cfg.originAllowed(r.Header.Get("Origin"))
		},
	}
}

// serveWS upgrades the connection and runs the read loop until the client
// goes away.
func (g *Gateway) serveWS() httprouter.Handle {
	upgrader := g.upgrader()

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
			return
		}

		c := g.connect(sock)
		go c.writePump()
		c.readPump(g)
	}
}

// connect registers a connection and tells it its identity. A nil socket
// makes a loopback connection for the in-process client shim.
func (g *Gateway) connect(sock *websocket.Conn) *conn {
	c := &conn{
		id:   uuid.NewString(),
		send: make(chan any, 64),
		sock: sock,
	}

	g.mu.Lock()
	g.conns[c] = true
	g.mu.Unlock()

	g.unicast(c, connectedMessage{Type: "connected", ID: c.id})

	return c
}

func (c *conn) readPump(g *Gateway) {
	defer func() {
		g.disconnect(c)
		_ = c.sock.Close()
	}()

	for {
		var msg intentMessage
		if err := c.sock.ReadJSON(&msg); err != nil {
			return
		}
		g.dispatch(c, msg)
	}
}

func (c *conn) writePump() {
	defer c.sock.Close()

	for msg := range c.send {
		if err := c.sock.WriteJSON(msg); err != nil {
			return
		}
	}
}

// dispatch routes one intent. Every handler either mutates exactly one
// room and broadcasts its snapshot, or unicasts an error to the caller.
func (g *Gateway) dispatch(c *conn, msg intentMessage) {
	var err error

	switch msg.Type {
	case "createRoom":
		err = g.handleCreateRoom(c, msg)
	case "joinRoom":
		err = g.handleJoinRoom(c, msg)
	case "confirmCustomization":
		err = g.handleConfirmCustomization(c, msg)
	case "startGame":
		err = g.handleStartGame(c, msg)
	case "submitAnswer":
		err = g.handleSubmitAnswer(c, msg)
	case "readyForVote":
		err = g.handleReadyForVote(c)
	case "vote":
		err = g.handleVote(c, msg)
	case "nextRound":
		err = g.handleNextRound(c)
	case "playAgain":
		err = g.handlePlayAgain(c)
	case "addBot":
		err = g.handleAddBot(c)
	case "kickPlayer":
		err = g.handleKickPlayer(c, msg)
	case "sendMessage":
		err = g.handleSendMessage(c, msg)
	default:
		err = errUnknownIntent
	}

	if err != nil {
		g.unicast(c, errorMessage{Type: "error", Message: err.Error()})
	}
}

func (g *Gateway) handleCreateRoom(c *conn, msg intentMessage) error {
	if g.roomCodeOf(c) != "" {
		return errAlreadyInRoom
	}

	room, err := g.store.Create(g.deck)
	if err != nil {
		return err
	}

	room.mu.Lock()
	_, err = room.joinLocked(c.id, msg.Nickname, g.cfg.maxPlayers)
	room.mu.Unlock()
	if err != nil {
		// Unreachable for an empty room, but fail closed.
		g.store.Delete(room.code)
		return err
	}

	g.subscribe(c, room.code)
	g.log.Info().Str("room", room.code).Str("player", c.id).Msg("room created")
	g.broadcastRoom(room)

	return nil
}

func (g *Gateway) handleJoinRoom(c *conn, msg intentMessage) error {
	if g.roomCodeOf(c) != "" {
		return errAlreadyInRoom
	}

	code := strings.ToUpper(strings.TrimSpace(msg.RoomCode))
	if len(code) != codeLength {
		return errBadRoomCode
	}

	room, ok := g.store.Get(code)
	if !ok {
		return errRoomNotFound
	}

	room.mu.Lock()
	_, err := room.joinLocked(c.id, msg.Nickname, g.cfg.maxPlayers)
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.subscribe(c, code)
	g.log.Info().Str("room", code).Str("player", c.id).Msg("player joined")
	g.broadcastRoom(room)

	return nil
}

func (g *Gateway) handleConfirmCustomization(c *conn, msg intentMessage) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	includeDefaults := msg.IncludeDefaults == nil || *msg.IncludeDefaults

	room.mu.Lock()
	if err := g.requireHostLocked(room, c); err == nil {
		err = room.confirmCustomizationLocked(msg.GameSettings, msg.CustomQuestions, includeDefaults, g.deck)
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

func (g *Gateway) handleStartGame(c *conn, msg intentMessage) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	err = g.requireHostLocked(room, c)
	switch {
	case err != nil:
	case room.phase != phaseLobby:
		err = errWrongPhase
	case len(room.players) < minPlayers:
		err = errTooFewPlayers
	default:
		forced := ""
		if msg.ForcedRole == roleAnomaly {
			forced = c.id
		}
		room.startRoundLocked(forced)
		g.scheduleBotAnswersLocked(room)
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.log.Info().Str("room", room.code).Msg("game started")
	g.broadcastRoom(room)

	return nil
}

func (g *Gateway) handleSubmitAnswer(c *conn, msg intentMessage) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	answer := sanitizeAnswer(msg.Answer)
	if answer == "" {
		return errEmptyAnswer
	}

	room.mu.Lock()
	switch {
	case room.playerLocked(c.id) == nil:
		err = errNotInRoom
	case room.phase != phaseGame:
		err = errWrongPhase
	default:
		room.upsertAnswerLocked(c.id, answer)
		answered, total := room.answeredHumansLocked()
		switch {
		case total > 0 && answered == total:
			room.enterDebateLocked()
		case total > 0 && answered*2 >= total && !room.graceActive:
			g.startGraceLocked(room)
		}
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

func (g *Gateway) handleReadyForVote(c *conn) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	switch {
	case room.playerLocked(c.id) == nil:
		err = errNotInRoom
	case room.phase != phaseDebate:
		err = errWrongPhase
	default:
		room.markReadyLocked(c.id)
		if room.allHumansReadyLocked() {
			room.enterVotingLocked()
			g.scheduleBotVotesLocked(room)
		}
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

func (g *Gateway) handleVote(c *conn, msg intentMessage) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	switch {
	case room.playerLocked(c.id) == nil:
		err = errNotInRoom
	case room.phase != phaseVoting:
		err = errWrongPhase
	default:
		if err = room.upsertVoteLocked(c.id, msg.VotedPlayerID); err == nil && room.allHumansVotedLocked() {
			g.scheduleTallyLocked(room)
		}
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

func (g *Gateway) handleNextRound(c *conn) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	err = g.requireHostLocked(room, c)
	switch {
	case err != nil:
	case room.phase != phaseScoreboard:
		err = errWrongPhase
	default:
		room.startRoundLocked("")
		g.scheduleBotAnswersLocked(room)
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

func (g *Gateway) handlePlayAgain(c *conn) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if err = g.requireHostLocked(room, c); err == nil {
		err = room.playAgainLocked()
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.log.Info().Str("room", room.code).Msg("session restarted")
	g.broadcastRoom(room)

	return nil
}

func (g *Gateway) handleAddBot(c *conn) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if err = g.requireHostLocked(room, c); err == nil {
		_, err = room.addBotLocked(g.cfg.maxPlayers)
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

func (g *Gateway) handleKickPlayer(c *conn, msg intentMessage) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	err = g.requireHostLocked(room, c)
	switch {
	case err != nil:
	case msg.PlayerID == c.id:
		err = errSelfKick
	case room.playerLocked(msg.PlayerID) == nil:
		err = errUnknownPlayer
	default:
		room.removePlayerLocked(msg.PlayerID)
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	// Notify and unsubscribe the kicked player's connection, if any.
	if kicked := g.connByID(room.code, msg.PlayerID); kicked != nil {
		g.unicast(kicked, kickedMessage{Type: "kicked"})
		g.unsubscribe(kicked)
	}

	g.log.Info().Str("room", room.code).Str("player", msg.PlayerID).Msg("player kicked")
	g.broadcastRoom(room)

	return nil
}

func (g *Gateway) handleSendMessage(c *conn, msg intentMessage) error {
	room, err := g.roomOf(c)
	if err != nil {
		return err
	}

	text := sanitizeChat(msg.Message)
	if text == "" {
		return errEmptyMessage
	}

	room.mu.Lock()
	sender := room.playerLocked(c.id)
	if sender == nil {
		err = errNotInRoom
	} else {
		room.appendChatLocked(ChatMessage{
			PlayerID: c.id,
			Nickname: sender.Nickname,
			Text:     text,
			SentAt:   time.Now(),
		})
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}

	g.broadcastRoom(room)
	return nil
}

// disconnect tears a connection down: unsubscribes it, removes its player
// from the room, transfers host if needed, and destroys the room when the
// roster empties. Timer cancellation happens before the store delete so a
// stale handle can never resurrect a dead room.
func (g *Gateway) disconnect(c *conn) {
	g.mu.Lock()
	code := c.roomCode
	c.roomCode = ""
	if members, ok := g.subs[code]; ok {
		delete(members, c)
	}
	registered := g.conns[c]
	delete(g.conns, c)
	g.mu.Unlock()

	if registered {
		close(c.send)
	}

	if code == "" {
		return
	}

	room, ok := g.store.Get(code)
	if !ok {
		return
	}

	room.mu.Lock()
	removed, empty := room.removePlayerLocked(c.id)
	if empty {
		room.cancelTimersLocked()
	}
	room.mu.Unlock()

	if empty {
		g.store.Delete(code)
		g.dropSubscriptions(code)
		g.log.Info().Str("room", code).Msg("room ended")
		return
	}

	if removed != nil {
		g.log.Debug().Str("room", code).Str("player", c.id).Msg("player disconnected")
		g.broadcastRoom(room)
	}
}

func (g *Gateway) roomOf(c *conn) (*Room, error) {
	code := g.roomCodeOf(c)
	if code == "" {
		return nil, errNotInRoom
	}
	room, ok := g.store.Get(code)
	if !ok {
		return nil, errRoomNotFound
	}
	return room, nil
}

func (g *Gateway) requireHostLocked(room *Room, c *conn) error {
	p := room.playerLocked(c.id)
	if p == nil {
		return errNotInRoom
	}
	if !p.IsHost {
		return errNotHost
	}
	return nil
}

func (g *Gateway) roomCodeOf(c *conn) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return c.roomCode
}

func (g *Gateway) subscribe(c *conn, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c.roomCode = code
	members, ok := g.subs[code]
	if !ok {
		members = make(map[*conn]bool)
		g.subs[code] = members
	}
	members[c] = true
}

func (g *Gateway) unsubscribe(c *conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if members, ok := g.subs[c.roomCode]; ok {
		delete(members, c)
	}
	c.roomCode = ""
}

func (g *Gateway) dropSubscriptions(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for member := range g.subs[code] {
		member.roomCode = ""
	}
	delete(g.subs, code)
}

func (g *Gateway) connByID(code, id string) *conn {
	g.mu.Lock()
	defer g.mu.Unlock()

	for member := range g.subs[code] {
		if member.id == id {
			return member
		}
	}
	return nil
}

// broadcastRoom sends the room's full snapshot to every subscribed
// connection. Connections too slow to drain their send buffer are dropped,
// mirroring the usual hub pattern.
func (g *Gateway) broadcastRoom(room *Room) {
	room.mu.Lock()
	snapshot := room.snapshotLocked()
	room.mu.Unlock()

	msg := stateMessage{Type: "updateGameState", State: snapshot}

	g.mu.Lock()
	for member := range g.subs[room.code] {
		select {
		case member.send <- msg:
		default:
			delete(g.subs[room.code], member)
			delete(g.conns, member)
			member.roomCode = ""
			close(member.send)
		}
	}
	g.mu.Unlock()
}

// unicast delivers one message to one connection only.
func (g *Gateway) unicast(c *conn, msg any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.conns[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(g.conns, c)
		if members, ok := g.subs[c.roomCode]; ok {
			delete(members, c)
		}
		c.roomCode = ""
		close(c.send)
	}
}
