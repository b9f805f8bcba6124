package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/table"
	"github.com/lox/housepoker/internal/tournament"
)

// Connection is one websocket client. It observes every table it joined or
// watches and forwards table and tournament events to the socket.
type Connection struct {
	id      string
	conn    *websocket.Conn
	send    chan *Message
	userID  string
	name    string
	server  *Server
	limiter *rate.Limiter
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	tables    map[string]*table.Session
	follows   map[int64]bool
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, userID, name string, s *Server) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Connection{
		id:      id,
		conn:    conn,
		send:    make(chan *Message, 256),
		userID:  userID,
		name:    name,
		server:  s,
		limiter: rate.NewLimiter(s.opts.ActionRate, s.opts.ActionBurst),
		logger:  s.logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		tables:  make(map[string]*table.Session),
		follows: make(map[int64]bool),
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is closing.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// SendMessage queues msg without blocking. A client that cannot keep up is
// disconnected.
func (c *Connection) SendMessage(msg *Message) (err error) {
	defer func() {
		// send raced Close
		if recover() != nil {
			err = ErrConnectionClosed
		}
	}()

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn().Msg("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// Send implements table.Observer. It runs on the table's goroutine.
func (c *Connection) Send(e table.Event) {
	if e.Type == table.EventTableClosed {
		c.mu.Lock()
		delete(c.tables, e.TableID)
		c.mu.Unlock()
	}
	msg, err := messageForEvent(e)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(e.Type)).Msg("Failed to encode table event")
		return
	}
	_ = c.SendMessage(msg)
}

func (c *Connection) sendTournament(e tournament.Event) {
	c.mu.RLock()
	following := c.follows[e.TournamentID]
	c.mu.RUnlock()
	if !following {
		return
	}
	msg, err := messageForTournament(e)
	if err != nil {
		c.logger.Error().Err(err).Str("event", string(e.Type)).Msg("Failed to encode tournament event")
		return
	}
	_ = c.SendMessage(msg)
}

func (c *Connection) watching(tableID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[tableID]
	return ok
}

func (c *Connection) sessions() []*table.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*table.Session, 0, len(c.tables))
	for _, s := range c.tables {
		out = append(out, s)
	}
	return out
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket error")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error().Err(err).Msg("Failed to write message")
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

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug().Str("type", msg.Type.String()).Msg("Received message")

	if !c.limiter.Allow() {
		c.sendError(msg, "rate_limited", "Too many messages")
		return
	}

	switch msg.Type {
	case MessageTypeJoinTable:
		var data JoinTableData
		if c.decode(msg, &data) {
			c.handleJoinTable(msg, data)
		}

	case MessageTypeLeaveTable:
		var data TableData
		if c.decode(msg, &data) {
			c.handleLeaveTable(msg, data)
		}

	case MessageTypeSpectate:
		var data TableData
		if c.decode(msg, &data) {
			c.handleSpectate(msg, data)
		}

	case MessageTypePlayerAction:
		var data PlayerActionData
		if c.decode(msg, &data) {
			c.handlePlayerAction(msg, data)
		}

	case MessageTypeChat:
		var data ChatData
		if c.decode(msg, &data) {
			c.handleChat(msg, data)
		}

	case MessageTypeListTables:
		c.reply(msg, MessageTypeTableList, TableListData{Tables: c.server.registry.List()})

	case MessageTypeFollowTournament:
		var data FollowTournamentData
		if c.decode(msg, &data) {
			c.mu.Lock()
			c.follows[data.TournamentID] = true
			c.mu.Unlock()
		}

	default:
		c.sendError(msg, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError(msg, "invalid_message", "Failed to parse "+msg.Type.String()+" data")
		return false
	}
	return true
}

func (c *Connection) reply(req *Message, typ MessageType, data any) {
	out, err := NewMessage(typ, data)
	if err != nil {
		c.logger.Error().Err(err).Str("type", typ.String()).Msg("Failed to create message")
		return
	}
	out.RequestID = req.RequestID
	_ = c.SendMessage(out)
}

// sendError sends an error message to the client
func (c *Connection) sendError(req *Message, code, message string) {
	c.reply(req, MessageTypeError, ErrorData{Code: code, Message: message})
}

func (c *Connection) session(req *Message, tableID string) *table.Session {
	s, ok := c.server.registry.Get(tableID)
	if !ok {
		c.sendError(req, "table_not_found", "No table "+tableID)
		return nil
	}
	return s
}

func (c *Connection) watch(s *table.Session) {
	c.mu.Lock()
	c.tables[s.ID()] = s
	c.mu.Unlock()
}

func (c *Connection) handleJoinTable(req *Message, data JoinTableData) {
	s := c.session(req, data.TableID)
	if s == nil {
		return
	}

	// tournament seats are assigned by the tournament, joining only reconnects
	if tid := s.Config().TournamentID; tid != 0 {
		v, err := s.View(c.userID)
		if err != nil {
			c.sendError(req, "table_closed", err.Error())
			return
		}
		if v.YourSeat < 0 {
			c.sendError(req, "not_entered", "Not playing at this tournament table")
			return
		}
		if err := s.Reconnect(c.userID, c); err != nil {
			c.sendError(req, "join_failed", err.Error())
			return
		}
		c.watch(s)
		c.mu.Lock()
		c.follows[tid] = true
		c.mu.Unlock()
		c.logger.Info().Str("table_id", s.ID()).Msg("Player reconnected to tournament table")
		return
	}

	if err := s.Subscribe(c.userID, c); err != nil {
		c.sendError(req, "join_failed", err.Error())
		return
	}
	seat := -1
	if data.Seat != nil {
		seat = *data.Seat
	}
	if _, err := s.Join(c.userID, c.name, seat, data.BuyIn); err != nil {
		if !c.watching(s.ID()) {
			s.Unsubscribe(c)
		}
		c.sendError(req, "join_failed", err.Error())
		return
	}
	c.watch(s)
}

func (c *Connection) handleLeaveTable(req *Message, data TableData) {
	s := c.session(req, data.TableID)
	if s == nil {
		return
	}
	if err := s.Leave(c.userID); err != nil && !errors.Is(err, game.ErrNotSeated) {
		c.sendError(req, "leave_failed", err.Error())
		return
	}
	s.Unsubscribe(c)
	c.mu.Lock()
	delete(c.tables, s.ID())
	c.mu.Unlock()
	c.reply(req, MessageTypeTableLeft, TableData{TableID: s.ID()})
}

func (c *Connection) handleSpectate(req *Message, data TableData) {
	s := c.session(req, data.TableID)
	if s == nil {
		return
	}
	if err := s.Subscribe(c.userID, c); err != nil {
		c.sendError(req, "spectate_failed", err.Error())
		return
	}
	c.watch(s)
}

func (c *Connection) handlePlayerAction(req *Message, data PlayerActionData) {
	s := c.session(req, data.TableID)
	if s == nil {
		return
	}
	err := s.SubmitAction(c.userID, data.Action, data.Amount)
	var rejected *game.ActionError
	switch {
	case err == nil:
	case errors.As(err, &rejected), errors.Is(err, game.ErrNotSeated):
		c.reply(req, MessageTypeActionRejected, rejection(err))
	default:
		c.sendError(req, "action_failed", err.Error())
	}
}

func (c *Connection) handleChat(req *Message, data ChatData) {
	s := c.session(req, data.TableID)
	if s == nil {
		return
	}
	if err := s.Chat(c.userID, c.name, data.Text); err != nil {
		c.sendError(req, "chat_failed", err.Error())
	}
}
