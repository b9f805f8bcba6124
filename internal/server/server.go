// Package server exposes tables and tournaments over HTTP and websockets.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lox/housepoker/internal/auth"
	"github.com/lox/housepoker/internal/store"
	"github.com/lox/housepoker/internal/table"
	"github.com/lox/housepoker/internal/tournament"
)

// UserHeader carries the caller's user id when no Validator is configured
// and authentication happens in front of this server.
const UserHeader = "X-User-ID"

// Options tune the server.
type Options struct {
	// ActionRate and ActionBurst limit inbound websocket messages per
	// connection.
	ActionRate     rate.Limit
	ActionBurst    int
	OpeningBalance int64
	// Auth, when set, requires a bearer token on every user request.
	Auth auth.Validator
}

// Server is the HTTP and websocket front of the poker server.
type Server struct {
	registry    *table.Registry
	tournaments *tournament.Manager
	store       *store.Store
	opts        Options
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
	engine      *gin.Engine

	mu          sync.RWMutex
	connections map[*Connection]struct{}
}

// New creates a server. It implements tournament.Publisher so tournament
// events reach the clients following them.
func New(registry *table.Registry, tournaments *tournament.Manager, st *store.Store, opts Options, logger zerolog.Logger) *Server {
	if opts.ActionRate <= 0 {
		opts.ActionRate = 10
	}
	if opts.ActionBurst <= 0 {
		opts.ActionBurst = 20
	}
	s := &Server{
		registry:    registry,
		tournaments: tournaments,
		store:       st,
		opts:        opts,
		logger:      logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			// clients are served from other origins
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]struct{}),
	}
	s.engine = s.routes()
	return s
}

// SetTournaments attaches the tournament manager. The manager needs the
// server as its publisher, so one of them is wired after construction.
func (s *Server) SetTournaments(m *tournament.Manager) {
	s.tournaments = m
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then closes every
// connection.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Publish implements tournament.Publisher.
func (s *Server) Publish(e tournament.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.connections {
		c.sendTournament(e)
	}
}

// ConnectionCount returns the number of open websocket connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.requireUser, s.handleWebSocket)

	api := r.Group("/api")
	api.GET("/tables", s.listTables)
	api.GET("/tables/:id", s.getTable)
	api.GET("/tournaments", s.listTournaments)
	api.GET("/tournaments/:id", s.getTournament)
	api.POST("/tournaments/:id/register", s.requireUser, s.registerTournament)
	api.DELETE("/tournaments/:id/register", s.requireUser, s.unregisterTournament)
	api.GET("/me", s.requireUser, s.getMe)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, apiError{Code: code, Message: message})
}

// userID reads the caller from the header, or from the query string for
// browser websockets that cannot set headers.
func userID(c *gin.Context) string {
	if id := c.GetHeader(UserHeader); id != "" {
		return id
	}
	return c.Query("user_id")
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// identify resolves the caller. It aborts the request and returns nil when
// that fails.
func (s *Server) identify(c *gin.Context) *auth.Identity {
	if s.opts.Auth == nil {
		id := userID(c)
		if id == "" {
			abort(c, http.StatusUnauthorized, "unauthenticated", UserHeader+" header required")
			return nil
		}
		name := c.Query("name")
		if name == "" {
			name = id
		}
		return &auth.Identity{UserID: id, Name: name}
	}

	ident, err := s.opts.Auth.Validate(c.Request.Context(), bearerToken(c))
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		abort(c, http.StatusUnauthorized, "invalid_token", "Invalid or missing bearer token")
		return nil
	case err != nil:
		s.logger.Warn().Err(err).Msg("Token validation failed")
		abort(c, http.StatusServiceUnavailable, "auth_unavailable", "Authentication service unavailable")
		return nil
	}
	return ident
}

func (s *Server) requireUser(c *gin.Context) {
	ident := s.identify(c)
	if ident == nil {
		return
	}
	u, err := s.store.EnsureUser(c.Request.Context(), ident.UserID, ident.Name, s.opts.OpeningBalance)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", ident.UserID).Msg("Failed to load user")
		abort(c, http.StatusServiceUnavailable, "store_unavailable", "User store unavailable")
		return
	}
	c.Set("user", u)
	c.Next()
}

func currentUser(c *gin.Context) *store.User {
	return c.MustGet("user").(*store.User)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "tables": len(s.registry.Sessions()), "connections": s.ConnectionCount()}
	if err := s.store.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["store"] = err.Error()
	}
	c.JSON(status, body)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	u := currentUser(c)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := newConnection(conn, u.ID, u.Name, s)
	s.mu.Lock()
	s.connections[client] = struct{}{}
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info().Str("user_id", u.ID).Int("total", total).Msg("Client connected")

	client.Start()
	client.reply(&Message{}, MessageTypeWelcome, WelcomeData{UserID: u.ID, Name: u.Name, Balance: u.Balance, ServerTime: time.Now()})

	go func() {
		<-client.Done()
		s.unregister(client)
	}()
}

// unregister forgets a closed connection. Seats it held are marked away
// unless another connection of the same user still watches the table.
func (s *Server) unregister(client *Connection) {
	s.mu.Lock()
	delete(s.connections, client)
	total := len(s.connections)
	others := make([]*Connection, 0)
	for c := range s.connections {
		if c.userID == client.userID {
			others = append(others, c)
		}
	}
	s.mu.Unlock()

	for _, sess := range client.sessions() {
		sess.Unsubscribe(client)
		stillHere := false
		for _, o := range others {
			if o.watching(sess.ID()) {
				stillHere = true
				break
			}
		}
		if !stillHere {
			if err := sess.Disconnect(client.userID); err != nil && !errors.Is(err, table.ErrClosed) {
				s.logger.Warn().Err(err).Str("table_id", sess.ID()).Msg("Failed to mark player away")
			}
		}
	}
	s.logger.Info().Str("user_id", client.userID).Int("total", total).Msg("Client disconnected")
}

func (s *Server) listTables(c *gin.Context) {
	c.JSON(http.StatusOK, TableListData{Tables: s.registry.List()})
}

func (s *Server) getTable(c *gin.Context) {
	sess, ok := s.registry.Get(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, "table_not_found", "No table "+c.Param("id"))
		return
	}
	v, err := sess.View(s.viewer(c))
	if err != nil {
		abort(c, http.StatusGone, "table_closed", err.Error())
		return
	}
	c.JSON(http.StatusOK, v)
}

// viewer is the caller for optional-identity routes; anonymous callers see
// the table as a spectator.
func (s *Server) viewer(c *gin.Context) string {
	if s.opts.Auth == nil {
		return userID(c)
	}
	token := bearerToken(c)
	if token == "" {
		return ""
	}
	ident, err := s.opts.Auth.Validate(c.Request.Context(), token)
	if err != nil {
		return ""
	}
	return ident.UserID
}

func (s *Server) listTournaments(c *gin.Context) {
	var statuses []store.TournamentStatus
	for _, st := range c.QueryArray("status") {
		statuses = append(statuses, store.TournamentStatus(st))
	}
	list, err := s.tournaments.List(c.Request.Context(), statuses...)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tournaments": list})
}

func tournamentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_id", "Tournament id must be a number")
		return 0, false
	}
	return id, true
}

func (s *Server) getTournament(c *gin.Context) {
	id, ok := tournamentID(c)
	if !ok {
		return
	}
	info, err := s.tournaments.Get(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) registerTournament(c *gin.Context) {
	id, ok := tournamentID(c)
	if !ok {
		return
	}
	entry, err := s.tournaments.Register(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		s.registrationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) unregisterTournament(c *gin.Context) {
	id, ok := tournamentID(c)
	if !ok {
		return
	}
	if err := s.tournaments.Unregister(c.Request.Context(), id, currentUser(c).ID); err != nil {
		s.registrationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) registrationError(c *gin.Context, err error) {
	var rejected *tournament.RegistrationError
	if !errors.As(err, &rejected) {
		s.storeError(c, err)
		return
	}
	status := http.StatusConflict
	switch rejected.Reason {
	case "not_found":
		status = http.StatusNotFound
	case "insufficient_balance":
		status = http.StatusPaymentRequired
	}
	abort(c, status, rejected.Reason, rejected.Error())
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	abort(c, http.StatusInternalServerError, "internal", "Internal error")
}
