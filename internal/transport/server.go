// Package transport exposes the room/game core over the wire: an HTTP API
// for room CRUD and a WebSocket channel per connected socket for game
// play. It is a thin translation layer (client requests become calls on
// the core) and owns no game or room state itself.
package transport

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pidro/roomserver/internal/auth"
	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/logging"
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/ratelimit"
	"github.com/pidro/roomserver/internal/roommanager"
	"github.com/pidro/roomserver/internal/seat"
)

// TokenValidator is the transport's view of internal/auth.Validator,
// narrowed so tests can substitute a fake.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Server wires the room/game core to gin's HTTP router and a WebSocket
// upgrader: authenticate, then hand the connection off to a per-socket
// Client.
type Server struct {
	Engine *gin.Engine

	rooms     *roommanager.Manager
	games     *game.Supervisor
	pub       *pubsub.Fabric
	validator TokenValidator
	limiter   *ratelimit.RateLimiter

	allowedOrigins []string
}

// New constructs a Server and registers every route.
func New(rooms *roommanager.Manager, games *game.Supervisor, pub *pubsub.Fabric, validator TokenValidator, limiter *ratelimit.RateLimiter, allowedOrigins []string) *Server {
	s := &Server{
		Engine:         gin.New(),
		rooms:          rooms,
		games:          games,
		pub:            pub,
		validator:      validator,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Engine.Use(gin.Recovery())

	api := s.Engine.Group("/api")
	api.Use(s.authMiddleware())
	if s.limiter != nil {
		api.Use(s.limiter.GlobalMiddleware())
	}

	api.POST("/rooms", s.withLimit("rooms", s.handleCreateRoom))
	api.GET("/rooms", s.handleListRooms)
	api.GET("/rooms/:code", s.handleGetRoom)
	api.POST("/rooms/:code/join", s.withLimit("rooms", s.handleJoinRoom))
	api.POST("/rooms/:code/leave", s.handleLeaveRoom)

	s.Engine.GET("/ws/rooms/:code", s.handleWebSocket)
}

func (s *Server) withLimit(endpointType string, handler gin.HandlerFunc) gin.HandlerFunc {
	if s.limiter == nil {
		return handler
	}
	mw := s.limiter.MiddlewareForEndpoint(endpointType)
	return func(c *gin.Context) {
		mw(c)
		if c.IsAborted() {
			return
		}
		handler(c)
	}
}

// authMiddleware validates the bearer token and stores both the raw claims
// (for rate limiting) and the resolved player-id used by every handler
// below.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c.Request)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
			return
		}
		claims, err := s.validator.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Set("playerID", positions.PlayerID(claims.Subject))
		c.Next()
	}
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func playerIDFrom(c *gin.Context) positions.PlayerID {
	v, _ := c.Get("playerID")
	pid, _ := v.(positions.PlayerID)
	return pid
}

// --- HTTP handlers --------------------------------------------------------

type createRoomRequest struct {
	RoomType string   `json:"roomType"`
	BotSeats []string `json:"botSeats,omitempty"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_request"})
		return
	}

	meta := roommanager.Meta{RoomType: roommanager.RoomTypeStandard}
	if req.RoomType == string(roommanager.RoomTypePractice) {
		meta.RoomType = roommanager.RoomTypePractice
		meta.BotSeats = make(map[seat.Seat]bool, len(req.BotSeats))
		for _, raw := range req.BotSeats {
			sq := seat.Seat(strings.ToUpper(raw))
			if !sq.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_choice"})
				return
			}
			meta.BotSeats[sq] = true
		}
	}

	room, err := s.rooms.CreateRoom(playerIDFrom(c), meta)
	if err != nil {
		writeRoomError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (s *Server) handleListRooms(c *gin.Context) {
	filter := roommanager.ListFilter(c.DefaultQuery("filter", string(roommanager.FilterAvailable)))
	c.JSON(http.StatusOK, s.rooms.ListRooms(filter))
}

func (s *Server) handleGetRoom(c *gin.Context) {
	code := normalizeCode(c.Param("code"))
	room, err := s.rooms.GetRoom(code)
	if err != nil {
		writeRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type joinRoomRequest struct {
	Seat string `json:"seat,omitempty"`
	Team string `json:"team,omitempty"`
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	code := normalizeCode(c.Param("code"))

	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_request"})
		return
	}

	choice, err := parseChoice(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_choice"})
		return
	}

	room, sq, err := s.rooms.JoinRoom(code, playerIDFrom(c), choice)
	if err != nil {
		writeRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "seat": sq})
}

func parseChoice(req joinRoomRequest) (positions.Choice, error) {
	switch {
	case req.Seat != "":
		sq := seat.Seat(strings.ToUpper(req.Seat))
		if !sq.Valid() {
			return positions.Choice{}, roommanager.ErrInvalidChoice
		}
		return positions.AtSeat(sq), nil
	case req.Team != "":
		t, ok := seat.ParseTeam(req.Team)
		if !ok {
			return positions.Choice{}, roommanager.ErrInvalidChoice
		}
		return positions.OnTeam(t), nil
	default:
		return positions.Auto(), nil
	}
}

func (s *Server) handleLeaveRoom(c *gin.Context) {
	if err := s.rooms.LeaveRoom(playerIDFrom(c)); err != nil {
		writeRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func writeRoomError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, roommanager.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, roommanager.ErrNotInRoom), errors.Is(err, roommanager.ErrPlayerNotDisconnected):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func normalizeCode(code string) string {
	return strings.ToUpper(code)
}

// --- WebSocket upgrade -----------------------------------------------------

// handleWebSocket authenticates the connecting socket, resolves it to a
// seat (or spectator) in the room, and upgrades the HTTP connection.
func (s *Server) handleWebSocket(c *gin.Context) {
	code := normalizeCode(c.Param("code"))

	tokenString := extractToken(c.Request)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}
	claims, err := s.validator.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	player := positions.PlayerID(claims.Subject)

	if s.limiter != nil {
		if !s.limiter.CheckWebSocket(c) {
			return
		}
		if err := s.limiter.CheckWebSocketUser(c.Request.Context(), string(player)); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
	}

	room, err := s.rooms.GetRoom(code)
	if err != nil {
		writeRoomError(c, err)
		return
	}
	playerSeat, _ := room.Positions.GetSeat(player)

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s, conn, code, player, playerSeat, player == room.HostID)
	client.run()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}
