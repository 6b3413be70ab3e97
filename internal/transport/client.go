package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pidro/roomserver/internal/engine"
	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/logging"
	"github.com/pidro/roomserver/internal/metrics"
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/roommanager"
	"github.com/pidro/roomserver/internal/seat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsConnection is the subset of *websocket.Conn a Client depends on,
// narrowed so a fake can stand in for tests.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Client is one connected socket subscribed to a single room. It owns no
// game state of its own: every inbound ClientMessage is translated into a
// core call, and every outbound ServerMessage is either a direct reply or
// a relayed pubsub event.
type Client struct {
	conn   wsConnection
	send   chan []byte
	srv    *Server
	code   string
	player positions.PlayerID

	seat   seat.Seat
	isHost bool

	roomSub *pubsub.Subscription
	gameSub *pubsub.Subscription

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(srv *Server, conn wsConnection, code string, player positions.PlayerID, s seat.Seat, isHost bool) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		srv:    srv,
		code:   code,
		player: player,
		seat:   s,
		isHost: isHost,
		done:   make(chan struct{}),
	}
}

// run starts the client's pumps and blocks until the connection closes. It
// is called synchronously from the HTTP handler goroutine that performed
// the upgrade.
func (c *Client) run() {
	c.roomSub = c.srv.pub.Subscribe(pubsub.RoomTopic(c.code))
	c.gameSub = c.srv.pub.Subscribe(pubsub.GameTopic(c.code))
	metrics.WebSocketConnections.Inc()

	go c.relayPubsub()
	go c.writePump()

	if c.isHost {
		if err := c.srv.rooms.NotifyHostSubscribed(c.code); err != nil {
			logging.Warn(context.Background(), "practice bot spawn failed", zap.String("room_code", c.code), zap.Error(err))
		}
	}

	// Every resubscribe doubles as a reconnect attempt; the Room Manager
	// decides whether this player is resuming within grace, reclaiming a
	// bot-held seat, or simply was never disconnected. On success the seat
	// is re-resolved from the returned room, since a reclaim changes it out
	// from under the snapshot the upgrade handler saw.
	if room, err := c.srv.rooms.HandleReconnect(c.code, c.player); err == nil {
		if s, seated := room.Positions.GetSeat(c.player); seated {
			c.seat = s
		}
	} else if !errors.Is(err, roommanager.ErrPlayerNotDisconnected) && !errors.Is(err, roommanager.ErrRoomNotFound) {
		logging.Warn(context.Background(), "reconnect on resubscribe failed", zap.String("room_code", c.code), zap.Error(err))
	}

	c.sendInitialState()
	c.readPump()
}

// sendInitialState replies to the implicit subscribe with the connecting
// seat's view of the current game state.
func (c *Client) sendInitialState() {
	game, ok := c.srv.games.Lookup(c.code)
	if !ok {
		return
	}
	viewer := engine.ForSpectator()
	if c.seat.Valid() {
		viewer = engine.ForSeat(c.seat)
	}
	state := game.GetState(&viewer)
	c.sendJSON(ServerMessage{Type: ServerMsgStateUpdate, State: &state})
}

// readPump reads ClientMessages until the connection errors or closes, then
// tears the subscription down and signals the disconnect to the Room
// Manager for any player occupying a seat.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(context.Background(), "websocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendJSON(ServerMessage{Type: ServerMsgError, Error: "malformed_message"})
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case ClientMsgGetState:
		c.sendInitialState()
	case ClientMsgApplyAction:
		c.applyAction(msg.Action)
	case ClientMsgLeaveRoom:
		if err := c.srv.rooms.LeaveRoom(c.player); err != nil {
			c.sendJSON(ServerMessage{Type: ServerMsgError, Error: err.Error()})
			return
		}
		c.close()
	default:
		c.sendJSON(ServerMessage{Type: ServerMsgError, Error: "unknown_message_type"})
	}
}

func (c *Client) applyAction(action engine.Action) {
	if !c.seat.Valid() {
		c.sendJSON(ServerMessage{Type: ServerMsgError, Error: "spectator_cannot_act"})
		return
	}
	g, ok := c.srv.games.Lookup(c.code)
	if !ok {
		c.sendJSON(ServerMessage{Type: ServerMsgError, Error: "game_not_started"})
		return
	}
	state, err := g.ApplyAction(c.seat, action)
	if err != nil {
		c.sendJSON(ServerMessage{Type: ServerMsgError, Error: err.Error()})
		return
	}
	metrics.GameActionsTotal.WithLabelValues(string(action.Kind), "ok").Inc()
	// The coordinator has already published state_update on game:<code>;
	// relayPubsub delivers it. This direct reply covers the case where no
	// other subscriber is listening (practice room with one human).
	c.sendJSON(ServerMessage{Type: ServerMsgStateUpdate, State: &state})
}

// relayPubsub forwards every message on the room and game subscriptions to
// the socket until the client closes, translating the Fabric's internal
// Message into the wire ServerMessage shape.
func (c *Client) relayPubsub() {
	for {
		select {
		case msg, ok := <-c.roomSub.C:
			if !ok {
				return
			}
			c.relayRoomEvent(msg)
		case msg, ok := <-c.gameSub.C:
			if !ok {
				return
			}
			c.relayGameEvent(msg)
		case <-c.done:
			return
		}
	}
}

func (c *Client) relayRoomEvent(msg pubsub.Message) {
	switch msg.Event {
	case "room_update":
		room, ok := msg.Payload.(roommanager.Room)
		if !ok {
			return
		}
		c.sendJSON(ServerMessage{Type: ServerMsgRoomUpdate, Room: &room})
	case "room_closed":
		c.sendJSON(ServerMessage{Type: ServerMsgRoomClosed})
		c.close()
	case "bot_replaced_player":
		p, ok := msg.Payload.(roommanager.BotReplacedPlayer)
		if !ok {
			return
		}
		c.sendJSON(ServerMessage{
			Type:             ServerMsgBotReplacedPlayer,
			Seat:             p.Seat,
			OriginalPlayerID: string(p.OriginalPlayerID),
			BotID:            string(p.BotID),
		})
	case "player_reclaimed_seat":
		p, ok := msg.Payload.(roommanager.PlayerReclaimedSeat)
		if !ok {
			return
		}
		c.sendJSON(ServerMessage{
			Type:     ServerMsgPlayerReclaimedSeat,
			Seat:     p.Seat,
			PlayerID: string(p.PlayerID),
		})
	}
}

func (c *Client) relayGameEvent(msg pubsub.Message) {
	switch msg.Event {
	case "state_update":
		update, ok := msg.Payload.(game.StateUpdate)
		if !ok {
			return
		}
		c.sendJSON(ServerMessage{Type: ServerMsgStateUpdate, Seq: update.Seq, State: &update.State})
	case "game_over":
		over, ok := msg.Payload.(game.GameOver)
		if !ok {
			return
		}
		c.sendJSON(ServerMessage{Type: ServerMsgGameOver, Winner: over.Winner, Scores: over.Scores, Aborted: over.Aborted})
	}
}

func (c *Client) sendJSON(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal server message", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "client send buffer full, dropping message", zap.String("room_code", c.code))
	}
}

// writePump drains the send channel to the socket and pings on an
// interval. It is the only goroutine that writes to the connection and
// readPump the only one that reads from it; close may close it from
// either readPump or relayPubsub.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.roomSub != nil {
			c.roomSub.Close()
		}
		if c.gameSub != nil {
			c.gameSub.Close()
		}
		c.conn.Close()
		metrics.WebSocketConnections.Dec()

		if c.seat.Valid() {
			if err := c.srv.rooms.HandleDisconnect(c.code, c.player); err != nil && !errors.Is(err, roommanager.ErrRoomNotFound) && !errors.Is(err, roommanager.ErrNotInRoom) {
				logging.Warn(context.Background(), "handle_disconnect failed", zap.String("room_code", c.code), zap.Error(err))
			}
		}
	})
}
