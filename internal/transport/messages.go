package transport

import (
	"github.com/pidro/roomserver/internal/engine"
	"github.com/pidro/roomserver/internal/roommanager"
	"github.com/pidro/roomserver/internal/seat"
)

// ClientMessage is the JSON envelope a connected socket sends. Type
// selects which field is populated.
type ClientMessage struct {
	Type   string        `json:"type"`
	Action engine.Action `json:"action,omitempty"`
}

const (
	ClientMsgGetState    = "get_state"
	ClientMsgApplyAction = "apply_action"
	ClientMsgLeaveRoom   = "leave_room"
)

// ServerMessage is the JSON envelope pushed to a connected socket: either a
// direct reply to a ClientMessage, or a relayed event from the room:<code>
// or game:<code> topic. A Client does not subscribe to lobby:updates, so
// the lobby fields below (Rooms, ServerMsgLobbyUpdate) are never sent.
type ServerMessage struct {
	Type string `json:"type"`

	// game:<code>
	Seq     uint64              `json:"seq,omitempty"`
	State   *engine.MaskedState `json:"state,omitempty"`
	Winner  seat.Team           `json:"winner,omitempty"`
	Scores  map[seat.Team]int   `json:"scores,omitempty"`
	Aborted bool                `json:"aborted,omitempty"`

	// room:<code>
	Room             *roommanager.Room `json:"room,omitempty"`
	Seat             seat.Seat         `json:"seat,omitempty"`
	OriginalPlayerID string            `json:"originalPlayerId,omitempty"`
	BotID            string            `json:"botId,omitempty"`
	PlayerID         string            `json:"playerId,omitempty"`

	// lobby:updates
	Rooms []roommanager.Room `json:"rooms,omitempty"`

	Error string `json:"error,omitempty"`
}

const (
	ServerMsgStateUpdate         = "state_update"
	ServerMsgGameOver            = "game_over"
	ServerMsgRoomUpdate          = "room_update"
	ServerMsgRoomClosed          = "room_closed"
	ServerMsgBotReplacedPlayer   = "bot_replaced_player"
	ServerMsgPlayerReclaimedSeat = "player_reclaimed_seat"
	ServerMsgLobbyUpdate         = "lobby_update"
	ServerMsgError               = "error"
)
