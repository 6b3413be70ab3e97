// Package roommanager implements the Room Manager actor and the
// disconnect/reconnect/bot-replacement protocol. It is the single writer
// for every room's seating and lifecycle fields: nothing outside this
// package ever mutates a Room directly, and every mutation it makes is
// republished on the room's pubsub topics before the originating request
// returns.
package roommanager

import (
	"time"

	"k8s.io/utils/set"

	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/seat"
)

// Status is a room's lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
	StatusClosed   Status = "closed"
)

// RoomType distinguishes ordinary rooms from practice rooms, which seed
// pre-declared bot seats and are excluded from the public lobby listing.
type RoomType string

const (
	RoomTypeStandard RoomType = "standard"
	RoomTypePractice RoomType = "practice"
)

// Meta is the caller-supplied metadata accepted by CreateRoom.
type Meta struct {
	RoomType RoomType
	BotSeats map[seat.Seat]bool // practice rooms only: seats pre-declared as bot-occupied
}

// Room is an immutable snapshot handed back to callers. The Room Manager
// holds the live, mutable version internally; every exported accessor
// returns a copy so a caller can never corrupt the manager's state.
type Room struct {
	Code      string
	HostID    positions.PlayerID
	RoomType  RoomType
	Status    Status
	Positions positions.Positions

	BotSeats          map[seat.Seat]bool
	OriginalOccupants map[seat.Seat]positions.PlayerID
	Disconnected      map[positions.PlayerID]time.Time

	CreatedAt time.Time
}

// seatSetFromMap converts the wire-level map[Seat]bool callers pass in
// (CreateRoom's Meta.BotSeats) into the set.Set[Seat] the room holds
// internally.
func seatSetFromMap(m map[seat.Seat]bool) set.Set[seat.Seat] {
	s := set.New[seat.Seat]()
	for sq, v := range m {
		if v {
			s.Insert(sq)
		}
	}
	return s
}

// seatSetToMap renders a set.Set[Seat] back to the map[Seat]bool shape the
// exported Room snapshot uses, so callers outside this package never need
// to import k8s.io/utils/set themselves.
func seatSetToMap(s set.Set[seat.Seat]) map[seat.Seat]bool {
	out := make(map[seat.Seat]bool, s.Len())
	for _, sq := range s.UnsortedList() {
		out[sq] = true
	}
	return out
}

func clonePlayerMap(m map[seat.Seat]positions.PlayerID) map[seat.Seat]positions.PlayerID {
	out := make(map[seat.Seat]positions.PlayerID, len(m))
	for s, v := range m {
		out[s] = v
	}
	return out
}

func cloneDisconnected(m map[positions.PlayerID]time.Time) map[positions.PlayerID]time.Time {
	out := make(map[positions.PlayerID]time.Time, len(m))
	for pid, t := range m {
		out[pid] = t
	}
	return out
}

// internalRoom is the manager's own mutable copy; never handed outside the
// actor goroutine.
type internalRoom struct {
	code      string
	hostID    positions.PlayerID
	roomType  RoomType
	status    Status
	positions positions.Positions

	// botSeats tracks seats CURRENTLY occupied by a bot id, always a
	// subset of the seats whose positions entry is a bot id. It starts
	// empty even for a practice room; declaredBotSeats below is the
	// creation-time intent, consumed once by the lazy practice-bot spawn.
	botSeats            set.Set[seat.Seat]
	declaredBotSeats    set.Set[seat.Seat]
	practiceBotsSpawned bool
	originalOccupants   map[seat.Seat]positions.PlayerID
	disconnected        map[positions.PlayerID]time.Time

	createdAt time.Time

	// gameWatchCancel stops the goroutine that subscribes to this room's
	// game:<code> topic to react to game_over, set once a game starts.
	gameWatchCancel func()
}

func newInternalRoom(code string, roomType RoomType, declaredBotSeats map[seat.Seat]bool) *internalRoom {
	return &internalRoom{
		code:              code,
		roomType:          roomType,
		status:            StatusWaiting,
		positions:         positions.Empty(),
		botSeats:          set.New[seat.Seat](),
		declaredBotSeats:  seatSetFromMap(declaredBotSeats),
		originalOccupants: make(map[seat.Seat]positions.PlayerID),
		disconnected:      make(map[positions.PlayerID]time.Time),
		createdAt:         time.Now(),
	}
}

func (r *internalRoom) snapshot() Room {
	return Room{
		Code:              r.code,
		HostID:            r.hostID,
		RoomType:          r.roomType,
		Status:            r.status,
		Positions:         r.positions.Clone(),
		BotSeats:          seatSetToMap(r.botSeats),
		OriginalOccupants: clonePlayerMap(r.originalOccupants),
		Disconnected:      cloneDisconnected(r.disconnected),
		CreatedAt:         r.createdAt,
	}
}

// Listable reports whether the room belongs in the public lobby listing.
// Practice rooms are never listed.
func (r Room) Listable() bool {
	return r.RoomType != RoomTypePractice
}
