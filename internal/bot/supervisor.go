package bot

import (
	"fmt"
	"log/slog"

	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/seat"
)

// ErrGameNotFound is returned by spawn when the Game Supervisor has no
// running Coordinator for the requested room code.
var ErrGameNotFound = fmt.Errorf("supervisor_error: game not found")

// Supervisor dynamically spawns Bot Player actors and wires crash
// recovery, mirroring internal/game.Supervisor's shape for the
// one-actor-per-key case. It holds no index of its own: the Manager owns
// metadata and the index, the Supervisor owns spawn and crash detection.
type Supervisor struct {
	games GameLookup
}

func newSupervisor(games GameLookup) *Supervisor {
	return &Supervisor{games: games}
}

// spawn resolves the Coordinator for code, constructs a Player bound to it,
// wires onCrash, starts it, and returns the running handle.
func (s *Supervisor) spawn(code string, sq seat.Seat, strat Strategy, delayMs int, pub *pubsub.Fabric, onCrash func()) (*Player, error) {
	coord, ok := s.games.Lookup(code)
	if !ok {
		return nil, ErrGameNotFound
	}

	player := NewPlayer(code, sq, strat, delayMs, coord, pub)
	player.onCrash = func(r any) {
		slog.Error("bot player panicked", "room_code", code, "seat", sq, "panic", r)
		onCrash()
	}
	player.Start()
	return player, nil
}
