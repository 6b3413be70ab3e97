package bot

import (
	"errors"
	"sync"

	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/seat"
)

// ErrAlreadyExists is returned by StartBot when a bot already occupies
// (room, seat).
var ErrAlreadyExists = errors.New("already_exists")

// ErrNotFound is returned by StopBot/PauseBot/ResumeBot when no bot is
// indexed at (room, seat).
var ErrNotFound = errors.New("not_found")

// GameLookup is the Bot Manager's view of the Game Supervisor: given a room
// code, find the live Coordinator to hand a new Bot Player. Modeled as an
// interface for the same back-reference reason as GameHandle.
type GameLookup interface {
	Lookup(code string) (*game.Coordinator, bool)
}

type botKey struct {
	code string
	seat seat.Seat
}

// Info is the per-bot metadata ListBots exposes.
type Info struct {
	Strategy string
	Status   string // "running" or "paused"
}

type entry struct {
	player   *Player
	strategy string
	paused   bool
}

// Manager indexes every running Bot Player by (room, seat), starts/stops/
// pauses them via the Bot Supervisor, and monitors for crashes. StopBot is
// atomic and synchronous: the lookup entry is removed and the player
// fully stopped before StopBot returns, which is what defeats the
// stop/start race a concurrent reclaim and disconnect-timer could
// otherwise hit.
type Manager struct {
	mu      sync.Mutex
	players map[botKey]*entry

	sup *Supervisor
	pub *pubsub.Fabric
}

// NewManager constructs a Manager. games is consulted lazily, once per
// StartBot call, to resolve the Coordinator a new Bot Player should drive.
func NewManager(pub *pubsub.Fabric, games GameLookup) *Manager {
	return &Manager{
		players: make(map[botKey]*entry),
		sup:     newSupervisor(games),
		pub:     pub,
	}
}

// StartBot spawns a Bot Player for (code, s) running strat, or
// ErrAlreadyExists if one is already indexed there.
func (m *Manager) StartBot(code string, s seat.Seat, strat Strategy, delayMs int, strategyName string) error {
	key := botKey{code: code, seat: s}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.players[key]; exists {
		return ErrAlreadyExists
	}

	player, err := m.sup.spawn(code, s, strat, delayMs, m.pub, func() {
		// Crash callback: remove from the index idempotently; cleanup may
		// have already happened via StopBot.
		m.mu.Lock()
		delete(m.players, key)
		m.mu.Unlock()
	})
	if err != nil {
		return err
	}

	m.players[key] = &entry{player: player, strategy: strategyName}
	return nil
}

// StartBotDefault spawns a bot using the default random strategy and the
// "random" name; a convenience for the replacement path in
// internal/roommanager.
func (m *Manager) StartBotDefault(code string, s seat.Seat, delayMs int) error {
	return m.StartBot(code, s, RandomStrategy{}, delayMs, "random")
}

// StopBot synchronously stops and deregisters the bot at (code, s).
func (m *Manager) StopBot(code string, s seat.Seat) error {
	key := botKey{code: code, seat: s}

	m.mu.Lock()
	e, ok := m.players[key]
	delete(m.players, key)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if e.player != nil {
		e.player.Stop()
	}
	return nil
}

// StopAllBots synchronously stops every bot in code and always returns nil.
// A seat whose entry disappears between collecting the keys and its StopBot
// call (ErrNotFound) is already stopped, so that error is ignored.
func (m *Manager) StopAllBots(code string) error {
	m.mu.Lock()
	var keys []botKey
	for k := range m.players {
		if k.code == code {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	for _, k := range keys {
		_ = m.StopBot(k.code, k.seat)
	}
	return nil
}

// PauseBot pauses the bot at (code, s) without stopping it.
func (m *Manager) PauseBot(code string, s seat.Seat) error {
	m.mu.Lock()
	e, ok := m.players[botKey{code: code, seat: s}]
	m.mu.Unlock()
	if !ok || e.player == nil {
		return ErrNotFound
	}
	e.player.Pause()
	m.mu.Lock()
	e.paused = true
	m.mu.Unlock()
	return nil
}

// ResumeBot resumes a paused bot at (code, s).
func (m *Manager) ResumeBot(code string, s seat.Seat) error {
	m.mu.Lock()
	e, ok := m.players[botKey{code: code, seat: s}]
	m.mu.Unlock()
	if !ok || e.player == nil {
		return ErrNotFound
	}
	e.player.Resume()
	m.mu.Lock()
	e.paused = false
	m.mu.Unlock()
	return nil
}

// ListBots returns the currently indexed bots for code.
func (m *Manager) ListBots(code string) map[seat.Seat]Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[seat.Seat]Info)
	for k, e := range m.players {
		if k.code != code {
			continue
		}
		status := "running"
		if e.paused {
			status = "paused"
		}
		out[k.seat] = Info{Strategy: e.strategy, Status: status}
	}
	return out
}
