package game

import (
	"math/rand"
	"sync"

	"github.com/pidro/roomserver/internal/engine"
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/pubsub"
)

// Supervisor is a dynamic collection of Coordinator children keyed by room
// code, with a unique-name registry so duplicate starts fail
// ErrAlreadyStarted. On an abnormal child exit (engine panic) it does not
// restart the coordinator: an engine crash indicates corrupt state.
type Supervisor struct {
	mu    sync.Mutex
	games map[string]*Coordinator
	pub   *pubsub.Fabric
	rules engine.Rules

	// rngFor builds the per-hand shuffle source for a new coordinator.
	// Overridden in tests for determinism.
	rngFor func() func(n int) int
}

// NewSupervisor constructs a Supervisor backed by rules, publishing every
// coordinator's events on pub.
func NewSupervisor(pub *pubsub.Fabric, rules engine.Rules) *Supervisor {
	return &Supervisor{
		games:  make(map[string]*Coordinator),
		pub:    pub,
		rules:  rules,
		rngFor: func() func(n int) int { return rand.Intn },
	}
}

// StartGame creates and starts a Coordinator for code, dealing the opening
// hand from playerIDs in canonical seat order. Satisfies
// internal/roommanager.GameSupervisor.
func (s *Supervisor) StartGame(code string, playerIDs []positions.PlayerID) error {
	s.mu.Lock()
	if _, exists := s.games[code]; exists {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	c := newCoordinator(code, s.pub, s.rules, s.rngFor())
	c.onCrash = func(r any) {
		logCoordinatorPanic(code, r)
		c.abort()
		s.mu.Lock()
		delete(s.games, code)
		s.mu.Unlock()
	}
	s.games[code] = c
	s.mu.Unlock()

	c.run(playerIDs)
	return nil
}

// StopGame halts and deregisters the coordinator for code. A stop on an
// unknown code is a no-op success (mirrors the Bot Manager's idempotent
// crash-cleanup stance applied to the one-coordinator-per-room case).
func (s *Supervisor) StopGame(code string) error {
	s.mu.Lock()
	c, ok := s.games[code]
	delete(s.games, code)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	c.Stop()
	return nil
}

// Lookup returns the running coordinator for code, if any.
func (s *Supervisor) Lookup(code string) (*Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.games[code]
	return c, ok
}

// ListGames returns the room codes of every currently-running coordinator.
func (s *Supervisor) ListGames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.games))
	for code := range s.games {
		out = append(out, code)
	}
	return out
}
