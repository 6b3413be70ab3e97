// Package game implements the Game Coordinator and Game Supervisor: one
// actor goroutine per active room, wrapping the rules engine in a
// single-writer discipline, and a registry that creates/destroys those
// actors by room code. The Room Manager never touches engine state
// directly; it only ever talks to a Coordinator through this package's
// exported methods, which are all serialized requests to the actor's own
// goroutine, mirroring internal/roommanager's actor shape.
package game

import (
	"errors"
	"log/slog"

	"github.com/pidro/roomserver/internal/engine"
	"github.com/pidro/roomserver/internal/metrics"
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/seat"
)

// ErrAlreadyStarted is returned by the Supervisor when a coordinator for a
// room code already exists.
var ErrAlreadyStarted = errors.New("already_started")

// ErrNotFound is returned when no coordinator is registered for a code.
var ErrNotFound = errors.New("not_found")

// StateUpdate is the payload of a game:<code> state_update event.
type StateUpdate struct {
	Seq   uint64
	State engine.MaskedState
}

// GameOver is the payload of a game:<code> game_over event.
type GameOver struct {
	Winner  seat.Team
	Scores  map[seat.Team]int
	Aborted bool
}

// Coordinator owns exactly one engine State for one room and serializes
// every read and mutation of it.
type Coordinator struct {
	code string
	pub  *pubsub.Fabric
	game engine.Rules

	reqs    chan func()
	stopCh  chan struct{}
	stopped chan struct{}

	state engine.State
	seq   uint64
	rng   func(n int) int

	// onCrash is set by the Supervisor before run(); it fires if the actor
	// goroutine panics, so the Supervisor can deregister and broadcast an
	// aborted game_over.
	onCrash func(any)
}

// newCoordinator builds a coordinator but does not start its actor loop or
// deal the opening hand; callers use Start via the Supervisor.
func newCoordinator(code string, pub *pubsub.Fabric, rules engine.Rules, rng func(n int) int) *Coordinator {
	return &Coordinator{
		code:    code,
		pub:     pub,
		game:    rules,
		reqs:    make(chan func(), 64),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
		rng:     rng,
	}
}

func (c *Coordinator) run(playerIDs []positions.PlayerID) {
	c.state = c.game.InitialState(playerIDs, c.rng)
	metrics.ActiveGames.Inc()
	go c.loop()
}

func (c *Coordinator) loop() {
	defer func() {
		metrics.ActiveGames.Dec()
		select {
		case <-c.stopped:
		default:
			close(c.stopped)
		}
		if r := recover(); r != nil && c.onCrash != nil {
			c.onCrash(r)
		}
	}()
	// The opening deal is itself the first published state, so subscribers
	// who join at t=0 (including the Room Manager's own game-over watch and
	// any bot spawned synchronously alongside game start) observe sequence 0
	// without a separate "kickoff" message.
	c.publishState()
	for {
		select {
		case f := <-c.reqs:
			f()
		case <-c.stopCh:
			return
		}
	}
}

// exec runs f on the actor goroutine and blocks until it completes. If the
// actor is stopped (or died to a panic) before f runs, exec returns
// without running it, so callers holding a stale handle never hang.
func (c *Coordinator) exec(f func()) {
	done := make(chan struct{})
	select {
	case c.reqs <- func() { f(); close(done) }:
	case <-c.stopCh:
		return
	case <-c.stopped:
		return
	}
	select {
	case <-done:
	case <-c.stopCh:
	case <-c.stopped:
	}
}

// Stop halts the actor loop. Idempotent.
func (c *Coordinator) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	close(c.stopCh)
	<-c.stopped
}

// GetState returns the engine-masked projection for viewer. A nil viewer gets
// the spectator projection; the full unmasked state (hands, widow) is never
// returned.
func (c *Coordinator) GetState(viewer *engine.Viewer) engine.MaskedState {
	var out engine.MaskedState
	c.exec(func() {
		v := engine.ForSpectator()
		if viewer != nil {
			v = *viewer
		}
		out = c.game.MaskStateFor(c.state, v)
	})
	return out
}

// LegalActions delegates to the engine for sq. May be empty.
func (c *Coordinator) LegalActions(sq seat.Seat) []engine.Action {
	var out []engine.Action
	c.exec(func() {
		out = c.game.LegalActions(c.state, sq)
	})
	return out
}

// ApplyAction delegates to the engine. On success it publishes state_update
// (and game_over if the new phase is terminal) before returning; the Room
// Manager marks the room finished when it observes that game_over.
func (c *Coordinator) ApplyAction(sq seat.Seat, a engine.Action) (engine.MaskedState, error) {
	var out engine.MaskedState
	var err error
	c.exec(func() {
		next, aerr := c.game.ApplyAction(c.state, sq, a)
		if aerr != nil {
			metrics.GameActionsTotal.WithLabelValues(string(a.Kind), "rejected").Inc()
			err = aerr
			return
		}
		c.state = next
		metrics.GameActionsTotal.WithLabelValues(string(a.Kind), "ok").Inc()
		c.publishState()
		out = c.game.MaskStateFor(c.state, engine.ForSeat(sq))

		if c.game.Phase(c.state) == engine.PhaseComplete {
			c.publishGameOver(false)
		}
	})
	return out, err
}

// publishState publishes the current state with the next sequence number.
// Sequences start at 0, the opening deal.
func (c *Coordinator) publishState() {
	seq := c.seq
	c.seq++
	c.pub.Publish(pubsub.Message{
		Topic: pubsub.GameTopic(c.code),
		Event: "state_update",
		Seq:   seq,
		Payload: StateUpdate{
			Seq:   seq,
			State: c.game.MaskStateFor(c.state, engine.ForSpectator()),
		},
	})
	metrics.GameStateSequence.WithLabelValues(c.code).Set(float64(seq))
}

// publishGameOver emits the terminal game_over event with the winner and
// match scores. Its only caller passes aborted=false; a coordinator crash
// publishes its aborted game_over through abort instead.
func (c *Coordinator) publishGameOver(aborted bool) {
	winner, _ := c.game.Winner(c.state)
	c.pub.Publish(pubsub.Message{
		Topic: pubsub.GameTopic(c.code),
		Event: "game_over",
		Payload: GameOver{
			Winner:  winner,
			Scores:  c.state.MatchScore,
			Aborted: aborted,
		},
	})
}

// abort is invoked by the Supervisor when the coordinator's own goroutine
// panics: a coordinator crash ends the game. It publishes an aborted
// game_over from outside the actor loop, since the loop itself is the
// thing that died.
func (c *Coordinator) abort() {
	c.pub.Publish(pubsub.Message{
		Topic:   pubsub.GameTopic(c.code),
		Event:   "game_over",
		Payload: GameOver{Aborted: true},
	})
}

func logCoordinatorPanic(code string, r any) {
	slog.Error("game coordinator panicked, room aborted", "room_code", code, "panic", r)
}
