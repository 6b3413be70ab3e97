package bot

import (
	"log/slog"
	"time"

	"github.com/pidro/roomserver/internal/engine"
	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/metrics"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/seat"
)

// GameHandle is the narrow slice of the Game Coordinator (internal/game)
// a Bot Player needs. A bot holds no ownership over its coordinator, just
// this lookup-style back-reference, so tests can supply a fake instead of
// a live Coordinator.
type GameHandle interface {
	GetState(viewer *engine.Viewer) engine.MaskedState
	LegalActions(sq seat.Seat) []engine.Action
	ApplyAction(sq seat.Seat, a engine.Action) (engine.MaskedState, error)
}

type command int

const (
	cmdPause command = iota
	cmdResume
)

// Player is the Bot Player actor. One runs per occupied bot seat. Its
// entire state lives on a single goroutine; every field below is only ever
// touched from that goroutine once Start has been called.
type Player struct {
	code  string
	seat  seat.Seat
	strat Strategy
	delay time.Duration
	game  GameHandle

	sub  *pubsub.Subscription
	cmds chan command
	fire chan uint64

	stopCh  chan struct{}
	stopped chan struct{}

	paused      bool
	pendingSeq  uint64
	havePending bool
	timer       *time.Timer

	// onCrash is set by the Bot Supervisor before Start(); it fires if the
	// actor goroutine panics.
	onCrash func(any)
}

// NewPlayer constructs a Player. Call Start to subscribe and begin its loop.
func NewPlayer(code string, s seat.Seat, strat Strategy, delayMs int, game GameHandle, pub *pubsub.Fabric) *Player {
	return &Player{
		code:    code,
		seat:    s,
		strat:   strat,
		delay:   time.Duration(delayMs) * time.Millisecond,
		game:    game,
		sub:     pub.Subscribe(pubsub.GameTopic(code)),
		cmds:    make(chan command, 4),
		fire:    make(chan uint64, 1),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the actor loop in its own goroutine. The bot fetches the
// current state immediately and processes it as if it had just arrived via
// state_update, so a bot that starts mid-game (a fresh replacement) acts
// on the real current turn rather than waiting for the next engine
// transition.
func (p *Player) Start() {
	metrics.BotsActive.Inc()
	go p.loop()
}

func (p *Player) loop() {
	defer func() {
		p.cancelTimer()
		p.sub.Close()
		metrics.BotsActive.Dec()
		select {
		case <-p.stopped:
		default:
			close(p.stopped)
		}
		if r := recover(); r != nil && p.onCrash != nil {
			p.onCrash(r)
		}
	}()
	seq := uint64(0)
	viewer := engine.ForSeat(p.seat)
	initial := p.game.GetState(&viewer)
	p.onStateUpdate(seq, initial)

	for {
		select {
		case msg := <-p.sub.C:
			if su, ok := msg.Payload.(game.StateUpdate); ok {
				p.onStateUpdate(su.Seq, su.State)
			}
		case cmd := <-p.cmds:
			p.onCommand(cmd)
		case s := <-p.fire:
			p.onTimerFire(s)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Player) onCommand(cmd command) {
	switch cmd {
	case cmdPause:
		p.paused = true
		p.cancelTimer()
	case cmdResume:
		p.paused = false
	}
}

// onStateUpdate decides whether this update is worth a move: skip if
// paused, terminal, not our turn, or nothing is legal; otherwise arm the
// human-paced action timer.
func (p *Player) onStateUpdate(seq uint64, state engine.MaskedState) {
	if p.paused || state.Phase == engine.PhaseComplete {
		return
	}
	if state.CurrentTurn != p.seat {
		return
	}
	legal := p.game.LegalActions(p.seat)
	if len(legal) == 0 {
		return
	}
	p.scheduleTimer(seq)
}

func (p *Player) scheduleTimer(seq uint64) {
	p.cancelTimer()
	p.pendingSeq = seq
	p.havePending = true
	p.timer = time.AfterFunc(p.delay, func() {
		select {
		case p.fire <- seq:
		case <-p.stopCh:
		}
	})
}

func (p *Player) cancelTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.havePending = false
}

// onTimerFire re-fetches state and re-checks turn and legal actions (both
// may have changed since the timer was scheduled: a human may have
// reclaimed the seat, the phase may have advanced), and only then picks
// and applies an action. A stale fire (the pending sequence has since been
// superseded by a newer state_update, or cancelled by pause/Stop) is
// discarded.
func (p *Player) onTimerFire(seq uint64) {
	if !p.havePending || seq != p.pendingSeq {
		metrics.BotStaleTimersTotal.Inc()
		return
	}
	p.havePending = false
	p.timer = nil

	if p.paused {
		return
	}

	viewer := engine.ForSeat(p.seat)
	state := p.game.GetState(&viewer)
	if state.Phase == engine.PhaseComplete || state.CurrentTurn != p.seat {
		return
	}
	legal := p.game.LegalActions(p.seat)
	if len(legal) == 0 {
		return
	}

	action, reasoning := p.strat.Pick(legal, state)
	_, err := p.game.ApplyAction(p.seat, action)
	if err != nil {
		metrics.BotActionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("bot action rejected", "room_code", p.code, "seat", p.seat, "action", action.Kind, "error", err)
		return
	}
	metrics.BotActionsTotal.WithLabelValues("ok").Inc()
	slog.Debug("bot applied action", "room_code", p.code, "seat", p.seat, "action", action.Kind, "reasoning", reasoning)
}

// Pause cancels any pending timer and suppresses further turns until Resume.
func (p *Player) Pause() {
	select {
	case p.cmds <- cmdPause:
	case <-p.stopCh:
	}
}

// Resume re-enables the bot. It does not retroactively act on a turn it
// ignored while paused; the next state_update (or a resubscribe-driven
// Start-style refresh) will pick that up.
func (p *Player) Resume() {
	select {
	case p.cmds <- cmdResume:
	case <-p.stopCh:
	}
}

// Stop synchronously terminates the actor: by the time Stop returns, any
// pending action timer has been cancelled and the pubsub subscription is
// closed, so a reclaiming human can never be raced by a bot action that
// was already in flight. Safe to call more than once.
func (p *Player) Stop() {
	select {
	case <-p.stopped:
		return
	default:
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.stopped
}
