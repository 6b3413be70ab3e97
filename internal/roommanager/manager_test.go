package roommanager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/seat"
)

// fakeGames is a minimal GameSupervisor double: it just remembers which
// room codes are "started", so tests can assert the Room Manager started
// or stopped a game without spinning up a real internal/game.Coordinator.
type fakeGames struct {
	mu       sync.Mutex
	started  map[string][]positions.PlayerID
	failNext bool
}

func newFakeGames() *fakeGames {
	return &fakeGames{started: make(map[string][]positions.PlayerID)}
}

func (g *fakeGames) StartGame(code string, ids []positions.PlayerID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext {
		g.failNext = false
		return assert.AnError
	}
	g.started[code] = append([]positions.PlayerID(nil), ids...)
	return nil
}

func (g *fakeGames) StopGame(code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.started, code)
	return nil
}

func (g *fakeGames) isStarted(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.started[code]
	return ok
}

// fakeBots is a minimal BotManager double tracking (code, seat) bot state.
type fakeBots struct {
	mu      sync.Mutex
	running map[string]map[seat.Seat]bool
}

func newFakeBots() *fakeBots {
	return &fakeBots{running: make(map[string]map[seat.Seat]bool)}
}

func (b *fakeBots) StartBot(code string, s seat.Seat, delayMs int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running[code] == nil {
		b.running[code] = make(map[seat.Seat]bool)
	}
	b.running[code][s] = true
	return nil
}

func (b *fakeBots) StopBot(code string, s seat.Seat) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running[code], s)
	return nil
}

func (b *fakeBots) StopAllBots(code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.running, code)
	return nil
}

func (b *fakeBots) isRunning(code string, s seat.Seat) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running[code][s]
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeGames, *fakeBots, *pubsub.Fabric) {
	t.Helper()
	pub := pubsub.New()
	games := newFakeGames()
	bots := newFakeBots()
	m := New(pub, games, bots, cfg)
	m.Run()
	t.Cleanup(m.Stop)
	return m, games, bots, pub
}

func fastConfig() Config {
	return Config{
		ReplaceGrace:     50 * time.Millisecond,
		RemovalGrace:     80 * time.Millisecond,
		CleanupGrace:     20 * time.Millisecond,
		BotActionDelayMs: 1000,
	}
}

// Auto-start: three successive auto joins fill the room and
// start the game synchronously before the fourth join returns.
func TestAutoStartOnFourthJoin(t *testing.T) {
	m, games, _, _ := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, room.Status)
	assert.Equal(t, positions.PlayerID("h"), room.Positions[seat.North])

	_, _, err = m.JoinRoom(room.Code, "p2", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "p3", positions.Auto())
	require.NoError(t, err)
	final, s, err := m.JoinRoom(room.Code, "p4", positions.Auto())
	require.NoError(t, err)

	assert.Equal(t, seat.West, s)
	assert.Equal(t, StatusPlaying, final.Status)
	assert.True(t, games.isStarted(room.Code))
}

// Explicit seat collision, then team fallback.
func TestSeatCollisionThenTeamChoice(t *testing.T) {
	m, _, _, _ := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)

	_, _, err = m.JoinRoom(room.Code, "p2", positions.AtSeat(seat.North))
	assert.ErrorIs(t, err, ErrSeatTaken)

	_, s, err := m.JoinRoom(room.Code, "p2", positions.OnTeam(seat.TeamNorthSouth))
	require.NoError(t, err)
	assert.Equal(t, seat.South, s)
}

func TestJoinRoomStartGameFailureRollsBack(t *testing.T) {
	m, games, _, _ := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "p2", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "p3", positions.Auto())
	require.NoError(t, err)

	games.failNext = true
	_, _, err = m.JoinRoom(room.Code, "p4", positions.Auto())
	assert.Error(t, err)

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.False(t, got.Positions.HasPlayer("p4"))
}

// Bot replacement while playing.
func TestBotReplacementWhilePlaying(t *testing.T) {
	cfg := fastConfig()
	m, _, bots, pub := newTestManager(t, cfg)

	room, err := m.CreateRoom("a", Meta{})
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "b", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "c", positions.Auto())
	require.NoError(t, err)
	playing, _, err := m.JoinRoom(room.Code, "d", positions.Auto())
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, playing.Status)

	sub := pub.Subscribe(pubsub.RoomTopic(room.Code))
	defer sub.Close()

	require.NoError(t, m.HandleDisconnect(room.Code, "b"))

	// Before the grace fires, no bot should be running.
	time.Sleep(cfg.ReplaceGrace / 2)
	assert.False(t, bots.isRunning(room.Code, seat.East))

	var sawReplace bool
	deadline := time.After(2 * time.Second)
	for !sawReplace {
		select {
		case msg := <-sub.C:
			if msg.Event == "bot_replaced_player" {
				sawReplace = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for bot_replaced_player")
		}
	}

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.True(t, got.BotSeats[seat.East])
	assert.Equal(t, positions.PlayerID("b"), got.OriginalOccupants[seat.East])
	assert.True(t, bots.isRunning(room.Code, seat.East))
}

// Reclaim: reconnecting stops the bot and restores the seat.
func TestReclaimAfterBotReplacement(t *testing.T) {
	cfg := fastConfig()
	m, _, bots, _ := newTestManager(t, cfg)

	room, err := m.CreateRoom("a", Meta{})
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "b", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "c", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "d", positions.Auto())
	require.NoError(t, err)

	require.NoError(t, m.HandleDisconnect(room.Code, "b"))
	require.Eventually(t, func() bool {
		return bots.isRunning(room.Code, seat.East)
	}, 2*time.Second, 5*time.Millisecond)

	reclaimed, err := m.HandleReconnect(room.Code, "b")
	require.NoError(t, err)
	assert.Equal(t, positions.PlayerID("b"), reclaimed.Positions[seat.East])
	assert.False(t, reclaimed.BotSeats[seat.East])
	assert.False(t, bots.isRunning(room.Code, seat.East))
}

func TestHandleReconnectWithinGraceCancelsTimer(t *testing.T) {
	cfg := fastConfig()
	m, _, bots, _ := newTestManager(t, cfg)

	room, err := m.CreateRoom("a", Meta{})
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "b", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "c", positions.Auto())
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "d", positions.Auto())
	require.NoError(t, err)

	require.NoError(t, m.HandleDisconnect(room.Code, "b"))

	reconnected, err := m.HandleReconnect(room.Code, "b")
	require.NoError(t, err)
	assert.Equal(t, positions.PlayerID("b"), reconnected.Positions[seat.East])
	assert.Empty(t, reconnected.Disconnected)

	// Let the original replace-grace window fully elapse; no bot should ever
	// have started because the timer's precondition (still disconnected) no
	// longer held when it fired.
	time.Sleep(cfg.ReplaceGrace * 2)
	assert.False(t, bots.isRunning(room.Code, seat.East))
}

// Practice room: not listed, bots spawn lazily on first host
// subscription, and the room reaches playing once all seats fill.
func TestPracticeRoomLazyBotSpawn(t *testing.T) {
	m, games, bots, _ := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{
		RoomType: RoomTypePractice,
		BotSeats: map[seat.Seat]bool{seat.East: true, seat.South: true, seat.West: true},
	})
	require.NoError(t, err)

	all := m.ListRooms(FilterAvailable)
	for _, r := range all {
		assert.NotEqual(t, room.Code, r.Code, "practice room must not be publicly listed")
	}

	require.NoError(t, m.NotifyHostSubscribed(room.Code))

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, got.Status)
	assert.True(t, games.isStarted(room.Code))
	assert.True(t, bots.isRunning(room.Code, seat.East))
	assert.True(t, bots.isRunning(room.Code, seat.South))
	assert.True(t, bots.isRunning(room.Code, seat.West))

	// A second subscription notification is a no-op: it must not try to
	// re-seat bots that already occupy their seats.
	require.NoError(t, m.NotifyHostSubscribed(room.Code))
}

func TestHostLeavingNonPlayingRoomClosesIt(t *testing.T) {
	m, _, _, pub := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "p2", positions.Auto())
	require.NoError(t, err)

	sub := pub.Subscribe(pubsub.RoomTopic(room.Code))
	defer sub.Close()

	require.NoError(t, m.LeaveRoom("h"))

	_, err = m.GetRoom(room.Code)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	select {
	case msg := <-sub.C:
		assert.Equal(t, "room_closed", msg.Event)
	case <-time.After(time.Second):
		t.Fatal("expected room_closed event")
	}
}

func TestJoinRoomRejectsSecondRoomForSamePlayer(t *testing.T) {
	m, _, _, _ := newTestManager(t, fastConfig())

	roomA, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	_, err = m.CreateRoom("h", Meta{})
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	roomB, err := m.CreateRoom("h2", Meta{})
	require.NoError(t, err)

	_, _, err = m.JoinRoom(roomB.Code, "h", positions.Auto())
	assert.ErrorIs(t, err, ErrAlreadyInOtherRoom)

	_, _, err = m.JoinRoom(roomA.Code, "h", positions.Auto())
	assert.ErrorIs(t, err, ErrAlreadyInThisRoom)
}

func TestCloseRoomUnknownCodeReturnsNotFound(t *testing.T) {
	m, _, _, _ := newTestManager(t, fastConfig())
	assert.ErrorIs(t, m.CloseRoom("ZZZZ"), ErrRoomNotFound)
}

func TestLeaveRoomRestoresSeatAvailability(t *testing.T) {
	m, _, _, _ := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	_, s, err := m.JoinRoom(room.Code, "p2", positions.Auto())
	require.NoError(t, err)

	require.NoError(t, m.LeaveRoom("p2"))

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Empty(t, got.Positions[s])
	// originalOccupants retains the departed player for reclaim identity.
	assert.Equal(t, positions.PlayerID("p2"), got.OriginalOccupants[s])
}

func fillRoom(t *testing.T, m *Manager) Room {
	t.Helper()
	room, err := m.CreateRoom("a", Meta{})
	require.NoError(t, err)
	for _, pid := range []positions.PlayerID{"b", "c", "d"} {
		var playing Room
		playing, _, err = m.JoinRoom(room.Code, pid, positions.Auto())
		require.NoError(t, err)
		room = playing
	}
	require.Equal(t, StatusPlaying, room.Status)
	return room
}

// Explicitly leaving a playing room hands the seat to a bot immediately, so
// the table never runs short-handed while a game is live.
func TestLeaveDuringPlayingReplacesSeatWithBot(t *testing.T) {
	m, _, bots, _ := newTestManager(t, fastConfig())
	room := fillRoom(t, m)

	require.NoError(t, m.LeaveRoom("c"))

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, got.Status)
	assert.Equal(t, 4, got.Positions.Count())
	assert.True(t, got.BotSeats[seat.South])
	assert.True(t, bots.isRunning(room.Code, seat.South))
	// The leaver may still reclaim: original_occupants is untouched.
	assert.Equal(t, positions.PlayerID("c"), got.OriginalOccupants[seat.South])

	// The departed player is free to join elsewhere.
	_, err = m.CreateRoom("c", Meta{})
	assert.NoError(t, err)
}

// Property: bot replacement only applies to playing rooms. A non-playing
// room's disconnect runs the longer removal grace and just vacates the seat.
func TestDisconnectInWaitingRoomVacatesSeatWithoutBot(t *testing.T) {
	cfg := fastConfig()
	m, _, bots, _ := newTestManager(t, cfg)

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	_, s, err := m.JoinRoom(room.Code, "p2", positions.Auto())
	require.NoError(t, err)

	require.NoError(t, m.HandleDisconnect(room.Code, "p2"))

	require.Eventually(t, func() bool {
		got, err := m.GetRoom(room.Code)
		return err == nil && !got.Positions.HasPlayer("p2")
	}, 2*time.Second, 5*time.Millisecond)

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.False(t, bots.isRunning(room.Code, s))
	assert.Empty(t, got.BotSeats)
	assert.Empty(t, got.Disconnected)
}

func TestHandleDisconnectIsIdempotentWhilePending(t *testing.T) {
	m, _, _, _ := newTestManager(t, fastConfig())
	room := fillRoom(t, m)

	require.NoError(t, m.HandleDisconnect(room.Code, "b"))
	require.NoError(t, m.HandleDisconnect(room.Code, "b"))

	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Len(t, got.Disconnected, 1)
}

// A game_over observed on the room's game topic marks the room finished and
// stops every bot in it within a bounded time.
func TestGameOverStopsBotsAndMarksFinished(t *testing.T) {
	m, _, bots, pub := newTestManager(t, fastConfig())
	room := fillRoom(t, m)

	require.NoError(t, m.HandleDisconnect(room.Code, "b"))
	require.Eventually(t, func() bool {
		return bots.isRunning(room.Code, seat.East)
	}, 2*time.Second, 5*time.Millisecond)

	pub.Publish(pubsub.Message{
		Topic:   pubsub.GameTopic(room.Code),
		Event:   "game_over",
		Payload: game.GameOver{Winner: seat.TeamNorthSouth},
	})

	require.Eventually(t, func() bool {
		got, err := m.GetRoom(room.Code)
		return err == nil && got.Status == StatusFinished && !bots.isRunning(room.Code, seat.East)
	}, 2*time.Second, 5*time.Millisecond)
}

// An aborted game_over (coordinator crash) closes the room outright.
func TestAbortedGameOverClosesRoom(t *testing.T) {
	m, _, _, pub := newTestManager(t, fastConfig())
	room := fillRoom(t, m)

	pub.Publish(pubsub.Message{
		Topic:   pubsub.GameTopic(room.Code),
		Event:   "game_over",
		Payload: game.GameOver{Aborted: true},
	})

	require.Eventually(t, func() bool {
		_, err := m.GetRoom(room.Code)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDevSetSeatBypassesJoinChecks(t *testing.T) {
	m, _, _, _ := newTestManager(t, fastConfig())

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)

	// Direct write over an occupied seat, no join preconditions applied.
	require.NoError(t, m.DevSetSeat(room.Code, seat.North, "swapped-in"))
	got, err := m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Equal(t, positions.PlayerID("swapped-in"), got.Positions[seat.North])

	require.NoError(t, m.DevSetSeat(room.Code, seat.North, ""))
	got, err = m.GetRoom(room.Code)
	require.NoError(t, err)
	assert.Empty(t, got.Positions[seat.North])

	assert.ErrorIs(t, m.DevSetSeat("ZZZZ", seat.North, "x"), ErrRoomNotFound)
}

func TestNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	pub := pubsub.New()
	games := newFakeGames()
	bots := newFakeBots()
	m := New(pub, games, bots, fastConfig())
	m.Run()

	room, err := m.CreateRoom("h", Meta{})
	require.NoError(t, err)
	_, _, err = m.JoinRoom(room.Code, "p2", positions.Auto())
	require.NoError(t, err)

	require.NoError(t, m.HandleDisconnect(room.Code, "p2"))
	m.Stop()
}
