package roommanager

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/pidro/roomserver/internal/game"
	"github.com/pidro/roomserver/internal/metrics"
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/pubsub"
	"github.com/pidro/roomserver/internal/seat"
)

// BotReplacedPlayer is the room:<code> event payload published when a
// disconnect's replace-grace timer expires and a bot takes the seat over.
type BotReplacedPlayer struct {
	Seat             seat.Seat
	OriginalPlayerID positions.PlayerID
	BotID            positions.PlayerID
}

// PlayerReclaimedSeat is the room:<code> event payload published when the
// original occupant of a bot-held seat reconnects and reclaims it.
type PlayerReclaimedSeat struct {
	Seat     seat.Seat
	PlayerID positions.PlayerID
}

// GameSupervisor is the Room Manager's view of the Game Supervisor (C4): it
// only ever starts or stops a coordinator by room code, synchronously.
type GameSupervisor interface {
	StartGame(code string, playerIDs []positions.PlayerID) error
	StopGame(code string) error
}

// BotManager is the Room Manager's view of the Bot Manager (C9).
type BotManager interface {
	StartBot(code string, s seat.Seat, delayMs int) error
	StopBot(code string, s seat.Seat) error
	StopAllBots(code string) error
}

// Config holds the disconnect/replacement protocol tunables.
type Config struct {
	ReplaceGrace     time.Duration // bot-replacement grace while a room is playing
	RemovalGrace     time.Duration // seat-removal grace while a room is not playing
	CleanupGrace     time.Duration // delay before deleting an empty finished room
	BotActionDelayMs int           // delay_ms handed to a replacement bot's strategy loop
}

// DefaultConfig returns the production default constants.
func DefaultConfig() Config {
	return Config{
		ReplaceGrace:     10 * time.Second,
		RemovalGrace:     120 * time.Second,
		CleanupGrace:     5 * time.Second,
		BotActionDelayMs: 1000,
	}
}

const roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomRoomCode() string {
	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteByte(roomCodeCharset[rand.Intn(len(roomCodeCharset))])
	}
	return b.String()
}

func isBotID(pid positions.PlayerID) bool {
	return strings.HasPrefix(string(pid), "bot:")
}

func botID(code string, s seat.Seat) positions.PlayerID {
	return positions.PlayerID(fmt.Sprintf("bot:%s:%s", code, s))
}

type timerKey struct {
	code string
	pid  positions.PlayerID
}

// Manager is the single-writer Room Manager actor. Every exported method is
// a blocking request: it posts a closure to the actor's request channel and
// waits for it to run on the actor goroutine, so every mutation is
// serialized with respect to every other one.
type Manager struct {
	reqs    chan func()
	stopCh  chan struct{}
	stopped chan struct{}

	rooms      map[string]*internalRoom
	playerRoom map[positions.PlayerID]string
	timers     map[timerKey]*time.Timer

	pub   *pubsub.Fabric
	games GameSupervisor
	bots  BotManager
	cfg   Config

	codeGen func() string
}

// New constructs a Manager. Call Run to start its actor goroutine.
func New(pub *pubsub.Fabric, games GameSupervisor, bots BotManager, cfg Config) *Manager {
	return &Manager{
		reqs:       make(chan func(), 64),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
		rooms:      make(map[string]*internalRoom),
		playerRoom: make(map[positions.PlayerID]string),
		timers:     make(map[timerKey]*time.Timer),
		pub:        pub,
		games:      games,
		bots:       bots,
		cfg:        cfg,
		codeGen:    randomRoomCode,
	}
}

// Run starts the actor's processing loop in its own goroutine. It returns
// immediately.
func (m *Manager) Run() {
	go m.loop()
}

func (m *Manager) loop() {
	for {
		select {
		case f := <-m.reqs:
			f()
		case <-m.stopCh:
			close(m.stopped)
			return
		}
	}
}

// Stop cancels every outstanding timer and halts the actor loop. In-flight
// requests already queued are dropped.
func (m *Manager) Stop() {
	m.exec(func() {
		for key, t := range m.timers {
			t.Stop()
			delete(m.timers, key)
		}
		for _, r := range m.rooms {
			if r.gameWatchCancel != nil {
				r.gameWatchCancel()
			}
		}
	})
	close(m.stopCh)
	<-m.stopped
}

// exec runs f on the actor goroutine and blocks until it completes, or
// until the manager is stopped (in which case f never runs).
func (m *Manager) exec(f func()) {
	done := make(chan struct{})
	select {
	case m.reqs <- func() { f(); close(done) }:
	case <-m.stopCh:
		return
	}
	select {
	case <-done:
	case <-m.stopCh:
	}
}

// transitionStatus moves room to next and keeps the per-status room gauge
// consistent. Runs on the actor goroutine.
func (m *Manager) transitionStatus(room *internalRoom, next Status) {
	metrics.ActiveRooms.WithLabelValues(string(room.status)).Dec()
	room.status = next
	if next != StatusClosed {
		metrics.ActiveRooms.WithLabelValues(string(next)).Inc()
	}
}

func (m *Manager) generateUniqueCode() string {
	for {
		code := m.codeGen()
		if _, exists := m.rooms[code]; !exists {
			return code
		}
	}
}

// CreateRoom auto-seats host and creates a new waiting room.
func (m *Manager) CreateRoom(host positions.PlayerID, meta Meta) (Room, error) {
	var room Room
	var err error
	m.exec(func() {
		room, err = m.createRoomLocked(host, meta)
	})
	return room, err
}

func (m *Manager) createRoomLocked(host positions.PlayerID, meta Meta) (Room, error) {
	if _, ok := m.playerRoom[host]; ok {
		return Room{}, ErrAlreadyInRoom
	}

	code := m.generateUniqueCode()
	room := newInternalRoom(code, meta.RoomType, meta.BotSeats)
	room.hostID = host

	next, s, err := positions.Assign(room.positions, host, positions.Auto())
	if err != nil {
		return Room{}, fmt.Errorf("seat host: %w", err)
	}
	room.positions = next
	room.originalOccupants[s] = host

	m.playerRoom[host] = code
	m.rooms[code] = room

	metrics.ActiveRooms.WithLabelValues(string(room.status)).Inc()
	metrics.RoomManagerRequests.WithLabelValues("create_room", "ok").Inc()

	m.publishRoomUpdate(room)
	m.publishLobbyUpdate()
	return room.snapshot(), nil
}

// JoinRoom seats player in room code per choice. On the seat that completes
// the room, the Game Coordinator is started synchronously before this
// returns; failure to start rolls the seat assignment back.
func (m *Manager) JoinRoom(code string, player positions.PlayerID, choice positions.Choice) (Room, seat.Seat, error) {
	var room Room
	var s seat.Seat
	var err error
	m.exec(func() {
		room, s, err = m.joinRoomLocked(code, player, choice)
	})
	return room, s, err
}

func (m *Manager) joinRoomLocked(code string, player positions.PlayerID, choice positions.Choice) (Room, seat.Seat, error) {
	wasBot := isBotID(player)

	if !wasBot {
		if existing, ok := m.playerRoom[player]; ok {
			if existing == code {
				return Room{}, "", ErrAlreadyInThisRoom
			}
			return Room{}, "", ErrAlreadyInOtherRoom
		}
	}

	room, ok := m.rooms[code]
	if !ok {
		return Room{}, "", ErrRoomNotFound
	}
	if room.status != StatusWaiting && room.status != StatusReady {
		return Room{}, "", ErrRoomNotJoinable
	}

	next, s, err := positions.Assign(room.positions, player, choice)
	if err != nil {
		metrics.RoomManagerRequests.WithLabelValues("join_room", "rejected").Inc()
		return Room{}, "", mapPositionsErr(err)
	}
	room.positions = next
	if _, already := room.originalOccupants[s]; !already && !wasBot {
		room.originalOccupants[s] = player
	}
	if wasBot {
		room.botSeats.Insert(s)
	} else {
		m.playerRoom[player] = code
	}

	if room.positions.Count() == 4 {
		m.transitionStatus(room, StatusReady)
		playerIDs := room.positions.PlayerIDs()
		if err := m.games.StartGame(code, playerIDs); err != nil {
			room.positions = positions.Remove(room.positions, player)
			if wasBot {
				room.botSeats.Delete(s)
			} else {
				delete(m.playerRoom, player)
			}
			m.transitionStatus(room, StatusWaiting)
			metrics.RoomManagerRequests.WithLabelValues("join_room", "start_game_failed").Inc()
			return Room{}, "", fmt.Errorf("start game: %w", err)
		}
		m.transitionStatus(room, StatusPlaying)
		m.watchGameOver(room, code)
		// Seats already held by bot ids (a practice room's declared seats)
		// get their Bot Player actors now that a coordinator exists to drive.
		for _, bs := range room.botSeats.UnsortedList() {
			if err := m.bots.StartBot(code, bs, m.cfg.BotActionDelayMs); err != nil {
				slog.Error("bot player failed to start on game start", "room_code", code, "seat", bs, "error", err)
			}
		}
	}

	metrics.RoomOccupants.WithLabelValues(code).Set(float64(room.positions.Count()))
	metrics.RoomManagerRequests.WithLabelValues("join_room", "ok").Inc()
	m.publishRoomUpdate(room)
	m.publishLobbyUpdate()
	return room.snapshot(), s, nil
}

// watchGameOver subscribes to the room's game:<code> topic so the Room
// Manager learns of game completion through the pubsub fabric rather than a
// direct call from the Game Coordinator, which never calls the Room Manager.
// The subscription is cancelled from
// destroyRoom/Stop via room.gameWatchCancel.
func (m *Manager) watchGameOver(room *internalRoom, code string) {
	sub := m.pub.Subscribe(pubsub.GameTopic(code))
	done := make(chan struct{})
	room.gameWatchCancel = func() {
		select {
		case <-done:
		default:
			close(done)
		}
		sub.Close()
	}

	go func() {
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				if msg.Event != "game_over" {
					continue
				}
				over, ok := msg.Payload.(game.GameOver)
				if !ok {
					continue
				}
				m.exec(func() { m.onGameOver(code, over) })
				return
			case <-done:
				return
			}
		}
	}()
}

// onGameOver runs on the actor goroutine once a game_over event for code has
// been observed. An aborted game (the Coordinator's own goroutine panicked)
// tears the room down outright; a normal completion marks it finished so a
// short cleanup grace can still apply once it empties out.
func (m *Manager) onGameOver(code string, over game.GameOver) {
	room, ok := m.rooms[code]
	if !ok {
		return
	}
	if room.gameWatchCancel != nil {
		room.gameWatchCancel()
		room.gameWatchCancel = nil
	}
	if err := m.bots.StopAllBots(code); err != nil {
		slog.Warn("stop all bots failed after game over", "room_code", code, "error", err)
	}

	if over.Aborted {
		m.destroyRoom(room, true)
		return
	}

	m.transitionStatus(room, StatusFinished)
	metrics.RoomManagerRequests.WithLabelValues("game_over", "ok").Inc()

	if room.positions.Count() == 0 {
		m.handleRoomEmptied(room)
		return
	}
	m.publishRoomUpdate(room)
	m.publishLobbyUpdate()
}

func mapPositionsErr(err error) error {
	switch err {
	case positions.ErrRoomFull:
		return ErrRoomFull
	case positions.ErrAlreadySeated:
		return ErrAlreadyInThisRoom
	case positions.ErrSeatTaken:
		return ErrSeatTaken
	case positions.ErrTeamFull:
		return ErrTeamFull
	case positions.ErrInvalidChoice:
		return ErrInvalidChoice
	default:
		return err
	}
}

// LeaveRoom clears player's seat. If player is the host of a non-playing
// room, the whole room closes instead. Leaving a playing room hands the
// seat straight to a bot (no grace window, the departure is explicit), so
// a four-seat game never runs short-handed.
func (m *Manager) LeaveRoom(player positions.PlayerID) error {
	var err error
	m.exec(func() {
		err = m.leaveRoomLocked(player)
	})
	return err
}

func (m *Manager) leaveRoomLocked(player positions.PlayerID) error {
	code, ok := m.playerRoom[player]
	if !ok {
		return ErrNotInRoom
	}
	room := m.rooms[code]

	if player == room.hostID && room.status != StatusPlaying {
		m.destroyRoom(room, true)
		metrics.RoomManagerRequests.WithLabelValues("leave_room", "room_closed").Inc()
		return nil
	}

	delete(room.disconnected, player)
	m.cancelTimer(code, player)

	if room.status == StatusPlaying {
		if s, seated := room.positions.GetSeat(player); seated {
			m.replaceSeatWithBot(room, s, player)
			metrics.RoomManagerRequests.WithLabelValues("leave_room", "bot_replaced").Inc()
			return nil
		}
	}

	room.positions = positions.Remove(room.positions, player)
	delete(m.playerRoom, player)

	metrics.RoomOccupants.WithLabelValues(code).Set(float64(room.positions.Count()))
	metrics.RoomManagerRequests.WithLabelValues("leave_room", "ok").Inc()

	if room.positions.Count() == 0 {
		m.handleRoomEmptied(room)
		return nil
	}

	m.publishRoomUpdate(room)
	m.publishLobbyUpdate()
	return nil
}

// handleRoomEmptied decides whether an emptied room is destroyed right away
// or, if it already finished its game, given a short grace period so a
// browser refresh doesn't wipe the final scores out from under the client.
func (m *Manager) handleRoomEmptied(room *internalRoom) {
	if room.status != StatusFinished {
		m.destroyRoom(room, false)
		return
	}

	code := room.code
	timer := time.AfterFunc(m.cfg.CleanupGrace, func() {
		m.exec(func() { m.fireCleanupTimer(code) })
	})
	m.timers[timerKey{code: code, pid: "__cleanup__"}] = timer
	m.publishRoomUpdate(room)
	m.publishLobbyUpdate()
}

func (m *Manager) fireCleanupTimer(code string) {
	delete(m.timers, timerKey{code: code, pid: "__cleanup__"})
	room, ok := m.rooms[code]
	if !ok {
		return
	}
	if room.positions.Count() > 0 {
		return // someone reconnected or rejoined since
	}
	m.destroyRoom(room, false)
}

// destroyRoom evicts every remaining occupant, stops the room's game and
// bots, and removes the room from the registry. closed marks whether this
// is an explicit close (publishes room_closed) vs a quiet cleanup of an
// already-finished, already-empty room.
func (m *Manager) destroyRoom(room *internalRoom, closed bool) {
	for _, pid := range room.positions.PlayerIDs() {
		if !isBotID(pid) {
			delete(m.playerRoom, pid)
		}
	}
	for key := range m.timers {
		if key.code == room.code {
			m.timers[key].Stop()
			delete(m.timers, key)
		}
	}
	if room.gameWatchCancel != nil {
		room.gameWatchCancel()
	}
	if err := m.bots.StopAllBots(room.code); err != nil {
		slog.Warn("stop all bots failed during room teardown", "room_code", room.code, "error", err)
	}
	if room.status == StatusPlaying || room.status == StatusReady {
		if err := m.games.StopGame(room.code); err != nil {
			slog.Warn("stop game failed during room teardown", "room_code", room.code, "error", err)
		}
	}

	m.transitionStatus(room, StatusClosed)
	delete(m.rooms, room.code)
	metrics.RoomManagerRequests.WithLabelValues("close_room", "ok").Inc()

	if closed {
		m.pub.Publish(pubsub.Message{Topic: pubsub.RoomTopic(room.code), Event: "room_closed"})
	} else {
		m.publishRoomUpdate(room)
	}
	m.publishLobbyUpdate()
}

// ListFilter selects which rooms ListRooms returns.
type ListFilter string

const (
	FilterAll       ListFilter = "all"
	FilterWaiting   ListFilter = "waiting"
	FilterReady     ListFilter = "ready"
	FilterPlaying   ListFilter = "playing"
	FilterFinished  ListFilter = "finished"
	FilterAvailable ListFilter = "available" // non-finished/closed, non-practice
)

// ListRooms returns a snapshot of every room matching filter, in no
// particular order.
func (m *Manager) ListRooms(filter ListFilter) []Room {
	var out []Room
	m.exec(func() {
		for _, r := range m.rooms {
			if matchesFilter(r, filter) {
				out = append(out, r.snapshot())
			}
		}
	})
	return out
}

func matchesFilter(r *internalRoom, filter ListFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterWaiting:
		return r.status == StatusWaiting
	case FilterReady:
		return r.status == StatusReady
	case FilterPlaying:
		return r.status == StatusPlaying
	case FilterFinished:
		return r.status == StatusFinished
	case FilterAvailable:
		return r.roomType != RoomTypePractice && (r.status == StatusWaiting || r.status == StatusReady || r.status == StatusPlaying)
	default:
		return false
	}
}

// GetRoom fetches a single room snapshot by code.
func (m *Manager) GetRoom(code string) (Room, error) {
	var room Room
	var err error
	m.exec(func() {
		r, ok := m.rooms[code]
		if !ok {
			err = ErrRoomNotFound
			return
		}
		room = r.snapshot()
	})
	return room, err
}

// UpdateStatus forces a room's lifecycle state directly. The finished
// transition is normally driven by onGameOver (the Room Manager watches its
// own game:<code> topic instead of taking a direct call), but UpdateStatus
// remains available for any caller (tests, an admin endpoint) that needs to
// force a transition.
func (m *Manager) UpdateStatus(code string, status Status) error {
	var err error
	m.exec(func() {
		room, ok := m.rooms[code]
		if !ok {
			err = ErrRoomNotFound
			return
		}
		m.transitionStatus(room, status)
		m.publishRoomUpdate(room)
		m.publishLobbyUpdate()
	})
	return err
}

// CloseRoom evicts every occupant and tears the room down immediately.
func (m *Manager) CloseRoom(code string) error {
	var err error
	m.exec(func() {
		room, ok := m.rooms[code]
		if !ok {
			err = ErrRoomNotFound
			return
		}
		m.destroyRoom(room, true)
	})
	return err
}

// DevSetSeat is a testing-only escape hatch: it writes positions[seat]
// directly, bypassing every join/leave precondition, and broadcasts as
// normal.
func (m *Manager) DevSetSeat(code string, s seat.Seat, player positions.PlayerID) error {
	var err error
	m.exec(func() {
		room, ok := m.rooms[code]
		if !ok {
			err = ErrRoomNotFound
			return
		}
		if existing, had := room.positions[s]; had && !isBotID(existing) {
			delete(m.playerRoom, existing)
		}
		if player == "" {
			delete(room.positions, s)
			room.botSeats.Delete(s)
		} else {
			room.positions[s] = player
			if isBotID(player) {
				room.botSeats.Insert(s)
			} else {
				room.botSeats.Delete(s)
				m.playerRoom[player] = code
			}
		}
		m.publishRoomUpdate(room)
	})
	return err
}

func (m *Manager) publishRoomUpdate(room *internalRoom) {
	m.pub.Publish(pubsub.Message{
		Topic:   pubsub.RoomTopic(room.code),
		Event:   "room_update",
		Payload: room.snapshot(),
	})
}

func (m *Manager) publishLobbyUpdate() {
	var listed []Room
	for _, r := range m.rooms {
		if r.roomType != RoomTypePractice {
			listed = append(listed, r.snapshot())
		}
	}
	m.pub.Publish(pubsub.Message{Topic: pubsub.LobbyUpdates, Event: "lobby_update", Payload: listed})
}

func (m *Manager) cancelTimer(code string, pid positions.PlayerID) {
	key := timerKey{code: code, pid: pid}
	if t, ok := m.timers[key]; ok {
		t.Stop()
		delete(m.timers, key)
		if pid != "__cleanup__" {
			metrics.DisconnectTimersActive.Dec()
		}
	}
}

// HandleDisconnect marks a seated player's connection as dropped and starts
// its grace timer: ReplaceGrace while the room is playing (a bot takes the
// seat over), RemovalGrace otherwise (the seat is simply vacated).
func (m *Manager) HandleDisconnect(code string, pid positions.PlayerID) error {
	var err error
	m.exec(func() {
		err = m.handleDisconnectLocked(code, pid)
	})
	return err
}

func (m *Manager) handleDisconnectLocked(code string, pid positions.PlayerID) error {
	room, ok := m.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if _, seated := room.positions.GetSeat(pid); !seated {
		return ErrNotInRoom
	}
	if _, already := room.disconnected[pid]; already {
		return nil
	}

	room.disconnected[pid] = time.Now()

	grace := m.cfg.RemovalGrace
	fire := m.fireRemovalTimer
	if room.status == StatusPlaying {
		grace = m.cfg.ReplaceGrace
		fire = m.fireReplaceTimer
	}

	timer := time.AfterFunc(grace, func() {
		m.exec(func() { fire(code, pid) })
	})
	m.timers[timerKey{code: code, pid: pid}] = timer
	metrics.DisconnectTimersActive.Inc()

	m.publishRoomUpdate(room)
	return nil
}

// fireReplaceTimer runs when a playing room's replace-grace timer expires
// without a reconnect: a bot takes the disconnected player's seat over.
func (m *Manager) fireReplaceTimer(code string, pid positions.PlayerID) {
	delete(m.timers, timerKey{code: code, pid: pid})
	metrics.DisconnectTimersActive.Dec()

	room, ok := m.rooms[code]
	if !ok {
		return
	}
	if _, stillDisconnected := room.disconnected[pid]; !stillDisconnected {
		return // reconnected before the timer fired
	}
	s, seated := room.positions.GetSeat(pid)
	if !seated {
		delete(room.disconnected, pid)
		return
	}

	m.replaceSeatWithBot(room, s, pid)
}

// replaceSeatWithBot starts a bot for s and installs it over pid's seat,
// publishing room_update and bot_replaced_player. originalOccupants is left
// untouched so pid can still reclaim. Runs on the actor goroutine.
func (m *Manager) replaceSeatWithBot(room *internalRoom, s seat.Seat, pid positions.PlayerID) {
	code := room.code
	bid := botID(code, s)
	if err := m.bots.StartBot(code, s, m.cfg.BotActionDelayMs); err != nil {
		slog.Error("replacement bot failed to start", "room_code", code, "seat", s, "error", err)
		return
	}

	room.positions[s] = bid
	room.botSeats.Insert(s)
	delete(room.disconnected, pid)
	delete(m.playerRoom, pid)

	metrics.RoomManagerRequests.WithLabelValues("bot_replace", "ok").Inc()
	m.publishRoomUpdate(room)
	m.pub.Publish(pubsub.Message{
		Topic: pubsub.RoomTopic(code),
		Event: "bot_replaced_player",
		Payload: BotReplacedPlayer{
			Seat:             s,
			OriginalPlayerID: pid,
			BotID:            bid,
		},
	})
}

// fireRemovalTimer runs when a non-playing room's removal-grace timer
// expires without a reconnect: the disconnected player's seat is vacated
// outright.
func (m *Manager) fireRemovalTimer(code string, pid positions.PlayerID) {
	delete(m.timers, timerKey{code: code, pid: pid})
	metrics.DisconnectTimersActive.Dec()

	room, ok := m.rooms[code]
	if !ok {
		return
	}
	if _, stillDisconnected := room.disconnected[pid]; !stillDisconnected {
		return
	}

	room.positions = positions.Remove(room.positions, pid)
	delete(room.disconnected, pid)
	delete(m.playerRoom, pid)

	metrics.RoomOccupants.WithLabelValues(code).Set(float64(room.positions.Count()))
	metrics.RoomManagerRequests.WithLabelValues("seat_removal", "ok").Inc()

	if room.positions.Count() == 0 {
		m.handleRoomEmptied(room)
		return
	}
	m.publishRoomUpdate(room)
	m.publishLobbyUpdate()
}

// HandleReconnect restores a disconnected player's seat. If the grace timer
// has not yet fired, the player simply resumes their own seat. If a bot has
// already taken it over, the original occupant reclaims it and the bot is
// synchronously stopped first, so a bot action pending behind its delay
// timer can never land after the human is back in the seat.
func (m *Manager) HandleReconnect(code string, pid positions.PlayerID) (Room, error) {
	var room Room
	var err error
	m.exec(func() {
		room, err = m.handleReconnectLocked(code, pid)
	})
	return room, err
}

func (m *Manager) handleReconnectLocked(code string, pid positions.PlayerID) (Room, error) {
	room, ok := m.rooms[code]
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	if _, stillDisconnected := room.disconnected[pid]; stillDisconnected {
		m.cancelTimer(code, pid)
		delete(room.disconnected, pid)
		metrics.RoomManagerRequests.WithLabelValues("reconnect", "ok").Inc()
		m.publishRoomUpdate(room)
		return room.snapshot(), nil
	}

	for s, original := range room.originalOccupants {
		if original != pid {
			continue
		}
		current, seated := room.positions[s]
		if !seated || !isBotID(current) {
			continue
		}
		if err := m.bots.StopBot(code, s); err != nil {
			slog.Warn("stop bot failed during seat reclaim", "room_code", code, "seat", s, "error", err)
		}
		room.positions[s] = pid
		room.botSeats.Delete(s)
		m.playerRoom[pid] = code

		metrics.RoomManagerRequests.WithLabelValues("reclaim_seat", "ok").Inc()
		m.publishRoomUpdate(room)
		m.pub.Publish(pubsub.Message{
			Topic:   pubsub.RoomTopic(code),
			Event:   "player_reclaimed_seat",
			Payload: PlayerReclaimedSeat{Seat: s, PlayerID: pid},
		})
		return room.snapshot(), nil
	}

	// Neither still within a live grace timer nor the original occupant of a
	// bot-held seat. These two cases are indistinguishable once a removal
	// timer has fully evicted a player (every trace of them is gone), so
	// ErrPlayerNotDisconnected is the pragmatic fallback rather than trying
	// to recover ErrGracePeriodExpired from state that no longer exists.
	return Room{}, ErrPlayerNotDisconnected
}

// NotifyHostSubscribed triggers a practice room's lazy bot spawn: the first
// time the host subscribes to the game topic, every declared bot seat is
// filled (the last fill starts the game synchronously, and with it each
// seat's Bot Player). A no-op on any room that is not an unstarted practice
// room with declared seats, or whose bots were already spawned.
func (m *Manager) NotifyHostSubscribed(code string) error {
	var err error
	m.exec(func() {
		err = m.notifyHostSubscribedLocked(code)
	})
	return err
}

func (m *Manager) notifyHostSubscribedLocked(code string) error {
	room, ok := m.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if room.roomType != RoomTypePractice || room.practiceBotsSpawned {
		return nil
	}
	if room.declaredBotSeats.Len() == 0 {
		room.practiceBotsSpawned = true
		return nil
	}
	if room.status != StatusWaiting {
		return nil
	}
	room.practiceBotsSpawned = true

	// Seating the declared bots is enough: if they complete the table, the
	// last joinRoomLocked starts the game and, with it, every bot's Player
	// actor. A practice room with human seats still open simply waits for
	// those humans, bots idle in their seats until the fourth join.
	for _, s := range room.declaredBotSeats.UnsortedList() {
		bid := botID(code, s)
		if _, _, err := m.joinRoomLocked(code, bid, positions.AtSeat(s)); err != nil {
			slog.Error("practice bot seat failed", "room_code", code, "seat", s, "error", err)
			return fmt.Errorf("seat practice bot at %s: %w", s, err)
		}
	}
	return nil
}
