// Package positions implements the pure seat-assignment algebra. It has no
// identity and no side effects: every operation takes a Positions value
// and returns a new one, so the Room Manager (the only caller) can apply
// it under its own single-writer discipline without positions itself
// needing any locking.
package positions

import (
	"errors"

	"github.com/pidro/roomserver/internal/seat"
)

// PlayerID identifies a human player or a bot occupying a seat. Bot ids
// are the stable string "bot:<room-code>:<seat>".
type PlayerID string

// Positions is the total mapping Seat -> PlayerID that is the single
// source of truth for a room's seating. An absent or empty-string entry
// means the seat is unoccupied.
type Positions map[seat.Seat]PlayerID

// Sentinel errors for each way an assignment can be refused.
var (
	ErrRoomFull       = errors.New("room_full")
	ErrAlreadySeated  = errors.New("already_in_this_room")
	ErrSeatTaken      = errors.New("seat_taken")
	ErrTeamFull       = errors.New("team_full")
	ErrInvalidChoice  = errors.New("invalid_choice")
	ErrPlayerNotFound = errors.New("player_not_in_room")
)

// ChoiceKind discriminates the three ways a seat can be requested.
type ChoiceKind int

const (
	ChoiceAuto ChoiceKind = iota
	ChoiceSeat
	ChoiceTeam
)

// Choice is how a joining player asks for a seat: a specific seat, a team
// label, or auto.
type Choice struct {
	Kind ChoiceKind
	Seat seat.Seat
	Team seat.Team
}

// Auto requests the first available seat in canonical order.
func Auto() Choice { return Choice{Kind: ChoiceAuto} }

// AtSeat requests a specific seat.
func AtSeat(s seat.Seat) Choice { return Choice{Kind: ChoiceSeat, Seat: s} }

// OnTeam requests the first available seat of the given partnership.
func OnTeam(t seat.Team) Choice { return Choice{Kind: ChoiceTeam, Team: t} }

// Empty returns an all-unoccupied Positions value.
func Empty() Positions {
	return Positions{}
}

// Clone returns an independent copy, so callers can mutate the result of a
// read without corrupting the Room Manager's source of truth.
func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for s, id := range p {
		if id != "" {
			out[s] = id
		}
	}
	return out
}

// Count returns the number of occupied seats.
func (p Positions) Count() int {
	n := 0
	for _, id := range p {
		if id != "" {
			n++
		}
	}
	return n
}

// Available returns the unoccupied seats in canonical order (N, E, S, W).
func (p Positions) Available() []seat.Seat {
	var out []seat.Seat
	for _, s := range seat.Canonical {
		if p[s] == "" {
			out = append(out, s)
		}
	}
	return out
}

// TeamAvailable returns the unoccupied seats of the given partnership, in
// canonical order.
func (p Positions) TeamAvailable(t seat.Team) []seat.Seat {
	var out []seat.Seat
	for _, s := range seat.SeatsOf(t) {
		if p[s] == "" {
			out = append(out, s)
		}
	}
	return out
}

// PlayerIDs returns the occupied player-ids in canonical seat order. This is
// the order the rules engine's initial_state expects seats to be dealt in.
func (p Positions) PlayerIDs() []PlayerID {
	var out []PlayerID
	for _, s := range seat.Canonical {
		if id := p[s]; id != "" {
			out = append(out, id)
		}
	}
	return out
}

// HasPlayer reports whether pid currently occupies any seat.
func (p Positions) HasPlayer(pid PlayerID) bool {
	_, ok := p.GetSeat(pid)
	return ok
}

// GetSeat returns the seat pid occupies, if any.
func (p Positions) GetSeat(pid PlayerID) (seat.Seat, bool) {
	for s, id := range p {
		if id == pid {
			return s, true
		}
	}
	return "", false
}

// Assign places pid into a seat: an explicit seat choice must be free, a
// team choice picks the first available seat of that team in canonical
// order, auto picks the first available seat overall. It returns a new
// Positions value (the original is left untouched) and the seat assigned.
func Assign(p Positions, pid PlayerID, choice Choice) (Positions, seat.Seat, error) {
	if p.HasPlayer(pid) {
		return p, "", ErrAlreadySeated
	}
	if p.Count() >= 4 {
		return p, "", ErrRoomFull
	}

	var target seat.Seat
	switch choice.Kind {
	case ChoiceSeat:
		if !choice.Seat.Valid() {
			return p, "", ErrInvalidChoice
		}
		if p[choice.Seat] != "" {
			return p, "", ErrSeatTaken
		}
		target = choice.Seat

	case ChoiceTeam:
		available := p.TeamAvailable(choice.Team)
		if len(available) == 0 {
			if choice.Team != seat.TeamNorthSouth && choice.Team != seat.TeamEastWest {
				return p, "", ErrInvalidChoice
			}
			return p, "", ErrTeamFull
		}
		target = available[0]

	case ChoiceAuto:
		available := p.Available()
		if len(available) == 0 {
			return p, "", ErrRoomFull
		}
		target = available[0]

	default:
		return p, "", ErrInvalidChoice
	}

	next := p.Clone()
	next[target] = pid
	return next, target, nil
}

// Remove clears pid's seat, if any. It is idempotent: removing a player who
// isn't seated returns an equivalent Positions unchanged.
func Remove(p Positions, pid PlayerID) Positions {
	s, ok := p.GetSeat(pid)
	if !ok {
		return p.Clone()
	}
	next := p.Clone()
	delete(next, s)
	return next
}
