// Package engine holds the card-game rules behind a small pure-function
// interface: deal an initial state, list a seat's legal actions, apply one,
// report the phase and winner, and mask state down to what a given viewer
// may see.
//
// The room and game coordination layer treats the rules as opaque: it
// only ever goes through Rules. The concrete implementation here is
// Finnish Pidro (bidding, trump declaration, dealer pack-robbing, trick
// play, bid-fulfillment scoring). Outside this package, only the Game
// Coordinator's game_over payload (MatchScore) and tests read State's fields
// directly.
package engine

import (
	"errors"
	"sort"

	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/seat"
)

// ErrIllegalAction is returned by ApplyAction when the submitted action is
// not currently legal for the seat. It is surfaced to the submitting
// caller only; the game state is unchanged.
var ErrIllegalAction = errors.New("illegal_action")

// Rules is the adapter interface the Game Coordinator depends on. It never
// needs to know these are Pidro rules specifically.
type Rules interface {
	InitialState(playerIDs []positions.PlayerID, rng func(n int) int) State
	LegalActions(s State, sq seat.Seat) []Action
	ApplyAction(s State, sq seat.Seat, a Action) (State, error)
	Phase(s State) Phase
	Winner(s State) (seat.Team, bool)
	MaskStateFor(s State, viewer Viewer) MaskedState
}

// Viewer selects whose perspective MaskStateFor should render. A
// spectator sees only public information.
type Viewer struct {
	Seat        seat.Seat
	IsSpectator bool
}

func ForSeat(s seat.Seat) Viewer { return Viewer{Seat: s} }
func ForSpectator() Viewer       { return Viewer{IsSpectator: true} }

// MaskedState is the per-viewer projection of State. Only the viewer's own
// hand is revealed, except the widow, which the dealer must see during
// the pack-robbing subphase, since it is the pool they are choosing from.
type MaskedState struct {
	Phase        Phase             `json:"phase"`
	CurrentTurn  seat.Seat         `json:"currentTurn"`
	Dealer       seat.Seat         `json:"dealer"`
	Hand         int               `json:"hand"`
	Trump        Suit              `json:"trump,omitempty"`
	TrumpKnown   bool              `json:"trumpKnown"`
	HighBid      int               `json:"highBid,omitempty"`
	HighBidder   seat.Seat         `json:"highBidder,omitempty"`
	PassedSeats  []seat.Seat       `json:"passedSeats,omitempty"`
	YourHand     []Card            `json:"yourHand,omitempty"`
	HandSizes    map[seat.Seat]int `json:"handSizes"`
	VisibleWidow []Card            `json:"visibleWidow,omitempty"`
	CurrentTrick []Card            `json:"currentTrick,omitempty"`
	MatchScore   map[seat.Team]int `json:"matchScore"`
	WinningScore int               `json:"winningScore"`
	Winner       seat.Team         `json:"winner,omitempty"`
	WinnerKnown  bool              `json:"winnerKnown"`
}

// Pidro implements Rules for Finnish Pidro. The zero value is ready to use.
type Pidro struct {
	// WinningScore overrides the default match target (62) when non-zero.
	// Exposed mainly so tests can force short matches.
	WinningScore int
}

var _ Rules = Pidro{}

func (p Pidro) winningScore() int {
	if p.WinningScore > 0 {
		return p.WinningScore
	}
	return 62
}

func sortedHand(cards []Card) []Card {
	out := append([]Card(nil), cards...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Suit != out[j].Suit {
			return out[i].Suit < out[j].Suit
		}
		return out[i].Rank < out[j].Rank
	})
	return out
}
