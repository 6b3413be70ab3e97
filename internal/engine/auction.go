package engine

import (
	"github.com/pidro/roomserver/internal/positions"
	"github.com/pidro/roomserver/internal/seat"
)

const handSize = 9

// InitialState deals a fresh hand: handSize cards to each of the four seats
// in canonical order, the remainder set aside as the widow, and opens the
// bidding with the seat left of the dealer. playerIDs must be in canonical
// seat order.
func (p Pidro) InitialState(playerIDs []positions.PlayerID, rng func(n int) int) State {
	s := State{
		Players:      seat.Canonical,
		Dealer:       seat.North,
		Hand:         1,
		MatchScore:   map[seat.Team]int{seat.TeamNorthSouth: 0, seat.TeamEastWest: 0},
		WinningScore: p.winningScore(),
	}
	for i, pid := range playerIDs {
		if i >= 4 {
			break
		}
		s.PlayerIDs[i] = string(pid)
	}
	return p.dealHand(s, rng)
}

func (p Pidro) dealHand(s State, rng func(n int) int) State {
	deck := newDeck()
	if rng == nil {
		rng = func(n int) int { return 0 }
	}
	shuffle(deck, rng)

	s.Hands = make(map[seat.Seat][]Card, 4)
	for i, sq := range seat.Canonical {
		s.Hands[sq] = append([]Card(nil), deck[i*handSize:(i+1)*handSize]...)
	}
	s.Widow = append([]Card(nil), deck[4*handSize:]...)

	s.Phase = PhaseBidding
	s.Bids = nil
	s.PassedSeats = make(map[seat.Seat]bool)
	s.HaveBid = false
	s.HighBid = bidRecord{}
	s.TrumpKnown = false
	s.Trump = ""
	s.CurrentTrick = nil
	s.TricksWon = make(map[seat.Seat][]trickResult)
	s.HandPoints = map[seat.Team]int{seat.TeamNorthSouth: 0, seat.TeamEastWest: 0}
	s.WinnerKnown = false
	s.rng = rng

	s.CurrentTurn = leftOf(s.Dealer)
	return s
}

func leftOf(s seat.Seat) seat.Seat {
	for i, c := range seat.Canonical {
		if c == s {
			return seat.Canonical[(i+1)%4]
		}
	}
	return seat.Canonical[0]
}

// legalBidActions returns the auction's legal actions for sq. The auction
// terminates regardless of strategy: MaxBid bounds how many times the
// contract can be raised, and three consecutive passes (or all four seats
// passing before any bid) always closes it, so even a uniformly random
// bidder cannot cycle the auction forever.
func legalBidActions(s State) []Action {
	var actions []Action
	if s.PassedSeats[s.CurrentTurn] {
		return nil
	}
	actions = append(actions, Pass())

	floor := MinBid
	if s.HaveBid {
		floor = s.HighBid.Amount + 1
	}
	for amount := floor; amount <= MaxBid; amount++ {
		actions = append(actions, Bid(amount))
	}
	return actions
}

func applyBidAction(s State, sq seat.Seat, a Action) (State, error) {
	switch a.Kind {
	case ActionPass:
		s.PassedSeats[sq] = true
		return advanceAuction(s)

	case ActionBid:
		if a.Bid < MinBid || a.Bid > MaxBid {
			return s, ErrIllegalAction
		}
		if s.HaveBid && a.Bid <= s.HighBid.Amount {
			return s, ErrIllegalAction
		}
		s.Bids = append(s.Bids, bidRecord{Seat: sq, Amount: a.Bid})
		s.HighBid = bidRecord{Seat: sq, Amount: a.Bid}
		s.HaveBid = true
		// A new high bid reopens the floor for every other seat.
		s.PassedSeats = make(map[seat.Seat]bool)
		return advanceAuction(s)

	default:
		return s, ErrIllegalAction
	}
}

// advanceAuction moves CurrentTurn to the next seat that hasn't passed, or
// closes the auction if three seats (everyone but the bidder, or everyone
// if nobody has bid) have passed.
func advanceAuction(s State) (State, error) {
	activeSeats := 0
	for _, sq := range seat.Canonical {
		if !s.PassedSeats[sq] {
			activeSeats++
		}
	}

	if s.HaveBid && activeSeats <= 1 {
		return closeAuction(s, s.HighBid.Seat)
	}
	if !s.HaveBid && activeSeats == 0 {
		// Everyone passed with no bid: the dealer is stuck at the minimum.
		return closeAuction(s, s.Dealer)
	}

	next := s.CurrentTurn
	for i := 0; i < 4; i++ {
		next = leftOf(next)
		if !s.PassedSeats[next] {
			s.CurrentTurn = next
			return s, nil
		}
	}
	// Unreachable given the checks above, but keep the state consistent.
	return closeAuction(s, s.Dealer)
}

func closeAuction(s State, winner seat.Seat) (State, error) {
	if !s.HaveBid {
		s.HighBid = bidRecord{Seat: winner, Amount: MinBid}
		s.HaveBid = true
	}
	s.Phase = PhaseDeclare
	s.CurrentTurn = s.HighBid.Seat
	return s, nil
}

func applyDeclareTrump(s State, sq seat.Seat, a Action) (State, error) {
	if sq != s.HighBid.Seat || a.Kind != ActionDeclareTrump {
		return s, ErrIllegalAction
	}
	switch a.Suit {
	case Spades, Hearts, Diamonds, Clubs:
	default:
		return s, ErrIllegalAction
	}
	s.Trump = a.Suit
	s.TrumpKnown = true
	s.Phase = PhaseRobbing
	s.CurrentTurn = s.Dealer
	return s, nil
}
