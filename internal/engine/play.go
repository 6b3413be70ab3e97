package engine

import (
	"sort"

	"github.com/pidro/roomserver/internal/seat"
)

// robSelections enumerates the dealer's canonical pack-robbing choices: the
// trump-maximizing selection (every trump in the pool, topped up with the
// highest-ranked off-suit cards) and keeping the dealt hand unchanged. Any
// other handSize-card subset of hand+widow is still accepted by
// applySelectHand; these are the selections offered to strategies.
func robSelections(s State) []Action {
	pool := append(append([]Card(nil), s.Hands[s.Dealer]...), s.Widow...)
	sort.Slice(pool, func(i, j int) bool {
		it, jt := pool[i].Suit == s.Trump, pool[j].Suit == s.Trump
		if it != jt {
			return it
		}
		if pool[i].Rank != pool[j].Rank {
			return pool[i].Rank > pool[j].Rank
		}
		return pool[i].Suit < pool[j].Suit
	})
	robbed := append([]Card(nil), pool[:handSize]...)

	actions := []Action{SelectHand(robbed)}
	kept := append([]Card(nil), s.Hands[s.Dealer]...)
	if !sameCards(robbed, kept) {
		actions = append(actions, SelectHand(kept))
	}
	return actions
}

func sameCards(a, b []Card) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[Card]int, len(a))
	for _, c := range a {
		counts[c]++
	}
	for _, c := range b {
		counts[c]--
		if counts[c] < 0 {
			return false
		}
	}
	return true
}

// applySelectHand implements the dealer's pack-robbing subphase: the dealer
// has their original hand plus the whole widow in front of them and must
// choose exactly handSize cards to keep from that combined pool; the rest
// go to the discard. Every card in Cards must come from hand+widow, and
// duplicates are rejected so a dealer can't keep a card twice.
func applySelectHand(s State, sq seat.Seat, a Action) (State, error) {
	if sq != s.Dealer || a.Kind != ActionSelectHand {
		return s, ErrIllegalAction
	}
	if len(a.Cards) != handSize {
		return s, ErrIllegalAction
	}

	pool := make(map[Card]int, len(s.Hands[s.Dealer])+len(s.Widow))
	for _, c := range s.Hands[s.Dealer] {
		pool[c]++
	}
	for _, c := range s.Widow {
		pool[c]++
	}

	chosen := make(map[Card]int, len(a.Cards))
	for _, c := range a.Cards {
		chosen[c]++
		if chosen[c] > pool[c] {
			return s, ErrIllegalAction
		}
	}

	s.Hands[s.Dealer] = append([]Card(nil), a.Cards...)
	s.Widow = nil
	s.Phase = PhasePlaying
	s.LeadSeat = leftOf(s.Dealer)
	s.CurrentTurn = s.LeadSeat
	s.CurrentTrick = nil
	return s, nil
}

func legalPlayActions(s State, sq seat.Seat) []Action {
	hand := s.Hands[sq]
	if len(hand) == 0 {
		return nil
	}

	if len(s.CurrentTrick) == 0 {
		return cardsToActions(hand)
	}

	led := s.CurrentTrick[0].Card.Suit
	var followers []Card
	for _, c := range hand {
		if c.Suit == led {
			followers = append(followers, c)
		}
	}
	if len(followers) > 0 {
		return cardsToActions(followers)
	}
	return cardsToActions(hand)
}

func cardsToActions(cards []Card) []Action {
	out := make([]Action, len(cards))
	for i, c := range cards {
		out[i] = PlayCard(c)
	}
	return out
}

func applyPlayCard(s State, sq seat.Seat, a Action) (State, error) {
	if a.Kind != ActionPlayCard {
		return s, ErrIllegalAction
	}
	legal := legalPlayActions(s, sq)
	if !containsCard(legal, a.Card) {
		return s, ErrIllegalAction
	}

	s.Hands[sq] = removeCard(s.Hands[sq], a.Card)
	s.CurrentTrick = append(s.CurrentTrick, playedCard{Seat: sq, Card: a.Card})

	if len(s.CurrentTrick) < 4 {
		s.CurrentTurn = leftOf(sq)
		return s, nil
	}

	return finishTrick(s)
}

func finishTrick(s State) (State, error) {
	winner := trickWinner(s.CurrentTrick, s.CurrentTrick[0].Card.Suit, s.Trump)
	s.TricksWon[winner] = append(s.TricksWon[winner], trickResult{Winner: winner, Cards: s.CurrentTrick})

	for _, played := range s.CurrentTrick {
		if pts, ok := pointCards[played.Card.Rank]; ok && played.Card.Suit == s.Trump {
			s.HandPoints[seat.TeamOf(winner)] += pts
		}
	}

	s.CurrentTrick = nil
	s.LeadSeat = winner
	s.CurrentTurn = winner

	if len(s.Hands[s.Players[0]]) == 0 && len(s.Hands[s.Players[1]]) == 0 &&
		len(s.Hands[s.Players[2]]) == 0 && len(s.Hands[s.Players[3]]) == 0 {
		return finishHand(s)
	}
	return s, nil
}

func trickWinner(trick []playedCard, led Suit, trump Suit) seat.Seat {
	best := trick[0]
	for _, pc := range trick[1:] {
		if beats(pc.Card, best.Card, led, trump) {
			best = pc
		}
	}
	return best.Seat
}

func beats(candidate, current Card, led, trump Suit) bool {
	candTrump := candidate.Suit == trump
	currTrump := current.Suit == trump
	if candTrump != currTrump {
		return candTrump
	}
	if candTrump {
		return candidate.Rank > current.Rank
	}
	if candidate.Suit != led {
		return false
	}
	if current.Suit != led {
		return true
	}
	return candidate.Rank > current.Rank
}

// finishHand applies bid fulfillment scoring (the bidding team scores their
// trick points only if they meet or beat their own bid; otherwise they are
// "set" and lose the bid amount instead) and deals the next hand, or
// closes the match out if a team has reached WinningScore.
func finishHand(s State) (State, error) {
	bidder := s.HighBid.Seat
	bidTeam := seat.TeamOf(bidder)
	otherTeam := opposingTeam(bidTeam)

	s.MatchScore[otherTeam] += s.HandPoints[otherTeam]

	if s.HandPoints[bidTeam] >= s.HighBid.Amount {
		s.MatchScore[bidTeam] += s.HandPoints[bidTeam]
	} else {
		s.MatchScore[bidTeam] -= s.HighBid.Amount
	}

	if s.MatchScore[seat.TeamNorthSouth] >= s.WinningScore || s.MatchScore[seat.TeamEastWest] >= s.WinningScore {
		s.Phase = PhaseComplete
		s.WinnerKnown = true
		if s.MatchScore[seat.TeamNorthSouth] > s.MatchScore[seat.TeamEastWest] {
			s.Winner = seat.TeamNorthSouth
		} else if s.MatchScore[seat.TeamEastWest] > s.MatchScore[seat.TeamNorthSouth] {
			s.Winner = seat.TeamEastWest
		}
		// A tie at or above target plays on; WinnerKnown stays false in
		// that edge case so the match continues.
		if s.Winner == "" {
			s.WinnerKnown = false
			s.Phase = PhaseBidding
		} else {
			return s, nil
		}
	}

	s.Hand++
	s.Dealer = leftOf(s.Dealer)
	return dealNextHand(s), nil
}

func dealNextHand(s State) State {
	p := Pidro{WinningScore: s.WinningScore}
	return p.dealHand(s, s.rng)
}

func opposingTeam(t seat.Team) seat.Team {
	if t == seat.TeamNorthSouth {
		return seat.TeamEastWest
	}
	return seat.TeamNorthSouth
}

func containsCard(actions []Action, c Card) bool {
	for _, a := range actions {
		if a.Kind == ActionPlayCard && a.Card == c {
			return true
		}
	}
	return false
}

func removeCard(hand []Card, c Card) []Card {
	out := make([]Card, 0, len(hand))
	removed := false
	for _, hc := range hand {
		if !removed && hc == c {
			removed = true
			continue
		}
		out = append(out, hc)
	}
	return out
}
