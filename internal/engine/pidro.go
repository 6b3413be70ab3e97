package engine

import "github.com/pidro/roomserver/internal/seat"

// LegalActions returns the actions sq may legally submit given s. An empty
// slice means sq has nothing to do right now (not their turn, or the hand
// has no cards left for them).
func (p Pidro) LegalActions(s State, sq seat.Seat) []Action {
	if s.Phase != PhaseRobbing && sq != s.CurrentTurn {
		return nil
	}

	switch s.Phase {
	case PhaseBidding:
		return legalBidActions(s)
	case PhaseDeclare:
		if sq != s.HighBid.Seat {
			return nil
		}
		return []Action{DeclareTrump(Spades), DeclareTrump(Hearts), DeclareTrump(Diamonds), DeclareTrump(Clubs)}
	case PhaseRobbing:
		if sq != s.Dealer {
			return nil
		}
		// The dealer may submit any handSize-card subset of hand+widow;
		// ApplyAction validates arbitrary subsets, so a human picker is not
		// limited to this listing. The enumerated selections here are the
		// canonical choices a strategy can pick from directly.
		return robSelections(s)
	case PhasePlaying:
		return legalPlayActions(s, sq)
	case PhaseComplete:
		return nil
	default:
		return nil
	}
}

// ApplyAction validates and applies a over s as submitted by sq, returning
// ErrIllegalAction (unchanged s) if it is not currently legal.
func (p Pidro) ApplyAction(s State, sq seat.Seat, a Action) (State, error) {
	switch s.Phase {
	case PhaseBidding:
		if sq != s.CurrentTurn {
			return s, ErrIllegalAction
		}
		return applyBidAction(s, sq, a)
	case PhaseDeclare:
		return applyDeclareTrump(s, sq, a)
	case PhaseRobbing:
		return applySelectHand(s, sq, a)
	case PhasePlaying:
		if sq != s.CurrentTurn {
			return s, ErrIllegalAction
		}
		return applyPlayCard(s, sq, a)
	default:
		return s, ErrIllegalAction
	}
}

func (p Pidro) Phase(s State) Phase { return s.Phase }

func (p Pidro) Winner(s State) (seat.Team, bool) { return s.Winner, s.WinnerKnown }

// MaskStateFor projects s down to what viewer is allowed to see. Spectators
// and non-dealer seats never see the widow or any other seat's hand; the
// dealer sees the widow during PhaseRobbing, and only then: it is the
// pool the dealer must choose a hand from.
func (p Pidro) MaskStateFor(s State, viewer Viewer) MaskedState {
	m := MaskedState{
		Phase:        s.Phase,
		CurrentTurn:  s.CurrentTurn,
		Dealer:       s.Dealer,
		Hand:         s.Hand,
		TrumpKnown:   s.TrumpKnown,
		HandSizes:    make(map[seat.Seat]int, 4),
		MatchScore:   s.MatchScore,
		WinningScore: s.WinningScore,
		Winner:       s.Winner,
		WinnerKnown:  s.WinnerKnown,
	}
	if s.TrumpKnown {
		m.Trump = s.Trump
	}
	if s.HaveBid {
		m.HighBid = s.HighBid.Amount
		m.HighBidder = s.HighBid.Seat
	}
	for sq := range s.PassedSeats {
		m.PassedSeats = append(m.PassedSeats, sq)
	}
	for _, sq := range seat.Canonical {
		m.HandSizes[sq] = len(s.Hands[sq])
	}
	for _, pc := range s.CurrentTrick {
		m.CurrentTrick = append(m.CurrentTrick, pc.Card)
	}

	if !viewer.IsSpectator {
		if hand, ok := s.Hands[viewer.Seat]; ok {
			m.YourHand = sortedHand(hand)
		}
		if s.Phase == PhaseRobbing && viewer.Seat == s.Dealer {
			m.VisibleWidow = sortedHand(s.Widow)
		}
	}

	return m
}
