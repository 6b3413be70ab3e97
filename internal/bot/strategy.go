// Package bot implements the pluggable Strategy, the Bot Player actor, the
// Bot Manager, and the Bot Supervisor. One goroutine runs per occupied bot
// seat; the Bot Manager indexes them by (room code, seat).
package bot

import (
	"math/rand"

	"github.com/pidro/roomserver/internal/engine"
)

// Strategy is the pluggable decision function: given the actions legal for
// a seat right now and the seat's view of the state, pick one of them and
// a short human-readable reasoning string. Implementations must always
// return an action from legalActions when it is non-empty; behaviour on an
// empty slice is undefined, so the Bot Player never calls Pick in that
// case.
type Strategy interface {
	Pick(legalActions []engine.Action, state engine.MaskedState) (engine.Action, string)
}

// RandomStrategy is the default strategy. Uniform randomness over bid/pass
// actions keeps the auction alive far longer than any human table would,
// so bid decisions get a dedicated policy: pass with probability
// PassProbability when pass is legal, otherwise take the minimum legal
// bid. Every other phase picks uniformly among the legal actions.
type RandomStrategy struct {
	// PassProbability defaults to 0.70 when zero.
	PassProbability float64
	// Rand defaults to rand.Float64/rand.Intn when nil.
	Rand *rand.Rand
}

func (s RandomStrategy) passProbability() float64 {
	if s.PassProbability > 0 {
		return s.PassProbability
	}
	return 0.70
}

func (s RandomStrategy) float64() float64 {
	if s.Rand != nil {
		return s.Rand.Float64()
	}
	return rand.Float64()
}

func (s RandomStrategy) intn(n int) int {
	if s.Rand != nil {
		return s.Rand.Intn(n)
	}
	return rand.Intn(n)
}

// Pick implements Strategy. Callers must never invoke this with an empty
// legalActions slice.
func (s RandomStrategy) Pick(legalActions []engine.Action, state engine.MaskedState) (engine.Action, string) {
	if hasBid(legalActions) {
		return s.pickBid(legalActions)
	}
	choice := legalActions[s.intn(len(legalActions))]
	return choice, "random choice among legal actions"
}

func hasBid(actions []engine.Action) bool {
	for _, a := range actions {
		if a.Kind == engine.ActionBid {
			return true
		}
	}
	return false
}

func (s RandomStrategy) pickBid(actions []engine.Action) (engine.Action, string) {
	passLegal, minBid, haveMin := false, engine.Action{}, false
	for _, a := range actions {
		switch a.Kind {
		case engine.ActionPass:
			passLegal = true
		case engine.ActionBid:
			if !haveMin || a.Bid < minBid.Bid {
				minBid = a
				haveMin = true
			}
		}
	}

	if passLegal && s.float64() < s.passProbability() {
		return engine.Pass(), "passing per the default bidding policy"
	}
	if haveMin {
		return minBid, "taking the minimum legal bid"
	}
	// passLegal is always true when haveMin is false: the auction always
	// offers pass unless the seat already passed, and a passed seat never
	// gets a turn.
	return actions[0], "fallback: no minimum bid available"
}
