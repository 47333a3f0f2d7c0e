package finder

import (
	"fmt"

	"go.uber.org/zap"
)

// State is one node of the request state machine. Every request walks
// Cached → Collecting → Evaluating → Processing and either terminates in
// Done or loops through Retrying with an escalated strategy.
type State int

const (
	StateCached State = iota
	StateCollecting
	StateEvaluating
	StateProcessing
	StateRetrying
	StateDone
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateCached:
		return "cached"
	case StateCollecting:
		return "collecting"
	case StateEvaluating:
		return "evaluating"
	case StateProcessing:
		return "processing"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Strategy is the escalation ladder: the original request first, then the
// specific search with alternate phrasing, then broad topic search, and
// finally blind selection when the evaluator's quota is gone.
type Strategy int

const (
	StrategyInitial Strategy = iota
	StrategySearchRetry
	StrategyGeneric
	StrategyBlind
)

func (s Strategy) String() string {
	switch s {
	case StrategyInitial:
		return "initial"
	case StrategySearchRetry:
		return "search_retry"
	case StrategyGeneric:
		return "generic"
	case StrategyBlind:
		return "blind"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// machine tracks one request's walk through the states. It exists per
// request; the Finder itself stays stateless across requests.
type machine struct {
	state    State
	strategy Strategy
	attempt  int
	logger   *zap.Logger
}

func newMachine(logger *zap.Logger) *machine {
	return &machine{state: StateCached, strategy: StrategyInitial, logger: logger}
}

func (m *machine) to(state State, strategy Strategy, attempt int) {
	m.state, m.strategy, m.attempt = state, strategy, attempt
	m.logger.Debug("state transition",
		zap.Stringer("state", state),
		zap.Stringer("strategy", strategy),
		zap.Int("attempt", attempt))
}
