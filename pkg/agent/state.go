package agent

// State is the position of an Agent in the reason-act-observe loop.
type State int32

const (
	// StateDone is the idle state: before the first run and after each run.
	StateDone State = iota
	// StateAwaitingModel means a model request is in flight.
	StateAwaitingModel
	// StateAwaitingToolResults means the tool calls of the latest reply are
	// being executed.
	StateAwaitingToolResults
)

func (s State) String() string {
	switch s {
	case StateDone:
		return "done"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateAwaitingToolResults:
		return "awaiting_tool_results"
	default:
		return "unknown"
	}
}
