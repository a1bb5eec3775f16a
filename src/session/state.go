package session

// TurnState names the phases of one conversation turn. The state machine is
// linear: Idle → LoadingHistory → BuildingRequest → Streaming → Finalizing →
// Idle, with Failed reachable from any active state.
type TurnState int

const (
	StateIdle TurnState = iota
	StateLoadingHistory
	StateBuildingRequest
	StateStreaming
	StateFinalizing
	StateFailed
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingHistory:
		return "loading_history"
	case StateBuildingRequest:
		return "building_request"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
