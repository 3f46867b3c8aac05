package contracts

// Stage names a step of the live signal pipeline.
// Every log line, metric label and run summary uses these constants.
//
//	fetch → compliance → strategies → consensus → publish
type Stage string

const (
	// StageFetch: batched quote acquisition through the gateway
	StageFetch Stage = "FETCH"

	// StageCompliance: universe filtering by the compliance resolver
	StageCompliance Stage = "COMPLIANCE"

	// StageStrategies: every registered strategy evaluates every eligible instrument
	StageStrategies Stage = "STRATEGIES"

	// StageConsensus: per-instrument aggregation into one decision
	StageConsensus Stage = "CONSENSUS"

	// StagePublish: hand-off to the configured signal sinks
	StagePublish Stage = "PUBLISH"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Description returns a human readable description of the stage
func (s Stage) Description() string {
	switch s {
	case StageFetch:
		return "quote acquisition"
	case StageCompliance:
		return "compliance filtering"
	case StageStrategies:
		return "strategy evaluation"
	case StageConsensus:
		return "consensus aggregation"
	case StagePublish:
		return "signal publishing"
	default:
		return "unknown"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageFetch,
		StageCompliance,
		StageStrategies,
		StageConsensus,
		StagePublish,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}

// StageResult records the outcome of one stage
type StageResult struct {
	Stage       Stage  `json:"stage"`
	Success     bool   `json:"success"`
	InputCount  int    `json:"input_count"`
	OutputCount int    `json:"output_count"`
	Duration    int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// RunSummary describes one end-to-end generation run
type RunSummary struct {
	RunID      string            `json:"run_id"`
	ConfigHash string            `json:"config_hash"`
	Signals    []ConsensusSignal `json:"signals"`
	Stages     []StageResult     `json:"stages"`
	Excluded   map[string]string `json:"excluded,omitempty"` // symbol: reason
	Degraded   bool              `json:"degraded"`
	Cancelled  bool              `json:"cancelled"`
}
