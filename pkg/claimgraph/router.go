package claimgraph

// Stage identifies a step of the pipeline, or termination.
type Stage int

// Pipeline stages.
const (
	StageExtract Stage = iota
	StageCode
	StageAudit
	StageTerminate
)

// String returns the stage name used in logs, spans and metrics.
func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageCode:
		return "code"
	case StageAudit:
		return "audit"
	case StageTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Route decides which stage runs next.
//
// Decision order:
//  1. an error terminates the run
//  2. no action yet starts with extraction
//  3. code and retry_code go to the coder
//  4. audit goes to the auditor
//  5. end terminates
//
// Route is pure. Values outside the Action enum also terminate; the
// orchestrator reports those as an IllegalActionError.
func Route(s State) Stage {
	if s.Error != "" {
		return StageTerminate
	}

	switch s.Next {
	case ActionUnset:
		return StageExtract
	case ActionCode, ActionRetryCode:
		return StageCode
	case ActionAudit:
		return StageAudit
	case ActionEnd:
		return StageTerminate
	}
	return StageTerminate
}
