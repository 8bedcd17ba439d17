package gate

// #region veto-type
// VetoType enumerates hard veto categories for concept admission.
type VetoType string

const (
	VetoDuplicateID     VetoType = "duplicate_id"
	VetoEmptyID         VetoType = "empty_id"
	VetoEmptyDefinition VetoType = "empty_definition"
	VetoHardCap         VetoType = "hard_cap"
	VetoBadSource       VetoType = "bad_source"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds limits for concept admission.
type GateConfig struct {
	// HardCap is the absolute universe size beyond which no discovered
	// concept is admitted, regardless of the pruning budget. 0 = no cap.
	HardCap int
	// MaxDefinitionLen rejects runaway creator output. 0 = no limit.
	MaxDefinitionLen int
}

// DefaultGateConfig returns sensible admission limits.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		HardCap:          64,
		MaxDefinitionLen: 500,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of an admission evaluation.
type GateDecision struct {
	Action      string // "admit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
}

// #endregion gate-decision
