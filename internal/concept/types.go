package concept

// #region source

// Source indicates how a concept came to exist.
type Source string

const (
	SourceBase Source = "base" // registered at bootstrap
	SourceLLM  Source = "llm"  // proposed by the concept creator at runtime
)

// #endregion source

// #region concept

// Concept is a named boolean-ish attribute of the plant state or of an
// available action, used as one feature dimension. Immutable once created.
type Concept struct {
	ID         string
	Definition string
	Source     Source
}

// #endregion concept

// #region activation

// Activation is a concept's ternary per-observation value.
type Activation int8

const (
	Absent  Activation = -1 // explicitly absent
	Unknown Activation = 0  // unobserved / not mentioned
	Present Activation = 1  // explicitly present
)

// Activations maps STATE concept ids to ternary values.
// A concept missing from the map is Unknown.
type Activations map[string]Activation

// Value returns the activation for id, defaulting to Unknown.
func (a Activations) Value(id string) Activation {
	if a == nil {
		return Unknown
	}
	return a[id]
}

// #endregion activation
