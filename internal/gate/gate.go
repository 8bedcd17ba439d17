package gate

import (
	"fmt"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// #region gate
// Gate decides whether a creator-proposed concept may join the universe.
// It only checks hard admission invariants; importance-based pruning is the
// analyzer's job.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Admit checks the proposed concept against the current universe.
func (g *Gate) Admit(u *concept.Universe, c concept.Concept) GateDecision {
	var vetoes []VetoSignal

	if c.ID == "" {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEmptyID,
			Reason: "proposed concept has an empty id",
		})
	} else if u.Has(c.ID) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDuplicateID,
			Reason: fmt.Sprintf("id %q already present in universe", c.ID),
		})
	}

	if c.Definition == "" {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEmptyDefinition,
			Reason: "proposed concept has an empty definition",
		})
	} else if g.config.MaxDefinitionLen > 0 && len(c.Definition) > g.config.MaxDefinitionLen {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEmptyDefinition,
			Reason: fmt.Sprintf("definition length %d exceeds %d", len(c.Definition), g.config.MaxDefinitionLen),
		})
	}

	if c.Source != concept.SourceLLM {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoBadSource,
			Reason: fmt.Sprintf("discovered concept must be llm-sourced, got %q", c.Source),
		})
	}

	if g.config.HardCap > 0 && u.Size() >= g.config.HardCap {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoHardCap,
			Reason: fmt.Sprintf("universe size %d at hard cap %d", u.Size(), g.config.HardCap),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	return GateDecision{
		Action: "admit",
		Reason: fmt.Sprintf("admitted %s as state concept %d", c.ID, u.Size()),
	}
}

// #endregion gate
