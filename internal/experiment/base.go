package experiment

import (
	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/reactor"
)

// #region base-concepts

// BaseStateConcepts is the bootstrap STATE vocabulary the tagger labels
// operator notes against before any discovery has run.
func BaseStateConcepts() []concept.Concept {
	return []concept.Concept{
		{ID: "output_anemic", Definition: "the note describes thin steam or anemic turbines (output below ~0.3)", Source: concept.SourceBase},
		{ID: "output_heavy", Definition: "the note describes straining turbines or heavy steam flow (output above ~1.0)", Source: concept.SourceBase},
		{ID: "glitch_logged", Definition: "at least one instrument glitch is logged in the note", Source: concept.SourceBase},
		{ID: "warning_light", Definition: "the red warning light is blinking on the console", Source: concept.SourceBase},
		{ID: "crew_uneasy", Definition: "the crew reads as tense or frazzled rather than calm", Source: concept.SourceBase},
		{ID: "demand_high", Definition: "grid demand is described as high", Source: concept.SourceBase},
	}
}

// BaseActionConcepts is the fixed ACTION vocabulary, one per control input.
func BaseActionConcepts() []concept.Concept {
	return []concept.Concept{
		{ID: "act_steady", Definition: "hold the plant steady this step", Source: concept.SourceBase},
		{ID: "act_cool", Definition: "run coolant to bleed stress and recover margin", Source: concept.SourceBase},
		{ID: "act_push", Definition: "push output up at the cost of stress and margin", Source: concept.SourceBase},
	}
}

// ActionBinding maps ACTION concept ids to environment actions.
func ActionBinding() map[string]reactor.Action {
	return map[string]reactor.Action{
		"act_steady": reactor.ActionSteady,
		"act_cool":   reactor.ActionCool,
		"act_push":   reactor.ActionPush,
	}
}

// BaseUniverse builds the bootstrap universe.
func BaseUniverse() (*concept.Universe, error) {
	return concept.NewUniverse(BaseStateConcepts(), BaseActionConcepts())
}

// #endregion base-concepts
