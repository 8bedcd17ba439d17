package oracle

import (
	"context"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// #region interfaces

// ConceptTagger converts a free-text observation into ternary activations
// scoped to the universe's current STATE concepts. A payload that does not
// conform to the tagging schema is an error; concepts the tagger does not
// mention default to Unknown, never to an error.
type ConceptTagger interface {
	TagState(ctx context.Context, observation string, u *concept.Universe) (concept.Activations, error)
}

// ConceptCreator proposes a new concept definition from a correlated parent
// pair and matching/non-matching example observations. The returned
// concept's id must not already exist in the universe.
type ConceptCreator interface {
	Create(
		ctx context.Context,
		u *concept.Universe,
		parents [2]concept.Concept,
		patternDescription string,
		positive []string,
		negative []string,
	) (concept.Concept, error)
}

// #endregion interfaces
