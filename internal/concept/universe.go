package concept

import "fmt"

// #region universe

// Universe is the mutable, ordered schema of concepts. Concepts are
// partitioned into a STATE subset and an ACTION subset according to how they
// were registered. Index assignment is stable for the lifetime of a concept:
// the sequence is only appended to, or compacted by explicit removal.
type Universe struct {
	concepts []Concept
	idToIdx  map[string]int
	state    map[string]bool
	action   map[string]bool
}

// NewUniverse builds a universe from ordered STATE and ACTION concept lists.
// STATE concepts come first, preserving input order.
func NewUniverse(stateConcepts, actionConcepts []Concept) (*Universe, error) {
	u := &Universe{
		idToIdx: make(map[string]int),
		state:   make(map[string]bool),
		action:  make(map[string]bool),
	}
	for _, c := range stateConcepts {
		if err := u.register(c, true); err != nil {
			return nil, err
		}
	}
	for _, c := range actionConcepts {
		if err := u.register(c, false); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *Universe) register(c Concept, isState bool) error {
	if c.ID == "" {
		return fmt.Errorf("register concept: empty id")
	}
	if _, ok := u.idToIdx[c.ID]; ok {
		return fmt.Errorf("register concept %s: duplicate id", c.ID)
	}
	u.idToIdx[c.ID] = len(u.concepts)
	u.concepts = append(u.concepts, c)
	if isState {
		u.state[c.ID] = true
	} else {
		u.action[c.ID] = true
	}
	return nil
}

// #endregion universe

// #region accessors

// Size returns the total concept count K. Any feature vector produced
// against this universe has exactly Size elements.
func (u *Universe) Size() int {
	return len(u.concepts)
}

// Concepts returns a copy of the full ordered concept sequence.
func (u *Universe) Concepts() []Concept {
	out := make([]Concept, len(u.concepts))
	copy(out, u.concepts)
	return out
}

// ConceptIDs returns all concept ids in registration order.
func (u *Universe) ConceptIDs() []string {
	out := make([]string, len(u.concepts))
	for i, c := range u.concepts {
		out[i] = c.ID
	}
	return out
}

// StateConcepts returns the STATE subset in registration order.
func (u *Universe) StateConcepts() []Concept {
	var out []Concept
	for _, c := range u.concepts {
		if u.state[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// ActionConcepts returns the ACTION subset in registration order.
func (u *Universe) ActionConcepts() []Concept {
	var out []Concept
	for _, c := range u.concepts {
		if u.action[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// StateIndexMap returns the current indices of STATE concepts in
// registration order. This list defines the column order of any state
// activation matrix built against the universe at this moment.
func (u *Universe) StateIndexMap() []int {
	var out []int
	for i, c := range u.concepts {
		if u.state[c.ID] {
			out = append(out, i)
		}
	}
	return out
}

// IndexOf resolves a concept id to its current index.
func (u *Universe) IndexOf(id string) (int, bool) {
	idx, ok := u.idToIdx[id]
	return idx, ok
}

// IDAt resolves an index to its concept id.
func (u *Universe) IDAt(idx int) (string, bool) {
	if idx < 0 || idx >= len(u.concepts) {
		return "", false
	}
	return u.concepts[idx].ID, true
}

// Get returns the concept with the given id.
func (u *Universe) Get(id string) (Concept, bool) {
	idx, ok := u.idToIdx[id]
	if !ok {
		return Concept{}, false
	}
	return u.concepts[idx], true
}

// Has reports whether the universe contains id.
func (u *Universe) Has(id string) bool {
	_, ok := u.idToIdx[id]
	return ok
}

// IsState reports whether id is a STATE concept.
func (u *Universe) IsState(id string) bool {
	return u.state[id]
}

// IsAction reports whether id is an ACTION concept.
func (u *Universe) IsAction(id string) bool {
	return u.action[id]
}

// #endregion accessors

// #region mutation

// AddStateConcept appends a STATE concept at the next index.
func (u *Universe) AddStateConcept(c Concept) error {
	return u.register(c, true)
}

// Remove deletes a concept and compacts the index maps. Concepts after the
// removed one shift down by one index; no dangling or duplicate indices
// remain afterwards.
func (u *Universe) Remove(id string) error {
	idx, ok := u.idToIdx[id]
	if !ok {
		return fmt.Errorf("remove concept %s: not found", id)
	}
	u.concepts = append(u.concepts[:idx], u.concepts[idx+1:]...)
	delete(u.state, id)
	delete(u.action, id)
	u.rebuildIndex()
	return nil
}

func (u *Universe) rebuildIndex() {
	u.idToIdx = make(map[string]int, len(u.concepts))
	for i, c := range u.concepts {
		u.idToIdx[c.ID] = i
	}
}

// #endregion mutation
