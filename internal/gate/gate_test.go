package gate

import (
	"strings"
	"testing"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

func gateUniverse(t *testing.T) *concept.Universe {
	t.Helper()
	u, err := concept.NewUniverse(
		[]concept.Concept{{ID: "s1", Definition: "state", Source: concept.SourceBase}},
		[]concept.Concept{{ID: "act_a", Definition: "action", Source: concept.SourceBase}},
	)
	if err != nil {
		t.Fatalf("NewUniverse: %v", err)
	}
	return u
}

func proposed(id string) concept.Concept {
	return concept.Concept{ID: id, Definition: "a discovered pattern", Source: concept.SourceLLM}
}

func hasVeto(d GateDecision, vt VetoType) bool {
	for _, v := range d.VetoSignals {
		if v.Type == vt {
			return true
		}
	}
	return false
}

func TestAdmitCleanConcept(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	d := g.Admit(gateUniverse(t), proposed("llm_new"))
	if d.Vetoed || d.Action != "admit" {
		t.Fatalf("clean concept rejected: %+v", d)
	}
}

func TestRejectDuplicateID(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	d := g.Admit(gateUniverse(t), proposed("s1"))
	if !d.Vetoed || !hasVeto(d, VetoDuplicateID) {
		t.Fatalf("duplicate id not vetoed: %+v", d)
	}
}

func TestRejectEmptyID(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	d := g.Admit(gateUniverse(t), proposed(""))
	if !d.Vetoed || !hasVeto(d, VetoEmptyID) {
		t.Fatalf("empty id not vetoed: %+v", d)
	}
}

func TestRejectEmptyDefinition(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	c := proposed("llm_new")
	c.Definition = ""
	d := g.Admit(gateUniverse(t), c)
	if !d.Vetoed || !hasVeto(d, VetoEmptyDefinition) {
		t.Fatalf("empty definition not vetoed: %+v", d)
	}
}

func TestRejectOverlongDefinition(t *testing.T) {
	g := NewGate(GateConfig{MaxDefinitionLen: 10})
	c := proposed("llm_new")
	c.Definition = strings.Repeat("x", 11)
	d := g.Admit(gateUniverse(t), c)
	if !d.Vetoed || !hasVeto(d, VetoEmptyDefinition) {
		t.Fatalf("overlong definition not vetoed: %+v", d)
	}
}

func TestRejectNonLLMSource(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	c := proposed("llm_new")
	c.Source = concept.SourceBase
	d := g.Admit(gateUniverse(t), c)
	if !d.Vetoed || !hasVeto(d, VetoBadSource) {
		t.Fatalf("base-sourced proposal not vetoed: %+v", d)
	}
}

func TestRejectAtHardCap(t *testing.T) {
	g := NewGate(GateConfig{HardCap: 2})
	d := g.Admit(gateUniverse(t), proposed("llm_new"))
	if !d.Vetoed || !hasVeto(d, VetoHardCap) {
		t.Fatalf("hard cap not enforced: %+v", d)
	}
}

func TestZeroCapMeansNoLimit(t *testing.T) {
	g := NewGate(GateConfig{HardCap: 0})
	d := g.Admit(gateUniverse(t), proposed("llm_new"))
	if d.Vetoed {
		t.Fatalf("zero cap should admit: %+v", d)
	}
}

func TestMultipleVetoesCollected(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	c := concept.Concept{ID: "", Definition: "", Source: concept.SourceBase}
	d := g.Admit(gateUniverse(t), c)
	if len(d.VetoSignals) < 3 {
		t.Fatalf("expected all vetoes collected, got %+v", d.VetoSignals)
	}
}
