package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

func oracleUniverse(t *testing.T) *concept.Universe {
	t.Helper()
	u, err := concept.NewUniverse(
		[]concept.Concept{
			{ID: "glitch_logged", Definition: "a glitch appears in the note", Source: concept.SourceBase},
			{ID: "crew_uneasy", Definition: "the crew sounds tense or worse", Source: concept.SourceBase},
		},
		[]concept.Concept{{ID: "act_steady", Definition: "hold course", Source: concept.SourceBase}},
	)
	if err != nil {
		t.Fatalf("NewUniverse: %v", err)
	}
	return u
}

// scriptedClient serves a fixed chat-completion content string.
func scriptedClient(t *testing.T, content string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		body := `{"choices":[{"message":{"content":` + jsonString(content) + `}}]}`
		w.Write([]byte(body))
	}))
	config := ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}
	return NewClientWithHTTP(config, srv.Client()), srv
}

// jsonString quotes s as a JSON string literal, escaping what the scripted
// payloads need.
func jsonString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return `"` + s + `"`
}

func TestTagStateParsesPolarities(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `[
		{"concept_id": "glitch_logged", "polarity": "present"},
		{"concept_id": "crew_uneasy", "polarity": "absent"}
	]`)
	defer srv.Close()

	acts, err := c.TagState(context.Background(), "note", u)
	if err != nil {
		t.Fatalf("TagState: %v", err)
	}
	if acts.Value("glitch_logged") != concept.Present {
		t.Fatalf("glitch_logged = %d, want Present", acts.Value("glitch_logged"))
	}
	if acts.Value("crew_uneasy") != concept.Absent {
		t.Fatalf("crew_uneasy = %d, want Absent", acts.Value("crew_uneasy"))
	}
}

func TestTagStateUnmentionedStaysUnknown(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `[{"concept_id": "glitch_logged", "polarity": "present"}]`)
	defer srv.Close()

	acts, err := c.TagState(context.Background(), "note", u)
	if err != nil {
		t.Fatalf("TagState: %v", err)
	}
	if acts.Value("crew_uneasy") != concept.Unknown {
		t.Fatalf("unmentioned concept = %d, want Unknown", acts.Value("crew_uneasy"))
	}
}

func TestTagStateStripsFences(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, "```json\n[{\"concept_id\": \"glitch_logged\", \"polarity\": \"present\"}]\n```")
	defer srv.Close()

	if _, err := c.TagState(context.Background(), "note", u); err != nil {
		t.Fatalf("fenced payload should parse: %v", err)
	}
}

func TestTagStateUnknownConceptErrors(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `[{"concept_id": "made_up", "polarity": "present"}]`)
	defer srv.Close()

	if _, err := c.TagState(context.Background(), "note", u); err == nil {
		t.Fatal("expected error for unknown concept id")
	}
}

func TestTagStateActionConceptErrors(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `[{"concept_id": "act_steady", "polarity": "present"}]`)
	defer srv.Close()

	if _, err := c.TagState(context.Background(), "note", u); err == nil {
		t.Fatal("expected error when tagger labels an action concept")
	}
}

func TestTagStateBadPolarityErrors(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `[{"concept_id": "glitch_logged", "polarity": "maybe"}]`)
	defer srv.Close()

	if _, err := c.TagState(context.Background(), "note", u); err == nil {
		t.Fatal("expected error for invalid polarity")
	}
}

func TestTagStateMalformedJSONErrors(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, "sorry, I cannot do that")
	defer srv.Close()

	if _, err := c.TagState(context.Background(), "note", u); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}

func TestTagStateEndpointError(t *testing.T) {
	u := oracleUniverse(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithHTTP(ClientConfig{BaseURL: srv.URL, Model: "m"}, srv.Client())
	if _, err := c.TagState(context.Background(), "note", u); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestCreateConcept(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `{"id": "llm_strain", "definition": "the plant shows strain"}`)
	defer srv.Close()

	parents := [2]concept.Concept{mustGet(t, u, "glitch_logged"), mustGet(t, u, "crew_uneasy")}
	created, err := c.Create(context.Background(), u, parents, "co-occurring strain", []string{"pos"}, []string{"neg"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "llm_strain" || created.Source != concept.SourceLLM {
		t.Fatalf("created %+v", created)
	}
}

func TestCreateEmptyIDGetsGenerated(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `{"id": "", "definition": "something real"}`)
	defer srv.Close()

	parents := [2]concept.Concept{mustGet(t, u, "glitch_logged"), mustGet(t, u, "crew_uneasy")}
	created, err := c.Create(context.Background(), u, parents, "p", nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(created.ID, "llm_") || len(created.ID) <= len("llm_") {
		t.Fatalf("generated id %q should carry the llm_ prefix", created.ID)
	}
}

func TestCreateEmptyDefinitionErrors(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `{"id": "llm_x", "definition": ""}`)
	defer srv.Close()

	parents := [2]concept.Concept{mustGet(t, u, "glitch_logged"), mustGet(t, u, "crew_uneasy")}
	if _, err := c.Create(context.Background(), u, parents, "p", nil, nil); err == nil {
		t.Fatal("expected error for empty definition")
	}
}

func TestCreateCollidingIDErrors(t *testing.T) {
	u := oracleUniverse(t)
	c, srv := scriptedClient(t, `{"id": "glitch_logged", "definition": "dup"}`)
	defer srv.Close()

	parents := [2]concept.Concept{mustGet(t, u, "glitch_logged"), mustGet(t, u, "crew_uneasy")}
	if _, err := c.Create(context.Background(), u, parents, "p", nil, nil); err == nil {
		t.Fatal("expected error for id collision")
	}
}

func mustGet(t *testing.T, u *concept.Universe, id string) concept.Concept {
	t.Helper()
	c, ok := u.Get(id)
	if !ok {
		t.Fatalf("concept %s missing", id)
	}
	return c
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"plain":                   "plain",
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         "[1,2]",
		"  {\"spaces\": true}  ":  `{"spaces": true}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Fatalf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
