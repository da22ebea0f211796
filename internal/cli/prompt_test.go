package cli

import (
	"bytes"
	"strings"
	"testing"

	"modsync/internal/resolve"
)

var promptMissing = []resolve.Dependency{
	{ID: "10", Name: "HugsLib"},
	{ID: "20", Name: "Harmony"},
	{ID: "30"},
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		answer    string
		ok        bool
		cancelled bool
		chosen    []string
	}{
		{"", true, false, []string{"10", "20", "30"}},
		{"ALL", true, false, []string{"10", "20", "30"}},
		{"n", true, false, []string{}},
		{"c", true, true, nil},
		{"1,3", true, false, []string{"10", "30"}},
		{"2 2", true, false, []string{"20"}},
		{"4", false, false, nil},
		{"x", false, false, nil},
	}
	for _, tc := range cases {
		got, ok := parseDecision(tc.answer, promptMissing)
		if ok != tc.ok {
			t.Errorf("parseDecision(%q) ok=%v, want %v", tc.answer, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.Cancelled != tc.cancelled {
			t.Errorf("parseDecision(%q) cancelled=%v", tc.answer, got.Cancelled)
		}
		if tc.cancelled {
			continue
		}
		ids := make([]string, 0, len(got.Chosen))
		for _, dep := range got.Chosen {
			ids = append(ids, dep.ID)
		}
		if strings.Join(ids, ",") != strings.Join(tc.chosen, ",") {
			t.Errorf("parseDecision(%q) chosen=%v, want %v", tc.answer, ids, tc.chosen)
		}
	}
}

func TestLinePrompterDecide(t *testing.T) {
	out := &bytes.Buffer{}
	p := newLinePrompter(strings.NewReader("what\n2\n"), out)
	decision, err := p.Decide(resolve.DecisionRequest{ItemID: "1", ItemName: "Combat Extended", Missing: promptMissing})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Cancelled || len(decision.Chosen) != 1 || decision.Chosen[0].ID != "20" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	text := out.String()
	if !strings.Contains(text, "Combat Extended requires items") || !strings.Contains(text, `Unrecognized answer "what"`) {
		t.Fatalf("unexpected prompt output %q", text)
	}
}

func TestLinePrompterEOFCancels(t *testing.T) {
	p := newLinePrompter(strings.NewReader(""), &bytes.Buffer{})
	decision, err := p.Decide(resolve.DecisionRequest{ItemID: "1", Missing: promptMissing})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !decision.Cancelled {
		t.Fatalf("expected cancel on EOF, got %+v", decision)
	}
}

func TestLinePrompterGivesUp(t *testing.T) {
	p := newLinePrompter(strings.NewReader("x\ny z\n9\n1\n"), &bytes.Buffer{})
	if _, err := p.Decide(resolve.DecisionRequest{ItemID: "1", Missing: promptMissing}); err == nil {
		t.Fatal("expected error after repeated invalid answers")
	}
}

func TestLinePrompterConfirm(t *testing.T) {
	p := newLinePrompter(strings.NewReader("y\n\nnope\n"), &bytes.Buffer{})
	if !p.Confirm("Retry?") {
		t.Fatal("expected yes")
	}
	if p.Confirm("Retry?") {
		t.Fatal("empty answer should default to no")
	}
	if p.Confirm("Retry?") {
		t.Fatal("expected no")
	}
	if p.Confirm("Retry?") {
		t.Fatal("EOF should answer no")
	}
}
