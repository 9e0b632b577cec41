package planner

import (
	"context"
	"errors"
	"testing"

	"planloom/internal/db"
	"planloom/internal/logging"
)

func TestStripEffortTag(t *testing.T) {
	cases := []struct {
		line       string
		wantClean  string
		wantEffort string
	}{
		{"[high] Build auth", "Build auth", "high"},
		{"[LOW] Add log line", "Add log line", "low"},
		{"  [Medium]  Wire config", "Wire config", "medium"},
		{"Build auth", "Build auth", ""},
		{"[urgent] Not an effort tag", "[urgent] Not an effort tag", ""},
		{"Build [high] auth", "Build [high] auth", ""},
	}
	for _, tc := range cases {
		clean, effort := StripEffortTag(tc.line)
		if clean != tc.wantClean || effort != tc.wantEffort {
			t.Errorf("StripEffortTag(%q) = (%q, %q), want (%q, %q)",
				tc.line, clean, effort, tc.wantClean, tc.wantEffort)
		}
	}
}

func TestClassifyEffort_TagSkipsProvider(t *testing.T) {
	p := &fakeProvider{}
	effort, clean := ClassifyEffort(context.Background(), p, logging.Discard(), "[HIGH] Build auth")
	if effort != db.EffortHigh || clean != "Build auth" {
		t.Fatalf("got (%q, %q)", effort, clean)
	}
	if len(p.prompts) != 0 {
		t.Fatal("tagged line must not hit the provider")
	}
}

func TestClassifyEffort_ProviderAnswer(t *testing.T) {
	p := &fakeProvider{script: []scriptedCall{{out: `{"effort": "low"}`}}}
	effort, _ := ClassifyEffort(context.Background(), p, logging.Discard(), "Add log line")
	if effort != db.EffortLow {
		t.Fatalf("got %q", effort)
	}
}

func TestClassifyEffort_DefaultsToMedium(t *testing.T) {
	cases := map[string]*fakeProvider{
		"provider error":      {script: []scriptedCall{{err: errors.New("boom")}}},
		"unparseable output":  {script: []scriptedCall{{out: "not json at all"}}},
		"out-of-domain value": {script: []scriptedCall{{out: `{"effort": "enormous"}`}}},
		"empty output":        {script: []scriptedCall{{out: ""}}},
	}
	for name, p := range cases {
		effort, _ := ClassifyEffort(context.Background(), p, logging.Discard(), "Do something")
		if effort != db.EffortMedium {
			t.Errorf("%s: got %q, want medium", name, effort)
		}
	}
}

func TestClassifyEffort_AlwaysInDomain(t *testing.T) {
	lines := []string{"", "[high] x", "[weird] y", "plain task", "   "}
	for _, line := range lines {
		p := &fakeProvider{script: []scriptedCall{{out: `{"effort": 42}`}}}
		effort, _ := ClassifyEffort(context.Background(), p, logging.Discard(), line)
		if !db.ValidEffort(effort) {
			t.Errorf("line %q classified as %q", line, effort)
		}
	}
}
