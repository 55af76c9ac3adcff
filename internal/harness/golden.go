package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stackline/internal/ir"
)

// TraceSnapshot is the golden form of a run: the trace plus the final
// published state, serialized as canonical JSON.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Final        FinalState
}

// toCanonicalMap converts the snapshot to the plain types
// ir.MarshalCanonical accepts. Empty optional fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"op":      ev.Op,
			"args":    ev.Args,
			"version": int64(ev.Version),
		}
		if ev.Seq != 0 {
			m["seq"] = ev.Seq
		}
		if len(ev.Instructions) > 0 {
			m["instructions"] = ev.Instructions
		}
		if len(ev.Warnings) > 0 {
			m["warnings"] = ev.Warnings
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	stacks := make(map[string]any, len(s.Final.Stacks))
	for track, ids := range s.Final.Stacks {
		stacks[string(track)] = ir.StringArray(ids)
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"trace":    trace,
		"final": map[string]any{
			"version":  int64(s.Final.Version),
			"position": int64(s.Final.Position),
			"stacks":   stacks,
		},
	}
}

// Marshal returns the canonical JSON of the snapshot.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Final:        result.Final,
	}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
