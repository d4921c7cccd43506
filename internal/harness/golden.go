package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flyter/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonical converts a TraceSnapshot to an IR object for canonical JSON
// serialization.
func (s *TraceSnapshot) toCanonical() (ir.IRObject, error) {
	traceList := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.IRObject{
			"seq":     ir.IRInt(event.Seq),
			"op":      ir.IRString(event.Op),
			"caller":  ir.IRString(event.Caller),
			"outcome": ir.IRString(event.Outcome),
		}
		if event.Args != nil {
			args, err := toIRObject(event.Args)
			if err != nil {
				return nil, fmt.Errorf("trace[%d].args: %w", i, err)
			}
			obj["args"] = args
		}
		if event.Result != nil {
			res, err := toIRObject(event.Result)
			if err != nil {
				return nil, fmt.Errorf("trace[%d].result: %w", i, err)
			}
			obj["result"] = res
		}
		traceList[i] = obj
	}

	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         traceList,
	}, nil
}

func toIRObject(m map[string]any) (ir.IRObject, error) {
	obj := make(ir.IRObject, len(m))
	for k, v := range m {
		switch val := normalizeValue(v).(type) {
		case string:
			obj[k] = ir.IRString(val)
		case int64:
			obj[k] = ir.IRInt(val)
		case bool:
			obj[k] = ir.IRBool(val)
		default:
			return nil, fmt.Errorf("field %s: unsupported type %T", k, v)
		}
	}
	return obj, nil
}

// MarshalTrace renders a scenario trace as canonical JSON.
func MarshalTrace(scenarioName string, trace []TraceEvent) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: trace}
	obj, err := snapshot.toCanonical()
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(obj)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Extra goldie options are applied after the defaults, so
// goldie.WithFixtureDir can point at another golden directory.
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result, opts...); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	defaults := []goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}
	g := goldie.New(t, append(defaults, opts...)...)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
