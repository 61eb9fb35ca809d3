package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a run: per-node outcome plus frame totals.
// Frame order across nodes is not deterministic, so only counts are kept.
type Snapshot struct {
	Scenario string                  `json:"scenario"`
	Nodes    map[string]NodeSnapshot `json:"nodes"`
	Frames   map[string]int          `json:"frames"`
}

// NewSnapshot condenses a result. Frames are keyed "TYPE from->to".
func NewSnapshot(name string, r *Result) Snapshot {
	s := Snapshot{Scenario: name, Nodes: r.Nodes, Frames: map[string]int{}}
	for _, f := range r.Frames {
		s.Frames[f.Type+" "+f.From+"->"+f.To]++
	}
	return s
}

// Marshal renders the snapshot as indented JSON with sorted keys.
func (s Snapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
