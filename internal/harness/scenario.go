package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/peersync/internal/config"
	"github.com/roach88/peersync/internal/room"
	"github.com/roach88/peersync/internal/session"
	"github.com/roach88/peersync/internal/wire"
)

// DefaultSettle bounds how long waits and assertions poll.
const DefaultSettle = 3 * time.Second

// Scenario is one multi-node sync test.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overlays the node configuration shared by every node. Same keys
	// as the config file; the transport and storage sections are ignored.
	Config yaml.Node `yaml:"config,omitempty"`

	// Settle bounds every wait and the final assertion polling.
	// Zero means DefaultSettle.
	Settle time.Duration `yaml:"settle,omitempty"`

	Nodes      []NodeSpec  `yaml:"nodes"`
	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// NodeSpec declares a participant.
type NodeSpec struct {
	Name string `yaml:"name"`

	// Document is the node's local document at start.
	Document map[string]string `yaml:"document,omitempty"`

	// Record seeds the persisted session record, for resume scenarios.
	Record *RecordSpec `yaml:"record,omitempty"`

	// Codes are handed out in order when the node hosts without a code.
	Codes []string `yaml:"codes,omitempty"`
}

// RecordSpec is a persisted session descriptor.
type RecordSpec struct {
	Role string `yaml:"role"`
	Code string `yaml:"code"`
}

// Step is either a node action, a wait, or a sleep.
type Step struct {
	Node     string            `yaml:"node,omitempty"`
	Action   string            `yaml:"action,omitempty"`
	Code     string            `yaml:"code,omitempty"`
	Document map[string]string `yaml:"document,omitempty"`

	// ExpectError makes a failing action pass and a succeeding one fail.
	ExpectError bool `yaml:"expect_error,omitempty"`

	Wait  *Condition    `yaml:"wait,omitempty"`
	Sleep time.Duration `yaml:"sleep,omitempty"`
}

// Condition is a wait target. Unset fields are not checked.
type Condition struct {
	Node         string `yaml:"node"`
	State        string `yaml:"state,omitempty"`
	Participants *int   `yaml:"participants,omitempty"`
	Notice       string `yaml:"notice,omitempty"`
	Locked       *bool  `yaml:"locked,omitempty"`

	// Document must equal the node's document exactly.
	Document map[string]string `yaml:"document,omitempty"`
}

// Assertion checks the settled outcome.
type Assertion struct {
	Type string `yaml:"type"`
	Node string `yaml:"node,omitempty"`

	State    string            `yaml:"state,omitempty"`
	Document map[string]string `yaml:"document,omitempty"`
	Locked   bool              `yaml:"locked,omitempty"`

	// Count is the participant count, frame count, or notice count.
	Count *int `yaml:"count,omitempty"`

	Contains string `yaml:"contains,omitempty"`

	Frame string `yaml:"frame,omitempty"`
	From  string `yaml:"from,omitempty"`
	To    string `yaml:"to,omitempty"`

	Role   string `yaml:"role,omitempty"`
	Code   string `yaml:"code,omitempty"`
	Absent bool   `yaml:"absent,omitempty"`
}

// Step actions.
const (
	ActionHost      = "host"
	ActionJoin      = "join"
	ActionResume    = "resume"
	ActionStop      = "stop"
	ActionShutdown  = "shutdown"
	ActionUpdate    = "update"
	ActionLock      = "lock"
	ActionUnlock    = "unlock"
	ActionSilence   = "silence"
	ActionUnsilence = "unsilence"
	ActionOutage    = "outage"
	ActionRestore   = "restore"
)

// Assertion types.
const (
	AssertState        = "state"
	AssertParticipants = "participants"
	AssertDocument     = "document"
	AssertLocked       = "locked"
	AssertNotice       = "notice"
	AssertFrameCount   = "frame_count"
	AssertRecord       = "record"
)

var stateNames = map[string]session.State{
	session.StateIdle.String():       session.StateIdle,
	session.StateConnecting.String(): session.StateConnecting,
	session.StateHost.String():       session.StateHost,
	session.StateClient.String():     session.StateClient,
}

// networkActions do not target a node.
var networkActions = map[string]bool{ActionOutage: true, ActionRestore: true}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// settle returns the polling bound.
func (s *Scenario) settle() time.Duration {
	if s.Settle > 0 {
		return s.Settle
	}
	return DefaultSettle
}

// nodeConfig decodes the config overlay over the defaults and validates it.
func (s *Scenario) nodeConfig() (config.Config, error) {
	if s.Config.Kind == 0 {
		return config.Default(), nil
	}
	raw, err := yaml.Marshal(&s.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("re-encode config: %w", err)
	}
	return config.Decode(bytes.NewReader(raw))
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("nodes list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if _, err := s.nodeConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	names := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.Name == "" {
			return fmt.Errorf("nodes[%d]: name is required", i)
		}
		if names[n.Name] {
			return fmt.Errorf("nodes[%d]: duplicate name %q", i, n.Name)
		}
		names[n.Name] = true
		if n.Record != nil {
			if !room.Role(n.Record.Role).Valid() {
				return fmt.Errorf("nodes[%d].record: unknown role %q", i, n.Record.Role)
			}
			if _, err := room.Normalize(n.Record.Code); err != nil {
				return fmt.Errorf("nodes[%d].record: %w", i, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, names); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, names); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, names map[string]bool) error {
	kinds := 0
	if step.Action != "" {
		kinds++
	}
	if step.Wait != nil {
		kinds++
	}
	if step.Sleep > 0 {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of action, wait or sleep is required", i)
	}

	if step.Wait != nil {
		if !names[step.Wait.Node] {
			return fmt.Errorf("steps[%d].wait: unknown node %q", i, step.Wait.Node)
		}
		if step.Wait.State != "" {
			if _, ok := stateNames[step.Wait.State]; !ok {
				return fmt.Errorf("steps[%d].wait: unknown state %q", i, step.Wait.State)
			}
		}
		return nil
	}
	if step.Sleep > 0 {
		return nil
	}

	if networkActions[step.Action] {
		return nil
	}
	if !names[step.Node] {
		return fmt.Errorf("steps[%d]: unknown node %q", i, step.Node)
	}
	switch step.Action {
	case ActionJoin:
		if step.Code == "" && !step.ExpectError {
			return fmt.Errorf("steps[%d]: code is required for join", i)
		}
	case ActionUpdate:
		if step.Document == nil {
			return fmt.Errorf("steps[%d]: document is required for update", i)
		}
	case ActionHost, ActionResume, ActionStop, ActionShutdown,
		ActionLock, ActionUnlock, ActionSilence, ActionUnsilence:
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}
	return nil
}

func validateAssertion(i int, a Assertion, names map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", i)
	}
	if a.Type != AssertFrameCount && !names[a.Node] {
		return fmt.Errorf("assertions[%d]: unknown node %q", i, a.Node)
	}

	switch a.Type {
	case AssertState:
		if _, ok := stateNames[a.State]; !ok {
			return fmt.Errorf("assertions[%d]: unknown state %q", i, a.State)
		}
	case AssertParticipants:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for participants", i)
		}
	case AssertDocument:
		if a.Document == nil {
			return fmt.Errorf("assertions[%d]: document is required (use {} for empty)", i)
		}
	case AssertLocked:
	case AssertNotice:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for notice", i)
		}
	case AssertFrameCount:
		if !wire.Type(a.Frame).Known() {
			return fmt.Errorf("assertions[%d]: unknown frame type %q", i, a.Frame)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for frame_count", i)
		}
		for _, end := range []string{a.From, a.To} {
			if end != "" && !names[end] {
				return fmt.Errorf("assertions[%d]: unknown node %q", i, end)
			}
		}
	case AssertRecord:
		if a.Absent {
			return nil
		}
		if !room.Role(a.Role).Valid() || a.Code == "" {
			return fmt.Errorf("assertions[%d]: role and code are required for record (or absent: true)", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
