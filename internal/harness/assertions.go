package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// View is what assertions are evaluated against.
type View struct {
	Frames []FrameEvent
	Nodes  map[string]NodeSnapshot
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Node     string       // Node the assertion targets, if any
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Frames   []FrameEvent // Observed frames for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	if e.Node != "" {
		fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Node)
	} else {
		fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Frames) > 0 {
		fmt.Fprintf(&buf, "\nFrames:\n")
		for i, f := range e.Frames {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", i+1, f.Type, f.From, f.To)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(v *View, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(v, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return failures
}

func evaluateAssertion(v *View, a Assertion) error {
	if a.Type == AssertFrameCount {
		return assertFrameCount(v.Frames, a)
	}

	snap, ok := v.Nodes[a.Node]
	if !ok {
		return fmt.Errorf("unknown node %q", a.Node)
	}
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Node: a.Node, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertState:
		if snap.State != a.State {
			return fail(a.State, snap.State)
		}
	case AssertParticipants:
		if snap.Participants != *a.Count {
			return fail(fmt.Sprintf("%d participants", *a.Count), fmt.Sprintf("%d participants", snap.Participants))
		}
	case AssertDocument:
		if !sameDocument(snap.Document, a.Document) {
			return fail(formatDocument(a.Document), formatDocument(snap.Document))
		}
	case AssertLocked:
		if snap.Locked != a.Locked {
			return fail(fmt.Sprintf("locked=%t", a.Locked), fmt.Sprintf("locked=%t", snap.Locked))
		}
	case AssertNotice:
		return assertNotice(snap, a)
	case AssertRecord:
		want := ""
		if !a.Absent {
			want = a.Role + ":" + a.Code
		}
		if snap.Record != want {
			return fail(orNone(want), orNone(snap.Record))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertNotice(snap NodeSnapshot, a Assertion) error {
	n := 0
	for _, msg := range snap.Notices {
		if strings.Contains(msg, a.Contains) {
			n++
		}
	}

	ok := n > 0
	expected := fmt.Sprintf("a notice containing %q", a.Contains)
	if a.Count != nil {
		ok = n == *a.Count
		expected = fmt.Sprintf("%d notices containing %q", *a.Count, a.Contains)
	}
	if ok {
		return nil
	}
	return &AssertionError{
		Type:     AssertNotice,
		Node:     a.Node,
		Expected: expected,
		Actual:   fmt.Sprintf("%d matching in %q", n, snap.Notices),
	}
}

func assertFrameCount(frames []FrameEvent, a Assertion) error {
	n := 0
	for _, f := range frames {
		if f.Type == a.Frame && (a.From == "" || f.From == a.From) && (a.To == "" || f.To == a.To) {
			n++
		}
	}
	if n == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertFrameCount,
		Expected: fmt.Sprintf("%d %s frames %s -> %s", *a.Count, a.Frame, orAny(a.From), orAny(a.To)),
		Actual:   fmt.Sprintf("%d", n),
		Frames:   frames,
	}
}

func sameDocument(actual, expected map[string]string) bool {
	if len(actual) == 0 && len(expected) == 0 {
		return true
	}
	return reflect.DeepEqual(actual, expected)
}

// formatDocument renders a document with sorted keys.
func formatDocument(doc map[string]string) string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, doc[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
