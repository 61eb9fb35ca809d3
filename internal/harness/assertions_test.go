package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func testView() *View {
	return &View{
		Frames: []FrameEvent{
			{Type: "FULL_SYNC", From: "host", To: "alice"},
			{Type: "UPDATE", From: "alice", To: "host"},
			{Type: "UPDATE", From: "host", To: "bob"},
		},
		Nodes: map[string]NodeSnapshot{
			"host": {
				State:        "host",
				Code:         "ABCD",
				Participants: 3,
				Locked:       true,
				Document:     map[string]string{"k": "v"},
				Record:       "host:ABCD",
				Notices:      []string{"Host session started: ABCD", "A peer disconnected."},
			},
			"alice": {
				State:    "idle",
				Document: map[string]string{},
				Notices:  []string{},
			},
		},
	}
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertState, Node: "host", State: "host"},
		{Type: AssertParticipants, Node: "host", Count: intp(3)},
		{Type: AssertDocument, Node: "host", Document: map[string]string{"k": "v"}},
		{Type: AssertDocument, Node: "alice", Document: map[string]string{}},
		{Type: AssertLocked, Node: "host", Locked: true},
		{Type: AssertLocked, Node: "alice", Locked: false},
		{Type: AssertNotice, Node: "host", Contains: "started"},
		{Type: AssertNotice, Node: "host", Contains: "joined", Count: intp(0)},
		{Type: AssertFrameCount, Frame: "UPDATE", Count: intp(2)},
		{Type: AssertFrameCount, Frame: "UPDATE", From: "host", Count: intp(1)},
		{Type: AssertFrameCount, Frame: "UPDATE", To: "alice", Count: intp(0)},
		{Type: AssertFrameCount, Frame: "FULL_SYNC", From: "host", To: "alice", Count: intp(1)},
		{Type: AssertRecord, Node: "host", Role: "host", Code: "ABCD"},
		{Type: AssertRecord, Node: "alice", Absent: true},
	}
	assert.Empty(t, EvaluateAssertions(testView(), assertions))
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{"state", Assertion{Type: AssertState, Node: "alice", State: "client"},
			[]string{"state on alice", "Expected: client", "Actual: idle"}},
		{"participants", Assertion{Type: AssertParticipants, Node: "host", Count: intp(2)},
			[]string{"Expected: 2 participants", "Actual: 3 participants"}},
		{"document", Assertion{Type: AssertDocument, Node: "host", Document: map[string]string{"k": "w"}},
			[]string{"Expected: {k=w}", "Actual: {k=v}"}},
		{"locked", Assertion{Type: AssertLocked, Node: "alice", Locked: true},
			[]string{"Expected: locked=true", "Actual: locked=false"}},
		{"notice missing", Assertion{Type: AssertNotice, Node: "alice", Contains: "joined"},
			[]string{`a notice containing "joined"`}},
		{"notice count", Assertion{Type: AssertNotice, Node: "host", Contains: "A ", Count: intp(2)},
			[]string{`2 notices containing "A "`, "1 matching"}},
		{"frame count", Assertion{Type: AssertFrameCount, Frame: "UPDATE", To: "alice", Count: intp(1)},
			[]string{"1 UPDATE frames * -> alice", "Actual: 0", "[2] UPDATE alice -> host"}},
		{"record present", Assertion{Type: AssertRecord, Node: "host", Absent: true},
			[]string{"Expected: none", "Actual: host:ABCD"}},
		{"record absent", Assertion{Type: AssertRecord, Node: "alice", Role: "client", Code: "ABCD"},
			[]string{"Expected: client:ABCD", "Actual: none"}},
		{"unknown node", Assertion{Type: AssertState, Node: "zed", State: "idle"},
			[]string{`unknown node "zed"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(testView(), []Assertion{tt.assertion})
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], "assertion 1:")
			for _, want := range tt.want {
				assert.Contains(t, failures[0], want)
			}
		})
	}
}

func TestResult_CountFrames(t *testing.T) {
	r := NewResult()
	r.Frames = testView().Frames

	assert.Equal(t, 2, r.CountFrames("UPDATE", "", ""))
	assert.Equal(t, 1, r.CountFrames("UPDATE", "alice", "host"))
	assert.Equal(t, 0, r.CountFrames("LOCK", "", ""))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	assert.Equal(t, "PASS", r.Summary())

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, "FAIL\n  boom", r.Summary())
}
