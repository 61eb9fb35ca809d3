package harness

// FrameEvent is one non-heartbeat frame observed on the network, with
// endpoints resolved to node names.
type FrameEvent struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// NodeSnapshot is a node's settled outcome.
type NodeSnapshot struct {
	State        string            `json:"state"`
	Code         string            `json:"code,omitempty"`
	Participants int               `json:"participants"`
	Locked       bool              `json:"locked"`
	Document     map[string]string `json:"document"`
	Record       string            `json:"record,omitempty"`
	Notices      []string          `json:"notices"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Frames lists the observed frames in send order.
	Frames []FrameEvent `json:"frames"`

	// Nodes holds each node's final snapshot.
	Nodes map[string]NodeSnapshot `json:"nodes"`

	// Errors contains failed steps and assertions.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Frames: []FrameEvent{},
		Nodes:  make(map[string]NodeSnapshot),
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CountFrames counts frames of type typ; empty from or to match any node.
func (r *Result) CountFrames(typ, from, to string) int {
	n := 0
	for _, f := range r.Frames {
		if f.Type == typ && (from == "" || f.From == from) && (to == "" || f.To == to) {
			n++
		}
	}
	return n
}
