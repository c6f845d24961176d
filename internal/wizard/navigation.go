package wizard

import "sync"

type Step int

const (
	StepBasicInfo Step = iota
	StepQuestions
	StepReview
)

var stepNames = [...]string{
	StepBasicInfo: "basic-info",
	StepQuestions: "questions",
	StepReview:    "review",
}

// StepCount is the number of wizard steps.
const StepCount = len(stepNames)

func (s Step) String() string {
	if s < 0 || int(s) >= StepCount {
		return "unknown"
	}
	return stepNames[s]
}

// StepState describes one step as seen from the current position. It is
// derived, never stored.
type StepState struct {
	Index     Step   `json:"index" yaml:"index"`
	Name      string `json:"name" yaml:"name"`
	Completed bool   `json:"completed" yaml:"completed"`
	Active    bool   `json:"active" yaml:"active"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Navigation is the step cursor. Moving forward is gated by validate;
// moving back never is.
type Navigation struct {
	validate func(Step) Result

	mu      sync.Mutex
	current Step
}

func NewNavigation(validate func(Step) Result) *Navigation {
	return &Navigation{validate: validate}
}

func (n *Navigation) Current() Step {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Navigation) Steps() []StepState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stepsLocked()
}

// CanProceed is true when the current step validates and is not the last.
func (n *Navigation) CanProceed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.canProceedLocked()
}

// Next advances one step if allowed. It reports whether it moved.
func (n *Navigation) Next() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.canProceedLocked() {
		return false
	}
	n.current++
	return true
}

// Previous goes back one step. It reports whether it moved.
func (n *Navigation) Previous() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current == 0 {
		return false
	}
	n.current--
	return true
}

// GoTo jumps to an enabled step. It reports whether it moved.
func (n *Navigation) GoTo(s Step) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s < 0 || int(s) >= StepCount {
		return false
	}
	if !n.stepsLocked()[s].Enabled {
		return false
	}
	n.current = s
	return true
}

func (n *Navigation) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = 0
}

func (n *Navigation) canProceedLocked() bool {
	return int(n.current) < StepCount-1 && n.validate(n.current).IsValid
}

func (n *Navigation) stepsLocked() []StepState {
	steps := make([]StepState, StepCount)
	for i := range steps {
		s := Step(i)
		completed := s < n.current || n.validate(s).IsValid
		steps[i] = StepState{
			Index:     s,
			Name:      s.String(),
			Completed: completed,
			Active:    s == n.current,
			Enabled:   s <= n.current || completed,
		}
	}
	return steps
}
