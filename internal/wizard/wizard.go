// Package wizard drives the quiz creation wizard: step navigation,
// per-step validation and completion of the draft into a quiz.
package wizard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/draft"
)

type Config struct {
	Engine *draft.Engine
	Clock  clock.Clock
}

// State is everything the UI needs to render the wizard.
type State struct {
	Draft      domain.Draft `json:"draft" yaml:"draft"`
	Step       Step         `json:"step" yaml:"step"`
	Steps      []StepState  `json:"steps" yaml:"steps"`
	CanProceed bool         `json:"canProceed" yaml:"canProceed"`
	Validation Result       `json:"validation" yaml:"validation"`
}

type Wizard struct {
	engine *draft.Engine
	clock  clock.Clock
	nav    *Navigation
}

func New(c Config) *Wizard {
	if c.Clock == nil {
		c.Clock = clock.New()
	}

	w := &Wizard{
		engine: c.Engine,
		clock:  c.Clock,
	}
	w.nav = NewNavigation(func(s Step) Result {
		return Validate(s, w.engine.Draft(), w.clock.Now())
	})

	return w
}

// Open starts a wizard session, editing existing when it is not nil.
func (w *Wizard) Open(ctx context.Context, existing *domain.Quiz) State {
	w.nav.Reset()
	w.engine.Initialize(ctx, existing)
	return w.State()
}

func (w *Wizard) State() State {
	step := w.nav.Current()
	return State{
		Draft:      w.engine.Draft(),
		Step:       step,
		Steps:      w.nav.Steps(),
		CanProceed: w.nav.CanProceed(),
		Validation: w.Validate(),
	}
}

// Update applies a field change. Saving happens in the background.
func (w *Wizard) Update(p domain.DraftPatch) State {
	w.engine.Update(p)
	return w.State()
}

func (w *Wizard) Next() bool { return w.nav.Next() }

func (w *Wizard) Previous() bool { return w.nav.Previous() }

func (w *Wizard) GoTo(s Step) bool { return w.nav.GoTo(s) }

// Validate checks the current step.
func (w *Wizard) Validate() Result {
	return Validate(w.nav.Current(), w.engine.Draft(), w.clock.Now())
}

// ValidateAll checks every step.
func (w *Wizard) ValidateAll() Result {
	return ValidateAll(w.engine.Draft(), w.clock.Now())
}

// Complete builds the final quiz and removes the draft. The quiz is
// returned even if deleting the stored draft fails; the leftover is only
// logged.
func (w *Wizard) Complete(ctx context.Context) (domain.Quiz, error) {
	d := w.engine.Draft()

	q, err := Complete(d, w.clock.Now())
	if err != nil {
		return domain.Quiz{}, err
	}

	if err := w.engine.Clear(ctx); err != nil {
		slog.WarnContext(ctx, "wizard: completed but draft was not deleted", "draft_id", d.ID, "error", err)
	}
	w.nav.Reset()

	slog.InfoContext(ctx, "wizard: completed", "quiz_id", q.ID, "draft_id", d.ID)
	return q, nil
}

// Cancel discards the draft without producing a quiz.
func (w *Wizard) Cancel(ctx context.Context) error {
	w.nav.Reset()
	if err := w.engine.Clear(ctx); err != nil {
		return fmt.Errorf("cancel wizard: %w", err)
	}
	return nil
}

// SaveAndExit persists the draft immediately.
func (w *Wizard) SaveAndExit(ctx context.Context) error {
	if err := w.engine.Save(ctx); err != nil {
		return fmt.Errorf("save and exit: %w", err)
	}
	return nil
}

// Reset returns to the first step and starts a fresh draft.
func (w *Wizard) Reset() State {
	w.nav.Reset()
	w.engine.Reset()
	return w.State()
}
