package wizard

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/victornm/quizzard/internal/domain"
)

const (
	MaxTitleLength = 100

	MinOptions = 2
	MaxOptions = 6

	MinRecommendedQuestions = 5
	MaxRecommendedQuestions = 100
)

// Result of validating one step or the whole draft. Only Errors block
// progress; Warnings are advisory.
type Result struct {
	IsValid   bool      `json:"isValid" yaml:"isValid"`
	Errors    []string  `json:"errors" yaml:"errors"`
	Warnings  []string  `json:"warnings" yaml:"warnings"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type collector struct {
	errors   []string
	warnings []string
}

func (c *collector) errorf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *collector) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *collector) result(now time.Time) Result {
	return Result{
		IsValid:   len(c.errors) == 0,
		Errors:    append([]string{}, c.errors...),
		Warnings:  append([]string{}, c.warnings...),
		Timestamp: now,
	}
}

// Validate checks the rules of a single step.
func Validate(step Step, d domain.Draft, now time.Time) Result {
	var c collector
	switch step {
	case StepBasicInfo:
		validateBasicInfo(&c, d)
	case StepQuestions:
		validateQuestions(&c, d)
	case StepReview:
		validateReview(&c, d)
	default:
		c.errorf("Unknown step %d", step)
	}
	return c.result(now)
}

// ValidateAll checks every step regardless of the current one.
func ValidateAll(d domain.Draft, now time.Time) Result {
	var c collector
	validateBasicInfo(&c, d)
	validateQuestions(&c, d)
	validateReview(&c, d)
	return c.result(now)
}

func validateBasicInfo(c *collector, d domain.Draft) {
	title := strings.TrimSpace(d.Title)
	switch {
	case title == "":
		c.errorf("Quiz title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		c.errorf("Quiz title must be %d characters or less", MaxTitleLength)
	}

	if strings.TrimSpace(d.Category) == "" {
		c.errorf("Category is required")
	}
	if strings.TrimSpace(d.Difficulty) == "" {
		c.errorf("Difficulty is required")
	}
	if strings.TrimSpace(d.Description) == "" {
		c.warnf("Adding a description helps players know what to expect")
	}
}

func validateQuestions(c *collector, d domain.Draft) {
	if len(d.Rounds) == 0 {
		c.errorf("At least one round is required")
		return
	}

	for i, r := range d.Rounds {
		rn := i + 1
		if len(r.Questions) == 0 {
			c.errorf("Round %d must have at least one question", rn)
			continue
		}

		for j, q := range r.Questions {
			validateQuestion(c, r, q, fmt.Sprintf("Round %d, question %d", rn, j+1))
		}
	}
}

// validateQuestion only ever errors on missing question text. Incomplete
// answers and options are warnings so half-written questions can be saved.
func validateQuestion(c *collector, r domain.Round, q domain.Question, where string) {
	if strings.TrimSpace(q.Question) == "" {
		c.errorf("%s: question text is required", where)
	}

	if !domain.HasOptions(q.Type) {
		if strings.TrimSpace(q.Answer) == "" {
			c.warnf("%s: answer is missing", where)
		}
		return
	}

	nonEmpty := 0
	for _, o := range q.Options {
		if strings.TrimSpace(o) != "" {
			nonEmpty++
		}
	}

	if r.Type == domain.RoundTypeGoldenPyramid {
		if nonEmpty == 0 {
			c.warnf("%s: no answer options yet", where)
		}
		return
	}

	if nonEmpty < MinOptions {
		c.warnf("%s: needs at least %d options", where, MinOptions)
	}
	if len(q.Options) > MaxOptions {
		c.warnf("%s: has more than %d options", where, MaxOptions)
	}
	for k, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			c.warnf("%s: option %d is empty", where, k+1)
		}
	}

	if len(q.CorrectAnswers) == 0 {
		c.warnf("%s: no correct answer selected", where)
	}
	for _, idx := range q.CorrectAnswers {
		if idx < 0 || idx >= len(q.Options) {
			c.warnf("%s: correct answer %d is out of range", where, idx+1)
		}
	}
}

func validateReview(c *collector, d domain.Draft) {
	if strings.TrimSpace(d.Title) == "" {
		c.errorf("Basic information is incomplete: title is missing")
	}
	if len(d.Rounds) == 0 {
		c.errorf("Quiz has no rounds")
	} else if d.QuestionCount() == 0 {
		c.errorf("Quiz has no questions")
	}
	if d.Settings == nil {
		c.errorf("Quiz settings are missing")
	}

	if n := d.QuestionCount(); n > 0 && (n < MinRecommendedQuestions || n > MaxRecommendedQuestions) {
		c.warnf("Quiz has %d questions; between %d and %d is recommended", n, MinRecommendedQuestions, MaxRecommendedQuestions)
	}
}
