package domain

import (
	"time"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Question types. Choice and media types carry options.
const (
	QuestionTypeSingle         = "single"
	QuestionTypeMultipleChoice = "multiple-choice"
	QuestionTypeImage          = "image"
	QuestionTypeAudio          = "audio"
	QuestionTypeVideo          = "video"
)

// Round types.
const (
	RoundTypeStandard      = "standard"
	RoundTypeGoldenPyramid = "golden-pyramid"
)

// HasOptions reports whether questions of type t are answered by picking options.
func HasOptions(t string) bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeImage, QuestionTypeAudio, QuestionTypeVideo:
		return true
	}
	return false
}

type Question struct {
	ID             string    `json:"id,omitempty"`
	Type           string    `json:"type"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer,omitempty"`
	Options        []string  `json:"options,omitempty"`
	CorrectAnswers []int     `json:"correctAnswers,omitempty"`
	MediaURL       string    `json:"mediaUrl,omitempty"`
	Explanation    string    `json:"explanation,omitempty"`
	Points         int       `json:"points,omitempty"`
	TimeLimit      int       `json:"timeLimit,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

type Round struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

// Settings apply to the quiz as a whole. DefaultTimeLimit is in seconds.
type Settings struct {
	DefaultTimeLimit   int  `json:"defaultTimeLimit"`
	PointsPerQuestion  int  `json:"pointsPerQuestion"`
	AllowHints         bool `json:"allowHints"`
	ShuffleQuestions   bool `json:"shuffleQuestions"`
	ShowCorrectAnswers bool `json:"showCorrectAnswers"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultTimeLimit:   30,
		PointsPerQuestion:  1,
		AllowHints:         false,
		ShuffleQuestions:   false,
		ShowCorrectAnswers: true,
	}
}

// Draft is a quiz under construction. It is allowed to be incomplete.
type Draft struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Difficulty        string    `json:"difficulty"`
	Rounds            []Round   `json:"rounds"`
	Settings          *Settings `json:"settings,omitempty"`
	EstimatedDuration float64   `json:"estimatedDuration,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Quiz is the committed entity produced by completing a draft.
type Quiz struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Difficulty        string    `json:"difficulty"`
	Rounds            []Round   `json:"rounds"`
	Settings          Settings  `json:"settings"`
	EstimatedDuration float64   `json:"estimatedDuration"` // minutes
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewDraft returns an empty draft with a fresh temporary ID.
func NewDraft(now time.Time) Draft {
	s := DefaultSettings()
	return Draft{
		ID:        NewDraftID(now),
		Rounds:    []Round{},
		Settings:  &s,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DraftFromQuiz opens an existing quiz for editing. The quiz ID is kept so
// completing the draft updates the quiz instead of creating a new one.
func DraftFromQuiz(q Quiz, now time.Time) Draft {
	s := q.Settings
	d := Draft{
		ID:                q.ID,
		Title:             q.Title,
		Description:       q.Description,
		Category:          q.Category,
		Difficulty:        q.Difficulty,
		Rounds:            CloneRounds(q.Rounds),
		Settings:          &s,
		EstimatedDuration: q.EstimatedDuration,
		Status:            StatusDraft,
		CreatedAt:         q.CreatedAt,
		UpdatedAt:         now,
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.Rounds == nil {
		d.Rounds = []Round{}
	}
	return d
}

// Clone returns a deep copy of d.
func (d Draft) Clone() Draft {
	c := d
	c.Rounds = CloneRounds(d.Rounds)
	if d.Settings != nil {
		s := *d.Settings
		c.Settings = &s
	}
	return c
}

// QuestionCount returns the total number of questions over all rounds.
func (d Draft) QuestionCount() int {
	n := 0
	for _, r := range d.Rounds {
		n += len(r.Questions)
	}
	return n
}

func CloneRounds(rounds []Round) []Round {
	if rounds == nil {
		return nil
	}
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		out[i] = r
		if r.Questions != nil {
			out[i].Questions = make([]Question, len(r.Questions))
			for j, q := range r.Questions {
				out[i].Questions[j] = q
				out[i].Questions[j].Options = append([]string(nil), q.Options...)
				out[i].Questions[j].CorrectAnswers = append([]int(nil), q.CorrectAnswers...)
			}
		}
	}
	return out
}
