package domain

import "time"

// DraftPatch is a partial update of a draft. Nil fields are left untouched.
type DraftPatch struct {
	Title             *string
	Description       *string
	Category          *string
	Difficulty        *string
	EstimatedDuration *float64

	// Rounds replaces the whole round list when non-nil. Rounds are never
	// merged element-wise since their order is meaningful.
	Rounds []Round

	// Settings is merged field by field.
	Settings *SettingsPatch
}

type SettingsPatch struct {
	DefaultTimeLimit   *int
	PointsPerQuestion  *int
	AllowHints         *bool
	ShuffleQuestions   *bool
	ShowCorrectAnswers *bool
}

// Apply merges p into d and stamps UpdatedAt.
func (p DraftPatch) Apply(d Draft, now time.Time) Draft {
	out := d.Clone()

	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Difficulty != nil {
		out.Difficulty = *p.Difficulty
	}
	if p.EstimatedDuration != nil {
		out.EstimatedDuration = *p.EstimatedDuration
	}
	if p.Rounds != nil {
		out.Rounds = CloneRounds(p.Rounds)
	}
	if p.Settings != nil {
		s := DefaultSettings()
		if out.Settings != nil {
			s = *out.Settings
		}
		s = p.Settings.apply(s)
		out.Settings = &s
	}

	out.UpdatedAt = now
	return out
}

func (p SettingsPatch) apply(s Settings) Settings {
	if p.DefaultTimeLimit != nil {
		s.DefaultTimeLimit = *p.DefaultTimeLimit
	}
	if p.PointsPerQuestion != nil {
		s.PointsPerQuestion = *p.PointsPerQuestion
	}
	if p.AllowHints != nil {
		s.AllowHints = *p.AllowHints
	}
	if p.ShuffleQuestions != nil {
		s.ShuffleQuestions = *p.ShuffleQuestions
	}
	if p.ShowCorrectAnswers != nil {
		s.ShowCorrectAnswers = *p.ShowCorrectAnswers
	}
	return s
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
