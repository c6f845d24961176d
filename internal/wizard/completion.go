package wizard

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/errors"
)

// ErrTitleRequired is the only condition that blocks completion.
var ErrTitleRequired = errors.New(errors.CodeInvalidArgument, errors.WithMessagef("Quiz title is required"))

// Duration estimate policy, in minutes.
var (
	minDuration        = decimal.NewFromInt(5)
	minutesPerQuestion = decimal.NewFromFloat(1.5)
	longRoundBonus     = decimal.NewFromFloat(0.5)
)

// longQuestionChars is the average question length above which a round
// counts as complex.
const longQuestionChars = 100

// Complete turns d into a quiz. Warnings never block; only a missing
// title does.
func Complete(d domain.Draft, now time.Time) (domain.Quiz, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return domain.Quiz{}, ErrTitleRequired
	}

	q := domain.Quiz{
		ID:          d.ID,
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		Category:    d.Category,
		Difficulty:  d.Difficulty,
		Rounds:      backfill(domain.CloneRounds(d.Rounds), now),
		Settings:    completeSettings(d.Settings),
		Status:      domain.StatusPublished,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   now,
	}

	// A draft ID means a new quiz. Any other ID belongs to the quiz being
	// edited and must be kept, or saving would duplicate it.
	if domain.IsDraftID(d.ID) || d.ID == "" {
		q.ID = domain.NewQuizID(now)
		q.CreatedAt = now
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}

	q.EstimatedDuration = EstimateDuration(q.Rounds, d.EstimatedDuration)
	return q, nil
}

// EstimateDuration returns the playing time in minutes:
// max(5, ceil(questions*1.5) + 0.5 per long-question round, previous).
func EstimateDuration(rounds []domain.Round, previous float64) float64 {
	total := 0
	bonus := decimal.Zero
	for _, r := range rounds {
		total += len(r.Questions)
		if isLongRound(r) {
			bonus = bonus.Add(longRoundBonus)
		}
	}

	est := decimal.NewFromInt(int64(total)).Mul(minutesPerQuestion).Ceil().Add(bonus)
	est = decimal.Max(est, minDuration, decimal.NewFromFloat(previous))

	return est.InexactFloat64()
}

func isLongRound(r domain.Round) bool {
	if len(r.Questions) == 0 {
		return false
	}

	chars := 0
	for _, q := range r.Questions {
		chars += utf8.RuneCountInString(q.Question)
	}
	return chars > longQuestionChars*len(r.Questions)
}

func completeSettings(s *domain.Settings) domain.Settings {
	def := domain.DefaultSettings()
	if s == nil {
		return def
	}

	out := *s
	if out.DefaultTimeLimit <= 0 {
		out.DefaultTimeLimit = def.DefaultTimeLimit
	}
	if out.PointsPerQuestion <= 0 {
		out.PointsPerQuestion = def.PointsPerQuestion
	}
	return out
}

// backfill assigns IDs and timestamps to rounds and questions that lack them.
func backfill(rounds []domain.Round, now time.Time) []domain.Round {
	if rounds == nil {
		return []domain.Round{}
	}

	for i := range rounds {
		r := &rounds[i]
		if r.ID == "" {
			r.ID = domain.NewRoundID()
		}
		if r.Type == "" {
			r.Type = domain.RoundTypeStandard
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		if r.Questions == nil {
			r.Questions = []domain.Question{}
		}

		for j := range r.Questions {
			q := &r.Questions[j]
			if q.ID == "" {
				q.ID = domain.NewQuestionID()
			}
			if q.Type == "" {
				q.Type = domain.QuestionTypeSingle
			}
			if q.CreatedAt.IsZero() {
				q.CreatedAt = now
			}
			if q.UpdatedAt.IsZero() {
				q.UpdatedAt = now
			}
		}
	}

	return rounds
}
