package wizard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/errors"
	"github.com/victornm/quizzard/internal/wizard"
)

func TestComplete_MinimalDraft(t *testing.T) {
	d := domain.Draft{ID: domain.NewDraftID(now), Title: "x"}

	q, err := wizard.Complete(d, now)
	require.NoError(t, err)

	assert.Equal(t, "x", q.Title)
	assert.Equal(t, []domain.Round{}, q.Rounds)
	assert.Equal(t, domain.DefaultSettings(), q.Settings)
	assert.GreaterOrEqual(t, q.EstimatedDuration, 5.0)
	assert.True(t, strings.HasPrefix(q.ID, domain.QuizIDPrefix))
	assert.Equal(t, now, q.CreatedAt)
	assert.Equal(t, now, q.UpdatedAt)
	assert.Equal(t, domain.StatusPublished, q.Status)
}

func TestComplete_TitleRequired(t *testing.T) {
	for name, title := range map[string]string{"empty": "", "blank": " \t "} {
		t.Run(name, func(t *testing.T) {
			_, err := wizard.Complete(domain.Draft{ID: "draft_1", Title: title}, now)
			require.ErrorIs(t, err, wizard.ErrTitleRequired)
			assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
		})
	}
}

func TestComplete_EditKeepsIdentity(t *testing.T) {
	created := now.AddDate(0, -1, 0)
	existing := domain.Quiz{ID: "quiz_42", Title: "Old", CreatedAt: created}

	d := domain.DraftFromQuiz(existing, now)
	d = domain.DraftPatch{Title: domain.Ptr("New")}.Apply(d, now)

	q, err := wizard.Complete(d, now)
	require.NoError(t, err)
	assert.Equal(t, "quiz_42", q.ID)
	assert.Equal(t, "New", q.Title)
	assert.Equal(t, created, q.CreatedAt)
	assert.Equal(t, now, q.UpdatedAt)
}

func TestComplete_Backfill(t *testing.T) {
	d := completeDraft()
	d.Rounds[0].Questions[0].ID = "question_keep"

	q, err := wizard.Complete(d, now)
	require.NoError(t, err)

	r := q.Rounds[0]
	assert.True(t, strings.HasPrefix(r.ID, domain.RoundIDPrefix))
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, "question_keep", r.Questions[0].ID)
	for _, qq := range r.Questions[1:] {
		assert.True(t, strings.HasPrefix(qq.ID, domain.QuestionIDPrefix))
		assert.Equal(t, now, qq.CreatedAt)
		assert.Equal(t, now, qq.UpdatedAt)
	}

	assert.Empty(t, d.Rounds[0].ID, "the draft itself is not modified")
}

func TestEstimateDuration(t *testing.T) {
	questions := func(n, textLen int) []domain.Question {
		qs := make([]domain.Question, n)
		for i := range qs {
			qs[i] = domain.Question{Question: strings.Repeat("q", textLen)}
		}
		return qs
	}

	tests := map[string]struct {
		rounds   []domain.Round
		previous float64
		want     float64
	}{
		"no questions hits the floor": {
			want: 5,
		},
		"three questions still at the floor": {
			rounds: []domain.Round{{Questions: questions(3, 10)}},
			want:   5,
		},
		"ten questions": {
			rounds: []domain.Round{{Questions: questions(10, 10)}},
			want:   15,
		},
		"odd count rounds up": {
			rounds: []domain.Round{{Questions: questions(7, 10)}},
			want:   11,
		},
		"long round adds half a minute": {
			rounds: []domain.Round{
				{Questions: questions(6, 101)},
				{Questions: questions(4, 100)},
			},
			want: 15.5,
		},
		"previous larger estimate wins": {
			rounds:   []domain.Round{{Questions: questions(10, 10)}},
			previous: 42,
			want:     42,
		},
		"empty round gets no bonus": {
			rounds: []domain.Round{{}, {Questions: questions(4, 200)}},
			want:   6.5,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, wizard.EstimateDuration(tc.rounds, tc.previous))
		})
	}
}
