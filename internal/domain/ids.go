package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DraftIDPrefix    = "draft_"
	QuizIDPrefix     = "quiz_"
	RoundIDPrefix    = "round_"
	QuestionIDPrefix = "question_"

	idAlphabet   = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixSize = 9
)

// NewDraftID returns a temporary ID. The random suffix keeps IDs generated
// within the same millisecond distinct.
func NewDraftID(now time.Time) string {
	return DraftIDPrefix + timestampID(now)
}

// NewQuizID returns a permanent quiz ID.
func NewQuizID(now time.Time) string {
	return QuizIDPrefix + timestampID(now)
}

func NewRoundID() string {
	return RoundIDPrefix + newUUID()
}

func NewQuestionID() string {
	return QuestionIDPrefix + newUUID()
}

// IsDraftID reports whether id belongs to the temporary draft namespace.
func IsDraftID(id string) bool {
	return strings.HasPrefix(id, DraftIDPrefix)
}

func timestampID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + gonanoid.MustGenerate(idAlphabet, idSuffixSize)
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
