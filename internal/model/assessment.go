package model

import (
	"edupath_backend/internal/util"
	"encoding/json"
	"strings"
)

// swagger:model Assessment
type Assessment struct {
	UUIDBase
	ContentID           string `gorm:"index;type:varchar(36)" json:"contentId"` // content node this assessment examines
	Title               string `gorm:"size:255;not null" json:"title"`
	Description         string `gorm:"type:text" json:"description"`
	MinimumPassingScore int    `gorm:"default:0" json:"minimumPassingScore"` // 0-100
	MaxAttempts         int    `gorm:"default:0" json:"maxAttempts"`         // 0 = unlimited
	TimeLimit           int    `gorm:"default:0" json:"timeLimit"`           // Minutes, 0 = untimed

	Questions []Question `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// TotalPoints sums the declared points of all questions.
func (a *Assessment) TotalPoints() int {
	total := 0
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// swagger:model Question
type Question struct {
	UUIDBase
	AssessmentID   string          `gorm:"index;type:varchar(36)" json:"assessmentId"`
	Type           QuestionType    `gorm:"size:30;not null" json:"type"`
	Prompt         string          `gorm:"type:text;not null" json:"prompt"`
	Options        json.RawMessage `gorm:"type:json" json:"options,omitempty"`  // []string, multiple_choice only
	CorrectAnswers json.RawMessage `gorm:"type:json" json:"-"`                  // []string acceptable answers
	Points         int             `gorm:"not null" json:"points"`              // > 0
	Difficulty     string          `gorm:"size:20" json:"difficulty,omitempty"` // easy, medium, hard
	Topics         json.RawMessage `gorm:"type:json" json:"topics,omitempty"`   // []string
	Order          int             `gorm:"default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

// AcceptableAnswers decodes the stored answer list. A nil result means
// the question carries no auto-gradable answer (essays).
func (q *Question) AcceptableAnswers() []string {
	if len(q.CorrectAnswers) == 0 {
		return nil
	}
	var answers []string
	if err := json.Unmarshal(q.CorrectAnswers, &answers); err != nil {
		return nil
	}
	return answers
}

func (q *Question) TopicList() []string {
	if len(q.Topics) == 0 {
		return nil
	}
	var topics []string
	if err := json.Unmarshal(q.Topics, &topics); err != nil {
		return nil
	}
	return topics
}

// Validate enforces the per-kind payload shape once, at the authoring
// boundary, so grading never sees malformed question data.
func (q *Question) Validate() error {
	if q.Points <= 0 {
		return &util.ValidationError{Field: "points", Reason: "must be positive"}
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return &util.ValidationError{Field: "prompt", Reason: "must not be empty"}
	}

	switch q.Type {
	case QuestionMultipleChoice:
		var options []string
		if err := json.Unmarshal(q.Options, &options); err != nil || len(options) < 2 {
			return &util.ValidationError{Field: "options", Reason: "multiple_choice requires at least two options"}
		}
		answers := q.AcceptableAnswers()
		if len(answers) == 0 {
			return &util.ValidationError{Field: "correctAnswers", Reason: "multiple_choice requires a correct answer"}
		}
	case QuestionTrueFalse:
		answers := q.AcceptableAnswers()
		if len(answers) != 1 || (answers[0] != "true" && answers[0] != "false") {
			return &util.ValidationError{Field: "correctAnswers", Reason: "true_false answer must be \"true\" or \"false\""}
		}
	case QuestionShortAnswer:
		if len(q.AcceptableAnswers()) == 0 {
			return &util.ValidationError{Field: "correctAnswers", Reason: "short_answer requires at least one acceptable answer"}
		}
	case QuestionEssay:
		// Essays carry no auto-gradable answer.
	default:
		return &util.ValidationError{Field: "type", Reason: "unknown question type"}
	}

	return nil
}
