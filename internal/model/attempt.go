package model

import (
	"encoding/json"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress   AttemptStatus = "in_progress"
	AttemptGraded       AttemptStatus = "graded"
	AttemptPendingGrade AttemptStatus = "pending_manual_grade"
)

// AssessmentAttempt is one finalized or in-flight take of an
// assessment. AttemptNumber is gap-free and strictly increasing per
// (assessment, learner); the composite unique index backs that up.
// swagger:model AssessmentAttempt
type AssessmentAttempt struct {
	BaseModel
	AssessmentID  string          `gorm:"type:varchar(36);uniqueIndex:idx_attempt_seq" json:"assessmentId"`
	LearnerID     uint            `gorm:"type:bigint unsigned;uniqueIndex:idx_attempt_seq" json:"learnerId"`
	AttemptNumber int             `gorm:"uniqueIndex:idx_attempt_seq" json:"attemptNumber"`
	Answers       json.RawMessage `gorm:"type:json" json:"answers"` // []AttemptAnswer
	Score         int             `json:"score"`                    // 0-100, rounded
	PointsEarned  int             `json:"pointsEarned"`
	TotalPoints   int             `json:"totalPoints"`
	Passed        bool            `gorm:"default:false" json:"passed"`
	Status        AttemptStatus   `gorm:"size:30;default:'in_progress'" json:"status"`
	TimeSpent     int             `json:"timeSpent"` // seconds
	TimeExpired   bool            `gorm:"default:false" json:"timeExpired"`
	StartedAt     time.Time       `json:"startedAt"`
	SubmittedAt   *time.Time      `json:"submittedAt,omitempty"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}

// Finalized reports whether the attempt has been submitted or expired.
func (a *AssessmentAttempt) Finalized() bool {
	return a.Status != AttemptInProgress
}

// AttemptAnswer is one graded answer inside an attempt's answers
// payload.
type AttemptAnswer struct {
	QuestionID    string `json:"questionId"`
	Response      string `json:"response"`
	Correct       bool   `json:"correct"`
	PointsEarned  int    `json:"pointsEarned"`
	PendingManual bool   `json:"pendingManual,omitempty"`
}

// SubmittedAnswer is the learner-supplied half of an answer before
// grading.
type SubmittedAnswer struct {
	QuestionID string `json:"questionId" binding:"required"`
	Response   string `json:"response"`
}

func (a *AssessmentAttempt) DecodedAnswers() []AttemptAnswer {
	if len(a.Answers) == 0 {
		return nil
	}
	var answers []AttemptAnswer
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil
	}
	return answers
}
