package model

import "time"

type ProgressStatus string

// "blocked" is deliberately absent: it is a transient gate decision,
// never a persisted state.
const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// swagger:model ProgressRecord
type ProgressRecord struct {
	BaseModel
	LearnerID            uint           `gorm:"type:bigint unsigned;uniqueIndex:idx_learner_content" json:"learnerId"`
	ContentID            string         `gorm:"type:varchar(36);uniqueIndex:idx_learner_content" json:"contentId"`
	Status               ProgressStatus `gorm:"size:20;default:'not_started'" json:"status"`
	CompletionPercentage int            `gorm:"default:0" json:"completionPercentage"` // 0-100
	TimeSpent            int            `gorm:"default:0" json:"timeSpent"`            // seconds
	AttemptsCount        int            `gorm:"default:0" json:"attemptsCount"`
	BestScore            int            `gorm:"default:0" json:"bestScore"` // max score over all attempts
	LastAccessed         time.Time      `json:"lastAccessed"`
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}
