package model

import (
	"encoding/json"
	"time"
)

type RoadmapStatus string

const (
	RoadmapGenerating RoadmapStatus = "generating"
	RoadmapActive     RoadmapStatus = "active"
	RoadmapPaused     RoadmapStatus = "paused"
	RoadmapCompleted  RoadmapStatus = "completed"
)

type RoadmapSource string

const (
	SourceAdvisor  RoadmapSource = "advisor"
	SourceFallback RoadmapSource = "fallback"
)

// Roadmap is the single active personalized path per learner. Version
// backs the optimistic-concurrency replace: every mutation rewrites the
// item list and bumps Version in one transaction.
// swagger:model Roadmap
type Roadmap struct {
	UUIDBase
	LearnerID   uint          `gorm:"type:bigint unsigned;uniqueIndex" json:"learnerId"`
	Status      RoadmapStatus `gorm:"size:20;default:'generating'" json:"status"`
	Source      RoadmapSource `gorm:"size:20" json:"source"`
	Reasoning   string        `gorm:"type:text" json:"reasoning"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Version     int           `gorm:"default:1" json:"version"`

	Items []LearningPathItem `gorm:"foreignKey:RoadmapID" json:"items,omitempty"`
}

func (Roadmap) TableName() string {
	return "roadmaps"
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemCompleted ItemStatus = "completed"
)

// swagger:model LearningPathItem
type LearningPathItem struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	RoadmapID        string          `gorm:"index;type:varchar(36)" json:"roadmapId"`
	ContentID        string          `gorm:"index;type:varchar(36)" json:"contentId"`
	OrderIndex       int             `gorm:"not null" json:"orderIndex"`
	PrerequisiteIDs  json.RawMessage `gorm:"type:json" json:"prerequisiteIds,omitempty"` // []string
	EstimatedTime    int             `gorm:"default:0" json:"estimatedTime"`             // minutes
	CompletionStatus ItemStatus      `gorm:"size:20;default:'pending'" json:"completionStatus"`
	IsUnlocked       bool            `gorm:"default:false" json:"isUnlocked"`
	Note             string          `gorm:"type:text" json:"note"` // personalization note
	Remedial         bool            `gorm:"default:false" json:"remedial"`
}

func (LearningPathItem) TableName() string {
	return "learning_path_items"
}

func (i *LearningPathItem) DecodedPrerequisites() []string {
	if len(i.PrerequisiteIDs) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(i.PrerequisiteIDs, &ids); err != nil {
		return nil
	}
	return ids
}
