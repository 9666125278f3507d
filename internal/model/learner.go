package model

import (
	"time"
)

type LearnerRole string

const (
	RoleLearner LearnerRole = "learner"
	RoleAuthor  LearnerRole = "author"
	RoleAdmin   LearnerRole = "admin"
)

// swagger:model Learner
type Learner struct {
	BaseModel
	Name      string      `gorm:"size:100;not null" json:"name"`
	Email     string      `gorm:"size:100;unique;not null" json:"email"`
	Password  string      `gorm:"size:100;not null" json:"-"`
	Role      LearnerRole `gorm:"size:20;default:'learner'" json:"role"`
	Language  string      `gorm:"size:10;default:'en'" json:"language"`
	Disabled  bool        `gorm:"default:false" json:"disabled"`
	LastLogin time.Time   `json:"lastLogin"`
}

func (Learner) TableName() string {
	return "learners"
}

// Enrollment links a learner to a course whose content feeds the
// roadmap generator.
type Enrollment struct {
	BaseModel
	LearnerID uint   `gorm:"index;type:bigint unsigned;uniqueIndex:idx_enrollment" json:"learnerId"`
	CourseID  string `gorm:"type:varchar(36);uniqueIndex:idx_enrollment" json:"courseId"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
