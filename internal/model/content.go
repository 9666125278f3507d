package model

type ContentKind string

const (
	KindCourse     ContentKind = "course"
	KindLesson     ContentKind = "lesson"
	KindAssessment ContentKind = "assessment"
)

// ContentNode is one addressable unit in the course hierarchy. The
// prerequisite edges form a DAG; cycles are rejected at authoring time,
// never at gate-evaluation time.
// swagger:model ContentNode
type ContentNode struct {
	UUIDBase
	Kind            ContentKind `gorm:"size:20;not null;index" json:"kind"`
	Title           string      `gorm:"size:255;not null" json:"title"`
	Description     string      `gorm:"type:text" json:"description"`
	CourseID        string      `gorm:"index;type:varchar(36)" json:"courseId"` // owning course, empty for courses
	Order           int         `gorm:"default:0" json:"order"`                 // declared order within the course
	DurationMinutes int         `gorm:"default:0" json:"durationMinutes"`
	// Mandatory assessment the learner must pass before dependents unlock.
	MandatoryAssessmentID *string `gorm:"type:varchar(36)" json:"mandatoryAssessmentId,omitempty"`

	Prerequisites []ContentPrerequisite `gorm:"foreignKey:ContentID" json:"prerequisites,omitempty"`
}

func (ContentNode) TableName() string {
	return "content_nodes"
}

// ContentPrerequisite is one ordered prerequisite edge. Position keeps
// the author's declared order; the gate reports the first failing
// prerequisite in that order.
type ContentPrerequisite struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentID      string `gorm:"index;type:varchar(36);uniqueIndex:idx_content_prereq" json:"contentId"`
	PrerequisiteID string `gorm:"index;type:varchar(36);uniqueIndex:idx_content_prereq" json:"prerequisiteId"`
	Position       int    `gorm:"default:0" json:"position"`
}

func (ContentPrerequisite) TableName() string {
	return "content_prerequisites"
}

// PrerequisiteIDs returns the prerequisite ids in declared order. The
// repository loads Prerequisites ordered by position.
func (n *ContentNode) PrerequisiteIDs() []string {
	ids := make([]string, len(n.Prerequisites))
	for i, p := range n.Prerequisites {
		ids[i] = p.PrerequisiteID
	}
	return ids
}
