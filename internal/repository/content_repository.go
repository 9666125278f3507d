package repository

import (
	"edupath_backend/internal/model"

	"gorm.io/gorm"
)

type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

// Create stores a node and its prerequisite edges in one transaction.
func (r *ContentRepository) Create(node *model.ContentNode, prerequisiteIDs []string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		node.Prerequisites = nil
		if err := tx.Create(node).Error; err != nil {
			return err
		}

		for i, pid := range prerequisiteIDs {
			edge := &model.ContentPrerequisite{
				ContentID:      node.ID,
				PrerequisiteID: pid,
				Position:       i,
			}
			if err := tx.Create(edge).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID loads a node with its prerequisite edges in declared order.
func (r *ContentRepository) FindByID(id string) (*model.ContentNode, error) {
	var n model.ContentNode
	err := r.DB.
		Preload("Prerequisites", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Where("id = ?", id).First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *ContentRepository) ListByCourse(courseID string) ([]model.ContentNode, error) {
	var nodes []model.ContentNode
	err := r.DB.
		Preload("Prerequisites", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Where("course_id = ?", courseID).
		Order("`order` asc, created_at asc").
		Find(&nodes).Error
	return nodes, err
}

func (r *ContentRepository) ListCourses() ([]model.ContentNode, error) {
	var nodes []model.ContentNode
	err := r.DB.Where("kind = ?", model.KindCourse).Order("created_at asc").Find(&nodes).Error
	return nodes, err
}

func (r *ContentRepository) List(page, limit int) ([]model.ContentNode, int64, error) {
	var nodes []model.ContentNode
	var total int64
	query := r.DB.Model(&model.ContentNode{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&nodes).Error
	return nodes, total, err
}

// ReplacePrerequisites rewrites a node's prerequisite edges in one
// transaction, preserving the new declared order.
func (r *ContentRepository) ReplacePrerequisites(contentID string, prerequisiteIDs []string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("content_id = ?", contentID).Delete(&model.ContentPrerequisite{}).Error; err != nil {
			return err
		}
		for i, pid := range prerequisiteIDs {
			edge := &model.ContentPrerequisite{
				ContentID:      contentID,
				PrerequisiteID: pid,
				Position:       i,
			}
			if err := tx.Create(edge).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListDependents returns the nodes that list contentID directly as a
// prerequisite — the one-hop cascade set.
func (r *ContentRepository) ListDependents(contentID string) ([]model.ContentNode, error) {
	var edges []model.ContentPrerequisite
	if err := r.DB.Where("prerequisite_id = ?", contentID).Find(&edges).Error; err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}

	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = e.ContentID
	}

	var nodes []model.ContentNode
	err := r.DB.
		Preload("Prerequisites", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc")
		}).
		Where("id IN ?", ids).Find(&nodes).Error
	return nodes, err
}

// AllEdges loads every prerequisite edge; the authoring-time cycle
// check walks this in memory.
func (r *ContentRepository) AllEdges() ([]model.ContentPrerequisite, error) {
	var edges []model.ContentPrerequisite
	err := r.DB.Find(&edges).Error
	return edges, err
}

func (r *ContentRepository) SetMandatoryAssessment(contentID, assessmentID string) error {
	return r.DB.Model(&model.ContentNode{}).
		Where("id = ?", contentID).
		Update("mandatory_assessment_id", assessmentID).Error
}
