package repository

import (
	"edupath_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) Find(learnerID uint, contentID string) (*model.ProgressRecord, error) {
	var p model.ProgressRecord
	err := r.DB.Where("learner_id = ? AND content_id = ?", learnerID, contentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes the record keyed by (learner, content), creating it on
// first touch.
func (r *ProgressRepository) Upsert(record *model.ProgressRecord) error {
	var existing model.ProgressRecord
	err := r.DB.Where("learner_id = ? AND content_id = ?", record.LearnerID, record.ContentID).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.DB.Create(record).Error
	}
	if err != nil {
		return err
	}
	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return r.DB.Save(record).Error
}

func (r *ProgressRepository) ListByLearner(learnerID uint) ([]model.ProgressRecord, error) {
	var records []model.ProgressRecord
	err := r.DB.Where("learner_id = ?", learnerID).Order("last_accessed desc").Find(&records).Error
	return records, err
}

// IsCompleted is the gate's hot read. Lock-free: a brief stale answer
// immediately after a concurrent unlock is acceptable.
func (r *ProgressRepository) IsCompleted(learnerID uint, contentID string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ProgressRecord{}).
		Where("learner_id = ? AND content_id = ? AND status = ?", learnerID, contentID, model.ProgressCompleted).
		Count(&count).Error
	return count > 0, err
}
